package paper

import "testing"

func TestNewVerifiedRejectsEmptyIdentifier(t *testing.T) {
	c := Candidate{Title: "Electricity Market Design"}

	if _, err := NewVerified(c, ""); err == nil {
		t.Error("NewVerified(\"\") = nil error, want failure")
	}

	vc, err := NewVerified(c, "10.0/ok")
	if err != nil {
		t.Fatalf("NewVerified(): %v", err)
	}
	if vc.Identifier != "10.0/ok" || vc.Candidate.Title != c.Title {
		t.Errorf("NewVerified() = %+v", vc)
	}
}

func TestTotalRejectedExcludesRegistryOutages(t *testing.T) {
	s := RunStats{
		TotalSeen:           10,
		NormalizeRejected:   1,
		NoMatch:             2,
		AmbiguousMatch:      1,
		RegistryUnavailable: 3,
		BelowMinScore:       1,
		TotalConfirmed:      2,
	}
	if got := s.TotalRejected(); got != 5 {
		t.Errorf("TotalRejected() = %d, want 5; registry outages are not rejections", got)
	}
}
