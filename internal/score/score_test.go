package score

import (
	"reflect"
	"testing"

	"github.com/ldiehl/paperboy/internal/config"
	"github.com/ldiehl/paperboy/internal/paper"
)

func verified(t *testing.T, title, abstract string) paper.VerifiedCandidate {
	t.Helper()
	vc, err := paper.NewVerified(paper.Candidate{Title: title, Abstract: abstract}, "10.0/test")
	if err != nil {
		t.Fatal(err)
	}
	return vc
}

func singleGroup() []config.KeywordGroup {
	return []config.KeywordGroup{
		{Name: "primary", Weight: 3.0, Keywords: []string{"electricity market"}},
	}
}

func TestScoreTitleMatchSingleGroup(t *testing.T) {
	s := New(singleGroup(), 2.0)
	sc := s.Score(verified(t, "Electricity Market Reform in Europe", ""))
	if sc.Score != 1.0 {
		t.Errorf("Score = %v, want 1.0 for a title hit in the only group", sc.Score)
	}
	if !reflect.DeepEqual(sc.MatchedKeywords, []string{"electricity market"}) {
		t.Errorf("MatchedKeywords = %v", sc.MatchedKeywords)
	}
}

func TestScoreAbstractOnlyHalvesTitleScore(t *testing.T) {
	s := New(singleGroup(), 2.0)
	sc := s.Score(verified(t, "Unrelated Title", "We study the electricity market."))
	if sc.Score != 0.5 {
		t.Errorf("Score = %v, want 0.5 for an abstract-only hit", sc.Score)
	}
}

func TestScoreNoMatchIsZero(t *testing.T) {
	s := New(singleGroup(), 2.0)
	sc := s.Score(verified(t, "Deep Sea Biology", "Bioluminescence in anglerfish."))
	if sc.Score != 0 {
		t.Errorf("Score = %v, want 0", sc.Score)
	}
	if len(sc.MatchedKeywords) != 0 {
		t.Errorf("MatchedKeywords = %v, want none", sc.MatchedKeywords)
	}
}

func TestScoreGroupCountsOnce(t *testing.T) {
	groups := []config.KeywordGroup{
		{Name: "primary", Weight: 3.0, Keywords: []string{"solar", "wind", "storage"}},
	}
	s := New(groups, 2.0)
	sc := s.Score(verified(t, "Solar and Wind with Storage", ""))
	if sc.Score != 1.0 {
		t.Errorf("Score = %v, want 1.0; multiple hits in one group must not stack", sc.Score)
	}
	want := []string{"solar", "storage", "wind"}
	if !reflect.DeepEqual(sc.MatchedKeywords, want) {
		t.Errorf("MatchedKeywords = %v, want %v sorted", sc.MatchedKeywords, want)
	}
}

func TestScoreExcludeGroupSubtracts(t *testing.T) {
	groups := []config.KeywordGroup{
		{Name: "primary", Weight: 3.0, Keywords: []string{"carbon tax"}},
		{Name: "exclude", Weight: -10.0, Keywords: []string{"cryptocurrency"}},
	}
	s := New(groups, 2.0)

	clean := s.Score(verified(t, "Carbon Tax Incidence", ""))
	if clean.Score != 1.0 {
		t.Fatalf("clean Score = %v, want 1.0", clean.Score)
	}

	excluded := s.Score(verified(t, "Carbon Tax on Cryptocurrency Mining", ""))
	if excluded.Score != 0 {
		t.Errorf("excluded Score = %v, want 0 (clamped)", excluded.Score)
	}
	want := []string{"carbon tax"}
	if !reflect.DeepEqual(excluded.MatchedKeywords, want) {
		t.Errorf("MatchedKeywords = %v, want %v; exclusion terms are not relevance matches", excluded.MatchedKeywords, want)
	}
}

func TestScoreWholeWordMatching(t *testing.T) {
	groups := []config.KeywordGroup{
		{Name: "primary", Weight: 1.0, Keywords: []string{"grid"}},
	}
	s := New(groups, 2.0)
	sc := s.Score(verified(t, "Gridlock in Urban Planning", ""))
	if sc.Score != 0 {
		t.Errorf("Score = %v; \"grid\" must not match inside \"gridlock\"", sc.Score)
	}
}

func TestScoreCaseInsensitive(t *testing.T) {
	s := New(singleGroup(), 2.0)
	sc := s.Score(verified(t, "ELECTRICITY MARKET liberalization", ""))
	if sc.Score != 1.0 {
		t.Errorf("Score = %v, want 1.0 regardless of case", sc.Score)
	}
}

func TestScoreMultipleGroupsNormalize(t *testing.T) {
	groups := []config.KeywordGroup{
		{Name: "primary", Weight: 3.0, Keywords: []string{"electricity market"}},
		{Name: "secondary", Weight: 2.0, Keywords: []string{"renewable"}},
		{Name: "tertiary", Weight: 1.0, Keywords: []string{"policy"}},
	}
	s := New(groups, 2.0)

	// Title hit in primary only: 3*2 / (3+2+1)*2 = 0.5.
	sc := s.Score(verified(t, "Electricity Market Outcomes", ""))
	if sc.Score != 0.5 {
		t.Errorf("Score = %v, want 0.5", sc.Score)
	}

	// Title hits everywhere saturate at 1.
	full := s.Score(verified(t, "Renewable Policy in the Electricity Market", ""))
	if full.Score != 1.0 {
		t.Errorf("full Score = %v, want 1.0", full.Score)
	}
}

func TestScoreBounds(t *testing.T) {
	groups := []config.KeywordGroup{
		{Name: "primary", Weight: 0.5, Keywords: []string{"alpha"}},
		{Name: "exclude", Weight: -100.0, Keywords: []string{"beta"}},
	}
	s := New(groups, 2.0)

	cases := []paper.VerifiedCandidate{
		verified(t, "alpha", "alpha"),
		verified(t, "beta", ""),
		verified(t, "alpha beta", "alpha beta"),
		verified(t, "", ""),
	}
	for _, vc := range cases {
		sc := s.Score(vc)
		if sc.Score < 0 || sc.Score > 1 {
			t.Errorf("Score(%q) = %v out of [0,1]", vc.Candidate.Title, sc.Score)
		}
	}
}

func TestScoreDeterministic(t *testing.T) {
	groups := []config.KeywordGroup{
		{Name: "primary", Weight: 3.0, Keywords: []string{"demand response", "load"}},
		{Name: "secondary", Weight: 2.0, Keywords: []string{"tariff"}},
	}
	s := New(groups, 2.0)
	vc := verified(t, "Demand Response under Dynamic Tariffs", "Load shifting and tariff design.")

	first := s.Score(vc)
	for i := 0; i < 20; i++ {
		again := s.Score(vc)
		if again.Score != first.Score || !reflect.DeepEqual(again.MatchedKeywords, first.MatchedKeywords) {
			t.Fatalf("run %d differed: %+v vs %+v", i, again, first)
		}
	}
}
