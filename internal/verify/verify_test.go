package verify

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ldiehl/paperboy/internal/crossref"
	"github.com/ldiehl/paperboy/internal/paper"
)

type fakeRegistry struct {
	mu          sync.Mutex
	resolveErrs map[string][]error
	works       map[string]*crossref.Work
	searchHits  map[string][]crossref.Work
	searchErr   error
	resolves    int
	searches    int
}

func (f *fakeRegistry) Resolve(ctx context.Context, doi string) (*crossref.Work, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves++
	if errs := f.resolveErrs[doi]; len(errs) > 0 {
		err := errs[0]
		f.resolveErrs[doi] = errs[1:]
		return nil, err
	}
	if w, ok := f.works[doi]; ok {
		return w, nil
	}
	return nil, crossref.ErrNotFound
}

func (f *fakeRegistry) Search(ctx context.Context, title, author string) ([]crossref.Work, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchHits[title], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry() Option {
	return WithRetry(3, time.Millisecond, 5*time.Millisecond)
}

func TestVerifyDirectResolve(t *testing.T) {
	reg := &fakeRegistry{
		works: map[string]*crossref.Work{
			"10.1/a": {DOI: "10.1/a", Title: []string{"Grid Storage Economics"}},
		},
	}
	v := New(reg, testLogger(), fastRetry())

	res := v.Verify(context.Background(), []paper.Candidate{
		{Title: "Grid Storage Economics", Identifier: "10.1/a", Source: "arxiv"},
	})

	if len(res.Failures) != 0 {
		t.Fatalf("failures: %+v", res.Failures)
	}
	if len(res.Verified) != 1 || res.Verified[0].Identifier != "10.1/a" {
		t.Fatalf("verified = %+v", res.Verified)
	}
}

func TestVerifyDiscoverByTitle(t *testing.T) {
	reg := &fakeRegistry{
		searchHits: map[string][]crossref.Work{
			"Carbon Pricing and Abatement": {
				{DOI: "10.2/b", Title: []string{"Carbon Pricing and Abatement"}},
				{DOI: "10.2/unrelated", Title: []string{"A Completely Different Subject Entirely"}},
			},
		},
	}
	v := New(reg, testLogger(), fastRetry())

	res := v.Verify(context.Background(), []paper.Candidate{
		{Title: "Carbon Pricing and Abatement", Authors: []string{"Ada Okafor"}, Source: "nber"},
	})

	if len(res.Verified) != 1 {
		t.Fatalf("verified = %+v, failures = %+v", res.Verified, res.Failures)
	}
	if res.Verified[0].Identifier != "10.2/b" {
		t.Errorf("Identifier = %q, want discovered DOI", res.Verified[0].Identifier)
	}
}

func TestVerifyAmbiguousMatch(t *testing.T) {
	reg := &fakeRegistry{
		searchHits: map[string][]crossref.Work{
			"Electricity Market Design": {
				{DOI: "10.3/a", Title: []string{"Electricity Market Design"}},
				{DOI: "10.3/b", Title: []string{"Electricity Market Design"}},
			},
		},
	}
	v := New(reg, testLogger(), fastRetry())

	res := v.Verify(context.Background(), []paper.Candidate{
		{Title: "Electricity Market Design", Source: "openalex"},
	})

	if len(res.Failures) != 1 || res.Failures[0].Reason != AmbiguousMatch {
		t.Fatalf("failures = %+v, want one ambiguous match", res.Failures)
	}
}

func TestVerifyNoMatch(t *testing.T) {
	reg := &fakeRegistry{
		searchHits: map[string][]crossref.Work{
			"Unindexed Preprint": {
				{DOI: "10.4/far", Title: []string{"Nothing Like The Query At All"}},
			},
		},
	}
	v := New(reg, testLogger(), fastRetry())

	res := v.Verify(context.Background(), []paper.Candidate{
		{Title: "Unindexed Preprint", Source: "nber"},
	})

	if len(res.Verified) != 0 {
		t.Fatalf("verified = %+v, want none", res.Verified)
	}
	if len(res.Failures) != 1 || res.Failures[0].Reason != NoMatch {
		t.Fatalf("failures = %+v, want one no-match", res.Failures)
	}
}

func TestVerifyRetriesTransientThenSucceeds(t *testing.T) {
	reg := &fakeRegistry{
		resolveErrs: map[string][]error{
			"10.5/a": {crossref.ErrRateLimited, crossref.ErrUnavailable},
		},
		works: map[string]*crossref.Work{
			"10.5/a": {DOI: "10.5/a", Title: []string{"Resilient Paper"}},
		},
	}
	v := New(reg, testLogger(), fastRetry())

	res := v.Verify(context.Background(), []paper.Candidate{
		{Title: "Resilient Paper", Identifier: "10.5/a"},
	})

	if len(res.Verified) != 1 {
		t.Fatalf("verified = %+v, failures = %+v", res.Verified, res.Failures)
	}
	if reg.resolves != 3 {
		t.Errorf("resolves = %d, want 3", reg.resolves)
	}
}

func TestVerifyRegistryUnavailableAfterRetries(t *testing.T) {
	reg := &fakeRegistry{
		resolveErrs: map[string][]error{
			"10.6/a": {crossref.ErrUnavailable, crossref.ErrUnavailable, crossref.ErrUnavailable},
		},
	}
	v := New(reg, testLogger(), fastRetry())

	res := v.Verify(context.Background(), []paper.Candidate{
		{Title: "Unlucky Paper", Identifier: "10.6/a"},
	})

	if len(res.Failures) != 1 || res.Failures[0].Reason != RegistryUnavailable {
		t.Fatalf("failures = %+v, want registry unavailable", res.Failures)
	}
	if reg.resolves != 3 {
		t.Errorf("resolves = %d, want 3 attempts then give up", reg.resolves)
	}
}

func TestVerifyNotFoundIsNotRetried(t *testing.T) {
	reg := &fakeRegistry{}
	v := New(reg, testLogger(), fastRetry())

	res := v.Verify(context.Background(), []paper.Candidate{
		{Title: "Ghost Paper", Identifier: "10.7/missing"},
	})

	if len(res.Failures) != 1 || res.Failures[0].Reason != NoMatch {
		t.Fatalf("failures = %+v, want no-match", res.Failures)
	}
	if reg.resolves != 1 {
		t.Errorf("resolves = %d, want 1 (no retry on not-found)", reg.resolves)
	}
}

func TestVerifyOrderStable(t *testing.T) {
	reg := &fakeRegistry{
		works: map[string]*crossref.Work{
			"10.8/a": {DOI: "10.8/a"},
			"10.8/b": {DOI: "10.8/b"},
			"10.8/c": {DOI: "10.8/c"},
			"10.8/d": {DOI: "10.8/d"},
		},
	}
	v := New(reg, testLogger(), fastRetry(), WithConcurrency(4))

	batch := []paper.Candidate{
		{Title: "A", Identifier: "10.8/a"},
		{Title: "B", Identifier: "10.8/b"},
		{Title: "C", Identifier: "10.8/c"},
		{Title: "D", Identifier: "10.8/d"},
	}

	first := v.Verify(context.Background(), batch)
	for i := 0; i < 10; i++ {
		again := v.Verify(context.Background(), batch)
		if !reflect.DeepEqual(first.Verified, again.Verified) {
			t.Fatalf("run %d produced different order:\n%+v\n%+v", i, again.Verified, first.Verified)
		}
	}
}

func TestVerifyMixedBatch(t *testing.T) {
	reg := &fakeRegistry{
		works: map[string]*crossref.Work{
			"10.9/good": {DOI: "10.9/good"},
		},
		searchHits: map[string][]crossref.Work{},
	}
	v := New(reg, testLogger(), fastRetry())

	res := v.Verify(context.Background(), []paper.Candidate{
		{Title: "Good", Identifier: "10.9/good"},
		{Title: "Nowhere To Be Found"},
	})

	if len(res.Verified) != 1 || len(res.Failures) != 1 {
		t.Fatalf("verified = %d, failures = %d, want 1 and 1", len(res.Verified), len(res.Failures))
	}
	if res.Failures[0].Reason != NoMatch {
		t.Errorf("Reason = %v, want NoMatch", res.Failures[0].Reason)
	}
}
