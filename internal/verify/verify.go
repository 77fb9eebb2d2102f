// Package verify confirms candidate papers against the Crossref registry.
// A candidate enters the digest only after its identifier resolves, or a
// title search finds an unambiguous match whose title is close enough to
// the candidate's own.
package verify

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ldiehl/paperboy/internal/crossref"
	"github.com/ldiehl/paperboy/internal/dedupe"
	"github.com/ldiehl/paperboy/internal/paper"
)

// Registry is the slice of the Crossref client the verifier needs.
type Registry interface {
	Resolve(ctx context.Context, doi string) (*crossref.Work, error)
	Search(ctx context.Context, title, author string) ([]crossref.Work, error)
}

// Reason classifies why a candidate failed verification.
type Reason int

const (
	NoMatch Reason = iota
	AmbiguousMatch
	RegistryUnavailable
)

func (r Reason) String() string {
	switch r {
	case NoMatch:
		return "no_match"
	case AmbiguousMatch:
		return "ambiguous_match"
	case RegistryUnavailable:
		return "registry_unavailable"
	default:
		return "unknown"
	}
}

// Failure records a candidate that did not survive verification.
type Failure struct {
	Candidate paper.Candidate
	Reason    Reason
	Err       error
}

// Result holds the outcome of verifying a batch.
type Result struct {
	Verified []paper.VerifiedCandidate
	Failures []Failure
}

const (
	DefaultMaxAttempts   = 3
	DefaultBackoffBase   = 500 * time.Millisecond
	DefaultBackoffMax    = 10 * time.Second
	DefaultConcurrency   = 5
	DefaultMinSimilarity = 0.9
)

// Verifier checks candidates against a registry with bounded concurrency
// and retries transient registry errors before giving up.
type Verifier struct {
	registry      Registry
	log           *slog.Logger
	maxAttempts   int
	backoffBase   time.Duration
	backoffMax    time.Duration
	concurrency   int
	minSimilarity float64
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithRetry sets the retry budget for transient registry errors.
func WithRetry(attempts int, base, max time.Duration) Option {
	return func(v *Verifier) {
		if attempts > 0 {
			v.maxAttempts = attempts
		}
		if base > 0 {
			v.backoffBase = base
		}
		if max > 0 {
			v.backoffMax = max
		}
	}
}

// WithConcurrency bounds the number of in-flight registry lookups.
func WithConcurrency(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

// WithMinSimilarity sets the title-overlap threshold a search hit must
// meet to count as a match.
func WithMinSimilarity(s float64) Option {
	return func(v *Verifier) {
		if s > 0 {
			v.minSimilarity = s
		}
	}
}

func New(registry Registry, log *slog.Logger, opts ...Option) *Verifier {
	v := &Verifier{
		registry:      registry,
		log:           log,
		maxAttempts:   DefaultMaxAttempts,
		backoffBase:   DefaultBackoffBase,
		backoffMax:    DefaultBackoffMax,
		concurrency:   DefaultConcurrency,
		minSimilarity: DefaultMinSimilarity,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify runs every candidate through the registry. Output order is
// stable for a given input order regardless of which lookups finish
// first.
func (v *Verifier) Verify(ctx context.Context, candidates []paper.Candidate) Result {
	type outcome struct {
		verified *paper.VerifiedCandidate
		failure  *Failure
	}
	outcomes := make([]outcome, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			vc, fail := v.verifyOne(ctx, c)
			if fail != nil {
				outcomes[i] = outcome{failure: fail}
			} else {
				outcomes[i] = outcome{verified: vc}
			}
			return nil
		})
	}
	g.Wait()

	var res Result
	for _, o := range outcomes {
		switch {
		case o.verified != nil:
			res.Verified = append(res.Verified, *o.verified)
		case o.failure != nil:
			res.Failures = append(res.Failures, *o.failure)
		}
	}
	return res
}

func (v *Verifier) verifyOne(ctx context.Context, c paper.Candidate) (*paper.VerifiedCandidate, *Failure) {
	if c.Identifier != "" {
		return v.resolveDirect(ctx, c)
	}
	return v.discover(ctx, c)
}

func (v *Verifier) resolveDirect(ctx context.Context, c paper.Candidate) (*paper.VerifiedCandidate, *Failure) {
	work, err := withRetry(ctx, v, func() (*crossref.Work, error) {
		return v.registry.Resolve(ctx, c.Identifier)
	})
	if err != nil {
		if crossref.IsNotFound(err) {
			v.log.Debug("identifier did not resolve", "identifier", c.Identifier, "title", c.Title)
			return nil, &Failure{Candidate: c, Reason: NoMatch, Err: err}
		}
		return nil, &Failure{Candidate: c, Reason: RegistryUnavailable, Err: err}
	}

	vc, err := paper.NewVerified(c, work.DOI)
	if err != nil {
		return nil, &Failure{Candidate: c, Reason: NoMatch, Err: err}
	}
	return &vc, nil
}

func (v *Verifier) discover(ctx context.Context, c paper.Candidate) (*paper.VerifiedCandidate, *Failure) {
	author := ""
	if len(c.Authors) > 0 {
		author = c.Authors[0]
	}

	works, err := withRetry(ctx, v, func() ([]crossref.Work, error) {
		return v.registry.Search(ctx, c.Title, author)
	})
	if err != nil {
		if crossref.IsNotFound(err) {
			return nil, &Failure{Candidate: c, Reason: NoMatch, Err: err}
		}
		return nil, &Failure{Candidate: c, Reason: RegistryUnavailable, Err: err}
	}

	matches := v.closeMatches(c.Title, works)
	switch len(matches) {
	case 0:
		return nil, &Failure{Candidate: c, Reason: NoMatch}
	case 1:
		vc, err := paper.NewVerified(c, matches[0].DOI)
		if err != nil {
			return nil, &Failure{Candidate: c, Reason: NoMatch, Err: err}
		}
		return &vc, nil
	default:
		v.log.Debug("multiple close registry matches", "title", c.Title, "count", len(matches))
		return nil, &Failure{Candidate: c, Reason: AmbiguousMatch}
	}
}

// closeMatches returns the search hits whose titles overlap the
// candidate's above the similarity threshold, best first. Hits without
// a DOI cannot confirm anything and are skipped.
func (v *Verifier) closeMatches(title string, works []crossref.Work) []crossref.Work {
	type scored struct {
		work crossref.Work
		sim  float64
	}
	var hits []scored
	for _, w := range works {
		if w.DOI == "" {
			continue
		}
		sim := dedupe.TokenOverlap(dedupe.NormalizeTitle(title), dedupe.NormalizeTitle(w.PrimaryTitle()))
		if sim >= v.minSimilarity {
			hits = append(hits, scored{work: w, sim: sim})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].sim > hits[j].sim })

	// An exact duplicate record in the registry is still one paper.
	out := make([]crossref.Work, 0, len(hits))
	seen := make(map[string]bool, len(hits))
	for _, s := range hits {
		if seen[s.work.DOI] {
			continue
		}
		seen[s.work.DOI] = true
		out = append(out, s.work)
	}
	return out
}

// withRetry retries fn on transient registry errors with doubling
// backoff. Non-transient errors and context cancellation return
// immediately.
func withRetry[T any](ctx context.Context, v *Verifier, fn func() (T, error)) (T, error) {
	var zero T
	delay := v.backoffBase
	var lastErr error
	for attempt := 1; attempt <= v.maxAttempts; attempt++ {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !crossref.IsTransient(err) || attempt == v.maxAttempts {
			return zero, err
		}
		v.log.Debug("registry lookup failed, retrying",
			"attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return zero, errors.Join(lastErr, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
		if delay > v.backoffMax {
			delay = v.backoffMax
		}
	}
	return zero, lastErr
}
