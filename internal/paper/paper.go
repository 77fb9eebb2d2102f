// Package paper defines the core domain types for the digest pipeline.
package paper

import (
	"errors"
	"time"
)

// RawRecord is a paper record exactly as a source catalog returned it,
// before any normalization. All fields are optional; catalogs disagree
// wildly about what they supply.
type RawRecord struct {
	SourceID   string   `json:"source_id"` // catalog accession number (arXiv ID, OpenAlex ID, NBER number)
	Title      string   `json:"title"`
	Abstract   string   `json:"abstract"`
	Authors    []string `json:"authors"` // order as published
	DOI        string   `json:"doi,omitempty"`
	URL        string   `json:"url,omitempty"`
	Published  string   `json:"published,omitempty"` // catalog-supplied date string
	Categories []string `json:"categories,omitempty"`
}

// Candidate is a paper record after normalization, before verification.
// A Candidate is immutable once built: later stages produce new, enriched
// records rather than mutating in place.
type Candidate struct {
	SourceID   string    `json:"source_id"`
	Title      string    `json:"title"`
	Abstract   string    `json:"abstract"`
	Authors    []string  `json:"authors"`
	Identifier string    `json:"identifier,omitempty"` // normalized DOI, empty until resolved
	URL        string    `json:"url,omitempty"`
	Published  time.Time `json:"published,omitempty"` // zero if the catalog gave no date
	Source     string    `json:"source"`              // originating adapter tag
}

// VerificationStatus marks the outcome of registry verification.
type VerificationStatus string

// Confirmed is the only status that ever reaches scoring.
const Confirmed VerificationStatus = "confirmed"

// ErrEmptyIdentifier is returned by NewVerified for an unresolved candidate.
var ErrEmptyIdentifier = errors.New("verified candidate requires a non-empty identifier")

// VerifiedCandidate is a Candidate whose identifier has been resolved
// against the registry. Construct only via NewVerified so that no code
// path produces a digest entry without a confirmed identifier.
type VerifiedCandidate struct {
	Candidate  Candidate          `json:"candidate"`
	Identifier string             `json:"identifier"` // resolved DOI, never empty
	Status     VerificationStatus `json:"status"`
}

// NewVerified builds a VerifiedCandidate, rejecting empty identifiers.
func NewVerified(c Candidate, identifier string) (VerifiedCandidate, error) {
	if identifier == "" {
		return VerifiedCandidate{}, ErrEmptyIdentifier
	}
	return VerifiedCandidate{
		Candidate:  c,
		Identifier: identifier,
		Status:     Confirmed,
	}, nil
}

// ScoredCandidate is a VerifiedCandidate plus its relevance score.
// Score is a pure function of the text fields and the topical profile,
// always within [0,1].
type ScoredCandidate struct {
	VerifiedCandidate
	Score           float64  `json:"score"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"` // sorted, for explainability
}

// Period selects the digest cadence.
type Period string

const (
	Daily  Period = "daily"
	Weekly Period = "weekly"
)

// DateRange is the half-open collection window [From, To).
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window. A zero t is
// accepted: sources that omit dates still contribute candidates.
func (r DateRange) Contains(t time.Time) bool {
	if t.IsZero() {
		return true
	}
	return !t.Before(r.From) && t.Before(r.To)
}

// Entry is one digest item: a scored candidate plus its summary.
type Entry struct {
	ScoredCandidate
	Summary         string `json:"summary"`
	SummaryFallback bool   `json:"summary_fallback,omitempty"` // truncated abstract used
}

// RunStats records where every candidate of a run ended up. Rejected
// counts are split so infrastructure flakiness (registry outages) is
// never conflated with content-based rejection.
type RunStats struct {
	TotalSeen           int `json:"total_candidates_seen"`
	NormalizeRejected   int `json:"normalize_rejected"`
	DuplicatesCollapsed int `json:"duplicates_collapsed"`
	SeenPriorRuns       int `json:"seen_prior_runs"`
	NoMatch             int `json:"verify_no_match"`
	AmbiguousMatch      int `json:"verify_ambiguous_match"`
	RegistryUnavailable int `json:"registry_unavailable"`
	BelowMinScore       int `json:"below_min_score"`
	TotalConfirmed      int `json:"total_confirmed"`
	SummaryFallbacks    int `json:"summary_fallbacks"`
}

// TotalRejected is the count of content-based rejections. Candidates
// classified RegistryUnavailable are excluded: those are infrastructure
// failures, not judgments about the paper.
func (s RunStats) TotalRejected() int {
	return s.NormalizeRejected + s.NoMatch + s.AmbiguousMatch + s.BelowMinScore
}

// Digest is the ordered, verified, scored, summarized output of one run.
// It is created once per run and never mutated after assembly.
type Digest struct {
	Period        Period    `json:"period"`
	GeneratedAt   time.Time `json:"generated_at"`
	Partial       bool      `json:"partial,omitempty"` // run timed out, built from confirmed work so far
	Intro         string    `json:"intro,omitempty"`
	Entries       []Entry   `json:"entries"`
	Stats         RunStats  `json:"stats"`
	TotalRejected int       `json:"total_rejected"`
}
