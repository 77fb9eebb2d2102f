// Package digest assembles the final ordered digest from scored,
// verified candidates.
package digest

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ldiehl/paperboy/internal/paper"
)

// Summarizer produces entry summaries and the digest introduction.
// A nil Summarizer or a failing call never blocks assembly: the entry
// falls back to a truncated abstract.
type Summarizer interface {
	Summarize(ctx context.Context, sc paper.ScoredCandidate) (string, error)
	Intro(ctx context.Context, period paper.Period, entries []paper.ScoredCandidate) (string, error)
}

const (
	DefaultMaxEntries     = 15
	DefaultSummaryTimeout = 30 * time.Second
	DefaultFallbackLength = 300
)

// Assembler turns scored candidates into a digest.
type Assembler struct {
	summarizer     Summarizer
	log            *slog.Logger
	maxEntries     int
	summaryTimeout time.Duration
	fallbackLength int
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithSummarizer enables model-generated summaries and intros.
func WithSummarizer(s Summarizer) Option {
	return func(a *Assembler) { a.summarizer = s }
}

// WithMaxEntries caps the number of digest entries.
func WithMaxEntries(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.maxEntries = n
		}
	}
}

// WithSummaryTimeout bounds each per-entry summarization call.
func WithSummaryTimeout(d time.Duration) Option {
	return func(a *Assembler) {
		if d > 0 {
			a.summaryTimeout = d
		}
	}
}

// WithFallbackLength sets the truncated-abstract length used when
// summarization fails.
func WithFallbackLength(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.fallbackLength = n
		}
	}
}

func New(log *slog.Logger, opts ...Option) *Assembler {
	a := &Assembler{
		log:            log,
		maxEntries:     DefaultMaxEntries,
		summaryTimeout: DefaultSummaryTimeout,
		fallbackLength: DefaultFallbackLength,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble sorts candidates by score (identifier breaks ties so equal
// scores order the same way every run), keeps the top entries, and
// summarizes each one. Stats arrive pre-populated by the pipeline;
// assembly fills in the summary fallback count.
func (a *Assembler) Assemble(ctx context.Context, period paper.Period, scored []paper.ScoredCandidate, stats paper.RunStats) *paper.Digest {
	ordered := make([]paper.ScoredCandidate, len(scored))
	copy(ordered, scored)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		return ordered[i].Identifier < ordered[j].Identifier
	})
	if len(ordered) > a.maxEntries {
		ordered = ordered[:a.maxEntries]
	}

	entries := make([]paper.Entry, 0, len(ordered))
	for _, sc := range ordered {
		summary, fallback := a.summarize(ctx, sc)
		if fallback {
			stats.SummaryFallbacks++
		}
		entries = append(entries, paper.Entry{
			ScoredCandidate: sc,
			Summary:         summary,
			SummaryFallback: fallback,
		})
	}

	d := &paper.Digest{
		Period:        period,
		GeneratedAt:   time.Now().UTC(),
		Entries:       entries,
		Stats:         stats,
		TotalRejected: stats.TotalRejected(),
	}
	d.Intro = a.intro(ctx, period, ordered)
	return d
}

func (a *Assembler) summarize(ctx context.Context, sc paper.ScoredCandidate) (string, bool) {
	if a.summarizer == nil {
		return a.fallbackSummary(sc), true
	}

	sctx, cancel := context.WithTimeout(ctx, a.summaryTimeout)
	defer cancel()

	summary, err := a.summarizer.Summarize(sctx, sc)
	if err != nil || summary == "" {
		if err != nil {
			a.log.Warn("summarization failed, using abstract",
				"identifier", sc.Identifier, "error", err)
		}
		return a.fallbackSummary(sc), true
	}
	return summary, false
}

// fallbackSummary is the first sentences of the abstract, truncated.
// A degraded summary is still a real entry: verification already
// confirmed the paper exists.
func (a *Assembler) fallbackSummary(sc paper.ScoredCandidate) string {
	abstract := strings.TrimSpace(sc.Candidate.Abstract)
	if abstract == "" {
		return "No abstract available."
	}

	sentences := strings.SplitAfter(abstract, ". ")
	summary := strings.TrimSpace(strings.Join(sentences[:min(2, len(sentences))], ""))
	return truncate(summary, a.fallbackLength)
}

// truncate shortens s to at most maxLen bytes without splitting a
// UTF-8 rune, appending an ellipsis. Lengths below 4 leave no room for
// content plus ellipsis and are floored.
func truncate(s string, maxLen int) string {
	if maxLen < 4 {
		maxLen = 4
	}
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func (a *Assembler) intro(ctx context.Context, period paper.Period, entries []paper.ScoredCandidate) string {
	if a.summarizer == nil || len(entries) == 0 {
		return ""
	}

	ictx, cancel := context.WithTimeout(ctx, a.summaryTimeout)
	defer cancel()

	intro, err := a.summarizer.Intro(ictx, period, entries)
	if err != nil {
		a.log.Warn("digest intro generation failed", "error", err)
		return ""
	}
	return intro
}
