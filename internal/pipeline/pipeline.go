// Package pipeline orchestrates a digest run: fetch, normalize,
// deduplicate, verify, score, assemble.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ldiehl/paperboy/internal/config"
	"github.com/ldiehl/paperboy/internal/dedupe"
	"github.com/ldiehl/paperboy/internal/digest"
	"github.com/ldiehl/paperboy/internal/normalize"
	"github.com/ldiehl/paperboy/internal/paper"
	"github.com/ldiehl/paperboy/internal/score"
	"github.com/ldiehl/paperboy/internal/source"
	"github.com/ldiehl/paperboy/internal/verify"
)

// Fatal run outcomes. Everything else degrades into run statistics.
var (
	// ErrNoCandidates means every enabled source failed or returned
	// nothing, so there was no work to verify.
	ErrNoCandidates = errors.New("no candidates collected from any source")

	// ErrNoConfirmed means candidates were collected but the registry
	// confirmed none of them. A run that confirms papers and then
	// filters them all out on relevance is not fatal.
	ErrNoConfirmed = errors.New("no candidates confirmed by the registry")
)

// Verifier is the verification stage contract.
type Verifier interface {
	Verify(ctx context.Context, candidates []paper.Candidate) verify.Result
}

// Archive is the slice of the history store the pipeline needs.
type Archive interface {
	SeenIdentifiers() (map[string]time.Time, error)
	SaveDigest(d *paper.Digest) (int64, error)
}

// Pipeline wires the stages of one digest run.
type Pipeline struct {
	cfg       *config.Config
	adapters  []source.Adapter
	verifier  Verifier
	scorer    *score.Scorer
	assembler *digest.Assembler
	archive   Archive
	log       *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithArchive enables cross-run deduplication and run persistence.
func WithArchive(a Archive) Option {
	return func(p *Pipeline) { p.archive = a }
}

func New(cfg *config.Config, adapters []source.Adapter, verifier Verifier, scorer *score.Scorer, assembler *digest.Assembler, log *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		adapters:  adapters,
		verifier:  verifier,
		scorer:    scorer,
		assembler: assembler,
		log:       log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Window returns the collection window ending now for a period.
func Window(period paper.Period, now time.Time) paper.DateRange {
	days := 1
	if period == paper.Weekly {
		days = 7
	}
	return paper.DateRange{From: now.AddDate(0, 0, -days), To: now}
}

// Run executes one digest run. The run-level timeout never discards
// progress: whatever was confirmed before the deadline becomes a
// partial digest.
func (p *Pipeline) Run(ctx context.Context, period paper.Period) (*paper.Digest, error) {
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.RunTimeout)*time.Second)
	defer cancel()

	window := Window(period, time.Now().UTC())
	p.log.Info("starting digest run", "period", period,
		"window_from", window.From.Format("2006-01-02"),
		"window_to", window.To.Format("2006-01-02"))

	var stats paper.RunStats

	raw := p.fetchAll(runCtx, window)
	stats.TotalSeen = len(raw)
	if len(raw) == 0 {
		return nil, ErrNoCandidates
	}

	candidates := p.normalizeAll(raw, window, &stats)

	seen := p.seenIdentifiers()
	deduper := dedupe.New(p.cfg.TrustPriorities(), p.cfg.Dedupe.TitleOverlap).WithHistory(seen)
	unique, dd := deduper.Dedupe(candidates)
	stats.DuplicatesCollapsed = dd.Collapsed
	stats.SeenPriorRuns = dd.SeenPriorRuns
	p.log.Info("deduplicated candidates", "unique", len(unique),
		"collapsed", dd.Collapsed, "seen_prior_runs", dd.SeenPriorRuns)

	result := p.verifier.Verify(runCtx, unique)
	for _, f := range result.Failures {
		switch f.Reason {
		case verify.NoMatch:
			stats.NoMatch++
		case verify.AmbiguousMatch:
			stats.AmbiguousMatch++
		case verify.RegistryUnavailable:
			stats.RegistryUnavailable++
		}
	}
	stats.TotalConfirmed = len(result.Verified)
	p.log.Info("verified candidates", "confirmed", stats.TotalConfirmed,
		"no_match", stats.NoMatch, "ambiguous", stats.AmbiguousMatch,
		"registry_unavailable", stats.RegistryUnavailable)
	if stats.TotalConfirmed == 0 {
		return nil, ErrNoConfirmed
	}

	minScore := p.cfg.MinScoreFor(string(period))
	var relevant []paper.ScoredCandidate
	for _, sc := range p.scorer.ScoreAll(result.Verified) {
		if sc.Score < minScore {
			stats.BelowMinScore++
			continue
		}
		relevant = append(relevant, sc)
	}
	p.log.Info("scored candidates", "relevant", len(relevant),
		"below_min_score", stats.BelowMinScore, "min_score", minScore)

	timedOut := runCtx.Err() != nil
	assembleCtx := runCtx
	if timedOut {
		// Grant assembly a short grace window so fallback summaries
		// and persistence still complete.
		var graceCancel context.CancelFunc
		assembleCtx, graceCancel = context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer graceCancel()
		p.log.Warn("run deadline reached, assembling partial digest")
	}

	d := p.assembler.Assemble(assembleCtx, period, relevant, stats)
	d.Partial = timedOut

	if p.archive != nil && len(d.Entries) > 0 {
		if _, err := p.archive.SaveDigest(d); err != nil {
			p.log.Error("archiving digest failed", "error", err)
		}
	}
	return d, nil
}

// fetchAll queries every adapter concurrently. One failing catalog
// never aborts the run; its records are simply absent.
func (p *Pipeline) fetchAll(ctx context.Context, window paper.DateRange) []rawBatch {
	fetchTimeout := time.Duration(p.cfg.Sources.FetchTimeout) * time.Second
	batches := make([][]paper.RawRecord, len(p.adapters))

	var g errgroup.Group
	for i, a := range p.adapters {
		i, a := i, a
		g.Go(func() error {
			actx, cancel := context.WithTimeout(ctx, fetchTimeout)
			defer cancel()

			records, err := a.Fetch(actx, window)
			if err != nil {
				p.log.Error("source fetch failed", "source", a.Name(), "error", err)
				return nil
			}
			p.log.Info("fetched records", "source", a.Name(), "count", len(records))
			batches[i] = records
			return nil
		})
	}
	g.Wait()

	var all []rawBatch
	for i, records := range batches {
		for _, rec := range records {
			all = append(all, rawBatch{record: rec, source: p.adapters[i].Name()})
		}
	}
	return all
}

type rawBatch struct {
	record paper.RawRecord
	source string
}

func (p *Pipeline) normalizeAll(raw []rawBatch, window paper.DateRange, stats *paper.RunStats) []paper.Candidate {
	var candidates []paper.Candidate
	for _, rb := range raw {
		c, rej := normalize.Normalize(rb.record, rb.source)
		if rej != nil {
			stats.NormalizeRejected++
			p.log.Debug("rejected record", "source", rej.Source,
				"source_id", rej.SourceID, "reason", rej.Reason)
			continue
		}
		if !window.Contains(c.Published) {
			stats.NormalizeRejected++
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates
}

func (p *Pipeline) seenIdentifiers() map[string]time.Time {
	if p.archive == nil {
		return nil
	}
	seen, err := p.archive.SeenIdentifiers()
	if err != nil {
		// A broken archive degrades to within-run dedup only.
		p.log.Error("loading digest history failed", "error", err)
		return nil
	}
	return seen
}
