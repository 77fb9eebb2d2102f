// Package dedupe collapses candidates that refer to the same underlying
// work, both within a run and against identifiers confirmed in prior runs.
package dedupe

import (
	"strings"
	"time"
	"unicode"

	"github.com/ldiehl/paperboy/internal/paper"
)

// DefaultTitleOverlap is the token-set similarity above which two titles
// are treated as the same work when authors also overlap.
const DefaultTitleOverlap = 0.9

// Deduper collapses equivalent candidates. It is deterministic: the same
// input sequence always yields the same survivors in the same order.
type Deduper struct {
	trust        map[string]int       // adapter tag -> configured trust priority
	titleOverlap float64              // fuzzy threshold
	seen         map[string]time.Time // identifiers confirmed in prior runs
}

// Result reports what Dedupe removed.
type Result struct {
	Collapsed     int // within-run duplicates merged away
	SeenPriorRuns int // dropped because a prior run already confirmed the identifier
}

// New creates a Deduper with the given per-source trust priorities.
// A zero titleOverlap selects DefaultTitleOverlap.
func New(trust map[string]int, titleOverlap float64) *Deduper {
	if titleOverlap <= 0 {
		titleOverlap = DefaultTitleOverlap
	}
	return &Deduper{trust: trust, titleOverlap: titleOverlap}
}

// WithHistory installs the read-only cross-run identifier snapshot.
// Cross-run exclusion is identifier-based only; fuzzy title matching is
// applied within a single run.
func (d *Deduper) WithHistory(seen map[string]time.Time) *Deduper {
	d.seen = seen
	return d
}

// Dedupe returns one representative per equivalence class, preserving
// first-encounter order of the classes.
func (d *Deduper) Dedupe(candidates []paper.Candidate) ([]paper.Candidate, Result) {
	var res Result
	survivors := make([]paper.Candidate, 0, len(candidates))

	for _, c := range candidates {
		if c.Identifier != "" && d.seen != nil {
			if _, ok := d.seen[c.Identifier]; ok {
				res.SeenPriorRuns++
				continue
			}
		}

		matched := false
		for i := range survivors {
			if !d.equivalent(survivors[i], c) {
				continue
			}
			survivors[i] = merge(d.trust, survivors[i], c)
			res.Collapsed++
			matched = true
			break
		}
		if !matched {
			survivors = append(survivors, c)
		}
	}

	return survivors, res
}

// equivalent reports whether two candidates refer to the same work.
func (d *Deduper) equivalent(a, b paper.Candidate) bool {
	if a.Identifier != "" && b.Identifier != "" {
		return a.Identifier == b.Identifier
	}

	at, bt := NormalizeTitle(a.Title), NormalizeTitle(b.Title)
	if at != "" && at == bt {
		return true
	}

	// Near-duplicates across catalogs (a working paper later posted as a
	// preprint) rarely share byte-identical titles. Require author overlap
	// as a guard before trusting fuzzy similarity.
	if TokenOverlap(at, bt) >= d.titleOverlap && authorsOverlap(a.Authors, b.Authors) {
		return true
	}
	return false
}

// merge picks the surviving representative of two equivalent candidates.
// Preference order: higher source trust, then a non-empty identifier,
// then the earliest published date, then the incumbent. The survivor
// adopts the other's identifier when it has none of its own, so a
// resolved DOI is never lost in a collapse.
func merge(trust map[string]int, incumbent, challenger paper.Candidate) paper.Candidate {
	winner, loser := incumbent, challenger
	if prefer(trust, challenger, incumbent) {
		winner, loser = challenger, incumbent
	}
	if winner.Identifier == "" && loser.Identifier != "" {
		winner.Identifier = loser.Identifier
	}
	return winner
}

// prefer reports whether a should survive over b.
func prefer(trust map[string]int, a, b paper.Candidate) bool {
	if ta, tb := trust[a.Source], trust[b.Source]; ta != tb {
		return ta > tb
	}
	if (a.Identifier != "") != (b.Identifier != "") {
		return a.Identifier != ""
	}
	switch {
	case a.Published.IsZero():
		return false
	case b.Published.IsZero():
		return true
	default:
		return a.Published.Before(b.Published)
	}
}

// NormalizeTitle case-folds a title, strips punctuation, and collapses
// whitespace, yielding the canonical within-run comparison key.
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// TokenOverlap computes Jaccard similarity between the token sets of
// two normalized titles. Empty titles never match.
func TokenOverlap(a, b string) float64 {
	as, bs := tokenSet(a), tokenSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}

	inter := 0
	for tok := range as {
		if bs[tok] {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

// authorsOverlap reports whether the two author lists share at least one
// surname (the last whitespace-separated token, case-folded).
func authorsOverlap(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	surnames := make(map[string]bool, len(a))
	for _, name := range a {
		if s := surname(name); s != "" {
			surnames[s] = true
		}
	}
	for _, name := range b {
		if surnames[surname(name)] {
			return true
		}
	}
	return false
}

func surname(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
