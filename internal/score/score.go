// Package score ranks verified candidates against a keyword profile.
// Scores are normalized to [0, 1] so thresholds stay meaningful when
// the profile changes shape.
package score

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/ldiehl/paperboy/internal/config"
	"github.com/ldiehl/paperboy/internal/paper"
)

// DefaultTitleMultiplier boosts a keyword group whose match appears in
// the title rather than only in the abstract.
const DefaultTitleMultiplier = 2.0

// Scorer matches keyword groups against titles and abstracts and turns
// the weighted hits into a normalized relevance score.
type Scorer struct {
	groups          []group
	titleMultiplier float64
	maxAttainable   float64
}

type group struct {
	name     string
	weight   float64
	patterns []keywordPattern
}

type keywordPattern struct {
	keyword string
	re      *regexp.Regexp
}

var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

// compileKeyword builds a case-insensitive whole-word pattern for a
// keyword phrase. "grid" must not match "gridlock".
func compileKeyword(kw string) *regexp.Regexp {
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[kw]; ok {
		return re
	}
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
	patternCache[kw] = re
	return re
}

// New builds a Scorer from profile keyword groups. The maximum
// attainable score is the sum of every positive group's weight at the
// title multiplier; exclusion groups only ever subtract.
func New(groups []config.KeywordGroup, titleMultiplier float64) *Scorer {
	if titleMultiplier <= 0 {
		titleMultiplier = DefaultTitleMultiplier
	}
	s := &Scorer{titleMultiplier: titleMultiplier}
	for _, g := range groups {
		cg := group{name: g.Name, weight: g.Weight}
		for _, kw := range g.Keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			cg.patterns = append(cg.patterns, keywordPattern{keyword: kw, re: compileKeyword(kw)})
		}
		if len(cg.patterns) == 0 {
			continue
		}
		s.groups = append(s.groups, cg)
		if g.Weight > 0 {
			s.maxAttainable += g.Weight * titleMultiplier
		}
	}
	return s
}

// Score evaluates one candidate. A group contributes once no matter how
// many of its keywords hit; the strongest location (title beats
// abstract) sets the multiplier. The raw total is divided by the
// maximum attainable and clamped to [0, 1].
func (s *Scorer) Score(vc paper.VerifiedCandidate) paper.ScoredCandidate {
	title := vc.Candidate.Title
	abstract := vc.Candidate.Abstract

	var raw float64
	matched := map[string]bool{}
	for _, g := range s.groups {
		inTitle, inAbstract := false, false
		for _, p := range g.patterns {
			hitTitle := p.re.MatchString(title)
			hitAbstract := p.re.MatchString(abstract)
			// Exclusion terms affect the score but are not relevance
			// matches, so they stay out of the explainability field.
			if (hitTitle || hitAbstract) && g.weight > 0 {
				matched[p.keyword] = true
			}
			inTitle = inTitle || hitTitle
			inAbstract = inAbstract || hitAbstract
		}
		switch {
		case inTitle:
			raw += g.weight * s.titleMultiplier
		case inAbstract:
			raw += g.weight
		}
	}

	score := 0.0
	if s.maxAttainable > 0 {
		score = raw / s.maxAttainable
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	keywords := make([]string, 0, len(matched))
	for kw := range matched {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)

	return paper.ScoredCandidate{
		VerifiedCandidate: vc,
		Score:             score,
		MatchedKeywords:   keywords,
	}
}

// ScoreAll scores a batch, preserving input order.
func (s *Scorer) ScoreAll(batch []paper.VerifiedCandidate) []paper.ScoredCandidate {
	out := make([]paper.ScoredCandidate, 0, len(batch))
	for _, vc := range batch {
		out = append(out, s.Score(vc))
	}
	return out
}
