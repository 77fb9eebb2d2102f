// Package normalize maps adapter-specific records into the canonical
// Candidate shape.
package normalize

import (
	"strings"
	"time"

	"github.com/ldiehl/paperboy/internal/paper"
)

// Rejection explains why a raw record could not become a Candidate.
type Rejection struct {
	Source   string `json:"source"`
	SourceID string `json:"source_id,omitempty"`
	Reason   string `json:"reason"`
}

// dateLayouts are tried in order when parsing catalog-supplied dates.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 02 Jan 2006",
	"2 Jan 2006",
	"2006",
}

// Normalize converts a raw catalog record into a Candidate.
// It is a pure function: no I/O, no mutation of the input.
// Records missing both title and abstract are rejected (not an error)
// since they can never be scored.
func Normalize(rec paper.RawRecord, source string) (paper.Candidate, *Rejection) {
	title := CleanText(rec.Title)
	abstract := CleanText(rec.Abstract)

	if title == "" && abstract == "" {
		return paper.Candidate{}, &Rejection{
			Source:   source,
			SourceID: rec.SourceID,
			Reason:   "missing both title and abstract",
		}
	}

	authors := make([]string, 0, len(rec.Authors))
	for _, a := range rec.Authors {
		if a = CleanText(a); a != "" {
			authors = append(authors, a)
		}
	}

	return paper.Candidate{
		SourceID:   rec.SourceID,
		Title:      title,
		Abstract:   abstract,
		Authors:    authors,
		Identifier: NormalizeDOI(rec.DOI),
		URL:        rec.URL,
		Published:  parseDate(rec.Published),
		Source:     source,
	}, nil
}

// CleanText collapses all whitespace runs (including newlines embedded
// by XML feeds) into single spaces and trims the result.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeDOI lowercases a DOI and strips resolver URL prefixes and
// "doi:" scheme markers. Returns "" for anything that does not look
// like a DOI.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(doi, "https://doi.org/")
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "https://dx.doi.org/")
	doi = strings.TrimPrefix(doi, "http://dx.doi.org/")
	doi = strings.ToLower(doi)
	doi = strings.TrimPrefix(doi, "doi:")

	// DOIs are "10.<registrant>/<suffix>".
	if !strings.HasPrefix(doi, "10.") || !strings.Contains(doi, "/") {
		return ""
	}
	return doi
}

// parseDate attempts the known catalog date layouts, returning the zero
// time if none match. A missing date is not a rejection reason.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
