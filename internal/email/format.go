// Package email formats assembled digests and delivers them through
// the SendGrid mail API.
package email

import (
	"fmt"
	"html"
	"strings"

	"github.com/ldiehl/paperboy/internal/paper"
)

// Subject builds the digest subject line.
func Subject(d *paper.Digest) string {
	date := d.GeneratedAt.Format("January 2, 2006")
	switch d.Period {
	case paper.Weekly:
		return "Weekly Research Digest - Week of " + date
	default:
		return "Research Digest - " + date
	}
}

// FormatHTML renders the digest as an HTML email body.
func FormatHTML(d *paper.Digest) string {
	var b strings.Builder
	b.WriteString("<html><body style=\"font-family: Georgia, serif; max-width: 680px; margin: 0 auto;\">\n")
	fmt.Fprintf(&b, "<h1>%s Research Digest</h1>\n", html.EscapeString(titleCase(string(d.Period))))
	fmt.Fprintf(&b, "<p style=\"color: #666;\">%s</p>\n", d.GeneratedAt.Format("Monday, January 2, 2006"))

	if d.Partial {
		b.WriteString("<p><em>This digest is partial: the run hit its time limit before every source finished.</em></p>\n")
	}
	if d.Intro != "" {
		fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(d.Intro))
	}

	if len(d.Entries) == 0 {
		b.WriteString("<p>No relevant papers found this time.</p>\n")
	}
	for i, e := range d.Entries {
		b.WriteString("<hr>\n")
		fmt.Fprintf(&b, "<h3>%d. <a href=\"%s\">%s</a></h3>\n",
			i+1, html.EscapeString(entryURL(e)), html.EscapeString(e.Candidate.Title))
		if len(e.Candidate.Authors) > 0 {
			fmt.Fprintf(&b, "<p style=\"color: #444;\">%s</p>\n",
				html.EscapeString(strings.Join(e.Candidate.Authors, ", ")))
		}
		fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(e.Summary))
		meta := fmt.Sprintf("DOI: %s · relevance %.2f", e.Identifier, e.Score)
		if len(e.MatchedKeywords) > 0 {
			meta += " · " + strings.Join(e.MatchedKeywords, ", ")
		}
		fmt.Fprintf(&b, "<p style=\"color: #999; font-size: 0.85em;\">%s</p>\n", html.EscapeString(meta))
	}

	b.WriteString("<hr>\n")
	fmt.Fprintf(&b, "<p style=\"color: #999; font-size: 0.8em;\">%d papers confirmed, %d rejected.</p>\n",
		d.Stats.TotalConfirmed, d.TotalRejected)
	b.WriteString("</body></html>\n")
	return b.String()
}

// FormatPlaintext renders the digest as a plain text fallback body.
func FormatPlaintext(d *paper.Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Research Digest — %s\n\n", titleCase(string(d.Period)), d.GeneratedAt.Format("January 2, 2006"))

	if d.Partial {
		b.WriteString("(partial digest: the run hit its time limit)\n\n")
	}
	if d.Intro != "" {
		b.WriteString(d.Intro + "\n\n")
	}
	if len(d.Entries) == 0 {
		b.WriteString("No relevant papers found this time.\n")
	}
	for i, e := range d.Entries {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e.Candidate.Title)
		if len(e.Candidate.Authors) > 0 {
			fmt.Fprintf(&b, "   %s\n", strings.Join(e.Candidate.Authors, ", "))
		}
		fmt.Fprintf(&b, "   %s\n", e.Summary)
		fmt.Fprintf(&b, "   %s (relevance %.2f)\n\n", entryURL(e), e.Score)
	}
	fmt.Fprintf(&b, "%d papers confirmed, %d rejected.\n", d.Stats.TotalConfirmed, d.TotalRejected)
	return b.String()
}

func entryURL(e paper.Entry) string {
	if e.Candidate.URL != "" {
		return e.Candidate.URL
	}
	return "https://doi.org/" + e.Identifier
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
