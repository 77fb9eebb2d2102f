package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ldiehl/paperboy/internal/paper"
)

const (
	arxivBaseURL = "http://export.arxiv.org/api/query"
	// The arXiv API terms ask for no more than one request every
	// three seconds.
	arxivRateLimit = 1.0 / 3.0

	arxivTimeout      = 30 * time.Second
	arxivMaxBodyBytes = 16 << 20
)

// DefaultArxivCategories are queried when the config lists none.
var DefaultArxivCategories = []string{
	"econ.TH", "econ.GN", "cs.GT", "q-fin.EC", "q-fin.GN",
}

// Arxiv fetches recent preprints from the arXiv Atom API, one query per
// configured category.
type Arxiv struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	categories []string
	maxResults int
}

// ArxivOption configures the adapter.
type ArxivOption func(*Arxiv)

// WithArxivHTTPClient sets a custom HTTP client.
func WithArxivHTTPClient(c *http.Client) ArxivOption {
	return func(a *Arxiv) { a.httpClient = c }
}

// WithArxivBaseURL overrides the API endpoint, used in tests.
func WithArxivBaseURL(u string) ArxivOption {
	return func(a *Arxiv) { a.baseURL = u }
}

// WithArxivRateLimit overrides the request rate, used in tests.
func WithArxivRateLimit(rps float64) ArxivOption {
	return func(a *Arxiv) { a.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

func NewArxiv(categories []string, maxResults int, opts ...ArxivOption) *Arxiv {
	if len(categories) == 0 {
		categories = DefaultArxivCategories
	}
	if maxResults <= 0 {
		maxResults = 100
	}
	a := &Arxiv{
		httpClient: &http.Client{Timeout: arxivTimeout},
		limiter:    rate.NewLimiter(rate.Limit(arxivRateLimit), 1),
		baseURL:    arxivBaseURL,
		categories: categories,
		maxResults: maxResults,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Arxiv) Name() string { return "arxiv" }

// Fetch queries each category sorted by submission date and merges the
// results. Papers cross-listed in several categories appear once.
func (a *Arxiv) Fetch(ctx context.Context, window paper.DateRange) ([]paper.RawRecord, error) {
	seen := make(map[string]bool)
	var records []paper.RawRecord
	for _, cat := range a.categories {
		entries, err := a.fetchCategory(ctx, cat)
		if err != nil {
			return nil, &FetchError{Source: a.Name(), Err: fmt.Errorf("category %s: %w", cat, err)}
		}
		for _, e := range entries {
			rec := e.toRecord()
			if rec.SourceID == "" || seen[rec.SourceID] {
				continue
			}
			seen[rec.SourceID] = true
			records = append(records, rec)
		}
	}
	return records, nil
}

func (a *Arxiv) fetchCategory(ctx context.Context, category string) ([]arxivEntry, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("search_query", "cat:"+category)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", a.maxResults))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, arxivMaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return feed.Entries, nil
}

// Atom response shapes. Only the fields the pipeline consumes are
// declared.
type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	DOI       string `xml:"doi"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		Href string `xml:"href,attr"`
		Type string `xml:"type,attr"`
	} `xml:"link"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
}

func (e arxivEntry) toRecord() paper.RawRecord {
	rec := paper.RawRecord{
		Title:     e.Title,
		Abstract:  e.Summary,
		DOI:       e.DOI,
		Published: e.Published,
	}
	for _, a := range e.Authors {
		rec.Authors = append(rec.Authors, a.Name)
	}
	for _, l := range e.Links {
		if i := strings.Index(l.Href, "/abs/"); i >= 0 {
			rec.URL = l.Href
			rec.SourceID = l.Href[i+len("/abs/"):]
		}
	}
	for _, c := range e.Categories {
		if c.Term != "" {
			rec.Categories = append(rec.Categories, c.Term)
		}
	}
	return rec
}
