package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ldiehl/paperboy/internal/paper"
)

const (
	openAlexBaseURL   = "https://api.openalex.org"
	openAlexRateLimit = 5.0
	openAlexTimeout   = 90 * time.Second

	openAlexMaxBodyBytes = 16 << 20
	openAlexIDPrefix     = "https://openalex.org/"
	maxAbstractChars     = 2000
)

// OpenAlex fetches recent journal articles from the OpenAlex works API,
// one query per monitored journal.
type OpenAlex struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	mailto     string
	journals   []string
	maxResults int
}

// OpenAlexOption configures the adapter.
type OpenAlexOption func(*OpenAlex)

func WithOpenAlexHTTPClient(c *http.Client) OpenAlexOption {
	return func(o *OpenAlex) { o.httpClient = c }
}

func WithOpenAlexBaseURL(u string) OpenAlexOption {
	return func(o *OpenAlex) { o.baseURL = u }
}

func WithOpenAlexRateLimit(rps float64) OpenAlexOption {
	return func(o *OpenAlex) { o.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// NewOpenAlex builds the adapter. The mailto address routes requests to
// the OpenAlex polite pool and should be set in production.
func NewOpenAlex(journals []string, mailto string, maxResults int, opts ...OpenAlexOption) *OpenAlex {
	if maxResults <= 0 {
		maxResults = 100
	}
	o := &OpenAlex{
		httpClient: &http.Client{Timeout: openAlexTimeout},
		limiter:    rate.NewLimiter(rate.Limit(openAlexRateLimit), 1),
		baseURL:    openAlexBaseURL,
		mailto:     mailto,
		journals:   journals,
		maxResults: maxResults,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *OpenAlex) Name() string { return "openalex" }

// Fetch queries each monitored journal for works published inside the
// window. Works found through multiple journals appear once.
func (o *OpenAlex) Fetch(ctx context.Context, window paper.DateRange) ([]paper.RawRecord, error) {
	perJournal := o.maxResults
	if n := len(o.journals); n > 1 {
		perJournal = max(5, o.maxResults/n)
	}

	seen := make(map[string]bool)
	var records []paper.RawRecord
	for _, journal := range o.journals {
		works, err := o.fetchJournal(ctx, journal, window, perJournal)
		if err != nil {
			return nil, &FetchError{Source: o.Name(), Err: fmt.Errorf("journal %q: %w", journal, err)}
		}
		for _, w := range works {
			rec := w.toRecord()
			if rec.SourceID == "" || seen[rec.SourceID] {
				continue
			}
			seen[rec.SourceID] = true
			records = append(records, rec)
		}
	}
	return records, nil
}

func (o *OpenAlex) fetchJournal(ctx context.Context, journal string, window paper.DateRange, limit int) ([]openAlexWork, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	filter := fmt.Sprintf("primary_location.source.display_name.search:%s,from_publication_date:%s,to_publication_date:%s",
		journal, window.From.Format("2006-01-02"), window.To.Format("2006-01-02"))

	params := url.Values{}
	params.Set("filter", filter)
	params.Set("sort", "publication_date:desc")
	params.Set("per-page", fmt.Sprintf("%d", limit))
	if o.mailto != "" {
		params.Set("mailto", o.mailto)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/works?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if o.mailto != "" {
		req.Header.Set("User-Agent", fmt.Sprintf("paperboy/1.0 (mailto:%s)", o.mailto))
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, openAlexMaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var page struct {
		Results []openAlexWork `json:"results"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return page.Results, nil
}

type openAlexWork struct {
	ID                    string           `json:"id"`
	Title                 string           `json:"title"`
	DOI                   string           `json:"doi"`
	PublicationDate       string           `json:"publication_date"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	Authorships           []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	PrimaryLocation struct {
		Source struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
	Concepts []struct {
		DisplayName string `json:"display_name"`
	} `json:"concepts"`
}

func (w openAlexWork) toRecord() paper.RawRecord {
	rec := paper.RawRecord{
		SourceID:  strings.TrimPrefix(w.ID, openAlexIDPrefix),
		Title:     w.Title,
		Abstract:  reconstructAbstract(w.AbstractInvertedIndex),
		DOI:       w.DOI,
		Published: w.PublicationDate,
	}
	rec.URL = w.DOI
	if rec.URL == "" {
		rec.URL = w.ID
	}
	for _, a := range w.Authorships {
		if a.Author.DisplayName != "" {
			rec.Authors = append(rec.Authors, a.Author.DisplayName)
		}
	}
	if j := w.PrimaryLocation.Source.DisplayName; j != "" {
		rec.Categories = append(rec.Categories, "Journal: "+j)
	}
	for i, c := range w.Concepts {
		if i >= 5 {
			break
		}
		if c.DisplayName != "" {
			rec.Categories = append(rec.Categories, c.DisplayName)
		}
	}
	return rec
}

// reconstructAbstract rebuilds plain text from the inverted index
// OpenAlex ships instead of abstracts.
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	type positioned struct {
		pos  int
		word string
	}
	var words []positioned
	for word, positions := range index {
		for _, pos := range positions {
			words = append(words, positioned{pos: pos, word: word})
		}
	}
	sort.Slice(words, func(i, j int) bool { return words[i].pos < words[j].pos })

	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w.word)
		if b.Len() >= maxAbstractChars {
			break
		}
	}
	abstract := b.String()
	if len(abstract) > maxAbstractChars {
		abstract = abstract[:maxAbstractChars]
	}
	return abstract
}
