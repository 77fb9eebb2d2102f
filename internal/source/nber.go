package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/ldiehl/paperboy/internal/paper"
)

const (
	nberFeedURL      = "https://www.nber.org/rss/new.xml"
	nberRateLimit    = 1.0
	nberTimeout      = 30 * time.Second
	nberMaxBodyBytes = 8 << 20
)

var nberIDPattern = regexp.MustCompile(`/papers/(w\d+)`)

// NBER fetches recent working papers from the NBER new-papers RSS feed.
// The feed only covers the most recent papers, so the window mostly
// matters for weekly runs.
type NBER struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	feedURL    string
	maxResults int
}

// NBEROption configures the adapter.
type NBEROption func(*NBER)

func WithNBERHTTPClient(c *http.Client) NBEROption {
	return func(n *NBER) { n.httpClient = c }
}

func WithNBERFeedURL(u string) NBEROption {
	return func(n *NBER) { n.feedURL = u }
}

func NewNBER(maxResults int, opts ...NBEROption) *NBER {
	if maxResults <= 0 {
		maxResults = 50
	}
	n := &NBER{
		httpClient: &http.Client{Timeout: nberTimeout},
		limiter:    rate.NewLimiter(rate.Limit(nberRateLimit), 1),
		feedURL:    nberFeedURL,
		maxResults: maxResults,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *NBER) Name() string { return "nber" }

func (n *NBER) Fetch(ctx context.Context, window paper.DateRange) ([]paper.RawRecord, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Source: n.Name(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.feedURL, nil)
	if err != nil {
		return nil, &FetchError{Source: n.Name(), Err: err}
	}
	req.Header.Set("User-Agent", "paperboy/1.0")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Source: n.Name(), Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Source: n.Name(), Err: fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, nberMaxBodyBytes))
	if err != nil {
		return nil, &FetchError{Source: n.Name(), Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}

	var feed nberFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, &FetchError{Source: n.Name(), Err: fmt.Errorf("%w: %v", ErrInvalidResponse, err)}
	}

	var records []paper.RawRecord
	for _, item := range feed.Channel.Items {
		if len(records) >= n.maxResults {
			break
		}
		rec := item.toRecord()
		if rec.Title == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

type nberFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []nberItem `xml:"item"`
	} `xml:"channel"`
}

type nberItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate"`
	Creators    []string `xml:"creator"`
}

func (i nberItem) toRecord() paper.RawRecord {
	sourceID := ""
	if m := nberIDPattern.FindStringSubmatch(i.Link); m != nil {
		sourceID = m[1]
	}
	if sourceID == "" {
		sourceID = i.Link
	}

	abstract := stripHTML(i.Description)
	if len(abstract) > maxAbstractChars {
		abstract = abstract[:maxAbstractChars]
	}

	var authors []string
	for _, c := range i.Creators {
		if c = strings.TrimSpace(c); c != "" {
			authors = append(authors, c)
		}
	}

	return paper.RawRecord{
		SourceID:   sourceID,
		Title:      strings.TrimSpace(i.Title),
		Abstract:   abstract,
		Authors:    authors,
		URL:        strings.TrimSpace(i.Link),
		Published:  i.PubDate,
		Categories: []string{"NBER Working Paper"},
	}
}

// stripHTML removes markup from a feed description. Falls back to the
// raw text when parsing fails.
func stripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
