// Package crossref is a rate-limited client for the Crossref works API,
// the authoritative registry the verifier resolves identifiers against.
package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// BaseURL is the Crossref REST API base URL.
	BaseURL = "https://api.crossref.org"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// RateLimit keeps the client comfortably inside the polite pool.
	RateLimit = 5.0

	// DefaultSearchRows is the number of search matches requested.
	DefaultSearchRows = 5
)

// Work is a registry record for a resolvable publication.
type Work struct {
	DOI            string   `json:"DOI"`
	Title          []string `json:"title"`
	Author         []Author `json:"author"`
	ContainerTitle []string `json:"container-title"`
	Issued         Date     `json:"issued"`
}

// Author is a registry author entry.
type Author struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

// Date is the registry's date-parts representation.
type Date struct {
	DateParts [][]int `json:"date-parts"`
}

// Year returns the year component, or 0 if absent.
func (d Date) Year() int {
	if len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 {
		return 0
	}
	return d.DateParts[0][0]
}

// PrimaryTitle returns the first title entry, or "".
func (w Work) PrimaryTitle() string {
	if len(w.Title) == 0 {
		return ""
	}
	return w.Title[0]
}

// Client is a rate-limited HTTP client for the registry.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	mailto     string // polite pool contact address
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithMailto sets the polite pool contact address.
func WithMailto(mailto string) ClientOption {
	return func(c *Client) {
		c.mailto = mailto
	}
}

// NewClient creates a registry client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		baseURL:    BaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve looks up a work by DOI. Returns ErrNotFound (possibly wrapped)
// if the identifier does not resolve.
func (c *Client) Resolve(ctx context.Context, doi string) (*Work, error) {
	if doi == "" {
		return nil, fmt.Errorf("%w: empty DOI", ErrNotFound)
	}

	body, err := c.get(ctx, "/works/"+url.PathEscape(doi), nil, doi)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Message Work `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing work: %v", ErrInvalidResponse, err)
	}
	if resp.Message.DOI == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, doi)
	}
	return &resp.Message, nil
}

// Search queries the registry by title and optional first author,
// returning candidate matches in registry relevance order.
func (c *Client) Search(ctx context.Context, title, author string) ([]Work, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: empty title query", ErrInvalidResponse)
	}

	params := url.Values{}
	params.Set("query.title", title)
	if author != "" {
		params.Set("query.author", author)
	}
	params.Set("rows", fmt.Sprint(DefaultSearchRows))
	params.Set("select", "DOI,title,author,container-title,issued")

	body, err := c.get(ctx, "/works", params, "")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Message struct {
			Items []Work `json:"items"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing search results: %v", ErrInvalidResponse, err)
	}
	return resp.Message.Items, nil
}

// get performs a rate-limited GET and maps HTTP failures onto the
// package error taxonomy.
func (c *Client) get(ctx context.Context, path string, params url.Values, doi string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	if c.mailto != "" {
		if params == nil {
			params = url.Values{}
		}
		params.Set("mailto", c.mailto)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.mailto != "" {
		req.Header.Set("User-Agent", "paperboy/1.0 (mailto:"+c.mailto+")")
	} else {
		req.Header.Set("User-Agent", "paperboy/1.0")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if err := checkHTTPErrors(resp, doi); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrNetworkError, err)
	}
	return body, nil
}

func checkHTTPErrors(resp *http.Response, doi string) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: status 404", ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status 429", ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP %d", resp.StatusCode),
			DOI:        doi,
		}
	}
	return nil
}

// maxBodyBytes caps registry responses; the works endpoint never
// legitimately approaches this.
const maxBodyBytes = 4 << 20
