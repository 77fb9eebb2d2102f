// Package summarize generates per-paper summaries and digest
// introductions through the Anthropic messages API.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ldiehl/paperboy/internal/paper"
)

const (
	BaseURL        = "https://api.anthropic.com"
	DefaultModel   = "claude-sonnet-4-20250514"
	DefaultTimeout = 60 * time.Second

	// RateLimit keeps the summarizer well inside the API tier limits.
	RateLimit = 2.0

	apiVersion   = "2023-06-01"
	maxBodyBytes = 1 << 20

	summaryMaxTokens = 200
	introMaxTokens   = 150

	// abstractClip bounds the abstract text sent per request.
	abstractClip = 1500
)

// Sentinel errors.
var (
	ErrMissingAPIKey = errors.New("summarizer API key not configured")
	ErrEmptyResponse = errors.New("summarizer returned no content")
)

// APIError is a non-2xx response from the messages endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("summarizer API error (status %d): %s", e.StatusCode, e.Message)
}

// Client calls the Anthropic messages API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	apiKey     string
	model      string
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithBaseURL(u string) Option {
	return func(cl *Client) { cl.baseURL = u }
}

func WithModel(m string) Option {
	return func(cl *Client) {
		if m != "" {
			cl.model = m
		}
	}
}

func WithRateLimit(rps float64) Option {
	return func(cl *Client) { cl.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		baseURL:    BaseURL,
		apiKey:     apiKey,
		model:      DefaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Summarize produces a short technical summary of one scored paper.
func (c *Client) Summarize(ctx context.Context, sc paper.ScoredCandidate) (string, error) {
	abstract := sc.Candidate.Abstract
	if len(abstract) > abstractClip {
		abstract = abstract[:abstractClip]
	}

	prompt := fmt.Sprintf(`You are helping a researcher in energy economics and market design.
Summarize this academic paper in 2-3 sentences. Focus on:
- The main research question
- The methodology (theory/empirical/experiment)
- The key finding or contribution

Be concise and technical. The reader is an expert.

Title: %s

Abstract: %s

Summary:`, sc.Candidate.Title, abstract)

	return c.complete(ctx, prompt, summaryMaxTokens)
}

// Intro produces a short overview paragraph for an assembled digest,
// grouping entries by their strongest matched keyword.
func (c *Client) Intro(ctx context.Context, period paper.Period, entries []paper.ScoredCandidate) (string, error) {
	if len(entries) == 0 {
		return "", ErrEmptyResponse
	}

	themes := make(map[string][]string)
	for _, e := range entries {
		theme := "General"
		if len(e.MatchedKeywords) > 0 {
			theme = e.MatchedKeywords[0]
		}
		themes[theme] = append(themes[theme], e.Candidate.Title)
	}
	grouped, err := json.MarshalIndent(themes, "", "  ")
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf(`You are writing a %s research digest introduction for an energy economics researcher.

Papers found by topic:
%s

Write a brief 2-3 sentence overview highlighting:
1. How many papers were found
2. The main themes covered
3. Any particularly notable papers

Keep it professional and concise.`, period, grouped)

	return c.complete(ctx, prompt, introMaxTokens)
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	payload, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("summarizer request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("reading summarizer response: %w", err)
	}

	var parsed messagesResponse
	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parsing summarizer response: %w", err)
	}
	for _, block := range parsed.Content {
		if block.Type == "text" && block.Text != "" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", ErrEmptyResponse
}
