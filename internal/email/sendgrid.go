package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	BaseURL        = "https://api.sendgrid.com"
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 256 << 10
)

// ErrMissingAPIKey means no SendGrid key was configured.
var ErrMissingAPIKey = errors.New("sendgrid API key not configured")

// APIError is a rejected send.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sendgrid error (status %d): %s", e.StatusCode, e.Body)
}

// Sender delivers mail through the SendGrid v3 API.
type Sender struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	from       string
	fromName   string
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

func WithHTTPClient(c *http.Client) SenderOption {
	return func(s *Sender) { s.httpClient = c }
}

func WithBaseURL(u string) SenderOption {
	return func(s *Sender) { s.baseURL = u }
}

func NewSender(apiKey, from string, opts ...SenderOption) *Sender {
	s := &Sender{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    BaseURL,
		apiKey:     apiKey,
		from:       from,
		fromName:   "Research Digest",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type mailRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

type personalization struct {
	To []address `json:"to"`
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send delivers one message with plaintext and HTML parts. SendGrid
// requires the plain part first.
func (s *Sender) Send(ctx context.Context, to, subject, plain, htmlBody string) error {
	if s.apiKey == "" {
		return ErrMissingAPIKey
	}
	if plain == "" {
		plain = "Please view this digest in an HTML-capable client."
	}

	payload, err := json.Marshal(mailRequest{
		Personalizations: []personalization{{To: []address{{Email: to}}}},
		From:             address{Email: s.from, Name: s.fromName},
		Subject:          subject,
		Content: []content{
			{Type: "text/plain", Value: plain},
			{Type: "text/html", Value: htmlBody},
		},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v3/mail/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}
