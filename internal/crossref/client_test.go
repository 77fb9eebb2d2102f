package crossref

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/works/10.1234%2Fabc" && r.URL.Path != "/works/10.1234/abc" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "ok",
			"message": {
				"DOI": "10.1234/abc",
				"title": ["Capacity Markets under Uncertainty"],
				"author": [{"given": "Jane", "family": "Doe"}],
				"container-title": ["Energy Economics"],
				"issued": {"date-parts": [[2026, 8, 1]]}
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	work, err := c.Resolve(context.Background(), "10.1234/abc")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	if work.DOI != "10.1234/abc" {
		t.Errorf("DOI = %q", work.DOI)
	}
	if work.PrimaryTitle() != "Capacity Markets under Uncertainty" {
		t.Errorf("PrimaryTitle() = %q", work.PrimaryTitle())
	}
	if len(work.Author) != 1 || work.Author[0].Family != "Doe" {
		t.Errorf("Author = %+v", work.Author)
	}
	if work.Issued.Year() != 2026 {
		t.Errorf("Year() = %d, want 2026", work.Issued.Year())
	}
}

func TestResolveNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Resource not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.Resolve(context.Background(), "10.9999/ghost")
	if !IsNotFound(err) {
		t.Errorf("Resolve() error = %v, want not-found", err)
	}
	if IsTransient(err) {
		t.Error("not-found classified as transient")
	}
}

func TestResolveEmptyDOI(t *testing.T) {
	c := NewClient()
	_, err := c.Resolve(context.Background(), "")
	if !IsNotFound(err) {
		t.Errorf("Resolve(\"\") error = %v, want not-found", err)
	}
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("query.title") == "" {
			t.Error("missing query.title parameter")
		}
		if q.Get("query.author") != "Doe" {
			t.Errorf("query.author = %q", q.Get("query.author"))
		}
		if q.Get("mailto") != "ops@example.org" {
			t.Errorf("mailto = %q", q.Get("mailto"))
		}
		w.Write([]byte(`{
			"message": {
				"items": [
					{"DOI": "10.1/a", "title": ["First Match"]},
					{"DOI": "10.1/b", "title": ["Second Match"]}
				]
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithMailto("ops@example.org"))
	works, err := c.Search(context.Background(), "First Match", "Doe")
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(works) != 2 {
		t.Fatalf("Search() returned %d works, want 2", len(works))
	}
	if works[0].DOI != "10.1/a" {
		t.Errorf("works[0].DOI = %q", works[0].DOI)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
		{"bad request", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewClient(WithBaseURL(srv.URL))
			_, err := c.Resolve(context.Background(), "10.1/x")
			if err == nil {
				t.Fatal("Resolve() succeeded, want error")
			}
			if IsTransient(err) != tt.wantTransient {
				t.Errorf("IsTransient(%v) = %v, want %v", err, IsTransient(err), tt.wantTransient)
			}
		})
	}
}

func TestNetworkErrorTransient(t *testing.T) {
	// Point the client at a closed server.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.Resolve(context.Background(), "10.1/x")
	if !errors.Is(err, ErrNetworkError) {
		t.Errorf("Resolve() error = %v, want network error", err)
	}
	if !IsTransient(err) {
		t.Error("network error not classified as transient")
	}
}
