package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const openAlexFixture = `{
  "results": [
    {
      "id": "https://openalex.org/W4321",
      "title": "Renewable Penetration and Wholesale Prices",
      "doi": "https://doi.org/10.1016/j.eneco.2026.107001",
      "publication_date": "2026-08-18",
      "abstract_inverted_index": {
        "Rising": [0], "renewable": [1], "shares": [2],
        "depress": [3], "wholesale": [4], "prices.": [5]
      },
      "authorships": [
        {"author": {"display_name": "Maria Silva"}},
        {"author": {"display_name": "Tom Becker"}}
      ],
      "primary_location": {"source": {"display_name": "Energy Economics"}},
      "concepts": [{"display_name": "Economics"}, {"display_name": "Electricity market"}]
    }
  ]
}`

func TestOpenAlexFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("filter")
		if !strings.Contains(filter, "Energy Economics") {
			t.Errorf("filter missing journal: %q", filter)
		}
		if !strings.Contains(filter, "from_publication_date:2026-08-18") {
			t.Errorf("filter missing window start: %q", filter)
		}
		if r.URL.Query().Get("mailto") != "reader@example.org" {
			t.Errorf("mailto = %q", r.URL.Query().Get("mailto"))
		}
		w.Write([]byte(openAlexFixture))
	}))
	defer srv.Close()

	o := NewOpenAlex([]string{"Energy Economics"}, "reader@example.org", 50,
		WithOpenAlexBaseURL(srv.URL), WithOpenAlexRateLimit(1000))

	records, err := o.Fetch(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.SourceID != "W4321" {
		t.Errorf("SourceID = %q, want bare OpenAlex ID", rec.SourceID)
	}
	if rec.Abstract != "Rising renewable shares depress wholesale prices." {
		t.Errorf("Abstract = %q; inverted index not reconstructed in order", rec.Abstract)
	}
	if rec.DOI != "https://doi.org/10.1016/j.eneco.2026.107001" {
		t.Errorf("DOI = %q", rec.DOI)
	}
	if len(rec.Authors) != 2 || rec.Authors[1] != "Tom Becker" {
		t.Errorf("Authors = %v", rec.Authors)
	}
	if len(rec.Categories) == 0 || rec.Categories[0] != "Journal: Energy Economics" {
		t.Errorf("Categories = %v, want journal tag first", rec.Categories)
	}
}

func TestOpenAlexFetchDeduplicatesAcrossJournals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(openAlexFixture))
	}))
	defer srv.Close()

	o := NewOpenAlex([]string{"Energy Economics", "The Energy Journal"}, "", 50,
		WithOpenAlexBaseURL(srv.URL), WithOpenAlexRateLimit(1000))

	records, err := o.Fetch(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1 after cross-journal dedup", len(records))
	}
}

func TestReconstructAbstract(t *testing.T) {
	tests := []struct {
		name  string
		index map[string][]int
		want  string
	}{
		{"empty", nil, ""},
		{"single word", map[string][]int{"hello": {0}}, "hello"},
		{
			"repeated word",
			map[string][]int{"the": {0, 2}, "more": {1}, "merrier": {3}},
			"the more the merrier",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reconstructAbstract(tt.index); got != tt.want {
				t.Errorf("reconstructAbstract() = %q, want %q", got, tt.want)
			}
		})
	}
}
