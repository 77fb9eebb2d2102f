package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const nberFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>NBER New Working Papers</title>
    <item>
      <title>Pass-Through of Carbon Prices to Retail Electricity</title>
      <link>https://www.nber.org/papers/w34567</link>
      <description>&lt;p&gt;We estimate the &lt;b&gt;pass-through&lt;/b&gt; of carbon prices.&lt;/p&gt;</description>
      <pubDate>Mon, 17 Aug 2026 00:00:00 -0400</pubDate>
      <creator>Priya Natarajan</creator>
      <creator>Sam Ortiz</creator>
    </item>
    <item>
      <title>Labor Markets After Automation</title>
      <link>https://www.nber.org/papers/w34568</link>
      <description>Plain text abstract without markup.</description>
      <pubDate>Mon, 17 Aug 2026 00:00:00 -0400</pubDate>
    </item>
    <item>
      <title></title>
      <link>https://www.nber.org/papers/w34569</link>
      <description>Untitled entries are dropped.</description>
    </item>
  </channel>
</rss>`

func TestNBERFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(nberFixture))
	}))
	defer srv.Close()

	n := NewNBER(50, WithNBERFeedURL(srv.URL))
	records, err := n.Fetch(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (untitled entry dropped)", len(records))
	}

	first := records[0]
	if first.SourceID != "w34567" {
		t.Errorf("SourceID = %q, want working-paper number", first.SourceID)
	}
	if first.Abstract != "We estimate the pass-through of carbon prices." {
		t.Errorf("Abstract = %q; HTML not stripped", first.Abstract)
	}
	if len(first.Authors) != 2 || first.Authors[0] != "Priya Natarajan" {
		t.Errorf("Authors = %v", first.Authors)
	}
	if first.Published != "Mon, 17 Aug 2026 00:00:00 -0400" {
		t.Errorf("Published = %q", first.Published)
	}
}

func TestNBERFetchRespectsMaxResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(nberFixture))
	}))
	defer srv.Close()

	n := NewNBER(1, WithNBERFeedURL(srv.URL))
	records, err := n.Fetch(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
}

func TestNBERFetchUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewNBER(50, WithNBERFeedURL(srv.URL))
	if _, err := n.Fetch(context.Background(), testWindow()); err == nil {
		t.Fatal("Fetch() succeeded, want error")
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"no markup at all", "no markup at all"},
		{"<p>one <em>two</em></p>", "one two"},
		{"  padded   text  ", "padded text"},
	}
	for _, tt := range tests {
		if got := stripHTML(tt.in); got != tt.want {
			t.Errorf("stripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
