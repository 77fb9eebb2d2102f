// Package history archives digest runs in SQLite. The archive serves
// two purposes: cross-run deduplication (papers already digested are
// never re-sent) and the history listing in the CLI.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/ldiehl/paperboy/internal/paper"
)

// Store wraps the SQLite digest archive.
type Store struct {
	db *sql.DB
}

// Open opens or creates the archive at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			period TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			partial INTEGER NOT NULL DEFAULT 0,
			entry_count INTEGER NOT NULL,
			total_rejected INTEGER NOT NULL,
			stats_json TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS entries (
			run_id INTEGER NOT NULL REFERENCES runs(id),
			identifier TEXT NOT NULL,
			title TEXT NOT NULL,
			source TEXT NOT NULL,
			score REAL NOT NULL,
			summary TEXT,
			summary_fallback INTEGER NOT NULL DEFAULT 0,
			url TEXT,
			PRIMARY KEY (run_id, identifier)
		);

		CREATE INDEX IF NOT EXISTS idx_entries_identifier ON entries(identifier);
	`
	_, err := db.Exec(schema)
	return err
}

// Run is one archived digest run.
type Run struct {
	ID            int64
	Period        paper.Period
	GeneratedAt   time.Time
	Partial       bool
	EntryCount    int
	TotalRejected int
	Stats         paper.RunStats
}

// SaveDigest archives a digest and its entries in one transaction.
func (s *Store) SaveDigest(d *paper.Digest) (int64, error) {
	statsJSON, err := json.Marshal(d.Stats)
	if err != nil {
		return 0, fmt.Errorf("encoding run stats: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO runs (period, generated_at, partial, entry_count, total_rejected, stats_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(d.Period), d.GeneratedAt.UTC().Format(time.RFC3339), boolToInt(d.Partial),
		len(d.Entries), d.TotalRejected, string(statsJSON))
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, e := range d.Entries {
		// Distinct records can search-resolve to the same DOI; the
		// first (highest-scoring) entry wins and the rest are dropped.
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO entries (run_id, identifier, title, source, score, summary, summary_fallback, url)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, e.Identifier, e.Candidate.Title, e.Candidate.Source,
			e.Score, e.Summary, boolToInt(e.SummaryFallback), e.Candidate.URL)
		if err != nil {
			return 0, fmt.Errorf("inserting entry %s: %w", e.Identifier, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing run: %w", err)
	}
	return runID, nil
}

// SeenIdentifiers returns every identifier ever digested, mapped to the
// time of the run that first sent it.
func (s *Store) SeenIdentifiers() (map[string]time.Time, error) {
	rows, err := s.db.Query(`
		SELECT e.identifier, MIN(r.generated_at)
		FROM entries e JOIN runs r ON r.id = e.run_id
		GROUP BY e.identifier`)
	if err != nil {
		return nil, fmt.Errorf("querying seen identifiers: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]time.Time)
	for rows.Next() {
		var identifier, generatedAt string
		if err := rows.Scan(&identifier, &generatedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, generatedAt)
		if err != nil {
			t = time.Time{}
		}
		seen[identifier] = t
	}
	return seen, rows.Err()
}

// ListRuns returns archived runs, newest first. A zero limit means no
// limit; an empty period matches all periods.
func (s *Store) ListRuns(period paper.Period, limit int) ([]Run, error) {
	q := sq.Select("id", "period", "generated_at", "partial", "entry_count", "total_rejected", "stats_json").
		From("runs").
		OrderBy("generated_at DESC, id DESC")
	if period != "" {
		q = q.Where(sq.Eq{"period": string(period)})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building runs query: %w", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r           Run
			periodStr   string
			generatedAt string
			partial     int
			statsJSON   string
		)
		if err := rows.Scan(&r.ID, &periodStr, &generatedAt, &partial, &r.EntryCount, &r.TotalRejected, &statsJSON); err != nil {
			return nil, err
		}
		r.Period = paper.Period(periodStr)
		r.Partial = partial != 0
		if t, err := time.Parse(time.RFC3339, generatedAt); err == nil {
			r.GeneratedAt = t
		}
		if err := json.Unmarshal([]byte(statsJSON), &r.Stats); err != nil {
			return nil, fmt.Errorf("decoding stats for run %d: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunEntries returns the archived entries of one run, highest score
// first.
func (s *Store) RunEntries(runID int64) ([]paper.Entry, error) {
	query, args, err := sq.Select("identifier", "title", "source", "score", "summary", "summary_fallback", "url").
		From("entries").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("score DESC, identifier ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building entries query: %w", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []paper.Entry
	for rows.Next() {
		var (
			identifier, title, source, summary, entryURL string
			score                                        float64
			fallback                                     int
		)
		if err := rows.Scan(&identifier, &title, &source, &score, &summary, &fallback, &entryURL); err != nil {
			return nil, err
		}
		vc, err := paper.NewVerified(paper.Candidate{Title: title, Source: source, URL: entryURL}, identifier)
		if err != nil {
			return nil, fmt.Errorf("archived entry %q: %w", identifier, err)
		}
		entries = append(entries, paper.Entry{
			ScoredCandidate: paper.ScoredCandidate{VerifiedCandidate: vc, Score: score},
			Summary:         summary,
			SummaryFallback: fallback != 0,
		})
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
