// Package source implements the catalog adapters that feed the digest
// pipeline. Each adapter speaks one catalog's wire format and returns
// raw records; normalization happens downstream so adapters stay thin.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/ldiehl/paperboy/internal/paper"
)

// Adapter fetches raw paper records from one catalog.
type Adapter interface {
	// Name returns the adapter's source tag, used for trust ranking
	// and logging.
	Name() string
	// Fetch returns records published inside the window. Adapters may
	// over-fetch; the normalizer filters by date again.
	Fetch(ctx context.Context, window paper.DateRange) ([]paper.RawRecord, error)
}

// Sentinel errors shared by the adapters.
var (
	ErrUnavailable     = errors.New("source unavailable")
	ErrInvalidResponse = errors.New("invalid source response")
)

// FetchError wraps an adapter failure with its source tag so the
// pipeline can report which catalog misbehaved.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
