package storage

import (
	"context"
	"time"

	"daily-feature-store/internal/domain"
)

// PriceStore provides access to prices_daily storage.
// The table is owned upstream; InsertBulk exists for fixtures and tests.
type PriceStore interface {
	// InsertBulk adds multiple rows. Fails entire batch on duplicate (ticker, date).
	InsertBulk(ctx context.Context, rows []*domain.RawPriceRow) error

	// GetByDateRange retrieves rows for a ticker within [start, end] (inclusive),
	// ordered by date ASC. Returns an empty slice, not an error, when nothing matches.
	GetByDateRange(ctx context.Context, ticker string, start, end time.Time) ([]*domain.RawPriceRow, error)
}

// FeatureStore provides access to daily_features storage.
type FeatureStore interface {
	// InsertBulk appends all rows in a single bulk insert. Existing rows are not checked.
	InsertBulk(ctx context.Context, rows []*domain.FeatureRow) error

	// DeleteRange removes rows for a ticker with date within [from, to] (inclusive).
	// Returns the number of rows removed when the engine reports it.
	DeleteRange(ctx context.Context, ticker string, from, to time.Time) (int64, error)

	// DeleteByRunID removes every row written by a run.
	DeleteByRunID(ctx context.Context, runID string) (int64, error)

	// GetByDateRange retrieves rows for a ticker within [start, end] (inclusive),
	// ordered by date ASC.
	GetByDateRange(ctx context.Context, ticker string, start, end time.Time) ([]*domain.FeatureRow, error)
}

// Replacer is implemented by feature stores that can replace a ticker's date
// span atomically: delete and insert commit together or not at all, and
// concurrent replaces for the same ticker are serialized.
type Replacer interface {
	Replace(ctx context.Context, ticker string, from, to time.Time, rows []*domain.FeatureRow) (int64, error)
}
