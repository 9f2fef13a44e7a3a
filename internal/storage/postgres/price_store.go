package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"daily-feature-store/internal/domain"
	"daily-feature-store/internal/storage"
)

// PriceStore implements storage.PriceStore using PostgreSQL.
type PriceStore struct {
	pool  *Pool
	table string // quoted schema.prices_daily
}

// NewPriceStore creates a new PriceStore reading <schema>.prices_daily.
// Returns storage.ErrInvalidSchema if schema is not allow-listed.
func NewPriceStore(pool *Pool, schema string, extraSchemas ...string) (*PriceStore, error) {
	table, err := qualified(schema, pricesTable, extraSchemas)
	if err != nil {
		return nil, err
	}
	return &PriceStore{pool: pool, table: table}, nil
}

// Compile-time interface check.
var _ storage.PriceStore = (*PriceStore)(nil)

// InsertBulk adds multiple rows atomically. Fails entire batch on any duplicate.
func (s *PriceStore) InsertBulk(ctx context.Context, rows []*domain.RawPriceRow) (err error) {
	if len(rows) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("insert_prices", start, err) }(time.Now())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`
		INSERT INTO %s (
			date, ticker, open, high, low, close, adj_close, volume,
			run_id, ingested_at_utc, source_name
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, s.table)

	for _, r := range rows {
		if r == nil || r.Ticker == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query,
			r.Date, r.Ticker, r.Open, r.High, r.Low, r.Close, r.AdjClose, r.Volume,
			r.RunID, r.IngestedAtUTC, r.SourceName,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert price row: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByDateRange retrieves rows for a ticker within [start, end] (inclusive), ordered by date ASC.
// Ticker and dates are bound parameters; only the validated table identifier is formatted in.
func (s *PriceStore) GetByDateRange(ctx context.Context, ticker string, start, end time.Time) (result []*domain.RawPriceRow, err error) {
	defer func(t time.Time) { observe("load_prices", t, err) }(time.Now())

	query := fmt.Sprintf(`
		SELECT
			date, ticker,
			open::float8, high::float8, low::float8, close::float8, adj_close::float8,
			volume::bigint,
			run_id, ingested_at_utc, source_name
		FROM %s
		WHERE ticker = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`, s.table)

	rows, err := s.pool.Query(ctx, query, ticker, domain.TruncateDate(start), domain.TruncateDate(end))
	if err != nil {
		return nil, fmt.Errorf("query prices by date range: %w", err)
	}
	defer rows.Close()

	return scanPriceRows(rows)
}

// scanPriceRows scans multiple rows. NULL provenance columns become zero values.
func scanPriceRows(rows pgx.Rows) ([]*domain.RawPriceRow, error) {
	var result []*domain.RawPriceRow

	for rows.Next() {
		var r domain.RawPriceRow
		var runID, sourceName *string
		var ingestedAt *time.Time

		err := rows.Scan(
			&r.Date, &r.Ticker,
			&r.Open, &r.High, &r.Low, &r.Close, &r.AdjClose,
			&r.Volume,
			&runID, &ingestedAt, &sourceName,
		)
		if err != nil {
			return nil, fmt.Errorf("scan price row: %w", err)
		}

		if runID != nil {
			r.RunID = *runID
		}
		if ingestedAt != nil {
			r.IngestedAtUTC = ingestedAt.UTC()
		}
		if sourceName != nil {
			r.SourceName = *sourceName
		}

		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price rows: %w", err)
	}

	return result, nil
}
