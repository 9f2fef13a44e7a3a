package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"daily-feature-store/internal/domain"
	"daily-feature-store/internal/storage"
)

// FeatureStore implements storage.FeatureStore and storage.Replacer using PostgreSQL.
type FeatureStore struct {
	pool     *Pool
	schema   string
	table    string // quoted schema.daily_features
	lockSalt string // namespaces advisory locks per destination table
}

// NewFeatureStore creates a new FeatureStore writing <schema>.daily_features.
// Returns storage.ErrInvalidSchema if schema is not allow-listed.
func NewFeatureStore(pool *Pool, schema string, extraSchemas ...string) (*FeatureStore, error) {
	table, err := qualified(schema, featuresTable, extraSchemas)
	if err != nil {
		return nil, err
	}
	return &FeatureStore{
		pool:     pool,
		schema:   schema,
		table:    table,
		lockSalt: schema + "." + featuresTable + ":",
	}, nil
}

// Compile-time interface checks.
var (
	_ storage.FeatureStore = (*FeatureStore)(nil)
	_ storage.Replacer     = (*FeatureStore)(nil)
)

// copier is satisfied by both *pgxpool.Pool and pgx.Tx.
type copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// InsertBulk appends all rows with a single COPY.
func (s *FeatureStore) InsertBulk(ctx context.Context, rows []*domain.FeatureRow) (err error) {
	if len(rows) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("insert_features", start, err) }(time.Now())

	_, err = s.copyRows(ctx, s.pool, rows)
	return err
}

// DeleteRange removes rows for a ticker with date within [from, to] (inclusive).
func (s *FeatureStore) DeleteRange(ctx context.Context, ticker string, from, to time.Time) (n int64, err error) {
	defer func(start time.Time) { observe("delete_features", start, err) }(time.Now())

	tag, err := s.pool.Exec(ctx, s.deleteRangeQuery(), ticker, domain.TruncateDate(from), domain.TruncateDate(to))
	if err != nil {
		return 0, fmt.Errorf("delete features by date range: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteByRunID removes every row written by a run.
func (s *FeatureStore) DeleteByRunID(ctx context.Context, runID string) (n int64, err error) {
	defer func(start time.Time) { observe("delete_features_by_run", start, err) }(time.Now())

	query := fmt.Sprintf(`DELETE FROM %s WHERE run_id = $1`, s.table)

	tag, err := s.pool.Exec(ctx, query, runID)
	if err != nil {
		return 0, fmt.Errorf("delete features by run id: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Replace deletes the ticker's rows in [from, to] and inserts rows in one
// transaction. A transaction-scoped advisory lock keyed by ticker serializes
// concurrent replaces, so overlapping runs cannot interleave delete and insert.
// Any failure rolls back both steps.
func (s *FeatureStore) Replace(ctx context.Context, ticker string, from, to time.Time, rows []*domain.FeatureRow) (n int64, err error) {
	defer func(start time.Time) { observe("replace_features", start, err) }(time.Now())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.lockSalt+ticker); err != nil {
		return 0, fmt.Errorf("acquire ticker lock: %w", err)
	}

	if _, err := tx.Exec(ctx, s.deleteRangeQuery(), ticker, domain.TruncateDate(from), domain.TruncateDate(to)); err != nil {
		return 0, fmt.Errorf("delete features by date range: %w", err)
	}

	n, err = s.copyRows(ctx, tx, rows)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return n, nil
}

// GetByDateRange retrieves rows for a ticker within [start, end] (inclusive), ordered by date ASC.
func (s *FeatureStore) GetByDateRange(ctx context.Context, ticker string, start, end time.Time) (result []*domain.FeatureRow, err error) {
	defer func(t time.Time) { observe("get_features", t, err) }(time.Now())

	query := fmt.Sprintf(`
		SELECT
			date, ticker, year, month, day_of_week,
			open, close, high, low, volume,
			return_close_open, return_prev_close,
			volatility_5_days, volatility_10_days, volatility_20_days,
			close_lag1, close_lag2, close_lag3, volume_lag1,
			is_monday, is_friday,
			run_id, ingested_at_utc
		FROM %s
		WHERE ticker = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`, s.table)

	rows, err := s.pool.Query(ctx, query, ticker, domain.TruncateDate(start), domain.TruncateDate(end))
	if err != nil {
		return nil, fmt.Errorf("query features by date range: %w", err)
	}
	defer rows.Close()

	return scanFeatureRows(rows)
}

func (s *FeatureStore) deleteRangeQuery() string {
	return fmt.Sprintf(`DELETE FROM %s WHERE ticker = $1 AND date >= $2 AND date <= $3`, s.table)
}

func (s *FeatureStore) copyRows(ctx context.Context, dst copier, rows []*domain.FeatureRow) (int64, error) {
	for _, r := range rows {
		if r == nil || r.Ticker == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	n, err := dst.CopyFrom(ctx,
		pgx.Identifier{s.schema, featuresTable},
		domain.FeatureColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return rows[i].Values(), nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copy features: %w", err)
	}
	return n, nil
}

// scanFeatureRows scans multiple rows. NULL columns scan into nil pointers.
func scanFeatureRows(rows pgx.Rows) ([]*domain.FeatureRow, error) {
	var result []*domain.FeatureRow

	for rows.Next() {
		var f domain.FeatureRow

		err := rows.Scan(
			&f.Date, &f.Ticker, &f.Year, &f.Month, &f.DayOfWeek,
			&f.Open, &f.Close, &f.High, &f.Low, &f.Volume,
			&f.ReturnCloseOpen, &f.ReturnPrevClose,
			&f.Volatility5Days, &f.Volatility10Days, &f.Volatility20Days,
			&f.CloseLag1, &f.CloseLag2, &f.CloseLag3, &f.VolumeLag1,
			&f.IsMonday, &f.IsFriday,
			&f.RunID, &f.IngestedAtUTC,
		)
		if err != nil {
			return nil, fmt.Errorf("scan feature row: %w", err)
		}
		f.IngestedAtUTC = f.IngestedAtUTC.UTC()

		result = append(result, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feature rows: %w", err)
	}

	return result, nil
}
