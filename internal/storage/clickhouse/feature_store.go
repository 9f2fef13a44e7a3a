package clickhouse

import (
	"context"
	"fmt"
	"time"

	"daily-feature-store/internal/domain"
	"daily-feature-store/internal/storage"
)

// FeatureStore implements storage.FeatureStore using ClickHouse.
// ClickHouse has no multi-statement transactions, so it does not implement
// storage.Replacer: an overwrite is a delete followed by a separate insert.
type FeatureStore struct {
	conn *Conn
}

// NewFeatureStore creates a new FeatureStore.
func NewFeatureStore(conn *Conn) *FeatureStore {
	return &FeatureStore{conn: conn}
}

// Compile-time interface check.
var _ storage.FeatureStore = (*FeatureStore)(nil)

const selectFeatures = `
	SELECT
		date, ticker, year, month, day_of_week,
		open, close, high, low, volume,
		return_close_open, return_prev_close,
		volatility_5_days, volatility_10_days, volatility_20_days,
		close_lag1, close_lag2, close_lag3, volume_lag1,
		is_monday, is_friday,
		run_id, ingested_at_utc
	FROM daily_features
`

// InsertBulk appends all rows in one batch.
func (s *FeatureStore) InsertBulk(ctx context.Context, rows []*domain.FeatureRow) (err error) {
	if len(rows) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("insert_features", start, err) }(time.Now())

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO daily_features")
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		if r == nil || r.Ticker == "" {
			_ = batch.Abort()
			return storage.ErrInvalidInput
		}
		// Pass nil pointers directly for Nullable columns
		err = batch.Append(
			r.Date, r.Ticker, uint16(r.Year), uint8(r.Month), uint8(r.DayOfWeek),
			r.Open, r.Close, r.High, r.Low, r.Volume,
			r.ReturnCloseOpen, r.ReturnPrevClose,
			r.Volatility5Days, r.Volatility10Days, r.Volatility20Days,
			r.CloseLag1, r.CloseLag2, r.CloseLag3, r.VolumeLag1,
			r.IsMonday, r.IsFriday,
			r.RunID, r.IngestedAtUTC,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// DeleteRange removes rows for a ticker with date within [from, to] (inclusive).
// Uses a lightweight DELETE; the count is taken just before deleting.
func (s *FeatureStore) DeleteRange(ctx context.Context, ticker string, from, to time.Time) (n int64, err error) {
	defer func(start time.Time) { observe("delete_features", start, err) }(time.Now())

	from, to = domain.TruncateDate(from), domain.TruncateDate(to)

	var count uint64
	err = s.conn.QueryRow(ctx, `
		SELECT count() FROM daily_features
		WHERE ticker = ? AND date >= ? AND date <= ?
	`, ticker, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count features by date range: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	err = s.conn.Exec(ctx, `
		DELETE FROM daily_features
		WHERE ticker = ? AND date >= ? AND date <= ?
	`, ticker, from, to)
	if err != nil {
		return 0, fmt.Errorf("delete features by date range: %w", err)
	}

	return int64(count), nil
}

// DeleteByRunID removes every row written by a run.
func (s *FeatureStore) DeleteByRunID(ctx context.Context, runID string) (n int64, err error) {
	defer func(start time.Time) { observe("delete_features_by_run", start, err) }(time.Now())

	var count uint64
	if err = s.conn.QueryRow(ctx, `SELECT count() FROM daily_features WHERE run_id = ?`, runID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count features by run id: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	if err = s.conn.Exec(ctx, `DELETE FROM daily_features WHERE run_id = ?`, runID); err != nil {
		return 0, fmt.Errorf("delete features by run id: %w", err)
	}

	return int64(count), nil
}

// GetByDateRange retrieves rows for a ticker within [start, end] (inclusive), ordered by date ASC.
func (s *FeatureStore) GetByDateRange(ctx context.Context, ticker string, start, end time.Time) (result []*domain.FeatureRow, err error) {
	defer func(t time.Time) { observe("get_features", t, err) }(time.Now())

	query := selectFeatures + `
		WHERE ticker = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`

	rows, err := s.conn.Query(ctx, query, ticker, domain.TruncateDate(start), domain.TruncateDate(end))
	if err != nil {
		return nil, fmt.Errorf("query features by date range: %w", err)
	}
	defer rows.Close()

	return scanFeatureRows(rows)
}

// scanFeatureRows scans multiple rows.
func scanFeatureRows(rows chRows) ([]*domain.FeatureRow, error) {
	var result []*domain.FeatureRow

	for rows.Next() {
		var f domain.FeatureRow
		var year uint16
		var month, dayOfWeek uint8

		err := rows.Scan(
			&f.Date, &f.Ticker, &year, &month, &dayOfWeek,
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

		f.Year = int(year)
		f.Month = int(month)
		f.DayOfWeek = int(dayOfWeek)
		f.Date = domain.TruncateDate(f.Date)
		f.IngestedAtUTC = f.IngestedAtUTC.UTC()

		result = append(result, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feature rows: %w", err)
	}

	return result, nil
}
