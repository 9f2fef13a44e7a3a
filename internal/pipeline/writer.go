package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"daily-feature-store/internal/domain"
	"daily-feature-store/internal/observability"
	"daily-feature-store/internal/storage"
)

// WriteError is returned when the destination write fails.
// A failed write is always fatal for the run.
type WriteError struct {
	Stage string // "replace" or "insert"
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write features (%s): %v", e.Stage, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Writer persists feature rows into the feature store.
type Writer struct {
	store  storage.FeatureStore
	logger *zap.Logger
}

// NewWriter creates a new Writer.
func NewWriter(store storage.FeatureStore, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{store: store, logger: logger}
}

// Persist stamps runID on every row and writes the batch. Returns rows written.
//
// With overwrite, every existing row for the batch's ticker with date in
// [min(date), max(date)] is replaced. Stores implementing storage.Replacer do
// this atomically and a failure of either step is fatal. Other stores get a
// delete followed by a separate insert: a failed delete is logged and the
// insert still runs, which can leave duplicate rows for the span.
//
// Insert failures are always fatal. An empty batch writes nothing.
func (w *Writer) Persist(ctx context.Context, rows []*domain.FeatureRow, runID string, overwrite bool) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	ticker, from, to, err := span(rows)
	if err != nil {
		return 0, err
	}

	for _, r := range rows {
		r.RunID = runID
	}

	log := w.logger.With(
		zap.String("ticker", ticker),
		zap.String("run_id", runID),
		zap.String("from", from.Format(domain.DateLayout)),
		zap.String("to", to.Format(domain.DateLayout)),
	)

	if overwrite {
		if replacer, ok := w.store.(storage.Replacer); ok {
			n, err := replacer.Replace(ctx, ticker, from, to, rows)
			if err != nil {
				return 0, &WriteError{Stage: "replace", Err: err}
			}
			log.Info("replaced feature rows", zap.Int64("rows", n))
			observability.RecordRowsWritten(n)
			return n, nil
		}

		deleted, err := w.store.DeleteRange(ctx, ticker, from, to)
		switch {
		case err != nil && ctx.Err() != nil:
			return 0, &WriteError{Stage: "insert", Err: ctx.Err()}
		case err != nil:
			observability.RecordDeleteFailure()
			log.Warn("could not delete existing feature rows, inserting anyway", zap.Error(err))
		default:
			log.Info("deleted existing feature rows", zap.Int64("rows", deleted))
		}
	}

	if err := w.store.InsertBulk(ctx, rows); err != nil {
		return 0, &WriteError{Stage: "insert", Err: err}
	}

	n := int64(len(rows))
	log.Info("inserted feature rows", zap.Int64("rows", n))
	observability.RecordRowsWritten(n)
	return n, nil
}

// span returns the batch's ticker and date bounds. All rows must share one ticker.
func span(rows []*domain.FeatureRow) (ticker string, from, to time.Time, err error) {
	for i, r := range rows {
		if r == nil {
			return "", time.Time{}, time.Time{}, fmt.Errorf("%w: nil row at index %d", storage.ErrInvalidInput, i)
		}
		d := domain.TruncateDate(r.Date)
		if i == 0 {
			ticker, from, to = r.Ticker, d, d
			continue
		}
		if r.Ticker != ticker {
			return "", time.Time{}, time.Time{}, fmt.Errorf("%w: batch mixes tickers %q and %q", storage.ErrInvalidInput, ticker, r.Ticker)
		}
		if d.Before(from) {
			from = d
		}
		if d.After(to) {
			to = d
		}
	}
	if ticker == "" {
		return "", time.Time{}, time.Time{}, fmt.Errorf("%w: empty ticker", storage.ErrInvalidInput)
	}
	return ticker, from, to, nil
}
