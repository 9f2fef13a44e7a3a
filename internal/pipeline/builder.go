package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"daily-feature-store/internal/domain"
	"daily-feature-store/internal/features"
	"daily-feature-store/internal/observability"
	"daily-feature-store/internal/storage"
)

// Builder runs Load -> Compute -> Persist for one ticker and date range.
type Builder struct {
	prices storage.PriceStore
	writer *Writer
	logger *zap.Logger
	clock  func() time.Time
}

// NewBuilder creates a new Builder.
func NewBuilder(prices storage.PriceStore, writer *Writer, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		prices: prices,
		writer: writer,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function. The clock supplies the batch
// ingestion timestamp and the run duration.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// Load returns the raw rows for ticker with date in [start, end], ascending by date.
func (b *Builder) Load(ctx context.Context, ticker string, start, end time.Time) ([]*domain.RawPriceRow, error) {
	rows, err := b.prices.GetByDateRange(ctx, ticker, domain.TruncateDate(start), domain.TruncateDate(end))
	if err != nil {
		return nil, fmt.Errorf("load prices for %s: %w", ticker, err)
	}
	observability.RecordRowsLoaded(len(rows))
	return rows, nil
}

// Run executes one pipeline run. An empty load is not an error: the result
// has NoData set and nothing is written.
func (b *Builder) Run(ctx context.Context, req Request) (*Result, error) {
	started := b.clock()
	result := &Result{Ticker: req.Ticker, RunID: req.RunID}

	log := b.logger.With(
		zap.String("ticker", req.Ticker),
		zap.String("run_id", req.RunID),
		zap.String("mode", string(req.Mode)),
	)

	finish := func(status string) {
		result.Duration = b.clock().Sub(started)
		observability.RecordPipelineRun(status, result.Duration.Seconds())
	}

	if err := req.Validate(); err != nil {
		finish(observability.StatusFailed)
		return nil, err
	}

	log.Info("loading raw prices",
		zap.String("start", req.Start.Format(domain.DateLayout)),
		zap.String("end", req.End.Format(domain.DateLayout)),
	)
	raw, err := b.Load(ctx, req.Ticker, req.Start, req.End)
	if err != nil {
		finish(observability.StatusFailed)
		return nil, err
	}
	result.RowsLoaded = len(raw)

	if len(raw) == 0 {
		log.Warn("no raw data found for requested range")
		result.NoData = true
		finish(observability.StatusNoData)
		return result, nil
	}

	rows := features.Compute(raw, started)
	log.Info("computed features", zap.Int("rows", len(rows)))

	written, err := b.writer.Persist(ctx, rows, req.RunID, req.Overwrite)
	if err != nil {
		finish(observability.StatusFailed)
		return nil, err
	}

	result.RowsWritten = written
	result.From = domain.TruncateDate(rows[0].Date)
	result.To = domain.TruncateDate(rows[len(rows)-1].Date)
	finish(observability.StatusSuccess)

	log.Info("pipeline run completed",
		zap.Int("rows_loaded", result.RowsLoaded),
		zap.Int64("rows_written", result.RowsWritten),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}
