package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-feature-store/internal/domain"
	"daily-feature-store/internal/observability"
	"daily-feature-store/internal/storage"
	"daily-feature-store/internal/storage/memory"
)

// appendOnlyStore hides Replace so the writer takes the delete-then-insert path.
type appendOnlyStore struct {
	storage.FeatureStore
	deleteErr error
	insertErr error
	deletes   int
}

func (s *appendOnlyStore) DeleteRange(ctx context.Context, ticker string, from, to time.Time) (int64, error) {
	s.deletes++
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	return s.FeatureStore.DeleteRange(ctx, ticker, from, to)
}

func (s *appendOnlyStore) InsertBulk(ctx context.Context, rows []*domain.FeatureRow) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	return s.FeatureStore.InsertBulk(ctx, rows)
}

type failingReplacer struct {
	*memory.FeatureStore
	err error
}

func (s *failingReplacer) Replace(context.Context, string, time.Time, time.Time, []*domain.FeatureRow) (int64, error) {
	return 0, s.err
}

func featureRows(ticker string, dates ...string) []*domain.FeatureRow {
	rows := make([]*domain.FeatureRow, len(dates))
	for i, d := range dates {
		rows[i] = &domain.FeatureRow{Date: day(d), Ticker: ticker, Close: float64(100 + i)}
	}
	return rows
}

func TestWriter_Persist_EmptyBatch(t *testing.T) {
	store := &appendOnlyStore{FeatureStore: memory.NewFeatureStore()}

	n, err := NewWriter(store, nil).Persist(context.Background(), nil, "run-1", true)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, store.deletes)
}

func TestWriter_Persist_StampsRunID(t *testing.T) {
	ctx := context.Background()
	store := memory.NewFeatureStore()
	rows := featureRows("AAPL", "2024-01-02", "2024-01-03")

	n, err := NewWriter(store, nil).Persist(ctx, rows, "run-42", false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := store.GetByDateRange(ctx, "AAPL", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	for _, r := range got {
		assert.Equal(t, "run-42", r.RunID)
	}
}

func TestWriter_Persist_ReplacesOnlyBatchSpan(t *testing.T) {
	ctx := context.Background()
	store := memory.NewFeatureStore()
	w := NewWriter(store, nil)

	_, err := w.Persist(ctx, featureRows("AAPL", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"), "run-1", false)
	require.NoError(t, err)

	// Out-of-order batch: span is still [01-03, 01-04].
	_, err = w.Persist(ctx, featureRows("AAPL", "2024-01-04", "2024-01-03"), "run-2", true)
	require.NoError(t, err)

	got, err := store.GetByDateRange(ctx, "AAPL", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, "run-2", got[1].RunID)
	assert.Equal(t, "run-2", got[2].RunID)
	assert.Equal(t, "run-1", got[3].RunID)
}

func TestWriter_Persist_NonAtomicDeleteThenInsert(t *testing.T) {
	ctx := context.Background()
	store := &appendOnlyStore{FeatureStore: memory.NewFeatureStore()}
	w := NewWriter(store, nil)

	_, err := w.Persist(ctx, featureRows("AAPL", "2024-01-02", "2024-01-03"), "run-1", true)
	require.NoError(t, err)
	_, err = w.Persist(ctx, featureRows("AAPL", "2024-01-02", "2024-01-03"), "run-2", true)
	require.NoError(t, err)

	assert.Equal(t, 2, store.deletes)
	got, err := store.GetByDateRange(ctx, "AAPL", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestWriter_Persist_DeleteFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewFeatureStore()
	require.NoError(t, mem.InsertBulk(ctx, featureRows("AAPL", "2024-01-02", "2024-01-03")))

	store := &appendOnlyStore{FeatureStore: mem, deleteErr: errors.New("mutation rejected")}
	before := testutil.ToFloat64(observability.DefaultMetrics.DeleteFailures)

	n, err := NewWriter(store, nil).Persist(ctx, featureRows("AAPL", "2024-01-02", "2024-01-03"), "run-2", true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, before+1, testutil.ToFloat64(observability.DefaultMetrics.DeleteFailures))

	// Old rows survive next to the new ones.
	assert.Equal(t, 4, mem.Len())
}

func TestWriter_Persist_CanceledContextStopsAfterFailedDelete(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mem := memory.NewFeatureStore()
	store := &appendOnlyStore{FeatureStore: mem, deleteErr: context.Canceled}

	_, err := NewWriter(store, nil).Persist(ctx, featureRows("AAPL", "2024-01-02"), "run-1", true)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, mem.Len())
}

func TestWriter_Persist_ReplaceFailureIsFatal(t *testing.T) {
	mem := memory.NewFeatureStore()
	replaceErr := errors.New("serialization failure")
	store := &failingReplacer{FeatureStore: mem, err: replaceErr}

	_, err := NewWriter(store, nil).Persist(context.Background(), featureRows("AAPL", "2024-01-02"), "run-1", true)
	require.ErrorIs(t, err, replaceErr)

	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "replace", writeErr.Stage)
	assert.Zero(t, mem.Len())
}

func TestWriter_Persist_RejectsMixedTickers(t *testing.T) {
	rows := append(featureRows("AAPL", "2024-01-02"), featureRows("MSFT", "2024-01-02")...)

	_, err := NewWriter(memory.NewFeatureStore(), nil).Persist(context.Background(), rows, "run-1", true)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
