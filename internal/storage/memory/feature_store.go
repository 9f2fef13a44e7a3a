package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"daily-feature-store/internal/domain"
	"daily-feature-store/internal/storage"
)

// FeatureStore is an in-memory implementation of storage.FeatureStore.
// Like the SQL table it has no uniqueness constraint: appending the same
// (ticker, date) twice keeps both rows.
type FeatureStore struct {
	mu   sync.RWMutex
	rows []*domain.FeatureRow
}

// NewFeatureStore creates a new in-memory feature store.
func NewFeatureStore() *FeatureStore {
	return &FeatureStore{}
}

// InsertBulk appends all rows.
func (s *FeatureStore) InsertBulk(_ context.Context, rows []*domain.FeatureRow) error {
	if err := validateRows(rows); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(rows)
	return nil
}

// DeleteRange removes rows for a ticker with date within [from, to].
func (s *FeatureStore) DeleteRange(_ context.Context, ticker string, from, to time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteLocked(func(r *domain.FeatureRow) bool {
		return r.Ticker == ticker && inRange(r.Date, from, to)
	}), nil
}

// DeleteByRunID removes every row written by a run.
func (s *FeatureStore) DeleteByRunID(_ context.Context, runID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteLocked(func(r *domain.FeatureRow) bool {
		return r.RunID == runID
	}), nil
}

// Replace deletes the ticker's rows in [from, to] and appends rows under one lock.
func (s *FeatureStore) Replace(_ context.Context, ticker string, from, to time.Time, rows []*domain.FeatureRow) (int64, error) {
	if err := validateRows(rows); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(func(r *domain.FeatureRow) bool {
		return r.Ticker == ticker && inRange(r.Date, from, to)
	})
	s.appendLocked(rows)

	return int64(len(rows)), nil
}

// GetByDateRange retrieves rows for a ticker within [start, end], ordered by date ASC.
func (s *FeatureStore) GetByDateRange(_ context.Context, ticker string, start, end time.Time) ([]*domain.FeatureRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.FeatureRow
	for _, r := range s.rows {
		if r.Ticker == ticker && inRange(r.Date, start, end) {
			rowCopy := *r
			result = append(result, &rowCopy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})

	return result, nil
}

// Len returns the total number of stored rows.
func (s *FeatureStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *FeatureStore) appendLocked(rows []*domain.FeatureRow) {
	for _, r := range rows {
		rowCopy := *r
		rowCopy.Date = domain.TruncateDate(r.Date)
		s.rows = append(s.rows, &rowCopy)
	}
}

func (s *FeatureStore) deleteLocked(match func(*domain.FeatureRow) bool) int64 {
	kept := s.rows[:0]
	var removed int64
	for _, r := range s.rows {
		if match(r) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	// Clear the tail so removed rows can be collected.
	for i := len(kept); i < len(s.rows); i++ {
		s.rows[i] = nil
	}
	s.rows = kept
	return removed
}

func validateRows(rows []*domain.FeatureRow) error {
	for _, r := range rows {
		if r == nil || r.Ticker == "" {
			return storage.ErrInvalidInput
		}
	}
	return nil
}

func inRange(d, from, to time.Time) bool {
	d = domain.TruncateDate(d)
	return !d.Before(domain.TruncateDate(from)) && !d.After(domain.TruncateDate(to))
}

var (
	_ storage.FeatureStore = (*FeatureStore)(nil)
	_ storage.Replacer     = (*FeatureStore)(nil)
)
