package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"daily-feature-store/internal/domain"
	"daily-feature-store/internal/storage"
)

// PriceStore is an in-memory implementation of storage.PriceStore.
type PriceStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RawPriceRow // keyed by (ticker, date)
}

// NewPriceStore creates a new in-memory price store.
func NewPriceStore() *PriceStore {
	return &PriceStore{
		data: make(map[string]*domain.RawPriceRow),
	}
}

// priceKey generates a unique key for a price row.
func priceKey(ticker string, date time.Time) string {
	return fmt.Sprintf("%s|%s", ticker, date.Format(domain.DateLayout))
}

// InsertBulk adds multiple rows. Fails entire batch on duplicate.
func (s *PriceStore) InsertBulk(_ context.Context, rows []*domain.RawPriceRow) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(rows))

	// First pass: check for duplicates (existing + intra-batch)
	for _, r := range rows {
		if r == nil || r.Ticker == "" {
			return storage.ErrInvalidInput
		}
		key := priceKey(r.Ticker, r.Date)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, r := range rows {
		rowCopy := *r
		rowCopy.Date = domain.TruncateDate(r.Date)
		s.data[priceKey(r.Ticker, r.Date)] = &rowCopy
	}

	return nil
}

// GetByDateRange retrieves rows for a ticker within [start, end] (inclusive), ordered by date ASC.
func (s *PriceStore) GetByDateRange(_ context.Context, ticker string, start, end time.Time) ([]*domain.RawPriceRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, end = domain.TruncateDate(start), domain.TruncateDate(end)

	var result []*domain.RawPriceRow
	for _, r := range s.data {
		if r.Ticker == ticker && !r.Date.Before(start) && !r.Date.After(end) {
			rowCopy := *r
			result = append(result, &rowCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})

	return result, nil
}

var _ storage.PriceStore = (*PriceStore)(nil)
