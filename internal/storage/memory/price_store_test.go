package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"daily-feature-store/internal/domain"
	"daily-feature-store/internal/storage"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPriceStore_InsertBulkAndGetByDateRange(t *testing.T) {
	store := NewPriceStore()
	ctx := context.Background()

	rows := []*domain.RawPriceRow{
		{Ticker: "AAPL", Date: date(2024, 1, 3), Close: 3},
		{Ticker: "AAPL", Date: date(2024, 1, 1), Close: 1},
		{Ticker: "AAPL", Date: date(2024, 1, 2), Close: 2},
		{Ticker: "MSFT", Date: date(2024, 1, 2), Close: 20},
	}

	if err := store.InsertBulk(ctx, rows); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByDateRange(ctx, "AAPL", date(2024, 1, 1), date(2024, 1, 2))
	if err != nil {
		t.Fatalf("GetByDateRange failed: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(result))
	}
	if result[0].Close != 1 || result[1].Close != 2 {
		t.Errorf("Expected ascending dates, got closes %v, %v", result[0].Close, result[1].Close)
	}
}

func TestPriceStore_EmptyRange(t *testing.T) {
	store := NewPriceStore()

	result, err := store.GetByDateRange(context.Background(), "NONE", date(2024, 1, 1), date(2024, 12, 31))
	if err != nil {
		t.Fatalf("Expected no error for empty range, got %v", err)
	}
	if len(result) != 0 {
		t.Errorf("Expected no rows, got %d", len(result))
	}
}

func TestPriceStore_DuplicateKey(t *testing.T) {
	store := NewPriceStore()
	ctx := context.Background()

	rows := []*domain.RawPriceRow{{Ticker: "AAPL", Date: date(2024, 1, 1)}}
	if err := store.InsertBulk(ctx, rows); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.InsertBulk(ctx, rows)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestPriceStore_IntraBatchDuplicate(t *testing.T) {
	store := NewPriceStore()

	rows := []*domain.RawPriceRow{
		{Ticker: "AAPL", Date: date(2024, 1, 1)},
		{Ticker: "AAPL", Date: date(2024, 1, 1)},
	}

	err := store.InsertBulk(context.Background(), rows)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestPriceStore_InvalidInput(t *testing.T) {
	store := NewPriceStore()

	err := store.InsertBulk(context.Background(), []*domain.RawPriceRow{{Date: date(2024, 1, 1)}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
