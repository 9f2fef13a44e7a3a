package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"daily-feature-store/internal/domain"
	"daily-feature-store/internal/storage"
)

// FixtureSource is the source_name stamped on generated price rows.
const FixtureSource = "fixtures"

// GeneratePrices returns a deterministic daily series for ticker covering
// weekdays in [start, end]. The same seed always yields the same series.
func GeneratePrices(ticker string, start, end time.Time, seed uint64) []*domain.RawPriceRow {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	ingested := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	var rows []*domain.RawPriceRow
	prevClose := 100.0
	for d := domain.TruncateDate(start); !d.After(domain.TruncateDate(end)); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}

		open := prevClose * (1 + (rng.Float64()-0.5)*0.01)
		closePx := open * (1 + (rng.Float64()-0.5)*0.04)
		high := max(open, closePx) * (1 + rng.Float64()*0.01)
		low := min(open, closePx) * (1 - rng.Float64()*0.01)

		rows = append(rows, &domain.RawPriceRow{
			Date:          d,
			Ticker:        ticker,
			Open:          round2(open),
			High:          round2(high),
			Low:           round2(low),
			Close:         round2(closePx),
			AdjClose:      round2(closePx),
			Volume:        1_000_000 + rng.Int64N(4_000_000),
			RunID:         "fixture",
			IngestedAtUTC: ingested,
			SourceName:    FixtureSource,
		})
		prevClose = closePx
	}
	return rows
}

// LoadFixtures seeds store with a generated series for each ticker.
func LoadFixtures(ctx context.Context, store storage.PriceStore, tickers []string, start, end time.Time) error {
	for i, ticker := range tickers {
		rows := GeneratePrices(ticker, start, end, uint64(i+1))
		if err := store.InsertBulk(ctx, rows); err != nil {
			return fmt.Errorf("insert fixture prices for %s: %w", ticker, err)
		}
	}
	return nil
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
