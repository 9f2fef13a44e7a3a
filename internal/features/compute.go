// Package features derives per-day model features from an ordered price series.
package features

import (
	"time"

	"daily-feature-store/internal/domain"
)

// Rolling volatility windows over return_prev_close.
var VolatilityWindows = []Window{
	{Size: 5, MinPeriods: 2},
	{Size: 10, MinPeriods: 5},
	{Size: 20, MinPeriods: 10},
}

// Compute derives a FeatureRow for every input row.
// Rows must be ordered ascending by date. Lags and windows operate on the
// sequence index, not on calendar days, so gaps from non-trading days are kept.
// The output has the same length and order as the input. All rows share
// ingestedAt, truncated to UTC.
//
// Derivation order:
//   - year, month, day_of_week, is_monday, is_friday from date
//   - return_close_open = (close - open) / open, NULL if open == 0
//   - close_lag1..3, volume_lag1 = value 1..3 rows earlier, NULL if no such row
//   - return_prev_close = close / close_lag1 - 1, NULL if close_lag1 is NULL or 0
//   - volatility_{5,10,20}_days = sample stddev of return_prev_close over the
//     trailing window, NULL below the window's minimum defined observations
func Compute(rows []*domain.RawPriceRow, ingestedAt time.Time) []*domain.FeatureRow {
	if len(rows) == 0 {
		return nil
	}

	ingestedAt = ingestedAt.UTC()
	result := make([]*domain.FeatureRow, len(rows))
	returns := make([]*float64, len(rows))

	for i, r := range rows {
		dow := weekdayIndex(r.Date.Weekday())
		f := &domain.FeatureRow{
			Date:          r.Date,
			Ticker:        r.Ticker,
			Year:          r.Date.Year(),
			Month:         int(r.Date.Month()),
			DayOfWeek:     dow,
			IsMonday:      dow == 0,
			IsFriday:      dow == 4,
			Open:          r.Open,
			Close:         r.Close,
			High:          r.High,
			Low:           r.Low,
			Volume:        r.Volume,
			IngestedAtUTC: ingestedAt,
		}

		if r.Open != 0 {
			v := (r.Close - r.Open) / r.Open
			f.ReturnCloseOpen = &v
		}

		f.CloseLag1 = closeLag(rows, i, 1)
		f.CloseLag2 = closeLag(rows, i, 2)
		f.CloseLag3 = closeLag(rows, i, 3)
		if i >= 1 {
			v := rows[i-1].Volume
			f.VolumeLag1 = &v
		}

		if f.CloseLag1 != nil {
			f.ReturnPrevClose = ratioMinusOne(r.Close, *f.CloseLag1)
		}
		returns[i] = f.ReturnPrevClose

		result[i] = f
	}

	vol5 := RollingStd(returns, VolatilityWindows[0])
	vol10 := RollingStd(returns, VolatilityWindows[1])
	vol20 := RollingStd(returns, VolatilityWindows[2])
	for i, f := range result {
		f.Volatility5Days = vol5[i]
		f.Volatility10Days = vol10[i]
		f.Volatility20Days = vol20[i]
	}

	return result
}

// weekdayIndex maps time.Weekday (Sunday = 0) to Monday = 0 .. Sunday = 6.
func weekdayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// ratioMinusOne returns num/den - 1, or nil when den is zero.
func ratioMinusOne(num, den float64) *float64 {
	if den == 0 {
		return nil
	}
	v := num/den - 1
	return &v
}

func closeLag(rows []*domain.RawPriceRow, i, lag int) *float64 {
	if i < lag {
		return nil
	}
	v := rows[i-lag].Close
	return &v
}
