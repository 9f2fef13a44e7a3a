package domain

import "time"

// FeatureRow is one RawPriceRow enriched with derived fields.
// Corresponds to <analytics schema>.daily_features. Pointer fields are NULL
// when the value is undefined (insufficient history or division by zero).
type FeatureRow struct {
	Date      time.Time
	Ticker    string
	Year      int
	Month     int
	DayOfWeek int // 0 = Monday .. 6 = Sunday

	Open   float64
	Close  float64
	High   float64
	Low    float64
	Volume int64

	ReturnCloseOpen  *float64 // (close - open) / open, NULL if open == 0
	ReturnPrevClose  *float64 // close / close_lag1 - 1, NULL if close_lag1 is NULL or 0
	Volatility5Days  *float64 // sample stddev of return_prev_close, 5 rows, min 2
	Volatility10Days *float64 // 10 rows, min 5
	Volatility20Days *float64 // 20 rows, min 10

	CloseLag1  *float64
	CloseLag2  *float64
	CloseLag3  *float64
	VolumeLag1 *int64

	IsMonday bool
	IsFriday bool

	RunID         string
	IngestedAtUTC time.Time
}

// FeatureColumns is the fixed destination column order of daily_features.
// The downstream model service reads this table, so order and set must not change.
var FeatureColumns = []string{
	"date", "ticker", "year", "month", "day_of_week",
	"open", "close", "high", "low", "volume",
	"return_close_open", "return_prev_close",
	"volatility_5_days", "volatility_10_days", "volatility_20_days",
	"close_lag1", "close_lag2", "close_lag3", "volume_lag1",
	"is_monday", "is_friday",
	"run_id", "ingested_at_utc",
}

// Values returns the row's column values in FeatureColumns order.
// NULL columns are returned as untyped nil.
func (r *FeatureRow) Values() []any {
	return []any{
		r.Date, r.Ticker, r.Year, r.Month, r.DayOfWeek,
		r.Open, r.Close, r.High, r.Low, r.Volume,
		nullable(r.ReturnCloseOpen), nullable(r.ReturnPrevClose),
		nullable(r.Volatility5Days), nullable(r.Volatility10Days), nullable(r.Volatility20Days),
		nullable(r.CloseLag1), nullable(r.CloseLag2), nullable(r.CloseLag3), nullable(r.VolumeLag1),
		r.IsMonday, r.IsFriday,
		r.RunID, r.IngestedAtUTC,
	}
}

// ModelInput returns the flat record consumed by the prediction service.
// Undefined values are passed as nil so the service can impute them.
func (r *FeatureRow) ModelInput() map[string]any {
	return map[string]any{
		"close_lag1":         nullable(r.CloseLag1),
		"close_lag2":         nullable(r.CloseLag2),
		"close_lag3":         nullable(r.CloseLag3),
		"return_prev_close":  nullable(r.ReturnPrevClose),
		"volatility_5_days":  nullable(r.Volatility5Days),
		"volatility_10_days": nullable(r.Volatility10Days),
		"volatility_20_days": nullable(r.Volatility20Days),
		"volume_lag1":        nullable(r.VolumeLag1),
		"day_of_week":        r.DayOfWeek,
		"month":              r.Month,
		"is_monday":          r.IsMonday,
		"is_friday":          r.IsFriday,
	}
}

// ModelFeatures lists the keys ModelInput produces.
var ModelFeatures = []string{
	"close_lag1", "close_lag2", "close_lag3",
	"return_prev_close",
	"volatility_5_days", "volatility_10_days", "volatility_20_days",
	"volume_lag1",
	"day_of_week", "month",
	"is_monday", "is_friday",
}

func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
