package domain

import "time"

// DateLayout is the calendar date format used on the command line and in logs.
const DateLayout = "2006-01-02"

// RawPriceRow represents one trading day for one symbol.
// Corresponds to <raw schema>.prices_daily in PostgreSQL. Read-only to this module.
type RawPriceRow struct {
	Date          time.Time // calendar date, midnight UTC
	Ticker        string    // symbol identifier
	Open          float64
	High          float64
	Low           float64
	Close         float64
	AdjClose      float64
	Volume        int64
	RunID         string    // upstream ingestion run
	IngestedAtUTC time.Time // upstream ingestion timestamp
	SourceName    string    // upstream data vendor
}

// ParseDate parses a YYYY-MM-DD calendar date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// TruncateDate drops the time-of-day component, keeping the calendar date in UTC.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
