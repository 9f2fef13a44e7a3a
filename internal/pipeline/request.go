package pipeline

import (
	"fmt"
	"strings"
	"time"

	"daily-feature-store/internal/domain"
	"daily-feature-store/internal/storage"
)

// Mode names how a run was invoked. Both modes run the same pipeline;
// they differ only in the date range the caller passes.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeByDateRange Mode = "by-date-range"
)

// ParseMode parses a --mode value.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFull:
		return ModeFull, nil
	case ModeByDateRange:
		return ModeByDateRange, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q (want full or by-date-range)", storage.ErrInvalidInput, s)
	}
}

// Request is one (ticker, date range, run id) invocation.
type Request struct {
	Mode      Mode
	Ticker    string
	Start     time.Time // inclusive
	End       time.Time // inclusive
	RunID     string
	Overwrite bool
}

// Validate checks the request before any I/O.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Ticker) == "" {
		return fmt.Errorf("%w: ticker is required", storage.ErrInvalidInput)
	}
	if strings.TrimSpace(r.RunID) == "" {
		return fmt.Errorf("%w: run id is required", storage.ErrInvalidInput)
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", storage.ErrInvalidInput)
	}
	if domain.TruncateDate(r.Start).After(domain.TruncateDate(r.End)) {
		return fmt.Errorf("%w: start date %s is after end date %s", storage.ErrInvalidInput,
			r.Start.Format(domain.DateLayout), r.End.Format(domain.DateLayout))
	}
	return nil
}

// Result summarizes a completed run.
type Result struct {
	Ticker      string
	RunID       string
	NoData      bool // load returned nothing; no write was attempted
	RowsLoaded  int
	RowsWritten int64
	From        time.Time // min date written
	To          time.Time // max date written
	Duration    time.Duration
}
