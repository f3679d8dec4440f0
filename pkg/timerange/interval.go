package timerange

import (
	"errors"
	"fmt"
	"time"
)

// Errors returned by interval construction and chunk planning.
var (
	// ErrInvalidInterval is returned when from is after to.
	ErrInvalidInterval = errors.New("interval from is after to")

	// ErrInvalidWidth is returned for a non-positive chunk width.
	ErrInvalidWidth = errors.New("chunk width must be positive")
)

// day is the granularity of the export API: ranges are whole UTC dates.
const day = 24 * time.Hour

// Interval is an inclusive date range [From, To], normalized to midnight UTC.
// Immutable once constructed.
type Interval struct {
	From time.Time
	To   time.Time
}

// NewInterval builds an interval from two dates, truncating both to midnight
// UTC. Returns ErrInvalidInterval if from is after to.
func NewInterval(from, to time.Time) (Interval, error) {
	iv := Interval{From: truncateDay(from), To: truncateDay(to)}
	if iv.From.After(iv.To) {
		return Interval{}, fmt.Errorf("%w: %s > %s", ErrInvalidInterval, iv.From.Format(DateFormat), iv.To.Format(DateFormat))
	}
	return iv, nil
}

// MustInterval is NewInterval for hardcoded ranges in tests and examples.
// Panics on invalid input.
func MustInterval(from, to string) Interval {
	f, err := ParseDate(from)
	if err != nil {
		panic(err)
	}
	t, err := ParseDate(to)
	if err != nil {
		panic(err)
	}
	iv, err := NewInterval(f, t)
	if err != nil {
		panic(err)
	}
	return iv
}

// DateFormat is the wire format for export date parameters.
const DateFormat = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// Days returns the inclusive day count of the interval. A single-day
// interval has Days() == 1.
func (iv Interval) Days() int {
	return int(iv.To.Sub(iv.From)/day) + 1
}

// Contains reports whether the given date (truncated to UTC midnight) falls
// inside the interval.
func (iv Interval) Contains(t time.Time) bool {
	d := truncateDay(t)
	return !d.Before(iv.From) && !d.After(iv.To)
}

// String renders the interval as "YYYY-MM-DD..YYYY-MM-DD".
func (iv Interval) String() string {
	return iv.From.Format(DateFormat) + ".." + iv.To.Format(DateFormat)
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
