package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// monthKeyFormat is the canonical YYYY-MM representation.
const monthKeyFormat = "2006-01"

// MonthKey identifies a calendar month. All range and lookup logic operates
// on MonthKey instead of raw dates so that snapshots timestamped mid-month
// cannot drift the period arithmetic.
//
// The zero value is "empty" and means no month selected.
type MonthKey struct {
	year  int
	month time.Month
}

// NewMonthKey returns a normalized MonthKey for the given year and month.
// Out-of-range months roll over the year, matching time.Date semantics.
func NewMonthKey(year int, month time.Month) MonthKey {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return MonthKey{year: t.Year(), month: t.Month()}
}

// MonthKeyOf extracts the MonthKey from an arbitrary timestamp.
func MonthKeyOf(t time.Time) MonthKey {
	if t.IsZero() {
		return MonthKey{}
	}
	return MonthKey{year: t.Year(), month: t.Month()}
}

// ParseMonthKey accepts "YYYY-MM" or a full "YYYY-MM-DD" date, which is
// truncated to its month. An empty string parses to the zero MonthKey.
func ParseMonthKey(s string) (MonthKey, error) {
	if s == "" {
		return MonthKey{}, nil
	}
	if t, err := time.Parse(monthKeyFormat, s); err == nil {
		return MonthKeyOf(t), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return MonthKey{}, fmt.Errorf("invalid month %q, want YYYY-MM: %w", s, err)
	}
	return MonthKeyOf(t), nil
}

// MustMonthKey is a ParseMonthKey that panics; intended for tests and fixtures.
func MustMonthKey(s string) MonthKey {
	mk, err := ParseMonthKey(s)
	if err != nil {
		panic(err.Error())
	}
	return mk
}

// IsZero reports whether the key is empty.
func (mk MonthKey) IsZero() bool { return mk.year == 0 && mk.month == 0 }

// Year returns the calendar year.
func (mk MonthKey) Year() int { return mk.year }

// Month returns the calendar month.
func (mk MonthKey) Month() time.Month { return mk.month }

func (mk MonthKey) String() string {
	if mk.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", mk.year, int(mk.month))
}

// index is the absolute month number used for ordering and distance.
func (mk MonthKey) index() int { return mk.year*12 + int(mk.month) - 1 }

// Before reports whether mk is strictly earlier than other.
func (mk MonthKey) Before(other MonthKey) bool { return mk.index() < other.index() }

// After reports whether mk is strictly later than other.
func (mk MonthKey) After(other MonthKey) bool { return mk.index() > other.index() }

// AddMonths returns the key n months away (n may be negative).
func (mk MonthKey) AddMonths(n int) MonthKey {
	return NewMonthKey(mk.year, mk.month+time.Month(n))
}

// Prev returns the immediately preceding month.
func (mk MonthKey) Prev() MonthKey { return mk.AddMonths(-1) }

// Next returns the immediately following month.
func (mk MonthKey) Next() MonthKey { return mk.AddMonths(1) }

// MonthsBetween returns the signed month distance from mk to other.
// Adjacent months are 1 apart regardless of the underlying snapshot days.
func (mk MonthKey) MonthsBetween(other MonthKey) int {
	return other.index() - mk.index()
}

// FirstDay returns midnight UTC on the first day of the month.
func (mk MonthKey) FirstDay() time.Time {
	return time.Date(mk.year, mk.month, 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd returns midnight UTC on the last day of the month.
func (mk MonthKey) MonthEnd() time.Time {
	return mk.FirstDay().AddDate(0, 1, -1)
}

// MarshalJSON encodes the key as its canonical YYYY-MM string.
func (mk MonthKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(mk.String())
}

func (mk *MonthKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMonthKey(s)
	if err != nil {
		return err
	}
	*mk = parsed
	return nil
}

var (
	_ json.Marshaler   = MonthKey{}
	_ json.Unmarshaler = (*MonthKey)(nil)
)
