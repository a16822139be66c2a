package domain

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Date is a civil calendar date without clock or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate returns the normalised date for the given parts, so NewDate(2024, 1, 32)
// is February 1st.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays returns d shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return NewDate(d.Year, d.Month, d.Day+n)
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return other.Before(d)
}

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// String formats d as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From Date `json:"from"`
	To   Date `json:"to"`
}

// NewDateRange validates and returns the inclusive range [from, to].
func NewDateRange(from, to Date) (DateRange, error) {
	r := DateRange{From: from, To: to}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// Validate checks that the range is non-empty.
func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return fmt.Errorf("date range requires both start and end dates")
	}
	if r.From.After(r.To) {
		return fmt.Errorf("start date %s is after end date %s", r.From, r.To)
	}
	return nil
}

// Days enumerates every date in the range in ascending order.
func (r DateRange) Days() []Date {
	var days []Date
	for d := r.From; !d.After(r.To); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.From) && !d.After(r.To)
}

// String formats the range as "from..to".
func (r DateRange) String() string {
	return r.From.String() + ".." + r.To.String()
}
