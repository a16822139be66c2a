// Package window computes the query interval and aggregate functions for one
// calendar day of one metric kind.
//
// Instantaneous metrics are aggregated over the local calendar day
// [00:00:00, 23:59:59] inclusive. Cumulative counters reset near midnight, so a
// day's total is the peak observed in [previous day 22:00, day 03:00), a window
// that straddles the reset. The first day of any export therefore reads data
// from the evening before the requested range.
//
// Boundaries are built in the storage-local zone and converted to UTC before
// querying. The calculator never reads the clock.
package window

import (
	"fmt"
	"time"

	"aquaexport/pkg/contracts/domain"
)

const (
	// CounterLead is how long before local midnight a counter window opens.
	CounterLead = 2 * time.Hour
	// CounterTrail is how long after local midnight a counter window closes.
	CounterTrail = 3 * time.Hour
	// DayEnd is the inclusive end offset of an instantaneous window.
	DayEnd = 23*time.Hour + 59*time.Minute + 59*time.Second
)

// DayWindow is the query interval and aggregate set for one date and kind.
type DayWindow struct {
	Date  domain.Date
	Start time.Time
	End   time.Time
	// EndInclusive is true for instantaneous windows, which close at 23:59:59.
	EndInclusive bool
	Functions    []domain.AggFunc
}

// Contains reports whether t lies inside the window.
func (w DayWindow) Contains(t time.Time) bool {
	if t.Before(w.Start) {
		return false
	}
	if w.EndInclusive {
		return !t.After(w.End)
	}
	return t.Before(w.End)
}

// String renders the window with interval notation.
func (w DayWindow) String() string {
	closing := ")"
	if w.EndInclusive {
		closing = "]"
	}
	return fmt.Sprintf("%s [%s, %s%s %v", w.Date, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339), closing, w.Functions)
}

// Calculator derives windows in a fixed storage-local zone.
type Calculator struct {
	loc *time.Location
}

// NewCalculator creates a calculator for the given zone. A nil zone means UTC.
func NewCalculator(loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{loc: loc}
}

// Location returns the zone window boundaries are computed in.
func (c *Calculator) Location() *time.Location {
	return c.loc
}

// For returns the window for date d and metric kind k.
func (c *Calculator) For(d domain.Date, k domain.MetricKind) (DayWindow, error) {
	if !k.Valid() {
		return DayWindow{}, fmt.Errorf("unknown metric kind %q", k)
	}

	midnight := d.In(c.loc)
	w := DayWindow{Date: d, Functions: k.Functions()}

	if k.Instantaneous() {
		w.Start = midnight.UTC()
		w.End = localClock(d, c.loc, DayEnd).UTC()
		w.EndInclusive = true
		return w, nil
	}

	prev := d.AddDays(-1)
	w.Start = localClock(prev, c.loc, 24*time.Hour-CounterLead).UTC()
	w.End = localClock(d, c.loc, CounterTrail).UTC()
	return w, nil
}

// localClock builds the wall-clock time offset from midnight of d in loc. Using
// time.Date keeps the wall clock correct across DST changes.
func localClock(d domain.Date, loc *time.Location, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)
	s := int(offset % time.Minute / time.Second)
	return time.Date(d.Year, d.Month, d.Day, h, m, s, 0, loc)
}
