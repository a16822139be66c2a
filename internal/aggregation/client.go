// Package aggregation runs single aggregate queries against the time-series
// store. A query covers one tag, one window and one aggregate function and
// yields a value or "no data".
package aggregation

import (
	"context"
	"fmt"
	"time"

	"aquaexport/internal/window"
	"aquaexport/pkg/contracts/domain"
)

// Query is one aggregate over one tag inside one window.
type Query struct {
	Tag          domain.TagID
	Start        time.Time
	End          time.Time
	EndInclusive bool
	Func         domain.AggFunc
	// PositiveOnly restricts the aggregate to readings greater than zero.
	PositiveOnly bool
}

// NewQuery builds the query for one aggregate of a metric in a window.
// The positive-only filter of a metric never applies to MAX.
func NewQuery(m domain.Metric, w window.DayWindow, fn domain.AggFunc) Query {
	return Query{
		Tag:          m.Tag,
		Start:        w.Start,
		End:          w.End,
		EndInclusive: w.EndInclusive,
		Func:         fn,
		PositiveOnly: m.PositiveOnly && fn != domain.AggMax,
	}
}

// String renders the query for logs.
func (q Query) String() string {
	closing := ")"
	if q.EndInclusive {
		closing = "]"
	}
	return fmt.Sprintf("%s(tag %d) [%s, %s%s", q.Func, q.Tag,
		q.Start.UTC().Format(time.RFC3339), q.End.UTC().Format(time.RFC3339), closing)
}

// Client computes aggregates. An empty window returns domain.None() and no error.
type Client interface {
	Aggregate(ctx context.Context, q Query) (domain.Value, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, q Query) (domain.Value, error)

// Aggregate calls f.
func (f ClientFunc) Aggregate(ctx context.Context, q Query) (domain.Value, error) {
	return f(ctx, q)
}
