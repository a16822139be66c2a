package domain

import (
	"fmt"
	"strings"
)

// TagID identifies a sensor channel in the time-series store (floattable.tagindex).
type TagID int

// MetricKind selects the aggregation regime of a metric.
type MetricKind string

const (
	// KindQuality is an instantaneous probe reported as daily MAX, MIN and AVG.
	KindQuality MetricKind = "quality"
	// KindFlow is an instantaneous flow reported as the daily MAX.
	KindFlow MetricKind = "flow"
	// KindCounter is a cumulative counter that resets near midnight; the daily
	// total is its peak inside the window straddling the reset.
	KindCounter MetricKind = "counter"
)

// Valid reports whether k is a known kind.
func (k MetricKind) Valid() bool {
	switch k {
	case KindQuality, KindFlow, KindCounter:
		return true
	}
	return false
}

// Instantaneous reports whether the kind is aggregated over the calendar day.
func (k MetricKind) Instantaneous() bool {
	return k == KindQuality || k == KindFlow
}

// AggFunc is an SQL aggregate applied to the readings inside a window.
type AggFunc string

const (
	AggMin AggFunc = "MIN"
	AggMax AggFunc = "MAX"
	AggAvg AggFunc = "AVG"
)

// ParseAggFunc accepts min/max/avg in any case.
func ParseAggFunc(s string) (AggFunc, error) {
	switch AggFunc(strings.ToUpper(strings.TrimSpace(s))) {
	case AggMin:
		return AggMin, nil
	case AggMax:
		return AggMax, nil
	case AggAvg:
		return AggAvg, nil
	}
	return "", fmt.Errorf("unknown aggregate function %q", s)
}

// Functions returns the aggregates reported for a kind, in column order.
func (k MetricKind) Functions() []AggFunc {
	if k == KindQuality {
		return []AggFunc{AggMax, AggMin, AggAvg}
	}
	return []AggFunc{AggMax}
}

// Metric is one configured measurement: a location/parameter pair bound to a tag.
type Metric struct {
	Mode      Mode       `json:"mode"`
	Location  string     `json:"location"`
	Parameter string     `json:"parameter"`
	Tag       TagID      `json:"tag"`
	Kind      MetricKind `json:"kind"`
	Unit      string     `json:"unit,omitempty"`
	// Precision is the number of decimal places kept when rounding results.
	Precision int32 `json:"precision"`
	// PositiveOnly drops non-positive readings from MIN and AVG. Probes report
	// zero while offline.
	PositiveOnly bool `json:"positive_only,omitempty"`
}

// Key returns the location/parameter identity of the metric within its mode.
func (m Metric) Key() string {
	return m.Location + "/" + m.Parameter
}

// Value is an aggregate result. Present is false when the window held no readings,
// which is distinct from a reading of zero.
type Value struct {
	Float   float64 `json:"value"`
	Present bool    `json:"present"`
}

// Some wraps a present value.
func Some(v float64) Value {
	return Value{Float: v, Present: true}
}

// None is the "no data" value.
func None() Value {
	return Value{}
}

// String renders the value or "no data".
func (v Value) String() string {
	if !v.Present {
		return "no data"
	}
	return fmt.Sprintf("%g", v.Float)
}
