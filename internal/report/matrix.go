// Package report assembles the report matrix: one cell per date, location,
// parameter and aggregate function of an export.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"aquaexport/pkg/contracts/domain"
)

// CellKey identifies one aggregate of one metric on one day.
type CellKey struct {
	Date      domain.Date    `json:"date"`
	Location  string         `json:"location"`
	Parameter string         `json:"parameter"`
	Func      domain.AggFunc `json:"func"`
}

// String renders the key for logs and error listings.
func (k CellKey) String() string {
	return fmt.Sprintf("%s %s/%s %s", k.Date, k.Location, k.Parameter, k.Func)
}

// Less orders keys by date, location, parameter and function.
func (k CellKey) Less(o CellKey) bool {
	if k.Date != o.Date {
		return k.Date.Before(o.Date)
	}
	if k.Location != o.Location {
		return k.Location < o.Location
	}
	if k.Parameter != o.Parameter {
		return k.Parameter < o.Parameter
	}
	return k.Func < o.Func
}

// CellStatus is the outcome of one cell.
type CellStatus string

const (
	CellValue  CellStatus = "value"
	CellNoData CellStatus = "no_data"
	CellError  CellStatus = "error"
)

// Failure reasons recorded on error cells.
const (
	ReasonQuery       = "query_failed"
	ReasonTimeout     = "timeout"
	ReasonConnection  = "connection"
	ReasonCircuitOpen = "circuit_open"
	ReasonCancelled   = "cancelled"
)

// Cell is a computed value, an explicit "no data" marker or a failure.
type Cell struct {
	Key    CellKey      `json:"key"`
	Value  domain.Value `json:"value"`
	Reason string       `json:"reason,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// Status derives the cell outcome.
func (c Cell) Status() CellStatus {
	switch {
	case c.Error != "":
		return CellError
	case !c.Value.Present:
		return CellNoData
	default:
		return CellValue
	}
}

// Matrix is safe for concurrent insertion. Each key can be set once.
type Matrix struct {
	Mode  domain.Mode
	Range domain.DateRange
	// Expected is the number of keys scheduled for the build.
	Expected int

	mu    sync.RWMutex
	cells map[CellKey]Cell
}

// NewMatrix creates an empty matrix for a mode and date range.
func NewMatrix(mode domain.Mode, rng domain.DateRange) *Matrix {
	return &Matrix{
		Mode:  mode,
		Range: rng,
		cells: make(map[CellKey]Cell),
	}
}

// Put stores a cell. A second cell for the same key is rejected.
func (m *Matrix) Put(c Cell) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.cells[c.Key]; exists {
		return fmt.Errorf("duplicate cell %s", c.Key)
	}
	m.cells[c.Key] = c
	return nil
}

// Get returns the cell of a key.
func (m *Matrix) Get(k CellKey) (Cell, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cells[k]
	return c, ok
}

// Len returns the number of cells.
func (m *Matrix) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cells)
}

// Cells returns every cell ordered by key.
func (m *Matrix) Cells() []Cell {
	return m.filter(func(Cell) bool { return true })
}

// Failures returns the error cells ordered by key.
func (m *Matrix) Failures() []Cell {
	return m.filter(func(c Cell) bool { return c.Status() == CellError })
}

// ForYear returns the cells dated in one year, ordered by key.
func (m *Matrix) ForYear(year int) []Cell {
	return m.filter(func(c Cell) bool { return c.Key.Date.Year == year })
}

// Years lists the years the matrix touches in ascending order.
func (m *Matrix) Years() []int {
	m.mu.RLock()
	seen := make(map[int]struct{})
	for k := range m.cells {
		seen[k.Date.Year] = struct{}{}
	}
	m.mu.RUnlock()

	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Counts tallies cells by status.
func (m *Matrix) Counts() map[CellStatus]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := map[CellStatus]int{CellValue: 0, CellNoData: 0, CellError: 0}
	for _, c := range m.cells {
		counts[c.Status()]++
	}
	return counts
}

// Mergeable reports whether at least one cell carries a value or a no-data marker.
func (m *Matrix) Mergeable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.cells {
		if c.Status() != CellError {
			return true
		}
	}
	return false
}

func (m *Matrix) filter(keep func(Cell) bool) []Cell {
	m.mu.RLock()
	out := make([]Cell, 0, len(m.cells))
	for _, c := range m.cells {
		if keep(c) {
			out = append(out, c)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

type matrixJSON struct {
	Mode     domain.Mode      `json:"mode"`
	Range    domain.DateRange `json:"range"`
	Expected int              `json:"expected"`
	Cells    []Cell           `json:"cells"`
}

// MarshalJSON encodes the matrix with cells in key order.
func (m *Matrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(matrixJSON{
		Mode:     m.Mode,
		Range:    m.Range,
		Expected: m.Expected,
		Cells:    m.Cells(),
	})
}

// UnmarshalJSON restores a stored matrix.
func (m *Matrix) UnmarshalJSON(data []byte) error {
	var raw matrixJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	restored := NewMatrix(raw.Mode, raw.Range)
	restored.Expected = raw.Expected
	for _, c := range raw.Cells {
		if err := restored.Put(c); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Mode = restored.Mode
	m.Range = restored.Range
	m.Expected = restored.Expected
	m.cells = restored.cells
	return nil
}
