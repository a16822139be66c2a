package operations

import (
	"fmt"
	"time"

	apperrors "aquaexport/internal/errors"
	"aquaexport/internal/report"
	"aquaexport/internal/workbook"
	"aquaexport/pkg/contracts/domain"
)

// RunStatus is the lifecycle state of an export run
type RunStatus string

const (
	RunStatusPending        RunStatus = "PENDING"
	RunStatusBuilding       RunStatus = "BUILDING"
	RunStatusMerging        RunStatus = "MERGING"
	RunStatusDone           RunStatus = "DONE"
	RunStatusDoneWithErrors RunStatus = "DONE_WITH_ERRORS"
	RunStatusFailed         RunStatus = "FAILED"
	RunStatusCancelled      RunStatus = "CANCELLED"
)

// transitions lists the states reachable from each state. FAILED may move
// back to MERGING when a merge is retried against the stored matrix.
var transitions = map[RunStatus][]RunStatus{
	RunStatusPending:  {RunStatusBuilding, RunStatusFailed, RunStatusCancelled},
	RunStatusBuilding: {RunStatusMerging, RunStatusDoneWithErrors, RunStatusCancelled, RunStatusFailed},
	RunStatusMerging:  {RunStatusDone, RunStatusDoneWithErrors, RunStatusFailed},
	RunStatusFailed:   {RunStatusMerging},
}

// Terminal reports whether no further work happens for a run in this state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusDone, RunStatusDoneWithErrors, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a run may move from s to next.
func (s RunStatus) CanTransition(next RunStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CellFailure is one cell that could not be computed
type CellFailure struct {
	Key    report.CellKey `json:"key"`
	Reason string         `json:"reason"`
	Error  string         `json:"error"`
}

// RunResult is the record of one export run. The matrix is kept so a failed
// merge can be retried without querying again.
type RunResult struct {
	ID      string           `json:"id"`
	Mode    domain.Mode      `json:"mode"`
	Range   domain.DateRange `json:"range"`
	Status  RunStatus        `json:"status"`
	Trigger string           `json:"trigger,omitempty"`

	Attempted int               `json:"attempted"`
	Values    int               `json:"values"`
	NoData    int               `json:"no_data"`
	Failures  []CellFailure     `json:"failures,omitempty"`
	Workbooks []workbook.Result `json:"workbooks,omitempty"`
	// MergeAttempts counts merges including retries.
	MergeAttempts int    `json:"merge_attempts"`
	Error         string `json:"error,omitempty"`

	Matrix *report.Matrix `json:"matrix,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewRunResult creates a pending run
func NewRunResult(id string, mode domain.Mode, rng domain.DateRange, trigger string) *RunResult {
	now := time.Now().UTC()
	return &RunResult{
		ID:        id,
		Mode:      mode,
		Range:     rng,
		Status:    RunStatusPending,
		Trigger:   trigger,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the run to next or returns ErrInvalidState.
func (r *RunResult) Transition(next RunStatus) error {
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("run %s: %s -> %s: %w", r.ID, r.Status, next, apperrors.ErrInvalidState)
	}
	now := time.Now().UTC()
	r.Status = next
	r.UpdatedAt = now
	if next.Terminal() {
		r.FinishedAt = &now
	} else {
		r.FinishedAt = nil
	}
	return nil
}

// Fail records err and moves the run to FAILED.
func (r *RunResult) Fail(err error) error {
	if err != nil {
		r.Error = err.Error()
	}
	return r.Transition(RunStatusFailed)
}

// Record copies the cell tallies and failures of m into the run.
func (r *RunResult) Record(m *report.Matrix) {
	r.Matrix = m
	if m == nil {
		return
	}
	counts := m.Counts()
	r.Attempted = m.Len()
	r.Values = counts[report.CellValue]
	r.NoData = counts[report.CellNoData]

	failed := m.Failures()
	r.Failures = make([]CellFailure, 0, len(failed))
	for _, c := range failed {
		r.Failures = append(r.Failures, CellFailure{Key: c.Key, Reason: c.Reason, Error: c.Error})
	}
}

// Duration returns the time from creation to completion, or until now for
// runs still in progress.
func (r *RunResult) Duration() time.Duration {
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.CreatedAt)
	}
	return time.Since(r.CreatedAt)
}

// Clone returns a copy that shares only the matrix, which is not modified
// after the build.
func (r *RunResult) Clone() *RunResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Failures = append([]CellFailure(nil), r.Failures...)
	c.Workbooks = append([]workbook.Result(nil), r.Workbooks...)
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Summary returns a copy without the matrix, for listings.
func (r *RunResult) Summary() *RunResult {
	c := r.Clone()
	c.Matrix = nil
	return c
}
