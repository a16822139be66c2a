package operations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "aquaexport/internal/errors"
	"aquaexport/internal/report"
	"aquaexport/pkg/contracts/domain"
)

func testRun(t *testing.T) *RunResult {
	t.Helper()
	day := domain.NewDate(2024, time.January, 15)
	return NewRunResult("run-1", domain.ModeQuality, domain.DateRange{From: day, To: day}, TriggerCLI)
}

func TestRunStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to RunStatus
		allowed  bool
	}{
		{RunStatusPending, RunStatusBuilding, true},
		{RunStatusPending, RunStatusFailed, true},
		{RunStatusPending, RunStatusCancelled, true},
		{RunStatusPending, RunStatusMerging, false},
		{RunStatusPending, RunStatusDone, false},
		{RunStatusBuilding, RunStatusMerging, true},
		{RunStatusBuilding, RunStatusDoneWithErrors, true},
		{RunStatusBuilding, RunStatusCancelled, true},
		{RunStatusBuilding, RunStatusDone, false},
		{RunStatusMerging, RunStatusDone, true},
		{RunStatusMerging, RunStatusDoneWithErrors, true},
		{RunStatusMerging, RunStatusFailed, true},
		{RunStatusMerging, RunStatusCancelled, false},
		{RunStatusFailed, RunStatusMerging, true},
		{RunStatusFailed, RunStatusBuilding, false},
		{RunStatusDone, RunStatusMerging, false},
		{RunStatusDoneWithErrors, RunStatusMerging, false},
		{RunStatusCancelled, RunStatusBuilding, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestRunStatusTerminal(t *testing.T) {
	for _, s := range []RunStatus{RunStatusDone, RunStatusDoneWithErrors, RunStatusFailed, RunStatusCancelled} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []RunStatus{RunStatusPending, RunStatusBuilding, RunStatusMerging} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestRunResultTransition(t *testing.T) {
	run := testRun(t)
	assert.Equal(t, RunStatusPending, run.Status)
	assert.Nil(t, run.FinishedAt)

	require.NoError(t, run.Transition(RunStatusBuilding))
	err := run.Transition(RunStatusDone)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidState))
	assert.Equal(t, RunStatusBuilding, run.Status)

	require.NoError(t, run.Transition(RunStatusMerging))
	require.NoError(t, run.Fail(errors.New("locked")))
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, "locked", run.Error)
	require.NotNil(t, run.FinishedAt)

	require.NoError(t, run.Transition(RunStatusMerging))
	assert.Nil(t, run.FinishedAt)
}

func TestRunResultRecord(t *testing.T) {
	run := testRun(t)
	day := run.Range.From
	m := report.NewMatrix(run.Mode, run.Range)
	require.NoError(t, m.Put(report.Cell{Key: report.CellKey{Date: day, Location: "PK Barbat", Parameter: "klor", Func: domain.AggMax}, Value: domain.Some(0.4)}))
	require.NoError(t, m.Put(report.Cell{Key: report.CellKey{Date: day, Location: "PK Barbat", Parameter: "klor", Func: domain.AggMin}}))
	require.NoError(t, m.Put(report.Cell{Key: report.CellKey{Date: day, Location: "PK Barbat", Parameter: "klor", Func: domain.AggAvg}, Reason: report.ReasonConnection, Error: "refused"}))

	run.Record(m)
	assert.Equal(t, 3, run.Attempted)
	assert.Equal(t, 1, run.Values)
	assert.Equal(t, 1, run.NoData)
	require.Len(t, run.Failures, 1)
	assert.Equal(t, report.ReasonConnection, run.Failures[0].Reason)
	assert.Equal(t, domain.AggAvg, run.Failures[0].Key.Func)
}

func TestRunResultCloneIsIndependent(t *testing.T) {
	run := testRun(t)
	run.Failures = []CellFailure{{Reason: report.ReasonTimeout}}
	require.NoError(t, run.Fail(nil))

	c := run.Clone()
	c.Failures[0].Reason = "changed"
	*c.FinishedAt = time.Time{}

	assert.Equal(t, report.ReasonTimeout, run.Failures[0].Reason)
	assert.False(t, run.FinishedAt.IsZero())
	assert.Nil(t, (*RunResult)(nil).Clone())
}

func TestProgressThrottle(t *testing.T) {
	th := &progressThrottle{}
	var allowed []int
	for done := 1; done <= 200; done++ {
		if th.allow(done, 200) {
			allowed = append(allowed, done)
		}
	}
	assert.Len(t, allowed, 100)
	assert.Equal(t, 200, allowed[len(allowed)-1])
	assert.Equal(t, 0, percent(1, 0))
}

func TestLogListenerDoesNotPanic(t *testing.T) {
	l := NewLogListener(nil)
	ctx := context.Background()
	assert.NotPanics(t, func() {
		l.OnProgress(ctx, ProgressEvent{Type: EventRunStatus, RunID: "r", Status: RunStatusFailed, Error: "boom"})
		l.OnProgress(ctx, ProgressEvent{Type: EventCellProgress, RunID: "r", Done: 5, Total: 10, Progress: 50})
		l.OnProgress(ctx, ProgressEvent{Type: EventWorkbook, RunID: "r", Path: "x.xlsx", Message: "WRITTEN"})
	})
}
