package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "aquaexport/internal/errors"
	"aquaexport/internal/infrastructure"
	"aquaexport/internal/report"
	"aquaexport/internal/workbook"
	"aquaexport/pkg/contracts/domain"
)

// Builder computes report matrices
type Builder interface {
	Plan(rng domain.DateRange, mode domain.Mode) ([]report.CellKey, error)
	Build(ctx context.Context, rng domain.DateRange, mode domain.Mode, progress report.ProgressFunc) (*report.Matrix, error)
}

// Merger writes matrices into workbooks
type Merger interface {
	Merge(ctx context.Context, matrix *report.Matrix) ([]workbook.Result, error)
}

// Preflight checks the environment before a run issues queries. The tag
// registry implements it by checking that every template exists.
type Preflight interface {
	CheckTemplates() error
}

// Trigger values record what started a run
const (
	TriggerDirect    = "direct"
	TriggerCLI       = "cli"
	TriggerAPI       = "api"
	TriggerScheduler = "scheduler"
)

type triggerKey struct{}

// WithTrigger tags ctx with what started the run
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// TriggerFrom returns the trigger recorded by WithTrigger, or TriggerDirect
func TriggerFrom(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey{}).(string); ok && t != "" {
		return t
	}
	return TriggerDirect
}

// Manager runs exports: it plans, builds and merges each run, persists the
// run record and publishes progress.
type Manager struct {
	builder   Builder
	merger    Merger
	store     RunStore
	preflight Preflight
	tracer    *RunTracer
	logger    *slog.Logger

	listenersMu sync.RWMutex
	listeners   []Listener

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithPreflight sets the check run before each export
func WithPreflight(p Preflight) ManagerOption {
	return func(m *Manager) { m.preflight = p }
}

// WithTracer sets the run tracer
func WithTracer(t *RunTracer) ManagerOption {
	return func(m *Manager) { m.tracer = t }
}

// WithListener registers a progress listener
func WithListener(l Listener) ManagerOption {
	return func(m *Manager) { m.listeners = append(m.listeners, l) }
}

// NewManager creates a new export manager
func NewManager(builder Builder, merger Merger, store RunStore, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = NewMemoryRunStore()
	}
	m := &Manager{
		builder: builder,
		merger:  merger,
		store:   store,
		logger:  logger.With(slog.String("component", "export_manager")),
		active:  make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tracer == nil {
		m.tracer, _ = NewRunTracer(nil)
	}
	return m
}

// AddListener registers a progress listener
func (m *Manager) AddListener(l Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

// RunExport runs an export to completion. The returned run is never nil once
// the request is valid. The error is non-nil when the run ends FAILED or
// CANCELLED; DONE_WITH_ERRORS is reported through the run only.
func (m *Manager) RunExport(ctx context.Context, rng domain.DateRange, mode domain.Mode) (*RunResult, error) {
	run, err := m.newRun(ctx, rng, mode)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := m.claim(run.ID, cancel); err != nil {
		return nil, err
	}
	defer m.release(run.ID)

	err = m.execute(ctx, run)
	return run.Clone(), err
}

// Start creates a run and executes it in the background. The returned copy
// is in state PENDING. The run outlives ctx and is stopped through Cancel.
func (m *Manager) Start(ctx context.Context, rng domain.DateRange, mode domain.Mode) (*RunResult, error) {
	run, err := m.newRun(ctx, rng, mode)
	if err != nil {
		return nil, err
	}
	snapshot := run.Clone()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := m.claim(run.ID, cancel); err != nil {
		cancel()
		return nil, err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.release(run.ID)
		defer cancel()
		_ = m.execute(runCtx, run)
	}()
	return snapshot, nil
}

// Cancel stops an active run. Queries already issued finish first.
func (m *Manager) Cancel(ctx context.Context, runID string) error {
	m.mu.Lock()
	cancel, ok := m.active[runID]
	m.mu.Unlock()
	if ok {
		cancel()
		return nil
	}

	run, err := m.store.Get(ctx, runID)
	if err != nil {
		return err
	}
	return apperrors.NewAppError(apperrors.ErrTypeValidation,
		fmt.Sprintf("run %s is %s and cannot be cancelled", runID, run.Status), apperrors.ErrInvalidState)
}

// RetryMerge merges the stored matrix of a FAILED run again without
// recomputing it.
func (m *Manager) RetryMerge(ctx context.Context, runID string) (*RunResult, error) {
	run, err := m.store.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != RunStatusFailed || run.Matrix == nil {
		return run, apperrors.NewAppError(apperrors.ErrTypeValidation,
			fmt.Sprintf("run %s is %s; only failed merges can be retried", runID, run.Status), apperrors.ErrInvalidState)
	}
	if !run.Matrix.Mergeable() {
		return run, apperrors.NewAppError(apperrors.ErrTypeValidation,
			fmt.Sprintf("run %s has nothing to merge", runID), apperrors.ErrNothingToMerge)
	}
	if err := m.claim(run.ID, func() {}); err != nil {
		return run, err
	}
	defer m.release(run.ID)

	ctx = infrastructure.WithRunID(ctx, run.ID)
	ctx, span := m.tracer.TraceRun(ctx, run)
	m.logRetryStart(ctx, run)

	err = m.merge(ctx, run)
	m.tracer.RecordRunCompletion(ctx, span, run, err)
	m.logRunComplete(ctx, run, err)
	return run.Clone(), err
}

// GetRun returns a stored run with its matrix
func (m *Manager) GetRun(ctx context.Context, runID string) (*RunResult, error) {
	return m.store.Get(ctx, runID)
}

// ListRuns returns run summaries, newest first
func (m *Manager) ListRuns(ctx context.Context, filter RunFilter) ([]*RunResult, error) {
	return m.store.List(ctx, filter)
}

// Active reports whether a run is executing in this process
func (m *Manager) Active(runID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[runID]
	return ok
}

// Wait blocks until every background run has finished
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels active runs and waits for them until ctx is done
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, cancel := range m.active {
		cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("runs still active at shutdown: %w", ctx.Err())
	}
}

func (m *Manager) newRun(ctx context.Context, rng domain.DateRange, mode domain.Mode) (*RunResult, error) {
	if !mode.Valid() {
		return nil, apperrors.NewAppValidationError(fmt.Sprintf("unknown export mode %s", mode))
	}
	if err := rng.Validate(); err != nil {
		return nil, apperrors.NewAppValidationError(err.Error())
	}

	run := NewRunResult(uuid.New().String(), mode, rng, TriggerFrom(ctx))
	if err := m.store.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to store run: %w", err)
	}
	return run, nil
}

func (m *Manager) claim(runID string, cancel context.CancelFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.active[runID]; busy {
		return apperrors.NewAppError(apperrors.ErrTypeValidation,
			fmt.Sprintf("run %s is already in progress", runID), apperrors.ErrInvalidState)
	}
	m.active[runID] = cancel
	return nil
}

func (m *Manager) release(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, runID)
}

func (m *Manager) execute(ctx context.Context, run *RunResult) error {
	ctx = infrastructure.WithRunID(ctx, run.ID)
	ctx, span := m.tracer.TraceRun(ctx, run)
	m.logRunStart(ctx, run)

	err := m.runPhases(ctx, run)

	m.tracer.RecordRunCompletion(ctx, span, run, err)
	m.logRunComplete(ctx, run, err)
	return err
}

func (m *Manager) runPhases(ctx context.Context, run *RunResult) error {
	if m.preflight != nil {
		if err := m.preflight.CheckTemplates(); err != nil {
			return m.fail(ctx, run, err)
		}
	}
	keys, err := m.builder.Plan(run.Range, run.Mode)
	if err != nil {
		return m.fail(ctx, run, err)
	}
	if ctx.Err() != nil {
		err := fmt.Errorf("run cancelled before start: %w", apperrors.ErrCancelled)
		run.Error = err.Error()
		m.advance(ctx, run, RunStatusCancelled)
		return err
	}

	run.Attempted = len(keys)
	if err := m.advance(ctx, run, RunStatusBuilding); err != nil {
		return err
	}

	matrix, err := m.build(ctx, run)
	if matrix == nil {
		return m.fail(ctx, run, err)
	}
	run.Record(matrix)
	m.tracer.RecordBuild(ctx, run)

	if err != nil {
		run.Error = err.Error()
		if errors.Is(err, apperrors.ErrCancelled) {
			m.advance(ctx, run, RunStatusCancelled)
			return err
		}
		return m.fail(ctx, run, err)
	}

	if !matrix.Mergeable() {
		run.Error = fmt.Sprintf("all %d cells failed; nothing merged", matrix.Len())
		return m.advance(ctx, run, RunStatusDoneWithErrors)
	}
	return m.merge(ctx, run)
}

func (m *Manager) build(ctx context.Context, run *RunResult) (*report.Matrix, error) {
	bctx, span := m.tracer.TracePhase(ctx, run.ID, "build")
	defer span.End()

	throttle := &progressThrottle{}
	matrix, err := m.builder.Build(bctx, run.Range, run.Mode, func(done, total int) {
		if !throttle.allow(done, total) {
			return
		}
		m.publish(ctx, ProgressEvent{
			Type:     EventCellProgress,
			RunID:    run.ID,
			Mode:     run.Mode.String(),
			Status:   RunStatusBuilding,
			Done:     done,
			Total:    total,
			Progress: percent(done, total),
		})
	})
	if err != nil {
		infrastructure.RecordError(bctx, err)
	}
	return matrix, err
}

func (m *Manager) merge(ctx context.Context, run *RunResult) error {
	run.MergeAttempts++
	run.Error = ""
	if err := m.advance(ctx, run, RunStatusMerging); err != nil {
		return err
	}

	mctx, span := m.tracer.TracePhase(ctx, run.ID, "merge")
	start := time.Now()
	results, err := m.merger.Merge(mctx, run.Matrix)
	if err != nil {
		infrastructure.RecordError(mctx, err)
	}
	span.End()

	run.Workbooks = results
	m.tracer.RecordMerge(ctx, run, results, time.Since(start))
	for _, r := range results {
		m.publish(ctx, ProgressEvent{
			Type:    EventWorkbook,
			RunID:   run.ID,
			Mode:    run.Mode.String(),
			Status:  RunStatusMerging,
			Path:    r.Path,
			Message: string(r.Status),
			Error:   r.Error,
		})
	}

	if err != nil {
		return m.fail(ctx, run, err)
	}
	next := RunStatusDone
	if len(run.Failures) > 0 {
		next = RunStatusDoneWithErrors
	}
	return m.advance(ctx, run, next)
}

// advance moves the run to next, stores it and publishes the change.
func (m *Manager) advance(ctx context.Context, run *RunResult, next RunStatus) error {
	if err := run.Transition(next); err != nil {
		return err
	}
	m.save(ctx, run)
	m.publish(ctx, ProgressEvent{
		Type:     EventRunStatus,
		RunID:    run.ID,
		Mode:     run.Mode.String(),
		Status:   run.Status,
		Total:    run.Attempted,
		Progress: statusProgress(run.Status),
		Error:    run.Error,
	})
	return nil
}

func (m *Manager) fail(ctx context.Context, run *RunResult, cause error) error {
	run.Error = cause.Error()
	if err := m.advance(ctx, run, RunStatusFailed); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// save persists the run. Store failures are logged and do not change the
// outcome of the run.
func (m *Manager) save(ctx context.Context, run *RunResult) {
	if err := m.store.Update(context.WithoutCancel(ctx), run); err != nil {
		m.logger.ErrorContext(ctx, "failed to persist run",
			slog.String("run_id", run.ID),
			slog.String("status", string(run.Status)),
			slog.String("error", err.Error()))
	}
}

func (m *Manager) publish(ctx context.Context, event ProgressEvent) {
	event.Time = time.Now().UTC()
	m.listenersMu.RLock()
	listeners := append([]Listener(nil), m.listeners...)
	m.listenersMu.RUnlock()
	for _, l := range listeners {
		l.OnProgress(ctx, event)
	}
}

func statusProgress(s RunStatus) int {
	switch s {
	case RunStatusPending, RunStatusBuilding:
		return 0
	case RunStatusMerging:
		return 90
	default:
		return 100
	}
}
