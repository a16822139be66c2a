package operations

import (
	"context"
	"log/slog"
)

// logRunStart logs the start of an export run
func (m *Manager) logRunStart(ctx context.Context, run *RunResult) {
	m.logger.InfoContext(ctx, "run_start",
		slog.String("run_id", run.ID),
		slog.String("mode", run.Mode.String()),
		slog.String("from_date", run.Range.From.String()),
		slog.String("to_date", run.Range.To.String()),
		slog.String("trigger", run.Trigger))
}

// logRetryStart logs a merge retry
func (m *Manager) logRetryStart(ctx context.Context, run *RunResult) {
	m.logger.InfoContext(ctx, "merge_retry_start",
		slog.String("run_id", run.ID),
		slog.String("mode", run.Mode.String()),
		slog.Int("merge_attempt", run.MergeAttempts+1))
}

// logRunComplete logs the final state of a run
func (m *Manager) logRunComplete(ctx context.Context, run *RunResult, err error) {
	attrs := []any{
		slog.String("run_id", run.ID),
		slog.String("status", string(run.Status)),
		slog.Int("attempted", run.Attempted),
		slog.Int("values", run.Values),
		slog.Int("no_data", run.NoData),
		slog.Int("failed", len(run.Failures)),
		slog.Duration("duration", run.Duration()),
	}
	if err != nil {
		m.logger.ErrorContext(ctx, "run_error", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	if run.Status == RunStatusDoneWithErrors {
		m.logger.WarnContext(ctx, "run_complete", attrs...)
		return
	}
	m.logger.InfoContext(ctx, "run_complete", attrs...)
}
