// Package operations orchestrates export runs.
//
// A run moves through PENDING, BUILDING and MERGING and ends in DONE,
// DONE_WITH_ERRORS, FAILED or CANCELLED:
//
//	PENDING  -> BUILDING | FAILED (configuration error) | CANCELLED
//	BUILDING -> MERGING | DONE_WITH_ERRORS (no mergeable cell) | CANCELLED | FAILED
//	MERGING  -> DONE | DONE_WITH_ERRORS (some cells failed) | FAILED
//	FAILED   -> MERGING (RetryMerge)
//
// The Manager records every run in a RunStore. The record keeps the built
// matrix, so a merge that failed on a locked workbook can be retried with
// RetryMerge without querying the data source again. MemoryRunStore serves
// the CLI and tests; BadgerRunStore keeps runs across restarts of the
// service.
//
// Progress is published to Listener implementations: per-status events,
// cell progress throttled to one event per percent, and one event per
// workbook written.
//
// Example usage:
//
//	manager := operations.NewManager(builder, merger, operations.NewMemoryRunStore(), logger,
//		operations.WithPreflight(reg),
//		operations.WithListener(operations.NewLogListener(logger)))
//
//	run, err := manager.RunExport(ctx, rng, domain.ModeQuantity)
//	if errors.Is(err, apperrors.ErrFileLocked) {
//		// close the workbook, then
//		run, err = manager.RetryMerge(ctx, run.ID)
//	}
package operations
