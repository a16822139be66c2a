package http

import (
	"context"

	"aquaexport/internal/files"
	"aquaexport/internal/operations"
	"aquaexport/pkg/contracts/domain"
)

// ExportService is the part of the run manager the HTTP layer drives
type ExportService interface {
	Start(ctx context.Context, rng domain.DateRange, mode domain.Mode) (*operations.RunResult, error)
	GetRun(ctx context.Context, runID string) (*operations.RunResult, error)
	ListRuns(ctx context.Context, filter operations.RunFilter) ([]*operations.RunResult, error)
	RetryMerge(ctx context.Context, runID string) (*operations.RunResult, error)
	Cancel(ctx context.Context, runID string) error
}

var _ ExportService = (*operations.Manager)(nil)

// WorkbookService lists and resolves exported workbooks
type WorkbookService interface {
	List(modes ...domain.Mode) ([]files.WorkbookFile, error)
	Find(mode domain.Mode, year int) (files.WorkbookFile, error)
}

var _ WorkbookService = (*files.Discovery)(nil)
