package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"aquaexport/internal/aggregation"
	apperrors "aquaexport/internal/errors"
	"aquaexport/internal/window"
	"aquaexport/pkg/contracts/domain"
)

// MetricSource lists the metrics of a mode.
type MetricSource interface {
	Metrics(mode domain.Mode) ([]domain.Metric, error)
}

// ProgressFunc is called after every finished cell.
type ProgressFunc func(done, total int)

// Builder fills a report matrix by querying the aggregation client.
type Builder struct {
	metrics MetricSource
	windows *window.Calculator
	client  aggregation.Client
	workers int
	logger  *slog.Logger
}

// NewBuilder creates a new report builder
func NewBuilder(metrics MetricSource, windows *window.Calculator, client aggregation.Client, workers int, logger *slog.Logger) *Builder {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		metrics: metrics,
		windows: windows,
		client:  client,
		workers: workers,
		logger:  logger.With(slog.String("component", "report_builder")),
	}
}

type task struct {
	key       CellKey
	query     aggregation.Query
	precision int32
}

// Plan resolves every cell of a build without querying. Configuration errors
// surface here, before any query is issued.
func (b *Builder) Plan(rng domain.DateRange, mode domain.Mode) ([]CellKey, error) {
	tasks, err := b.plan(rng, mode)
	if err != nil {
		return nil, err
	}
	keys := make([]CellKey, len(tasks))
	for i, t := range tasks {
		keys[i] = t.key
	}
	return keys, nil
}

func (b *Builder) plan(rng domain.DateRange, mode domain.Mode) ([]task, error) {
	if err := rng.Validate(); err != nil {
		return nil, apperrors.NewAppValidationError(err.Error())
	}
	metrics, err := b.metrics.Metrics(mode)
	if err != nil {
		return nil, err
	}
	if len(metrics) == 0 {
		return nil, apperrors.NewConfigError(fmt.Sprintf("mode %s has no metrics", mode), apperrors.ErrMissingTag)
	}

	var tasks []task
	for _, day := range rng.Days() {
		for _, m := range metrics {
			w, err := b.windows.For(day, m.Kind)
			if err != nil {
				return nil, apperrors.NewConfigError(fmt.Sprintf("no window for %s", m.Key()), err)
			}
			for _, fn := range w.Functions {
				tasks = append(tasks, task{
					key: CellKey{
						Date:      day,
						Location:  m.Location,
						Parameter: m.Parameter,
						Func:      fn,
					},
					query:     aggregation.NewQuery(m, w, fn),
					precision: m.Precision,
				})
			}
		}
	}
	return tasks, nil
}

// Build computes every cell of a mode over a date range. Failed queries become
// error cells and the build continues. When ctx is cancelled no further queries
// are issued, queries already running finish, and the remaining cells are
// recorded as cancelled; the partial matrix is returned with ErrCancelled.
func (b *Builder) Build(ctx context.Context, rng domain.DateRange, mode domain.Mode, progress ProgressFunc) (*Matrix, error) {
	tasks, err := b.plan(rng, mode)
	if err != nil {
		return nil, err
	}

	matrix := NewMatrix(mode, rng)
	matrix.Expected = len(tasks)
	total := len(tasks)
	var done atomic.Int64
	start := time.Now()

	b.logger.InfoContext(ctx, "building report matrix",
		slog.String("mode", mode.String()),
		slog.String("range", rng.String()),
		slog.Int("cells", total),
		slog.Int("workers", b.workers))

	finish := func(c Cell) error {
		if err := matrix.Put(c); err != nil {
			return err
		}
		n := int(done.Add(1))
		if progress != nil {
			progress(n, total)
		}
		return nil
	}

	g := new(errgroup.Group)
	g.SetLimit(b.workers)
	for _, t := range tasks {
		t := t
		if ctx.Err() != nil {
			if err := finish(cancelledCell(t.key)); err != nil {
				return nil, err
			}
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return finish(cancelledCell(t.key))
			}
			return finish(b.compute(context.WithoutCancel(ctx), t))
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to assemble matrix: %w", err)
	}

	counts := matrix.Counts()
	b.logger.InfoContext(ctx, "report matrix built",
		slog.String("mode", mode.String()),
		slog.Int("values", counts[CellValue]),
		slog.Int("no_data", counts[CellNoData]),
		slog.Int("failed", counts[CellError]),
		slog.Duration("duration", time.Since(start)))

	if ctx.Err() != nil {
		return matrix, fmt.Errorf("build interrupted: %w", apperrors.ErrCancelled)
	}
	return matrix, nil
}

func (b *Builder) compute(ctx context.Context, t task) Cell {
	v, err := b.client.Aggregate(ctx, t.query)
	if err != nil {
		b.logger.WarnContext(ctx, "cell failed",
			slog.String("cell", t.key.String()),
			slog.String("error", err.Error()))
		return Cell{Key: t.key, Reason: reasonOf(err), Error: err.Error()}
	}
	if v.Present {
		v = domain.Some(Round(v.Float, t.precision))
	}
	return Cell{Key: t.key, Value: v}
}

// Round rounds half away from zero to the given number of decimal places.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func cancelledCell(k CellKey) Cell {
	return Cell{Key: k, Reason: ReasonCancelled, Error: apperrors.ErrCancelled.Error()}
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrCircuitOpen):
		return ReasonCircuitOpen
	case errors.Is(err, apperrors.ErrTimeout):
		return ReasonTimeout
	case errors.Is(err, apperrors.ErrConnection):
		return ReasonConnection
	default:
		return ReasonQuery
	}
}
