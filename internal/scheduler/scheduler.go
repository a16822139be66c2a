// Package scheduler runs the nightly export of the previous day.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"aquaexport/internal/config"
	"aquaexport/internal/infrastructure"
	"aquaexport/internal/operations"
	"aquaexport/pkg/contracts/domain"
)

// Exporter runs one export to completion
type Exporter interface {
	RunExport(ctx context.Context, rng domain.DateRange, mode domain.Mode) (*operations.RunResult, error)
}

// Nightly exports the previous calendar day for every configured mode once
// a day at a fixed local time. Modes run one after another.
type Nightly struct {
	scheduler *gocron.Scheduler
	job       *gocron.Job
	exporter  Exporter
	modes     []domain.Mode
	at        string
	loc       *time.Location
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewNightly creates the scheduler. Times are interpreted in loc.
func NewNightly(cfg config.SchedulerConfig, loc *time.Location, exporter Exporter, logger *slog.Logger) (*Nightly, error) {
	if exporter == nil {
		return nil, errors.New("scheduler requires an exporter")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	if _, err := time.Parse("15:04", cfg.At); err != nil {
		return nil, fmt.Errorf("invalid scheduler time %q: %w", cfg.At, err)
	}

	modes := make([]domain.Mode, 0, len(cfg.Modes))
	for _, name := range cfg.Modes {
		mode, err := domain.ParseMode(name)
		if err != nil {
			return nil, fmt.Errorf("scheduler mode: %w", err)
		}
		modes = append(modes, mode)
	}
	if len(modes) == 0 {
		modes = []domain.Mode{domain.ModeQuality, domain.ModeQuantity}
	}

	s := gocron.NewScheduler(loc)
	s.SingletonModeAll()

	return &Nightly{
		scheduler: s,
		exporter:  exporter,
		modes:     modes,
		at:        cfg.At,
		loc:       loc,
		logger:    infrastructure.WithComponent(logger, "scheduler"),
		now:       time.Now,
	}, nil
}

// Start schedules the daily job. Runs started by the job are cancelled
// when ctx ends or Stop is called.
func (n *Nightly) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		return errors.New("scheduler already started")
	}

	job, err := n.scheduler.Every(1).Day().At(n.at).Do(func() {
		n.RunOnce(n.jobContext())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule nightly export: %w", err)
	}
	n.job = job
	n.ctx, n.cancel = context.WithCancel(ctx)
	n.scheduler.StartAsync()

	n.logger.InfoContext(ctx, "nightly export scheduled",
		slog.String("at", n.at),
		slog.String("timezone", n.loc.String()),
		slog.Int("modes", len(n.modes)),
		slog.Time("next_run", job.NextRun()))
	return nil
}

func (n *Nightly) jobContext() context.Context {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ctx
}

// Stop cancels in-flight scheduled runs and stops the scheduler
func (n *Nightly) Stop() {
	n.mu.Lock()
	if n.cancel != nil {
		n.cancel()
	}
	n.mu.Unlock()
	n.scheduler.Stop()
}

// NextRun returns the next scheduled time, or the zero time before Start
func (n *Nightly) NextRun() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.job == nil {
		return time.Time{}
	}
	return n.job.NextRun()
}

// Yesterday returns the day before now in the scheduler's timezone
func (n *Nightly) Yesterday() domain.Date {
	return domain.DateOf(n.now().In(n.loc)).AddDays(-1)
}

// RunOnce exports yesterday for every mode and returns the finished runs.
// A failing mode does not stop the others.
func (n *Nightly) RunOnce(ctx context.Context) []*operations.RunResult {
	day := n.Yesterday()
	rng := domain.DateRange{From: day, To: day}
	ctx = operations.WithTrigger(ctx, operations.TriggerScheduler)

	n.logger.InfoContext(ctx, "nightly export started", slog.String("date", day.String()))
	runs := make([]*operations.RunResult, 0, len(n.modes))
	for _, mode := range n.modes {
		if ctx.Err() != nil {
			n.logger.WarnContext(ctx, "nightly export interrupted", slog.String("mode", mode.String()))
			break
		}
		run, err := n.exporter.RunExport(ctx, rng, mode)
		if run != nil {
			runs = append(runs, run)
		}
		if err != nil {
			n.logger.ErrorContext(ctx, "nightly export failed",
				slog.String("mode", mode.String()),
				slog.String("date", day.String()),
				slog.String("error", err.Error()))
			continue
		}
		n.logger.InfoContext(ctx, "nightly export finished",
			slog.String("mode", mode.String()),
			slog.String("run_id", run.ID),
			slog.String("status", string(run.Status)))
	}
	return runs
}
