package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"aquaexport/internal/aggregation"
	"aquaexport/internal/config"
	"aquaexport/internal/infrastructure"
	"aquaexport/internal/operations"
	"aquaexport/internal/registry"
	"aquaexport/internal/report"
	"aquaexport/internal/window"
	"aquaexport/internal/workbook"
)

// Components is the export pipeline shared by the server and the CLI:
// tag registry, reading store, report builder, workbook merger, run store
// and the manager that drives them.
type Components struct {
	Config   *config.Config
	Registry *registry.Registry
	Source   *aggregation.SQLClient
	Builder  *report.Builder
	Merger   *workbook.Merger
	Store    operations.RunStore
	Manager  *operations.Manager
}

// NewComponents connects to the reading store and wires the pipeline. The
// meter may be nil. Extra manager options are applied after the defaults.
func NewComponents(ctx context.Context, cfg *config.Config, providers *infrastructure.OTelProviders, logger *slog.Logger, opts ...operations.ManagerOption) (*Components, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	reg, err := registry.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build tag registry: %w", err)
	}

	source, err := aggregation.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to reading store: %w", err)
	}

	client := aggregation.Chain(source,
		cfg.Database.Breaker.MaxFailures,
		cfg.Database.Breaker.OpenTimeout,
		cfg.Database.RateLimit,
		rateBurst(cfg.Database.RateLimit),
		logger)

	builder := report.NewBuilder(reg, window.NewCalculator(loc), client, cfg.Export.Workers, logger)
	merger := workbook.NewMerger(reg, cfg.Export.Directory, workbook.Options{
		NoDataMarker: cfg.Export.NoDataMarker,
		Verify:       cfg.Export.VerifyMerge,
	}, logger)

	store, err := openRunStore(cfg.Export)
	if err != nil {
		source.Close()
		return nil, err
	}

	var meterOpts []operations.ManagerOption
	if providers != nil {
		tracer, err := operations.NewRunTracer(providers.Meter)
		if err != nil {
			logger.WarnContext(ctx, "run metrics disabled", slog.String("error", err.Error()))
		} else {
			meterOpts = append(meterOpts, operations.WithTracer(tracer))
		}
	}

	all := append([]operations.ManagerOption{operations.WithPreflight(reg)}, meterOpts...)
	all = append(all, opts...)
	manager := operations.NewManager(builder, merger, store, logger, all...)

	logger.InfoContext(ctx, "export pipeline ready",
		slog.String("driver", cfg.Database.Driver),
		slog.String("export_dir", cfg.Export.Directory),
		slog.String("timezone", loc.String()),
		slog.Int("workers", cfg.Export.Workers),
		slog.Bool("persistent_runs", cfg.Export.RunStorePath != ""))

	return &Components{
		Config:   cfg,
		Registry: reg,
		Source:   source,
		Builder:  builder,
		Merger:   merger,
		Store:    store,
		Manager:  manager,
	}, nil
}

// Close releases the run store and the database handle. Active runs must be
// stopped first.
func (c *Components) Close() error {
	var errs []error
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if c.Source != nil {
		errs = append(errs, c.Source.Close())
	}
	return errors.Join(errs...)
}

func openRunStore(cfg config.ExportConfig) (operations.RunStore, error) {
	if cfg.RunStorePath == "" {
		return operations.NewMemoryRunStore(), nil
	}
	store, err := operations.NewBadgerRunStore(operations.BadgerConfig{Path: cfg.RunStorePath})
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return store, nil
}

// rateBurst allows one second worth of queries at once
func rateBurst(perSecond float64) int {
	if perSecond <= 0 {
		return 0
	}
	return int(math.Max(1, math.Ceil(perSecond)))
}
