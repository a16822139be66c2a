// Command export builds the yearly report workbooks for a date range from
// the command line.
//
//	export -mode kvaliteta_vode -from 2024-01-01 -to 2024-01-31
//	export -from 2024-03-14                  # both modes, one day
//	export -retry-run <id>                   # merge a failed run again
//	export -from 2024-03-14 -csv-dir out     # also dump the cells as CSV
//
// Exit status is 0 when every run is DONE, 2 when a run finished with
// failed cells, 1 when a run failed or was cancelled and 64 on bad usage.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"aquaexport/internal/app"
	"aquaexport/internal/config"
	"aquaexport/internal/exporter"
	"aquaexport/internal/infrastructure"
	"aquaexport/internal/operations"
	"aquaexport/pkg/contracts"
	"aquaexport/pkg/contracts/domain"
)

const (
	exitOK         = 0
	exitFailed     = 1
	exitWithErrors = 2
	exitUsage      = 64
)

type options struct {
	configPath string
	modes      []domain.Mode
	rng        domain.DateRange
	retryRun   string
	csvDir     string
	version    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	if opts.version {
		fmt.Fprintln(stdout, contracts.GetFullVersionString())
		return exitOK
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return exitFailed
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize logger: %v\n", err)
		return exitFailed
	}
	defer infrastructure.CloseLogFile()

	ctx = operations.WithTrigger(ctx, operations.TriggerCLI)
	components, err := app.NewComponents(ctx, cfg, nil, logger,
		operations.WithListener(operations.NewLogListener(logger)))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize export pipeline", slog.String("error", err.Error()))
		return exitFailed
	}
	defer components.Close()

	if opts.retryRun != "" {
		result, err := components.Manager.RetryMerge(ctx, opts.retryRun)
		dumpCells(stderr, opts.csvDir, result)
		return summarize(stdout, result, err)
	}

	code := exitOK
	for _, mode := range opts.modes {
		result, err := components.Manager.RunExport(ctx, opts.rng, mode)
		dumpCells(stderr, opts.csvDir, result)
		code = worst(code, summarize(stdout, result, err))
		if ctx.Err() != nil {
			break
		}
	}
	return code
}

func parseArgs(args []string, output io.Writer) (*options, error) {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		opts options
		mode string
		from string
		to   string
	)
	fs.StringVar(&opts.configPath, "config", "", "path to the YAML configuration")
	fs.StringVar(&mode, "mode", "", "export mode: kvaliteta_vode or zahvacene_kolicine_vode (default both)")
	fs.StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	fs.StringVar(&to, "to", "", "last day, YYYY-MM-DD (default -from)")
	fs.StringVar(&opts.retryRun, "retry-run", "", "merge the stored matrix of a failed run again")
	fs.StringVar(&opts.csvDir, "csv-dir", "", "also write each run's cells to <dir>/<run id>-cells.csv")
	fs.BoolVar(&opts.version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.version || opts.retryRun != "" {
		if opts.retryRun != "" && (from != "" || mode != "") {
			return nil, errors.New("-retry-run cannot be combined with -mode or -from")
		}
		return &opts, nil
	}

	if from == "" {
		return nil, errors.New("-from is required")
	}
	if to == "" {
		to = from
	}
	first, err := domain.ParseDate(from)
	if err != nil {
		return nil, fmt.Errorf("invalid -from: %w", err)
	}
	last, err := domain.ParseDate(to)
	if err != nil {
		return nil, fmt.Errorf("invalid -to: %w", err)
	}
	if opts.rng, err = domain.NewDateRange(first, last); err != nil {
		return nil, err
	}

	if mode == "" {
		opts.modes = domain.AllModes
	} else {
		m, err := domain.ParseMode(mode)
		if err != nil {
			return nil, err
		}
		opts.modes = []domain.Mode{m}
	}
	return &opts, nil
}

// dumpCells writes the run's matrix when a CSV directory was requested. A
// failed dump is reported but does not change the exit status.
func dumpCells(stderr io.Writer, dir string, result *operations.RunResult) {
	if dir == "" || result == nil || result.Matrix == nil {
		return
	}
	path := filepath.Join(dir, result.ID+"-cells.csv")
	if err := exporter.WriteMatrixFile(path, result.Matrix, exporter.WriteOptions{BOMPrefix: true}); err != nil {
		fmt.Fprintf(stderr, "failed to write %s: %v\n", path, err)
	}
}

// summarize prints a one-line summary of a finished run and maps it onto an
// exit status.
func summarize(w io.Writer, result *operations.RunResult, err error) int {
	if result == nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return exitFailed
	}
	fmt.Fprintf(w, "%s %s %s: %s (%d values, %d no data, %d failed)\n",
		result.ID, result.Mode, result.Range, result.Status,
		result.Values, result.NoData, len(result.Failures))
	for _, wb := range result.Workbooks {
		fmt.Fprintf(w, "  %s %s\n", wb.Status, wb.Path)
	}
	if result.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", result.Error)
	} else if err != nil {
		fmt.Fprintf(w, "  error: %v\n", err)
	}
	return exitCode(result.Status, err)
}

func exitCode(status operations.RunStatus, err error) int {
	switch {
	case status == operations.RunStatusDone && err == nil:
		return exitOK
	case status == operations.RunStatusDoneWithErrors && err == nil:
		return exitWithErrors
	default:
		return exitFailed
	}
}

// worst keeps the most severe exit status
func worst(a, b int) int {
	rank := map[int]int{exitOK: 0, exitWithErrors: 1, exitFailed: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
