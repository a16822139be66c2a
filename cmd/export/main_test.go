package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquaexport/internal/operations"
	"aquaexport/internal/report"
	"aquaexport/internal/workbook"
	"aquaexport/pkg/contracts"
	"aquaexport/pkg/contracts/domain"
)

func TestParseArgs(t *testing.T) {
	jan15 := domain.NewDate(2024, time.January, 15)

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, o *options)
	}{
		{
			name: "single day defaults to both modes",
			args: []string{"-from", "2024-01-15"},
			check: func(t *testing.T, o *options) {
				assert.Equal(t, domain.DateRange{From: jan15, To: jan15}, o.rng)
				assert.Equal(t, domain.AllModes, o.modes)
			},
		},
		{
			name: "explicit mode and range",
			args: []string{"-mode", "zahvacene_kolicine_vode", "-from", "2024-01-15", "-to", "2024-02-01", "-config", "x.yaml"},
			check: func(t *testing.T, o *options) {
				assert.Equal(t, []domain.Mode{domain.ModeQuantity}, o.modes)
				assert.Equal(t, domain.NewDate(2024, time.February, 1), o.rng.To)
				assert.Equal(t, "x.yaml", o.configPath)
				assert.Empty(t, o.csvDir)
			},
		},
		{
			name: "csv dump",
			args: []string{"-from", "2024-01-15", "-csv-dir", "out"},
			check: func(t *testing.T, o *options) {
				assert.Equal(t, "out", o.csvDir)
			},
		},
		{
			name: "retry",
			args: []string{"-retry-run", "abc"},
			check: func(t *testing.T, o *options) {
				assert.Equal(t, "abc", o.retryRun)
			},
		},
		{name: "missing from", args: []string{"-mode", "kvaliteta_vode"}, wantErr: true},
		{name: "bad date", args: []string{"-from", "2024-02-30"}, wantErr: true},
		{name: "reversed range", args: []string{"-from", "2024-02-01", "-to", "2024-01-01"}, wantErr: true},
		{name: "unknown mode", args: []string{"-mode", "pressure", "-from", "2024-01-01"}, wantErr: true},
		{name: "retry with range", args: []string{"-retry-run", "abc", "-from", "2024-01-01"}, wantErr: true},
		{name: "stray argument", args: []string{"-from", "2024-01-01", "extra"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseArgs(tt.args, io.Discard)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, o)
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		status operations.RunStatus
		err    error
		want   int
	}{
		{operations.RunStatusDone, nil, exitOK},
		{operations.RunStatusDoneWithErrors, nil, exitWithErrors},
		{operations.RunStatusFailed, errors.New("locked"), exitFailed},
		{operations.RunStatusCancelled, context.Canceled, exitFailed},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.status, tt.err))
		})
	}

	assert.Equal(t, exitWithErrors, worst(exitOK, exitWithErrors))
	assert.Equal(t, exitFailed, worst(exitFailed, exitWithErrors))
	assert.Equal(t, exitOK, worst(exitOK, exitOK))
}

func TestSummarize(t *testing.T) {
	rng := domain.DateRange{From: domain.NewDate(2024, time.March, 1), To: domain.NewDate(2024, time.March, 2)}
	result := operations.NewRunResult("run-7", domain.ModeQuality, rng, operations.TriggerCLI)
	result.Status = operations.RunStatusDoneWithErrors
	result.Values = 10
	result.NoData = 1
	result.Failures = []operations.CellFailure{{Reason: "timeout"}}
	result.Workbooks = []workbook.Result{{Year: 2024, Path: "exports/kvaliteta_vode/kvaliteta_vode_2024.xlsx", Status: workbook.StatusWritten}}

	var out bytes.Buffer
	assert.Equal(t, exitWithErrors, summarize(&out, result, nil))
	assert.Contains(t, out.String(), "run-7 kvaliteta_vode")
	assert.Contains(t, out.String(), "DONE_WITH_ERRORS (10 values, 1 no data, 1 failed)")
	assert.Contains(t, out.String(), "WRITTEN exports/kvaliteta_vode/kvaliteta_vode_2024.xlsx")

	out.Reset()
	assert.Equal(t, exitFailed, summarize(&out, nil, errors.New("run not found")))
	assert.Contains(t, out.String(), "run not found")
}

func TestDumpCells(t *testing.T) {
	day := domain.NewDate(2024, time.March, 1)
	rng := domain.DateRange{From: day, To: day}
	result := operations.NewRunResult("run-8", domain.ModeQuality, rng, operations.TriggerCLI)
	dir := t.TempDir()
	var stderr bytes.Buffer

	dumpCells(&stderr, dir, result)
	assert.NoFileExists(t, filepath.Join(dir, "run-8-cells.csv"))

	result.Matrix = report.NewMatrix(domain.ModeQuality, rng)
	require.NoError(t, result.Matrix.Put(report.Cell{
		Key:   report.CellKey{Date: day, Location: "VS Lopar", Parameter: "klor", Func: domain.AggMin},
		Value: domain.Some(0.1),
	}))
	dumpCells(&stderr, dir, result)
	assert.FileExists(t, filepath.Join(dir, "run-8-cells.csv"))
	assert.Empty(t, stderr.String())
}

func TestRunUsageAndVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, exitUsage, run(context.Background(), []string{"-mode", "x"}, &stdout, &stderr))
	assert.NotEmpty(t, stderr.String())

	stdout.Reset()
	assert.Equal(t, exitOK, run(context.Background(), []string{"-version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), contracts.Version)

	missing := filepath.Join(t.TempDir(), "missing.yaml")
	assert.Equal(t, exitFailed, run(context.Background(), []string{"-config", missing, "-from", "2024-01-01"}, &stdout, &stderr))
}
