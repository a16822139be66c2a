package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"aquaexport/internal/infrastructure"
	"aquaexport/internal/workbook"
)

const (
	TracerName = "aquaexport.operations"
)

// RunTracer provides OpenTelemetry instrumentation for export runs
type RunTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.ExportMetrics
}

// NewRunTracer creates a new run tracer. A nil meter records nothing.
func NewRunTracer(meter metric.Meter) (*RunTracer, error) {
	metrics, err := infrastructure.CreateExportMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create export metrics: %w", err)
	}
	return &RunTracer{
		tracer:  otel.Tracer(TracerName),
		metrics: metrics,
	}, nil
}

// TraceRun creates a span for a whole run
func (rt *RunTracer) TraceRun(ctx context.Context, run *RunResult) (context.Context, trace.Span) {
	ctx, span := rt.tracer.Start(ctx, "export.run."+run.Mode.String(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", run.ID),
			attribute.String("run.mode", run.Mode.String()),
			attribute.String("run.from", run.Range.From.String()),
			attribute.String("run.to", run.Range.To.String()),
			attribute.String("run.trigger", run.Trigger),
		),
	)
	rt.metrics.ActiveRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", run.Mode.String())))
	return ctx, span
}

// TracePhase creates a span for the build or merge phase
func (rt *RunTracer) TracePhase(ctx context.Context, runID, phase string) (context.Context, trace.Span) {
	return rt.tracer.Start(ctx, "export.phase."+phase,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("phase", phase),
		),
	)
}

// RecordBuild records the cell tallies of a finished build
func (rt *RunTracer) RecordBuild(ctx context.Context, run *RunResult) {
	mode := attribute.String("mode", run.Mode.String())
	for status, n := range map[string]int{
		"value":   run.Values,
		"no_data": run.NoData,
		"error":   len(run.Failures),
	} {
		if n > 0 {
			rt.metrics.CellsTotal.Add(ctx, int64(n), metric.WithAttributes(mode, attribute.String("status", status)))
		}
	}
	infrastructure.AddSpanEvent(ctx, "run.built", map[string]interface{}{
		"attempted": run.Attempted,
		"values":    run.Values,
		"no_data":   run.NoData,
		"failed":    len(run.Failures),
	})
}

// RecordMerge records the outcome of a merge phase
func (rt *RunTracer) RecordMerge(ctx context.Context, run *RunResult, results []workbook.Result, duration time.Duration) {
	mode := attribute.String("mode", run.Mode.String())
	rt.metrics.MergeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(mode))
	for _, r := range results {
		rt.metrics.WorkbooksTotal.Add(ctx, 1, metric.WithAttributes(mode, attribute.String("status", string(r.Status))))
	}
}

// RecordRunCompletion records the final status of a run and ends its span
func (rt *RunTracer) RecordRunCompletion(ctx context.Context, span trace.Span, run *RunResult, err error) {
	attrs := metric.WithAttributes(
		attribute.String("mode", run.Mode.String()),
		attribute.String("status", string(run.Status)),
	)
	rt.metrics.RunsTotal.Add(ctx, 1, attrs)
	rt.metrics.RunDuration.Record(ctx, run.Duration().Seconds(), attrs)
	rt.metrics.ActiveRuns.Add(ctx, -1, metric.WithAttributes(attribute.String("mode", run.Mode.String())))

	span.SetAttributes(
		attribute.String("run.status", string(run.Status)),
		attribute.Int("run.attempted", run.Attempted),
		attribute.Int("run.failed", len(run.Failures)),
	)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case run.Status == RunStatusDone:
		span.SetStatus(codes.Ok, "run completed")
	default:
		span.SetStatus(codes.Error, "run finished with status "+string(run.Status))
	}
	span.End()
}
