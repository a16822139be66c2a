package operations

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventType names a progress event
type EventType string

const (
	EventRunStatus    EventType = "run_status"
	EventCellProgress EventType = "cell_progress"
	EventWorkbook     EventType = "workbook"
)

// ProgressEvent is published while a run advances
type ProgressEvent struct {
	Type   EventType `json:"type"`
	RunID  string    `json:"run_id"`
	Mode   string    `json:"mode"`
	Status RunStatus `json:"status"`
	// Done and Total count finished and scheduled cells.
	Done     int       `json:"done"`
	Total    int       `json:"total"`
	Progress int       `json:"progress"`
	Path     string    `json:"path,omitempty"`
	Message  string    `json:"message,omitempty"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

// Listener receives progress events. Implementations must not block.
type Listener interface {
	OnProgress(ctx context.Context, event ProgressEvent)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(ctx context.Context, event ProgressEvent)

// OnProgress calls f
func (f ListenerFunc) OnProgress(ctx context.Context, event ProgressEvent) {
	f(ctx, event)
}

// percent returns done/total as a whole percentage
func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * 100 / total
}

// progressThrottle limits cell progress events to one per percentage point,
// always letting the last cell through.
type progressThrottle struct {
	mu   sync.Mutex
	last int
}

func (t *progressThrottle) allow(done, total int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := percent(done, total)
	if done == total || p > t.last {
		t.last = p
		return true
	}
	return false
}

// LogListener writes progress events to a logger
type LogListener struct {
	logger *slog.Logger
}

// NewLogListener creates a new log listener
func NewLogListener(logger *slog.Logger) *LogListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogListener{logger: logger.With(slog.String("component", "progress"))}
}

// OnProgress logs the event. Cell progress is logged every ten percent.
func (l *LogListener) OnProgress(ctx context.Context, e ProgressEvent) {
	switch e.Type {
	case EventCellProgress:
		if e.Progress%10 != 0 && e.Done != e.Total {
			return
		}
		l.logger.InfoContext(ctx, "cells processed",
			slog.String("run_id", e.RunID),
			slog.Int("done", e.Done),
			slog.Int("total", e.Total),
			slog.Int("progress", e.Progress))
	case EventWorkbook:
		l.logger.InfoContext(ctx, "workbook "+e.Message,
			slog.String("run_id", e.RunID),
			slog.String("path", e.Path))
	default:
		attrs := []any{
			slog.String("run_id", e.RunID),
			slog.String("mode", e.Mode),
			slog.String("status", string(e.Status)),
		}
		if e.Error != "" {
			attrs = append(attrs, slog.String("error", e.Error))
		}
		l.logger.InfoContext(ctx, "run status", attrs...)
	}
}
