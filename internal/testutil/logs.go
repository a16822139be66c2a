package testutil

import (
	"context"
	"log/slog"
	"sync"
)

// LogEntry is one captured log record with its flattened attributes
type LogEntry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// LogRecorder is a slog.Handler that keeps every record in memory
type LogRecorder struct {
	mu      *sync.Mutex
	entries *[]LogEntry
	attrs   []slog.Attr
}

// NewLogRecorder returns a recorder and a logger writing into it
func NewLogRecorder() (*LogRecorder, *slog.Logger) {
	r := &LogRecorder{mu: &sync.Mutex{}, entries: &[]LogEntry{}}
	return r, slog.New(r)
}

// Enabled implements slog.Handler
func (r *LogRecorder) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler
func (r *LogRecorder) Handle(_ context.Context, rec slog.Record) error {
	attrs := make(map[string]any, rec.NumAttrs()+len(r.attrs))
	for _, a := range r.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	r.mu.Lock()
	*r.entries = append(*r.entries, LogEntry{Level: rec.Level, Message: rec.Message, Attrs: attrs})
	r.mu.Unlock()
	return nil
}

// WithAttrs implements slog.Handler. Derived handlers share the buffer.
func (r *LogRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *r
	c.attrs = append(append([]slog.Attr{}, r.attrs...), attrs...)
	return &c
}

// WithGroup implements slog.Handler; groups are flattened
func (r *LogRecorder) WithGroup(string) slog.Handler { return r }

// Entries returns a copy of the captured records
func (r *LogRecorder) Entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogEntry(nil), *r.entries...)
}

// Find returns the records with the given message
func (r *LogRecorder) Find(message string) []LogEntry {
	var out []LogEntry
	for _, e := range r.Entries() {
		if e.Message == message {
			out = append(out, e)
		}
	}
	return out
}
