package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// LogEntry is one captured log line.
type LogEntry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// logRing is the storage shared by a LogBuffer and every handler derived
// from it with WithAttrs/WithGroup.
type logRing struct {
	mu      sync.Mutex
	entries []LogEntry
	pos     int
	full    bool
}

// LogBuffer is a slog.Handler that keeps the most recent entries in a ring
// while forwarding every record to a wrapped handler.
type LogBuffer struct {
	inner slog.Handler
	ring  *logRing
	attrs []slog.Attr
	group string
}

// NewLogBuffer creates a LogBuffer wrapping inner, retaining up to maxSize entries.
func NewLogBuffer(inner slog.Handler, maxSize int) *LogBuffer {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LogBuffer{
		inner: inner,
		ring:  &logRing{entries: make([]LogEntry, maxSize)},
	}
}

func (lb *LogBuffer) Enabled(ctx context.Context, level slog.Level) bool {
	return lb.inner.Enabled(ctx, level)
}

// Handle records r in the ring and forwards it.
func (lb *LogBuffer) Handle(ctx context.Context, r slog.Record) error {
	entry := LogEntry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
	}
	if n := len(lb.attrs) + r.NumAttrs(); n > 0 {
		entry.Attrs = make(map[string]any, n)
		for _, a := range lb.attrs {
			entry.Attrs[a.Key] = a.Value.Any()
		}
		r.Attrs(func(a slog.Attr) bool {
			entry.Attrs[lb.key(a.Key)] = a.Value.Any()
			return true
		})
	}

	ring := lb.ring
	ring.mu.Lock()
	ring.entries[ring.pos] = entry
	ring.pos++
	if ring.pos == len(ring.entries) {
		ring.pos = 0
		ring.full = true
	}
	ring.mu.Unlock()

	return lb.inner.Handle(ctx, r)
}

func (lb *LogBuffer) key(k string) string {
	if lb.group == "" {
		return k
	}
	return lb.group + "." + k
}

func (lb *LogBuffer) WithAttrs(attrs []slog.Attr) slog.Handler {
	scoped := make([]slog.Attr, 0, len(lb.attrs)+len(attrs))
	scoped = append(scoped, lb.attrs...)
	for _, a := range attrs {
		a.Key = lb.key(a.Key)
		scoped = append(scoped, a)
	}
	return &LogBuffer{inner: lb.inner.WithAttrs(attrs), ring: lb.ring, attrs: scoped, group: lb.group}
}

func (lb *LogBuffer) WithGroup(name string) slog.Handler {
	if name == "" {
		return lb
	}
	return &LogBuffer{inner: lb.inner.WithGroup(name), ring: lb.ring, attrs: lb.attrs, group: lb.key(name)}
}

// Entries returns the buffered log entries, oldest first.
func (lb *LogBuffer) Entries() []LogEntry {
	ring := lb.ring
	ring.mu.Lock()
	defer ring.mu.Unlock()

	if !ring.full {
		result := make([]LogEntry, ring.pos)
		copy(result, ring.entries[:ring.pos])
		return result
	}

	size := len(ring.entries)
	result := make([]LogEntry, size)
	copy(result, ring.entries[ring.pos:])
	copy(result[size-ring.pos:], ring.entries[:ring.pos])
	return result
}
