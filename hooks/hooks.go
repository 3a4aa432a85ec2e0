// Package hooks provides ProgressReporter implementations for runs.
package hooks

import (
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/sepsten/bronze/core"
)

// ── Logging reporter ──────────────────────────────────────────────────────────

// LogReporter reports run progress through a structured logger.
type LogReporter struct {
	logger zerolog.Logger

	mu        sync.Mutex
	total     int
	completed int
	failed    int
}

// NewLogReporter creates a reporter writing to l.
func NewLogReporter(l zerolog.Logger) *LogReporter {
	return &LogReporter{logger: l}
}

func (r *LogReporter) Start(total int) {
	r.mu.Lock()
	r.total = total
	r.completed = 0
	r.failed = 0
	r.mu.Unlock()
	r.logger.Info().Int("operations", total).Msg("run started")
}

func (r *LogReporter) Operation(kind core.OpKind, path string, size int64, err error) {
	r.mu.Lock()
	r.completed++
	if err != nil {
		r.failed++
	}
	done, total := r.completed, r.total
	r.mu.Unlock()

	if err != nil {
		r.logger.Error().
			Str("op", string(kind)).
			Str("path", path).
			Int("done", done).
			Int("total", total).
			Err(err).
			Msg("operation failed")
		return
	}
	evt := r.logger.Info().
		Str("op", string(kind)).
		Str("path", path).
		Int("done", done).
		Int("total", total)
	if size > 0 {
		evt = evt.Str("size", humanize.Bytes(uint64(size)))
	}
	evt.Msg("operation done")
}

func (r *LogReporter) Finish() {
	r.mu.Lock()
	completed, failed := r.completed, r.failed
	r.mu.Unlock()
	r.logger.Info().Int("completed", completed).Int("failed", failed).Msg("run finished")
}

// ── In-memory run metrics ─────────────────────────────────────────────────────

// RunMetrics accumulates per-kind operation counts; safe for concurrent use.
// Useful in tests and for callers that render their own progress UI.
type RunMetrics struct {
	mu sync.Mutex

	total   int
	done    map[core.OpKind]int
	errored map[core.OpKind]int
	bytes   int64
}

// NewRunMetrics creates an empty metrics store.
func NewRunMetrics() *RunMetrics {
	return &RunMetrics{
		done:    make(map[core.OpKind]int),
		errored: make(map[core.OpKind]int),
	}
}

func (m *RunMetrics) Start(total int) {
	m.mu.Lock()
	m.total = total
	m.mu.Unlock()
}

func (m *RunMetrics) Operation(kind core.OpKind, _ string, size int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.errored[kind]++
		return
	}
	m.done[kind]++
	m.bytes += size
}

func (m *RunMetrics) Finish() {}

// MetricsSnapshot is an immutable point-in-time copy of run metrics.
type MetricsSnapshot struct {
	Total   int
	Done    map[core.OpKind]int
	Errored map[core.OpKind]int
	Bytes   int64
}

// Snapshot returns a copy of current metrics.
func (m *RunMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		Total:   m.total,
		Done:    make(map[core.OpKind]int, len(m.done)),
		Errored: make(map[core.OpKind]int, len(m.errored)),
		Bytes:   m.bytes,
	}
	for k, v := range m.done {
		snap.Done[k] = v
	}
	for k, v := range m.errored {
		snap.Errored[k] = v
	}
	return snap
}

var (
	_ core.ProgressReporter = (*LogReporter)(nil)
	_ core.ProgressReporter = (*RunMetrics)(nil)
)
