package hooks

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sepsten/bronze/core"
)

func TestRunMetrics(t *testing.T) {
	m := NewRunMetrics()
	m.Start(4)
	m.Operation(core.OpGenerate, "out/a.jpeg", 1024, nil)
	m.Operation(core.OpGenerate, "out/b.jpeg", 2048, nil)
	m.Operation(core.OpDelete, "out/stale.jpeg", 0, nil)
	m.Operation(core.OpGenerate, "out/c.jpeg", 0, errors.New("boom"))
	m.Finish()

	snap := m.Snapshot()
	if snap.Total != 4 {
		t.Errorf("total = %d, want 4", snap.Total)
	}
	if snap.Done[core.OpGenerate] != 2 || snap.Done[core.OpDelete] != 1 {
		t.Errorf("done = %v", snap.Done)
	}
	if snap.Errored[core.OpGenerate] != 1 {
		t.Errorf("errored = %v", snap.Errored)
	}
	if snap.Bytes != 3072 {
		t.Errorf("bytes = %d, want 3072", snap.Bytes)
	}
}

func TestRunMetrics_SnapshotIsACopy(t *testing.T) {
	m := NewRunMetrics()
	m.Operation(core.OpGenerate, "out/a.jpeg", 10, nil)

	snap := m.Snapshot()
	snap.Done[core.OpGenerate] = 99

	if m.Snapshot().Done[core.OpGenerate] != 1 {
		t.Error("mutating a snapshot leaked into the live metrics")
	}
}

func TestRunMetrics_ConcurrentUse(t *testing.T) {
	m := NewRunMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Operation(core.OpGenerate, "out/a.jpeg", 1, nil)
		}()
	}
	wg.Wait()
	if got := m.Snapshot().Done[core.OpGenerate]; got != 32 {
		t.Errorf("done = %d, want 32", got)
	}
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewLogReporter(zerolog.New(&buf))

	r.Start(2)
	r.Operation(core.OpGenerate, "out/a.jpeg", 2048, nil)
	r.Operation(core.OpGenerate, "out/b.jpeg", 0, errors.New("encode blew up"))
	r.Finish()

	out := buf.String()
	for _, want := range []string{
		`"operations":2`,
		`"op":"generate"`,
		`"size":"2.0 kB"`,
		"encode blew up",
		`"completed":2`,
		`"failed":1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
