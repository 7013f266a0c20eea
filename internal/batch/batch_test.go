package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_Run_AllComplete(t *testing.T) {
	r := &Runner{Process: func(context.Context, string) error { return nil }}
	report := r.Run(context.Background(), []string{"a", "b", "c"}, Options{MaxConcurrentFiles: 2})

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 3, report.Completed)
	assert.Zero(t, report.Failed)
	assert.False(t, report.SequentialFallback)
	for _, id := range []string{"a", "b", "c"} {
		st := report.Files[id]
		assert.Equal(t, StateCompleted, st.State)
		assert.False(t, st.StartedAt.IsZero())
		assert.False(t, st.EndedAt.IsZero())
	}
	assert.Positive(t, report.AvgPerFile)
}

func TestRunner_Run_FailureIsolated(t *testing.T) {
	r := &Runner{Process: func(_ context.Context, docID string) error {
		if docID == "bad" {
			return errors.New("parse failed")
		}
		return nil
	}}
	report := r.Run(context.Background(), []string{"a", "bad", "b"}, Options{})

	assert.Equal(t, 2, report.Completed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, StateFailed, report.Files["bad"].State)
	assert.Equal(t, "parse failed", report.Files["bad"].Error)
	assert.Equal(t, StateCompleted, report.Files["a"].State)
	assert.Equal(t, StateCompleted, report.Files["b"].State)
}

func TestRunner_Run_ConcurrencyCapped(t *testing.T) {
	var inflight, peak atomic.Int64
	r := &Runner{Process: func(context.Context, string) error {
		cur := inflight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inflight.Add(-1)
		return nil
	}}

	docs := make([]string, 6)
	for i := range docs {
		docs[i] = fmt.Sprintf("doc_%d", i)
	}
	report := r.Run(context.Background(), docs, Options{MaxConcurrentFiles: 2})

	assert.Equal(t, 6, report.Completed)
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestRunner_Run_CPUFallbackSequential(t *testing.T) {
	// A monitor primed with a large negative baseline reports saturation on
	// its next sample.
	monitor := &CPUMonitor{lastSample: time.Now().Add(-time.Second), lastProcSec: -1000}

	var inflight, peak atomic.Int64
	r := &Runner{Process: func(context.Context, string) error {
		cur := inflight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inflight.Add(-1)
		return nil
	}}
	report := r.Run(context.Background(), []string{"a", "b", "c"}, Options{
		MaxConcurrentFiles:  3,
		CPUThresholdPercent: 85,
		Monitor:             monitor,
	})

	assert.True(t, report.SequentialFallback)
	assert.Equal(t, int64(1), peak.Load())
	assert.Equal(t, 3, report.Completed)
}

func TestRunner_Run_ContextCancelStopsScheduling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var once sync.Once
	r := &Runner{Process: func(ctx context.Context, _ string) error {
		once.Do(cancel)
		return ctx.Err()
	}}
	report := r.Run(ctx, []string{"a", "b", "c"}, Options{MaxConcurrentFiles: 1})

	// Every document that ran after the cancel fails; none completes.
	require.Zero(t, report.Completed)
	assert.GreaterOrEqual(t, report.Failed, 1)
	assert.LessOrEqual(t, report.Failed, 3)
}

func TestCPUMonitor_NonNegative(t *testing.T) {
	m := NewCPUMonitor()
	time.Sleep(5 * time.Millisecond)
	util := m.Utilization()
	assert.GreaterOrEqual(t, util, 0.0)
	assert.LessOrEqual(t, util, 100.0)
}
