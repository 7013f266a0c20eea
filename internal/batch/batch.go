// Package batch drives the pipeline across many documents at once under a
// concurrency cap, with an optional CPU-pressure fallback to sequential
// processing.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/adiwibowo/perkaya/internal/metrics"
)

// FileState tracks one document through a batch run.
type FileState string

const (
	StatePending    FileState = "pending"
	StateProcessing FileState = "processing"
	StateCompleted  FileState = "completed"
	StateFailed     FileState = "failed"
)

// FileStatus is the per-document record in a batch report.
type FileStatus struct {
	DocID     string    `json:"doc_id"`
	State     FileState `json:"state"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Report summarizes one batch run.
type Report struct {
	RunID              string                `json:"run_id"`
	Files              map[string]FileStatus `json:"files"`
	Completed          int                   `json:"completed"`
	Failed             int                   `json:"failed"`
	TotalDuration      time.Duration         `json:"total_duration"`
	AvgPerFile         time.Duration         `json:"avg_per_file"`
	SequentialFallback bool                  `json:"sequential_fallback"`
}

// Options configures one batch run.
type Options struct {
	MaxConcurrentFiles  int
	CPUThresholdPercent float64 // 0 disables the CPU check
	Monitor             *CPUMonitor
}

// ProcessFunc runs the pipeline for one document.
type ProcessFunc func(ctx context.Context, docID string) error

// Runner executes batch runs.
type Runner struct {
	Registry *metrics.Registry
	Process  ProcessFunc
}

// Run processes every document under the concurrency cap. When the CPU
// monitor reports utilization above the threshold at start, the whole run
// degrades to sequential. A failed document never stops the others.
func (r *Runner) Run(ctx context.Context, docIDs []string, opts Options) *Report {
	if opts.MaxConcurrentFiles <= 0 {
		opts.MaxConcurrentFiles = 2
	}

	report := &Report{
		RunID: uuid.NewString(),
		Files: make(map[string]FileStatus, len(docIDs)),
	}
	for _, id := range docIDs {
		report.Files[id] = FileStatus{DocID: id, State: StatePending}
	}

	limit := opts.MaxConcurrentFiles
	if opts.CPUThresholdPercent > 0 && opts.Monitor != nil {
		if util := opts.Monitor.Utilization(); util > opts.CPUThresholdPercent {
			limit = 1
			report.SequentialFallback = true
			if r.Registry != nil {
				r.Registry.Emit("batch", "cpu_fallback", map[string]float64{
					"utilization": util,
					"threshold":   opts.CPUThresholdPercent,
				}, map[string]string{"run_id": report.RunID})
			}
		}
	}

	start := time.Now()
	sem := semaphore.NewWeighted(int64(limit))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, docID := range docIDs {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		docID := docID
		wg.Add(1)

		mu.Lock()
		report.Files[docID] = FileStatus{DocID: docID, State: StateProcessing, StartedAt: time.Now()}
		mu.Unlock()

		go func() {
			defer wg.Done()
			defer sem.Release(1)
			err := r.Process(ctx, docID)

			mu.Lock()
			st := report.Files[docID]
			st.EndedAt = time.Now()
			if err != nil {
				st.State = StateFailed
				st.Error = err.Error()
				report.Failed++
				if r.Registry != nil {
					r.Registry.LogError("batch", err)
				}
			} else {
				st.State = StateCompleted
				report.Completed++
			}
			report.Files[docID] = st
			mu.Unlock()
		}()
	}
	wg.Wait()

	report.TotalDuration = time.Since(start)
	if n := report.Completed + report.Failed; n > 0 {
		report.AvgPerFile = report.TotalDuration / time.Duration(n)
	}
	if r.Registry != nil {
		r.Registry.Emit("batch", "progress", map[string]float64{
			"processed": float64(report.Completed),
			"total":     float64(len(docIDs)),
		}, map[string]string{"run_id": report.RunID})
		r.Registry.Flush()
	}
	return report
}
