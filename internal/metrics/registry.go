// Package metrics is the per-document event log and summary. Events buffer
// in memory and flush to logs/metrics.jsonl; errors append to
// logs/errors.jsonl. The package also hosts the cooperative cancellation
// set shared between the admin surface and the pipeline workers.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/adiwibowo/perkaya/internal/artifacts"
)

// flushEvery is the buffered event count that triggers a flush.
const flushEvery = 20

// maxStringField bounds string values before emission. Long fields get
// trimmed so prompt text never lands in the log.
const maxStringField = 200

// Event is one metrics line.
type Event struct {
	TS     string             `json:"ts"`
	Phase  string             `json:"phase"`
	Event  string             `json:"event"`
	Values map[string]float64 `json:"values,omitempty"`
	Meta   map[string]string  `json:"meta,omitempty"`
}

// ErrorLine is one errors.jsonl line.
type ErrorLine struct {
	TS    string `json:"ts"`
	Phase string `json:"phase"`
	Error string `json:"error"`
}

// Registry collects events for one document.
type Registry struct {
	mu     sync.Mutex
	dir    *artifacts.Dir
	buffer []Event
	all    []Event
	errors int
}

// NewRegistry returns a registry writing into the document's logs/.
func NewRegistry(dir *artifacts.Dir) *Registry {
	return &Registry{dir: dir}
}

// Emit buffers one event, flushing to disk every flushEvery events. String
// meta values longer than 200 chars are trimmed.
func (r *Registry) Emit(phase, event string, values map[string]float64, meta map[string]string) {
	if meta != nil {
		trimmed := make(map[string]string, len(meta))
		for k, v := range meta {
			if len(v) > maxStringField {
				v = v[:maxStringField]
			}
			trimmed[k] = v
		}
		meta = trimmed
	}
	e := Event{
		TS:     time.Now().UTC().Format(time.RFC3339Nano),
		Phase:  phase,
		Event:  event,
		Values: values,
		Meta:   meta,
	}
	r.mu.Lock()
	r.buffer = append(r.buffer, e)
	r.all = append(r.all, e)
	shouldFlush := len(r.buffer) >= flushEvery
	r.mu.Unlock()
	if shouldFlush {
		r.Flush()
	}
}

// LogError appends one line to logs/errors.jsonl immediately.
func (r *Registry) LogError(phase string, err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	if len(msg) > maxStringField {
		msg = msg[:maxStringField]
	}
	r.mu.Lock()
	r.errors++
	r.mu.Unlock()
	_ = r.dir.AppendJSONL(artifacts.FileErrorsLog, ErrorLine{
		TS:    time.Now().UTC().Format(time.RFC3339Nano),
		Phase: phase,
		Error: msg,
	})
}

// Flush writes buffered events to logs/metrics.jsonl. Called at phase end
// and automatically every flushEvery events.
func (r *Registry) Flush() {
	r.mu.Lock()
	pending := r.buffer
	r.buffer = nil
	r.mu.Unlock()
	for _, e := range pending {
		_ = r.dir.AppendJSONL(artifacts.FileMetricsLog, e)
	}
}

// PhaseSummary aggregates one phase's events.
type PhaseSummary struct {
	Phase      string  `json:"phase"`
	Calls      int     `json:"calls"`
	P50Ms      float64 `json:"p50_ms"`
	P95Ms      float64 `json:"p95_ms"`
	TokenIn    int     `json:"token_in"`
	TokenOut   int     `json:"token_out"`
	CostUSD    float64 `json:"cost_usd"`
	Timeouts   int     `json:"timeouts"`
	CacheHits  int     `json:"cache_hits"`
	Processed  int     `json:"processed"`
	Total      int     `json:"total"`
	BudgetStop bool    `json:"budget_stop"`
}

// Summary computes per-phase aggregates over everything emitted so far.
func (r *Registry) Summary() map[string]PhaseSummary {
	r.mu.Lock()
	events := make([]Event, len(r.all))
	copy(events, r.all)
	r.mu.Unlock()

	type acc struct {
		latencies []float64
		s         PhaseSummary
	}
	phases := make(map[string]*acc)
	get := func(phase string) *acc {
		a, ok := phases[phase]
		if !ok {
			a = &acc{s: PhaseSummary{Phase: phase}}
			phases[phase] = a
		}
		return a
	}

	for _, e := range events {
		a := get(e.Phase)
		switch e.Event {
		case "call":
			a.s.Calls++
			if ms, ok := e.Values["latency_ms"]; ok {
				a.latencies = append(a.latencies, ms)
			}
			a.s.TokenIn += int(e.Values["token_in"])
			a.s.TokenOut += int(e.Values["token_out"])
			a.s.CostUSD += e.Values["cost_usd"]
		case "timeout":
			a.s.Timeouts++
		case "cache_hit":
			a.s.CacheHits++
		case "budget_stop":
			a.s.BudgetStop = true
		case "progress":
			if v, ok := e.Values["processed"]; ok {
				a.s.Processed = int(v)
			}
			if v, ok := e.Values["total"]; ok {
				a.s.Total = int(v)
			}
		}
	}

	out := make(map[string]PhaseSummary, len(phases))
	for phase, a := range phases {
		a.s.P50Ms = percentile(a.latencies, 0.50)
		a.s.P95Ms = percentile(a.latencies, 0.95)
		out[phase] = a.s
	}
	return out
}

// percentile returns the p-quantile of values using nearest-rank on a
// sorted copy. Empty input yields 0.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	rank := int(p * float64(len(sorted)-1))
	return sorted[rank]
}
