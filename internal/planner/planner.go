package planner

import (
	"context"
	"fmt"

	"github.com/adiwibowo/perkaya/internal/artifacts"
	"github.com/adiwibowo/perkaya/internal/breaker"
	"github.com/adiwibowo/perkaya/internal/cache"
	"github.com/adiwibowo/perkaya/internal/llm"
	"github.com/adiwibowo/perkaya/internal/metrics"
	"github.com/adiwibowo/perkaya/internal/ratelimit"
	"github.com/adiwibowo/perkaya/internal/tokenbudget"
	"github.com/adiwibowo/perkaya/internal/types"
)

// partialEvery is how many skim results accumulate between partial-plan
// writes.
const partialEvery = 50

// Options configures one planner run.
type Options struct {
	DocID         string
	TokenBudget   int
	RPS           float64
	RPSCapacity   int
	Concurrency   int
	GlobalCap     int // 0 derives from corpus size
	QuotaPerShard int
	Reduce        ReduceOptions
}

// Planner runs the gating → skim → reduce phase for one document.
type Planner struct {
	Dir      *artifacts.Dir
	Client   llm.Client
	Cache    *cache.Store
	Registry *metrics.Registry
}

// Run executes the full planner phase and writes plan.json plus
// phase_1_progress.json. Budget exhaustion is a normal completion
// (budget_stop event, possibly empty plan); cancellation writes a
// cancelled progress record and returns nil.
func (p *Planner) Run(ctx context.Context, opts Options) (*types.Plan, error) {
	if err := p.Dir.Require(artifacts.FileSegments, artifacts.FileShards); err != nil {
		return nil, err
	}

	var segments []types.Segment
	if err := p.Dir.ReadJSON(artifacts.FileSegments, &segments); err != nil {
		return nil, err
	}
	var shardFile types.ShardFile
	if err := p.Dir.ReadJSON(artifacts.FileShards, &shardFile); err != nil {
		return nil, err
	}
	idx := types.NewSegmentIndex(segments)

	if metrics.IsCancelled(opts.DocID) {
		return nil, p.writeProgress(types.PhaseCancelled, SkimStats{}, 0, nil)
	}

	candidates := Gate(segments, shardFile.Shards, opts.GlobalCap, opts.QuotaPerShard)
	p.Registry.Emit("gating", "progress", map[string]float64{
		"processed": float64(len(candidates)),
		"total":     float64(len(segments)),
	}, nil)

	budget := tokenbudget.New(opts.TokenBudget)
	skimmer := &Skimmer{
		Client:   p.Client,
		Budget:   budget,
		Bucket:   ratelimit.New(opts.RPS, opts.RPSCapacity),
		Breaker:  breaker.New(),
		Cache:    p.Cache,
		Registry: p.Registry,
		Dir:      p.Dir,
		Config:   SkimConfig{Concurrency: opts.Concurrency},
	}

	// Zero budget: no skim work launches; the plan is written with empty
	// sections and the stop is recorded.
	if budget.Exhausted() {
		p.Registry.Emit("skim", "budget_stop", map[string]float64{"token_used": 0}, nil)
		plan := &types.Plan{DocID: opts.DocID, TermsToDefine: []types.PlanEntry{}, ConceptsToSimplify: []types.PlanEntry{}}
		if err := p.Dir.WriteJSON(artifacts.FilePlan, plan); err != nil {
			return nil, err
		}
		stats := SkimStats{BudgetStop: true}
		return plan, p.writeProgress(types.PhaseDone, stats, budget.Used(), candidates)
	}

	onProgress := func(results []types.SkimResult) {
		if len(results)%partialEvery != 0 {
			return
		}
		partial := Reduce(opts.DocID, results, idx, opts.Reduce)
		if err := p.Dir.WriteJSON(artifacts.FilePlanPartial, partial); err != nil {
			p.Registry.LogError("reduce", err)
		}
	}

	results, stats, err := skimmer.Run(ctx, opts.DocID, candidates, onProgress)
	if err != nil {
		p.Registry.LogError("skim", err)
		_ = p.writeProgress(types.PhaseFailed, stats, budget.Used(), candidates)
		return nil, fmt.Errorf("skim pass failed: %w", err)
	}

	p.Registry.Emit("skim", "progress", map[string]float64{
		"processed": float64(stats.Processed),
		"total":     float64(len(candidates)),
	}, nil)

	if stats.Cancelled {
		return nil, p.writeProgress(types.PhaseCancelled, stats, budget.Used(), candidates)
	}

	plan := Reduce(opts.DocID, results, idx, opts.Reduce)
	if plan.TermsToDefine == nil {
		plan.TermsToDefine = []types.PlanEntry{}
	}
	if plan.ConceptsToSimplify == nil {
		plan.ConceptsToSimplify = []types.PlanEntry{}
	}
	if err := p.Dir.WriteJSON(artifacts.FilePlan, plan); err != nil {
		return nil, err
	}
	p.Registry.Emit("reduce", "progress", map[string]float64{
		"processed": float64(plan.Total()),
		"total":     float64(plan.Total()),
	}, nil)

	return plan, p.writeProgress(types.PhaseDone, stats, budget.Used(), candidates)
}

func (p *Planner) writeProgress(status types.PhaseStatus, stats SkimStats, tokenUsed int, candidates []Candidate) error {
	p.Registry.Flush()
	return p.Dir.WriteJSON(artifacts.FilePhase1Progress, types.PhaseProgress{
		Phase:     "planner",
		Status:    status,
		Processed: stats.Processed,
		Total:     len(candidates),
		TokenUsed: tokenUsed,
		Timeouts:  stats.Timeouts,
		CacheHits: stats.CacheHits,
	})
}
