package enrich

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/adiwibowo/perkaya/internal/artifacts"
	"github.com/adiwibowo/perkaya/internal/breaker"
	"github.com/adiwibowo/perkaya/internal/cache"
	"github.com/adiwibowo/perkaya/internal/llm"
	"github.com/adiwibowo/perkaya/internal/metrics"
	"github.com/adiwibowo/perkaya/internal/planner"
	"github.com/adiwibowo/perkaya/internal/ratelimit"
	"github.com/adiwibowo/perkaya/internal/tokenbudget"
	"github.com/adiwibowo/perkaya/internal/types"
)

// Defaults for the enrichment phase.
const (
	DefaultEagerTopN  = 100
	DefaultRefineTopN = 20
	partialEvery      = 10
)

// Options configures one enrichment run.
type Options struct {
	DocID       string
	TokenBudget int
	RPS         float64
	RPSCapacity int
	Concurrency int
	EagerTopN   int
	RefineTopN  int
}

func (o *Options) defaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.EagerTopN <= 0 {
		o.EagerTopN = DefaultEagerTopN
	}
	if o.RefineTopN <= 0 {
		o.RefineTopN = DefaultRefineTopN
	}
}

// Orchestrator drives sketch then refine for one document, persisting
// partial artifacts as it goes.
type Orchestrator struct {
	Dir      *artifacts.Dir
	Client   llm.Client
	Cache    *cache.Store
	Registry *metrics.Registry
}

// state is the mutable generation map plus counters. The map is monotone:
// keys are only added, and sketch values only ever get replaced by refines.
type state struct {
	mu        sync.Mutex
	generated map[string]types.GeneratedContent
	items     []types.EnrichmentItem
	segments  []types.Segment
	completed int
	timeouts  int
	cacheHits int
	budgetHit bool
}

func itemKey(item types.EnrichmentItem) string {
	return string(item.Type) + "::" + planner.NormalizeLabel(item.Label)
}

// Run executes the enrichment phase. On cancellation the current partial
// state is persisted with status cancelled; on completion suggestions.json
// is final and the status is done.
func (o *Orchestrator) Run(ctx context.Context, opts Options) error {
	opts.defaults()
	if err := o.Dir.Require(artifacts.FilePlan, artifacts.FileSegments); err != nil {
		return err
	}

	var plan types.Plan
	if err := o.Dir.ReadJSON(artifacts.FilePlan, &plan); err != nil {
		return err
	}
	var segments []types.Segment
	if err := o.Dir.ReadJSON(artifacts.FileSegments, &segments); err != nil {
		return err
	}

	st := &state{
		generated: make(map[string]types.GeneratedContent),
		items:     flattenPlan(&plan, opts.EagerTopN),
		segments:  segments,
	}

	if metrics.IsCancelled(opts.DocID) {
		return o.persist(st, opts, types.PhaseCancelled, 0)
	}

	budget := tokenbudget.New(opts.TokenBudget)
	gen := &Generator{
		Client:   o.Client,
		Budget:   budget,
		Bucket:   ratelimit.New(opts.RPS, opts.RPSCapacity),
		Breaker:  breaker.New(),
		Cache:    o.Cache,
		Registry: o.Registry,
	}

	cancelled := o.runSketches(ctx, opts, gen, st)
	if cancelled {
		return o.persist(st, opts, types.PhaseCancelled, budget.Used())
	}

	cancelled = o.runRefines(ctx, opts, gen, st)
	if cancelled {
		return o.persist(st, opts, types.PhaseCancelled, budget.Used())
	}

	return o.persist(st, opts, types.PhaseDone, budget.Used())
}

// runSketches generates first-pass content for every item under bounded
// concurrency. Returns true when the run was cancelled.
func (o *Orchestrator) runSketches(ctx context.Context, opts Options, gen *Generator, st *state) bool {
	sem := semaphore.NewWeighted(int64(opts.Concurrency))
	g, gctx := errgroup.WithContext(ctx)
	cancelled := false

	for _, item := range st.items {
		if metrics.IsCancelled(opts.DocID) {
			cancelled = true
			break
		}
		if gen.Budget.Exhausted() {
			st.mu.Lock()
			if !st.budgetHit {
				st.budgetHit = true
				o.Registry.Emit("enrich_sketch", "budget_stop", map[string]float64{
					"token_used": float64(gen.Budget.Used()),
				}, nil)
			}
			st.mu.Unlock()
			break
		}
		item := item
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			localCtx := BuildLocalContext(item.Provenance, st.segments)
			content, outcome := gen.Sketch(gctx, item, localCtx)
			o.record(st, opts, item, content, outcome)
			return nil
		})
	}
	_ = g.Wait()
	return cancelled || metrics.IsCancelled(opts.DocID)
}

// runRefines rewrites the top sketches ranked by confidence. A failed
// refine leaves the sketch in place. Returns true when cancelled.
func (o *Orchestrator) runRefines(ctx context.Context, opts Options, gen *Generator, st *state) bool {
	st.mu.Lock()
	type ranked struct {
		item   types.EnrichmentItem
		sketch types.GeneratedContent
	}
	var candidates []ranked
	for _, item := range st.items {
		if g, ok := st.generated[itemKey(item)]; ok && g.Mode == types.ModeSketch && g.Content != "" {
			candidates = append(candidates, ranked{item: item, sketch: g})
		}
	}
	st.mu.Unlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].sketch.Confidence > candidates[j].sketch.Confidence
	})
	if len(candidates) > opts.RefineTopN {
		candidates = candidates[:opts.RefineTopN]
	}

	for _, c := range candidates {
		if metrics.IsCancelled(opts.DocID) {
			return true
		}
		if gen.Budget.Exhausted() {
			return false
		}
		localCtx := BuildLocalContext(c.item.Provenance, st.segments)
		refined, outcome := gen.Refine(ctx, c.item, localCtx, c.sketch.Content)
		if outcome == OutcomeOK || outcome == OutcomeCacheHit {
			o.record(st, opts, c.item, refined, outcome)
		}
		// Otherwise the prior sketch stays in the map untouched.
	}
	return metrics.IsCancelled(opts.DocID)
}

// record folds one result into the state and emits partial artifacts every
// partialEvery completions.
func (o *Orchestrator) record(st *state, opts Options, item types.EnrichmentItem, content *types.GeneratedContent, outcome Outcome) {
	st.mu.Lock()
	switch outcome {
	case OutcomeCacheHit:
		st.cacheHits++
	case OutcomeTimeout:
		st.timeouts++
	case OutcomeBudget:
		st.budgetHit = true
	}
	if content != nil {
		st.generated[itemKey(item)] = *content
	}
	st.completed++
	emit := st.completed%partialEvery == 0
	st.mu.Unlock()

	if emit {
		if err := o.persist(st, opts, types.PhaseRunning, 0); err != nil {
			o.Registry.LogError("enrich", err)
		}
	}
}

// persist writes generated_content.json, the suggestion artifacts and the
// phase progress record. Running state writes the partial suggestion file;
// terminal states also write suggestions.json.
func (o *Orchestrator) persist(st *state, opts Options, status types.PhaseStatus, tokenUsed int) error {
	st.mu.Lock()
	genCopy := make(map[string]types.GeneratedContent, len(st.generated))
	for k, v := range st.generated {
		genCopy[k] = v
	}
	suggestions := deriveSuggestions(opts.DocID, st.items, genCopy, st.segments)
	progress := types.PhaseProgress{
		Phase:     "enrich",
		Status:    status,
		Processed: st.completed,
		Total:     len(st.items),
		TokenUsed: tokenUsed,
		Timeouts:  st.timeouts,
		CacheHits: st.cacheHits,
	}
	st.mu.Unlock()

	if err := o.Dir.WriteJSON(artifacts.FileGeneratedContent, genCopy); err != nil {
		return err
	}
	if err := o.Dir.WriteJSON(artifacts.FileSuggestionsPartial, suggestions); err != nil {
		return err
	}
	if status != types.PhaseRunning {
		if err := o.Dir.WriteJSON(artifacts.FileSuggestions, suggestions); err != nil {
			return err
		}
		o.Registry.Emit("enrich", "progress", map[string]float64{
			"processed": float64(progress.Processed),
			"total":     float64(progress.Total),
		}, nil)
		o.Registry.Flush()
	}
	return o.Dir.WriteJSON(artifacts.FilePhase2Progress, progress)
}

// flattenPlan merges both plan sections into one worklist sorted by plan
// score descending, capped at eagerTopN. Entries without provenance are
// dropped.
func flattenPlan(plan *types.Plan, eagerTopN int) []types.EnrichmentItem {
	items := make([]types.EnrichmentItem, 0, plan.Total())
	add := func(entries []types.PlanEntry, typ types.ItemType) {
		for _, e := range entries {
			if len(e.Provenances) == 0 {
				continue
			}
			items = append(items, types.EnrichmentItem{
				DocID:      plan.DocID,
				Type:       typ,
				Label:      e.Label,
				Provenance: e.Provenances[0],
				Score:      e.Score,
			})
		}
	}
	add(plan.TermsToDefine, types.ItemTerm)
	add(plan.ConceptsToSimplify, types.ItemConcept)

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Label < items[j].Label
	})
	if len(items) > eagerTopN {
		items = items[:eagerTopN]
	}
	return items
}

// deriveSuggestions projects the generated map onto UI-facing suggestion
// records in stable worklist order.
func deriveSuggestions(docID string, items []types.EnrichmentItem, generated map[string]types.GeneratedContent, segments []types.Segment) []types.Suggestion {
	suggestions := make([]types.Suggestion, 0, len(generated))
	for _, item := range items {
		gen, ok := generated[itemKey(item)]
		if !ok || gen.Content == "" {
			continue
		}
		suggestions = append(suggestions, types.Suggestion{
			ID:               types.SuggestionID(docID, item.Type, item.Label),
			Type:             item.Type,
			Label:            item.Label,
			OriginalContext:  OriginalContext(item.Provenance, segments),
			GeneratedContent: gen.Content,
			ConfidenceScore:  gen.Confidence,
			Status:           types.StatusPending,
		})
	}
	return suggestions
}
