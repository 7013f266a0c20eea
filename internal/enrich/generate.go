package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adiwibowo/perkaya/internal/breaker"
	"github.com/adiwibowo/perkaya/internal/cache"
	"github.com/adiwibowo/perkaya/internal/llm"
	"github.com/adiwibowo/perkaya/internal/metrics"
	"github.com/adiwibowo/perkaya/internal/planner"
	"github.com/adiwibowo/perkaya/internal/prompts"
	"github.com/adiwibowo/perkaya/internal/ratelimit"
	"github.com/adiwibowo/perkaya/internal/schemas"
	"github.com/adiwibowo/perkaya/internal/tokenbudget"
	"github.com/adiwibowo/perkaya/internal/types"
)

// EnrichPromptVersion keys the cache; bump to invalidate prior generations.
const EnrichPromptVersion = "v1"

// Response token caps per mode.
const (
	sketchMaxOut = 384
	refineMaxOut = 512
)

// Generator performs the outbound generation calls under the same budget,
// rate, breaker and cancellation discipline as skim.
type Generator struct {
	Client   llm.Client
	Budget   *tokenbudget.Budget
	Bucket   *ratelimit.Bucket
	Breaker  *breaker.Breaker
	Cache    *cache.Store
	Registry *metrics.Registry
	Timeout  time.Duration
	Retries  int
}

func (g *Generator) timeout() time.Duration {
	if g.Timeout > 0 {
		return g.Timeout
	}
	return 8 * time.Second
}

func (g *Generator) retries() int {
	if g.Retries > 0 {
		return g.Retries
	}
	return 2
}

// Outcome classifies one generation attempt.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeCacheHit
	OutcomeSkipped
	OutcomeTimeout
	OutcomeBudget
)

// sketchKey is content-addressed on everything that shapes the prompt.
func sketchKey(item types.EnrichmentItem) string {
	return cache.Key("enrich", "sketch", EnrichPromptVersion, item.DocID,
		string(item.Type), planner.NormalizeLabel(item.Label),
		fmt.Sprintf("%s:%d-%d:%d", item.Provenance.SegID, item.Provenance.Char[0], item.Provenance.Char[1], item.Provenance.Page))
}

func refineKey(item types.EnrichmentItem) string {
	return cache.Key("enrich", "refine", EnrichPromptVersion, item.DocID,
		string(item.Type), planner.NormalizeLabel(item.Label),
		fmt.Sprintf("%s:%d-%d:%d", item.Provenance.SegID, item.Provenance.Char[0], item.Provenance.Char[1], item.Provenance.Page))
}

// Sketch runs the first-pass generation for one plan item.
func (g *Generator) Sketch(ctx context.Context, item types.EnrichmentItem, localCtx string) (*types.GeneratedContent, Outcome) {
	sys := prompts.MustGet("enrich.json", "sketch-system")
	user := prompts.Format(prompts.MustGet("enrich.json", "sketch-user"), map[string]string{
		"Type":    string(item.Type),
		"Label":   item.Label,
		"Context": localCtx,
	})
	return g.generate(ctx, item, sketchKey(item), sys, user, types.ModeSketch, sketchMaxOut, types.SketchMaxWords, llm.TierStandard)
}

// Refine runs the second-pass rewrite over a prior sketch.
func (g *Generator) Refine(ctx context.Context, item types.EnrichmentItem, localCtx, sketch string) (*types.GeneratedContent, Outcome) {
	sys := prompts.MustGet("enrich.json", "refine-system")
	user := prompts.Format(prompts.MustGet("enrich.json", "refine-user"), map[string]string{
		"Type":    string(item.Type),
		"Label":   item.Label,
		"Context": localCtx,
		"Sketch":  sketch,
	})
	return g.generate(ctx, item, refineKey(item), sys, user, types.ModeRefine, refineMaxOut, types.RefineMaxWords, llm.TierAdvanced)
}

func (g *Generator) generate(ctx context.Context, item types.EnrichmentItem, key, sys, user string, mode types.GenerationMode, maxOut, maxWords int, tier llm.ModelTier) (*types.GeneratedContent, Outcome) {
	phase := "enrich_" + string(mode)

	var cached types.GeneratedContent
	if ok, err := g.Cache.GetInto(key, &cached); err != nil {
		g.Registry.LogError(phase, err)
	} else if ok {
		g.Registry.Emit(phase, "cache_hit", nil, map[string]string{"label": item.Label})
		return &cached, OutcomeCacheHit
	}

	if !g.Budget.CanAfford(sys+user, maxOut) {
		return nil, OutcomeBudget
	}
	if !g.Breaker.Allow() {
		return nil, OutcomeSkipped
	}
	if metrics.IsCancelled(item.DocID) {
		return nil, OutcomeSkipped
	}
	if err := g.Bucket.Acquire(ctx); err != nil {
		return nil, OutcomeSkipped
	}
	g.Budget.Charge(sys+user, maxOut)

	start := time.Now()
	raw, err := llm.Call(ctx, g.Client, []llm.Message{
		{Role: "system", Content: sys},
		{Role: "user", Content: user},
	}, llm.CallOptions{
		Tier:    tier,
		MaxOut:  maxOut,
		Timeout: g.timeout(),
		Retries: g.retries(),
		Backoff: 500 * time.Millisecond,
	})
	latency := time.Since(start)

	if err != nil {
		g.Breaker.Failure()
		g.Registry.LogError(phase, err)
		if llm.IsTimeout(err) {
			g.Registry.Emit(phase, "timeout", map[string]float64{
				"latency_ms": float64(latency.Milliseconds()),
			}, map[string]string{"label": item.Label})
			return nil, OutcomeTimeout
		}
		return nil, OutcomeSkipped
	}
	g.Breaker.Success()
	tokenIn := g.Budget.Estimate(sys + user)
	tokenOut := g.Budget.Estimate(raw)
	g.Registry.Emit(phase, "call", map[string]float64{
		"latency_ms": float64(latency.Milliseconds()),
		"token_in":   float64(tokenIn),
		"token_out":  float64(tokenOut),
		"cost_usd":   llm.EstimateCost(tier, tokenIn, tokenOut),
	}, map[string]string{"label": item.Label})

	gen, err := ParseGenerated(raw, item, mode, maxWords)
	if err != nil {
		g.Registry.LogError(phase, fmt.Errorf("item %q: %w", item.Label, err))
		return nil, OutcomeSkipped
	}
	if err := g.Cache.Set(key, gen); err != nil {
		g.Registry.LogError(phase, err)
	}
	return gen, OutcomeOK
}

// ParseGenerated validates one generation payload. Content over the word
// cap is a violation and demotes the item to skipped; empty content forces
// zero confidence.
func ParseGenerated(raw string, item types.EnrichmentItem, mode types.GenerationMode, maxWords int) (*types.GeneratedContent, error) {
	if err := schemas.Validate(schemas.GeneratedContent, raw); err != nil {
		return nil, err
	}
	var gen types.GeneratedContent
	if err := json.Unmarshal([]byte(raw), &gen); err != nil {
		return nil, fmt.Errorf("failed to parse generated content: %w", err)
	}
	if WordCount(gen.Content) > maxWords {
		return nil, fmt.Errorf("content exceeds %d words", maxWords)
	}
	if gen.Content == "" {
		gen.Confidence = 0
	}
	// Pin identity fields; the model echo is not trusted.
	gen.Label = item.Label
	gen.Type = item.Type
	gen.Mode = mode
	gen.Provenance = item.Provenance
	return &gen, nil
}
