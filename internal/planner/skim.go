package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/adiwibowo/perkaya/internal/artifacts"
	"github.com/adiwibowo/perkaya/internal/breaker"
	"github.com/adiwibowo/perkaya/internal/cache"
	"github.com/adiwibowo/perkaya/internal/llm"
	"github.com/adiwibowo/perkaya/internal/metrics"
	"github.com/adiwibowo/perkaya/internal/prompts"
	"github.com/adiwibowo/perkaya/internal/ratelimit"
	"github.com/adiwibowo/perkaya/internal/schemas"
	"github.com/adiwibowo/perkaya/internal/tokenbudget"
	"github.com/adiwibowo/perkaya/internal/types"
)

// SkimPromptVersion keys the cache; bump it to invalidate prior skim output.
const SkimPromptVersion = "v1"

// skimMaxOut caps response tokens per skim call.
const skimMaxOut = 256

// maxCandidatesPerList is the post-filter cap on each skim list.
const maxCandidatesPerList = 2

// SkimConfig bounds the skim pass.
type SkimConfig struct {
	Concurrency int
	Timeout     time.Duration
	Retries     int
}

func (c *SkimConfig) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.Timeout <= 0 {
		c.Timeout = 8 * time.Second
	}
	if c.Retries <= 0 {
		c.Retries = 2
	}
}

// Skimmer drives the per-segment skim calls under budget, rate, breaker and
// cancellation discipline.
type Skimmer struct {
	Client   llm.Client
	Budget   *tokenbudget.Budget
	Bucket   *ratelimit.Bucket
	Breaker  *breaker.Breaker
	Cache    *cache.Store
	Registry *metrics.Registry
	Dir      *artifacts.Dir
	Config   SkimConfig
}

// SkimStats summarizes one skim pass.
type SkimStats struct {
	Processed  int
	Skipped    int
	Timeouts   int
	CacheHits  int
	BudgetStop bool
	Cancelled  bool
}

// Run skims every gated candidate. Each valid result is appended to
// skim_results.jsonl; onProgress (may be nil) fires after every result with
// the results collected so far, for partial-plan writes. Returns the
// collected results even when the pass stopped early.
func (s *Skimmer) Run(ctx context.Context, docID string, candidates []Candidate, onProgress func(results []types.SkimResult)) ([]types.SkimResult, SkimStats, error) {
	s.Config.defaults()

	var (
		mu      sync.Mutex
		results []types.SkimResult
		stats   SkimStats
	)
	sem := semaphore.NewWeighted(int64(s.Config.Concurrency))
	g, gctx := errgroup.WithContext(ctx)

	collect := func(res types.SkimResult) {
		mu.Lock()
		results = append(results, res)
		snapshot := make([]types.SkimResult, len(results))
		copy(snapshot, results)
		mu.Unlock()
		if onProgress != nil {
			onProgress(snapshot)
		}
	}

	for _, cand := range candidates {
		// Cooperative cancel and budget early-exit, checked at the loop
		// head before any acquire.
		if metrics.IsCancelled(docID) {
			stats.Cancelled = true
			break
		}
		if s.Budget.Exhausted() {
			if !stats.BudgetStop {
				stats.BudgetStop = true
				s.Registry.Emit("skim", "budget_stop", map[string]float64{
					"token_used": float64(s.Budget.Used()),
				}, nil)
			}
			break
		}

		cand := cand
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			res, outcome := s.skimOne(gctx, docID, cand)
			mu.Lock()
			switch outcome {
			case skimOK:
				stats.Processed++
			case skimCacheHit:
				stats.Processed++
				stats.CacheHits++
			case skimTimeout:
				stats.Timeouts++
				stats.Skipped++
			default:
				stats.Skipped++
			}
			mu.Unlock()
			if res != nil {
				if err := s.Dir.AppendJSONL(artifacts.FileSkimResults, res); err != nil {
					s.Registry.LogError("skim", err)
				}
				collect(*res)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !stats.Cancelled {
		return results, stats, err
	}
	return results, stats, nil
}

type skimOutcome int

const (
	skimOK skimOutcome = iota
	skimCacheHit
	skimSkipped
	skimTimeout
)

// skimOne resolves one candidate: cache, budget, breaker, rate, call,
// parse. A nil result means the candidate was skipped.
func (s *Skimmer) skimOne(ctx context.Context, docID string, cand Candidate) (*types.SkimResult, skimOutcome) {
	seg := cand.Segment
	key := cache.Key("skim", SkimPromptVersion, seg.Hash)

	var cached types.SkimResult
	if ok, err := s.Cache.GetInto(key, &cached); err != nil {
		s.Registry.LogError("skim", err)
	} else if ok {
		s.Registry.Emit("skim", "cache_hit", nil, map[string]string{"segment": seg.SegmentID})
		return &cached, skimCacheHit
	}

	sysPrompt := prompts.MustGet("planner.json", "skim-system")
	userPrompt := prompts.Format(prompts.MustGet("planner.json", "skim-user"), map[string]string{
		"SegmentHash": seg.Hash,
		"SegmentText": seg.Text,
	})

	if !s.Budget.CanAfford(sysPrompt+userPrompt, skimMaxOut) {
		return nil, skimSkipped
	}
	if !s.Breaker.Allow() {
		return nil, skimSkipped
	}
	if metrics.IsCancelled(docID) {
		return nil, skimSkipped
	}
	if err := s.Bucket.Acquire(ctx); err != nil {
		return nil, skimSkipped
	}
	s.Budget.Charge(sysPrompt+userPrompt, skimMaxOut)

	start := time.Now()
	raw, err := llm.Call(ctx, s.Client, []llm.Message{
		{Role: "system", Content: sysPrompt},
		{Role: "user", Content: userPrompt},
	}, llm.CallOptions{
		Tier:    llm.TierLite,
		MaxOut:  skimMaxOut,
		Timeout: s.Config.Timeout,
		Retries: s.Config.Retries,
		Backoff: 500 * time.Millisecond,
	})
	latency := time.Since(start)

	if err != nil {
		s.Breaker.Failure()
		s.Registry.LogError("skim", err)
		if llm.IsTimeout(err) {
			s.Registry.Emit("skim", "timeout", map[string]float64{
				"latency_ms": float64(latency.Milliseconds()),
			}, map[string]string{"segment": seg.SegmentID})
			return nil, skimTimeout
		}
		return nil, skimSkipped
	}
	s.Breaker.Success()
	tokenIn := s.Budget.Estimate(sysPrompt + userPrompt)
	tokenOut := s.Budget.Estimate(raw)
	s.Registry.Emit("skim", "call", map[string]float64{
		"latency_ms": float64(latency.Milliseconds()),
		"token_in":   float64(tokenIn),
		"token_out":  float64(tokenOut),
		"cost_usd":   llm.EstimateCost(llm.TierLite, tokenIn, tokenOut),
	}, map[string]string{"segment": seg.SegmentID})

	res, err := ParseSkimResponse(raw, seg.Hash)
	if err != nil {
		s.Registry.LogError("skim", fmt.Errorf("segment %s: %w", seg.SegmentID, err))
		return nil, skimSkipped
	}
	if err := s.Cache.Set(key, res); err != nil {
		s.Registry.LogError("skim", err)
	}
	return res, skimOK
}

// ParseSkimResponse validates and post-filters one skim payload. Lists are
// capped at two entries, labels trimmed, empty labels dropped; the segment
// hash is pinned to the requested segment.
func ParseSkimResponse(raw, segmentHash string) (*types.SkimResult, error) {
	if err := schemas.Validate(schemas.SkimResult, raw); err != nil {
		return nil, err
	}
	var res types.SkimResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("failed to parse skim response: %w", err)
	}
	res.SegmentHash = segmentHash
	res.TermsToDefine = filterCandidates(res.TermsToDefine)
	res.ConceptsToSimplify = filterCandidates(res.ConceptsToSimplify)
	return &res, nil
}

func filterCandidates(cands []types.LabeledCandidate) []types.LabeledCandidate {
	out := make([]types.LabeledCandidate, 0, maxCandidatesPerList)
	for _, c := range cands {
		c.Label = strings.TrimSpace(c.Label)
		if c.Label == "" {
			continue
		}
		out = append(out, c)
		if len(out) == maxCandidatesPerList {
			break
		}
	}
	return out
}
