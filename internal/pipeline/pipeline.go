// Package pipeline wires the per-document phases together: planner,
// enrichment, synthesis and vector upload. Multi-document runs overlap
// enrichment of the next document with vectorization of the previous one
// through a bounded queue.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adiwibowo/perkaya/internal/artifacts"
	"github.com/adiwibowo/perkaya/internal/batch"
	"github.com/adiwibowo/perkaya/internal/cache"
	"github.com/adiwibowo/perkaya/internal/config"
	"github.com/adiwibowo/perkaya/internal/db"
	"github.com/adiwibowo/perkaya/internal/embedding"
	"github.com/adiwibowo/perkaya/internal/enrich"
	"github.com/adiwibowo/perkaya/internal/llm"
	"github.com/adiwibowo/perkaya/internal/metrics"
	"github.com/adiwibowo/perkaya/internal/planner"
	"github.com/adiwibowo/perkaya/internal/queue"
	"github.com/adiwibowo/perkaya/internal/synthesis"
	"github.com/adiwibowo/perkaya/internal/types"
	"github.com/adiwibowo/perkaya/internal/uploader"
	"github.com/adiwibowo/perkaya/internal/vectorstore"
)

// Pipeline holds the shared clients for all phases. Embedder, Index and DB
// are optional; phases that need a missing client fail with an explicit
// error instead of at startup.
type Pipeline struct {
	Cfg       *config.Config
	Client    llm.Client
	Cache     *cache.Store
	Embedder  embedding.Embedder
	Index     vectorstore.Index
	DB        *db.DB
	Namespace string
}

func (p *Pipeline) open(docID string) (*artifacts.Dir, *metrics.Registry, error) {
	dir, err := artifacts.Open(p.Cfg.ArtifactsDir, docID)
	if err != nil {
		return nil, nil, err
	}
	return dir, metrics.NewRegistry(dir), nil
}

// Plan runs the planner phase for one document.
func (p *Pipeline) Plan(ctx context.Context, docID string) (*types.Plan, error) {
	dir, registry, err := p.open(docID)
	if err != nil {
		return nil, err
	}
	pl := &planner.Planner{Dir: dir, Client: p.Client, Cache: p.Cache, Registry: registry}
	return pl.Run(ctx, planner.Options{
		DocID:         docID,
		TokenBudget:   p.Cfg.Planner.TokenBudget,
		RPS:           p.Cfg.Planner.RPS,
		RPSCapacity:   p.Cfg.Planner.RPSCapacity,
		Concurrency:   p.Cfg.Planner.Concurrency,
		GlobalCap:     p.Cfg.Planner.GlobalCap,
		QuotaPerShard: p.Cfg.Planner.QuotaPerShard,
		Reduce: planner.ReduceOptions{
			ClusterThreshold: p.Cfg.Reduce.ClusterThreshold,
			TopTotalMin:      p.Cfg.Reduce.TopTotalMin,
			TopTotalMax:      p.Cfg.Reduce.TopTotalMax,
		},
	})
}

// Enrich runs sketch + refine for one document and mirrors the final
// suggestions into the review database when one is configured.
func (p *Pipeline) Enrich(ctx context.Context, docID string) error {
	dir, registry, err := p.open(docID)
	if err != nil {
		return err
	}
	orch := &enrich.Orchestrator{Dir: dir, Client: p.Client, Cache: p.Cache, Registry: registry}
	if err := orch.Run(ctx, enrich.Options{
		DocID:       docID,
		TokenBudget: p.Cfg.Enrich.TokenBudget,
		RPS:         p.Cfg.Enrich.RPS,
		RPSCapacity: p.Cfg.Enrich.RPSCapacity,
		Concurrency: p.Cfg.Enrich.Concurrency,
		EagerTopN:   p.Cfg.Enrich.EagerTopN,
		RefineTopN:  p.Cfg.Enrich.RefineTopN,
	}); err != nil {
		return err
	}

	if p.DB != nil {
		var suggestions []types.Suggestion
		if err := dir.ReadJSON(artifacts.FileSuggestions, &suggestions); err == nil {
			if err := p.DB.SaveSuggestions(ctx, docID, suggestions); err != nil {
				// Review persistence is best-effort; the artifact directory
				// stays authoritative.
				registry.LogError("enrich", err)
			}
		}
	}
	return nil
}

// Synthesize rebuilds the enriched Markdown for one document.
func (p *Pipeline) Synthesize(docID string) (*types.SynthesisReport, error) {
	dir, registry, err := p.open(docID)
	if err != nil {
		return nil, err
	}
	syn := &synthesis.Synthesizer{Dir: dir, Registry: registry}
	return syn.Run(docID, synthesis.Options{
		MaxSentenceLen: p.Cfg.Synthesis.MaxSentenceLen,
		ApprovedOnly:   p.Cfg.Synthesis.ApprovedOnly,
	})
}

// Vectorize chunks and uploads the enriched Markdown into the active
// namespace.
func (p *Pipeline) Vectorize(ctx context.Context, docID string) (uploader.Result, error) {
	if p.Embedder == nil || p.Index == nil {
		return uploader.Result{}, fmt.Errorf("vector upload requires embedding and vector store clients")
	}
	dir, registry, err := p.open(docID)
	if err != nil {
		return uploader.Result{}, err
	}
	text, err := dir.ReadRaw(artifacts.FileMarkdownV2)
	if err != nil {
		return uploader.Result{}, err
	}
	up := &uploader.Uploader{
		Embedder: p.Embedder,
		Index:    p.Index,
		Registry: registry,
		Config: uploader.Config{
			ChunkSize:            p.Cfg.VectorStore.ChunkSize,
			ChunkOverlap:         p.Cfg.VectorStore.ChunkOverlap,
			EmbedBatchSize:       p.Cfg.VectorStore.EmbedBatchSize,
			UploadBatchSize:      p.Cfg.VectorStore.UploadBatchSize,
			UploadThreads:        p.Cfg.VectorStore.UploadThreads,
			MaxConcurrentBatches: p.Cfg.VectorStore.MaxConcurrentBatches,
		},
	}
	return up.Upload(ctx, docID, p.Namespace, string(text), map[string]any{"source": "perkaya"})
}

// RunDocument drives one document through every phase in order.
func (p *Pipeline) RunDocument(ctx context.Context, docID string) error {
	defer metrics.ClearCancel(docID)

	slog.Info("pipeline started", "doc_id", docID)
	if _, err := p.Plan(ctx, docID); err != nil {
		return fmt.Errorf("planner phase: %w", err)
	}
	if metrics.IsCancelled(docID) {
		slog.Info("pipeline cancelled", "doc_id", docID, "after", "planner")
		return nil
	}
	if err := p.Enrich(ctx, docID); err != nil {
		return fmt.Errorf("enrichment phase: %w", err)
	}
	if metrics.IsCancelled(docID) {
		slog.Info("pipeline cancelled", "doc_id", docID, "after", "enrich")
		return nil
	}
	if _, err := p.Synthesize(docID); err != nil {
		return fmt.Errorf("synthesis phase: %w", err)
	}
	if p.Embedder != nil && p.Index != nil {
		res, err := p.Vectorize(ctx, docID)
		if err != nil {
			return fmt.Errorf("vectorize phase: %w", err)
		}
		slog.Info("vectors uploaded", "doc_id", docID, "chunks", res.Chunks, "failed", res.Failed)
	}
	slog.Info("pipeline finished", "doc_id", docID)
	return nil
}

// RunMany processes documents under the multi-file concurrency cap.
// Enrichment and synthesis run inside the batch workers; finished documents
// flow through a bounded queue to a single upload consumer, so document N+1
// enriches while document N vectorizes.
func (p *Pipeline) RunMany(ctx context.Context, docIDs []string) (*batch.Report, error) {
	uploadQueue := queue.New[string](queue.DefaultSize)
	uploadErrs := make(map[string]error, len(docIDs))
	consumerDone := make(chan struct{})

	vectorize := p.Embedder != nil && p.Index != nil
	go func() {
		defer close(consumerDone)
		for {
			docID, open, err := uploadQueue.Get(ctx, 500*time.Millisecond)
			if !open {
				return
			}
			if err != nil {
				continue // poll timeout; production still running
			}
			if _, err := p.Vectorize(ctx, docID); err != nil {
				slog.Error("vector upload failed", "doc_id", docID, "error", err)
				uploadErrs[docID] = err
			}
		}
	}()

	runner := &batch.Runner{
		Process: func(ctx context.Context, docID string) error {
			defer metrics.ClearCancel(docID)
			if _, err := p.Plan(ctx, docID); err != nil {
				return fmt.Errorf("planner phase: %w", err)
			}
			if metrics.IsCancelled(docID) {
				return nil
			}
			if err := p.Enrich(ctx, docID); err != nil {
				return fmt.Errorf("enrichment phase: %w", err)
			}
			if metrics.IsCancelled(docID) {
				return nil
			}
			if _, err := p.Synthesize(docID); err != nil {
				return fmt.Errorf("synthesis phase: %w", err)
			}
			if vectorize {
				return uploadQueue.Put(ctx, docID)
			}
			return nil
		},
	}
	report := runner.Run(ctx, docIDs, batch.Options{
		MaxConcurrentFiles:  p.Cfg.MultiFile.MaxConcurrentFiles,
		CPUThresholdPercent: p.Cfg.MultiFile.CPUThresholdFallbackPercent,
		Monitor:             batch.NewCPUMonitor(),
	})

	uploadQueue.Complete()
	<-consumerDone

	for docID, err := range uploadErrs {
		st := report.Files[docID]
		if st.State == batch.StateCompleted {
			st.State = batch.StateFailed
			st.Error = fmt.Sprintf("vectorize phase: %v", err)
			report.Files[docID] = st
			report.Completed--
			report.Failed++
		}
	}
	return report, nil
}
