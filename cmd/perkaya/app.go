package main

import (
	"context"
	"fmt"

	"github.com/adiwibowo/perkaya/internal/cache"
	"github.com/adiwibowo/perkaya/internal/config"
	"github.com/adiwibowo/perkaya/internal/db"
	"github.com/adiwibowo/perkaya/internal/embedding"
	"github.com/adiwibowo/perkaya/internal/llm"
	"github.com/adiwibowo/perkaya/internal/pipeline"
	"github.com/adiwibowo/perkaya/internal/server"
	"github.com/adiwibowo/perkaya/internal/vectorstore"
)

// app bundles everything a command needs, plus a cleanup function.
type app struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	db       *db.DB
	index    vectorstore.Index
	close    func()
}

// newApp loads configuration and dials the clients the requested features
// need. The LLM client is only created when withLLM is set so read-only
// commands work without an API key.
func newApp(ctx context.Context, withLLM bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var client llm.Client
	if withLLM {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("API key is required (set GEMINI_API_KEY or api_key in config)")
		}
		client, err = llm.NewClient(ctx, llm.DefaultConfig(), cfg.APIKey)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = client.Close() })
	}

	store, err := cache.Open(cfg.CacheDir)
	if err != nil {
		cleanup()
		return nil, err
	}

	var embedder embedding.Embedder
	var index vectorstore.Index
	if cfg.VectorStore.IndexHost != "" && cfg.VectorAPIKey != "" {
		if cfg.APIKey == "" {
			cleanup()
			return nil, fmt.Errorf("embedding requires GEMINI_API_KEY")
		}
		ge, err := embedding.NewGeminiEmbedder(ctx, cfg.APIKey, "")
		if err != nil {
			cleanup()
			return nil, err
		}
		closers = append(closers, func() { _ = ge.Close() })
		embedder = ge

		index, err = vectorstore.NewRESTIndex(cfg.VectorStore.IndexHost, cfg.VectorAPIKey)
		if err != nil {
			cleanup()
			return nil, err
		}
	}

	var database *db.DB
	if cfg.DatabaseURL != "" {
		database, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to connect to review database: %w", err)
		}
		closers = append(closers, database.Close)
	}

	namespace := server.NewNamespaceStore(cfg.ArtifactsDir).Active(cfg.Namespace)

	return &app{
		cfg: cfg,
		pipeline: &pipeline.Pipeline{
			Cfg:       cfg,
			Client:    client,
			Cache:     store,
			Embedder:  embedder,
			Index:     index,
			DB:        database,
			Namespace: namespace,
		},
		db:    database,
		index: index,
		close: cleanup,
	}, nil
}
