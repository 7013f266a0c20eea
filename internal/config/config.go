// Package config provides configuration loading and validation for the
// pipeline. Files may be JSON or YAML; missing values fall back to defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

// PlannerConfig bounds the gating + skim + reduce phase.
type PlannerConfig struct {
	TokenBudget   int     `json:"token_budget" yaml:"token_budget" validate:"min=0"`
	RPS           float64 `json:"rps" yaml:"rps" validate:"min=0"`
	RPSCapacity   int     `json:"rps_capacity" yaml:"rps_capacity" validate:"min=0"`
	Concurrency   int     `json:"concurrency" yaml:"concurrency" validate:"min=0,max=64"`
	GlobalCap     int     `json:"global_cap" yaml:"global_cap" validate:"min=0"`
	QuotaPerShard int     `json:"quota_per_shard" yaml:"quota_per_shard" validate:"min=0"`
}

// EnrichConfig bounds the sketch + refine phase.
type EnrichConfig struct {
	TokenBudget int     `json:"token_budget" yaml:"token_budget" validate:"min=0"`
	RPS         float64 `json:"rps" yaml:"rps" validate:"min=0"`
	RPSCapacity int     `json:"rps_capacity" yaml:"rps_capacity" validate:"min=0"`
	Concurrency int     `json:"concurrency" yaml:"concurrency" validate:"min=0,max=64"`
	EagerTopN   int     `json:"eager_top_n" yaml:"eager_top_n" validate:"min=0"`
	RefineTopN  int     `json:"refine_top_n" yaml:"refine_top_n" validate:"min=0"`
}

// ReduceConfig controls plan clustering and sizing.
type ReduceConfig struct {
	ClusterThreshold float64 `json:"cluster_threshold" yaml:"cluster_threshold" validate:"min=0,max=1"`
	TopTotalMin      int     `json:"top_total_min" yaml:"top_total_min" validate:"min=0"`
	TopTotalMax      int     `json:"top_total_max" yaml:"top_total_max" validate:"min=0,gtefield=TopTotalMin"`
}

// SynthesisConfig controls anchoring.
type SynthesisConfig struct {
	MaxSentenceLen int  `json:"max_sentence_len" yaml:"max_sentence_len" validate:"min=0"`
	ApprovedOnly   bool `json:"approved_only" yaml:"approved_only"`
}

// VectorStoreConfig controls chunking and upload parallelism.
type VectorStoreConfig struct {
	IndexHost            string `json:"index_host" yaml:"index_host"`
	ChunkSize            int    `json:"chunk_size" yaml:"chunk_size" validate:"min=0"`
	ChunkOverlap         int    `json:"chunk_overlap" yaml:"chunk_overlap" validate:"min=0"`
	EmbedBatchSize       int    `json:"embed_batch_size" yaml:"embed_batch_size" validate:"min=0"`
	UploadBatchSize      int    `json:"upload_batch_size" yaml:"upload_batch_size" validate:"min=0"`
	UploadThreads        int    `json:"upload_threads" yaml:"upload_threads" validate:"min=0,max=64"`
	MaxConcurrentBatches int    `json:"max_concurrent_batches" yaml:"max_concurrent_batches" validate:"min=0,max=64"`
}

// MultiFileConfig controls the batch orchestrator.
type MultiFileConfig struct {
	MaxConcurrentFiles          int     `json:"max_concurrent_files" yaml:"max_concurrent_files" validate:"min=0,max=32"`
	CPUThresholdFallbackPercent float64 `json:"cpu_threshold_fallback_percent" yaml:"cpu_threshold_fallback_percent" validate:"min=0,max=100"`
}

// ServerConfig controls the admin surface.
type ServerConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
}

// Config is the root configuration.
type Config struct {
	ArtifactsDir string `json:"artifacts_dir" yaml:"artifacts_dir"`
	CacheDir     string `json:"cache_dir" yaml:"cache_dir"`
	APIKey       string `json:"api_key" yaml:"api_key"`
	VectorAPIKey string `json:"vector_api_key" yaml:"vector_api_key"`
	DatabaseURL  string `json:"database_url" yaml:"database_url"`
	Namespace    string `json:"namespace" yaml:"namespace"`

	Planner     PlannerConfig     `json:"planner" yaml:"planner"`
	Enrich      EnrichConfig      `json:"enrich" yaml:"enrich"`
	Reduce      ReduceConfig      `json:"reduce" yaml:"reduce"`
	Synthesis   SynthesisConfig   `json:"synthesis" yaml:"synthesis"`
	VectorStore VectorStoreConfig `json:"vectorstore" yaml:"vectorstore"`
	MultiFile   MultiFileConfig   `json:"multi_file" yaml:"multi_file"`
	Server      ServerConfig      `json:"server" yaml:"server"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		ArtifactsDir: "artefacts",
		CacheDir:     ".perkaya-cache",
		Namespace:    "default",
		Planner: PlannerConfig{
			TokenBudget: 200_000,
			RPS:         4,
			Concurrency: 4,
		},
		Enrich: EnrichConfig{
			TokenBudget: 300_000,
			RPS:         2,
			Concurrency: 4,
			EagerTopN:   100,
			RefineTopN:  20,
		},
		Reduce: ReduceConfig{
			ClusterThreshold: 0.82,
			TopTotalMin:      200,
			TopTotalMax:      300,
		},
		Synthesis: SynthesisConfig{
			MaxSentenceLen: 400,
		},
		VectorStore: VectorStoreConfig{
			ChunkSize:            1000,
			ChunkOverlap:         100,
			EmbedBatchSize:       64,
			UploadBatchSize:      100,
			UploadThreads:        4,
			MaxConcurrentBatches: 4,
		},
		MultiFile: MultiFileConfig{
			MaxConcurrentFiles:          2,
			CPUThresholdFallbackPercent: 85,
		},
		Server: ServerConfig{
			Addr: ":8600",
		},
	}
}

// Load reads a JSON or YAML configuration file over the defaults. An empty
// path returns the defaults untouched. Environment variables supply the
// secrets the file omits.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if !filepath.IsAbs(path) {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("failed to get current directory: %w", err)
			}
			path = filepath.Join(cwd, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config YAML: %w", err)
			}
		default:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config JSON: %w", err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.APIKey == "" {
		c.APIKey = v
	}
	if v := os.Getenv("VECTOR_API_KEY"); v != "" && c.VectorAPIKey == "" {
		c.VectorAPIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" && c.DatabaseURL == "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" && c.Server.JWTSecret == "" {
		c.Server.JWTSecret = v
	}
}

// Validate checks structural constraints. Credential presence is checked by
// the commands that need each credential, not here.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("config error: field %s fails %q", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}
