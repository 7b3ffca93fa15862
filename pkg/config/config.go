// Package config loads process configuration the way cmd/api/main.go did
// in the teacher repo: a .env file for secrets/environment overrides via
// godotenv, merged with a YAML settings file for everything else.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds the environment/configuration inputs spec.md §6 lists:
// vector-store connection parameters, ontology/guardrail file paths,
// scale/locale defaults, concurrency ceilings, cache TTLs, and session
// timeout. LLM provider API keys are not fields of Config.
type Config struct {
	OntologyPath     string `yaml:"ontology_path"`
	GuardrailPath    string `yaml:"guardrail_path"`
	DefaultLocale    string `yaml:"default_locale"` // "it" or "us"

	FactStoreBackend string `yaml:"fact_store_backend"` // "sqlite" or "postgres"
	SQLitePath       string `yaml:"sqlite_path"`
	ChunkStorePath   string `yaml:"chunk_store_path"`
	DatabaseURL      string `yaml:"-"` // from DATABASE_URL env, never in YAML

	VectorStore VectorStoreConfig `yaml:"vector_store"`

	Retrieval RetrievalConfig `yaml:"retrieval"`

	ConcurrencyCeilings ConcurrencyConfig `yaml:"concurrency"`

	QueryCacheTTLSeconds   int `yaml:"query_cache_ttl_seconds"`
	SessionTimeoutSeconds  int `yaml:"session_timeout_seconds"`

	// OCRConfidenceFactor is loaded for spec.md §9's open question on OCR
	// confidence weighting. No extractor reads it: OCR-derived blocks carry
	// the OCR engine's own confidence unscaled.
	OCRConfidenceFactor float64 `yaml:"ocr_confidence_factor"`

	LLM LLMConfig `yaml:"llm"`
}

type VectorStoreConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	EmbeddingDimension int    `yaml:"embedding_dimension"`
}

type RetrievalConfig struct {
	LexicalWeight float64 `yaml:"lexical_weight"`
	DenseWeight   float64 `yaml:"dense_weight"`
	FusionTopN    int     `yaml:"fusion_top_n"`
	RerankTopM    int     `yaml:"rerank_top_m"`
}

type ConcurrencyConfig struct {
	IngestWorkers     int `yaml:"ingest_workers"`
	ExtractionWorkers int `yaml:"extraction_workers"`
	IngestQueueDepth  int `yaml:"ingest_queue_depth"`
	MaxConcurrentQueries int `yaml:"max_concurrent_queries"`
}

type LLMConfig struct {
	ActiveProvider string            `yaml:"active_provider"`
	Models         map[string]string `yaml:"models"`
}

// Default returns the baseline configuration, matching the defaults
// spec.md states explicitly (0.4/0.6 fusion weights, top-20 fusion/rerank
// pools, 8-hour session timeout, OCR confidence at 0.8x native).
func Default() Config {
	return Config{
		OntologyPath:     "config/ontology.yaml",
		GuardrailPath:    "config/guardrails.yaml",
		DefaultLocale:    "it",
		FactStoreBackend: "sqlite",
		SQLitePath:       "data/facts.db",
		ChunkStorePath:   "data/chunks.db",
		VectorStore: VectorStoreConfig{
			Host:               "localhost",
			Port:               6334,
			EmbeddingDimension: 768,
		},
		Retrieval: RetrievalConfig{
			LexicalWeight: 0.4,
			DenseWeight:   0.6,
			FusionTopN:    20,
			RerankTopM:    20,
		},
		ConcurrencyCeilings: ConcurrencyConfig{
			IngestWorkers:        4,
			ExtractionWorkers:    4,
			IngestQueueDepth:     64,
			MaxConcurrentQueries: 32,
		},
		QueryCacheTTLSeconds:  300,
		SessionTimeoutSeconds: 8 * 3600,
		OCRConfidenceFactor:   0.8,
		LLM: LLMConfig{
			ActiveProvider: "gemini",
			Models:         map[string]string{},
		},
	}
}

// Load mirrors cmd/api/main.go's startup sequence: load .env (missing file
// is not an error, same as the teacher's fallback-warning behavior),
// overlay a YAML settings file onto the defaults, then pull the database
// URL from the environment the way pkg/core/store/db.go does.
func Load(yamlPath string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		// No .env file is expected in most deployments; proceed with
		// whatever is already in the environment, same as the teacher.
		_ = err
	}

	cfg := Default()
	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("reading config file %s: %w", yamlPath, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", yamlPath, err)
		}
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	return cfg, nil
}
