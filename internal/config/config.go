// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the discovery service.
type Config struct {
	Port        string `env:"DISCOVERY_PORT" envDefault:"8081"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	LogJSON  bool `env:"LOG_JSON" envDefault:"false"`
	LogDebug bool `env:"LOG_DEBUG" envDefault:"false"`

	Adzuna      AdzunaConfig
	Headhunter  HeadhunterConfig
	SourcesFile string `env:"SOURCES_FILE"`

	Embedding EmbeddingConfig
	Matching  MatchingConfig
	Ingest    IngestConfig
	Retention RetentionConfig
}

// AdzunaConfig holds the Adzuna API credentials. Empty credentials disable
// the adapter.
type AdzunaConfig struct {
	AppID   string `env:"ADZUNA_APP_ID"`
	AppKey  string `env:"ADZUNA_APP_KEY"`
	Country string `env:"ADZUNA_COUNTRY" envDefault:"fr"` // e.g. "fr", "gb", "us"
}

// HeadhunterConfig configures the hh.ru adapter.
type HeadhunterConfig struct {
	Enabled   bool   `env:"HH_ENABLED" envDefault:"true"`
	UserAgent string `env:"HH_USER_AGENT" envDefault:"jobmate-discovery/1.0 (ops@jobmate.dev)"`
	Area      string `env:"HH_AREA"`
}

// EmbeddingConfig selects and tunes the embedding service.
type EmbeddingConfig struct {
	Provider      string  `env:"EMBEDDING_PROVIDER" envDefault:"ollama"` // ollama | gemini
	OllamaURL     string  `env:"OLLAMA_EMBED_URL" envDefault:"http://localhost:11434"`
	OllamaModel   string  `env:"OLLAMA_EMBED_MODEL" envDefault:"bge-m3"`
	OllamaToken   string  `env:"OLLAMA_EMBED_TOKEN"`
	GeminiAPIKey  string  `env:"GEMINI_API_KEY"`
	GeminiModel   string  `env:"GEMINI_EMBED_MODEL" envDefault:"text-embedding-004"`
	BatchSize     int     `env:"EMBED_BATCH_SIZE" envDefault:"32"`
	RatePerSecond float64 `env:"EMBED_RATE_PER_SECOND" envDefault:"5"`
	Burst         int     `env:"EMBED_BURST" envDefault:"2"`
}

// MatchingConfig tunes the relevance scorer and match cache.
type MatchingConfig struct {
	ScoreFloor     float64       `env:"MATCH_SCORE_FLOOR" envDefault:"50"`
	CacheTTL       time.Duration `env:"MATCH_CACHE_TTL" envDefault:"1h"`
	CandidateLimit int           `env:"MATCH_CANDIDATE_LIMIT" envDefault:"500"`
}

// IngestConfig tunes the ingestion coordinator and its schedule.
type IngestConfig struct {
	Schedule        string        `env:"INGEST_SCHEDULE" envDefault:"0 2 * * *"`
	RunOnStart      bool          `env:"INGEST_ON_START" envDefault:"false"`
	SourceTimeout   time.Duration `env:"SOURCE_TIMEOUT" envDefault:"45s"`
	MaxPostings     int           `env:"INGEST_MAX_POSTINGS" envDefault:"1000"`
	MaxResults      int           `env:"INGEST_MAX_RESULTS" envDefault:"150"`
	Concurrency     int           `env:"INGEST_CONCURRENCY" envDefault:"4"`
	DedupWindowDays int           `env:"DEDUP_WINDOW_DAYS" envDefault:"30"`
	DefaultKeywords string        `env:"DEFAULT_KEYWORDS" envDefault:"software engineer"`
	DefaultLocation string        `env:"DEFAULT_LOCATION"`
}

// RetentionConfig tunes the retention sweep and its schedule.
type RetentionConfig struct {
	Schedule       string `env:"RETENTION_SCHEDULE" envDefault:"0 14 * * *"`
	StaleAfterDays int    `env:"RETENTION_STALE_AFTER_DAYS" envDefault:"7"`
	BatchSize      int    `env:"RETENTION_BATCH_SIZE" envDefault:"200"`
}

// Load reads environment variables (and an optional .env file) and returns a
// validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RequireDatabase fails when DATABASE_URL is missing. Commands that touch the
// posting store call it.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// Validate applies range checks to values loaded from the environment.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Embedding.Provider) {
	case "ollama":
	case "gemini":
		if c.Embedding.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when EMBEDDING_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("EMBEDDING_PROVIDER must be ollama or gemini, got %q", c.Embedding.Provider)
	}
	if c.Embedding.BatchSize < 1 {
		return fmt.Errorf("EMBED_BATCH_SIZE must be a positive integer, got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.RatePerSecond <= 0 {
		return fmt.Errorf("EMBED_RATE_PER_SECOND must be positive, got %v", c.Embedding.RatePerSecond)
	}
	if c.Matching.ScoreFloor < 0 || c.Matching.ScoreFloor > 100 {
		return fmt.Errorf("MATCH_SCORE_FLOOR must be within [0,100], got %v", c.Matching.ScoreFloor)
	}
	if c.Matching.CandidateLimit < 0 {
		return fmt.Errorf("MATCH_CANDIDATE_LIMIT must not be negative, got %d", c.Matching.CandidateLimit)
	}
	if c.Matching.CacheTTL <= 0 {
		return fmt.Errorf("MATCH_CACHE_TTL must be positive, got %s", c.Matching.CacheTTL)
	}
	if c.Ingest.SourceTimeout <= 0 {
		return fmt.Errorf("SOURCE_TIMEOUT must be positive, got %s", c.Ingest.SourceTimeout)
	}
	if c.Ingest.MaxPostings < 1 || c.Ingest.Concurrency < 1 || c.Ingest.MaxResults < 1 {
		return fmt.Errorf("INGEST_MAX_POSTINGS, INGEST_MAX_RESULTS and INGEST_CONCURRENCY must be positive")
	}
	if c.Ingest.DedupWindowDays < 1 {
		return fmt.Errorf("DEDUP_WINDOW_DAYS must be a positive integer, got %d", c.Ingest.DedupWindowDays)
	}
	if c.Retention.StaleAfterDays < 1 {
		return fmt.Errorf("RETENTION_STALE_AFTER_DAYS must be a positive integer, got %d", c.Retention.StaleAfterDays)
	}
	if c.Retention.BatchSize < 1 {
		c.Retention.BatchSize = 200
	}
	return nil
}

// DedupWindow is the fuzzy-match window as a duration.
func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.Ingest.DedupWindowDays) * 24 * time.Hour
}

// StaleAfter is the retention threshold as a duration.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Retention.StaleAfterDays) * 24 * time.Hour
}
