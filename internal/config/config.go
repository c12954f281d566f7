package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/sphere-social/sphere-matching/internal/model"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the matching service.
// Environment variables are parsed from the MATCHING_ prefix.
type Config struct {
	// Build target selects high-level environment: local, cloud
	BuildTarget string `envconfig:"BUILD_TARGET" default:"local"`

	// Derived or override driver: auto, postgres, sqlite
	DBDriver string `envconfig:"DB_DRIVER" default:"auto"`

	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Postgres / SQLite Configuration
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"./data/matching.db"`

	// Vector index
	SearchIndexURL string `envconfig:"SEARCH_INDEX_URL" default:"weaviate:8080"`

	// Embedding configuration
	EmbedProvider string `envconfig:"EMBED_PROVIDER" default:"ollama"`
	EmbedModel    string `envconfig:"EMBED_MODEL" default:"mxbai-embed-large"`

	// Pair scoring (Gemini)
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY" default:""`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`

	// Retrieval tuning. Missing vector channels contribute a neutral 0.5 so
	// partial profiles are not penalized to zero.
	VectorSimilarityThreshold float64 `envconfig:"VECTOR_SIMILARITY_THRESHOLD" default:"0.45"`
	ProfileWeight             float64 `envconfig:"PROFILE_WEIGHT" default:"0.40"`
	InterestsWeight           float64 `envconfig:"INTERESTS_WEIGHT" default:"0.35"`
	ExpertiseWeight           float64 `envconfig:"EXPERTISE_WEIGHT" default:"0.25"`
	CandidateLimit            int     `envconfig:"CANDIDATE_LIMIT" default:"10"`

	// Per-scope match thresholds. City matching is deliberately exploratory,
	// cross-community deliberately curated.
	MatchThreshold               float64 `envconfig:"MATCH_THRESHOLD" default:"0.60"`
	CityMatchThreshold           float64 `envconfig:"CITY_MATCH_THRESHOLD" default:"0.50"`
	CrossCommunityMatchThreshold float64 `envconfig:"CROSS_COMMUNITY_MATCH_THRESHOLD" default:"0.70"`

	// Tier gating
	FreeCrossScopeAllowance int `envconfig:"FREE_CROSS_SCOPE_ALLOWANCE" default:"1"`

	// Concurrency and timeouts
	ScoreWorkers           int `envconfig:"SCORE_WORKERS" default:"4"`
	ScoreTimeoutSeconds    int `envconfig:"SCORE_TIMEOUT_SECONDS" default:"30"`
	RetrieveTimeoutSeconds int `envconfig:"RETRIEVE_TIMEOUT_SECONDS" default:"5"`

	// Background run queue
	RunQueueShards int `envconfig:"RUN_QUEUE_SHARDS" default:"4"`
	RunQueueSize   int `envconfig:"RUN_QUEUE_SIZE" default:"64"`

	// Startup bootstrap checks (schema, index class, embed warmup)
	BootstrapTimeoutSeconds int `envconfig:"BOOTSTRAP_TIMEOUT_SECONDS" default:"30"`

	// Dependency health probing
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver when set to "auto".
func (c *Config) ResolveDefaults() error {
	var defaultDB string

	switch c.BuildTarget {
	case "local":
		defaultDB = "sqlite"
	case "cloud":
		defaultDB = "postgres"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}

	allowedDB := map[string]bool{"postgres": true, "sqlite": true}
	if !allowedDB[c.DBDriver] {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	for name, v := range map[string]float64{
		"VECTOR_SIMILARITY_THRESHOLD":     c.VectorSimilarityThreshold,
		"MATCH_THRESHOLD":                 c.MatchThreshold,
		"CITY_MATCH_THRESHOLD":            c.CityMatchThreshold,
		"CROSS_COMMUNITY_MATCH_THRESHOLD": c.CrossCommunityMatchThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, v)
		}
	}
	weightSum := c.ProfileWeight + c.InterestsWeight + c.ExpertiseWeight
	if weightSum < 0.99 || weightSum > 1.01 {
		return fmt.Errorf("channel weights must sum to 1, got %v", weightSum)
	}
	if c.FreeCrossScopeAllowance < 0 {
		return fmt.Errorf("FREE_CROSS_SCOPE_ALLOWANCE must be >= 0")
	}
	if c.ScoreWorkers <= 0 {
		return fmt.Errorf("SCORE_WORKERS must be > 0")
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// Environment variables should be prefixed with MATCHING_
// Example: MATCHING_HTTP_PORT, MATCHING_POSTGRES_DSN
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("MATCHING", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("search_index_url", cfg.SearchIndexURL).
		Str("embed_provider", cfg.EmbedProvider).
		Str("embed_model", cfg.EmbedModel).
		Float64("match_threshold", cfg.MatchThreshold).
		Int("score_workers", cfg.ScoreWorkers).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing.
func NewForTesting() *Config {
	cfg := &Config{
		BuildTarget: "local",
		DBDriver:    "sqlite",
		Environment: EnvTesting,
		HTTPPort:    8080,

		SQLitePath:     ":memory:",
		SearchIndexURL: "localhost:8082",
		EmbedProvider:  "ollama",
		EmbedModel:     "mxbai-embed-large",
		GeminiModel:    "gemini-2.5-flash",

		VectorSimilarityThreshold: 0.45,
		ProfileWeight:             0.40,
		InterestsWeight:           0.35,
		ExpertiseWeight:           0.25,
		CandidateLimit:            10,

		MatchThreshold:               0.60,
		CityMatchThreshold:           0.50,
		CrossCommunityMatchThreshold: 0.70,

		FreeCrossScopeAllowance: 1,

		ScoreWorkers:           4,
		ScoreTimeoutSeconds:    30,
		RetrieveTimeoutSeconds: 5,
		RunQueueShards:         2,
		RunQueueSize:           16,

		BootstrapTimeoutSeconds: 5,

		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 1,
	}
	return cfg
}

// MatchThresholdFor returns the qualification threshold for a scope.
func (c *Config) MatchThresholdFor(scope model.Scope) float64 {
	switch scope.Kind {
	case model.ScopeCity:
		return c.CityMatchThreshold
	case model.ScopeCrossCommunity:
		return c.CrossCommunityMatchThreshold
	default:
		return c.MatchThreshold
	}
}

// ScoreTimeout returns the per-candidate scoring timeout.
func (c *Config) ScoreTimeout() time.Duration {
	return time.Duration(c.ScoreTimeoutSeconds) * time.Second
}

// RetrieveTimeout returns the vector lookup timeout.
func (c *Config) RetrieveTimeout() time.Duration {
	return time.Duration(c.RetrieveTimeoutSeconds) * time.Second
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
