package domain

import "time"

// Config holds the complete Shikra configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines infrastructure choices
	Tier Tier `json:"tier"`

	// Scoring holds the fraud-scoring engine parameters
	Scoring ScoringConfig `json:"scoring"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ScoringConfig holds the parameters of a scoring run.
type ScoringConfig struct {
	// Trees is the isolation-forest ensemble size.
	Trees int `json:"trees"`

	// SampleSize is the per-tree subsample size. 0 means min(256, dataset size).
	SampleSize int `json:"sampleSize"`

	// Contamination is the expected outlier fraction. Advisory only: it is
	// carried for parity with the reference model and is not enforced as a
	// top-k cutoff anywhere in classification.
	Contamination float64 `json:"contamination"`

	// Seed drives all randomized feature and threshold selection. Identical
	// seed and dataset produce bit-identical scores.
	Seed int64 `json:"seed"`

	// Workers bounds concurrent tree construction. 0 means GOMAXPROCS.
	Workers int `json:"workers"`

	// HighIncomeThreshold is the income cutoff for the high-income rule.
	HighIncomeThreshold float64 `json:"highIncomeThreshold"`

	// ExcessiveMultiplier is the group-mean multiplier for the
	// excessive-amount rule.
	ExcessiveMultiplier float64 `json:"excessiveMultiplier"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds

	// MaxUploadBytes bounds the accepted CSV upload size.
	MaxUploadBytes int64 `json:"maxUploadBytes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp
	Endpoint     string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels + LRU cache
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultScoringConfig returns the reference scoring parameters.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Trees:               100,
		Contamination:       0.08,
		Seed:                42,
		HighIncomeThreshold: 250000,
		ExcessiveMultiplier: 3.0,
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30,
			WriteTimeout:   60,
			MaxUploadBytes: 32 << 20, // 32 MiB
		},
		Tier:    TierCommunity,
		Scoring: DefaultScoringConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./shikra.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "shikra",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "shikra",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
