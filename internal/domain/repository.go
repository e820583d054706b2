package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. Datasets are stored
// with their record order intact; reports are stored as documents keyed by
// dataset ID.
type Repository interface {
	// Dataset operations
	SaveDataset(ctx context.Context, ds *Dataset) error
	GetDataset(ctx context.Context, id string) (*Dataset, error)
	ListDatasets(ctx context.Context) ([]*DatasetInfo, error)
	DeleteDataset(ctx context.Context, id string) error

	// Report operations
	SaveReport(ctx context.Context, report *Report) error
	GetReport(ctx context.Context, fileID string) (*Report, error)

	// Screening rule configuration operations
	SaveScreenRule(ctx context.Context, rule *ScreenRuleConfig) error
	GetScreenRule(ctx context.Context, ruleID string) (*ScreenRuleConfig, error)
	ListScreenRules(ctx context.Context) ([]*ScreenRuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
