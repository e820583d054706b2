// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-welfare/shikra/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveDataset stores a dataset and its claims, preserving record order via
// the seq column.
func (r *SQLRepository) SaveDataset(ctx context.Context, ds *domain.Dataset) error {
	if ds == nil || ds.ID == "" {
		return fmt.Errorf("%w: dataset ID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, r.rebind(`
		INSERT INTO datasets (id, name, total_rows, created_at)
		VALUES (?, ?, ?, ?)
	`), ds.ID, ds.Name, len(ds.Records), ds.CreatedAt)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO claims (
			dataset_id, seq, beneficiary_id, name, aadhaar, income,
			location_state, subsidy_type, amount, claim_date, distributor_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rec := range ds.Records {
		if _, err := stmt.ExecContext(ctx,
			ds.ID, i, rec.BeneficiaryID, rec.Name, rec.Aadhaar, rec.Income,
			rec.LocationState, rec.SubsidyType, rec.Amount, rec.ClaimDate, rec.DistributorID,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetDataset retrieves a dataset with its claims in original order.
func (r *SQLRepository) GetDataset(ctx context.Context, id string) (*domain.Dataset, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: dataset ID is required", ErrInvalidInput)
	}

	var ds domain.Dataset
	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT id, name, created_at FROM datasets WHERE id = ?
	`), id).Scan(&ds.ID, &ds.Name, &ds.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT beneficiary_id, name, aadhaar, income, location_state,
			   subsidy_type, amount, claim_date, distributor_id
		FROM claims
		WHERE dataset_id = ?
		ORDER BY seq
	`), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rec domain.ClaimRecord
		if err := rows.Scan(
			&rec.BeneficiaryID, &rec.Name, &rec.Aadhaar, &rec.Income,
			&rec.LocationState, &rec.SubsidyType, &rec.Amount,
			&rec.ClaimDate, &rec.DistributorID,
		); err != nil {
			return nil, err
		}
		ds.Records = append(ds.Records, rec)
	}

	return &ds, rows.Err()
}

// ListDatasets returns the stored datasets, newest first, with a flag for
// whether a report exists.
func (r *SQLRepository) ListDatasets(ctx context.Context) ([]*domain.DatasetInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT d.id, d.name, d.total_rows, d.created_at,
			   CASE WHEN r.dataset_id IS NULL THEN 0 ELSE 1 END
		FROM datasets d
		LEFT JOIN reports r ON r.dataset_id = d.id
		ORDER BY d.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []*domain.DatasetInfo
	for rows.Next() {
		var info domain.DatasetInfo
		var hasReport int
		if err := rows.Scan(&info.ID, &info.Name, &info.TotalRows, &info.CreatedAt, &hasReport); err != nil {
			return nil, err
		}
		info.HasReport = hasReport == 1
		infos = append(infos, &info)
	}

	return infos, rows.Err()
}

// DeleteDataset removes a dataset, its claims and any report.
func (r *SQLRepository) DeleteDataset(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: dataset ID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM datasets WHERE id = ?`), id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM claims WHERE dataset_id = ?`), id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM reports WHERE dataset_id = ?`), id); err != nil {
		return err
	}

	return tx.Commit()
}

// SaveReport stores a scoring report as a JSON document keyed by dataset ID,
// replacing any previous report for the same dataset.
func (r *SQLRepository) SaveReport(ctx context.Context, report *domain.Report) error {
	if report == nil || report.FileID == "" {
		return fmt.Errorf("%w: report file ID is required", ErrInvalidInput)
	}

	doc, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	_, err = r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO reports (dataset_id, report, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(dataset_id) DO UPDATE SET
			report = excluded.report,
			created_at = excluded.created_at
	`), report.FileID, string(doc), time.Now().UTC())
	return err
}

// GetReport retrieves a stored report by dataset ID.
func (r *SQLRepository) GetReport(ctx context.Context, fileID string) (*domain.Report, error) {
	if fileID == "" {
		return nil, fmt.Errorf("%w: file ID is required", ErrInvalidInput)
	}

	var doc string
	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT report FROM reports WHERE dataset_id = ?
	`), fileID).Scan(&doc)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var report domain.Report
	if err := json.Unmarshal([]byte(doc), &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

// SaveScreenRule stores a screening rule configuration.
func (r *SQLRepository) SaveScreenRule(ctx context.Context, rule *domain.ScreenRuleConfig) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO screen_rules (
			id, name, description, version, expression, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`), rule.ID, rule.Name, rule.Description, rule.Version,
		rule.Expression, rule.Reason, enabled, now, now)
	return err
}

// GetScreenRule retrieves a screening rule by ID.
func (r *SQLRepository) GetScreenRule(ctx context.Context, ruleID string) (*domain.ScreenRuleConfig, error) {
	if ruleID == "" {
		return nil, fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}

	var cfg domain.ScreenRuleConfig
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT id, name, description, version, expression, reason, enabled, created_at, updated_at
		FROM screen_rules
		WHERE id = ?
	`), ruleID).Scan(
		&cfg.ID, &cfg.Name, &cfg.Description, &cfg.Version,
		&cfg.Expression, &cfg.Reason, &enabled, &cfg.CreatedAt, &cfg.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1
	return &cfg, nil
}

// ListScreenRules retrieves all enabled screening rules.
func (r *SQLRepository) ListScreenRules(ctx context.Context) ([]*domain.ScreenRuleConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, version, expression, reason, enabled, created_at, updated_at
		FROM screen_rules
		WHERE enabled = 1
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.ScreenRuleConfig
	for rows.Next() {
		var cfg domain.ScreenRuleConfig
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.Name, &cfg.Description, &cfg.Version,
			&cfg.Expression, &cfg.Reason, &enabled, &cfg.CreatedAt, &cfg.UpdatedAt,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
