// Package repository provides data persistence for completed predictions.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opensource-health/materna/internal/domain"
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

	// Run migrations
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

// SavePrediction stores a completed prediction. The structured parts
// are serialized as JSON; the summary risk level and attention flag
// are lifted into columns for filtering.
func (r *SQLRepository) SavePrediction(ctx context.Context, pred *domain.Prediction) error {
	if pred == nil || pred.ID == "" {
		return fmt.Errorf("%w: prediction ID is required", ErrInvalidInput)
	}

	patient, err := json.Marshal(pred.Patient)
	if err != nil {
		return err
	}
	outcomes, err := json.Marshal(pred.Outcomes)
	if err != nil {
		return err
	}
	summary, err := json.Marshal(pred.Summary)
	if err != nil {
		return err
	}
	var alerts []byte
	if len(pred.Alerts) > 0 {
		if alerts, err = json.Marshal(pred.Alerts); err != nil {
			return err
		}
	}

	attention := 0
	if pred.Summary.SpecialAttention {
		attention = 1
	}

	query := `
		INSERT INTO predictions (
			id, overall_risk, special_attention,
			patient, outcomes, summary, alerts, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		pred.ID, string(pred.Summary.OverallRisk), attention,
		string(patient), string(outcomes), string(summary),
		string(alerts), pred.CreatedAt,
	)
	return err
}

// GetPrediction retrieves a prediction by ID.
func (r *SQLRepository) GetPrediction(ctx context.Context, id string) (*domain.Prediction, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: prediction ID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, patient, outcomes, summary, alerts, created_at
		FROM predictions
		WHERE id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), id)
	pred, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return pred, err
}

// ListPredictions returns predictions created at or after since,
// newest first, up to limit.
func (r *SQLRepository) ListPredictions(ctx context.Context, since time.Time, limit int) ([]*domain.Prediction, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, patient, outcomes, summary, alerts, created_at
		FROM predictions
		WHERE created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var preds []*domain.Prediction
	for rows.Next() {
		pred, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}

	return preds, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row rowScanner) (*domain.Prediction, error) {
	var pred domain.Prediction
	var patient, outcomes, summary string
	var alerts sql.NullString

	if err := row.Scan(&pred.ID, &patient, &outcomes, &summary, &alerts, &pred.CreatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(patient), &pred.Patient); err != nil {
		return nil, fmt.Errorf("corrupt patient record for %s: %w", pred.ID, err)
	}
	if err := json.Unmarshal([]byte(outcomes), &pred.Outcomes); err != nil {
		return nil, fmt.Errorf("corrupt outcomes for %s: %w", pred.ID, err)
	}
	if err := json.Unmarshal([]byte(summary), &pred.Summary); err != nil {
		return nil, fmt.Errorf("corrupt summary for %s: %w", pred.ID, err)
	}
	if alerts.Valid && alerts.String != "" {
		if err := json.Unmarshal([]byte(alerts.String), &pred.Alerts); err != nil {
			return nil, fmt.Errorf("corrupt alerts for %s: %w", pred.ID, err)
		}
	}

	return &pred, nil
}

// Ping checks database connectivity, retrying transient failures with
// exponential backoff up to the context deadline.
func (r *SQLRepository) Ping(ctx context.Context) error {
	op := func() error {
		return r.db.PingContext(ctx)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	return backoff.Retry(op, policy)
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
