package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
)

// RunStore persists batch run bookkeeping.
type RunStore interface {
	CreatePipelineRun(ctx context.Context, run *PipelineRun) error
	UpdatePipelineRun(ctx context.Context, run *PipelineRun) error
	GetPipelineRun(ctx context.Context, id string) (*PipelineRun, error)
}

// Repository handles database operations for batch run tracking
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new batch run repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreatePipelineRun creates a new batch run record
func (r *Repository) CreatePipelineRun(ctx context.Context, run *PipelineRun) error {
	query := `
		INSERT INTO batch_runs (
			id, status, alert_count, horizon, total_items,
			succeeded_items, failed_items, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.ID, run.Status, run.AlertCount, run.Horizon, run.TotalItems,
		run.SucceededItems, run.FailedItems, run.StartedAt,
	)

	return err
}

// UpdatePipelineRun updates an existing batch run, including its result
func (r *Repository) UpdatePipelineRun(ctx context.Context, run *PipelineRun) error {
	var result []byte
	if run.Result != nil {
		var err error
		if result, err = json.Marshal(run.Result); err != nil {
			return fmt.Errorf("failed to encode batch result: %w", err)
		}
	}

	query := `
		UPDATE batch_runs
		SET status = $1, total_items = $2, succeeded_items = $3, failed_items = $4,
		    result = $5, completed_at = $6, error_message = $7
		WHERE id = $8
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.Status, run.TotalItems, run.SucceededItems, run.FailedItems,
		result, run.CompletedAt, run.ErrorMessage, run.ID,
	)

	return err
}

// GetPipelineRun retrieves a batch run by ID
func (r *Repository) GetPipelineRun(ctx context.Context, id string) (*PipelineRun, error) {
	query := `
		SELECT id, status, alert_count, horizon, total_items, succeeded_items,
		       failed_items, result, started_at, completed_at, COALESCE(error_message, '')
		FROM batch_runs
		WHERE id = $1
	`

	run := &PipelineRun{}
	var result []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.Status, &run.AlertCount, &run.Horizon, &run.TotalItems,
		&run.SucceededItems, &run.FailedItems, &result,
		&run.StartedAt, &run.CompletedAt, &run.ErrorMessage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(result) > 0 {
		run.Result = &domain.BatchJobResult{}
		if err := json.Unmarshal(result, run.Result); err != nil {
			return nil, fmt.Errorf("failed to decode batch result: %w", err)
		}
	}

	return run, nil
}
