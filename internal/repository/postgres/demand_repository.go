package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/jmoiron/sqlx"
)

type demandRepository struct {
	db *DB
}

func NewDemandRepository(db *DB) *demandRepository {
	return &demandRepository{db: db}
}

func (r *demandRepository) GetDemandHistory(ctx context.Context, productID int64) ([]domain.DemandObservation, error) {
	query := `
		SELECT product_id, date, quantity
		FROM demand_history
		WHERE product_id = $1
		ORDER BY date ASC
	`

	var history []domain.DemandObservation
	if err := sqlx.SelectContext(ctx, r.db, &history, query, productID); err != nil {
		return nil, fmt.Errorf("failed to get demand history for product %d: %w", productID, err)
	}
	return history, nil
}

// GetDemandAggregate summarises observations in [from, to).
func (r *demandRepository) GetDemandAggregate(ctx context.Context, productID int64, from, to time.Time) (*domain.DemandAggregate, error) {
	query := `
		SELECT COUNT(*)                           AS count,
		       COALESCE(AVG(quantity), 0)         AS mean,
		       COALESCE(STDDEV_SAMP(quantity), 0) AS stddev
		FROM demand_history
		WHERE product_id = $1 AND date >= $2 AND date < $3
	`

	var agg domain.DemandAggregate
	if err := sqlx.GetContext(ctx, r.db, &agg, query, productID, from, to); err != nil {
		return nil, fmt.Errorf("failed to aggregate demand for product %d: %w", productID, err)
	}
	return &agg, nil
}
