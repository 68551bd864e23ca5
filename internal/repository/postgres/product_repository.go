package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/jmoiron/sqlx"
)

// productRepository serves the product catalog together with the per-product
// seasonality profiles and per-algorithm parameter overrides.
type productRepository struct {
	db *DB
}

func NewProductRepository(db *DB) *productRepository {
	return &productRepository{db: db}
}

func (r *productRepository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query := `
		SELECT id, sku, name, current_stock, minimum_stock, reorder_point,
		       cost_per_order, holding_cost, unit_cost, lead_time_days,
		       default_supplier_id, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	var p domain.Product
	if err := sqlx.GetContext(ctx, r.db, &p, query, id); err != nil {
		return nil, notFound(err, "product %d", id)
	}
	return &p, nil
}

func (r *productRepository) GetSupplier(ctx context.Context, id int64) (*domain.Supplier, error) {
	query := `
		SELECT id, name, COALESCE(email, '') AS email, lead_time_days
		FROM suppliers
		WHERE id = $1
	`

	var s domain.Supplier
	if err := sqlx.GetContext(ctx, r.db, &s, query, id); err != nil {
		return nil, notFound(err, "supplier %d", id)
	}
	return &s, nil
}

func (r *productRepository) ListStockLevels(ctx context.Context) ([]domain.StockLevel, error) {
	query := `
		SELECT id AS product_id, current_stock, minimum_stock, reorder_point
		FROM products
		ORDER BY id
	`

	var levels []domain.StockLevel
	if err := sqlx.SelectContext(ctx, r.db, &levels, query); err != nil {
		return nil, fmt.Errorf("failed to list stock levels: %w", err)
	}
	return levels, nil
}

func (r *productRepository) GetActiveProfile(ctx context.Context, productID int64) (*domain.SeasonalityProfile, error) {
	query := `
		SELECT jan, feb, mar, apr, may, jun, jul, aug, sep, oct, nov, dec
		FROM seasonality_profiles
		WHERE product_id = $1 AND active
	`

	var months [12]sql.NullFloat64
	dest := make([]any, len(months))
	for i := range months {
		dest[i] = &months[i]
	}

	err := r.db.QueryRowContext(ctx, query, productID).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get seasonality profile for product %d: %w", productID, err)
	}

	profile := &domain.SeasonalityProfile{ProductID: productID, Active: true}
	for i, m := range months {
		if m.Valid {
			v := m.Float64
			profile.Coefficients[i] = &v
		}
	}
	return profile, nil
}

func (r *productRepository) Param(ctx context.Context, algorithm domain.Algorithm, name string) (float64, bool, error) {
	var v float64
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM algorithm_parameters WHERE algorithm = $1 AND name = $2`,
		string(algorithm), name,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get parameter %s/%s: %w", algorithm, name, err)
	}
	return v, true, nil
}
