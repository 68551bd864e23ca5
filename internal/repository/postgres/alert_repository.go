package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
)

const (
	defaultAlertLimit = 100
	maxAlertLimit     = 500
)

var alertColumns = []string{
	"id", "product_id", "type", "severity", "state", "message", "suggested_quantity",
	"generated_at", "updated_at", "resolved_at", "assigned_user", "resolution",
}

type alertRepository struct {
	db *DB
}

func NewAlertRepository(db *DB) *alertRepository {
	return &alertRepository{db: db}
}

func (r *alertRepository) GetAlert(ctx context.Context, id int64) (*domain.Alert, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(alertColumns...)
	sb.From("alerts")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var a domain.Alert
	if err := sqlx.GetContext(ctx, r.db, &a, query, args...); err != nil {
		return nil, notFound(err, "alert %d", id)
	}
	return &a, nil
}

func (r *alertRepository) GetLatestAlert(ctx context.Context, productID int64, alertType domain.AlertType) (*domain.Alert, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(alertColumns...)
	sb.From("alerts")
	sb.Where(
		sb.Equal("product_id", productID),
		sb.Equal("type", string(alertType)),
	)
	sb.OrderBy("generated_at DESC", "id DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var a domain.Alert
	if err := sqlx.GetContext(ctx, r.db, &a, query, args...); err != nil {
		return nil, notFound(err, "%s alert for product %d", alertType, productID)
	}
	return &a, nil
}

func (r *alertRepository) CreateAlert(ctx context.Context, a *domain.Alert) error {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("alerts")
	ib.Cols(alertColumns[1:]...)
	ib.Values(
		a.ProductID, string(a.Type), string(a.Severity), string(a.State), a.Message, a.SuggestedQuantity,
		a.GeneratedAt, a.UpdatedAt, a.ResolvedAt, a.AssignedUser, a.Resolution,
	)
	ib.SQL("RETURNING id")

	query, args := ib.Build()
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&a.ID); err != nil {
		return fmt.Errorf("failed to create alert for product %d: %w", a.ProductID, err)
	}
	return nil
}

func (r *alertRepository) UpdateAlert(ctx context.Context, a *domain.Alert) error {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("alerts")
	ub.Set(
		ub.Assign("severity", string(a.Severity)),
		ub.Assign("state", string(a.State)),
		ub.Assign("message", a.Message),
		ub.Assign("suggested_quantity", a.SuggestedQuantity),
		ub.Assign("generated_at", a.GeneratedAt),
		ub.Assign("updated_at", a.UpdatedAt),
		ub.Assign("resolved_at", a.ResolvedAt),
		ub.Assign("assigned_user", a.AssignedUser),
		ub.Assign("resolution", a.Resolution),
	)
	ub.Where(ub.Equal("id", a.ID))

	query, args := ub.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update alert %d: %w", a.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(sql.ErrNoRows, "alert %d", a.ID)
	}
	return nil
}

// ListAlerts returns the newest alerts, optionally filtered by state.
func (r *alertRepository) ListAlerts(ctx context.Context, state domain.AlertState, limit int) ([]*domain.Alert, error) {
	if limit <= 0 || limit > maxAlertLimit {
		limit = defaultAlertLimit
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(alertColumns...)
	sb.From("alerts")
	if state != "" {
		sb.Where(sb.Equal("state", string(state)))
	}
	sb.OrderBy("generated_at DESC", "id DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var alerts []*domain.Alert
	if err := sqlx.SelectContext(ctx, r.db, &alerts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}
