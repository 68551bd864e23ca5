// internal/repository/postgres/po_repository.go
package postgres

import (
	"context"
	"fmt"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type poRepository struct {
	db *DB
}

func NewPORepository(db *DB) *poRepository {
	return &poRepository{db: db}
}

// CreatePurchaseOrder writes the header, its lines and the alert links in
// one transaction.
func (r *poRepository) CreatePurchaseOrder(ctx context.Context, po *domain.PurchaseOrder) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		// 1. Header
		header := `
			INSERT INTO purchase_orders (
				po_number, supplier_id, supplier_name, status, total_amount, created_at
			) VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`
		err := tx.QueryRowContext(ctx, header,
			po.Number, po.SupplierID, po.SupplierName, po.Status, po.TotalAmount, po.CreatedAt,
		).Scan(&po.ID)
		if err != nil {
			return fmt.Errorf("failed to insert purchase order %s: %w", po.Number, err)
		}

		// 2. Lines
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO purchase_order_lines (
				purchase_order_id, product_id, sku, quantity, unit_cost, amount, quantity_source
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, line := range po.Lines {
			_, err := stmt.ExecContext(ctx,
				po.ID, line.ProductID, line.SKU, line.Quantity, line.UnitCost, line.Amount, line.QuantitySource,
			)
			if err != nil {
				return fmt.Errorf("failed to insert line for product %d: %w", line.ProductID, err)
			}
		}

		// 3. Alerts covered by the order
		if len(po.AlertIDs) == 0 {
			return nil
		}
		links := `
			INSERT INTO purchase_order_alerts (purchase_order_id, alert_id)
			SELECT $1, UNNEST($2::BIGINT[])
			ON CONFLICT DO NOTHING
		`
		if _, err := tx.ExecContext(ctx, links, po.ID, pq.Array(po.AlertIDs)); err != nil {
			return fmt.Errorf("failed to link alerts to purchase order %s: %w", po.Number, err)
		}
		return nil
	})
}

func (r *poRepository) GetPurchaseOrder(ctx context.Context, id int64) (*domain.PurchaseOrder, error) {
	query := `
		SELECT id, po_number, supplier_id, supplier_name, status, total_amount, created_at
		FROM purchase_orders
		WHERE id = $1
	`

	var po domain.PurchaseOrder
	if err := sqlx.GetContext(ctx, r.db, &po, query, id); err != nil {
		return nil, notFound(err, "purchase order %d", id)
	}

	lines := `
		SELECT product_id, sku, quantity, unit_cost, amount, quantity_source
		FROM purchase_order_lines
		WHERE purchase_order_id = $1
		ORDER BY id
	`
	if err := sqlx.SelectContext(ctx, r.db, &po.Lines, lines, id); err != nil {
		return nil, fmt.Errorf("failed to get lines of purchase order %d: %w", id, err)
	}

	var alertIDs pq.Int64Array
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(ARRAY_AGG(alert_id ORDER BY alert_id), '{}') FROM purchase_order_alerts WHERE purchase_order_id = $1`,
		id,
	).Scan(&alertIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts of purchase order %d: %w", id, err)
	}
	po.AlertIDs = []int64(alertIDs)

	return &po, nil
}

// GetPrincipalSupplier picks the supplier that appears on most of the
// product's purchase-order lines, breaking ties by the most recent order.
func (r *poRepository) GetPrincipalSupplier(ctx context.Context, productID int64) (*domain.Supplier, error) {
	query := `
		SELECT s.id, s.name, COALESCE(s.email, '') AS email, s.lead_time_days
		FROM purchase_order_lines l
		JOIN purchase_orders po ON po.id = l.purchase_order_id
		JOIN suppliers s ON s.id = po.supplier_id
		WHERE l.product_id = $1
		GROUP BY s.id, s.name, s.email, s.lead_time_days
		ORDER BY COUNT(*) DESC, MAX(po.created_at) DESC
		LIMIT 1
	`

	var s domain.Supplier
	if err := sqlx.GetContext(ctx, r.db, &s, query, productID); err != nil {
		return nil, notFound(err, "principal supplier for product %d", productID)
	}
	return &s, nil
}
