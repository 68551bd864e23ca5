package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseOrder groups replenishment lines for a single supplier.
type PurchaseOrder struct {
	ID           int64               `json:"id" db:"id"`
	Number       string              `json:"number" db:"po_number"`
	SupplierID   int64               `json:"supplier_id" db:"supplier_id"`
	SupplierName string              `json:"supplier_name" db:"supplier_name"`
	Status       int                 `json:"status" db:"status"`
	TotalAmount  decimal.Decimal     `json:"total_amount" db:"total_amount"`
	Lines        []PurchaseOrderLine `json:"lines" db:"-"`
	AlertIDs     []int64             `json:"alert_ids" db:"-"`
	CreatedAt    time.Time           `json:"created_at" db:"created_at"`
}

// PurchaseOrderLine is a single product line of a purchase order.
type PurchaseOrderLine struct {
	ProductID      int64           `json:"product_id" db:"product_id"`
	SKU            string          `json:"sku" db:"sku"`
	Quantity       int             `json:"quantity" db:"quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	QuantitySource string          `json:"quantity_source" db:"quantity_source"`
}

// StatusLabel returns the human-readable status.
func (po *PurchaseOrder) StatusLabel() string {
	return POStatusLabel(po.Status)
}
