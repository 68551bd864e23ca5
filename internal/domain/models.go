// internal/domain/models.go
package domain

import "time"

// Product carries the replenishment attributes of a catalogue item.
// Cost and lead-time fields are optional defaults; nil means "not configured".
type Product struct {
	ID                int64     `json:"id" db:"id"`
	SKU               string    `json:"sku" db:"sku"`
	Name              string    `json:"name" db:"name"`
	CurrentStock      int       `json:"current_stock" db:"current_stock"`
	MinimumStock      int       `json:"minimum_stock" db:"minimum_stock"`
	ReorderPoint      int       `json:"reorder_point" db:"reorder_point"`
	CostPerOrder      *float64  `json:"cost_per_order,omitempty" db:"cost_per_order"`
	HoldingCost       *float64  `json:"holding_cost,omitempty" db:"holding_cost"`
	UnitCost          *float64  `json:"unit_cost,omitempty" db:"unit_cost"`
	LeadTimeDays      *int      `json:"lead_time_days,omitempty" db:"lead_time_days"`
	DefaultSupplierID *int64    `json:"default_supplier_id,omitempty" db:"default_supplier_id"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// Supplier represents a vendor products are purchased from.
type Supplier struct {
	ID           int64  `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	Email        string `json:"email,omitempty" db:"email"`
	LeadTimeDays *int   `json:"lead_time_days,omitempty" db:"lead_time_days"`
}

// DemandObservation is a single recorded demand quantity for a product.
type DemandObservation struct {
	ProductID int64     `json:"product_id" db:"product_id"`
	Date      time.Time `json:"date" db:"date"`
	Quantity  float64   `json:"quantity" db:"quantity"`
}

// DemandAggregate summarises daily demand over a date range.
type DemandAggregate struct {
	Count  int     `json:"count" db:"count"`
	Mean   float64 `json:"mean" db:"mean"`
	StdDev float64 `json:"stddev" db:"stddev"`
}

// CostParameters is the per-product cost and lead-time configuration.
// Each field may be overridden per call.
type CostParameters struct {
	CostPerOrder *float64 `json:"cost_per_order,omitempty"`
	HoldingCost  *float64 `json:"holding_cost,omitempty"`
	UnitCost     *float64 `json:"unit_cost,omitempty"`
	LeadTimeDays *int     `json:"lead_time_days,omitempty"`
}

// SeasonalityProfile holds 12 multiplicative monthly coefficients (index 0 = January).
type SeasonalityProfile struct {
	ProductID    int64        `json:"product_id" db:"product_id"`
	Coefficients [12]*float64 `json:"coefficients"`
	Active       bool         `json:"active" db:"active"`
}

// Coefficient returns the multiplier for month m, defaulting to 1.0 when the
// profile is inactive or the stored value is missing or non-positive.
func (p *SeasonalityProfile) Coefficient(m time.Month) float64 {
	if p == nil || !p.Active {
		return 1.0
	}
	c := p.Coefficients[int(m)-1]
	if c == nil || *c <= 0 {
		return 1.0
	}
	return *c
}

// StockLevel is a point-in-time inventory reading used for alert detection.
type StockLevel struct {
	ProductID    int64 `json:"product_id" db:"product_id"`
	Stock        int   `json:"stock" db:"current_stock"`
	MinimumStock int   `json:"minimum_stock" db:"minimum_stock"`
	ReorderPoint int   `json:"reorder_point" db:"reorder_point"`
}
