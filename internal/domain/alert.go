package domain

import "time"

// Alert flags a product condition that needs attention.
type Alert struct {
	ID                int64      `json:"id" db:"id"`
	ProductID         int64      `json:"product_id" db:"product_id"`
	Type              AlertType  `json:"type" db:"type"`
	Severity          Severity   `json:"severity" db:"severity"`
	State             AlertState `json:"state" db:"state"`
	Message           string     `json:"message" db:"message"`
	SuggestedQuantity int        `json:"suggested_quantity" db:"suggested_quantity"`
	GeneratedAt       time.Time  `json:"generated_at" db:"generated_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	AssignedUser      *string    `json:"assigned_user,omitempty" db:"assigned_user"`
	Resolution        *string    `json:"resolution,omitempty" db:"resolution"`
}
