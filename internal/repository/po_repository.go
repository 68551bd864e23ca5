// internal/repository/po_repository.go
package repository

import (
	"context"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// PurchaseOrderRepository persists generated purchase orders.
type PurchaseOrderRepository interface {
	// CreatePurchaseOrder inserts the order with its lines and alert links
	// atomically and assigns po.ID.
	CreatePurchaseOrder(ctx context.Context, po *domain.PurchaseOrder) error
	GetPurchaseOrder(ctx context.Context, id int64) (*domain.PurchaseOrder, error)
}

// SupplierAffinityRepository resolves which supplier a product is usually
// bought from.
type SupplierAffinityRepository interface {
	// GetPrincipalSupplier returns the supplier appearing most often in the
	// product's purchase history, or ErrNotFound.
	GetPrincipalSupplier(ctx context.Context, productID int64) (*domain.Supplier, error)
}
