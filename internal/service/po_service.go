// internal/service/po_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/export"
	"github.com/andresuchdata/autopo-replenish/internal/metrics"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ErrNoSupplier is returned when a product has neither purchase history nor
// a default supplier.
var ErrNoSupplier = errors.New("no supplier for product")

const defaultPOQuantity = 100

// Quantity sources recorded on purchase-order lines.
const (
	QuantityFromEOQ      = "eoq"
	QuantityFromAlert    = "alert_suggestion"
	QuantityFromMinimum  = "minimum_stock"
	QuantityFromFallback = "default"
)

// POCandidate is a product that made it through optimization, together with
// the alerts that triggered it.
type POCandidate struct {
	ProductID         int64
	AlertIDs          []int64
	SuggestedQuantity int
}

// PlannedLine is a purchase-order line bound to the supplier it will be
// ordered from.
type PlannedLine struct {
	Supplier domain.Supplier
	Line     domain.PurchaseOrderLine
	AlertIDs []int64
}

// SupplierGroup collects the planned lines of one supplier.
type SupplierGroup struct {
	Supplier domain.Supplier
	Lines    []*PlannedLine
}

// ProductIDs lists the products ordered in the group.
func (g SupplierGroup) ProductIDs() []int64 {
	ids := make([]int64, len(g.Lines))
	for i, l := range g.Lines {
		ids[i] = l.Line.ProductID
	}
	return ids
}

type POService struct {
	products      repository.ProductRepository
	affinity      repository.SupplierAffinityRepository
	optimizations repository.OptimizationRepository
	orders        repository.PurchaseOrderRepository
	exporter      *export.Exporter
	defaultQty    int
	now           func() time.Time
}

func NewPOService(
	products repository.ProductRepository,
	affinity repository.SupplierAffinityRepository,
	optimizations repository.OptimizationRepository,
	orders repository.PurchaseOrderRepository,
	exporter *export.Exporter,
	defaultQty int,
) *POService {
	if defaultQty <= 0 {
		defaultQty = defaultPOQuantity
	}
	return &POService{
		products:      products,
		affinity:      affinity,
		optimizations: optimizations,
		orders:        orders,
		exporter:      exporter,
		defaultQty:    defaultQty,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// PlanLine resolves the supplier and order quantity for a candidate.
func (s *POService) PlanLine(ctx context.Context, c POCandidate) (*PlannedLine, error) {
	product, err := s.products.GetProduct(ctx, c.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product %d: %w", c.ProductID, err)
	}

	supplier, err := s.ResolveSupplier(ctx, product)
	if err != nil {
		return nil, err
	}

	qty, source := s.lineQuantity(ctx, product, c)
	unitCost := decimal.Zero
	if product.UnitCost != nil {
		unitCost = decimal.NewFromFloat(*product.UnitCost)
	}

	return &PlannedLine{
		Supplier: *supplier,
		AlertIDs: append([]int64(nil), c.AlertIDs...),
		Line: domain.PurchaseOrderLine{
			ProductID:      product.ID,
			SKU:            product.SKU,
			Quantity:       qty,
			UnitCost:       unitCost,
			Amount:         unitCost.Mul(decimal.NewFromInt(int64(qty))).Round(2),
			QuantitySource: source,
		},
	}, nil
}

// ResolveSupplier prefers the supplier the product is most often bought
// from and falls back to the product's default supplier.
func (s *POService) ResolveSupplier(ctx context.Context, product *domain.Product) (*domain.Supplier, error) {
	supplier, err := s.affinity.GetPrincipalSupplier(ctx, product.ID)
	if err == nil {
		return supplier, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to resolve principal supplier: %w", err)
	}

	if product.DefaultSupplierID == nil {
		return nil, fmt.Errorf("%w: %d", ErrNoSupplier, product.ID)
	}
	supplier, err = s.products.GetSupplier(ctx, *product.DefaultSupplierID)
	if err != nil {
		return nil, fmt.Errorf("failed to load default supplier %d: %w", *product.DefaultSupplierID, err)
	}
	log.Info().
		Int64("product_id", product.ID).
		Int64("supplier_id", supplier.ID).
		Msg("no purchase history, using default supplier")
	return supplier, nil
}

// lineQuantity walks EOQ, then the alert's suggestion, then twice the
// minimum stock, then the configured default.
func (s *POService) lineQuantity(ctx context.Context, product *domain.Product, c POCandidate) (int, string) {
	opt, err := s.optimizations.GetLatestOptimization(ctx, product.ID)
	switch {
	case err == nil && opt.EOQ > 0:
		return opt.EOQ, QuantityFromEOQ
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		log.Warn().Err(err).Int64("product_id", product.ID).Msg("optimization lookup failed")
	}
	if c.SuggestedQuantity > 0 {
		return c.SuggestedQuantity, QuantityFromAlert
	}
	if product.MinimumStock > 0 {
		return 2 * product.MinimumStock, QuantityFromMinimum
	}
	return s.defaultQty, QuantityFromFallback
}

// GroupBySupplier buckets planned lines by supplier, ordered by supplier id.
func GroupBySupplier(lines []*PlannedLine) []SupplierGroup {
	bySupplier := make(map[int64]*SupplierGroup)
	for _, l := range lines {
		g, ok := bySupplier[l.Supplier.ID]
		if !ok {
			g = &SupplierGroup{Supplier: l.Supplier}
			bySupplier[l.Supplier.ID] = g
		}
		g.Lines = append(g.Lines, l)
	}

	groups := make([]SupplierGroup, 0, len(bySupplier))
	for _, g := range bySupplier {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Supplier.ID < groups[j].Supplier.ID })
	return groups
}

// CreateOrder persists a draft purchase order for one supplier group.
func (s *POService) CreateOrder(ctx context.Context, g SupplierGroup) (*domain.PurchaseOrder, error) {
	if len(g.Lines) == 0 {
		return nil, fmt.Errorf("supplier %d has no lines to order", g.Supplier.ID)
	}

	now := s.now()
	po := &domain.PurchaseOrder{
		Number:       NewPONumber(now),
		SupplierID:   g.Supplier.ID,
		SupplierName: g.Supplier.Name,
		Status:       domain.POStatusDraft,
		TotalAmount:  decimal.Zero,
		CreatedAt:    now,
	}
	for _, l := range g.Lines {
		po.Lines = append(po.Lines, l.Line)
		po.AlertIDs = append(po.AlertIDs, l.AlertIDs...)
		po.TotalAmount = po.TotalAmount.Add(l.Line.Amount)
	}

	if err := s.orders.CreatePurchaseOrder(ctx, po); err != nil {
		return nil, fmt.Errorf("failed to create purchase order for supplier %d: %w", g.Supplier.ID, err)
	}
	metrics.PurchaseOrdersTotal.Inc()

	log.Info().
		Str("po_number", po.Number).
		Int64("supplier_id", po.SupplierID).
		Int("lines", len(po.Lines)).
		Str("total", po.TotalAmount.StringFixed(2)).
		Msg("purchase order created")
	return po, nil
}

// Export writes the run's purchase orders to a workbook. It is a no-op when
// no exporter is configured.
func (s *POService) Export(ctx context.Context, runID string, orders []*domain.PurchaseOrder) (string, error) {
	if s.exporter == nil {
		return "", nil
	}
	return s.exporter.Export(ctx, runID, orders)
}

func (s *POService) GetPurchaseOrder(ctx context.Context, id int64) (*domain.PurchaseOrder, error) {
	return s.orders.GetPurchaseOrder(ctx, id)
}

// NewPONumber formats PO-<date>-<random suffix>.
func NewPONumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("PO-%s-%s", at.Format("20060102"), suffix)
}
