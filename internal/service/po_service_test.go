package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPOFixture() (*POService, *memory.Store) {
	store := memory.NewStore()
	store.PutSupplier(domain.Supplier{ID: 9, Name: "Acme"})
	store.PutSupplier(domain.Supplier{ID: 4, Name: "Globex"})
	store.PutProduct(domain.Product{ID: 1, SKU: "SKU-1", UnitCost: ptr(12.5), MinimumStock: 10, DefaultSupplierID: ptr(int64(9))})
	store.PutProduct(domain.Product{ID: 2, SKU: "SKU-2", UnitCost: ptr(3.0), DefaultSupplierID: ptr(int64(9))})
	store.PutProduct(domain.Product{ID: 3, SKU: "SKU-3"})
	store.PutPrincipalSupplier(2, 4)
	return NewPOService(store, store, store, store, nil, 100), store
}

func TestResolveSupplier(t *testing.T) {
	svc, store := newPOFixture()
	ctx := context.Background()

	p1, _ := store.GetProduct(ctx, 1)
	sup, err := svc.ResolveSupplier(ctx, p1)
	require.NoError(t, err)
	assert.Equal(t, int64(9), sup.ID)

	p2, _ := store.GetProduct(ctx, 2)
	sup, err = svc.ResolveSupplier(ctx, p2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), sup.ID, "purchase history wins over the default supplier")

	p3, _ := store.GetProduct(ctx, 3)
	_, err = svc.ResolveSupplier(ctx, p3)
	assert.ErrorIs(t, err, ErrNoSupplier)
}

func TestPlanLine_QuantityFallbacks(t *testing.T) {
	ctx := context.Background()

	t.Run("eoq", func(t *testing.T) {
		svc, store := newPOFixture()
		require.NoError(t, store.SaveOptimization(ctx, &domain.OptimizationResult{ProductID: 1, EOQ: 271}))

		line, err := svc.PlanLine(ctx, POCandidate{ProductID: 1, SuggestedQuantity: 30})
		require.NoError(t, err)
		assert.Equal(t, 271, line.Line.Quantity)
		assert.Equal(t, QuantityFromEOQ, line.Line.QuantitySource)
	})

	t.Run("alert suggestion", func(t *testing.T) {
		svc, _ := newPOFixture()
		line, err := svc.PlanLine(ctx, POCandidate{ProductID: 1, SuggestedQuantity: 30, AlertIDs: []int64{7}})
		require.NoError(t, err)
		assert.Equal(t, 30, line.Line.Quantity)
		assert.Equal(t, QuantityFromAlert, line.Line.QuantitySource)
		assert.Equal(t, []int64{7}, line.AlertIDs)
	})

	t.Run("twice minimum", func(t *testing.T) {
		svc, _ := newPOFixture()
		line, err := svc.PlanLine(ctx, POCandidate{ProductID: 1})
		require.NoError(t, err)
		assert.Equal(t, 20, line.Line.Quantity)
		assert.Equal(t, QuantityFromMinimum, line.Line.QuantitySource)
		assert.True(t, decimal.NewFromInt(250).Equal(line.Line.Amount), "amount %s", line.Line.Amount)
	})

	t.Run("configured default", func(t *testing.T) {
		svc, _ := newPOFixture()
		line, err := svc.PlanLine(ctx, POCandidate{ProductID: 2})
		require.NoError(t, err)
		assert.Equal(t, 100, line.Line.Quantity)
		assert.Equal(t, QuantityFromFallback, line.Line.QuantitySource)
	})

	t.Run("no supplier", func(t *testing.T) {
		svc, _ := newPOFixture()
		_, err := svc.PlanLine(ctx, POCandidate{ProductID: 3})
		assert.ErrorIs(t, err, ErrNoSupplier)
	})
}

func TestGroupBySupplierAndCreateOrder(t *testing.T) {
	svc, store := newPOFixture()
	ctx := context.Background()

	var lines []*PlannedLine
	for _, c := range []POCandidate{
		{ProductID: 1, AlertIDs: []int64{11}},
		{ProductID: 2, AlertIDs: []int64{12}},
	} {
		l, err := svc.PlanLine(ctx, c)
		require.NoError(t, err)
		lines = append(lines, l)
	}

	groups := GroupBySupplier(lines)
	require.Len(t, groups, 2)
	assert.Equal(t, int64(4), groups[0].Supplier.ID)
	assert.Equal(t, int64(9), groups[1].Supplier.ID)
	assert.Equal(t, []int64{1}, groups[1].ProductIDs())

	po, err := svc.CreateOrder(ctx, groups[1])
	require.NoError(t, err)
	assert.NotZero(t, po.ID)
	assert.True(t, strings.HasPrefix(po.Number, "PO-"))
	assert.Equal(t, "Acme", po.SupplierName)
	assert.Equal(t, domain.POStatusDraft, po.Status)
	assert.Equal(t, []int64{11}, po.AlertIDs)
	assert.Equal(t, "250.00", po.TotalAmount.StringFixed(2))
	assert.Len(t, store.PurchaseOrders(), 1)

	boom := errors.New("constraint violation")
	store.Fail("CreatePurchaseOrder", 4, boom)
	_, err = svc.CreateOrder(ctx, groups[0])
	assert.ErrorIs(t, err, boom)
}

func TestNewPONumber_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		n := NewPONumber(historyEnd)
		assert.True(t, strings.HasPrefix(n, "PO-20260101-"))
		assert.False(t, seen[n])
		seen[n] = true
	}
}
