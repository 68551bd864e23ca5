package alert

import (
	"context"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/events"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/andresuchdata/autopo-replenish/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type recordingPublisher struct{ types []string }

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.types = append(p.types, e.Type)
	return nil
}
func (p *recordingPublisher) Close() error { return nil }

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func newManager(t *testing.T) (*Manager, *memory.Store, *clock) {
	t.Helper()
	store := memory.NewStore()
	store.PutProduct(domain.Product{ID: 1, SKU: "SKU-1", LeadTimeDays: intPtr(10)})
	store.PutSupplier(domain.Supplier{ID: 9, Name: "Acme", LeadTimeDays: intPtr(4)})
	store.PutProduct(domain.Product{ID: 2, SKU: "SKU-2", DefaultSupplierID: int64Ptr(9)})
	store.PutProduct(domain.Product{ID: 3, SKU: "SKU-3"})

	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := NewManager(store, store, 7)
	m.SetClock(c.now)
	return m, store, c
}

func lowStock(productID int64) Condition {
	return Condition{
		ProductID:         productID,
		Type:              domain.AlertStockLow,
		Severity:          domain.SeverityHigh,
		Message:           "low",
		SuggestedQuantity: 10,
	}
}

func TestRaise_CreatesPending(t *testing.T) {
	m, store, _ := newManager(t)

	a, outcome, err := m.Raise(context.Background(), lowStock(1))
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, outcome)
	assert.Equal(t, domain.AlertPending, a.State)
	assert.NotZero(t, a.ID)
	assert.Len(t, store.AlertsFor(1, domain.AlertStockLow), 1)
}

func TestRaise_DedupUpdatesOpenAlert(t *testing.T) {
	m, store, c := newManager(t)
	ctx := context.Background()

	first, _, err := m.Raise(ctx, lowStock(1))
	require.NoError(t, err)

	c.advance(time.Hour)
	cond := lowStock(1)
	cond.Severity = domain.SeverityCritical
	cond.SuggestedQuantity = 40
	second, outcome, err := m.Raise(ctx, cond)
	require.NoError(t, err)

	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, first.ID, second.ID)
	alerts := store.AlertsFor(1, domain.AlertStockLow)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, 40, alerts[0].SuggestedQuantity)
	assert.Equal(t, c.now(), alerts[0].UpdatedAt)
}

func TestRaise_DedupAppliesToInProgress(t *testing.T) {
	m, store, _ := newManager(t)
	ctx := context.Background()

	first, _, err := m.Raise(ctx, lowStock(1))
	require.NoError(t, err)
	_, err = m.Assign(ctx, first.ID, "buyer")
	require.NoError(t, err)

	again, outcome, err := m.Raise(ctx, lowStock(1))
	require.NoError(t, err)

	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, domain.AlertInProgress, again.State)
	assert.Len(t, store.AlertsFor(1, domain.AlertStockLow), 1)
}

func TestRaise_CooldownAfterResolve(t *testing.T) {
	cases := []struct {
		name      string
		productID int64
		cooldown  time.Duration
	}{
		{"product lead time", 1, 10 * 24 * time.Hour},
		{"supplier lead time", 2, 4 * 24 * time.Hour},
		{"default", 3, 7 * 24 * time.Hour},
		{"unknown product", 99, 7 * 24 * time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, store, c := newManager(t)
			ctx := context.Background()

			a, _, err := m.Raise(ctx, lowStock(tc.productID))
			require.NoError(t, err)
			_, err = m.Resolve(ctx, a.ID, "restocked")
			require.NoError(t, err)

			c.advance(tc.cooldown - time.Minute)
			_, outcome, err := m.Raise(ctx, lowStock(tc.productID))
			require.NoError(t, err)
			assert.Equal(t, OutcomeSuppressed, outcome)
			assert.Len(t, store.AlertsFor(tc.productID, domain.AlertStockLow), 1)

			c.advance(2 * time.Minute)
			fresh, outcome, err := m.Raise(ctx, lowStock(tc.productID))
			require.NoError(t, err)
			assert.Equal(t, OutcomeCreated, outcome)
			assert.NotEqual(t, a.ID, fresh.ID)
			assert.Len(t, store.AlertsFor(tc.productID, domain.AlertStockLow), 2)
		})
	}
}

func TestRaise_IgnoredFollowsCooldown(t *testing.T) {
	m, store, c := newManager(t)
	ctx := context.Background()

	a, _, err := m.Raise(ctx, lowStock(3))
	require.NoError(t, err)
	_, err = m.Ignore(ctx, a.ID, "seasonal dip")
	require.NoError(t, err)

	c.advance(24 * time.Hour)
	_, outcome, err := m.Raise(ctx, lowStock(3))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, outcome)

	c.advance(7 * 24 * time.Hour)
	_, outcome, err = m.Raise(ctx, lowStock(3))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	assert.Len(t, store.AlertsFor(3, domain.AlertStockLow), 2)
}

func TestRaise_TypesAreIndependent(t *testing.T) {
	m, store, _ := newManager(t)
	ctx := context.Background()

	_, _, err := m.Raise(ctx, lowStock(1))
	require.NoError(t, err)
	stale := Condition{ProductID: 1, Type: domain.AlertForecastStale, Severity: domain.SeverityLow}
	_, outcome, err := m.Raise(ctx, stale)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, outcome)
	assert.Len(t, store.AlertsFor(1, domain.AlertForecastStale), 1)
}

func TestTransitions(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	a, _, err := m.Raise(ctx, lowStock(1))
	require.NoError(t, err)

	assigned, err := m.Assign(ctx, a.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertInProgress, assigned.State)
	require.NotNil(t, assigned.AssignedUser)
	assert.Equal(t, "buyer", *assigned.AssignedUser)

	resolved, err := m.Resolve(ctx, a.ID, "po created")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertResolved, resolved.State)
	require.NotNil(t, resolved.ResolvedAt)
	require.NotNil(t, resolved.Resolution)
	assert.Equal(t, "po created", *resolved.Resolution)

	_, err = m.Ignore(ctx, a.ID, "late")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = m.Resolve(ctx, a.ID, "again")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = m.Assign(ctx, a.ID, "other")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = m.Resolve(ctx, 12345, "")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestResolveMany_IsolatesFailures(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	a1, _, err := m.Raise(ctx, lowStock(1))
	require.NoError(t, err)
	a2, _, err := m.Raise(ctx, lowStock(2))
	require.NoError(t, err)
	_, err = m.Ignore(ctx, a2.ID, "")
	require.NoError(t, err)

	res := m.ResolveMany(ctx, []int64{a1.ID, a2.ID, 777}, "bulk")

	assert.Equal(t, 3, res.TotalItems)
	assert.Equal(t, 1, res.SucceededCount())
	assert.Equal(t, 2, res.FailedCount())
	assert.Len(t, res.ErrorMessages, 2)
}

func TestIgnoreMany(t *testing.T) {
	m, store, _ := newManager(t)
	ctx := context.Background()

	a1, _, err := m.Raise(ctx, lowStock(1))
	require.NoError(t, err)
	a2, _, err := m.Raise(ctx, lowStock(2))
	require.NoError(t, err)

	res := m.IgnoreMany(ctx, []int64{a1.ID, a2.ID}, "noise")

	assert.Equal(t, 2, res.SucceededCount())
	assert.Equal(t, domain.AlertIgnored, store.AlertsFor(1, domain.AlertStockLow)[0].State)
}

func TestEvaluateStock(t *testing.T) {
	cases := []struct {
		name     string
		level    domain.StockLevel
		ok       bool
		severity domain.Severity
		alert    domain.AlertType
		qty      int
	}{
		{"out of stock", domain.StockLevel{Stock: 0, MinimumStock: 10, ReorderPoint: 20}, true,
			domain.SeverityCritical, domain.AlertStockCritical, 40},
		{"negative stock uses minimum", domain.StockLevel{Stock: -3, MinimumStock: 20, ReorderPoint: 15}, true,
			domain.SeverityCritical, domain.AlertStockCritical, 60},
		{"below minimum", domain.StockLevel{Stock: 4, MinimumStock: 10, ReorderPoint: 30}, true,
			domain.SeverityHigh, domain.AlertStockLow, 26},
		{"at reorder point", domain.StockLevel{Stock: 20, MinimumStock: 10, ReorderPoint: 20}, true,
			domain.SeverityMedium, domain.AlertReorderPoint, 10},
		{"within margin", domain.StockLevel{Stock: 23, MinimumStock: 10, ReorderPoint: 20}, true,
			domain.SeverityLow, domain.AlertReorderPoint, 0},
		{"healthy", domain.StockLevel{Stock: 25, MinimumStock: 10, ReorderPoint: 20}, false, "", "", 0},
		{"critical backfill", domain.StockLevel{Stock: 0, MinimumStock: 0, ReorderPoint: 0}, true,
			domain.SeverityCritical, domain.AlertStockCritical, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, ok := EvaluateStock(tc.level)
			require.Equal(t, tc.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tc.severity, c.Severity)
			assert.Equal(t, tc.alert, c.Type)
			assert.Equal(t, tc.qty, c.SuggestedQuantity)
		})
	}
}

func TestCheckStock(t *testing.T) {
	m, store, _ := newManager(t)

	_, outcome, err := m.CheckStock(context.Background(), domain.StockLevel{ProductID: 1, Stock: 100, ReorderPoint: 10})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNone, outcome)

	a, outcome, err := m.CheckStock(context.Background(), domain.StockLevel{ProductID: 1, Stock: 0, ReorderPoint: 10})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	assert.Equal(t, domain.AlertStockCritical, a.Type)
	assert.Len(t, store.AlertsFor(1, domain.AlertStockCritical), 1)
}

func TestLifecyclePublishesEvents(t *testing.T) {
	m, _, _ := newManager(t)
	pub := &recordingPublisher{}
	m.SetPublisher(pub)
	ctx := context.Background()

	a, _, err := m.Raise(ctx, lowStock(1))
	require.NoError(t, err)
	_, _, err = m.Raise(ctx, lowStock(1))
	require.NoError(t, err)
	_, err = m.Assign(ctx, a.ID, "buyer")
	require.NoError(t, err)
	_, err = m.Ignore(ctx, a.ID, "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		events.AlertCreated,
		events.AlertUpdated,
		events.AlertAssigned,
		events.AlertIgnored,
	}, pub.types)
}
