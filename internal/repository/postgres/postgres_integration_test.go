//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres runs a throwaway database and applies the migrations.
func startPostgres(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "replenish",
			"POSTGRES_PASSWORD": "replenish",
			"POSTGRES_DB":       "replenish",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := &config.DatabaseConfig{
		Host:     host,
		Port:     port.Port(),
		User:     "replenish",
		Password: "replenish",
		DBName:   "replenish",
		SSLMode:  "disable",
	}
	conn, err := sqlx.Connect("pgx", DSN(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	db := Wrap(conn, 4)
	require.NoError(t, Migrate(db, "../../../scripts/migrations"))
	return db
}

func seedCatalog(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `INSERT INTO suppliers (id, name, lead_time_days) VALUES (1, 'Acme', 5), (2, 'Globex', NULL)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, current_stock, minimum_stock, reorder_point, cost_per_order, holding_cost, unit_cost, default_supplier_id)
		VALUES (1, 'SKU-1', 'Widget', 4, 10, 20, 50, 5, 12.5, 1)
	`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		INSERT INTO demand_history (product_id, date, quantity)
		SELECT 1, d::date, CASE WHEN EXTRACT(DAY FROM d)::int % 2 = 0 THEN 8 ELSE 12 END
		FROM generate_series('2025-10-01'::date, '2025-12-31'::date, '1 day') AS d
	`)
	require.NoError(t, err)
}

func TestPostgres_CatalogAndDemand(t *testing.T) {
	db := startPostgres(t)
	seedCatalog(t, db)
	ctx := context.Background()

	products := NewProductRepository(db)
	p, err := products.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "SKU-1", p.SKU)
	require.NotNil(t, p.UnitCost)
	assert.InDelta(t, 12.5, *p.UnitCost, 1e-9)
	assert.Nil(t, p.LeadTimeDays)

	_, err = products.GetProduct(ctx, 99)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	profile, err := products.GetActiveProfile(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, profile)

	_, err = db.ExecContext(ctx, `INSERT INTO seasonality_profiles (product_id, jan, dec) VALUES (1, 1.5, 0.8)`)
	require.NoError(t, err)
	profile, err = products.GetActiveProfile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.5, profile.Coefficient(time.January))
	assert.Equal(t, 1.0, profile.Coefficient(time.June))

	_, ok, err := products.Param(ctx, domain.AlgorithmRandomForest, "n_estimators")
	require.NoError(t, err)
	assert.False(t, ok)

	demand := NewDemandRepository(db)
	history, err := demand.GetDemandHistory(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, history, 92)
	assert.True(t, history[0].Date.Before(history[1].Date))

	agg, err := demand.GetDemandAggregate(ctx, 1,
		time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 31, agg.Count)
	assert.Greater(t, agg.StdDev, 0.0)
}

func TestPostgres_ForecastUpsertAndPrune(t *testing.T) {
	db := startPostgres(t)
	seedCatalog(t, db)
	ctx := context.Background()
	repo := NewForecastRepository(db)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	save := func(h int, at time.Time) *domain.Forecast {
		f := &domain.Forecast{
			ProductID:     1,
			Algorithm:     domain.AlgorithmLinearRegression,
			Horizon:       h,
			Values:        []float64{1, 2, 3},
			PeriodStart:   base,
			TotalDemand:   6,
			Quality:       domain.QualityGood,
			MetricsSource: domain.MetricsValidation,
			GeneratedAt:   at,
		}
		require.NoError(t, repo.UpsertForecast(ctx, f, 2))
		return f
	}

	first := save(30, base)
	again := save(30, base.Add(time.Hour))
	assert.Equal(t, first.ID, again.ID, "same (product, algorithm, horizon) updates in place")

	save(14, base.Add(2*time.Hour))
	newest := save(7, base.Add(3*time.Hour))

	var count int
	require.NoError(t, db.GetContext(ctx, &count, `SELECT COUNT(*) FROM forecasts WHERE product_id = 1`))
	assert.Equal(t, 2, count)

	latest, err := repo.GetLatestForecast(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, newest.ID, latest.ID)
	assert.Equal(t, []float64{1, 2, 3}, latest.Values)

	stale, err := repo.ListStaleForecasts(ctx, base.Add(4*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, newest.ID, stale[0].ID)

	opt := &domain.OptimizationResult{ProductID: 1, ForecastID: newest.ID, EOQ: 271, ROP: 79, SafetyStock: 9, GeneratedAt: base}
	require.NoError(t, repo.SaveOptimization(ctx, opt))
	got, err := repo.GetLatestOptimization(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 271, got.EOQ)
	assert.Equal(t, newest.ID, got.ForecastID)
}

func TestPostgres_AlertsAndPurchaseOrders(t *testing.T) {
	db := startPostgres(t)
	seedCatalog(t, db)
	ctx := context.Background()
	alerts := NewAlertRepository(db)
	orders := NewPORepository(db)

	now := time.Now().UTC().Truncate(time.Microsecond)
	a := &domain.Alert{
		ProductID:   1,
		Type:        domain.AlertStockLow,
		Severity:    domain.SeverityHigh,
		State:       domain.AlertPending,
		Message:     "stock low",
		GeneratedAt: now,
		UpdatedAt:   now,
	}
	require.NoError(t, alerts.CreateAlert(ctx, a))
	require.NotZero(t, a.ID)

	user := "buyer"
	a.State = domain.AlertInProgress
	a.AssignedUser = &user
	require.NoError(t, alerts.UpdateAlert(ctx, a))

	latest, err := alerts.GetLatestAlert(ctx, 1, domain.AlertStockLow)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertInProgress, latest.State)
	assert.Equal(t, "buyer", *latest.AssignedUser)

	listed, err := alerts.ListAlerts(ctx, domain.AlertPending, 10)
	require.NoError(t, err)
	assert.Empty(t, listed)

	_, err = orders.GetPrincipalSupplier(ctx, 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	po := &domain.PurchaseOrder{
		Number:       "PO-20260101-ABCDEF12",
		SupplierID:   2,
		SupplierName: "Globex",
		Status:       domain.POStatusDraft,
		TotalAmount:  decimal.RequireFromString("250.00"),
		CreatedAt:    now,
		Lines: []domain.PurchaseOrderLine{{
			ProductID:      1,
			SKU:            "SKU-1",
			Quantity:       20,
			UnitCost:       decimal.RequireFromString("12.5"),
			Amount:         decimal.RequireFromString("250.00"),
			QuantitySource: "minimum_stock",
		}},
		AlertIDs: []int64{a.ID},
	}
	require.NoError(t, orders.CreatePurchaseOrder(ctx, po))

	got, err := orders.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, po.Number, got.Number)
	assert.True(t, got.TotalAmount.Equal(po.TotalAmount))
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 20, got.Lines[0].Quantity)
	assert.Equal(t, []int64{a.ID}, got.AlertIDs)

	principal, err := orders.GetPrincipalSupplier(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), principal.ID)
}
