package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/alert"
	"github.com/andresuchdata/autopo-replenish/internal/cache"
	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/pipeline"
	"github.com/andresuchdata/autopo-replenish/internal/repository/memory"
	"github.com/andresuchdata/autopo-replenish/internal/scheduler"
	"github.com/andresuchdata/autopo-replenish/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter wires the full stack over an in-memory store. Product 1 has
// history, costs and a supplier; product 2 has nothing but stock levels.
func newTestRouter(t *testing.T) (*gin.Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	store.PutSupplier(domain.Supplier{ID: 9, Name: "Acme"})
	store.PutProduct(domain.Product{
		ID:                1,
		SKU:               "SKU-1",
		CurrentStock:      0,
		MinimumStock:      10,
		ReorderPoint:      20,
		CostPerOrder:      ptr(50.0),
		HoldingCost:       ptr(5.0),
		UnitCost:          ptr(12.0),
		LeadTimeDays:      ptr(7),
		DefaultSupplierID: ptr(int64(9)),
	})
	store.PutProduct(domain.Product{ID: 2, SKU: "SKU-2", CurrentStock: 500, MinimumStock: 10, ReorderPoint: 20})

	history := make([]float64, 60)
	for i := range history {
		history[i] = 10
	}
	store.PutHistory(1, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), history)

	cfg := config.ForecastConfig{
		DefaultHorizon:      30,
		Retention:           5,
		ValidityDays:        7,
		ServiceLevel:        0.95,
		StdDevFallbackRatio: 0.2,
		DefaultLeadTimeDays: 7,
		AlertCooldownDays:   7,
		PODefaultQuantity:   100,
	}
	manager := alert.NewManager(store, store, cfg.AlertCooldownDays)
	forecasts := service.NewForecastService(store, store, store, store, store, nil, cfg)
	optimizations := service.NewOptimizationService(store, store, store, store, nil, cfg)
	orders := service.NewPOService(store, store, store, store, nil, cfg.PODefaultQuantity)
	orchestrator := pipeline.NewOrchestrator(pipeline.Dependencies{
		Alerts:        store,
		Manager:       manager,
		Forecasts:     forecasts,
		Optimizations: optimizations,
		Orders:        orders,
	}, pipeline.DefaultPipelineConfig())
	scans := service.NewScanService(manager, store, store, orchestrator, cfg, false)

	router := NewRouter(&Services{
		Products:            store,
		Alerts:              store,
		AlertManager:        manager,
		ForecastService:     forecasts,
		OptimizationService: optimizations,
		POService:           orders,
		Batches:             orchestrator,
		Scanner:             scheduler.New(scans, cache.NewLocalLocker(), config.SchedulerConfig{}),
	}, nil)
	return router, store
}

func do(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "replenish_http_requests_total")
}

func TestForecastEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/v1/products/1/forecast", map[string]any{"horizon": 14})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	f := decode[domain.Forecast](t, w)
	assert.Equal(t, 14, f.Horizon)
	assert.Len(t, f.Values, 14)

	w = do(t, router, http.MethodGet, "/api/v1/products/1/forecast", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, f.ID, decode[domain.Forecast](t, w).ID)

	cases := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"unknown product", "/api/v1/products/99/forecast", nil, http.StatusNotFound},
		{"no history", "/api/v1/products/2/forecast", nil, http.StatusUnprocessableEntity},
		{"bad algorithm", "/api/v1/products/1/forecast", map[string]any{"algorithm": "crystal_ball"}, http.StatusBadRequest},
		{"negative horizon", "/api/v1/products/1/forecast", map[string]any{"horizon": -3}, http.StatusBadRequest},
		{"bad id", "/api/v1/products/abc/forecast", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}

	w = do(t, router, http.MethodGet, "/api/v1/products/2/forecast", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOptimizationEndpoints(t *testing.T) {
	router, store := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/v1/products/1/forecast", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, "/api/v1/products/1/optimization", map[string]any{"service_level": 0.99})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[domain.OptimizationResult](t, w)
	assert.Greater(t, res.EOQ, 0)
	assert.Equal(t, 0.99, res.ServiceLevel)

	w = do(t, router, http.MethodGet, "/api/v1/products/1/optimization", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/products/1/optimization", map[string]any{"service_level": 1.5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.NoError(t, store.UpsertForecast(t.Context(), &domain.Forecast{
		ProductID: 2, Algorithm: domain.AlgorithmLinearRegression, Horizon: 30, TotalDemand: 300, GeneratedAt: time.Now(),
	}, 5))
	w = do(t, router, http.MethodPost, "/api/v1/products/2/optimization", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "product 2 has no cost parameters")
}

func TestAlertLifecycleEndpoints(t *testing.T) {
	router, store := newTestRouter(t)
	a := store.PutAlert(domain.Alert{ProductID: 1, Type: domain.AlertStockLow, Severity: domain.SeverityHigh, State: domain.AlertPending})
	b := store.PutAlert(domain.Alert{ProductID: 2, Type: domain.AlertStockLow, Severity: domain.SeverityHigh, State: domain.AlertPending})

	w := do(t, router, http.MethodGet, "/api/v1/alerts?state=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.Alert](t, w), 2)

	w = do(t, router, http.MethodGet, "/api/v1/alerts?state=sleeping", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, fmt.Sprintf("/api/v1/alerts/%d/assign", a.ID), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, fmt.Sprintf("/api/v1/alerts/%d/assign", a.ID), map[string]any{"user": "buyer"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.AlertInProgress, decode[domain.Alert](t, w).State)

	w = do(t, router, http.MethodPost, fmt.Sprintf("/api/v1/alerts/%d/resolve", a.ID), map[string]any{"note": "ordered"})
	require.Equal(t, http.StatusOK, w.Code)
	resolved := decode[domain.Alert](t, w)
	assert.Equal(t, domain.AlertResolved, resolved.State)
	require.NotNil(t, resolved.Resolution)
	assert.Equal(t, "ordered", *resolved.Resolution)

	w = do(t, router, http.MethodPost, fmt.Sprintf("/api/v1/alerts/%d/ignore", a.ID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/alerts/999/resolve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/alerts/ignore", map[string]any{"ids": []int64{a.ID, b.ID}, "note": "seasonal"})
	require.Equal(t, http.StatusOK, w.Code)
	bulk := decode[domain.BatchJobResult](t, w)
	assert.Equal(t, 2, bulk.TotalItems)
	assert.Len(t, bulk.SucceededIDs, 1)
	assert.Len(t, bulk.FailedIDs, 1)
}

func TestBatchEndpoints(t *testing.T) {
	router, store := newTestRouter(t)
	a := store.PutAlert(domain.Alert{ProductID: 1, Type: domain.AlertStockCritical, Severity: domain.SeverityCritical, State: domain.AlertPending, SuggestedQuantity: 40})

	w := do(t, router, http.MethodPost, "/api/v1/batches", map[string]any{"alert_ids": []int64{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/batches", map[string]any{"alert_ids": []int64{12345}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/batches", map[string]any{"alert_ids": []int64{a.ID}, "horizon": 30})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[domain.BatchJobResult](t, w)
	assert.Equal(t, []string{"1"}, res.SucceededIDs)
	require.Len(t, res.Phases, 3)
	require.Len(t, res.Phases[2].GeneratedIDs, 1)

	orders := store.PurchaseOrders()
	require.Len(t, orders, 1)
	w = do(t, router, http.MethodGet, fmt.Sprintf("/api/v1/purchase-orders/%d", orders[0].ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status_label":"Draft"`)

	w = do(t, router, http.MethodGet, "/api/v1/batches/"+res.RunID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "runs are not recorded without a run store")
}

func TestStockHealthAndScan(t *testing.T) {
	router, store := newTestRouter(t)

	w := do(t, router, http.MethodGet, "/api/v1/stock/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Summary map[string]int `json:"summary"`
		Items   []struct {
			ProductID int64  `json:"product_id"`
			Condition string `json:"condition"`
		} `json:"items"`
	}](t, w)
	assert.Equal(t, 1, body.Summary["CRITICAL"])
	assert.Equal(t, 1, body.Summary["HEALTHY"])
	assert.Len(t, body.Items, 2)

	w = do(t, router, http.MethodGet, "/api/v1/stock/health?condition=critical", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"condition":"CRITICAL"`)
	assert.NotContains(t, w.Body.String(), `"condition":"HEALTHY"`)

	w = do(t, router, http.MethodPost, "/api/v1/scans", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	scan := decode[service.ScanResult](t, w)
	assert.Equal(t, 2, scan.Scanned)
	assert.Equal(t, 1, scan.Created)
	assert.Len(t, store.AlertsFor(1, domain.AlertStockCritical), 1)
}
