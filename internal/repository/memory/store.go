// Package memory provides in-process implementations of the repository
// ports, used by tests and local runs without a database.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
)

// Store keeps every entity in maps guarded by a single mutex. Values are
// copied on the way in and out so callers never share state with the store.
type Store struct {
	mu sync.RWMutex

	products      map[int64]domain.Product
	suppliers     map[int64]domain.Supplier
	history       map[int64][]domain.DemandObservation
	forecasts     map[int64]domain.Forecast
	optimizations map[int64]domain.OptimizationResult
	profiles      map[int64]domain.SeasonalityProfile
	params        map[string]float64
	principal     map[int64]int64
	alerts        map[int64]domain.Alert
	orders        map[int64]domain.PurchaseOrder

	nextID int64

	// Failures injects errors keyed by operation name and product id, e.g.
	// "UpsertForecast".
	failures map[string]map[int64]error
}

var (
	_ repository.ProductRepository          = (*Store)(nil)
	_ repository.DemandRepository           = (*Store)(nil)
	_ repository.ForecastRepository         = (*Store)(nil)
	_ repository.OptimizationRepository     = (*Store)(nil)
	_ repository.SeasonalityRepository      = (*Store)(nil)
	_ repository.HyperParameterRepository   = (*Store)(nil)
	_ repository.AlertRepository            = (*Store)(nil)
	_ repository.PurchaseOrderRepository    = (*Store)(nil)
	_ repository.SupplierAffinityRepository = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		products:      make(map[int64]domain.Product),
		suppliers:     make(map[int64]domain.Supplier),
		history:       make(map[int64][]domain.DemandObservation),
		forecasts:     make(map[int64]domain.Forecast),
		optimizations: make(map[int64]domain.OptimizationResult),
		profiles:      make(map[int64]domain.SeasonalityProfile),
		params:        make(map[string]float64),
		principal:     make(map[int64]int64),
		alerts:        make(map[int64]domain.Alert),
		orders:        make(map[int64]domain.PurchaseOrder),
		failures:      make(map[string]map[int64]error),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Seeding helpers

func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) PutSupplier(sup domain.Supplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliers[sup.ID] = sup
}

// PutHistory stores a daily series for productID ending the day before end.
func (s *Store) PutHistory(productID int64, end time.Time, quantities []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := end.AddDate(0, 0, -len(quantities))
	obs := make([]domain.DemandObservation, len(quantities))
	for i, q := range quantities {
		obs[i] = domain.DemandObservation{ProductID: productID, Date: start.AddDate(0, 0, i), Quantity: q}
	}
	s.history[productID] = obs
}

func (s *Store) PutProfile(p domain.SeasonalityProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ProductID] = p
}

func (s *Store) PutParam(algorithm domain.Algorithm, name string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[paramKey(algorithm, name)] = v
}

func (s *Store) PutPrincipalSupplier(productID, supplierID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal[productID] = supplierID
}

// PutAlert stores a, assigning an ID when zero.
func (s *Store) PutAlert(a domain.Alert) domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		a.ID = s.id()
	}
	s.alerts[a.ID] = a
	return a
}

// Fail makes op return err for productID until cleared with a nil err.
func (s *Store) Fail(op string, productID int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[op] == nil {
		s.failures[op] = make(map[int64]error)
	}
	if err == nil {
		delete(s.failures[op], productID)
		return
	}
	s.failures[op][productID] = err
}

func (s *Store) failure(op string, productID int64) error {
	return s.failures[op][productID]
}

// Inspection helpers

// AlertsFor returns every alert of (product, type) ordered by ID.
func (s *Store) AlertsFor(productID int64, alertType domain.AlertType) []domain.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Alert
	for _, a := range s.alerts {
		if a.ProductID == productID && a.Type == alertType {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ForecastsFor returns every stored forecast of a product.
func (s *Store) ForecastsFor(productID int64) []domain.Forecast {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Forecast
	for _, f := range s.forecasts {
		if f.ProductID == productID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) PurchaseOrders() []domain.PurchaseOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PurchaseOrder, 0, len(s.orders))
	for _, po := range s.orders {
		out = append(out, po)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ProductRepository

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, repository.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) GetSupplier(_ context.Context, id int64) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sup, ok := s.suppliers[id]
	if !ok {
		return nil, fmt.Errorf("supplier %d: %w", id, repository.ErrNotFound)
	}
	return &sup, nil
}

func (s *Store) ListStockLevels(_ context.Context) ([]domain.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.StockLevel, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, domain.StockLevel{
			ProductID:    p.ID,
			Stock:        p.CurrentStock,
			MinimumStock: p.MinimumStock,
			ReorderPoint: p.ReorderPoint,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// DemandRepository

func (s *Store) GetDemandHistory(_ context.Context, productID int64) ([]domain.DemandObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("GetDemandHistory", productID); err != nil {
		return nil, err
	}
	return append([]domain.DemandObservation(nil), s.history[productID]...), nil
}

func (s *Store) GetDemandAggregate(_ context.Context, productID int64, from, to time.Time) (*domain.DemandAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var qs []float64
	for _, o := range s.history[productID] {
		if !o.Date.Before(from) && o.Date.Before(to) {
			qs = append(qs, o.Quantity)
		}
	}
	agg := &domain.DemandAggregate{Count: len(qs)}
	if len(qs) == 0 {
		return agg, nil
	}
	for _, q := range qs {
		agg.Mean += q
	}
	agg.Mean /= float64(len(qs))
	if len(qs) > 1 {
		var ss float64
		for _, q := range qs {
			ss += (q - agg.Mean) * (q - agg.Mean)
		}
		agg.StdDev = math.Sqrt(ss / float64(len(qs)-1))
	}
	return agg, nil
}

// ForecastRepository

func (s *Store) UpsertForecast(_ context.Context, f *domain.Forecast, retain int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpsertForecast", f.ProductID); err != nil {
		return err
	}

	f.ID = 0
	for id, existing := range s.forecasts {
		if existing.ProductID == f.ProductID && existing.Algorithm == f.Algorithm && existing.Horizon == f.Horizon {
			f.ID = id
		}
	}
	if f.ID == 0 {
		f.ID = s.id()
	}
	stored := *f
	stored.Values = append([]float64(nil), f.Values...)
	s.forecasts[f.ID] = stored

	if retain > 0 {
		var mine []domain.Forecast
		for _, existing := range s.forecasts {
			if existing.ProductID == f.ProductID {
				mine = append(mine, existing)
			}
		}
		sortNewestFirst(mine)
		for _, old := range mine[min(retain, len(mine)):] {
			delete(s.forecasts, old.ID)
		}
	}
	return nil
}

func (s *Store) GetForecast(_ context.Context, id int64) (*domain.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.forecasts[id]
	if !ok {
		return nil, fmt.Errorf("forecast %d: %w", id, repository.ErrNotFound)
	}
	f.Values = append([]float64(nil), f.Values...)
	return &f, nil
}

func (s *Store) GetLatestForecast(_ context.Context, productID int64) (*domain.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest, ok := s.latestForecast(productID)
	if !ok {
		return nil, fmt.Errorf("forecast for product %d: %w", productID, repository.ErrNotFound)
	}
	return &latest, nil
}

func (s *Store) latestForecast(productID int64) (domain.Forecast, bool) {
	var mine []domain.Forecast
	for _, f := range s.forecasts {
		if f.ProductID == productID {
			mine = append(mine, f)
		}
	}
	if len(mine) == 0 {
		return domain.Forecast{}, false
	}
	sortNewestFirst(mine)
	latest := mine[0]
	latest.Values = append([]float64(nil), latest.Values...)
	return latest, true
}

func (s *Store) ListStaleForecasts(_ context.Context, cutoff time.Time) ([]*domain.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]bool)
	var out []*domain.Forecast
	for _, f := range s.forecasts {
		if seen[f.ProductID] {
			continue
		}
		seen[f.ProductID] = true
		latest, _ := s.latestForecast(f.ProductID)
		if latest.GeneratedAt.Before(cutoff) {
			out = append(out, &latest)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func sortNewestFirst(fs []domain.Forecast) {
	sort.Slice(fs, func(i, j int) bool {
		if !fs[i].GeneratedAt.Equal(fs[j].GeneratedAt) {
			return fs[i].GeneratedAt.After(fs[j].GeneratedAt)
		}
		return fs[i].ID > fs[j].ID
	})
}

// OptimizationRepository

func (s *Store) SaveOptimization(_ context.Context, r *domain.OptimizationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("SaveOptimization", r.ProductID); err != nil {
		return err
	}
	r.ID = s.id()
	s.optimizations[r.ProductID] = *r
	return nil
}

func (s *Store) GetLatestOptimization(_ context.Context, productID int64) (*domain.OptimizationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.optimizations[productID]
	if !ok {
		return nil, fmt.Errorf("optimization for product %d: %w", productID, repository.ErrNotFound)
	}
	return &r, nil
}

// SeasonalityRepository

func (s *Store) GetActiveProfile(_ context.Context, productID int64) (*domain.SeasonalityProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[productID]
	if !ok || !p.Active {
		return nil, nil
	}
	return &p, nil
}

// HyperParameterRepository

func (s *Store) Param(_ context.Context, algorithm domain.Algorithm, name string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.params[paramKey(algorithm, name)]
	return v, ok, nil
}

func paramKey(algorithm domain.Algorithm, name string) string {
	return string(algorithm) + "/" + name
}

// AlertRepository

func (s *Store) GetAlert(_ context.Context, id int64) (*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %d: %w", id, repository.ErrNotFound)
	}
	return &a, nil
}

func (s *Store) GetLatestAlert(_ context.Context, productID int64, alertType domain.AlertType) (*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.Alert
	for _, a := range s.alerts {
		if a.ProductID != productID || a.Type != alertType {
			continue
		}
		if latest == nil || a.GeneratedAt.After(latest.GeneratedAt) ||
			(a.GeneratedAt.Equal(latest.GeneratedAt) && a.ID > latest.ID) {
			cp := a
			latest = &cp
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("alert for product %d type %s: %w", productID, alertType, repository.ErrNotFound)
	}
	return latest, nil
}

func (s *Store) CreateAlert(_ context.Context, a *domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.id()
	s.alerts[a.ID] = *a
	return nil
}

func (s *Store) UpdateAlert(_ context.Context, a *domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpdateAlert", a.ProductID); err != nil {
		return err
	}
	if _, ok := s.alerts[a.ID]; !ok {
		return fmt.Errorf("alert %d: %w", a.ID, repository.ErrNotFound)
	}
	s.alerts[a.ID] = *a
	return nil
}

func (s *Store) ListAlerts(_ context.Context, state domain.AlertState, limit int) ([]*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Alert
	for _, a := range s.alerts {
		if state != "" && a.State != state {
			continue
		}
		cp := a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PurchaseOrderRepository

func (s *Store) CreatePurchaseOrder(_ context.Context, po *domain.PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreatePurchaseOrder", po.SupplierID); err != nil {
		return err
	}
	po.ID = s.id()
	stored := *po
	stored.Lines = append([]domain.PurchaseOrderLine(nil), po.Lines...)
	stored.AlertIDs = append([]int64(nil), po.AlertIDs...)
	s.orders[po.ID] = stored
	return nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, id int64) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	po, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("purchase order %d: %w", id, repository.ErrNotFound)
	}
	return &po, nil
}

// SupplierAffinityRepository

func (s *Store) GetPrincipalSupplier(_ context.Context, productID int64) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.principal[productID]
	if !ok {
		return nil, fmt.Errorf("principal supplier for product %d: %w", productID, repository.ErrNotFound)
	}
	sup, ok := s.suppliers[id]
	if !ok {
		return nil, fmt.Errorf("supplier %d: %w", id, repository.ErrNotFound)
	}
	return &sup, nil
}
