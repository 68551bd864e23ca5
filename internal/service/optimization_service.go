package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresuchdata/autopo-replenish/internal/cache"
	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/inventory"
	"github.com/andresuchdata/autopo-replenish/internal/metrics"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/rs/zerolog/log"
)

// ErrMissingCostParameter is returned when a cost input is neither supplied
// nor configured on the product.
var ErrMissingCostParameter = errors.New("missing cost parameter")

const (
	defaultLeadTimeDays = 7
	defaultServiceLevel = 0.95
	stdDevLookbackDays  = 90
)

// OptimizeRequest carries per-call overrides. Nil fields fall back to the
// product configuration and then to service defaults. A zero ForecastID
// uses the product's latest forecast.
type OptimizeRequest struct {
	ProductID    int64
	ForecastID   int64
	Costs        domain.CostParameters
	ServiceLevel *float64
	DemandStdDev *float64
}

type OptimizationService struct {
	products      repository.ProductRepository
	demand        repository.DemandRepository
	forecasts     repository.ForecastRepository
	optimizations repository.OptimizationRepository
	optimizer     *inventory.Optimizer
	cache         cache.ForecastCache
	cfg           config.ForecastConfig
}

func NewOptimizationService(
	products repository.ProductRepository,
	demand repository.DemandRepository,
	forecasts repository.ForecastRepository,
	optimizations repository.OptimizationRepository,
	cacheImpl cache.ForecastCache,
	cfg config.ForecastConfig,
) *OptimizationService {
	if cacheImpl == nil {
		cacheImpl = cache.NewNoopForecastCache()
	}
	return &OptimizationService{
		products:      products,
		demand:        demand,
		forecasts:     forecasts,
		optimizations: optimizations,
		optimizer:     inventory.NewOptimizer(cfg.StdDevFallbackRatio),
		cache:         cacheImpl,
		cfg:           cfg,
	}
}

// Optimize derives and persists the replenishment policy for a product from
// one of its forecasts.
func (s *OptimizationService) Optimize(ctx context.Context, req OptimizeRequest) (*domain.OptimizationResult, error) {
	product, err := s.products.GetProduct(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownProduct, req.ProductID)
		}
		return nil, fmt.Errorf("failed to load product %d: %w", req.ProductID, err)
	}

	f, err := s.loadForecast(ctx, req)
	if err != nil {
		s.record("failure")
		return nil, err
	}
	if f.Horizon <= 0 || f.TotalDemand < 0 {
		s.record("failure")
		return nil, fmt.Errorf("%w: forecast %d has horizon %d and total %v",
			inventory.ErrInvalidDemand, f.ID, f.Horizon, f.TotalDemand)
	}

	in, err := s.resolveInput(ctx, product, f, req)
	if err != nil {
		s.record("failure")
		return nil, err
	}

	res, err := s.optimizer.Optimize(product.ID, in)
	if err != nil {
		s.record("failure")
		return nil, err
	}
	res.ForecastID = f.ID

	if err := s.optimizations.SaveOptimization(ctx, res); err != nil {
		s.record("failure")
		return nil, fmt.Errorf("failed to save optimization: %w", err)
	}
	if err := s.cache.SetOptimization(ctx, res); err != nil {
		log.Warn().Err(err).Int64("product_id", res.ProductID).Msg("optimization: cache set failed")
	}

	s.record("success")
	log.Info().
		Int64("product_id", res.ProductID).
		Int64("forecast_id", res.ForecastID).
		Int("eoq", res.EOQ).
		Int("rop", res.ROP).
		Int("safety_stock", res.SafetyStock).
		Msg("optimization computed")

	return res, nil
}

// GetLatestOptimization serves the cached result when present.
func (s *OptimizationService) GetLatestOptimization(ctx context.Context, productID int64) (*domain.OptimizationResult, error) {
	if r, ok, err := s.cache.GetOptimization(ctx, productID); err == nil && ok {
		return r, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("optimization: cache get failed")
	}

	r, err := s.optimizations.GetLatestOptimization(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetOptimization(ctx, r); err != nil {
		log.Warn().Err(err).Msg("optimization: cache set failed")
	}
	return r, nil
}

func (s *OptimizationService) loadForecast(ctx context.Context, req OptimizeRequest) (*domain.Forecast, error) {
	if req.ForecastID != 0 {
		f, err := s.forecasts.GetForecast(ctx, req.ForecastID)
		if err != nil {
			return nil, fmt.Errorf("failed to load forecast %d: %w", req.ForecastID, err)
		}
		if f.ProductID != req.ProductID {
			return nil, fmt.Errorf("forecast %d belongs to product %d: %w", f.ID, f.ProductID, repository.ErrNotFound)
		}
		return f, nil
	}
	f, err := s.forecasts.GetLatestForecast(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest forecast for product %d: %w", req.ProductID, err)
	}
	return f, nil
}

func (s *OptimizationService) resolveInput(ctx context.Context, product *domain.Product, f *domain.Forecast, req OptimizeRequest) (inventory.Input, error) {
	costPerOrder, err := pick("cost_per_order", req.Costs.CostPerOrder, product.CostPerOrder)
	if err != nil {
		return inventory.Input{}, err
	}
	holding, err := pick("holding_cost", req.Costs.HoldingCost, product.HoldingCost)
	if err != nil {
		return inventory.Input{}, err
	}
	unit, err := pick("unit_cost", req.Costs.UnitCost, product.UnitCost)
	if err != nil {
		return inventory.Input{}, err
	}

	serviceLevel := s.cfg.ServiceLevel
	if serviceLevel == 0 {
		serviceLevel = defaultServiceLevel
	}
	if req.ServiceLevel != nil {
		serviceLevel = *req.ServiceLevel
	}

	in := inventory.Input{
		TotalDemand:  f.TotalDemand,
		HorizonDays:  f.Horizon,
		LeadTimeDays: s.leadTime(ctx, product, req.Costs.LeadTimeDays),
		CostPerOrder: costPerOrder,
		HoldingCost:  holding,
		UnitCost:     unit,
		ServiceLevel: serviceLevel,
	}

	switch {
	case req.DemandStdDev != nil:
		in.DemandStdDev = req.DemandStdDev
	default:
		if sigma, ok := s.historicalStdDev(ctx, f); ok {
			in.DemandStdDev = &sigma
			in.StdDevFromHistory = true
		} else {
			log.Warn().
				Int64("product_id", product.ID).
				Float64("ratio", s.cfg.StdDevFallbackRatio).
				Msg("no demand history for variability, estimating from daily demand")
		}
	}
	return in, nil
}

// leadTime resolves request, then product, then default supplier, then the
// configured default.
func (s *OptimizationService) leadTime(ctx context.Context, product *domain.Product, override *int) int {
	if override != nil {
		return *override
	}
	if product.LeadTimeDays != nil {
		return *product.LeadTimeDays
	}
	if product.DefaultSupplierID != nil {
		supplier, err := s.products.GetSupplier(ctx, *product.DefaultSupplierID)
		switch {
		case err != nil:
			log.Warn().Err(err).Int64("supplier_id", *product.DefaultSupplierID).Msg("supplier lookup failed")
		case supplier.LeadTimeDays != nil:
			return *supplier.LeadTimeDays
		}
	}

	days := s.cfg.DefaultLeadTimeDays
	if days <= 0 {
		days = defaultLeadTimeDays
	}
	log.Warn().Int64("product_id", product.ID).Int("lead_time_days", days).Msg("lead time not configured, using default")
	return days
}

// historicalStdDev measures daily demand deviation over the lookback window
// ending where the forecast starts.
func (s *OptimizationService) historicalStdDev(ctx context.Context, f *domain.Forecast) (float64, bool) {
	to := f.PeriodStart
	from := to.AddDate(0, 0, -stdDevLookbackDays)
	agg, err := s.demand.GetDemandAggregate(ctx, f.ProductID, from, to)
	if err != nil {
		log.Warn().Err(err).Int64("product_id", f.ProductID).Msg("demand aggregate failed")
		return 0, false
	}
	if agg == nil || agg.Count < 2 {
		return 0, false
	}
	return agg.StdDev, true
}

func (s *OptimizationService) record(status string) {
	metrics.OptimizationsTotal.WithLabelValues(status).Inc()
}

func pick(name string, override, configured *float64) (float64, error) {
	if override != nil {
		return *override, nil
	}
	if configured != nil {
		return *configured, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrMissingCostParameter, name)
}
