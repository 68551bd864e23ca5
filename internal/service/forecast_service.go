package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/cache"
	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/forecast"
	"github.com/andresuchdata/autopo-replenish/internal/metrics"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/rs/zerolog/log"
)

// ErrUnknownProduct is returned when the requested product does not exist.
var ErrUnknownProduct = errors.New("unknown product")

// ForecastRequest describes a single-product forecast run. A zero Horizon
// uses the configured default and an empty Algorithm means AUTO.
type ForecastRequest struct {
	ProductID   int64
	Horizon     int
	Algorithm   domain.Algorithm
	Seasonality bool
}

type ForecastService struct {
	products    repository.ProductRepository
	demand      repository.DemandRepository
	forecasts   repository.ForecastRepository
	seasonality repository.SeasonalityRepository
	engine      *forecast.Engine
	cache       cache.ForecastCache
	cfg         config.ForecastConfig
	now         func() time.Time
}

func NewForecastService(
	products repository.ProductRepository,
	demand repository.DemandRepository,
	forecasts repository.ForecastRepository,
	seasonality repository.SeasonalityRepository,
	params repository.HyperParameterRepository,
	cacheImpl cache.ForecastCache,
	cfg config.ForecastConfig,
) *ForecastService {
	if cacheImpl == nil {
		cacheImpl = cache.NewNoopForecastCache()
	}
	return &ForecastService{
		products:    products,
		demand:      demand,
		forecasts:   forecasts,
		seasonality: seasonality,
		engine:      forecast.NewEngine(params),
		cache:       cacheImpl,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RunForecast loads the product's history, preprocesses it, picks or honours
// an algorithm, forecasts the horizon in days and persists the result.
func (s *ForecastService) RunForecast(ctx context.Context, req ForecastRequest) (*domain.Forecast, error) {
	started := time.Now()

	horizon := req.Horizon
	if horizon == 0 {
		horizon = s.cfg.DefaultHorizon
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("%w: %d", forecast.ErrInvalidHorizon, horizon)
	}
	algorithm := req.Algorithm
	if algorithm == "" {
		algorithm = domain.AlgorithmAuto
	}

	if _, err := s.products.GetProduct(ctx, req.ProductID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownProduct, req.ProductID)
		}
		return nil, fmt.Errorf("failed to load product %d: %w", req.ProductID, err)
	}

	history, err := s.demand.GetDemandHistory(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to load demand history: %w", err)
	}
	if len(history) == 0 {
		s.recordFailure(algorithm)
		return nil, fmt.Errorf("%w: product %d has no demand observations", forecast.ErrInsufficientHistory, req.ProductID)
	}

	series := make([]float64, len(history))
	for i, obs := range history {
		series[i] = obs.Quantity
	}
	pre := forecast.Preprocess(series)

	justification := ""
	if algorithm == domain.AlgorithmAuto {
		sel := forecast.Select(pre.Series)
		algorithm = sel.Algorithm
		justification = sel.Justification
	} else {
		f := forecast.ExtractFeatures(pre.Series)
		justification = fmt.Sprintf("%s: requested by caller (cv=%.3f, acf1=%.3f, acf7=%.3f, n=%d)",
			algorithm, f.CoefficientOfVariation, f.AutocorrelationLag1, f.AutocorrelationLag7, f.Length)
	}

	res, err := s.engine.Run(ctx, pre.Series, algorithm, forecast.PeriodsFor(horizon, pre.PeriodDays))
	if err != nil {
		s.recordFailure(algorithm)
		return nil, err
	}
	daily := forecast.ExpandPeriods(res.Values, pre.PeriodDays, horizon)

	start := truncateDay(history[len(history)-1].Date).AddDate(0, 0, 1)

	var profile *domain.SeasonalityProfile
	if req.Seasonality && s.seasonality != nil {
		profile, err = s.seasonality.GetActiveProfile(ctx, req.ProductID)
		if err != nil {
			s.recordFailure(algorithm)
			return nil, fmt.Errorf("failed to load seasonality profile: %w", err)
		}
	}
	adjusted := forecast.AdjustSeasonality(daily, start, profile, req.Seasonality)

	preprocessing := pre.Describe()
	if pre.PeriodDays > 1 {
		preprocessing = fmt.Sprintf("%s; forecast %d weekly periods expanded to %d days", preprocessing, len(res.Values), horizon)
	}
	if len(res.Notes) > 0 {
		justification = fmt.Sprintf("%s [%s]", justification, strings.Join(res.Notes, "; "))
	}

	f := &domain.Forecast{
		ProductID:          req.ProductID,
		Algorithm:          algorithm,
		Horizon:            horizon,
		Values:             adjusted.Values,
		PeriodStart:        start,
		TotalDemand:        adjusted.Total,
		RMSE:               floatPtr(res.Metrics.RMSE),
		MAE:                floatPtr(res.Metrics.MAE),
		MAPE:               floatPtr(res.Metrics.MAPE),
		Confidence:         res.Confidence,
		Quality:            res.Quality,
		MetricsSource:      res.MetricsSource,
		Justification:      justification,
		Preprocessing:      preprocessing,
		SeasonallyAdjusted: adjusted.Applied,
		GeneratedAt:        s.now(),
	}

	if err := s.forecasts.UpsertForecast(ctx, f, s.cfg.Retention); err != nil {
		s.recordFailure(algorithm)
		return nil, fmt.Errorf("failed to save forecast: %w", err)
	}

	if err := s.cache.Invalidate(ctx, f.ProductID); err != nil {
		log.Warn().Err(err).Int64("product_id", f.ProductID).Msg("forecast: cache invalidate failed")
	}
	if err := s.cache.SetForecast(ctx, f); err != nil {
		log.Warn().Err(err).Int64("product_id", f.ProductID).Msg("forecast: cache set failed")
	}

	metrics.ForecastRunsTotal.WithLabelValues(string(algorithm), "success").Inc()
	metrics.ForecastDuration.WithLabelValues(string(algorithm)).Observe(time.Since(started).Seconds())

	log.Info().
		Int64("product_id", f.ProductID).
		Str("algorithm", string(algorithm)).
		Int("horizon", horizon).
		Float64("total_demand", f.TotalDemand).
		Str("quality", string(f.Quality)).
		Msg("forecast generated")

	return f, nil
}

// GetLatestForecast serves the cached forecast when present.
func (s *ForecastService) GetLatestForecast(ctx context.Context, productID int64) (*domain.Forecast, error) {
	if f, ok, err := s.cache.GetForecast(ctx, productID); err == nil && ok {
		return f, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("forecast: cache get failed")
	}

	f, err := s.forecasts.GetLatestForecast(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetForecast(ctx, f); err != nil {
		log.Warn().Err(err).Msg("forecast: cache set failed")
	}
	return f, nil
}

func (s *ForecastService) recordFailure(algorithm domain.Algorithm) {
	metrics.ForecastRunsTotal.WithLabelValues(string(algorithm), "failure").Inc()
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func floatPtr(v float64) *float64 {
	return &v
}
