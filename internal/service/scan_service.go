package service

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/alert"
	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/metrics"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const defaultValidityDays = 7

// BatchRunner runs the forecast, optimize and purchase-order chain for a set
// of alerts.
type BatchRunner interface {
	RunBatchPipeline(ctx context.Context, alertIDs []int64, horizon int) (*domain.BatchJobResult, error)
}

// ScanResult summarises one scheduled scan.
type ScanResult struct {
	RunID          string                 `json:"run_id"`
	Scanned        int                    `json:"scanned"`
	Created        int                    `json:"created"`
	Updated        int                    `json:"updated"`
	Suppressed     int                    `json:"suppressed"`
	StaleForecasts int                    `json:"stale_forecasts"`
	PendingAlerts  []int64                `json:"pending_alerts"`
	Errors         []string               `json:"errors,omitempty"`
	Batch          *domain.BatchJobResult `json:"batch,omitempty"`
	StartedAt      time.Time              `json:"started_at"`
	FinishedAt     time.Time              `json:"finished_at"`
}

func (r *ScanResult) count(o alert.Outcome) {
	switch o {
	case alert.OutcomeCreated:
		r.Created++
	case alert.OutcomeUpdated:
		r.Updated++
	case alert.OutcomeSuppressed:
		r.Suppressed++
	}
}

type ScanService struct {
	manager   *alert.Manager
	products  repository.ProductRepository
	forecasts repository.ForecastRepository
	runner    BatchRunner
	cfg       config.ForecastConfig
	autoBatch bool
	now       func() time.Time
}

// NewScanService wires the scan. runner may be nil, which disables
// auto-batching regardless of autoBatch.
func NewScanService(
	manager *alert.Manager,
	products repository.ProductRepository,
	forecasts repository.ForecastRepository,
	runner BatchRunner,
	cfg config.ForecastConfig,
	autoBatch bool,
) *ScanService {
	return &ScanService{
		manager:   manager,
		products:  products,
		forecasts: forecasts,
		runner:    runner,
		cfg:       cfg,
		autoBatch: autoBatch,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RunScheduledScan evaluates every stock level and flags products whose
// newest forecast is older than the validity window. Per-product failures
// are collected; only a failed listing aborts the scan.
func (s *ScanService) RunScheduledScan(ctx context.Context) (*ScanResult, error) {
	res := &ScanResult{RunID: uuid.NewString(), StartedAt: time.Now()}
	logger := log.With().Str("run_id", res.RunID).Logger()

	levels, err := s.products.ListStockLevels(ctx)
	if err != nil {
		metrics.ScanRunsTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("failed to list stock levels: %w", err)
	}
	res.Scanned = len(levels)

	for _, level := range levels {
		a, outcome, err := s.manager.CheckStock(ctx, level)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("product %d: %v", level.ProductID, err))
			continue
		}
		res.count(outcome)
		if a != nil && outcome != alert.OutcomeSuppressed && a.State == domain.AlertPending {
			res.PendingAlerts = append(res.PendingAlerts, a.ID)
		}
	}

	validity := s.cfg.ValidityDays
	if validity <= 0 {
		validity = defaultValidityDays
	}
	cutoff := s.now().AddDate(0, 0, -validity)
	stale, err := s.forecasts.ListStaleForecasts(ctx, cutoff)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("stale forecasts: %v", err))
	}
	for _, f := range stale {
		_, outcome, err := s.manager.Raise(ctx, alert.Condition{
			ProductID: f.ProductID,
			Type:      domain.AlertForecastStale,
			Severity:  domain.SeverityLow,
			Message: fmt.Sprintf("Latest forecast for product %d was generated %s, older than %d days",
				f.ProductID, f.GeneratedAt.Format(time.RFC3339), validity),
		})
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("product %d: %v", f.ProductID, err))
			continue
		}
		res.StaleForecasts++
		res.count(outcome)
	}

	if s.autoBatch && s.runner != nil && len(res.PendingAlerts) > 0 {
		batch, err := s.runner.RunBatchPipeline(ctx, res.PendingAlerts, s.cfg.DefaultHorizon)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("auto batch: %v", err))
		}
		res.Batch = batch
	}

	res.FinishedAt = time.Now()
	status := "success"
	if len(res.Errors) > 0 {
		status = "partial"
	}
	metrics.ScanRunsTotal.WithLabelValues(status).Inc()

	logger.Info().
		Int("scanned", res.Scanned).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("suppressed", res.Suppressed).
		Int("stale_forecasts", res.StaleForecasts).
		Int("errors", len(res.Errors)).
		Dur("took", res.FinishedAt.Sub(res.StartedAt)).
		Msg("scheduled scan complete")

	return res, nil
}
