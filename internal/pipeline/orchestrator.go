package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/alert"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/events"
	"github.com/andresuchdata/autopo-replenish/internal/metrics"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/andresuchdata/autopo-replenish/internal/service"
	"github.com/andresuchdata/autopo-replenish/internal/tracing"
	"github.com/andresuchdata/autopo-replenish/pkg/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrEmptyBatch is returned when a batch names no alerts.
	ErrEmptyBatch = errors.New("batch has no alerts")
	// ErrNothingToProcess is returned when none of the batch's alerts can be
	// turned into a product to replenish.
	ErrNothingToProcess = errors.New("no open alerts in batch")
)

// Dependencies wires the services a batch run drives.
type Dependencies struct {
	Alerts        repository.AlertRepository
	Manager       *alert.Manager
	Forecasts     *service.ForecastService
	Optimizations *service.OptimizationService
	Orders        *service.POService
	Runs          RunStore // optional
	Publisher     events.Publisher
}

// Orchestrator runs the forecast, optimize and purchase-order phases over
// the products behind a set of alerts.
type Orchestrator struct {
	deps     Dependencies
	cfg      PipelineConfig
	pool     *Pool
	progress ProgressFunc
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(deps Dependencies, cfg PipelineConfig) *Orchestrator {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = DefaultPipelineConfig().WorkerCount
	}
	if cfg.DefaultHorizon < 1 {
		cfg.DefaultHorizon = DefaultPipelineConfig().DefaultHorizon
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NewNoopPublisher()
	}
	return &Orchestrator{
		deps: deps,
		cfg:  cfg,
		pool: NewPool(cfg.WorkerCount),
	}
}

// OnProgress registers a progress observer.
func (o *Orchestrator) OnProgress(fn ProgressFunc) {
	o.progress = fn
}

// GetRun returns a recorded batch run.
func (o *Orchestrator) GetRun(ctx context.Context, id string) (*PipelineRun, error) {
	if o.deps.Runs == nil {
		return nil, repository.ErrNotFound
	}
	return o.deps.Runs.GetPipelineRun(ctx, id)
}

// RunBatchPipeline replenishes the products behind alertIDs. Items fail
// independently: a product that fails in one phase is skipped by the later
// ones while the rest of the batch carries on. A started batch always runs to
// completion, even if ctx is cancelled.
func (o *Orchestrator) RunBatchPipeline(ctx context.Context, alertIDs []int64, horizon int) (*domain.BatchJobResult, error) {
	ctx = context.WithoutCancel(ctx)
	if len(alertIDs) == 0 {
		return nil, ErrEmptyBatch
	}
	if horizon <= 0 {
		horizon = o.cfg.DefaultHorizon
	}

	runID := uuid.NewString()
	runLog := logger.WithRun(runID)
	ctx, span := tracing.StartSpan(ctx, "pipeline.RunBatchPipeline",
		attribute.String("run_id", runID),
		attribute.Int("alerts", len(alertIDs)),
		attribute.Int("horizon", horizon),
	)

	result := &domain.BatchJobResult{RunID: runID, Phase: PhaseBatch, StartedAt: time.Now()}

	candidates, unresolved := o.collectCandidates(ctx, alertIDs)
	if len(candidates) == 0 {
		err := fmt.Errorf("%w: %d alert ids given", ErrNothingToProcess, len(alertIDs))
		tracing.EndSpan(span, err)
		return nil, err
	}

	run := o.startRun(ctx, runID, len(alertIDs), horizon, result.StartedAt)

	runLog.Info().
		Int("alerts", len(alertIDs)).
		Int("products", len(candidates)).
		Int("unresolved", len(unresolved)).
		Msg("batch run started")

	productIDs := make([]int64, len(candidates))
	byProduct := make(map[int64]service.POCandidate, len(candidates))
	for i, c := range candidates {
		productIDs[i] = c.ProductID
		byProduct[c.ProductID] = c
	}

	// Forecast
	forecastIDs := make(map[int64]int64, len(productIDs))
	var forecastMu sync.Mutex
	forecasted, forecastRes := o.runPhase(ctx, runID, PhaseForecast, productIDs, func(ctx context.Context, productID int64) (string, error) {
		f, err := o.deps.Forecasts.RunForecast(ctx, service.ForecastRequest{
			ProductID: productID,
			Horizon:   horizon,
			Algorithm: domain.AlgorithmAuto,
		})
		if err != nil {
			return "", err
		}
		forecastMu.Lock()
		forecastIDs[productID] = f.ID
		forecastMu.Unlock()
		return strconv.FormatInt(f.ID, 10), nil
	})

	// Optimize
	optimized, optimizeRes := o.runPhase(ctx, runID, PhaseOptimize, forecasted, func(ctx context.Context, productID int64) (string, error) {
		forecastMu.Lock()
		forecastID := forecastIDs[productID]
		forecastMu.Unlock()
		r, err := o.deps.Optimizations.Optimize(ctx, service.OptimizeRequest{
			ProductID:  productID,
			ForecastID: forecastID,
		})
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(r.ID, 10), nil
	})

	// Purchase orders
	poCandidates := make([]service.POCandidate, len(optimized))
	for i, id := range optimized {
		poCandidates[i] = byProduct[id]
	}
	poRes := o.purchaseOrderPhase(ctx, runID, poCandidates)

	result.Phases = []*domain.BatchJobResult{forecastRes, optimizeRes, poRes}
	result.TotalItems = len(candidates) + len(unresolved)
	result.SucceededIDs = append(result.SucceededIDs, poRes.SucceededIDs...)
	for _, u := range unresolved {
		result.FailedIDs = append(result.FailedIDs, u.id)
		result.ErrorMessages = append(result.ErrorMessages, u.reason)
	}
	for _, phase := range result.Phases {
		result.FailedIDs = append(result.FailedIDs, phase.FailedIDs...)
		result.ErrorMessages = append(result.ErrorMessages, phase.ErrorMessages...)
		result.GeneratedIDs = append(result.GeneratedIDs, phase.GeneratedIDs...)
	}
	result.Finish()

	o.finishRun(ctx, run, result)
	o.publishCompleted(ctx, result)

	runLog.Info().
		Int("total", result.TotalItems).
		Int("succeeded", result.SucceededCount()).
		Int("failed", result.FailedCount()).
		Int64("duration_ms", result.DurationMs).
		Msg("batch run finished")

	span.SetAttributes(
		attribute.Int("succeeded", result.SucceededCount()),
		attribute.Int("failed", result.FailedCount()),
	)
	tracing.EndSpan(span, nil)
	return result, nil
}

type unresolvedAlert struct {
	id     string
	reason string
}

// collectCandidates loads the alerts and folds them into one candidate per
// product, keeping the first-seen product order and the largest suggestion.
func (o *Orchestrator) collectCandidates(ctx context.Context, alertIDs []int64) ([]service.POCandidate, []unresolvedAlert) {
	seen := make(map[int64]bool, len(alertIDs))
	index := make(map[int64]int)
	var (
		candidates []service.POCandidate
		unresolved []unresolvedAlert
	)

	for _, id := range alertIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		a, err := o.deps.Alerts.GetAlert(ctx, id)
		if err != nil {
			unresolved = append(unresolved, unresolvedAlert{
				id:     fmt.Sprintf("alert:%d", id),
				reason: fmt.Sprintf("alert %d: %v", id, err),
			})
			continue
		}
		if a.State.Terminal() {
			unresolved = append(unresolved, unresolvedAlert{
				id:     fmt.Sprintf("alert:%d", id),
				reason: fmt.Sprintf("alert %d: already %s", id, a.State),
			})
			continue
		}

		i, ok := index[a.ProductID]
		if !ok {
			index[a.ProductID] = len(candidates)
			candidates = append(candidates, service.POCandidate{ProductID: a.ProductID})
			i = len(candidates) - 1
		}
		c := &candidates[i]
		c.AlertIDs = append(c.AlertIDs, a.ID)
		if a.SuggestedQuantity > c.SuggestedQuantity {
			c.SuggestedQuantity = a.SuggestedQuantity
		}
	}

	return candidates, unresolved
}

// runPhase applies fn to every product on the pool and returns the products
// that succeeded, in input order.
func (o *Orchestrator) runPhase(
	ctx context.Context,
	runID, phase string,
	productIDs []int64,
	fn func(ctx context.Context, productID int64) (string, error),
) ([]int64, *domain.BatchJobResult) {
	ctx, span := tracing.StartSpan(ctx, "pipeline."+phase, attribute.Int("items", len(productIDs)))
	res := &domain.BatchJobResult{RunID: runID, Phase: phase, TotalItems: len(productIDs), StartedAt: time.Now()}
	generated := make([]string, len(productIDs))

	done := 0
	errs := o.pool.Run(ctx, len(productIDs), func(ctx context.Context, i int) error {
		id, err := fn(ctx, productIDs[i])
		generated[i] = id
		return err
	}, func(i int, err error) {
		done++
		o.report(phase, done, len(productIDs))
	})

	var succeeded []int64
	for i, err := range errs {
		productID := productIDs[i]
		if err != nil {
			res.FailedIDs = append(res.FailedIDs, strconv.FormatInt(productID, 10))
			res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("%s product %d: %v", phase, productID, err))
			logger.WithRun(runID).Warn().Err(err).Str("phase", phase).Int64("product_id", productID).Msg("batch item failed")
			continue
		}
		succeeded = append(succeeded, productID)
		res.SucceededIDs = append(res.SucceededIDs, strconv.FormatInt(productID, 10))
		if generated[i] != "" {
			res.GeneratedIDs = append(res.GeneratedIDs, generated[i])
		}
	}

	o.closePhase(res)
	tracing.EndSpan(span, nil)
	return succeeded, res
}

// purchaseOrderPhase plans one line per product, orders one PO per supplier
// and resolves the alerts each PO covers.
func (o *Orchestrator) purchaseOrderPhase(ctx context.Context, runID string, candidates []service.POCandidate) *domain.BatchJobResult {
	ctx, span := tracing.StartSpan(ctx, "pipeline."+PhasePurchaseOrders, attribute.Int("items", len(candidates)))
	runLog := logger.WithRun(runID)
	res := &domain.BatchJobResult{RunID: runID, Phase: PhasePurchaseOrders, TotalItems: len(candidates), StartedAt: time.Now()}

	planned := make([]*service.PlannedLine, len(candidates))
	planErrs := o.pool.Run(ctx, len(candidates), func(ctx context.Context, i int) error {
		line, err := o.deps.Orders.PlanLine(ctx, candidates[i])
		planned[i] = line
		return err
	}, nil)

	var lines []*service.PlannedLine
	for i, err := range planErrs {
		if err != nil {
			o.failItem(res, candidates[i].ProductID, err)
			continue
		}
		lines = append(lines, planned[i])
	}

	groups := service.GroupBySupplier(lines)
	orders := make([]*domain.PurchaseOrder, len(groups))
	resolveNotes := make([][]string, len(groups))
	done := 0
	orderErrs := o.pool.Run(ctx, len(groups), func(ctx context.Context, i int) error {
		po, err := o.deps.Orders.CreateOrder(ctx, groups[i])
		if err != nil {
			return err
		}
		orders[i] = po

		if len(po.AlertIDs) > 0 {
			closed := o.deps.Manager.ResolveMany(ctx, po.AlertIDs, fmt.Sprintf("Purchase order %s created", po.Number))
			resolveNotes[i] = closed.ErrorMessages
		}
		return nil
	}, func(i int, err error) {
		done++
		o.report(PhasePurchaseOrders, done, len(groups))
	})

	var created []*domain.PurchaseOrder
	for i, g := range groups {
		if err := orderErrs[i]; err != nil {
			for _, productID := range g.ProductIDs() {
				o.failItem(res, productID, err)
			}
			continue
		}
		created = append(created, orders[i])
		res.GeneratedIDs = append(res.GeneratedIDs, orders[i].Number)
		for _, productID := range g.ProductIDs() {
			res.SucceededIDs = append(res.SucceededIDs, strconv.FormatInt(productID, 10))
		}
		for _, note := range resolveNotes[i] {
			res.ErrorMessages = append(res.ErrorMessages, "resolve "+note)
		}
	}

	if len(created) > 0 {
		path, err := o.deps.Orders.Export(ctx, runID, created)
		if err != nil {
			res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("export: %v", err))
			runLog.Error().Err(err).Msg("purchase order export failed")
		} else if path != "" {
			runLog.Info().Str("path", path).Int("orders", len(created)).Msg("purchase orders exported")
		}
	}

	o.closePhase(res)
	tracing.EndSpan(span, nil)
	return res
}

func (o *Orchestrator) failItem(res *domain.BatchJobResult, productID int64, err error) {
	res.FailedIDs = append(res.FailedIDs, strconv.FormatInt(productID, 10))
	res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("%s product %d: %v", res.Phase, productID, err))
	logger.WithRun(res.RunID).Warn().Err(err).Str("phase", res.Phase).Int64("product_id", productID).Msg("batch item failed")
}

func (o *Orchestrator) closePhase(res *domain.BatchJobResult) {
	res.Finish()
	metrics.BatchItemsTotal.WithLabelValues(res.Phase, "success").Add(float64(res.SucceededCount()))
	metrics.BatchItemsTotal.WithLabelValues(res.Phase, "failure").Add(float64(res.FailedCount()))
	metrics.BatchPhaseDuration.WithLabelValues(res.Phase).Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
}

func (o *Orchestrator) report(phase string, done, total int) {
	if o.progress != nil {
		o.progress(phase, done, total)
	}
}

func (o *Orchestrator) startRun(ctx context.Context, runID string, alertCount, horizon int, startedAt time.Time) *PipelineRun {
	run := &PipelineRun{
		ID:         runID,
		Status:     StatusProcessing,
		AlertCount: alertCount,
		Horizon:    horizon,
		StartedAt:  startedAt,
	}
	if o.deps.Runs == nil {
		return run
	}
	if err := o.deps.Runs.CreatePipelineRun(ctx, run); err != nil {
		logger.WithRun(runID).Error().Err(err).Msg("failed to record batch run")
	}
	return run
}

func (o *Orchestrator) finishRun(ctx context.Context, run *PipelineRun, result *domain.BatchJobResult) {
	run.TotalItems = result.TotalItems
	run.SucceededItems = result.SucceededCount()
	run.FailedItems = result.FailedCount()
	run.Result = result
	run.CompletedAt = &result.FinishedAt
	switch {
	case run.FailedItems == 0:
		run.Status = StatusCompleted
	case run.SucceededItems == 0:
		run.Status = StatusFailed
		run.ErrorMessage = fmt.Sprintf("all %d items failed", run.FailedItems)
	default:
		run.Status = StatusPartial
	}

	if o.deps.Runs == nil {
		return
	}
	if err := o.deps.Runs.UpdatePipelineRun(ctx, run); err != nil {
		logger.WithRun(run.ID).Error().Err(err).Msg("failed to update batch run")
	}
}

func (o *Orchestrator) publishCompleted(ctx context.Context, result *domain.BatchJobResult) {
	err := o.deps.Publisher.Publish(ctx, events.Event{
		Type:  events.BatchCompleted,
		RunID: result.RunID,
		Payload: map[string]any{
			"total":         result.TotalItems,
			"succeeded":     result.SucceededCount(),
			"failed":        result.FailedCount(),
			"generated_ids": result.GeneratedIDs,
		},
	})
	if err != nil {
		logger.WithRun(result.RunID).Warn().Err(err).Msg("failed to publish batch event")
	}
}
