package pipeline

import (
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// Batch phases, in execution order.
const (
	PhaseForecast       = "forecast"
	PhaseOptimize       = "optimize"
	PhasePurchaseOrders = "purchase_orders"
	PhaseBatch          = "batch"
)

// PipelineConfig holds configuration for a batch pipeline instance
type PipelineConfig struct {
	WorkerCount    int // Number of concurrent workers per phase
	DefaultHorizon int // Horizon used when a batch request names none
}

// DefaultPipelineConfig returns sensible defaults
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		WorkerCount:    5,
		DefaultHorizon: 30,
	}
}

// PipelineStatus represents the current state of a batch run
type PipelineStatus string

const (
	StatusPending    PipelineStatus = "pending"
	StatusProcessing PipelineStatus = "processing"
	StatusCompleted  PipelineStatus = "completed"
	StatusPartial    PipelineStatus = "partial"
	StatusFailed     PipelineStatus = "failed"
)

// PipelineRun tracks a single batch execution
type PipelineRun struct {
	ID             string
	Status         PipelineStatus
	AlertCount     int
	Horizon        int
	TotalItems     int
	SucceededItems int
	FailedItems    int
	Result         *domain.BatchJobResult
	StartedAt      time.Time
	CompletedAt    *time.Time
	ErrorMessage   string
}

// ProgressFunc observes batch progress. Calls for a run are serialized.
type ProgressFunc func(phase string, done, total int)
