// internal/api/handlers/po_handler.go
package handlers

import (
	"context"
	"net/http"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/pipeline"
	"github.com/andresuchdata/autopo-replenish/internal/service"
	"github.com/gin-gonic/gin"
)

// BatchRunner runs and looks up replenishment batches.
type BatchRunner interface {
	RunBatchPipeline(ctx context.Context, alertIDs []int64, horizon int) (*domain.BatchJobResult, error)
	GetRun(ctx context.Context, id string) (*pipeline.PipelineRun, error)
}

type POHandler struct {
	poService *service.POService
	batches   BatchRunner
}

func NewPOHandler(poService *service.POService, batches BatchRunner) *POHandler {
	return &POHandler{poService: poService, batches: batches}
}

type batchRequest struct {
	AlertIDs []int64 `json:"alert_ids" binding:"required,min=1"`
	Horizon  int     `json:"horizon" binding:"omitempty,min=1"`
}

// RunBatch forecasts, optimizes and orders for the products behind the
// given alerts. Item failures are reported in the body, not as an error.
func (h *POHandler) RunBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "alert_ids are required")
		return
	}

	res, err := h.batches.RunBatchPipeline(c.Request.Context(), req.AlertIDs, req.Horizon)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *POHandler) GetBatch(c *gin.Context) {
	run, err := h.batches.GetRun(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetPurchaseOrder returns a generated order with its lines.
func (h *POHandler) GetPurchaseOrder(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	po, err := h.poService.GetPurchaseOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"purchase_order": po,
		"status_label":   po.StatusLabel(),
	})
}
