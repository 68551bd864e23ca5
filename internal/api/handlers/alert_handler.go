package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/andresuchdata/autopo-replenish/internal/alert"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/gin-gonic/gin"
)

const defaultAlertListLimit = 100

type AlertHandler struct {
	manager *alert.Manager
	alerts  repository.AlertRepository
}

func NewAlertHandler(manager *alert.Manager, alerts repository.AlertRepository) *AlertHandler {
	return &AlertHandler{manager: manager, alerts: alerts}
}

// ListAlerts returns the newest alerts, optionally filtered by ?state=.
func (h *AlertHandler) ListAlerts(c *gin.Context) {
	var state domain.AlertState
	if raw := strings.TrimSpace(c.Query("state")); raw != "" {
		parsed, ok := domain.ParseAlertState(raw)
		if !ok {
			badRequest(c, "unknown alert state "+raw)
			return
		}
		state = parsed
	}
	limit := parsePositiveIntWithDefault(c.Query("limit"), defaultAlertListLimit)

	alerts, err := h.alerts.ListAlerts(c.Request.Context(), state, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if alerts == nil {
		alerts = []*domain.Alert{}
	}
	c.JSON(http.StatusOK, alerts)
}

func (h *AlertHandler) GetAlert(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	a, err := h.alerts.GetAlert(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

type assignRequest struct {
	User string `json:"user" binding:"required"`
}

func (h *AlertHandler) Assign(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "user is required")
		return
	}
	a, err := h.manager.Assign(c.Request.Context(), id, strings.TrimSpace(req.User))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

type closeRequest struct {
	Note string `json:"note"`
}

func (h *AlertHandler) Resolve(c *gin.Context) {
	h.close(c, h.manager.Resolve)
}

func (h *AlertHandler) Ignore(c *gin.Context) {
	h.close(c, h.manager.Ignore)
}

func (h *AlertHandler) close(c *gin.Context, fn func(ctx context.Context, id int64, note string) (*domain.Alert, error)) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req closeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	a, err := fn(c.Request.Context(), id, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

type bulkCloseRequest struct {
	IDs  []int64 `json:"ids" binding:"required,min=1"`
	Note string  `json:"note"`
}

// ResolveMany closes each alert independently and reports per-id outcomes.
func (h *AlertHandler) ResolveMany(c *gin.Context) {
	var req bulkCloseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "ids are required")
		return
	}
	c.JSON(http.StatusOK, h.manager.ResolveMany(c.Request.Context(), req.IDs, req.Note))
}

func (h *AlertHandler) IgnoreMany(c *gin.Context) {
	var req bulkCloseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "ids are required")
		return
	}
	c.JSON(http.StatusOK, h.manager.IgnoreMany(c.Request.Context(), req.IDs, req.Note))
}
