package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/andresuchdata/autopo-replenish/internal/alert"
	"github.com/andresuchdata/autopo-replenish/internal/forecast"
	"github.com/andresuchdata/autopo-replenish/internal/inventory"
	"github.com/andresuchdata/autopo-replenish/internal/pipeline"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/andresuchdata/autopo-replenish/internal/scheduler"
	"github.com/andresuchdata/autopo-replenish/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrUnknownProduct):
		return http.StatusNotFound
	case errors.Is(err, alert.ErrInvalidTransition),
		errors.Is(err, scheduler.ErrSkipped):
		return http.StatusConflict
	case errors.Is(err, forecast.ErrInsufficientHistory),
		errors.Is(err, service.ErrMissingCostParameter),
		errors.Is(err, service.ErrNoSupplier),
		errors.Is(err, inventory.ErrNonPositiveCost),
		errors.Is(err, inventory.ErrInvalidDemand),
		errors.Is(err, pipeline.ErrNothingToProcess):
		return http.StatusUnprocessableEntity
	case errors.Is(err, forecast.ErrInvalidHorizon),
		errors.Is(err, forecast.ErrUnknownAlgorithm),
		errors.Is(err, inventory.ErrInvalidServiceLevel),
		errors.Is(err, pipeline.ErrEmptyBatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func parsePositiveIntWithDefault(value string, fallback int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && v > 0 {
		return v
	}
	return fallback
}
