package handlers

import (
	"net/http"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/service"
	"github.com/gin-gonic/gin"
)

type ForecastHandler struct {
	forecasts     *service.ForecastService
	optimizations *service.OptimizationService
}

func NewForecastHandler(forecasts *service.ForecastService, optimizations *service.OptimizationService) *ForecastHandler {
	return &ForecastHandler{forecasts: forecasts, optimizations: optimizations}
}

type runForecastRequest struct {
	Horizon     int    `json:"horizon"`
	Algorithm   string `json:"algorithm"`
	Seasonality bool   `json:"seasonality"`
}

// RunForecast forecasts one product. The body is optional.
func (h *ForecastHandler) RunForecast(c *gin.Context) {
	productID, ok := parseIDParam(c, "product_id")
	if !ok {
		return
	}

	var req runForecastRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	algorithm, valid := domain.ParseAlgorithm(req.Algorithm)
	if !valid {
		badRequest(c, "unknown algorithm "+req.Algorithm)
		return
	}

	f, err := h.forecasts.RunForecast(c.Request.Context(), service.ForecastRequest{
		ProductID:   productID,
		Horizon:     req.Horizon,
		Algorithm:   algorithm,
		Seasonality: req.Seasonality,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *ForecastHandler) GetLatestForecast(c *gin.Context) {
	productID, ok := parseIDParam(c, "product_id")
	if !ok {
		return
	}
	f, err := h.forecasts.GetLatestForecast(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

type optimizeRequest struct {
	ForecastID   int64    `json:"forecast_id"`
	CostPerOrder *float64 `json:"cost_per_order"`
	HoldingCost  *float64 `json:"holding_cost"`
	UnitCost     *float64 `json:"unit_cost"`
	LeadTimeDays *int     `json:"lead_time_days" binding:"omitempty,min=0"`
	ServiceLevel *float64 `json:"service_level" binding:"omitempty,gt=0,lt=1"`
	DemandStdDev *float64 `json:"demand_stddev" binding:"omitempty,min=0"`
}

// Optimize derives EOQ, safety stock and reorder point for one product.
func (h *ForecastHandler) Optimize(c *gin.Context) {
	productID, ok := parseIDParam(c, "product_id")
	if !ok {
		return
	}

	var req optimizeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	res, err := h.optimizations.Optimize(c.Request.Context(), service.OptimizeRequest{
		ProductID:  productID,
		ForecastID: req.ForecastID,
		Costs: domain.CostParameters{
			CostPerOrder: req.CostPerOrder,
			HoldingCost:  req.HoldingCost,
			UnitCost:     req.UnitCost,
			LeadTimeDays: req.LeadTimeDays,
		},
		ServiceLevel: req.ServiceLevel,
		DemandStdDev: req.DemandStdDev,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ForecastHandler) GetLatestOptimization(c *gin.Context) {
	productID, ok := parseIDParam(c, "product_id")
	if !ok {
		return
	}
	res, err := h.optimizations.GetLatestOptimization(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
