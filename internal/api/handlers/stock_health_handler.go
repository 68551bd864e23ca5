package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/andresuchdata/autopo-replenish/internal/alert"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/andresuchdata/autopo-replenish/internal/service"
	"github.com/gin-gonic/gin"
)

const healthyCondition = "HEALTHY"

// ScanTrigger runs one stock scan on demand.
type ScanTrigger interface {
	RunOnce(ctx context.Context) (*service.ScanResult, error)
}

type StockHealthHandler struct {
	products repository.ProductRepository
	scanner  ScanTrigger
}

func NewStockHealthHandler(products repository.ProductRepository, scanner ScanTrigger) *StockHealthHandler {
	return &StockHealthHandler{products: products, scanner: scanner}
}

type stockHealthItem struct {
	domain.StockLevel
	Condition         string `json:"condition"`
	SuggestedQuantity int    `json:"suggested_quantity"`
}

// GetStockHealth classifies every product on the alert severity ladder.
// ?condition=CRITICAL,HIGH narrows the item list; the summary always
// counts every product.
func (h *StockHealthHandler) GetStockHealth(c *gin.Context) {
	levels, err := h.products.ListStockLevels(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	wanted := map[string]bool{}
	for _, raw := range c.QueryArray("condition") {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
				wanted[part] = true
			}
		}
	}

	summary := map[string]int{
		string(domain.SeverityCritical): 0,
		string(domain.SeverityHigh):     0,
		string(domain.SeverityMedium):   0,
		string(domain.SeverityLow):      0,
		healthyCondition:                0,
	}
	items := make([]stockHealthItem, 0, len(levels))
	for _, level := range levels {
		item := stockHealthItem{StockLevel: level, Condition: healthyCondition}
		if cond, flagged := alert.EvaluateStock(level); flagged {
			item.Condition = string(cond.Severity)
			item.SuggestedQuantity = cond.SuggestedQuantity
		}
		summary[item.Condition]++
		if len(wanted) == 0 || wanted[item.Condition] {
			items = append(items, item)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"summary": summary,
		"items":   items,
	})
}

// TriggerScan runs the scheduled scan immediately.
func (h *StockHealthHandler) TriggerScan(c *gin.Context) {
	res, err := h.scanner.RunOnce(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
