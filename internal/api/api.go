// internal/api/api.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/alert"
	"github.com/andresuchdata/autopo-replenish/internal/api/handlers"
	"github.com/andresuchdata/autopo-replenish/internal/api/middleware"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/andresuchdata/autopo-replenish/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Services struct {
	Products            repository.ProductRepository
	Alerts              repository.AlertRepository
	AlertManager        *alert.Manager
	ForecastService     *service.ForecastService
	OptimizationService *service.OptimizationService
	POService           *service.POService
	Batches             handlers.BatchRunner
	Scanner             handlers.ScanTrigger
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	// Add middleware
	router.Use(middleware.Recovery())
	router.Use(middleware.Tracing())
	router.Use(middleware.Logger())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "traceparent"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := router.Group("/api/v1")

	if services == nil {
		return router
	}

	if services.ForecastService != nil && services.OptimizationService != nil {
		forecastHandler := handlers.NewForecastHandler(services.ForecastService, services.OptimizationService)
		productGroup := apiGroup.Group("/products/:product_id")
		{
			productGroup.POST("/forecast", forecastHandler.RunForecast)
			productGroup.GET("/forecast", forecastHandler.GetLatestForecast)
			productGroup.POST("/optimization", forecastHandler.Optimize)
			productGroup.GET("/optimization", forecastHandler.GetLatestOptimization)
		}
	}

	if services.AlertManager != nil && services.Alerts != nil {
		alertHandler := handlers.NewAlertHandler(services.AlertManager, services.Alerts)
		alertGroup := apiGroup.Group("/alerts")
		{
			alertGroup.GET("", alertHandler.ListAlerts)
			alertGroup.GET("/:id", alertHandler.GetAlert)
			alertGroup.POST("/:id/assign", alertHandler.Assign)
			alertGroup.POST("/:id/resolve", alertHandler.Resolve)
			alertGroup.POST("/:id/ignore", alertHandler.Ignore)
			alertGroup.POST("/resolve", alertHandler.ResolveMany)
			alertGroup.POST("/ignore", alertHandler.IgnoreMany)
		}
	}

	if services.POService != nil && services.Batches != nil {
		poHandler := handlers.NewPOHandler(services.POService, services.Batches)
		apiGroup.POST("/batches", poHandler.RunBatch)
		apiGroup.GET("/batches/:run_id", poHandler.GetBatch)
		apiGroup.GET("/purchase-orders/:id", poHandler.GetPurchaseOrder)
	}

	if services.Products != nil && services.Scanner != nil {
		stockHealthHandler := handlers.NewStockHealthHandler(services.Products, services.Scanner)
		apiGroup.GET("/stock/health", stockHealthHandler.GetStockHealth)
		apiGroup.POST("/scans", stockHealthHandler.TriggerScan)
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
