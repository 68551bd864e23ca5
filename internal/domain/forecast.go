package domain

import (
	"strings"
	"time"
)

// Algorithm tags a forecasting technique.
type Algorithm string

const (
	AlgorithmAuto                 Algorithm = "AUTO"
	AlgorithmLinearRegression     Algorithm = "LINEAR_REGRESSION"
	AlgorithmRandomForest         Algorithm = "RANDOM_FOREST"
	AlgorithmGradientBoostedTrees Algorithm = "GRADIENT_BOOSTED_TREES"
	AlgorithmLagAutoregression    Algorithm = "LAG_AUTOREGRESSION"
)

// ParseAlgorithm parses an algorithm tag; an empty string means AUTO.
func ParseAlgorithm(tag string) (Algorithm, bool) {
	a := Algorithm(strings.ToUpper(strings.TrimSpace(tag)))
	switch a {
	case "":
		return AlgorithmAuto, true
	case AlgorithmAuto, AlgorithmLinearRegression, AlgorithmRandomForest,
		AlgorithmGradientBoostedTrees, AlgorithmLagAutoregression:
		return a, true
	}
	return "", false
}

// Quality labels forecast accuracy bands.
type Quality string

const (
	QualityExcellent Quality = "EXCELLENT"
	QualityGood      Quality = "GOOD"
	QualityFair      Quality = "FAIR"
	QualityPoor      Quality = "POOR"
)

const (
	MetricsValidation = "validation"
	MetricsInSample   = "in_sample"
)

// SeriesFeatures are the statistics the model selector bases its decision on.
type SeriesFeatures struct {
	CoefficientOfVariation float64 `json:"coefficient_of_variation"`
	AutocorrelationLag1    float64 `json:"autocorrelation_lag1"`
	AutocorrelationLag7    float64 `json:"autocorrelation_lag7"`
	HasSeasonality         bool    `json:"has_seasonality"`
	TrendSlope             float64 `json:"trend_slope"`
	Length                 int     `json:"length"`
}

// Forecast is the persisted output of a forecasting run. Values are daily
// quantities starting at PeriodStart.
type Forecast struct {
	ID                 int64     `json:"id" db:"id"`
	ProductID          int64     `json:"product_id" db:"product_id"`
	Algorithm          Algorithm `json:"algorithm" db:"algorithm"`
	Horizon            int       `json:"horizon" db:"horizon"`
	Values             []float64 `json:"values" db:"-"`
	PeriodStart        time.Time `json:"period_start" db:"period_start"`
	TotalDemand        float64   `json:"total_demand" db:"total_demand"`
	RMSE               *float64  `json:"rmse,omitempty" db:"rmse"`
	MAE                *float64  `json:"mae,omitempty" db:"mae"`
	MAPE               *float64  `json:"mape,omitempty" db:"mape"`
	Confidence         float64   `json:"confidence" db:"confidence"`
	Quality            Quality   `json:"quality" db:"quality"`
	MetricsSource      string    `json:"metrics_source" db:"metrics_source"`
	Justification      string    `json:"justification" db:"justification"`
	Preprocessing      string    `json:"preprocessing" db:"preprocessing"`
	SeasonallyAdjusted bool      `json:"seasonally_adjusted" db:"seasonally_adjusted"`
	GeneratedAt        time.Time `json:"generated_at" db:"generated_at"`
}

// OptimizationResult is the replenishment policy derived from a forecast.
type OptimizationResult struct {
	ID                 int64     `json:"id" db:"id"`
	ProductID          int64     `json:"product_id" db:"product_id"`
	ForecastID         int64     `json:"forecast_id" db:"forecast_id"`
	EOQ                int       `json:"eoq" db:"eoq"`
	ROP                int       `json:"rop" db:"rop"`
	SafetyStock        int       `json:"safety_stock" db:"safety_stock"`
	AnnualDemand       float64   `json:"annual_demand" db:"annual_demand"`
	DailyDemand        float64   `json:"daily_demand" db:"daily_demand"`
	DemandStdDev       float64   `json:"demand_stddev" db:"demand_stddev"`
	ServiceLevel       float64   `json:"service_level" db:"service_level"`
	NumOrdersPerYear   int       `json:"num_orders_per_year" db:"num_orders_per_year"`
	DaysBetweenOrders  int       `json:"days_between_orders" db:"days_between_orders"`
	TotalAnnualCost    float64   `json:"total_annual_cost" db:"total_annual_cost"`
	AnnualPurchaseCost float64   `json:"annual_purchase_cost" db:"annual_purchase_cost"`
	LeadTimeDays       int       `json:"lead_time_days" db:"lead_time_days"`
	Recommendation     string    `json:"recommendation" db:"recommendation"`
	GeneratedAt        time.Time `json:"generated_at" db:"generated_at"`
}
