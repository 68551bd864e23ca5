package inventory

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

var (
	// ErrNonPositiveCost is returned when ordering or holding cost is not strictly positive.
	ErrNonPositiveCost = errors.New("cost per order and holding cost must be positive")
	// ErrInvalidDemand is returned for a negative demand total or non-positive horizon.
	ErrInvalidDemand = errors.New("invalid demand input")
	// ErrInvalidServiceLevel is returned for service levels outside (0, 1).
	ErrInvalidServiceLevel = errors.New("service level must be between 0 and 1")
)

const (
	daysPerYear           = 365
	minSafetyStock        = 1
	variabilityCautionCV  = 0.30
	defaultStdDevFallback = 0.20
	stdDevSourceRequest   = "request"
	stdDevSourceHistory   = "history"
	stdDevSourceHeuristic = "heuristic"
)

// zTable maps service levels to standard normal quantiles.
var zTable = map[float64]float64{
	0.90:  1.28,
	0.95:  1.65,
	0.975: 1.96,
	0.99:  2.33,
}

// Input holds the resolved parameters of a single optimization.
type Input struct {
	TotalDemand  float64
	HorizonDays  int
	LeadTimeDays int
	CostPerOrder float64
	HoldingCost  float64
	UnitCost     float64
	ServiceLevel float64
	// DemandStdDev is the daily demand deviation; nil falls back to a
	// fraction of daily demand.
	DemandStdDev *float64
	// StdDevFromHistory marks DemandStdDev as coming from the demand history.
	StdDevFromHistory bool
}

// Optimizer computes EOQ, safety stock and reorder points.
type Optimizer struct {
	fallbackRatio float64
}

// NewOptimizer creates an optimizer. fallbackRatio is the share of daily
// demand used as σ when no deviation is known; non-positive uses 0.20.
func NewOptimizer(fallbackRatio float64) *Optimizer {
	if fallbackRatio <= 0 {
		fallbackRatio = defaultStdDevFallback
	}
	return &Optimizer{fallbackRatio: fallbackRatio}
}

// Optimize derives the replenishment plan for one product.
func (o *Optimizer) Optimize(productID int64, in Input) (*domain.OptimizationResult, error) {
	if in.HorizonDays <= 0 || in.TotalDemand < 0 || math.IsNaN(in.TotalDemand) {
		return nil, fmt.Errorf("%w: total=%v horizon=%d", ErrInvalidDemand, in.TotalDemand, in.HorizonDays)
	}
	if in.LeadTimeDays < 0 {
		return nil, fmt.Errorf("%w: lead time %d", ErrInvalidDemand, in.LeadTimeDays)
	}
	if in.ServiceLevel <= 0 || in.ServiceLevel >= 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidServiceLevel, in.ServiceLevel)
	}

	// 1. Annualize
	annual := in.TotalDemand / float64(in.HorizonDays) * daysPerYear
	daily := annual / daysPerYear

	// 2. Variability
	sigma, source := o.stdDev(in, daily)

	// 3. Safety stock
	z := ZScore(in.ServiceLevel)
	ss := SafetyStock(z, sigma, in.LeadTimeDays)

	// 4. EOQ
	eoq, err := EOQ(annual, in.CostPerOrder, in.HoldingCost)
	if err != nil {
		return nil, err
	}

	// 5. Reorder point
	rop := ReorderPoint(daily, in.LeadTimeDays, ss)

	// 6. Cadence and cost
	orders, between := 0, 0
	if eoq > 0 {
		orders = int(math.Ceil(annual / float64(eoq)))
		if orders > 0 {
			between = int(math.Ceil(float64(daysPerYear) / float64(orders)))
		}
	}
	totalCost := float64(orders)*in.CostPerOrder + float64(eoq)/2*in.HoldingCost + float64(ss)*in.HoldingCost

	res := &domain.OptimizationResult{
		ProductID:          productID,
		EOQ:                eoq,
		ROP:                rop,
		SafetyStock:        ss,
		AnnualDemand:       annual,
		DailyDemand:        daily,
		DemandStdDev:       sigma,
		ServiceLevel:       in.ServiceLevel,
		NumOrdersPerYear:   orders,
		DaysBetweenOrders:  between,
		TotalAnnualCost:    totalCost,
		AnnualPurchaseCost: annual * in.UnitCost,
		LeadTimeDays:       in.LeadTimeDays,
		GeneratedAt:        time.Now().UTC(),
	}
	res.Recommendation = Recommend(res, source)
	return res, nil
}

func (o *Optimizer) stdDev(in Input, daily float64) (float64, string) {
	if in.DemandStdDev != nil && *in.DemandStdDev >= 0 && !math.IsNaN(*in.DemandStdDev) {
		if in.StdDevFromHistory {
			return *in.DemandStdDev, stdDevSourceHistory
		}
		return *in.DemandStdDev, stdDevSourceRequest
	}
	return o.fallbackRatio * daily, stdDevSourceHeuristic
}

// ZScore returns the quantile for the nearest tabulated service level.
func ZScore(serviceLevel float64) float64 {
	if z, ok := zTable[serviceLevel]; ok {
		return z
	}
	levels := make([]float64, 0, len(zTable))
	for l := range zTable {
		levels = append(levels, l)
	}
	sort.Float64s(levels)

	best := levels[0]
	for _, l := range levels[1:] {
		if math.Abs(l-serviceLevel) < math.Abs(best-serviceLevel) {
			best = l
		}
	}
	return zTable[best]
}

// SafetyStock is ceil(z·σ·√lead), never below one unit.
func SafetyStock(z, sigma float64, leadTimeDays int) int {
	ss := int(math.Ceil(z * sigma * math.Sqrt(float64(leadTimeDays))))
	if ss < minSafetyStock {
		return minSafetyStock
	}
	return ss
}

// EOQ is ceil(√(2·D·S/H)).
func EOQ(annualDemand, costPerOrder, holdingCost float64) (int, error) {
	if costPerOrder <= 0 || holdingCost <= 0 {
		return 0, fmt.Errorf("%w: cost_per_order=%v holding_cost=%v", ErrNonPositiveCost, costPerOrder, holdingCost)
	}
	return int(math.Ceil(math.Sqrt(2 * annualDemand * costPerOrder / holdingCost))), nil
}

// ReorderPoint is ceil(daily·lead + safety stock).
func ReorderPoint(dailyDemand float64, leadTimeDays, safetyStock int) int {
	return int(math.Ceil(dailyDemand*float64(leadTimeDays) + float64(safetyStock)))
}

// Recommend renders the human-readable ordering advice for a plan.
func Recommend(r *domain.OptimizationResult, stdDevSource string) string {
	var b strings.Builder
	if r.EOQ == 0 {
		b.WriteString("No demand expected over the horizon; hold current stock.")
	} else {
		fmt.Fprintf(&b, "Order %d units every %d days (%d orders per year).", r.EOQ, r.DaysBetweenOrders, r.NumOrdersPerYear)
	}
	fmt.Fprintf(&b, " Reorder when stock falls to %d units, keeping %d units of safety stock at a %.1f%% service level.",
		r.ROP, r.SafetyStock, r.ServiceLevel*100)

	if r.DailyDemand > 0 {
		if cv := r.DemandStdDev / r.DailyDemand; cv > variabilityCautionCV {
			fmt.Fprintf(&b, " Caution: demand is highly variable (CV %.2f); review safety stock frequently.", cv)
		}
	}
	if stdDevSource == stdDevSourceHeuristic {
		b.WriteString(" Demand variability was estimated, not measured.")
	}
	return b.String()
}
