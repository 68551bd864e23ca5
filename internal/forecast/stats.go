package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// meanStdDev returns the mean and the sample standard deviation of xs.
func meanStdDev(xs []float64) (float64, float64) {
	switch len(xs) {
	case 0:
		return 0, 0
	case 1:
		return xs[0], 0
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}

// CoefficientOfVariation returns stddev/mean. A zero mean is reported as
// +Inf so callers treat the series as maximally variable.
func CoefficientOfVariation(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean, std := meanStdDev(xs)
	if mean == 0 {
		return math.Inf(1)
	}
	return std / math.Abs(mean)
}

// Autocorrelation is the Pearson correlation between xs and xs shifted by
// lag, computed over the n-lag overlapping pairs. Degenerate inputs yield 0.
func Autocorrelation(xs []float64, lag int) float64 {
	n := len(xs)
	if lag <= 0 || n-lag < 2 {
		return 0
	}
	r := stat.Correlation(xs[:n-lag], xs[lag:], nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// TrendSlope is the OLS slope of value against time index.
func TrendSlope(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	_, beta := stat.LinearRegression(timeIndex(0, len(xs)), xs, nil, false)
	if math.IsNaN(beta) {
		return 0
	}
	return beta
}

func timeIndex(start, count int) []float64 {
	idx := make([]float64, count)
	for i := range idx {
		idx[i] = float64(start + i)
	}
	return idx
}

func clampNonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

func sum(xs []float64) float64 {
	var total float64
	for _, x := range xs {
		total += x
	}
	return total
}

func trailingMean(xs []float64, window int) float64 {
	if len(xs) == 0 {
		return 0
	}
	if window > len(xs) {
		window = len(xs)
	}
	return sum(xs[len(xs)-window:]) / float64(window)
}
