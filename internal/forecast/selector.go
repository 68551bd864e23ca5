package forecast

import (
	"fmt"
	"math"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// Minimum observations each algorithm needs before it may be fitted.
const (
	MinObservationsLinear         = 3
	MinObservationsAutoregression = 21
	MinObservationsEnsemble       = 30
)

const (
	lowVariabilityCV     = 0.20
	moderateCV           = 0.5
	highVariabilityCV    = 0.7
	whiteNoiseThreshold  = 0.15
	seasonalityThreshold = 0.3
	seasonalityMinLength = 14
	seasonalLag          = 7
)

// MinObservations returns the observation floor for an algorithm.
func MinObservations(a domain.Algorithm) int {
	switch a {
	case domain.AlgorithmRandomForest, domain.AlgorithmGradientBoostedTrees:
		return MinObservationsEnsemble
	case domain.AlgorithmLagAutoregression:
		return MinObservationsAutoregression
	default:
		return MinObservationsLinear
	}
}

// Selection is the outcome of the model selector.
type Selection struct {
	Algorithm     domain.Algorithm
	Features      domain.SeriesFeatures
	Justification string
}

// ExtractFeatures computes the statistics the selector uses.
func ExtractFeatures(series []float64) domain.SeriesFeatures {
	acf7 := Autocorrelation(series, seasonalLag)
	return domain.SeriesFeatures{
		CoefficientOfVariation: CoefficientOfVariation(series),
		AutocorrelationLag1:    Autocorrelation(series, 1),
		AutocorrelationLag7:    acf7,
		HasSeasonality:         len(series) >= seasonalityMinLength && math.Abs(acf7) > seasonalityThreshold,
		TrendSlope:             TrendSlope(series),
		Length:                 len(series),
	}
}

// IsWhiteNoise reports whether the series shows no temporal dependence at lag 1 or 7.
func IsWhiteNoise(f domain.SeriesFeatures) bool {
	return math.Abs(f.AutocorrelationLag1) < whiteNoiseThreshold &&
		math.Abs(f.AutocorrelationLag7) < whiteNoiseThreshold
}

// Select picks a forecasting technique for a preprocessed series. Rules are
// evaluated in order and the first match wins.
func Select(series []float64) Selection {
	f := ExtractFeatures(series)
	algorithm, reason := decide(f)
	return Selection{
		Algorithm: algorithm,
		Features:  f,
		Justification: fmt.Sprintf("%s: %s (cv=%.3f, acf1=%.3f, acf7=%.3f, seasonal=%t, trend=%.4f, n=%d)",
			algorithm, reason, f.CoefficientOfVariation, f.AutocorrelationLag1, f.AutocorrelationLag7,
			f.HasSeasonality, f.TrendSlope, f.Length),
	}
}

func decide(f domain.SeriesFeatures) (domain.Algorithm, string) {
	cv := f.CoefficientOfVariation
	n := f.Length
	whiteNoise := IsWhiteNoise(f)

	if n < MinObservationsEnsemble {
		return domain.AlgorithmLinearRegression, fmt.Sprintf("fewer than %d observations, avoiding overfit", MinObservationsEnsemble)
	}
	if cv > highVariabilityCV {
		return domain.AlgorithmGradientBoostedTrees, "high variability"
	}
	// Stable series stay linear even when a weekly pattern shows up.
	if f.HasSeasonality && cv >= lowVariabilityCV {
		return domain.AlgorithmRandomForest, "weekly seasonality detected"
	}
	if cv >= lowVariabilityCV && cv <= moderateCV {
		if whiteNoise {
			return domain.AlgorithmLinearRegression, "moderate variability without temporal dependence"
		}
		if n >= MinObservationsAutoregression {
			return domain.AlgorithmLagAutoregression, "moderate variability with temporal dependence"
		}
	}
	if cv > moderateCV && cv <= highVariabilityCV {
		return domain.AlgorithmRandomForest, "elevated variability"
	}
	if cv < lowVariabilityCV {
		return domain.AlgorithmLinearRegression, "low variability"
	}
	if n >= MinObservationsAutoregression && !whiteNoise {
		return domain.AlgorithmLagAutoregression, "fallback with temporal dependence"
	}
	return domain.AlgorithmLinearRegression, "fallback"
}
