package forecast

import (
	"fmt"
	"strings"
)

const (
	smoothingAlpha         = 0.3
	smoothingCVThreshold   = 0.25
	smoothingMinLength     = 14
	aggregationCVThreshold = 0.30
	aggregationMinLength   = 21
	daysPerWeek            = 7
)

// Preprocessed is a denoised series together with how it was produced.
// PeriodDays is 7 when the series was aggregated into weekly buckets.
type Preprocessed struct {
	Series     []float64
	PeriodDays int
	Steps      []string
	OriginalCV float64
	FinalCV    float64
}

// Describe renders the applied steps for auditing.
func (p Preprocessed) Describe() string {
	if len(p.Steps) == 0 {
		return fmt.Sprintf("raw (cv=%.3f)", p.OriginalCV)
	}
	return fmt.Sprintf("%s (cv %.3f -> %.3f)", strings.Join(p.Steps, "+"), p.OriginalCV, p.FinalCV)
}

// Preprocess denoises a chronological demand series. Noisy series are
// exponentially smoothed and, if still noisy and long enough, averaged into
// weekly buckets. The input is never modified.
func Preprocess(series []float64) Preprocessed {
	raw := append([]float64(nil), series...)
	cv := CoefficientOfVariation(raw)
	out := Preprocessed{Series: raw, PeriodDays: 1, OriginalCV: cv, FinalCV: cv}

	if cv <= smoothingCVThreshold || len(raw) < smoothingMinLength {
		return out
	}

	smoothed := ExponentialSmoothing(raw, smoothingAlpha)
	out.Series = smoothed
	out.Steps = append(out.Steps, "exponential_smoothing")
	out.FinalCV = CoefficientOfVariation(smoothed)

	if out.FinalCV > aggregationCVThreshold && len(raw) >= aggregationMinLength {
		weekly := AggregateWeekly(smoothed)
		out.Series = weekly
		out.PeriodDays = daysPerWeek
		out.Steps = append(out.Steps, "weekly_aggregation")
		out.FinalCV = CoefficientOfVariation(weekly)
	}

	return out
}

// ExponentialSmoothing applies S[0]=X[0], S[t]=alpha*X[t]+(1-alpha)*S[t-1].
func ExponentialSmoothing(xs []float64, alpha float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	out := make([]float64, len(xs))
	out[0] = xs[0]
	for t := 1; t < len(xs); t++ {
		out[t] = alpha*xs[t] + (1-alpha)*out[t-1]
	}
	return out
}

// AggregateWeekly averages each consecutive run of 7 points; a trailing
// partial week is dropped.
func AggregateWeekly(xs []float64) []float64 {
	weeks := len(xs) / daysPerWeek
	out := make([]float64, weeks)
	for w := 0; w < weeks; w++ {
		out[w] = sum(xs[w*daysPerWeek:(w+1)*daysPerWeek]) / daysPerWeek
	}
	return out
}

// ExpandPeriods turns per-period rates into daily values, repeating each
// period value periodDays times and trimming to horizonDays.
func ExpandPeriods(values []float64, periodDays, horizonDays int) []float64 {
	if periodDays <= 1 {
		if len(values) > horizonDays {
			return values[:horizonDays]
		}
		return values
	}
	out := make([]float64, 0, horizonDays)
	for _, v := range values {
		for d := 0; d < periodDays && len(out) < horizonDays; d++ {
			out = append(out, v)
		}
	}
	return out
}

// PeriodsFor returns how many periods of periodDays cover horizonDays.
func PeriodsFor(horizonDays, periodDays int) int {
	if periodDays <= 1 {
		return horizonDays
	}
	return (horizonDays + periodDays - 1) / periodDays
}
