package forecast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocess_LowVariabilityReturnsRaw(t *testing.T) {
	series := []float64{10, 11, 9, 10, 10, 11, 9, 10, 10, 11, 9, 10, 10, 11, 9, 10}
	out := Preprocess(series)

	assert.Equal(t, series, out.Series)
	assert.Equal(t, 1, out.PeriodDays)
	assert.Empty(t, out.Steps)
	assert.Less(t, out.OriginalCV, smoothingCVThreshold)
}

func TestPreprocess_DoesNotMutateInput(t *testing.T) {
	series := []float64{1, 20, 1, 20, 1, 20, 1, 20, 1, 20, 1, 20, 1, 20, 1, 20}
	original := append([]float64(nil), series...)

	_ = Preprocess(series)

	assert.Equal(t, original, series)
}

func TestPreprocess_SmoothingOnlyForMediumLength(t *testing.T) {
	series := []float64{1, 20, 1, 20, 1, 20, 1, 20, 1, 20, 1, 20, 1, 20, 1, 20}
	out := Preprocess(series)

	require.Len(t, out.Series, len(series))
	assert.Equal(t, 1, out.PeriodDays)
	assert.Equal(t, []string{"exponential_smoothing"}, out.Steps)
	assert.Less(t, out.FinalCV, out.OriginalCV)
}

func TestPreprocess_WeeklyAggregationWhenStillNoisy(t *testing.T) {
	series := make([]float64, 28)
	for i := range series {
		if i < 14 {
			series[i] = 1
		} else {
			series[i] = 100
		}
	}

	out := Preprocess(series)

	assert.Equal(t, 7, out.PeriodDays)
	assert.Len(t, out.Series, 4)
	assert.Equal(t, []string{"exponential_smoothing", "weekly_aggregation"}, out.Steps)
	assert.Contains(t, out.Describe(), "weekly_aggregation")
}

func TestPreprocess_ShortNoisySeriesUntouched(t *testing.T) {
	series := []float64{1, 50, 1, 50, 1, 50}
	out := Preprocess(series)

	assert.Equal(t, series, out.Series)
	assert.Empty(t, out.Steps)
}

func TestExponentialSmoothing(t *testing.T) {
	got := ExponentialSmoothing([]float64{10, 20, 20}, 0.3)

	require.Len(t, got, 3)
	assert.InDelta(t, 10, got[0], 1e-9)
	assert.InDelta(t, 13, got[1], 1e-9)
	assert.InDelta(t, 15.1, got[2], 1e-9)
}

func TestAggregateWeekly_DropsPartialWeek(t *testing.T) {
	series := make([]float64, 15)
	for i := range series {
		series[i] = float64(i)
	}

	got := AggregateWeekly(series)

	assert.Equal(t, []float64{3, 10}, got)
}

func TestExpandPeriods(t *testing.T) {
	assert.Equal(t, []float64{1, 1, 1, 2, 2}, ExpandPeriods([]float64{1, 2}, 3, 5))
	assert.Equal(t, []float64{4, 5}, ExpandPeriods([]float64{4, 5, 6}, 1, 2))
	assert.Equal(t, 5, PeriodsFor(30, 7))
	assert.Equal(t, 30, PeriodsFor(30, 1))
}

func TestCoefficientOfVariation_ZeroMeanIsMaximal(t *testing.T) {
	assert.True(t, math.IsInf(CoefficientOfVariation([]float64{0, 0, 0}), 1))
	assert.Equal(t, 0.0, CoefficientOfVariation(nil))
	assert.InDelta(t, 0, CoefficientOfVariation([]float64{5, 5, 5}), 1e-12)
}

func TestAutocorrelation_Degenerate(t *testing.T) {
	assert.Equal(t, 0.0, Autocorrelation([]float64{1, 2}, 7))
	assert.Equal(t, 0.0, Autocorrelation([]float64{3, 3, 3, 3}, 1))

	alternating := []float64{1, -1, 1, -1, 1, -1, 1, -1}
	assert.InDelta(t, -1, Autocorrelation(alternating, 1), 1e-9)
}

func TestTrendSlope(t *testing.T) {
	series := make([]float64, 10)
	for i := range series {
		series[i] = 3*float64(i) + 2
	}
	assert.InDelta(t, 3, TrendSlope(series), 1e-9)
}
