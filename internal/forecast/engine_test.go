package forecast

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticParams map[string]float64

func (p staticParams) Param(_ context.Context, _ domain.Algorithm, name string) (float64, bool, error) {
	v, ok := p[name]
	return v, ok, nil
}

type failingParams struct{}

func (failingParams) Param(context.Context, domain.Algorithm, string) (float64, bool, error) {
	return 0, false, errors.New("store offline")
}

func constantSeries(n int, v float64) []float64 {
	series := make([]float64, n)
	for i := range series {
		series[i] = v
	}
	return series
}

func noisySeries(n int, seed uint64) []float64 {
	rng := seededRand(seed)
	series := make([]float64, n)
	for i := range series {
		series[i] = 20 + 5*math.Sin(float64(i)/3) + 4*rng.Float64()
	}
	return series
}

func TestEngine_FlatSeriesIsExact(t *testing.T) {
	engine := NewEngine(nil)

	res, err := engine.Run(context.Background(), constantSeries(20, 10), domain.AlgorithmLinearRegression, 30)
	require.NoError(t, err)

	require.Len(t, res.Values, 30)
	for _, v := range res.Values {
		assert.InDelta(t, 10, v, 1e-9)
	}
	assert.InDelta(t, 0, res.Metrics.MAPE, 1e-9)
	assert.Equal(t, domain.QualityExcellent, res.Quality)
	assert.Equal(t, 0.95, res.Confidence)
	assert.Equal(t, domain.MetricsInSample, res.MetricsSource)
}

func TestEngine_HoldsOutValidationWhenLongEnough(t *testing.T) {
	engine := NewEngine(nil)

	res, err := engine.Run(context.Background(), constantSeries(30, 4), domain.AlgorithmLinearRegression, 7)
	require.NoError(t, err)

	assert.Equal(t, 24, res.TrainSize)
	assert.Equal(t, 6, res.ValidationSize)
	assert.Equal(t, domain.MetricsValidation, res.MetricsSource)
	assert.InDelta(t, 0, res.Metrics.RMSE, 1e-9)
}

func TestEngine_LinearTrendExtrapolates(t *testing.T) {
	series := make([]float64, 30)
	for i := range series {
		series[i] = 2*float64(i) + 5
	}

	res, err := NewEngine(nil).Run(context.Background(), series, domain.AlgorithmLinearRegression, 3)
	require.NoError(t, err)

	assert.InDelta(t, 65, res.Values[0], 1e-6)
	assert.InDelta(t, 67, res.Values[1], 1e-6)
	assert.InDelta(t, 69, res.Values[2], 1e-6)
}

func TestEngine_ClampsNegativeForecasts(t *testing.T) {
	series := make([]float64, 15)
	for i := range series {
		series[i] = 30 - 2*float64(i)
	}

	res, err := NewEngine(nil).Run(context.Background(), series, domain.AlgorithmLinearRegression, 10)
	require.NoError(t, err)

	for _, v := range res.Values {
		assert.GreaterOrEqual(t, v, 0.0)
	}
	assert.Equal(t, 0.0, res.Values[9])
}

func TestEngine_InsufficientHistory(t *testing.T) {
	engine := NewEngine(nil)
	ctx := context.Background()

	cases := []struct {
		algorithm domain.Algorithm
		n         int
	}{
		{domain.AlgorithmLinearRegression, 2},
		{domain.AlgorithmLagAutoregression, 20},
		{domain.AlgorithmRandomForest, 29},
		{domain.AlgorithmGradientBoostedTrees, 29},
	}
	for _, tc := range cases {
		t.Run(string(tc.algorithm), func(t *testing.T) {
			_, err := engine.Run(ctx, constantSeries(tc.n, 3), tc.algorithm, 5)
			assert.ErrorIs(t, err, ErrInsufficientHistory)
		})
	}
}

func TestEngine_RejectsBadInput(t *testing.T) {
	engine := NewEngine(nil)

	_, err := engine.Run(context.Background(), constantSeries(10, 1), domain.AlgorithmLinearRegression, 0)
	assert.ErrorIs(t, err, ErrInvalidHorizon)

	_, err = engine.Run(context.Background(), constantSeries(10, 1), domain.AlgorithmAuto, 5)
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestEngine_Deterministic(t *testing.T) {
	engine := NewEngine(nil)
	series := noisySeries(45, 7)

	for _, algorithm := range []domain.Algorithm{
		domain.AlgorithmLinearRegression,
		domain.AlgorithmLagAutoregression,
		domain.AlgorithmRandomForest,
		domain.AlgorithmGradientBoostedTrees,
	} {
		t.Run(string(algorithm), func(t *testing.T) {
			first, err := engine.Run(context.Background(), series, algorithm, 14)
			require.NoError(t, err)
			second, err := engine.Run(context.Background(), series, algorithm, 14)
			require.NoError(t, err)

			assert.Equal(t, first.Values, second.Values)
			assert.Equal(t, first.Metrics, second.Metrics)
			require.Len(t, first.Values, 14)
			for _, v := range first.Values {
				assert.GreaterOrEqual(t, v, 0.0)
			}
		})
	}
}

func TestEngine_AutoregressionHonoursLagOverride(t *testing.T) {
	engine := NewEngine(staticParams{"lag_count": 3})

	res, err := engine.Run(context.Background(), noisySeries(40, 3), domain.AlgorithmLagAutoregression, 5)
	require.NoError(t, err)

	require.NotEmpty(t, res.Notes)
	assert.Contains(t, res.Notes[0], "lag_count=3")
}

func TestEngine_AutoregressionLagsCappedBySampleSize(t *testing.T) {
	engine := NewEngine(staticParams{"lag_count": 50})

	res, err := engine.Run(context.Background(), noisySeries(40, 3), domain.AlgorithmLagAutoregression, 5)
	require.NoError(t, err)

	// 32 training points allow at most 8 lags.
	assert.Contains(t, res.Notes[0], "lag_count=8")
}

func TestEngine_ParamLookupFailureUsesDefaults(t *testing.T) {
	res, err := NewEngine(failingParams{}).Run(context.Background(), noisySeries(40, 1), domain.AlgorithmRandomForest, 5)
	require.NoError(t, err)
	assert.Len(t, res.Values, 5)
}

func TestMovingAverageModel(t *testing.T) {
	m := &movingAverageModel{window: 3}
	series := []float64{100, 1, 2, 3}

	assert.Equal(t, []float64{2, 2}, m.forecast(series, 2))
	assert.InDelta(t, 34.333, m.predictAt(series, 3), 1e-3)
	assert.Equal(t, 1, m.firstPredictable())
}

func TestComputeMetrics(t *testing.T) {
	m := ComputeMetrics([]float64{10, 20}, []float64{12, 18})
	assert.InDelta(t, 2, m.RMSE, 1e-9)
	assert.InDelta(t, 2, m.MAE, 1e-9)
	assert.InDelta(t, 15, m.MAPE, 1e-9)

	zeros := ComputeMetrics([]float64{0, 0, 0}, []float64{1, 2, 3})
	assert.Equal(t, 100.0, zeros.MAPE)

	mixed := ComputeMetrics([]float64{0, 10}, []float64{5, 11})
	assert.InDelta(t, 10, mixed.MAPE, 1e-9)
}

func TestConfidenceAndQualityBands(t *testing.T) {
	cases := []struct {
		mape       float64
		confidence float64
		quality    domain.Quality
	}{
		{0, 0.95, domain.QualityExcellent},
		{9.99, 0.95, domain.QualityExcellent},
		{10, 0.85, domain.QualityGood},
		{25, 0.75, domain.QualityFair},
		{30, 0.65, domain.QualityPoor},
		{49, 0.65, domain.QualityPoor},
		{50, 0.50, domain.QualityPoor},
		{500, 0.50, domain.QualityPoor},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.confidence, ConfidenceFromMAPE(tc.mape), "mape %v", tc.mape)
		assert.Equal(t, tc.quality, QualityFromMAPE(tc.mape), "mape %v", tc.mape)
	}
}

func TestRegressionTrees_FitStepFunction(t *testing.T) {
	features := indexFeatures(0, 20)
	labels := make([]float64, 20)
	for i := range labels {
		if i >= 10 {
			labels[i] = 50
		}
	}

	rf, err := RandomForest{Trees: 20, MaxDepth: 3, MinSamplesLeaf: 1, Seed: 1}.Fit(features, labels)
	require.NoError(t, err)
	assert.Less(t, rf.Predict([]float64{2}), 25.0)
	assert.Greater(t, rf.Predict([]float64{17}), 25.0)

	gb, err := GradientBoosting{Trees: 50, MaxDepth: 2, MinSamplesLeaf: 1, LearningRate: 0.1}.Fit(features, labels)
	require.NoError(t, err)
	assert.InDelta(t, 0, gb.Predict([]float64{2}), 1)
	assert.InDelta(t, 50, gb.Predict([]float64{17}), 1)
}

func TestOLS_RejectsUnderdeterminedTables(t *testing.T) {
	_, err := OLS{}.Fit([][]float64{{1, 2}, {3, 4}}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrDegenerateFit)
}

func TestRandomForest_SameSeedSameForecast(t *testing.T) {
	rng := seededRand(7)
	features := indexFeatures(0, 40)
	labels := make([]float64, 40)
	for i := range labels {
		labels[i] = 10 + 20*rng.Float64()
	}

	forest := RandomForest{Trees: 30, MaxDepth: 4, MinSamplesLeaf: 2, Seed: 42}
	a, err := forest.Fit(features, labels)
	require.NoError(t, err)
	b, err := forest.Fit(features, labels)
	require.NoError(t, err)

	for x := 0.0; x < 45; x++ {
		assert.Equal(t, a.Predict([]float64{x}), b.Predict([]float64{x}), "x=%v", x)
	}
}
