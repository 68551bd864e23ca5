package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInsufficientHistory is returned when a series is shorter than the algorithm's floor.
	ErrInsufficientHistory = errors.New("insufficient demand history")
	// ErrInvalidHorizon is returned for a non-positive horizon.
	ErrInvalidHorizon = errors.New("forecast horizon must be positive")
	// ErrUnknownAlgorithm is returned for tags the engine cannot run.
	ErrUnknownAlgorithm = errors.New("unknown forecasting algorithm")
)

const (
	trainFraction          = 0.8
	minValidationPoints    = 5
	minAutoregressionRows  = 10
	movingAverageWindow    = 14
	defaultLagCount        = 7
	defaultTrees           = 100
	defaultForestDepth     = 5
	defaultBoostingDepth   = 3
	defaultLearningRate    = 0.1
	defaultMinSamplesLeaf  = 2
	defaultSeed            = 42
	paramTrees             = "trees"
	paramMaxDepth          = "max_depth"
	paramLearningRate      = "learning_rate"
	paramMinSamplesLeaf    = "min_samples_leaf"
	paramLagCount          = "lag_count"
	paramSeed              = "seed"
	movingAverageFallback  = "moving_average_fallback"
	autoregressionFitNotes = "lag_count=%d rows=%d"
)

// ParamSource resolves algorithm hyperparameter overrides.
type ParamSource interface {
	Param(ctx context.Context, algorithm domain.Algorithm, name string) (float64, bool, error)
}

// Metrics are the accuracy measures of a fitted model.
type Metrics struct {
	RMSE float64
	MAE  float64
	MAPE float64
}

// Result is the output of a single engine run.
type Result struct {
	Algorithm      domain.Algorithm
	Values         []float64
	Metrics        Metrics
	MetricsSource  string
	Confidence     float64
	Quality        domain.Quality
	TrainSize      int
	ValidationSize int
	Notes          []string
}

// Engine fits and runs forecasting models.
type Engine struct {
	params ParamSource
}

// NewEngine creates an Engine. A nil ParamSource uses built-in defaults.
func NewEngine(params ParamSource) *Engine {
	return &Engine{params: params}
}

// fitted abstracts over index-based and lag-based models so validation and
// forecasting share one path.
type fitted interface {
	// predictAt returns the prediction for position t of series, using only
	// values before t as history.
	predictAt(series []float64, t int) float64
	// forecast extends series by horizon steps.
	forecast(series []float64, horizon int) []float64
	// firstPredictable is the earliest position predictAt supports.
	firstPredictable() int
}

// Run fits the algorithm to series and forecasts horizon periods.
func (e *Engine) Run(ctx context.Context, series []float64, algorithm domain.Algorithm, horizon int) (*Result, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHorizon, horizon)
	}
	switch algorithm {
	case domain.AlgorithmLinearRegression, domain.AlgorithmRandomForest,
		domain.AlgorithmGradientBoostedTrees, domain.AlgorithmLagAutoregression:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}

	n := len(series)
	if floor := MinObservations(algorithm); n < floor {
		return nil, fmt.Errorf("%w: %s needs %d observations, got %d", ErrInsufficientHistory, algorithm, floor, n)
	}

	trainSize := int(math.Floor(float64(n) * trainFraction))
	if n-trainSize < minValidationPoints {
		trainSize = n
	}
	train := series[:trainSize]

	model, notes, err := e.fit(ctx, algorithm, train)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Algorithm:      algorithm,
		TrainSize:      trainSize,
		ValidationSize: n - trainSize,
		Notes:          notes,
	}

	var actual, predicted []float64
	if trainSize < n {
		res.MetricsSource = domain.MetricsValidation
		for t := trainSize; t < n; t++ {
			actual = append(actual, series[t])
			predicted = append(predicted, clampNonNegative(model.predictAt(series, t)))
		}
	} else {
		res.MetricsSource = domain.MetricsInSample
		for t := model.firstPredictable(); t < n; t++ {
			actual = append(actual, series[t])
			predicted = append(predicted, clampNonNegative(model.predictAt(series, t)))
		}
	}

	res.Metrics = ComputeMetrics(actual, predicted)
	res.Confidence = ConfidenceFromMAPE(res.Metrics.MAPE)
	res.Quality = QualityFromMAPE(res.Metrics.MAPE)

	values := model.forecast(series, horizon)
	for i, v := range values {
		values[i] = clampNonNegative(v)
	}
	res.Values = values

	log.Debug().
		Str("algorithm", string(algorithm)).
		Int("train", res.TrainSize).
		Int("validation", res.ValidationSize).
		Float64("mape", res.Metrics.MAPE).
		Msg("forecast engine run complete")

	return res, nil
}

func (e *Engine) fit(ctx context.Context, algorithm domain.Algorithm, train []float64) (fitted, []string, error) {
	n := len(train)

	switch algorithm {
	case domain.AlgorithmLinearRegression:
		m, err := OLS{}.Fit(indexFeatures(0, n), train)
		if err != nil {
			return nil, nil, err
		}
		return &indexModel{model: m}, nil, nil

	case domain.AlgorithmRandomForest:
		trees, depth, leaf := e.treeParams(ctx, algorithm, n, defaultForestDepth)
		rf := RandomForest{
			Trees:          trees,
			MaxDepth:       depth,
			MinSamplesLeaf: leaf,
			Seed:           uint64(e.param(ctx, algorithm, paramSeed, defaultSeed)),
		}
		m, err := rf.Fit(indexFeatures(0, n), train)
		if err != nil {
			return nil, nil, err
		}
		return &indexModel{model: m}, nil, nil

	case domain.AlgorithmGradientBoostedTrees:
		trees, depth, leaf := e.treeParams(ctx, algorithm, n, defaultBoostingDepth)
		lr := e.param(ctx, algorithm, paramLearningRate, defaultLearningRate)
		if lr <= 0 || lr > 1 {
			lr = defaultLearningRate
		}
		gb := GradientBoosting{Trees: trees, MaxDepth: depth, MinSamplesLeaf: leaf, LearningRate: lr}
		m, err := gb.Fit(indexFeatures(0, n), train)
		if err != nil {
			return nil, nil, err
		}
		return &indexModel{model: m}, nil, nil

	default:
		return e.fitAutoregression(ctx, train)
	}
}

func (e *Engine) fitAutoregression(ctx context.Context, train []float64) (fitted, []string, error) {
	n := len(train)
	lags := int(e.param(ctx, domain.AlgorithmLagAutoregression, paramLagCount, defaultLagCount))
	if lags > n/4 {
		lags = n / 4
	}
	if lags < 1 {
		lags = 1
	}

	rows := n - lags
	if rows < minAutoregressionRows {
		return &movingAverageModel{window: movingAverageWindow}, []string{movingAverageFallback}, nil
	}

	features := make([][]float64, rows)
	labels := make([]float64, rows)
	for t := lags; t < n; t++ {
		features[t-lags] = append([]float64(nil), train[t-lags:t]...)
		labels[t-lags] = train[t]
	}

	m, err := OLS{}.Fit(features, labels)
	if err != nil {
		log.Debug().Err(err).Msg("autoregression fit degenerate, using moving average")
		return &movingAverageModel{window: movingAverageWindow}, []string{movingAverageFallback}, nil
	}
	return &lagModel{model: m, lags: lags}, []string{fmt.Sprintf(autoregressionFitNotes, lags, rows)}, nil
}

// treeParams bounds ensemble hyperparameters relative to the sample size.
func (e *Engine) treeParams(ctx context.Context, algorithm domain.Algorithm, n, defaultDepth int) (int, int, int) {
	trees := int(e.param(ctx, algorithm, paramTrees, defaultTrees))
	if trees > n {
		trees = n
	}
	if trees < 1 {
		trees = 1
	}

	depth := int(e.param(ctx, algorithm, paramMaxDepth, float64(defaultDepth)))
	if maxDepth := int(math.Max(1, math.Floor(math.Log2(float64(n))))); depth > maxDepth {
		depth = maxDepth
	}
	if depth < 1 {
		depth = 1
	}

	leaf := int(e.param(ctx, algorithm, paramMinSamplesLeaf, defaultMinSamplesLeaf))
	if leaf > n/4 {
		leaf = n / 4
	}
	if leaf < 1 {
		leaf = 1
	}
	return trees, depth, leaf
}

// param resolves an override, falling back to def when the store has none.
func (e *Engine) param(ctx context.Context, algorithm domain.Algorithm, name string, def float64) float64 {
	if e.params == nil {
		return def
	}
	v, ok, err := e.params.Param(ctx, algorithm, name)
	if err != nil {
		log.Warn().Err(err).Str("algorithm", string(algorithm)).Str("param", name).
			Msg("hyperparameter lookup failed, using default")
		return def
	}
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

type indexModel struct {
	model Model
}

func (m *indexModel) predictAt(_ []float64, t int) float64 {
	return m.model.Predict([]float64{float64(t)})
}

func (m *indexModel) forecast(series []float64, horizon int) []float64 {
	out := make([]float64, horizon)
	for h := range out {
		out[h] = m.model.Predict([]float64{float64(len(series) + h)})
	}
	return out
}

func (m *indexModel) firstPredictable() int { return 0 }

type lagModel struct {
	model Model
	lags  int
}

func (m *lagModel) predictAt(series []float64, t int) float64 {
	return m.model.Predict(series[t-m.lags : t])
}

// forecast feeds each prediction back into the lag window.
func (m *lagModel) forecast(series []float64, horizon int) []float64 {
	window := append([]float64(nil), series[len(series)-m.lags:]...)
	out := make([]float64, horizon)
	for h := range out {
		p := clampNonNegative(m.model.Predict(window))
		out[h] = p
		window = append(window[1:], p)
	}
	return out
}

func (m *lagModel) firstPredictable() int { return m.lags }

type movingAverageModel struct {
	window int
}

func (m *movingAverageModel) predictAt(series []float64, t int) float64 {
	return trailingMean(series[:t], m.window)
}

func (m *movingAverageModel) forecast(series []float64, horizon int) []float64 {
	avg := trailingMean(series, m.window)
	out := make([]float64, horizon)
	for h := range out {
		out[h] = avg
	}
	return out
}

func (m *movingAverageModel) firstPredictable() int { return 1 }

// ComputeMetrics returns RMSE, MAE and MAPE. MAPE skips zero actuals and is
// 100 when every actual is zero.
func ComputeMetrics(actual, predicted []float64) Metrics {
	n := len(actual)
	if n == 0 || len(predicted) != n {
		return Metrics{MAPE: 100}
	}

	var sq, abs, pct float64
	pctCount := 0
	for i := range actual {
		diff := actual[i] - predicted[i]
		sq += diff * diff
		abs += math.Abs(diff)
		if actual[i] != 0 {
			pct += math.Abs(diff / actual[i])
			pctCount++
		}
	}

	m := Metrics{
		RMSE: math.Sqrt(sq / float64(n)),
		MAE:  abs / float64(n),
		MAPE: 100,
	}
	if pctCount > 0 {
		m.MAPE = pct / float64(pctCount) * 100
	}
	return m
}

// ConfidenceFromMAPE maps MAPE onto a fixed confidence scale.
func ConfidenceFromMAPE(mape float64) float64 {
	switch {
	case mape < 10:
		return 0.95
	case mape < 20:
		return 0.85
	case mape < 30:
		return 0.75
	case mape < 50:
		return 0.65
	default:
		return 0.50
	}
}

// QualityFromMAPE labels accuracy bands.
func QualityFromMAPE(mape float64) domain.Quality {
	switch {
	case mape < 10:
		return domain.QualityExcellent
	case mape < 20:
		return domain.QualityGood
	case mape < 30:
		return domain.QualityFair
	default:
		return domain.QualityPoor
	}
}
