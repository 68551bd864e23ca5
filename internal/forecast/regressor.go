package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrDegenerateFit is returned when a regressor cannot be fitted to the data.
var ErrDegenerateFit = errors.New("degenerate regression fit")

// Model predicts a label from a feature vector.
type Model interface {
	Predict(features []float64) float64
}

// Regressor fits a Model from a feature table and labels.
type Regressor interface {
	Fit(features [][]float64, labels []float64) (Model, error)
}

// OLS is an ordinary-least-squares regressor with an intercept term.
type OLS struct{}

type linearModel struct {
	intercept float64
	coef      []float64
}

func (m *linearModel) Predict(features []float64) float64 {
	v := m.intercept
	for i, c := range m.coef {
		v += c * features[i]
	}
	return v
}

// Fit solves the least-squares problem. Single-feature tables use the closed
// form; wider tables go through a QR solve.
func (OLS) Fit(features [][]float64, labels []float64) (Model, error) {
	n := len(labels)
	if n == 0 || len(features) != n {
		return nil, fmt.Errorf("%w: %d rows for %d labels", ErrDegenerateFit, len(features), n)
	}
	k := len(features[0])
	if n < k+1 {
		return nil, fmt.Errorf("%w: %d rows cannot fit %d coefficients", ErrDegenerateFit, n, k+1)
	}

	if k == 1 {
		xs := make([]float64, n)
		for i, row := range features {
			xs[i] = row[0]
		}
		alpha, beta := stat.LinearRegression(xs, labels, nil, false)
		if math.IsNaN(alpha) || math.IsNaN(beta) {
			return nil, fmt.Errorf("%w: non-finite coefficients", ErrDegenerateFit)
		}
		return &linearModel{intercept: alpha, coef: []float64{beta}}, nil
	}

	design := mat.NewDense(n, k+1, nil)
	for i, row := range features {
		design.Set(i, 0, 1)
		for j, v := range row {
			design.Set(i, j+1, v)
		}
	}
	y := mat.NewVecDense(n, append([]float64(nil), labels...))

	var beta mat.VecDense
	if err := beta.SolveVec(design, y); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateFit, err)
	}

	coef := make([]float64, k)
	for j := 0; j < k; j++ {
		coef[j] = beta.AtVec(j + 1)
	}
	model := &linearModel{intercept: beta.AtVec(0), coef: coef}
	for _, c := range append([]float64{model.intercept}, coef...) {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("%w: non-finite coefficients", ErrDegenerateFit)
		}
	}
	return model, nil
}

// indexFeatures builds a single-column feature table of time indices.
func indexFeatures(start, count int) [][]float64 {
	rows := make([][]float64, count)
	for i := range rows {
		rows[i] = []float64{float64(start + i)}
	}
	return rows
}
