package forecast

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// treeParams bounds the growth of a regression tree.
type treeParams struct {
	maxDepth       int
	minSamplesLeaf int
}

type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

func (n *treeNode) predict(features []float64) float64 {
	for !n.leaf {
		if features[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

// growTree builds a CART regression tree minimising squared error over the
// rows listed in idx.
func growTree(features [][]float64, labels []float64, idx []int, depth int, p treeParams) *treeNode {
	ys := make([]float64, len(idx))
	for k, i := range idx {
		ys[k] = labels[i]
	}
	mean := stat.Mean(ys, nil)

	if depth >= p.maxDepth || len(idx) < 2*p.minSamplesLeaf {
		return &treeNode{leaf: true, value: mean}
	}

	feature, threshold, ok := bestSplit(features, labels, idx, p.minSamplesLeaf)
	if !ok {
		return &treeNode{leaf: true, value: mean}
	}

	var left, right []int
	for _, i := range idx {
		if features[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &treeNode{
		feature:   feature,
		threshold: threshold,
		left:      growTree(features, labels, left, depth+1, p),
		right:     growTree(features, labels, right, depth+1, p),
	}
}

// bestSplit scans every feature for the threshold with the lowest combined
// sum of squared errors. Splits only fall between distinct feature values.
func bestSplit(features [][]float64, labels []float64, idx []int, minLeaf int) (int, float64, bool) {
	n := len(idx)
	var totalSum, totalSq float64
	for _, i := range idx {
		totalSum += labels[i]
		totalSq += labels[i] * labels[i]
	}
	parentSSE := totalSq - totalSum*totalSum/float64(n)

	bestSSE := parentSSE
	bestFeature, bestThreshold, found := 0, 0.0, false

	sorted := make([]int, n)
	for f := range features[idx[0]] {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, b int) bool {
			return features[sorted[a]][f] < features[sorted[b]][f]
		})

		var leftSum, leftSq float64
		for k := 0; k < n-1; k++ {
			y := labels[sorted[k]]
			leftSum += y
			leftSq += y * y

			leftN := k + 1
			rightN := n - leftN
			if leftN < minLeaf || rightN < minLeaf {
				continue
			}
			cur, next := features[sorted[k]][f], features[sorted[k+1]][f]
			if cur == next {
				continue
			}

			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(leftN)) + (rightSq - rightSum*rightSum/float64(rightN))
			if sse < bestSSE-1e-12 {
				bestSSE = sse
				bestFeature = f
				bestThreshold = (cur + next) / 2
				found = true
			}
		}
	}

	return bestFeature, bestThreshold, found
}

// RandomForest averages bootstrap-bagged regression trees.
type RandomForest struct {
	Trees          int
	MaxDepth       int
	MinSamplesLeaf int
	Seed           uint64
}

type forestModel struct {
	trees []*treeNode
}

func (m *forestModel) Predict(features []float64) float64 {
	var total float64
	for _, t := range m.trees {
		total += t.predict(features)
	}
	return total / float64(len(m.trees))
}

func (rf RandomForest) Fit(features [][]float64, labels []float64) (Model, error) {
	n := len(labels)
	if n == 0 || len(features) != n {
		return nil, fmt.Errorf("%w: %d rows for %d labels", ErrDegenerateFit, len(features), n)
	}
	if rf.Trees < 1 {
		return nil, fmt.Errorf("%w: tree count %d", ErrDegenerateFit, rf.Trees)
	}

	rng := rand.New(rand.NewPCG(rf.Seed, rf.Seed^0x9e3779b97f4a7c15))
	params := treeParams{maxDepth: rf.MaxDepth, minSamplesLeaf: rf.MinSamplesLeaf}

	model := &forestModel{trees: make([]*treeNode, 0, rf.Trees)}
	for t := 0; t < rf.Trees; t++ {
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.IntN(n)
		}
		model.trees = append(model.trees, growTree(features, labels, sample, 0, params))
	}
	return model, nil
}

// GradientBoosting fits shallow trees sequentially to squared-loss residuals.
type GradientBoosting struct {
	Trees          int
	MaxDepth       int
	MinSamplesLeaf int
	LearningRate   float64
}

type boostedModel struct {
	base         float64
	learningRate float64
	trees        []*treeNode
}

func (m *boostedModel) Predict(features []float64) float64 {
	v := m.base
	for _, t := range m.trees {
		v += m.learningRate * t.predict(features)
	}
	return v
}

func (gb GradientBoosting) Fit(features [][]float64, labels []float64) (Model, error) {
	n := len(labels)
	if n == 0 || len(features) != n {
		return nil, fmt.Errorf("%w: %d rows for %d labels", ErrDegenerateFit, len(features), n)
	}
	if gb.Trees < 1 || gb.LearningRate <= 0 || math.IsNaN(gb.LearningRate) {
		return nil, fmt.Errorf("%w: trees=%d learning_rate=%v", ErrDegenerateFit, gb.Trees, gb.LearningRate)
	}

	model := &boostedModel{base: stat.Mean(labels, nil), learningRate: gb.LearningRate}
	params := treeParams{maxDepth: gb.MaxDepth, minSamplesLeaf: gb.MinSamplesLeaf}

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = model.base
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	residuals := make([]float64, n)

	for t := 0; t < gb.Trees; t++ {
		floats.SubTo(residuals, labels, pred)
		tree := growTree(features, residuals, idx, 0, params)
		model.trees = append(model.trees, tree)
		for i := range pred {
			pred[i] += gb.LearningRate * tree.predict(features[i])
		}
	}
	return model, nil
}
