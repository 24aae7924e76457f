// Package loss implements class balancing for multi-label targets and the weighted
// binary cross-entropy used as the training objective.
package loss

import (
	"errors"
	"fmt"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
)

// Epsilon guards the logarithms against probabilities of exactly 0 or 1.
const Epsilon = 1e-7

// WeightedBinaryCrossEntropy averages one class-weighted binary cross-entropy term per
// label. Every label contributes equally to the result.
type WeightedBinaryCrossEntropy struct {
	negative mat.Matrix
	positive mat.Matrix
	ones     mat.Matrix
}

func NewWeightedBinaryCrossEntropy(weights []ClassWeight) *WeightedBinaryCrossEntropy {
	negative := make([]mat.Float, len(weights))
	positive := make([]mat.Float, len(weights))
	for i, w := range weights {
		negative[i] = mat.Float(w.Negative)
		positive[i] = mat.Float(w.Positive)
	}
	return &WeightedBinaryCrossEntropy{
		negative: mat.NewVecDense(negative),
		positive: mat.NewVecDense(positive),
		ones:     mat.NewInitVecDense(len(weights), 1.0),
	}
}

func (l *WeightedBinaryCrossEntropy) NumLabels() int {
	return l.ones.Rows()
}

// Forward builds the loss of a batch. predictions holds one probability vector per
// example, targets the matching 0/1 label rows.
func (l *WeightedBinaryCrossEntropy) Forward(g *ag.Graph, predictions []ag.Node, targets [][]float64) (ag.Node, error) {
	if len(predictions) == 0 {
		return nil, errors.New("empty batch")
	}
	if len(predictions) != len(targets) {
		return nil, fmt.Errorf("%d predictions for %d targets", len(predictions), len(targets))
	}
	numLabels := l.NumLabels()
	w0 := g.NewVariable(l.negative, false)
	w1 := g.NewVariable(l.positive, false)
	ones := g.NewVariable(l.ones, false)
	eps := g.NewScalar(Epsilon)

	var total ag.Node
	for i, p := range predictions {
		if rows := p.Value().Rows(); rows != numLabels {
			return nil, fmt.Errorf("prediction %d has %d labels, expected %d", i, rows, numLabels)
		}
		if len(targets[i]) != numLabels {
			return nil, fmt.Errorf("target %d has %d labels, expected %d", i, len(targets[i]), numLabels)
		}
		y := g.NewVariable(mat.NewVecDense(toFloat(targets[i])), false)
		positive := g.Prod(g.Prod(w1, y), g.Log(g.AddScalar(p, eps)))
		negative := g.Prod(g.Prod(w0, g.Sub(ones, y)), g.Log(g.AddScalar(g.Sub(ones, p), eps)))
		total = g.Add(total, g.Add(positive, negative))
	}
	count := g.NewScalar(mat.Float(len(predictions) * numLabels))
	// In float32 1+Epsilon rounds above 1, so perfect predictions would end slightly below 0.
	return g.ReLU(g.Neg(g.DivScalar(g.ReduceSum(total), count))), nil
}

func toFloat(values []float64) []mat.Float {
	result := make([]mat.Float, len(values))
	for i, v := range values {
		result[i] = mat.Float(v)
	}
	return result
}
