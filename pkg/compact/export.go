package compact

import (
	"fmt"

	"github.com/nlpodyssey/spago/pkg/ml/nn/linear"
	"gonum.org/v1/gonum/mat"

	"mensus/pkg/model"
)

// Export freezes a trained model. Dropout disappears, batch normalization is resolved
// with its running statistics and every affine step is folded into the dense layer
// that follows it.
func Export(m *model.Model) (*Artifact, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}
	a := &Artifact{
		FeatureNames: append([]string(nil), m.MetaData.FeatureNames...),
		LabelNames:   append([]string(nil), m.MetaData.LabelNames...),
		Ops:          Fuse(Lower(m)),
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("exported graph is invalid: %w", err)
	}
	return a, nil
}

// Lower translates the network into unfused ops, one per inference-time step.
func Lower(m *model.Model) []Op {
	n := m.Network
	return []Op{
		standardizeOp(m.MetaData.Scaler),
		denseOp("hidden1", n.Hidden1, ReLU),
		batchNormOp(n.Norm),
		denseOp("hidden2", n.Hidden2, ReLU),
		denseOp("output", n.Output, Sigmoid),
	}
}

// Fuse folds every Affine op into an immediately following Dense op:
// W·(s∘x + t) + b = (W·diag(s))·x + (W·t + b).
func Fuse(ops []Op) []Op {
	result := make([]Op, 0, len(ops))
	for i := 0; i < len(ops); i++ {
		op := ops[i]
		if op.Kind == Affine && op.Activation == Identity && i+1 < len(ops) && ops[i+1].Kind == Dense {
			result = append(result, foldInto(op, ops[i+1]))
			i++
			continue
		}
		result = append(result, op)
	}
	return result
}

func foldInto(affine, dense Op) Op {
	rows, columns := dense.Weights.Dims()

	bias := mat.NewVecDense(rows, nil)
	bias.MulVec(dense.Weights, affine.Shift)
	bias.AddVec(bias, dense.Bias)

	weights := mat.NewDense(rows, columns, nil)
	weights.Apply(func(i, j int, v float64) float64 {
		return v * affine.Scale.AtVec(j)
	}, dense.Weights)

	return Op{
		Kind:        Dense,
		Name:        affine.Name + "+" + dense.Name,
		Activation:  dense.Activation,
		Weights:     weights,
		Bias:        bias,
		InputShape:  affine.InputShape,
		OutputShape: dense.OutputShape,
	}
}

func standardizeOp(s *model.Standardizer) Op {
	size := len(s.Mean)
	scale := mat.NewVecDense(size, nil)
	shift := mat.NewVecDense(size, nil)
	for j := 0; j < size; j++ {
		scale.SetVec(j, 1/s.Scale[j])
		shift.SetVec(j, -s.Mean[j]/s.Scale[j])
	}
	return Op{Kind: Affine, Name: "standardize", Scale: scale, Shift: shift, InputShape: size, OutputShape: size}
}

func batchNormOp(bn *model.BatchNorm) Op {
	gamma := bn.W.Value().Data()
	beta := bn.B.Value().Data()
	invStdDev := bn.InverseStdDev()
	size := len(invStdDev)
	scale := mat.NewVecDense(size, nil)
	shift := mat.NewVecDense(size, nil)
	for j := 0; j < size; j++ {
		s := float64(gamma[j]) * float64(invStdDev[j])
		scale.SetVec(j, s)
		shift.SetVec(j, float64(beta[j])-float64(bn.RunningMean[j])*s)
	}
	return Op{Kind: Affine, Name: "batchnorm", Scale: scale, Shift: shift, InputShape: size, OutputShape: size}
}

func denseOp(name string, layer *linear.Model, activation Activation) Op {
	w := layer.W.Value()
	rows, columns := w.Rows(), w.Columns()
	return Op{
		Kind:        Dense,
		Name:        name,
		Activation:  activation,
		Weights:     mat.NewDense(rows, columns, model.FromFloat(w.Data())),
		Bias:        mat.NewVecDense(rows, model.FromFloat(layer.B.Value().Data())),
		InputShape:  columns,
		OutputShape: rows,
	}
}
