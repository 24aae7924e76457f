// Package compact holds the inference-only form of a trained model: a frozen list of
// dense and affine ops with resolved shapes, evaluated with gonum.
package compact

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"mensus/pkg/schema"
)

var ErrShape = errors.New("shape mismatch")

type OpKind int

const (
	// Dense computes activation(W·x + b).
	Dense OpKind = iota
	// Affine computes scale∘x + shift.
	Affine
)

func (k OpKind) String() string {
	switch k {
	case Dense:
		return "dense"
	case Affine:
		return "affine"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

type Activation int

const (
	Identity Activation = iota
	ReLU
	Sigmoid
)

func (a Activation) String() string {
	switch a {
	case Identity:
		return "identity"
	case ReLU:
		return "relu"
	case Sigmoid:
		return "sigmoid"
	default:
		return fmt.Sprintf("activation(%d)", int(a))
	}
}

// Op is one frozen step of the computation graph.
type Op struct {
	Kind       OpKind
	Name       string
	Activation Activation

	// Weights (rows = OutputShape, columns = InputShape) and Bias are set for Dense ops
	Weights *mat.Dense
	Bias    *mat.VecDense

	// Scale and Shift are set for Affine ops
	Scale *mat.VecDense
	Shift *mat.VecDense

	InputShape  int
	OutputShape int
}

func (o *Op) validate() error {
	switch o.Kind {
	case Dense:
		if o.Weights == nil || o.Bias == nil {
			return fmt.Errorf("op %s: missing weights", o.Name)
		}
		rows, columns := o.Weights.Dims()
		if rows != o.OutputShape || columns != o.InputShape || o.Bias.Len() != o.OutputShape {
			return fmt.Errorf("%w: op %s weights %dx%d bias %d, declared %d->%d",
				ErrShape, o.Name, rows, columns, o.Bias.Len(), o.InputShape, o.OutputShape)
		}
	case Affine:
		if o.Scale == nil || o.Shift == nil {
			return fmt.Errorf("op %s: missing scale", o.Name)
		}
		if o.InputShape != o.OutputShape || o.Scale.Len() != o.InputShape || o.Shift.Len() != o.InputShape {
			return fmt.Errorf("%w: op %s scale %d shift %d, declared %d->%d",
				ErrShape, o.Name, o.Scale.Len(), o.Shift.Len(), o.InputShape, o.OutputShape)
		}
	default:
		return fmt.Errorf("op %s: unknown kind %s", o.Name, o.Kind)
	}
	return nil
}

func (o *Op) apply(x *mat.VecDense) *mat.VecDense {
	y := mat.NewVecDense(o.OutputShape, nil)
	switch o.Kind {
	case Dense:
		y.MulVec(o.Weights, x)
		y.AddVec(y, o.Bias)
	case Affine:
		y.MulElemVec(o.Scale, x)
		y.AddVec(y, o.Shift)
	}
	for i := 0; i < y.Len(); i++ {
		y.SetVec(i, activate(o.Activation, y.AtVec(i)))
	}
	return y
}

func activate(a Activation, v float64) float64 {
	switch a {
	case ReLU:
		return math.Max(0, v)
	case Sigmoid:
		return 1 / (1 + math.Exp(-v))
	default:
		return v
	}
}

// Artifact is the compact inference-only model.
type Artifact struct {
	FeatureNames []string
	LabelNames   []string
	Ops          []Op
}

func (a *Artifact) InputShape() int {
	if len(a.Ops) == 0 {
		return 0
	}
	return a.Ops[0].InputShape
}

func (a *Artifact) OutputShape() int {
	if len(a.Ops) == 0 {
		return 0
	}
	return a.Ops[len(a.Ops)-1].OutputShape
}

// Validate checks every op and that consecutive shapes chain into the schema widths.
func (a *Artifact) Validate() error {
	if err := schema.CheckNames("features", a.FeatureNames, schema.FeatureNames); err != nil {
		return err
	}
	if err := schema.CheckNames("labels", a.LabelNames, schema.LabelNames); err != nil {
		return err
	}
	if len(a.Ops) == 0 {
		return errors.New("artifact has no ops")
	}
	for i := range a.Ops {
		if err := a.Ops[i].validate(); err != nil {
			return err
		}
		if i > 0 && a.Ops[i].InputShape != a.Ops[i-1].OutputShape {
			return fmt.Errorf("%w: op %s expects %d inputs, previous op produces %d",
				ErrShape, a.Ops[i].Name, a.Ops[i].InputShape, a.Ops[i-1].OutputShape)
		}
	}
	if a.InputShape() != len(a.FeatureNames) || a.OutputShape() != len(a.LabelNames) {
		return fmt.Errorf("%w: graph maps %d->%d, schema is %d->%d",
			ErrShape, a.InputShape(), a.OutputShape(), len(a.FeatureNames), len(a.LabelNames))
	}
	return nil
}

// Invoke runs one raw feature vector through the graph and returns label probabilities.
func (a *Artifact) Invoke(features []float64) ([]float64, error) {
	if err := schema.CheckFeatureVector(features); err != nil {
		return nil, err
	}
	if len(features) != a.InputShape() {
		return nil, fmt.Errorf("%w: artifact expects %d features", ErrShape, a.InputShape())
	}
	x := mat.NewVecDense(len(features), append([]float64(nil), features...))
	for i := range a.Ops {
		x = a.Ops[i].apply(x)
	}
	return mat.Col(nil, 0, x), nil
}
