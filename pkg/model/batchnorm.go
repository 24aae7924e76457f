package model

import (
	"math"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
)

var (
	_ nn.Model = &BatchNorm{}
)

// BatchNorm normalizes with the statistics of the current batch while training and
// with the running statistics otherwise. The running statistics are plain values so
// the optimizer never touches them.
type BatchNorm struct {
	nn.BaseModel
	W           nn.Param
	B           nn.Param
	RunningMean []mat.Float
	RunningVar  []mat.Float
	Momentum    mat.Float
	Epsilon     mat.Float
}

func NewBatchNorm(size int, momentum, epsilon float64) *BatchNorm {
	runningVar := make([]mat.Float, size)
	for i := range runningVar {
		runningVar[i] = 1
	}
	return &BatchNorm{
		W:           nn.NewParam(mat.NewInitVecDense(size, 1.0)),
		B:           nn.NewParam(mat.NewEmptyVecDense(size)),
		RunningMean: make([]mat.Float, size),
		RunningVar:  runningVar,
		Momentum:    mat.Float(momentum),
		Epsilon:     mat.Float(epsilon),
	}
}

func (m *BatchNorm) Forward(xs ...ag.Node) []ag.Node {
	if len(xs) == 0 {
		return nil
	}
	if m.Mode() == nn.Training {
		return m.forwardTraining(xs)
	}
	return m.forwardInference(xs)
}

func (m *BatchNorm) forwardTraining(xs []ag.Node) []ag.Node {
	g := m.Graph()
	n := g.NewScalar(mat.Float(len(xs)))

	var sum ag.Node
	for _, x := range xs {
		sum = g.Add(sum, x)
	}
	mean := g.DivScalar(sum, n)

	var squares ag.Node
	for _, x := range xs {
		squares = g.Add(squares, g.Square(g.Sub(x, mean)))
	}
	variance := g.DivScalar(squares, n)
	stdDev := g.Sqrt(g.AddScalar(variance, g.NewScalar(m.Epsilon)))

	m.updateRunningStats(mean.Value().Data(), variance.Value().Data())

	ys := make([]ag.Node, len(xs))
	for i, x := range xs {
		ys[i] = g.Add(g.Prod(g.Div(g.Sub(x, mean), stdDev), m.W), m.B)
	}
	return ys
}

func (m *BatchNorm) updateRunningStats(mean, variance []mat.Float) {
	for i := range m.RunningMean {
		m.RunningMean[i] = m.Momentum*m.RunningMean[i] + (1-m.Momentum)*mean[i]
		m.RunningVar[i] = m.Momentum*m.RunningVar[i] + (1-m.Momentum)*variance[i]
	}
}

func (m *BatchNorm) forwardInference(xs []ag.Node) []ag.Node {
	g := m.Graph()
	mean := g.NewVariable(mat.NewVecDense(append([]mat.Float(nil), m.RunningMean...)), false)
	invStdDev := g.NewVariable(mat.NewVecDense(m.InverseStdDev()), false)
	ys := make([]ag.Node, len(xs))
	for i, x := range xs {
		ys[i] = g.Add(g.Prod(g.Prod(g.Sub(x, mean), invStdDev), m.W), m.B)
	}
	return ys
}

// InverseStdDev returns 1/sqrt(runningVar+epsilon) for every unit.
func (m *BatchNorm) InverseStdDev() []mat.Float {
	result := make([]mat.Float, len(m.RunningVar))
	for i, v := range m.RunningVar {
		result[i] = mat.Float(1 / math.Sqrt(float64(v+m.Epsilon)))
	}
	return result
}
