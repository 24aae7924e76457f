package model

import (
	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/initializers"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/nn/linear"
)

var (
	_ nn.Model = &Network{}
)

type NetworkConfig struct {
	InputDimension        int     `yaml:"input_dimension"`
	FirstHiddenDimension  int     `yaml:"first_hidden_dimension"`
	SecondHiddenDimension int     `yaml:"second_hidden_dimension"`
	OutputDimension       int     `yaml:"output_dimension"`
	DropoutRate           float64 `yaml:"dropout_rate"`
	BatchMomentum         float64 `yaml:"batch_momentum"`
	BatchEpsilon          float64 `yaml:"batch_epsilon"`
}

func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		InputDimension:        24,
		FirstHiddenDimension:  128,
		SecondHiddenDimension: 64,
		OutputDimension:       9,
		DropoutRate:           0.3,
		BatchMomentum:         0.99,
		BatchEpsilon:          0.001,
	}
}

// Network is the multi-label feed-forward classifier:
// dense(relu) -> batch norm -> dropout -> dense(relu) -> dropout -> dense(sigmoid).
type Network struct {
	nn.BaseModel
	NetworkConfig
	Hidden1 *linear.Model
	Norm    *BatchNorm
	Hidden2 *linear.Model
	Output  *linear.Model
}

func NewNetwork(config NetworkConfig) *Network {
	return &Network{
		NetworkConfig: config,
		Hidden1:       linear.New(config.InputDimension, config.FirstHiddenDimension),
		Norm:          NewBatchNorm(config.FirstHiddenDimension, config.BatchMomentum, config.BatchEpsilon),
		Hidden2:       linear.New(config.FirstHiddenDimension, config.SecondHiddenDimension),
		Output:        linear.New(config.SecondHiddenDimension, config.OutputDimension),
	}
}

func (m *Network) Init(generator *rand.LockedRand) {
	initializers.XavierUniform(m.Hidden1.W.Value(), initializers.Gain(ag.OpReLU), generator)
	initializers.XavierUniform(m.Hidden2.W.Value(), initializers.Gain(ag.OpReLU), generator)
	initializers.XavierUniform(m.Output.W.Value(), initializers.Gain(ag.OpSigmoid), generator)
}

// Forward maps standardized feature vectors to label probabilities. Dropout and batch
// statistics are only used when the network was reified in nn.Training mode.
func (m *Network) Forward(xs ...ag.Node) []ag.Node {
	g := m.Graph()
	h := m.activate(m.Hidden1.Forward(xs...), g.ReLU)
	h = m.dropout(m.Norm.Forward(h...))
	h = m.dropout(m.activate(m.Hidden2.Forward(h...), g.ReLU))
	return m.activate(m.Output.Forward(h...), g.Sigmoid)
}

func (m *Network) activate(xs []ag.Node, fn func(ag.Node) ag.Node) []ag.Node {
	for i := range xs {
		xs[i] = fn(xs[i])
	}
	return xs
}

func (m *Network) dropout(xs []ag.Node) []ag.Node {
	if m.Mode() != nn.Training || m.DropoutRate == 0 {
		return xs
	}
	g := m.Graph()
	for i := range xs {
		xs[i] = g.Dropout(xs[i], mat.Float(m.DropoutRate))
	}
	return xs
}
