package model

import (
	"fmt"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/nn/linear"

	"mensus/pkg/schema"
)

// Model is the full trainable artifact.
type Model struct {
	MetaData *Metadata
	Network  *Network
}

// Validate checks the artifact against the feature/label schema and the network shape.
func (m *Model) Validate() error {
	if m.MetaData == nil || m.Network == nil {
		return fmt.Errorf("incomplete model")
	}
	if err := m.MetaData.Validate(); err != nil {
		return err
	}
	if m.Network.InputDimension != m.MetaData.FeatureCount() {
		return fmt.Errorf("network input dimension %d does not match %d features", m.Network.InputDimension, m.MetaData.FeatureCount())
	}
	if m.Network.OutputDimension != m.MetaData.LabelCount() {
		return fmt.Errorf("network output dimension %d does not match %d labels", m.Network.OutputDimension, m.MetaData.LabelCount())
	}
	return m.Network.validateShapes()
}

// validateShapes checks the parameters against the configured layer widths.
func (m *Network) validateShapes() error {
	if m.Hidden1 == nil || m.Norm == nil || m.Hidden2 == nil || m.Output == nil {
		return fmt.Errorf("incomplete network")
	}
	layers := []struct {
		name    string
		layer   *linear.Model
		in, out int
	}{
		{"hidden1", m.Hidden1, m.InputDimension, m.FirstHiddenDimension},
		{"hidden2", m.Hidden2, m.FirstHiddenDimension, m.SecondHiddenDimension},
		{"output", m.Output, m.SecondHiddenDimension, m.OutputDimension},
	}
	for _, l := range layers {
		if err := checkParam(l.name+".W", l.layer.W, l.out, l.in); err != nil {
			return err
		}
		if err := checkParam(l.name+".B", l.layer.B, l.out, 1); err != nil {
			return err
		}
	}
	size := m.FirstHiddenDimension
	if err := checkParam("norm.W", m.Norm.W, size, 1); err != nil {
		return err
	}
	if err := checkParam("norm.B", m.Norm.B, size, 1); err != nil {
		return err
	}
	if len(m.Norm.RunningMean) != size || len(m.Norm.RunningVar) != size {
		return fmt.Errorf("norm running statistics have %d/%d values, expected %d",
			len(m.Norm.RunningMean), len(m.Norm.RunningVar), size)
	}
	return nil
}

func checkParam(name string, p nn.Param, rows, columns int) error {
	if p == nil || p.Value() == nil {
		return fmt.Errorf("parameter %s is missing", name)
	}
	if p.Value().Rows() != rows || p.Value().Columns() != columns {
		return fmt.Errorf("parameter %s is %dx%d, expected %dx%d", name, p.Value().Rows(), p.Value().Columns(), rows, columns)
	}
	return nil
}

// Reify binds the network to g in the given processing mode.
func (m *Model) Reify(g *ag.Graph, mode nn.ProcessingMode) *Network {
	return nn.Reify(nn.Context{Graph: g, Mode: mode}, m.Network).(*Network)
}

// Predict standardizes the raw feature rows and returns one probability vector per row.
func (m *Model) Predict(features [][]float64) ([][]float64, error) {
	for i, row := range features {
		if err := schema.CheckFeatureVector(row); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	if len(features) == 0 {
		return nil, nil
	}

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	defer g.Clear()
	output := m.Reify(g, nn.Inference).Forward(m.Inputs(g, features)...)

	result := make([][]float64, len(output))
	for i, node := range output {
		result[i] = FromFloat(node.Value().Data())
	}
	return result, nil
}

// Inputs standardizes raw feature rows and wraps them in graph nodes.
func (m *Model) Inputs(g *ag.Graph, features [][]float64) []ag.Node {
	return InputNodes(g, m.MetaData.Scaler.TransformAll(features))
}

// InputNodes wraps every row in a constant graph node.
func InputNodes(g *ag.Graph, rows [][]float64) []ag.Node {
	result := make([]ag.Node, len(rows))
	for i, row := range rows {
		result[i] = g.NewVariable(mat.NewVecDense(ToFloat(row)), false)
	}
	return result
}

func ToFloat(values []float64) []mat.Float {
	result := make([]mat.Float, len(values))
	for i, v := range values {
		result[i] = mat.Float(v)
	}
	return result
}

func FromFloat(values []mat.Float) []float64 {
	result := make([]float64, len(values))
	for i, v := range values {
		result[i] = float64(v)
	}
	return result
}
