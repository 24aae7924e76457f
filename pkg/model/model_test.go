package model

import (
	"errors"
	"testing"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/nn/linear"
	"github.com/stretchr/testify/require"

	"mensus/pkg/loss"
	"mensus/pkg/schema"
)

const testBatchSize = 20

func newTestModel(t *testing.T) *Model {
	rows := createRows(50, 7)
	scaler, err := FitStandardizer(rows)
	require.NoError(t, err)

	metaData := NewMetadata()
	metaData.Scaler = scaler
	metaData.ClassWeights = make([]loss.ClassWeight, schema.NumLabels)
	for i := range metaData.ClassWeights {
		metaData.ClassWeights[i] = loss.ClassWeight{Negative: 1, Positive: 1}
	}

	network := NewNetwork(DefaultNetworkConfig())
	network.Init(rand.NewLockedRand(42))
	m := &Model{MetaData: metaData, Network: network}
	require.NoError(t, m.Validate())
	return m
}

func createRows(n int, seed uint64) [][]float64 {
	r := rand.NewLockedRand(seed)
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, schema.NumFeatures)
		for j := range rows[i] {
			rows[i][j] = float64(r.Float() * 5)
		}
	}
	return rows
}

func createInput(g *ag.Graph, config NetworkConfig) []ag.Node {
	input := make([]ag.Node, testBatchSize)
	r := rand.NewLockedRand(1)
	for i := range input {
		values := make([]mat.Float, config.InputDimension)
		for j := range values {
			values[j] = r.Float()
		}
		input[i] = g.NewVariable(mat.NewVecDense(values), false)
	}
	return input
}

func TestNetwork_Forward(t *testing.T) {
	for _, mode := range []nn.ProcessingMode{nn.Training, nn.Inference} {
		m := newTestModel(t)
		g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
		proc := m.Reify(g, mode)
		result := proc.Forward(createInput(g, m.Network.NetworkConfig)...)
		require.Equal(t, testBatchSize, len(result))
		for _, r := range result {
			require.Equal(t, schema.NumLabels, r.Value().Rows())
			for _, p := range r.Value().Data() {
				require.True(t, p > 0 && p < 1, "probability %f out of range", p)
			}
		}
		g.Clear()
	}
}

func TestBatchNorm_RunningStatistics(t *testing.T) {
	m := newTestModel(t)
	before := append([]mat.Float(nil), m.Network.Norm.RunningMean...)

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	m.Reify(g, nn.Inference).Forward(createInput(g, m.Network.NetworkConfig)...)
	g.Clear()
	require.Equal(t, before, m.Network.Norm.RunningMean)

	g = ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	m.Reify(g, nn.Training).Forward(createInput(g, m.Network.NetworkConfig)...)
	g.Clear()
	require.NotEqual(t, before, m.Network.Norm.RunningMean)
}

func TestModel_PredictDeterministic(t *testing.T) {
	m := newTestModel(t)
	input := [][]float64{{7, 0, 1, 0, 0, 0, 1, 0, 1, 0, 1, 0, 0, 3, 2, 1, 3, 2, 4, 2, 1, 0, 0, 0}}

	first, err := m.Predict(input)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Len(t, first[0], schema.NumLabels)

	second, err := m.Predict(input)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestModel_PredictWrongLength(t *testing.T) {
	m := newTestModel(t)
	_, err := m.Predict([][]float64{make([]float64, 23)})
	require.True(t, errors.Is(err, schema.ErrFeatureLength))
}

func TestModel_Validate(t *testing.T) {
	m := newTestModel(t)
	m.MetaData.FeatureNames[0], m.MetaData.FeatureNames[1] = m.MetaData.FeatureNames[1], m.MetaData.FeatureNames[0]
	require.Error(t, m.Validate())

	m = newTestModel(t)
	m.MetaData.ClassWeights = m.MetaData.ClassWeights[:3]
	require.Error(t, m.Validate())

	require.Error(t, (&Model{}).Validate())
}

func TestModel_ValidateParameterShapes(t *testing.T) {
	m := newTestModel(t)
	m.Network.Hidden2 = linear.New(m.Network.FirstHiddenDimension+1, m.Network.SecondHiddenDimension)
	require.Error(t, m.Validate())

	m = newTestModel(t)
	m.Network.Output = linear.New(m.Network.SecondHiddenDimension, m.Network.OutputDimension-1)
	require.Error(t, m.Validate())

	m = newTestModel(t)
	m.Network.Norm.RunningVar = m.Network.Norm.RunningVar[:3]
	require.Error(t, m.Validate())

	m = newTestModel(t)
	m.Network.Norm.W = nil
	require.Error(t, m.Validate())

	m = newTestModel(t)
	m.Network.Hidden1 = nil
	require.Error(t, m.Validate())
}

func TestStandardizer(t *testing.T) {
	rows := [][]float64{{1, 5}, {3, 5}}
	s, err := FitStandardizer(rows)
	require.NoError(t, err)
	require.Equal(t, []float64{2, 5}, s.Mean)
	require.Equal(t, []float64{1, 1}, s.Scale)
	require.Equal(t, []float64{-1, 0}, s.Transform(rows[0]))

	_, err = FitStandardizer(nil)
	require.Error(t, err)
	_, err = FitStandardizer([][]float64{{1, 2}, {1}})
	require.Error(t, err)
}
