package pkg

import (
	"errors"
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"mensus/pkg/compact"
	"mensus/pkg/io"
	"mensus/pkg/schema"
)

var manualInput = []float64{7, 0, 1, 0, 0, 0, 1, 0, 1, 0, 1, 0, 0, 3, 2, 1, 3, 2, 4, 2, 1, 0, 0, 0}

// writeDataset writes n survey rows whose label j copies the yes/no answer in feature
// column j+1. Labels listed in constant are always 0.
func writeDataset(t *testing.T, dir string, n int, seed uint64, constant ...int) string {
	zero := map[int]bool{}
	for _, j := range constant {
		zero[j] = true
	}
	var b strings.Builder
	b.WriteString(strings.Join(schema.Columns(), ",") + "\n")
	for _, features := range compact.SampleInputs(n, seed) {
		values := make([]string, 0, schema.NumFeatures+schema.NumLabels)
		for _, v := range features {
			values = append(values, fmt.Sprint(v))
		}
		for j := 0; j < schema.NumLabels; j++ {
			label := features[j+1]
			if zero[j] {
				label = 0
			}
			values = append(values, fmt.Sprint(label))
		}
		b.WriteString(strings.Join(values, ",") + "\n")
	}
	fileName := filepath.Join(dir, fmt.Sprintf("data-%d.csv", seed))
	require.NoError(t, ioutil.WriteFile(fileName, []byte(b.String()), 0644))
	return fileName
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Training.NumEpochs = 3
	cfg.Training.BatchSize = 8
	cfg.Training.LearningRate = 0.01
	cfg.Network.FirstHiddenDimension = 16
	cfg.Network.SecondHiddenDimension = 8
	return cfg
}

func TestPipeline(t *testing.T) {
	dir := t.TempDir()
	dataFile := writeDataset(t, dir, 80, 1)
	modelFile := filepath.Join(dir, "model.bin")
	compactFile := filepath.Join(dir, "model.mensus")

	cfg := testConfig()
	cfg.Training.PlotFile = filepath.Join(dir, "history.png")
	m, err := Train(dataFile, modelFile, cfg)
	require.NoError(t, err)
	require.Len(t, m.MetaData.History, cfg.Training.NumEpochs)
	for _, s := range m.MetaData.History {
		require.False(t, math.IsNaN(s.Loss))
		require.False(t, math.IsNaN(s.ValLoss))
		require.Greater(t, s.Loss, 0.0)
	}
	for _, w := range m.MetaData.ClassWeights {
		require.False(t, w.Fallback)
	}
	info, err := os.Stat(cfg.Training.PlotFile)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))

	a, err := Convert(modelFile, compactFile, DefaultConvertParameters())
	require.NoError(t, err)
	require.Len(t, a.Ops, 3)

	predictions, labelNames, err := Predict(compactFile, [][]float64{manualInput}, schema.DefaultThreshold)
	require.NoError(t, err)
	require.Equal(t, schema.LabelNames, labelNames)
	require.Len(t, predictions, 1)
	require.Len(t, predictions[0].Probabilities, schema.NumLabels)
	for j, p := range predictions[0].Probabilities {
		require.True(t, p >= 0 && p <= 1)
		require.Equal(t, p >= schema.DefaultThreshold, predictions[0].Labels[j] == 1)
	}

	expected, err := m.Predict([][]float64{manualInput})
	require.NoError(t, err)
	for j := range expected[0] {
		require.InDelta(t, expected[0][j], predictions[0].Probabilities[j], compact.DefaultTolerance)
	}

	outputFile := filepath.Join(dir, "probabilities.csv")
	report, err := Test(modelFile, dataFile, outputFile)
	require.NoError(t, err)
	require.Len(t, report.Labels, schema.NumLabels)
	require.True(t, report.MicroF1 >= 0 && report.MicroF1 <= 1)
	require.True(t, report.MacroF1 >= 0 && report.MacroF1 <= 1)
	content, err := ioutil.ReadFile(outputFile)
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(string(content)), "\n"), 80)
}

func TestTrain_Deterministic(t *testing.T) {
	dir := t.TempDir()
	dataFile := writeDataset(t, dir, 40, 2)
	cfg := testConfig()
	cfg.Training.NumEpochs = 2

	first, err := Train(dataFile, filepath.Join(dir, "first.bin"), cfg)
	require.NoError(t, err)
	second, err := Train(dataFile, filepath.Join(dir, "second.bin"), cfg)
	require.NoError(t, err)

	p1, err := first.Predict([][]float64{manualInput})
	require.NoError(t, err)
	p2, err := second.Predict([][]float64{manualInput})
	require.NoError(t, err)
	require.InDeltaSlice(t, p1[0], p2[0], 1e-4)
	require.Equal(t, first.MetaData.ClassWeights, second.MetaData.ClassWeights)
}

func TestTrain_SingleClassLabel(t *testing.T) {
	dir := t.TempDir()
	dataFile := writeDataset(t, dir, 40, 3, 4)
	cfg := testConfig()
	cfg.Training.NumEpochs = 1

	m, err := Train(dataFile, filepath.Join(dir, "model.bin"), cfg)
	require.NoError(t, err)
	w := m.MetaData.ClassWeights[4]
	require.True(t, w.Fallback)
	require.Equal(t, 1.0, w.Negative)
	require.Equal(t, 1.0, w.Positive)
}

func TestTrain_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := Train(filepath.Join(dir, "missing.csv"), filepath.Join(dir, "model.bin"), testConfig())
	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, StageTrain, stageErr.Stage)
	require.True(t, strings.HasPrefix(err.Error(), "train: "))

	cfg := testConfig()
	cfg.Training.BatchSize = 0
	_, err = Train(writeDataset(t, dir, 10, 4), filepath.Join(dir, "model.bin"), cfg)
	require.Error(t, err)
	_, err = os.Stat(filepath.Join(dir, "model.bin"))
	require.True(t, os.IsNotExist(err))
}

func TestConvert_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := Convert(filepath.Join(dir, "missing.bin"), filepath.Join(dir, "model.mensus"), DefaultConvertParameters())
	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, StageConvert, stageErr.Stage)

	dataFile := writeDataset(t, dir, 20, 5)
	modelFile := filepath.Join(dir, "model.bin")
	cfg := testConfig()
	cfg.Training.NumEpochs = 1
	_, err = Train(dataFile, modelFile, cfg)
	require.NoError(t, err)

	params := DefaultConvertParameters()
	params.Tolerance = 0
	_, err = Convert(modelFile, filepath.Join(dir, "model.mensus"), params)
	require.True(t, errors.Is(err, compact.ErrEquivalence))
	_, err = os.Stat(filepath.Join(dir, "model.mensus"))
	require.True(t, os.IsNotExist(err))
}

func TestPredict_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.mensus")
	require.NoError(t, ioutil.WriteFile(garbage, []byte("not a model"), 0644))
	_, _, err := Predict(garbage, [][]float64{manualInput}, 0.5)
	require.True(t, errors.Is(err, compact.ErrBadMagic))
	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, StagePredict, stageErr.Stage)

	_, err = io.LoadModelFile(garbage)
	require.Error(t, err)
}

func TestTest_OutputFile(t *testing.T) {
	dir := t.TempDir()
	dataFile := writeDataset(t, dir, 20, 6)
	modelFile := filepath.Join(dir, "model.bin")
	cfg := testConfig()
	cfg.Training.NumEpochs = 1
	_, err := Train(dataFile, modelFile, cfg)
	require.NoError(t, err)

	missing := filepath.Join(dir, "missing", "probabilities.csv")
	_, err = Test(modelFile, dataFile, missing)
	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, StageTest, stageErr.Stage)
	_, err = os.Stat(missing)
	require.True(t, os.IsNotExist(err))

	outputFile := filepath.Join(dir, "probabilities.csv")
	require.NoError(t, ioutil.WriteFile(outputFile, []byte("stale\n"), 0644))
	_, err = Test(modelFile, dataFile, outputFile)
	require.NoError(t, err)
	content, err := ioutil.ReadFile(outputFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 20)
	require.NotContains(t, string(content), "stale")
	require.Len(t, strings.Split(lines[0], ","), schema.NumLabels)

	entries, err := ioutil.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)
}
