package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"mensus/pkg/compact"
	"mensus/pkg/io"
	"mensus/pkg/schema"
)

const manualFeatures = "7,0,1,0,0,0,1,0,1,0,1,0,0,3,2,1,3,2,4,2,1,0,0,0"

func writeSurvey(t *testing.T, fileName string, n int, columns []string) {
	var b strings.Builder
	b.WriteString(strings.Join(columns, ",") + "\n")
	for _, features := range compact.SampleInputs(n, 9) {
		values := make([]string, 0, len(columns))
		for _, v := range features {
			values = append(values, fmt.Sprint(v))
		}
		for j := len(features); j < len(columns); j++ {
			values = append(values, fmt.Sprint(features[j-schema.NumFeatures+1]))
		}
		b.WriteString(strings.Join(values, ",") + "\n")
	}
	require.NoError(t, ioutil.WriteFile(fileName, []byte(b.String()), 0644))
}

func execute(t *testing.T, args string) (string, string, error) {
	logs := &bytes.Buffer{}
	log.Logger = zerolog.New(logs)
	out := &bytes.Buffer{}
	root := RootCommand()
	root.SetOut(out)
	root.SetArgs(append([]string{"--log-format", "json"}, strings.Fields(args)...))
	err := root.Execute()
	return out.String(), logs.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "survey.csv")
	writeSurvey(t, dataFile, 60, schema.Columns())
	featureFile := filepath.Join(dir, "rows.csv")
	writeSurvey(t, featureFile, 3, schema.FeatureNames)
	configFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, ioutil.WriteFile(configFile, []byte("training:\n  num_epochs: 50\n  batch_size: 16\nnetwork:\n  first_hidden_dimension: 16\n  second_hidden_dimension: 8\n"), 0644))
	modelFile := filepath.Join(dir, "model.bin")
	compactFile := filepath.Join(dir, "model.mensus")

	_, logs, err := execute(t, fmt.Sprintf("train -i %s -o %s -c %s -n 2", dataFile, modelFile, configFile))
	require.NoError(t, err)
	require.Contains(t, logs, `"Epoch":1`)
	require.NotContains(t, logs, `"Epoch":2`)
	require.Contains(t, logs, `"Label":"PCOS"`)
	require.NotContains(t, strings.ToLower(logs), "error")

	m, err := io.LoadModelFile(modelFile)
	require.NoError(t, err)
	require.Equal(t, 16, m.Network.FirstHiddenDimension)
	require.Equal(t, 8, m.Network.SecondHiddenDimension)
	require.Len(t, m.MetaData.History, 2)

	_, logs, err = execute(t, fmt.Sprintf("convert -m %s -o %s", modelFile, compactFile))
	require.NoError(t, err)
	require.Contains(t, logs, "Verified compact model")

	out, _, err := execute(t, fmt.Sprintf("predict -m %s --features %s", compactFile, manualFeatures))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, schema.NumLabels)
	for i, line := range lines {
		require.True(t, strings.HasPrefix(line, schema.LabelNames[i]+" -> "))
		require.Contains(t, line, "(prob=")
	}

	out, _, err = execute(t, fmt.Sprintf("predict -m %s -i %s -t 0", compactFile, featureFile))
	require.NoError(t, err)
	require.Equal(t, 3, strings.Count(out, "row "))
	require.Equal(t, 3*schema.NumLabels, strings.Count(out, " -> 1 "))

	_, logs, err = execute(t, fmt.Sprintf("test -m %s -i %s", modelFile, dataFile))
	require.NoError(t, err)
	require.Contains(t, logs, "MacroF1")
	require.Contains(t, logs, `"Label":"Anemia"`)
}

func TestCommandErrors(t *testing.T) {
	dir := t.TempDir()
	_, _, err := execute(t, fmt.Sprintf("train -i %s -o %s", filepath.Join(dir, "missing.csv"), filepath.Join(dir, "model.bin")))
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), "train: "))

	_, _, err = execute(t, fmt.Sprintf("predict -m %s", filepath.Join(dir, "model.mensus")))
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), "predict: "))

	_, _, err = execute(t, fmt.Sprintf("predict -m %s --features 1,2,3", filepath.Join(dir, "model.mensus")))
	require.True(t, errors.Is(err, schema.ErrFeatureLength))
	require.True(t, strings.HasPrefix(err.Error(), "predict: "))

	_, _, err = execute(t, fmt.Sprintf("predict -m %s --features 1,x", filepath.Join(dir, "model.mensus")))
	require.Error(t, err)

	_, _, err = execute(t, "--log-level verbose test -m a -i b")
	require.Error(t, err)
}
