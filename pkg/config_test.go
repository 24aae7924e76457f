package pkg

import (
	"errors"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, ioutil.WriteFile(fileName, []byte(`
training:
  num_epochs: 7
  learning_rate: 0.05
network:
  first_hidden_dimension: 32
  dropout_rate: 0.1
`), 0644))

	cfg := DefaultConfig()
	require.NoError(t, LoadConfig(fileName, &cfg))
	require.Equal(t, 7, cfg.Training.NumEpochs)
	require.Equal(t, 0.05, cfg.Training.LearningRate)
	require.Equal(t, 8, cfg.Training.BatchSize)
	require.Equal(t, 32, cfg.Network.FirstHiddenDimension)
	require.Equal(t, 64, cfg.Network.SecondHiddenDimension)
	require.Equal(t, 0.1, cfg.Network.DropoutRate)
	require.NoError(t, cfg.Validate())

	require.Error(t, LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), &cfg))
	require.NoError(t, ioutil.WriteFile(fileName, []byte("training: [1, 2"), 0644))
	require.Error(t, LoadConfig(fileName, &cfg))
}

func TestConfig_Validate(t *testing.T) {
	defaultCfg := DefaultConfig()
	require.NoError(t, defaultCfg.Validate())

	for name, mutate := range map[string]func(*Config){
		"batch size":    func(c *Config) { c.Training.BatchSize = 0 },
		"epochs":        func(c *Config) { c.Training.NumEpochs = 0 },
		"learning rate": func(c *Config) { c.Training.LearningRate = 0 },
		"validation":    func(c *Config) { c.Training.ValidationFraction = 1 },
		"hidden":        func(c *Config) { c.Network.SecondHiddenDimension = 0 },
		"dropout":       func(c *Config) { c.Network.DropoutRate = 1 },
		"momentum":      func(c *Config) { c.Network.BatchMomentum = -0.1 },
		"epsilon":       func(c *Config) { c.Network.BatchEpsilon = 0 },
	} {
		cfg := DefaultConfig()
		mutate(&cfg)
		require.Error(t, cfg.Validate(), name)
	}
}

func TestStageError(t *testing.T) {
	cause := errors.New("boom")
	err := stageError(StageConvert, cause)
	require.Equal(t, "convert: boom", err.Error())
	require.True(t, errors.Is(err, cause))
	require.NoError(t, stageError(StageConvert, nil))
}
