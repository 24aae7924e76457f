package pkg

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v3"

	"mensus/pkg/model"
)

type TrainingParameters struct {
	BatchSize             int     `yaml:"batch_size"`
	NumEpochs             int     `yaml:"num_epochs"`
	LearningRate          float64 `yaml:"learning_rate"`
	ReportInterval        int     `yaml:"report_interval"`
	RndSeed               uint64  `yaml:"random_seed"`
	ValidationFraction    float64 `yaml:"validation_fraction"`
	GradientClipThreshold float64 `yaml:"gradient_clip_threshold"`
	PlotFile              string  `yaml:"plot_file"`
}

type Config struct {
	Training TrainingParameters  `yaml:"training"`
	Network  model.NetworkConfig `yaml:"network"`
}

func DefaultConfig() Config {
	return Config{
		Training: TrainingParameters{
			BatchSize:             8,
			NumEpochs:             100,
			LearningRate:          0.001,
			ReportInterval:        50,
			RndSeed:               42,
			ValidationFraction:    0.2,
			GradientClipThreshold: 2000.0,
		},
		Network: model.DefaultNetworkConfig(),
	}
}

// LoadConfig overlays the YAML file at configPath onto cfg. Keys missing from the file
// keep their current value.
func LoadConfig(configPath string, cfg *Config) error {
	data, err := ioutil.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("error reading config %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("error parsing config %s: %w", configPath, err)
	}
	return nil
}

func (c *Config) Validate() error {
	t := c.Training
	switch {
	case t.BatchSize < 1:
		return fmt.Errorf("batch size must be positive, got %d", t.BatchSize)
	case t.NumEpochs < 1:
		return fmt.Errorf("number of epochs must be positive, got %d", t.NumEpochs)
	case t.LearningRate <= 0:
		return fmt.Errorf("learning rate must be positive, got %f", t.LearningRate)
	case t.ReportInterval < 1:
		return fmt.Errorf("report interval must be positive, got %d", t.ReportInterval)
	case t.ValidationFraction < 0 || t.ValidationFraction >= 1:
		return fmt.Errorf("validation fraction must be in [0, 1), got %f", t.ValidationFraction)
	}
	n := c.Network
	switch {
	case n.FirstHiddenDimension < 1 || n.SecondHiddenDimension < 1:
		return fmt.Errorf("hidden dimensions must be positive, got %d and %d", n.FirstHiddenDimension, n.SecondHiddenDimension)
	case n.DropoutRate < 0 || n.DropoutRate >= 1:
		return fmt.Errorf("dropout rate must be in [0, 1), got %f", n.DropoutRate)
	case n.BatchMomentum < 0 || n.BatchMomentum >= 1:
		return fmt.Errorf("batch momentum must be in [0, 1), got %f", n.BatchMomentum)
	case n.BatchEpsilon <= 0:
		return fmt.Errorf("batch epsilon must be positive, got %f", n.BatchEpsilon)
	}
	return nil
}
