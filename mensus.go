package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"mensus/pkg"
	"mensus/pkg/schema"
)

func TrainCommand() *cobra.Command {

	var trainFile string
	var outputFile string
	var configFile string
	cfg := pkg.DefaultConfig()

	var cmd = &cobra.Command{
		Use:   "train -i trainData -o outputFile [--config config.yaml]",
		Short: "Trains a new model on the provided training data and saves the trained model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				if err := overlayConfig(cmd.Flags(), configFile, &cfg); err != nil {
					return err
				}
			}
			_, err := pkg.Train(trainFile, outputFile, cfg)
			return err
		},
	}

	training := &cfg.Training
	network := &cfg.Network
	cmd.Flags().StringVarP(&trainFile, "train-file", "i", "", "name of train file")
	cmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "name of the file to save model to.")
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML file with training and network parameters, overridden by flags")
	cmd.Flags().IntVarP(&training.BatchSize, "batch-size", "b", training.BatchSize, "batch size")
	cmd.Flags().Float64VarP(&training.LearningRate, "learning-rate", "l", training.LearningRate, "learning rate")
	cmd.Flags().IntVarP(&training.ReportInterval, "report-interval", "r", training.ReportInterval, "loss report interval")
	cmd.Flags().IntVarP(&training.NumEpochs, "num-epochs", "n", training.NumEpochs, "number of epochs to train")
	cmd.Flags().Uint64VarP(&training.RndSeed, "random-seed", "x", training.RndSeed, "random seed")
	cmd.Flags().Float64VarP(&training.ValidationFraction, "validation-fraction", "v", training.ValidationFraction, "fraction of the data held out for validation")
	cmd.Flags().Float64VarP(&training.GradientClipThreshold, "gradient-clip", "", training.GradientClipThreshold, "gradient clipping threshold")
	cmd.Flags().StringVarP(&training.PlotFile, "plot-file", "p", "", "name of the PNG file to plot the training history to (optional)")

	cmd.Flags().IntVarP(&network.FirstHiddenDimension, "hidden-1", "", network.FirstHiddenDimension, "width of the first hidden layer")
	cmd.Flags().IntVarP(&network.SecondHiddenDimension, "hidden-2", "", network.SecondHiddenDimension, "width of the second hidden layer")
	cmd.Flags().Float64VarP(&network.DropoutRate, "dropout", "d", network.DropoutRate, "dropout rate")
	cmd.Flags().Float64VarP(&network.BatchMomentum, "batch-momentum", "", network.BatchMomentum, "batch momentum")
	cmd.Flags().Float64VarP(&network.BatchEpsilon, "batch-epsilon", "", network.BatchEpsilon, "batch normalization epsilon")

	_ = cmd.MarkFlagRequired("train-file")
	_ = cmd.MarkFlagRequired("output-file")

	return cmd
}

// overlayConfig reads configFile into cfg and then re-applies the flags set on the
// command line, so the precedence is flag, file, default.
func overlayConfig(flags *pflag.FlagSet, configFile string, cfg *pkg.Config) error {
	changed := map[string]string{}
	flags.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})
	if err := pkg.LoadConfig(configFile, cfg); err != nil {
		return err
	}
	for name, value := range changed {
		if err := flags.Set(name, value); err != nil {
			return fmt.Errorf("error applying flag %s: %w", name, err)
		}
	}
	return nil
}

func ConvertCommand() *cobra.Command {
	var modelFile string
	var outputFile string
	params := pkg.DefaultConvertParameters()

	var cmd = &cobra.Command{
		Use:   "convert -m modelFile -o outputFile",
		Short: "Exports a trained model to the compact inference format after checking both agree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := pkg.Convert(modelFile, outputFile, params)
			return err
		},
	}

	cmd.Flags().StringVarP(&modelFile, "model", "m", "", "name of model to convert")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "name of compact model file")
	cmd.Flags().IntVarP(&params.VerifySamples, "verify-samples", "s", params.VerifySamples, "number of sample inputs both models must agree on")
	cmd.Flags().Float64VarP(&params.Tolerance, "tolerance", "t", params.Tolerance, "largest accepted absolute difference between probabilities")
	cmd.Flags().Uint64VarP(&params.RndSeed, "random-seed", "x", params.RndSeed, "random seed of the sample inputs")

	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func PredictCommand() *cobra.Command {
	var modelFile string
	var features []float64
	var inputFile string
	var threshold float64

	var cmd = &cobra.Command{
		Use:   "predict -m compactModel (--features f1,...,f24 | -i inputFile)",
		Short: "Runs the compact model on one feature vector or on every row of a CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			predictions, labelNames, err := pkg.PredictInput(modelFile, features, inputFile, threshold)
			if err != nil {
				return err
			}
			return pkg.WritePredictions(cmd.OutOrStdout(), labelNames, predictions)
		},
	}

	cmd.Flags().StringVarP(&modelFile, "model", "m", "", "name of compact model")
	cmd.Flags().Float64SliceVarP(&features, "features", "f", nil, "comma separated feature values in schema order")
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "name of CSV file with one feature row per line")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", schema.DefaultThreshold, "probability at or above which a label is predicted")

	_ = cmd.MarkFlagRequired("model")

	return cmd
}

func TestCommand() *cobra.Command {
	var modelFile string
	var inputFile string
	var outputFile string

	var cmd = &cobra.Command{
		Use:   "test -m modelFile -i testData [-o outputFile]",
		Short: "Runs the provided model on the labelled data input and reports per-label metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := pkg.Test(modelFile, inputFile, outputFile)
			return err
		},
	}

	cmd.Flags().StringVarP(&modelFile, "model", "m", "", "name of model to test")
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "name of data input file")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "name of output file for the probabilities (optional)")

	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

var logLevel string
var logFormat string

func RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               "mensus",
		Short:             "Trains, converts and runs the menstrual health multi-label classifier",
		PersistentPreRunE: setupLogging,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	root.PersistentFlags().StringVarP(&logLevel, "log-level", "", "info", "Logging level: info error or debug")
	root.PersistentFlags().StringVarP(&logFormat, "log-format", "", "pretty", "Logging format: pretty or json")

	root.AddCommand(TrainCommand())
	root.AddCommand(ConvertCommand())
	root.AddCommand(PredictCommand())
	root.AddCommand(TestCommand())
	return root
}

func main() {
	if err := RootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {

	switch logLevel {
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	default:
		return fmt.Errorf("invalid logging level %q", logLevel)
	}

	switch logFormat {
	case "pretty":
		setupPrettyLogging()
	case "json":
	default:
		return fmt.Errorf("invalid log format %q", logFormat)
	}
	return nil
}

func setupPrettyLogging() {
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	writer.FormatFieldValue = func(i interface{}) string {
		switch v := i.(type) {
		case json.Number:
			val, _ := v.Float64()
			return fmt.Sprintf("%.3f", val)
		default:
			return fmt.Sprintf("%s", i)
		}

	}
	log.Logger = log.Output(writer)

}
