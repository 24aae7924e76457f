package pkg

import (
	"fmt"
	gio "io"

	"mensus/pkg/compact"
	"mensus/pkg/io"
	"mensus/pkg/schema"
)

type Prediction struct {
	Probabilities []float64
	Labels        []int
}

// Predict runs every feature row through the compact model in compactFileName.
func Predict(compactFileName string, features [][]float64, threshold float64) ([]Prediction, []string, error) {
	a, err := io.LoadCompactFile(compactFileName)
	if err != nil {
		return nil, nil, stageError(StagePredict, err)
	}
	predictions, err := PredictWith(a, features, threshold)
	return predictions, a.LabelNames, stageError(StagePredict, err)
}

// PredictInput predicts either the single feature vector features or every row of the
// CSV file inputFileName. Exactly one of them must be given.
func PredictInput(compactFileName string, features []float64, inputFileName string, threshold float64) ([]Prediction, []string, error) {
	rows, err := predictionRows(features, inputFileName)
	if err != nil {
		return nil, nil, stageError(StagePredict, err)
	}
	return Predict(compactFileName, rows, threshold)
}

func predictionRows(features []float64, inputFileName string) ([][]float64, error) {
	switch {
	case len(features) > 0 && inputFileName != "":
		return nil, fmt.Errorf("only one of features and input file may be given")
	case len(features) > 0:
		if err := schema.CheckFeatureVector(features); err != nil {
			return nil, err
		}
		return [][]float64{features}, nil
	case inputFileName != "":
		rows, err := io.LoadFeatures(inputFileName)
		if err != nil {
			return nil, fmt.Errorf("error loading features from %s: %w", inputFileName, err)
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("no feature rows in %s", inputFileName)
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("one of features and input file is required")
	}
}

func PredictWith(a *compact.Artifact, features [][]float64, threshold float64) ([]Prediction, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold %g must be in [0, 1]", threshold)
	}
	result := make([]Prediction, len(features))
	for i, row := range features {
		probabilities, err := a.Invoke(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		result[i] = Prediction{
			Probabilities: probabilities,
			Labels:        schema.Threshold(probabilities, threshold),
		}
	}
	return result, nil
}

// WritePredictions prints one "label -> prediction (prob=p)" line per label and row.
func WritePredictions(w gio.Writer, labelNames []string, predictions []Prediction) error {
	for i, p := range predictions {
		if len(predictions) > 1 {
			if _, err := fmt.Fprintf(w, "row %d\n", i); err != nil {
				return err
			}
		}
		for j, name := range labelNames {
			if _, err := fmt.Fprintf(w, "%s -> %d (prob=%.3f)\n", name, p.Labels[j], p.Probabilities[j]); err != nil {
				return err
			}
		}
	}
	return nil
}
