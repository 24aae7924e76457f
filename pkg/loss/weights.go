package loss

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyColumn = errors.New("label column is empty")
	ErrNotBinary   = errors.New("label column is not binary")
)

// NeutralWeight is used for both classes of a label column in which one class never occurs.
const NeutralWeight = 1.0

// ClassWeight holds the loss weights of the negative and positive class of one label.
type ClassWeight struct {
	Negative float64
	Positive float64

	// Fallback is set when the column had a single class and the neutral weight was used.
	Fallback bool
}

// Balanced computes the inverse frequency weights n / (2 * count(c)) of a binary column.
func Balanced(column []float64) (ClassWeight, error) {
	if len(column) == 0 {
		return ClassWeight{}, ErrEmptyColumn
	}
	var positives int
	for i, v := range column {
		switch v {
		case 0:
		case 1:
			positives++
		default:
			return ClassWeight{}, fmt.Errorf("%w: value %v at row %d", ErrNotBinary, v, i)
		}
	}
	negatives := len(column) - positives
	if positives == 0 || negatives == 0 {
		return ClassWeight{Negative: NeutralWeight, Positive: NeutralWeight, Fallback: true}, nil
	}
	total := float64(len(column))
	return ClassWeight{
		Negative: total / (2 * float64(negatives)),
		Positive: total / (2 * float64(positives)),
	}, nil
}

// BalancedTable computes one ClassWeight per column of labels, where labels holds one
// row per example.
func BalancedTable(labels [][]float64, numLabels int) ([]ClassWeight, error) {
	if len(labels) == 0 {
		return nil, ErrEmptyColumn
	}
	columns := make([][]float64, numLabels)
	for i := range columns {
		columns[i] = make([]float64, len(labels))
	}
	for row, values := range labels {
		if len(values) != numLabels {
			return nil, fmt.Errorf("row %d has %d labels, expected %d", row, len(values), numLabels)
		}
		for i, v := range values {
			columns[i][row] = v
		}
	}
	result := make([]ClassWeight, numLabels)
	for i, column := range columns {
		w, err := Balanced(column)
		if err != nil {
			return nil, fmt.Errorf("label %d: %w", i, err)
		}
		result[i] = w
	}
	return result, nil
}
