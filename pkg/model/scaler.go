package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Standardizer maps every feature column to zero mean and unit variance.
type Standardizer struct {
	Mean  []float64
	Scale []float64
}

// FitStandardizer computes the population mean and standard deviation of every column
// of rows. Constant columns get a scale of 1.
func FitStandardizer(rows [][]float64) (*Standardizer, error) {
	if len(rows) == 0 {
		return nil, errors.New("no rows to fit scaler")
	}
	width := len(rows[0])
	s := &Standardizer{
		Mean:  make([]float64, width),
		Scale: make([]float64, width),
	}
	column := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i, row := range rows {
			if len(row) != width {
				return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(row), width)
			}
			column[i] = row[j]
		}
		mean, variance := stat.MeanVariance(column, nil)
		n := float64(len(column))
		if n > 1 {
			variance *= (n - 1) / n
		} else {
			variance = 0
		}
		s.Mean[j] = mean
		s.Scale[j] = math.Sqrt(variance)
		if s.Scale[j] == 0 {
			s.Scale[j] = 1
		}
	}
	return s, nil
}

func (s *Standardizer) Transform(row []float64) []float64 {
	result := make([]float64, len(row))
	for j, v := range row {
		result[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return result
}

func (s *Standardizer) TransformAll(rows [][]float64) [][]float64 {
	result := make([][]float64, len(rows))
	for i, row := range rows {
		result[i] = s.Transform(row)
	}
	return result
}
