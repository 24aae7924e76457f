package io

import (
	"bytes"
	"encoding/csv"
	"encoding/gob"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/gocarina/gocsv"

	"mensus/pkg/compact"
	"mensus/pkg/model"
	"mensus/pkg/schema"
)

// DataRecord is one training example in model order.
type DataRecord struct {
	Features []float64
	Labels   []float64
}

type DataBatch []*DataRecord

func (d DataBatch) Features() [][]float64 {
	result := make([][]float64, len(d))
	for i, r := range d {
		result[i] = r.Features
	}
	return result
}

func (d DataBatch) Labels() [][]float64 {
	result := make([][]float64, len(d))
	for i, r := range d {
		result[i] = r.Labels
	}
	return result
}

// LoadData reads a CSV file with a header holding every feature and label column.
func LoadData(dataFile string) (DataBatch, error) {
	data, err := readWithColumns(dataFile, schema.Columns())
	if err != nil {
		return nil, err
	}
	var rows []*schema.Record
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", dataFile, err)
	}
	result := make(DataBatch, len(rows))
	for i, row := range rows {
		result[i] = &DataRecord{
			Features: row.Features.Vector(),
			Labels:   row.Labels.Vector(),
		}
	}
	return result, nil
}

// LoadFeatures reads a CSV file with a header holding every feature column. Label
// columns, when present, are ignored.
func LoadFeatures(dataFile string) ([][]float64, error) {
	data, err := readWithColumns(dataFile, schema.FeatureNames)
	if err != nil {
		return nil, err
	}
	var rows []*schema.Features
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", dataFile, err)
	}
	result := make([][]float64, len(rows))
	for i, row := range rows {
		result[i] = row.Vector()
	}
	return result, nil
}

func readWithColumns(dataFile string, required []string) ([]byte, error) {
	data, err := ioutil.ReadFile(dataFile)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, fmt.Errorf("error reading data header: %w", err)
	}
	present := NewSet(header...)
	for _, column := range required {
		if _, ok := present[column]; !ok {
			return nil, fmt.Errorf("column %s not found in data header", column)
		}
	}
	return data, nil
}

type void struct{}

var Void = void{}

type Set map[string]void

func NewSet(values ...string) Set {
	set := Set{}
	for _, val := range values {
		set[val] = Void
	}
	return set
}

func SaveModel(model *model.Model, writer io.Writer) error {
	encoder := gob.NewEncoder(writer)
	err := encoder.Encode(model)
	if err != nil {
		return fmt.Errorf("error encoding model: %w", err)
	}
	return nil
}

func LoadModel(input io.Reader) (*model.Model, error) {
	decoder := gob.NewDecoder(input)
	m := model.Model{}
	err := decoder.Decode(&m)
	if err != nil {
		return nil, fmt.Errorf("error decoding model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}
	return &m, nil
}

func SaveModelFile(fileName string, m *model.Model) error {
	return WriteFileAtomic(fileName, func(w io.Writer) error {
		return SaveModel(m, w)
	})
}

func LoadModelFile(fileName string) (*model.Model, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("error opening model file %s: %w", fileName, err)
	}
	defer f.Close()
	m, err := LoadModel(f)
	if err != nil {
		return nil, fmt.Errorf("error loading model from file %s: %w", fileName, err)
	}
	return m, nil
}

func SaveCompactFile(fileName string, a *compact.Artifact) error {
	return WriteFileAtomic(fileName, func(w io.Writer) error {
		return compact.Encode(a, w)
	})
}

func LoadCompactFile(fileName string) (*compact.Artifact, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("error opening compact model file %s: %w", fileName, err)
	}
	defer f.Close()
	a, err := compact.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("error loading compact model from file %s: %w", fileName, err)
	}
	return a, nil
}
