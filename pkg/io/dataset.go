package io

import (
	"fmt"
	"math"
	"math/rand"
)

// DataSet iterates over a subset of the loaded records in batches.
type DataSet struct {
	Data         DataBatch
	BatchSize    int
	Rand         *rand.Rand
	dataIndices  []int
	currentOrder []int
	currentIndex int
}

type DatasetOrder int

const (
	OriginalOrder DatasetOrder = iota
	RandomOrder
)

func (d *DataSet) ResetOrder(order DatasetOrder) {
	if d.currentOrder == nil {
		d.currentOrder = make([]int, len(d.dataIndices))
	}
	switch order {
	case OriginalOrder:
		copy(d.currentOrder, d.dataIndices)
	case RandomOrder:
		ind := d.Rand.Perm(len(d.currentOrder))
		for i := range ind {
			d.currentOrder[i] = d.dataIndices[ind[i]]
		}
	}
	d.currentIndex = 0
}

// Next returns the next batch in the current order, or an empty batch at the end.
func (d *DataSet) Next() DataBatch {
	batch := make(DataBatch, 0, d.BatchSize)
	for ; d.currentIndex < len(d.currentOrder) && len(batch) < d.BatchSize; d.currentIndex++ {
		batch = append(batch, d.Data[d.currentOrder[d.currentIndex]])
	}
	return batch
}

// Records returns every record of the set in original order.
func (d *DataSet) Records() DataBatch {
	result := make(DataBatch, len(d.dataIndices))
	for i, index := range d.dataIndices {
		result[i] = d.Data[index]
	}
	return result
}

func (d *DataSet) Size() int {
	return len(d.dataIndices)
}

func NewDataSet(data DataBatch, batchSize int, rnd *rand.Rand) *DataSet {
	dataIndices := make([]int, len(data))
	for i := range dataIndices {
		dataIndices[i] = i
	}
	return newDataSetSplit(data, batchSize, rnd, dataIndices)
}

func newDataSetSplit(data DataBatch, batchSize int, rnd *rand.Rand, indices []int) *DataSet {
	ds := &DataSet{Data: data, BatchSize: batchSize, Rand: rnd, dataIndices: indices}
	ds.ResetOrder(OriginalOrder)
	return ds
}

// RandomSplit shuffles the records and partitions them into sets of the given sizes.
func (d *DataSet) RandomSplit(sizes ...int) ([]*DataSet, error) {
	total := 0
	for _, size := range sizes {
		total += size
	}
	if total > len(d.dataIndices) {
		return nil, fmt.Errorf("cannot split %d records into %d", len(d.dataIndices), total)
	}
	indices := make([]int, len(d.dataIndices))
	copy(indices, d.dataIndices)
	d.Rand.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})
	splits := make([]*DataSet, len(sizes))
	idx := 0
	for i := range sizes {
		splits[i] = newDataSetSplit(d.Data, d.BatchSize, d.Rand, indices[idx:idx+sizes[i]])
		idx += sizes[i]
	}
	return splits, nil
}

// TrainValidationSplit holds out validationFraction of the records, rounded up, but
// keeps at least one record for training.
func (d *DataSet) TrainValidationSplit(validationFraction float64) (*DataSet, *DataSet, error) {
	if validationFraction < 0 || validationFraction >= 1 {
		return nil, nil, fmt.Errorf("validation fraction %.3f must be in [0, 1)", validationFraction)
	}
	validationSize := int(math.Ceil(float64(d.Size()) * validationFraction))
	if validationSize >= d.Size() {
		validationSize = d.Size() - 1
	}
	splits, err := d.RandomSplit(d.Size()-validationSize, validationSize)
	if err != nil {
		return nil, nil, err
	}
	return splits[0], splits[1], nil
}
