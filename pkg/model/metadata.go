package model

import (
	"fmt"

	"mensus/pkg/loss"
	"mensus/pkg/schema"
)

// EpochStats is one point of the training history.
type EpochStats struct {
	Epoch   int
	Loss    float64
	ValLoss float64
	AUC     float64
	ValAUC  float64
}

type Metadata struct {
	// FeatureNames are the input columns in network input order
	FeatureNames []string

	// LabelNames are the target columns in network output order
	LabelNames []string

	// Scaler standardizes raw feature vectors before they enter the network
	Scaler *Standardizer

	// ClassWeights holds the negative/positive loss weight of each label
	ClassWeights []loss.ClassWeight

	History []EpochStats
}

func NewMetadata() *Metadata {
	return &Metadata{
		FeatureNames: append([]string(nil), schema.FeatureNames...),
		LabelNames:   append([]string(nil), schema.LabelNames...),
	}
}

func (d *Metadata) FeatureCount() int {
	return len(d.FeatureNames)
}

func (d *Metadata) LabelCount() int {
	return len(d.LabelNames)
}

// Validate checks that the metadata describes the current feature and label schema.
func (d *Metadata) Validate() error {
	if err := schema.CheckNames("features", d.FeatureNames, schema.FeatureNames); err != nil {
		return err
	}
	if err := schema.CheckNames("labels", d.LabelNames, schema.LabelNames); err != nil {
		return err
	}
	if d.Scaler == nil {
		return fmt.Errorf("missing feature scaler")
	}
	if len(d.Scaler.Mean) != d.FeatureCount() || len(d.Scaler.Scale) != d.FeatureCount() {
		return fmt.Errorf("scaler has %d/%d columns, expected %d", len(d.Scaler.Mean), len(d.Scaler.Scale), d.FeatureCount())
	}
	if len(d.ClassWeights) != d.LabelCount() {
		return fmt.Errorf("%d class weights for %d labels", len(d.ClassWeights), d.LabelCount())
	}
	return nil
}
