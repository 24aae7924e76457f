// Package schema defines the named feature and label layout shared by training,
// export and inference. The order of the fields in Vector is the serialization order
// of the model input and output.
package schema

import (
	"errors"
	"fmt"
)

const (
	NumFeatures = 24
	NumLabels   = 9

	DefaultThreshold = 0.5
)

var (
	ErrFeatureLength = errors.New("feature vector has wrong length")
	ErrLabelLength   = errors.New("label vector has wrong length")
)

// FeatureNames lists the CSV columns of the feature vector in model input order.
var FeatureNames = []string{
	"Sleep_hours",
	"Weight_Loss",
	"Weight_Gain",
	"Weight_Normal",
	"Smoking_Alcohol",
	"Birth_control_use",
	"Hair_Loss",
	"Acne",
	"Fatigue",
	"Bloating",
	"Nausea",
	"Dizziness",
	"Hot_flashes",
	"Headache",
	"Lower_back_pain",
	"Pain_during_sex",
	"Flow",
	"Pelvic_pain",
	"Stress",
	"Irritability",
	"Forgetfulness",
	"Depression",
	"Tension",
	"Social_withdrawal",
}

// LabelNames lists the abnormality columns in model output order.
var LabelNames = []string{
	"PMS_PMDD",
	"PCOS",
	"Menorrhagia",
	"Amenorrhea",
	"Endometriosis",
	"Thyroid_Disorders",
	"Perimenopause",
	"Anemia",
	"Hormonal_Imbalance",
}

// Features is one survey answer set. Severities are on a 1-5 scale, flags are 0 or 1.
type Features struct {
	SleepHours      float64 `csv:"Sleep_hours"`
	WeightLoss      float64 `csv:"Weight_Loss"`
	WeightGain      float64 `csv:"Weight_Gain"`
	WeightNormal    float64 `csv:"Weight_Normal"`
	SmokingAlcohol  float64 `csv:"Smoking_Alcohol"`
	BirthControlUse float64 `csv:"Birth_control_use"`
	HairLoss        float64 `csv:"Hair_Loss"`
	Acne            float64 `csv:"Acne"`
	Fatigue         float64 `csv:"Fatigue"`
	Bloating        float64 `csv:"Bloating"`
	Nausea          float64 `csv:"Nausea"`
	Dizziness       float64 `csv:"Dizziness"`
	HotFlashes      float64 `csv:"Hot_flashes"`
	Headache        float64 `csv:"Headache"`
	LowerBackPain   float64 `csv:"Lower_back_pain"`
	PainDuringSex   float64 `csv:"Pain_during_sex"`
	Flow            float64 `csv:"Flow"`
	PelvicPain      float64 `csv:"Pelvic_pain"`
	Stress          float64 `csv:"Stress"`
	Irritability    float64 `csv:"Irritability"`
	Forgetfulness   float64 `csv:"Forgetfulness"`
	Depression      float64 `csv:"Depression"`
	Tension         float64 `csv:"Tension"`
	SocialWithdraw  float64 `csv:"Social_withdrawal"`
}

// Vector returns the features in model input order.
func (f *Features) Vector() []float64 {
	return []float64{
		f.SleepHours,
		f.WeightLoss,
		f.WeightGain,
		f.WeightNormal,
		f.SmokingAlcohol,
		f.BirthControlUse,
		f.HairLoss,
		f.Acne,
		f.Fatigue,
		f.Bloating,
		f.Nausea,
		f.Dizziness,
		f.HotFlashes,
		f.Headache,
		f.LowerBackPain,
		f.PainDuringSex,
		f.Flow,
		f.PelvicPain,
		f.Stress,
		f.Irritability,
		f.Forgetfulness,
		f.Depression,
		f.Tension,
		f.SocialWithdraw,
	}
}

// FeaturesFromVector is the inverse of Features.Vector.
func FeaturesFromVector(v []float64) (Features, error) {
	if err := CheckFeatureVector(v); err != nil {
		return Features{}, err
	}
	return Features{
		SleepHours:      v[0],
		WeightLoss:      v[1],
		WeightGain:      v[2],
		WeightNormal:    v[3],
		SmokingAlcohol:  v[4],
		BirthControlUse: v[5],
		HairLoss:        v[6],
		Acne:            v[7],
		Fatigue:         v[8],
		Bloating:        v[9],
		Nausea:          v[10],
		Dizziness:       v[11],
		HotFlashes:      v[12],
		Headache:        v[13],
		LowerBackPain:   v[14],
		PainDuringSex:   v[15],
		Flow:            v[16],
		PelvicPain:      v[17],
		Stress:          v[18],
		Irritability:    v[19],
		Forgetfulness:   v[20],
		Depression:      v[21],
		Tension:         v[22],
		SocialWithdraw:  v[23],
	}, nil
}

// Labels holds the nine abnormality indicators.
type Labels struct {
	PMSPMDD           float64 `csv:"PMS_PMDD"`
	PCOS              float64 `csv:"PCOS"`
	Menorrhagia       float64 `csv:"Menorrhagia"`
	Amenorrhea        float64 `csv:"Amenorrhea"`
	Endometriosis     float64 `csv:"Endometriosis"`
	ThyroidDisorders  float64 `csv:"Thyroid_Disorders"`
	Perimenopause     float64 `csv:"Perimenopause"`
	Anemia            float64 `csv:"Anemia"`
	HormonalImbalance float64 `csv:"Hormonal_Imbalance"`
}

// Vector returns the labels in model output order.
func (l *Labels) Vector() []float64 {
	return []float64{
		l.PMSPMDD,
		l.PCOS,
		l.Menorrhagia,
		l.Amenorrhea,
		l.Endometriosis,
		l.ThyroidDisorders,
		l.Perimenopause,
		l.Anemia,
		l.HormonalImbalance,
	}
}

// Record is one row of the training data.
type Record struct {
	Features
	Labels
}

// Columns returns every column a dataset file must provide.
func Columns() []string {
	result := make([]string, 0, NumFeatures+NumLabels)
	result = append(result, FeatureNames...)
	return append(result, LabelNames...)
}

func CheckFeatureVector(v []float64) error {
	if len(v) != NumFeatures {
		return fmt.Errorf("%w: got %d values, expected %d", ErrFeatureLength, len(v), NumFeatures)
	}
	return nil
}

func CheckLabelVector(v []float64) error {
	if len(v) != NumLabels {
		return fmt.Errorf("%w: got %d values, expected %d", ErrLabelLength, len(v), NumLabels)
	}
	return nil
}

// Threshold turns probabilities into presence (1) or absence (0) calls.
// A probability equal to the threshold counts as present.
func Threshold(probabilities []float64, threshold float64) []int {
	result := make([]int, len(probabilities))
	for i, p := range probabilities {
		if p >= threshold {
			result[i] = 1
		}
	}
	return result
}

// CheckNames verifies that names matches expected position by position. Artifacts
// carry the names they were trained with so a reordered schema is caught on load.
func CheckNames(kind string, names, expected []string) error {
	if len(names) != len(expected) {
		return fmt.Errorf("%s: artifact has %d columns, expected %d", kind, len(names), len(expected))
	}
	for i := range names {
		if names[i] != expected[i] {
			return fmt.Errorf("%s: column %d is %s, expected %s", kind, i, names[i], expected[i])
		}
	}
	return nil
}
