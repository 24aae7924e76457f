package compact

import (
	"errors"
	"fmt"
	"math"

	"github.com/nlpodyssey/spago/pkg/mat32/rand"

	"mensus/pkg/model"
	"mensus/pkg/schema"
)

// DefaultTolerance is the largest accepted absolute difference between the
// probabilities of a full model and its compact export.
const DefaultTolerance = 1e-4

var ErrEquivalence = errors.New("compact model diverges from full model")

// MaxAbsDiff runs inputs through both artifacts and returns the largest absolute
// difference between any pair of probabilities.
func MaxAbsDiff(a *Artifact, m *model.Model, inputs [][]float64) (float64, error) {
	expected, err := m.Predict(inputs)
	if err != nil {
		return 0, fmt.Errorf("full model: %w", err)
	}
	maxDiff := 0.0
	for i, input := range inputs {
		actual, err := a.Invoke(input)
		if err != nil {
			return 0, fmt.Errorf("compact model: %w", err)
		}
		for j := range actual {
			diff := math.Abs(actual[j] - expected[i][j])
			if math.IsNaN(diff) {
				return math.Inf(1), nil
			}
			maxDiff = math.Max(maxDiff, diff)
		}
	}
	return maxDiff, nil
}

// Verify fails with ErrEquivalence when the artifacts disagree by more than tolerance.
func Verify(a *Artifact, m *model.Model, inputs [][]float64, tolerance float64) (float64, error) {
	maxDiff, err := MaxAbsDiff(a, m, inputs)
	if err != nil {
		return 0, err
	}
	if maxDiff >= tolerance {
		return maxDiff, fmt.Errorf("%w: max absolute difference %g exceeds %g", ErrEquivalence, maxDiff, tolerance)
	}
	return maxDiff, nil
}

// SampleInputs generates n plausible survey answers: sleep hours between 3 and 10,
// 0/1 flags and 1-5 severities, matching the layout of schema.Features.
func SampleInputs(n int, seed uint64) [][]float64 {
	r := rand.NewLockedRand(seed)
	result := make([][]float64, n)
	for i := range result {
		f := schema.Features{
			SleepHours:      3 + math.Round(float64(r.Float())*7),
			WeightLoss:      flag(r),
			WeightGain:      flag(r),
			WeightNormal:    flag(r),
			SmokingAlcohol:  flag(r),
			BirthControlUse: flag(r),
			HairLoss:        flag(r),
			Acne:            flag(r),
			Fatigue:         flag(r),
			Bloating:        flag(r),
			Nausea:          flag(r),
			Dizziness:       flag(r),
			HotFlashes:      flag(r),
			Headache:        severity(r),
			LowerBackPain:   severity(r),
			PainDuringSex:   severity(r),
			Flow:            severity(r),
			PelvicPain:      severity(r),
			Stress:          severity(r),
			Irritability:    severity(r),
			Forgetfulness:   severity(r),
			Depression:      flag(r),
			Tension:         flag(r),
			SocialWithdraw:  flag(r),
		}
		result[i] = f.Vector()
	}
	return result
}

func flag(r *rand.LockedRand) float64 {
	if r.Float() < 0.5 {
		return 0
	}
	return 1
}

func severity(r *rand.LockedRand) float64 {
	return 1 + math.Floor(float64(r.Float())*5)
}
