package pkg

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"mensus/pkg/compact"
	"mensus/pkg/io"
)

type ConvertParameters struct {
	VerifySamples int
	Tolerance     float64
	RndSeed       uint64
}

func DefaultConvertParameters() ConvertParameters {
	return ConvertParameters{
		VerifySamples: 20,
		Tolerance:     compact.DefaultTolerance,
		RndSeed:       42,
	}
}

// Convert exports the full model in modelFileName to the compact format and writes it
// to outputFileName once both artifacts agree on seeded sample inputs.
func Convert(modelFileName, outputFileName string, params ConvertParameters) (*compact.Artifact, error) {
	a, err := convertInternal(modelFileName, outputFileName, params)
	return a, stageError(StageConvert, err)
}

func convertInternal(modelFileName, outputFileName string, params ConvertParameters) (*compact.Artifact, error) {
	m, err := io.LoadModelFile(modelFileName)
	if err != nil {
		return nil, err
	}
	a, err := compact.Export(m)
	if err != nil {
		return nil, fmt.Errorf("error exporting model: %w", err)
	}
	for i, op := range a.Ops {
		log.Debug().Int("Index", i).
			Str("Name", op.Name).
			Str("Kind", op.Kind.String()).
			Str("Activation", op.Activation.String()).
			Int("Input", op.InputShape).
			Int("Output", op.OutputShape).
			Msg("Compact op")
	}

	if params.VerifySamples > 0 {
		maxDiff, err := compact.Verify(a, m, compact.SampleInputs(params.VerifySamples, params.RndSeed), params.Tolerance)
		if err != nil {
			return nil, err
		}
		log.Info().Int("Samples", params.VerifySamples).Float64("MaxAbsDiff", maxDiff).Msg("Verified compact model")
	}

	if err := io.SaveCompactFile(outputFileName, a); err != nil {
		return nil, fmt.Errorf("error saving compact model to %s: %w", outputFileName, err)
	}
	log.Info().Str("File", outputFileName).Int("Ops", len(a.Ops)).Msg("Saved compact model")
	return a, nil
}
