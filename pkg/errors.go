package pkg

import "fmt"

type Stage string

const (
	StageTrain   Stage = "train"
	StageConvert Stage = "convert"
	StagePredict Stage = "predict"
	StageTest    Stage = "test"
)

// StageError tells which stage of the pipeline failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
