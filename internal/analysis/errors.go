package analysis

import (
	"errors"
	"fmt"
)

// Analysis failures. AnalysisError wraps exactly one of these, so callers
// can branch with errors.Is.
var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrWeakCorrelation  = errors.New("weak correlation between heart rate and speed")
	ErrFitFailure       = errors.New("piecewise fit failed")
	ErrMismatchedSeries = errors.New("heart rate and speed series differ in length")
)

// Pipeline stages reported by AnalysisError
const (
	StagePrepare = "prepare"
	StageFit     = "fit"
)

// AnalysisError reports which stage of the pipeline rejected the input
type AnalysisError struct {
	Stage string
	Err   error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}
