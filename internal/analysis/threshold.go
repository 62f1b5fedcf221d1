package analysis

import (
	"context"
	"fmt"
	"math"
)

// WideCIWarning is attached when the interval is wide relative to the estimate
const WideCIWarning = "confidence interval wide, threshold unstable"

// PaceNotApplicable is the pace shown for a non-positive speed
const PaceNotApplicable = "N/A"

// Estimate is the result of one threshold analysis
type Estimate struct {
	ThresholdHR     float64  `json:"threshold_hr"`
	ThresholdSpeed  float64  `json:"threshold_speed"`
	BreakpointIndex int      `json:"breakpoint_index"`
	CILow           *float64 `json:"ci_low"`
	CIHigh          *float64 `json:"ci_high"`
	Pace            string   `json:"pace"`
	Warning         string   `json:"warning,omitempty"`

	Correlation float64 `json:"correlation"`
	LowerSlope  float64 `json:"lower_slope"`
	UpperSlope  float64 `json:"upper_slope"`
	Samples     int     `json:"samples"`
	Resamples   int     `json:"resamples"` // converged bootstrap refits
}

// HasCI reports whether both interval bounds are available
func (e *Estimate) HasCI() bool {
	return e.CILow != nil && e.CIHigh != nil
}

// Assemble builds the estimate from a fit and its interval, attaching the
// wide-interval warning when (high-low)/speed exceeds wideRatio.
func Assemble(fit *Fit, low, high *float64, wideRatio float64) *Estimate {
	est := &Estimate{
		ThresholdHR:     fit.ThresholdHR,
		ThresholdSpeed:  fit.Breakpoint,
		BreakpointIndex: fit.BreakpointIndex,
		CILow:           low,
		CIHigh:          high,
		Pace:            SpeedToPace(fit.Breakpoint),
		Correlation:     fit.Correlation,
		LowerSlope:      fit.LowerSlope,
		UpperSlope:      fit.UpperSlope,
		Samples:         len(fit.Predictions),
	}
	if est.HasCI() && fit.Breakpoint > 0 && (*high-*low)/fit.Breakpoint > wideRatio {
		est.Warning = WideCIWarning
	}
	return est
}

// SpeedToPace formats a speed in m/s as min:ss per kilometre
func SpeedToPace(speed float64) string {
	if !(speed > 0) || math.IsInf(speed, 1) {
		return PaceNotApplicable
	}
	secPerKm := 1000 / speed
	minutes := int(math.Floor(secPerKm / 60))
	seconds := int(math.Round(math.Mod(secPerKm, 60)))
	if seconds == 60 {
		minutes++
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// Analyzer runs the full pipeline: preparation, fit, bootstrap interval and
// quality gate. Safe for concurrent use.
type Analyzer struct {
	opts Options
}

// NewAnalyzer creates an Analyzer with the given options
func NewAnalyzer(opts Options) *Analyzer {
	return &Analyzer{opts: opts}
}

// Options returns the analyzer configuration
func (a *Analyzer) Options() Options {
	return a.opts
}

// Analyze estimates the anaerobic threshold of a ramp test recording.
// Either the estimate or an error is returned, never both. Preparation and
// fit failures are reported as *AnalysisError.
func (a *Analyzer) Analyze(ctx context.Context, s Samples) (*Estimate, error) {
	prep, err := Prepare(s, a.opts)
	if err != nil {
		return nil, &AnalysisError{Stage: StagePrepare, Err: err}
	}

	fit, err := FitThreshold(prep.Smoothed.HeartRate, prep.Smoothed.Speed, a.opts.MinCorrelation)
	if err != nil {
		return nil, &AnalysisError{Stage: StageFit, Err: err}
	}

	bopts := BootstrapOptions{
		Resamples: a.opts.Resamples,
		Alpha:     a.opts.Alpha,
		Workers:   a.opts.Workers,
		Rand:      a.opts.newRand(),
	}
	residuals := fit.Residuals
	if a.opts.Resmooth {
		// Resample in the raw domain and push every synthetic series through
		// the same smoother, so the interval reflects the whole estimator.
		residuals = make([]float64, len(fit.Predictions))
		for i, p := range fit.Predictions {
			residuals[i] = prep.Filtered.HeartRate[i] - p
		}
		window, order := a.opts.SmoothWindow, a.opts.SmoothOrder
		bopts.Smooth = func(y []float64) ([]float64, error) {
			return Smooth(y, window, order)
		}
	}

	breaks, err := bootstrapBreakpoints(ctx, prep.Smoothed.Speed, fit.Predictions, residuals, bopts)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	low, high := interval(breaks, a.opts.Alpha)

	est := Assemble(fit, low, high, a.opts.WideCIRatio)
	est.Resamples = len(breaks)
	return est, nil
}
