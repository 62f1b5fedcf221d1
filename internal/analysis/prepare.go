package analysis

import (
	"fmt"
	"slices"

	"github.com/pconstantinou/savitzkygolay"
)

// Samples holds index-aligned heart rate (bpm) and speed (m/s) readings
type Samples struct {
	HeartRate []float64
	Speed     []float64
}

// Len returns the number of paired samples
func (s Samples) Len() int {
	return len(s.HeartRate)
}

// Validate checks that the two series are paired
func (s Samples) Validate() error {
	if len(s.HeartRate) != len(s.Speed) {
		return fmt.Errorf("%w: %d heart rate vs %d speed", ErrMismatchedSeries, len(s.HeartRate), len(s.Speed))
	}
	return nil
}

// Clone returns a deep copy
func (s Samples) Clone() Samples {
	return Samples{
		HeartRate: slices.Clone(s.HeartRate),
		Speed:     slices.Clone(s.Speed),
	}
}

// Prepared is the output of signal preparation
type Prepared struct {
	Trimmed  Samples // head/tail removed
	Filtered Samples // paired outliers removed
	Smoothed Samples
}

// Prepare trims, filters and smooths a recording.
// Fails with ErrInsufficientData when too little remains at any step.
func Prepare(s Samples, opts Options) (*Prepared, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.Len() < opts.MinRawSamples {
		return nil, fmt.Errorf("%w: %d samples recorded, need at least %d", ErrInsufficientData, s.Len(), opts.MinRawSamples)
	}

	trimmed := Trim(s, opts.TrimHead, opts.TrimTail)
	if trimmed.Len() < opts.MinSamples {
		return nil, fmt.Errorf("%w: %d samples after trimming, need at least %d", ErrInsufficientData, trimmed.Len(), opts.MinSamples)
	}

	filtered := RemovePairedOutliers(trimmed, opts.OutlierIQRFactor)
	if filtered.Len() < opts.MinSamples {
		return nil, fmt.Errorf("%w: %d samples after outlier removal, need at least %d", ErrInsufficientData, filtered.Len(), opts.MinSamples)
	}

	hr, err := Smooth(filtered.HeartRate, opts.SmoothWindow, opts.SmoothOrder)
	if err != nil {
		return nil, fmt.Errorf("smoothing heart rate: %w", err)
	}
	speed, err := Smooth(filtered.Speed, opts.SmoothWindow, opts.SmoothOrder)
	if err != nil {
		return nil, fmt.Errorf("smoothing speed: %w", err)
	}

	return &Prepared{
		Trimmed:  trimmed,
		Filtered: filtered,
		Smoothed: Samples{HeartRate: hr, Speed: speed},
	}, nil
}

// Trim drops head samples from the start and tail samples from the end.
// The result is a copy and is empty when nothing is left.
func Trim(s Samples, head, tail int) Samples {
	n := min(len(s.HeartRate), len(s.Speed))
	head = max(head, 0)
	tail = max(tail, 0)
	if head+tail >= n {
		return Samples{HeartRate: []float64{}, Speed: []float64{}}
	}
	return Samples{
		HeartRate: slices.Clone(s.HeartRate[head : n-tail]),
		Speed:     slices.Clone(s.Speed[head : n-tail]),
	}
}

// RemovePairedOutliers keeps index i only if both heart rate and speed lie
// within [Q1 - factor*IQR, Q3 + factor*IQR] of their own series, so the two
// series stay aligned.
func RemovePairedOutliers(s Samples, factor float64) Samples {
	out := Samples{
		HeartRate: make([]float64, 0, s.Len()),
		Speed:     make([]float64, 0, s.Len()),
	}
	if s.Len() == 0 {
		return out
	}

	hrLo, hrHi := fences(s.HeartRate, factor)
	spLo, spHi := fences(s.Speed, factor)
	for i, hr := range s.HeartRate {
		sp := s.Speed[i]
		if hr < hrLo || hr > hrHi || sp < spLo || sp > spHi {
			continue
		}
		out.HeartRate = append(out.HeartRate, hr)
		out.Speed = append(out.Speed, sp)
	}
	return out
}

func fences(values []float64, factor float64) (lo, hi float64) {
	q1, q3 := Quartiles(values)
	iqr := q3 - q1
	return q1 - factor*iqr, q3 + factor*iqr
}

// Smooth applies a Savitzky-Golay filter of the given polynomial order.
// An even window is widened to the next odd size. Series shorter than the
// window are returned unchanged (as a copy).
func Smooth(values []float64, window, order int) ([]float64, error) {
	if window%2 == 0 {
		window++
	}
	if len(values) < window {
		return slices.Clone(values), nil
	}
	if order >= window {
		return nil, fmt.Errorf("polynomial order %d must be below window %d", order, window)
	}

	filter, err := savitzkygolay.NewFilter(window, 0, order)
	if err != nil {
		return nil, fmt.Errorf("creating filter: %w", err)
	}

	x := make([]float64, len(values))
	for i := range x {
		x[i] = float64(i)
	}
	out, err := filter.Process(values, x)
	if err != nil {
		return nil, fmt.Errorf("applying filter: %w", err)
	}
	if len(out) != len(values) {
		return nil, fmt.Errorf("filter returned %d values for %d inputs", len(out), len(values))
	}
	return out, nil
}
