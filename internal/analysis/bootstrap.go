package analysis

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// BootstrapOptions controls BootstrapCI
type BootstrapOptions struct {
	Resamples int
	Alpha     float64
	Workers   int        // <= 0 means GOMAXPROCS
	Rand      *rand.Rand // nil seeds from the clock

	// Smooth, when set, is applied to every synthetic heart rate series
	// before it is refitted.
	Smooth func([]float64) ([]float64, error)
}

// BootstrapCI estimates a confidence interval for the breakpoint speed by
// residual resampling: each synthetic series is predictions plus residuals
// drawn with replacement, refitted against the fixed speed series.
//
// Refits that fail are skipped. When none succeed both bounds are nil and
// err is nil. err is only returned for invalid input or a cancelled ctx.
func BootstrapCI(ctx context.Context, speed, predictions, residuals []float64, opts BootstrapOptions) (low, high *float64, err error) {
	samples, err := bootstrapBreakpoints(ctx, speed, predictions, residuals, opts)
	if err != nil {
		return nil, nil, err
	}
	low, high = interval(samples, opts.Alpha)
	return low, high, nil
}

// interval returns the central 1-alpha percentile interval, nil when empty
func interval(samples []float64, alpha float64) (low, high *float64) {
	if len(samples) == 0 {
		return nil, nil
	}
	lo := Percentile(samples, alpha/2*100)
	hi := Percentile(samples, (1-alpha/2)*100)
	return &lo, &hi
}

// bootstrapBreakpoints returns the breakpoints of the converged refits in
// draw order
func bootstrapBreakpoints(ctx context.Context, speed, predictions, residuals []float64, opts BootstrapOptions) ([]float64, error) {
	if len(speed) != len(predictions) || len(predictions) != len(residuals) {
		return nil, fmt.Errorf("%w: speed %d, predictions %d, residuals %d",
			ErrMismatchedSeries, len(speed), len(predictions), len(residuals))
	}
	n := len(residuals)
	if n == 0 || opts.Resamples <= 0 {
		return nil, nil
	}

	r := opts.Rand
	if r == nil {
		r = Options{}.newRand()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// Draw every index up front so the result does not depend on scheduling.
	draws := make([][]int, opts.Resamples)
	for i := range draws {
		d := make([]int, n)
		for j := range d {
			d[j] = r.IntN(n)
		}
		draws[i] = d
	}

	breaks := make([]float64, opts.Resamples)
	converged := make([]bool, opts.Resamples)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, d := range draws {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			y := make([]float64, n)
			for j, k := range d {
				y[j] = predictions[j] + residuals[k]
			}
			if opts.Smooth != nil {
				smoothed, err := opts.Smooth(y)
				if err != nil {
					return nil
				}
				y = smoothed
			}
			h, err := fitHinge(speed, y)
			if err != nil {
				return nil
			}
			breaks[i] = h.bp
			converged[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var samples []float64
	for i, ok := range converged {
		if ok {
			samples = append(samples, breaks[i])
		}
	}
	return samples, nil
}
