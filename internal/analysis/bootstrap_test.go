package analysis

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 1))
}

// noisyHinge fits a noisy hinge series and returns what BootstrapCI needs
func noisyHinge(t *testing.T, seed uint64) (speed, predictions, residuals []float64) {
	t.Helper()
	r := seeded(seed)
	hr, speed := hingeSeries(200, 2.5, 0.015, 4.0, 70, 20, 6)
	for i := range hr {
		hr[i] += 2 * r.NormFloat64()
	}
	fit, err := FitThreshold(hr, speed, 0.5)
	require.NoError(t, err)
	return speed, fit.Predictions, fit.Residuals
}

func TestBootstrapCIDeterministic(t *testing.T) {
	speed, pred, res := noisyHinge(t, 3)

	run := func(workers int) (*float64, *float64) {
		lo, hi, err := BootstrapCI(context.Background(), speed, pred, res, BootstrapOptions{
			Resamples: 50,
			Alpha:     0.05,
			Workers:   workers,
			Rand:      seeded(99),
		})
		require.NoError(t, err)
		require.NotNil(t, lo)
		require.NotNil(t, hi)
		return lo, hi
	}

	lo1, hi1 := run(1)
	lo2, hi2 := run(8)
	assert.Equal(t, *lo1, *lo2)
	assert.Equal(t, *hi1, *hi2)
	assert.LessOrEqual(t, *lo1, *hi1)
	assert.Less(t, *lo1, 4.3)
	assert.Greater(t, *hi1, 3.7)
}

func TestBootstrapCIZeroResiduals(t *testing.T) {
	hr, speed := hingeSeries(81, 2.0, 0.05, 4.225, 80, 20, 6)
	fit, err := FitThreshold(hr, speed, 0.5)
	require.NoError(t, err)

	zeros := make([]float64, len(hr))
	lo, hi, err := BootstrapCI(context.Background(), speed, fit.Predictions, zeros, BootstrapOptions{
		Resamples: 20,
		Alpha:     0.05,
		Rand:      seeded(1),
	})
	require.NoError(t, err)
	require.NotNil(t, lo)
	require.NotNil(t, hi)
	assert.InDelta(t, 4.225, *lo, 1e-6)
	assert.InDelta(t, 4.225, *hi, 1e-6)
}

func TestBootstrapCIUnavailable(t *testing.T) {
	constant := make([]float64, 50)
	for i := range constant {
		constant[i] = 4.0
	}
	ramp := make([]float64, 50)
	for i := range ramp {
		ramp[i] = 120 + float64(i)
	}
	nans := make([]float64, 50)
	for i := range nans {
		nans[i] = math.NaN()
	}

	tests := []struct {
		name      string
		speed     []float64
		pred      []float64
		residuals []float64
		resamples int
	}{
		{"constant speed", constant, ramp, make([]float64, 50), 20},
		{"NaN residuals", ramp, ramp, nans, 20},
		{"no resamples", ramp, ramp, make([]float64, 50), 0},
		{"empty input", nil, nil, nil, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi, err := BootstrapCI(context.Background(), tt.speed, tt.pred, tt.residuals, BootstrapOptions{
				Resamples: tt.resamples,
				Alpha:     0.05,
				Rand:      seeded(5),
			})
			require.NoError(t, err)
			assert.Nil(t, lo)
			assert.Nil(t, hi)
		})
	}
}

func TestBootstrapCIErrors(t *testing.T) {
	speed, pred, res := noisyHinge(t, 4)

	t.Run("mismatched lengths", func(t *testing.T) {
		_, _, err := BootstrapCI(context.Background(), speed, pred[:10], res, BootstrapOptions{Resamples: 10, Alpha: 0.05})
		assert.ErrorIs(t, err, ErrMismatchedSeries)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		lo, hi, err := BootstrapCI(ctx, speed, pred, res, BootstrapOptions{Resamples: 10, Alpha: 0.05, Rand: seeded(1)})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, lo)
		assert.Nil(t, hi)
	})
}

func TestBootstrapCISmoothHook(t *testing.T) {
	speed, pred, res := noisyHinge(t, 6)

	var calls int
	_, _, err := BootstrapCI(context.Background(), speed, pred, res, BootstrapOptions{
		Resamples: 15,
		Alpha:     0.05,
		Workers:   1,
		Rand:      seeded(2),
		Smooth: func(y []float64) ([]float64, error) {
			calls++
			return Smooth(y, 11, 3)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 15, calls)
}
