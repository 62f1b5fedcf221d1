package analysis

import (
	"math/rand/v2"
	"time"
)

// Options tunes the threshold pipeline. The zero value is not useful;
// start from DefaultOptions.
type Options struct {
	// Samples dropped from the start and end of the recording (warm-up and stop)
	TrimHead int
	TrimTail int

	MinRawSamples int // before trimming
	MinSamples    int // after trimming and after outlier removal

	OutlierIQRFactor float64

	SmoothWindow int // forced odd
	SmoothOrder  int

	MinCorrelation float64

	Resamples   int
	Alpha       float64 // 0.05 gives a 95% interval
	Resmooth    bool    // re-smooth each bootstrap series before refitting
	WideCIRatio float64 // CI width / threshold speed above which a warning is attached
	Workers     int     // bootstrap parallelism, <= 0 means GOMAXPROCS

	// Seed for the bootstrap random source. 0 seeds from the clock.
	Seed uint64
}

// DefaultOptions returns the documented defaults
func DefaultOptions() Options {
	return Options{
		TrimHead:         10,
		TrimTail:         10,
		MinRawSamples:    30,
		MinSamples:       10,
		OutlierIQRFactor: 1.5,
		SmoothWindow:     11,
		SmoothOrder:      3,
		MinCorrelation:   0.5,
		Resamples:        50,
		Alpha:            0.05,
		Resmooth:         true,
		WideCIRatio:      0.2,
	}
}

// newRand builds the per-call random source. Each call gets its own source so
// that concurrent analyses never share state.
func (o Options) newRand() *rand.Rand {
	seed := o.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
