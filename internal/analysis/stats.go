package analysis

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Percentile returns the p-th percentile (0-100) of values using linear
// interpolation between order statistics: the value at rank p/100*(n-1) of
// the sorted sample. Returns NaN for an empty input.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	p = math.Max(0, math.Min(100, p))

	pos := p / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Quartiles returns the first and third quartiles of values
func Quartiles(values []float64) (q1, q3 float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return percentileSorted(sorted, 25), percentileSorted(sorted, 75)
}

// Correlation returns the Pearson correlation of x and y.
// NaN when either series is (numerically) constant.
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return math.NaN()
	}
	// Smoothing a flat series leaves rounding noise that would otherwise
	// correlate with anything.
	if isFlat(x) || isFlat(y) {
		return math.NaN()
	}
	return stat.Correlation(x, y, nil)
}

// isFlat reports whether the spread of values is at rounding-error level
func isFlat(values []float64) bool {
	mean, std := stat.MeanStdDev(values, nil)
	return !(std > flatTolerance*math.Max(1, math.Abs(mean)))
}

const flatTolerance = 1e-9

func allFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// NearestIndex returns the index of the value closest to target, the first
// one on ties. -1 for an empty slice.
func NearestIndex(values []float64, target float64) int {
	if len(values) == 0 {
		return -1
	}
	dist := make([]float64, len(values))
	for i, v := range values {
		dist[i] = math.Abs(v - target)
	}
	return floats.MinIdx(dist)
}
