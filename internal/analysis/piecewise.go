package analysis

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Fit is a two-segment continuous linear fit of heart rate against speed:
//
//	hr = Intercept + LowerSlope*s + (UpperSlope-LowerSlope)*max(0, s-Breakpoint)
type Fit struct {
	Breakpoint      float64 // threshold speed
	ThresholdHR     float64 // model heart rate at the breakpoint
	BreakpointIndex int     // index of the speed sample nearest the breakpoint
	Intercept       float64
	LowerSlope      float64 // bpm per m/s below the breakpoint
	UpperSlope      float64 // bpm per m/s above the breakpoint
	Correlation     float64
	SSR             float64
	Predictions     []float64
	Residuals       []float64 // hr - prediction
}

// minDistinctSpeeds is the number of free parameters of the model
const minDistinctSpeeds = 4

// FitThreshold fits the two-segment model with the breakpoint chosen to
// minimise the residual sum of squares over all interior positions.
func FitThreshold(hr, speed []float64, minCorrelation float64) (*Fit, error) {
	if len(hr) != len(speed) {
		return nil, fmt.Errorf("%w: %d heart rate vs %d speed", ErrMismatchedSeries, len(hr), len(speed))
	}
	if !allFinite(hr) || !allFinite(speed) {
		return nil, fmt.Errorf("%w: non-finite samples", ErrFitFailure)
	}

	r := Correlation(speed, hr)
	if math.IsNaN(r) || math.Abs(r) < minCorrelation {
		return nil, fmt.Errorf("%w: r=%.3f, need |r| >= %.2f", ErrWeakCorrelation, r, minCorrelation)
	}

	h, err := fitHinge(speed, hr)
	if err != nil {
		return nil, err
	}

	fit := &Fit{
		Breakpoint:  h.bp,
		ThresholdHR: h.predict(h.bp),
		Intercept:   h.b0,
		LowerSlope:  h.b1,
		UpperSlope:  h.b1 + h.b2,
		Correlation: r,
		SSR:         h.ssr,
		Predictions: make([]float64, len(speed)),
		Residuals:   make([]float64, len(speed)),
	}

	for i, s := range speed {
		fit.Predictions[i] = h.predict(s)
		fit.Residuals[i] = hr[i] - fit.Predictions[i]
	}
	fit.BreakpointIndex = NearestIndex(speed, h.bp)

	return fit, nil
}

// hinge is y = b0 + b1*x + b2*max(0, x-bp)
type hinge struct {
	b0, b1, b2 float64
	bp         float64
	ssr        float64
}

func (h hinge) predict(x float64) float64 {
	return h.b0 + h.b1*x + h.b2*math.Max(0, x-h.bp)
}

// moments are the running sums a least-squares line needs
type moments struct {
	n, x, y, xx, xy, yy float64
}

func (m moments) sub(o moments) moments {
	return moments{m.n - o.n, m.x - o.x, m.y - o.y, m.xx - o.xx, m.xy - o.xy, m.yy - o.yy}
}

// line returns the least-squares line through the points summarised by m
func (m moments) line() (intercept, slope, ssr float64, ok bool) {
	sxx := m.xx - m.x*m.x/m.n
	if !(sxx > 0) {
		return 0, 0, 0, false
	}
	sxy := m.xy - m.x*m.y/m.n
	slope = sxy / sxx
	intercept = (m.y - slope*m.x) / m.n
	ssr = m.yy - m.y*m.y/m.n - slope*sxy
	return intercept, slope, math.Max(ssr, 0), true
}

// fitHinge finds the globally optimal continuous two-segment fit (Hudson's
// method). For every split of the sorted distinct x values it tries the
// intersection of the two separately fitted lines when that falls inside the
// gap, and the constrained fit with the breakpoint on each interior x value.
func fitHinge(x, y []float64) (hinge, error) {
	n := len(x)
	if n != len(y) || n < minDistinctSpeeds {
		return hinge{}, fmt.Errorf("%w: %d samples", ErrFitFailure, n)
	}
	if !allFinite(x) || !allFinite(y) {
		return hinge{}, fmt.Errorf("%w: non-finite samples", ErrFitFailure)
	}

	// Center both axes to keep the normal equations well conditioned.
	mx, my := stat.Mean(x, nil), stat.Mean(y, nil)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return x[idx[a]] < x[idx[b]] })
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, j := range idx {
		xs[i] = x[j] - mx
		ys[i] = y[j] - my
	}
	if xs[n-1]-xs[0] <= flatTolerance*math.Max(1, math.Abs(mx)) {
		return hinge{}, fmt.Errorf("%w: speed does not vary", ErrFitFailure)
	}

	// prefix[i] summarises the first i sorted points; ends[k] is the number
	// of points with x <= the k-th distinct value.
	prefix := make([]moments, n+1)
	var distinct []float64
	var ends []int
	for i := range n {
		p := prefix[i]
		p.n++
		p.x += xs[i]
		p.y += ys[i]
		p.xx += xs[i] * xs[i]
		p.xy += xs[i] * ys[i]
		p.yy += ys[i] * ys[i]
		prefix[i+1] = p
		if i == n-1 || xs[i+1] != xs[i] {
			distinct = append(distinct, xs[i])
			ends = append(ends, i+1)
		}
	}
	m := len(distinct)
	if m < minDistinctSpeeds {
		return hinge{}, fmt.Errorf("%w: %d distinct speeds, need %d", ErrFitFailure, m, minDistinctSpeeds)
	}
	total := prefix[n]

	best := hinge{ssr: math.Inf(1)}

	// Breakpoint strictly inside the gap after distinct value k: both sides
	// need two distinct values for their own line.
	for k := 1; k <= m-3; k++ {
		left := prefix[ends[k]]
		right := total.sub(left)
		a1, s1, r1, ok1 := left.line()
		a2, s2, r2, ok2 := right.line()
		if !ok1 || !ok2 || s1 == s2 {
			continue
		}
		bp := (a2 - a1) / (s1 - s2)
		if bp <= distinct[k] || bp >= distinct[k+1] {
			continue
		}
		if ssr := r1 + r2; ssr < best.ssr {
			best = hinge{b0: a1, b1: s1, b2: s2 - s1, bp: bp, ssr: ssr}
		}
	}

	// Breakpoint on an interior distinct value.
	for k := 1; k <= m-2; k++ {
		h, ok := constrainedHinge(total, total.sub(prefix[ends[k]]), distinct[k])
		if ok && h.ssr < best.ssr {
			best = h
		}
	}

	if math.IsInf(best.ssr, 1) {
		return hinge{}, fmt.Errorf("%w: no admissible breakpoint", ErrFitFailure)
	}

	// Back to the original axes.
	best.b0 += my - best.b1*mx
	best.bp += mx
	return best, nil
}

// constrainedHinge solves the 3x3 normal equations for a fixed breakpoint b.
// all summarises every point, right the points with x > b.
func constrainedHinge(all, right moments, b float64) (hinge, bool) {
	sh := right.x - b*right.n
	shh := right.xx - 2*b*right.x + b*b*right.n
	sxh := right.xx - b*right.x
	shy := right.xy - b*right.y

	a := mat.NewSymDense(3, []float64{
		all.n, all.x, sh,
		all.x, all.xx, sxh,
		sh, sxh, shh,
	})
	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return hinge{}, false
	}
	rhs := mat.NewVecDense(3, []float64{all.y, all.xy, shy})
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, rhs); err != nil {
		return hinge{}, false
	}

	ssr := all.yy - mat.Dot(&beta, rhs)
	return hinge{
		b0:  beta.AtVec(0),
		b1:  beta.AtVec(1),
		b2:  beta.AtVec(2),
		bp:  b,
		ssr: math.Max(ssr, 0),
	}, true
}
