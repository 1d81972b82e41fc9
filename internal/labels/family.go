package labels

import (
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// trendSlopes fits, for each row, a no-intercept least-squares line through
// the next window values after subtracting the first of them, against
// x = 0..window-1.
func trendSlopes(target []float64, window int) []float64 {
	out := nanSlice(len(target))
	for i := range target {
		w, ok := forwardWindow(target, i, window)
		if !ok {
			continue
		}
		out[i] = slope(w)
	}
	return out
}

func slope(w []float64) float64 {
	if len(w) < 2 {
		// A single-point window has no direction; treat it as flat.
		return 0
	}
	x := make([]float64, len(w))
	y := make([]float64, len(w))
	for k, v := range w {
		x[k] = float64(k)
		y[k] = v - w[0]
	}
	_, beta := stat.LinearRegression(x, y, nil, true)
	return beta
}

// medianGains is the percentage change from each row to the 40th
// percentile of its next window values.
func medianGains(target []float64, window int) []float64 {
	out := nanSlice(len(target))
	buf := make([]float64, window)
	for i := range target {
		w, ok := forwardWindow(target, i, window)
		if !ok {
			continue
		}
		copy(buf, w)
		slices.Sort(buf)
		out[i] = pctChange(target[i], percentile(buf, 40))
	}
	return out
}

// maxLosses is the percentage change from each row to the minimum of its
// next window values.
func maxLosses(target []float64, window int) []float64 {
	out := nanSlice(len(target))
	for i := range target {
		w, ok := forwardWindow(target, i, window)
		if !ok {
			continue
		}
		out[i] = pctChange(target[i], floats.Min(w))
	}
	return out
}
