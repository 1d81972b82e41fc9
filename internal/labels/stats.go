package labels

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// percentile returns the p-th percentile (p in 0-100) of an ascending
// slice using linear interpolation between closest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))

	if lower == upper {
		return sorted[lower]
	}

	fraction := rank - float64(lower)
	return sorted[lower] + fraction*(sorted[upper]-sorted[lower])
}

// nanQuantile returns the q-quantile (q in 0-1) of the finite values,
// ignoring NaN. It is NaN when no finite value exists.
func nanQuantile(values []float64, q float64) float64 {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return math.NaN()
	}
	sort.Float64s(finite)
	return percentile(finite, q*100)
}

// forwardWindow returns target[i+1 : i+1+window], the window of future
// values for row i, and false when it runs past the end of the series or
// contains a missing value.
func forwardWindow(target []float64, i, window int) ([]float64, bool) {
	start, end := i+1, i+1+window
	if window <= 0 || end > len(target) {
		return nil, false
	}
	w := target[start:end]
	for _, v := range w {
		if math.IsNaN(v) {
			return nil, false
		}
	}
	return w, true
}

// pctChange is 100 * (future - current) / current. Non-finite results,
// including those from a zero current value, become NaN.
func pctChange(current, future float64) float64 {
	v := 100 * (future - current) / current
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Variance returns the population variance of the finite values.
func Variance(values []float64) float64 {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return 0
	}
	return stat.PopVariance(finite, nil)
}
