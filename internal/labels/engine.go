// Package labels computes forward-looking categorical labels over a price
// series. Every label for row i is derived strictly from rows i+1..i+window.
package labels

import (
	"fmt"
	"math"

	"stockcast/internal/domain"
)

// definition binds a label family to its statistic and binning rule.
type definition struct {
	statistic func(target []float64, window int) []float64
	// quantile of the statistic's distribution used as the cutoff; zero
	// means the family has no threshold and bins against zero instead.
	quantile float64
}

var registry = map[domain.LabelFamily]definition{
	domain.Trend:      {statistic: trendSlopes},
	domain.MedianGain: {statistic: medianGains, quantile: 0.8},
	domain.MaxLoss:    {statistic: maxLosses, quantile: 0.6},
}

// Result holds one label column computed over a series.
type Result struct {
	Spec domain.LabelSpec
	// Values is the per-row statistic (slope, gain %, or loss %); NaN where
	// the forward window is incomplete.
	Values []float64
	// Labels is the per-row class; "" where Values is NaN.
	Labels []string
	// Threshold is the series-wide cutoff; NaN for Trend or when no value
	// is defined.
	Threshold float64
}

// HasThreshold reports whether the family bins against a quantile cutoff.
func HasThreshold(f domain.LabelFamily) bool {
	return registry[f].quantile > 0
}

// Compute evaluates spec over target. The returned slices always have
// len(target) entries.
func Compute(target []float64, spec domain.LabelSpec) (Result, error) {
	if err := spec.Validate(); err != nil {
		return Result{}, err
	}
	def, ok := registry[spec.Family]
	if !ok {
		return Result{}, fmt.Errorf("%w: no definition for %s", domain.ErrConfiguration, spec.Family)
	}

	values := def.statistic(target, spec.Window)
	if len(values) != len(target) {
		return Result{}, fmt.Errorf("%w: %s produced %d values for %d rows",
			domain.ErrComputation, spec, len(values), len(target))
	}

	threshold := math.NaN()
	cutoff := 0.0
	if def.quantile > 0 {
		threshold = nanQuantile(values, def.quantile)
		cutoff = threshold
	}

	labels := make([]string, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsNaN(cutoff) {
			continue
		}
		if v >= cutoff {
			labels[i] = spec.Family.Positive()
		} else {
			labels[i] = spec.Family.Negative()
		}
	}

	return Result{
		Spec:      spec,
		Values:    values,
		Labels:    labels,
		Threshold: threshold,
	}, nil
}
