package domain

import (
	"fmt"
	"strings"
)

// LabelFamily is the closed set of forward-looking label definitions.
type LabelFamily int

const (
	Trend LabelFamily = iota + 1
	MedianGain
	MaxLoss
)

type familyInfo struct {
	key      string
	name     string
	positive string
	negative string
}

var families = map[LabelFamily]familyInfo{
	Trend:      {key: "linear_trend", name: "Linear Trend", positive: "Up Trend", negative: "Down Trend"},
	MedianGain: {key: "median_gain", name: "Median Gain", positive: "High Gain", negative: "Low Gain"},
	MaxLoss:    {key: "max_loss", name: "Max Loss", positive: "Low Risk", negative: "High Risk"},
}

// ParseLabelFamily maps a config/CLI token to a LabelFamily.
func ParseLabelFamily(s string) (LabelFamily, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linear_trend", "trend":
		return Trend, nil
	case "median_gain":
		return MedianGain, nil
	case "max_loss":
		return MaxLoss, nil
	}
	return 0, fmt.Errorf("%w: unknown label type %q", ErrConfiguration, s)
}

// Valid reports whether f is one of the defined families.
func (f LabelFamily) Valid() bool {
	_, ok := families[f]
	return ok
}

// String returns the config token for the family.
func (f LabelFamily) String() string {
	if info, ok := families[f]; ok {
		return info.key
	}
	return fmt.Sprintf("LabelFamily(%d)", int(f))
}

// Name returns the human-readable column prefix, e.g. "Max Loss".
func (f LabelFamily) Name() string { return families[f].name }

// Positive returns the label assigned when the statistic clears the cutoff.
func (f LabelFamily) Positive() string { return families[f].positive }

// Negative returns the label assigned otherwise.
func (f LabelFamily) Negative() string { return families[f].negative }

// LabelSpec pairs a label family with a forward window in trading days.
type LabelSpec struct {
	Family LabelFamily
	Window int
}

// Validate rejects unknown families and non-positive windows.
func (s LabelSpec) Validate() error {
	if !s.Family.Valid() {
		return fmt.Errorf("%w: invalid label family %d", ErrConfiguration, int(s.Family))
	}
	if s.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %d", ErrConfiguration, s.Window)
	}
	return nil
}

// Column returns the label column name, e.g. "Max Loss 5dd".
func (s LabelSpec) Column() string {
	return fmt.Sprintf("%s %ddd", s.Family.Name(), s.Window)
}

// ThresholdColumn returns the threshold column name, e.g.
// "Threshold Max Loss 5dd".
func (s LabelSpec) ThresholdColumn() string {
	return "Threshold " + s.Column()
}

func (s LabelSpec) String() string {
	return fmt.Sprintf("%s/%d", s.Family, s.Window)
}

// ParseLabelSpecs builds every (type, window) combination, types-major.
func ParseLabelSpecs(types []string, windows []int) ([]LabelSpec, error) {
	if len(types) == 0 || len(windows) == 0 {
		return nil, fmt.Errorf("%w: at least one label type and one window required", ErrConfiguration)
	}
	specs := make([]LabelSpec, 0, len(types)*len(windows))
	for _, t := range types {
		f, err := ParseLabelFamily(t)
		if err != nil {
			return nil, err
		}
		for _, w := range windows {
			s := LabelSpec{Family: f, Window: w}
			if err := s.Validate(); err != nil {
				return nil, err
			}
			specs = append(specs, s)
		}
	}
	return specs, nil
}

// MaxWindow returns the largest window across specs.
func MaxWindow(specs []LabelSpec) int {
	m := 0
	for _, s := range specs {
		m = max(m, s.Window)
	}
	return m
}

// MinWindow returns the smallest window across specs, or 0 when empty.
func MinWindow(specs []LabelSpec) int {
	if len(specs) == 0 {
		return 0
	}
	m := specs[0].Window
	for _, s := range specs[1:] {
		m = min(m, s.Window)
	}
	return m
}
