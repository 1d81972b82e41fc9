package labels

import (
	"fmt"

	"stockcast/internal/domain"
)

// VarianceFloor is the minimum target variance for a series to be labeled.
const VarianceFloor = 1e-10

// Transformer adds one label column and one threshold column per spec to a
// table of indicator rows.
type Transformer struct {
	Specs  []domain.LabelSpec
	Target string
	Schema domain.FeatureSchema
}

// NewTransformer validates specs and returns a Transformer over target.
func NewTransformer(specs []domain.LabelSpec, target string, schema domain.FeatureSchema) (*Transformer, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no label specs", domain.ErrConfiguration)
	}
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	if target == "" {
		target = domain.ColClose
	}
	return &Transformer{Specs: specs, Target: target, Schema: schema}, nil
}

// Name identifies the stage in logs.
func (t *Transformer) Name() string { return string(domain.StageLabels) }

// Horizon is the longest forward window. Rows that close to the end of
// the series are not labeled yet and are left for a later run.
func (t *Transformer) Horizon() int { return domain.MaxWindow(t.Specs) }

// Validate checks the full upstream series before any work is done.
func (t *Transformer) Validate(src *domain.Table) error {
	if len(src.Rows) > 0 {
		first := src.Rows[0]
		if _, ok := first.Values[t.Target]; !ok {
			return fmt.Errorf("%w: target column %q missing", domain.ErrComputation, t.Target)
		}
		for _, c := range t.Schema.Columns {
			if _, ok := first.Values[c]; !ok {
				return fmt.Errorf("%w: feature column %q missing", domain.ErrComputation, c)
			}
		}
	}
	if v := Variance(src.Column(t.Target)); v < VarianceFloor {
		return fmt.Errorf("%w: no price variation (likely suspended/delisted, variance=%.2e)",
			domain.ErrDegenerateSeries, v)
	}
	if n := src.Len(); n <= domain.MinWindow(t.Specs) {
		return fmt.Errorf("%w: %d rows, shortest window is %d",
			domain.ErrInsufficientHistory, n, domain.MinWindow(t.Specs))
	}
	return nil
}

// Transform returns a copy of src projected onto the base and schema
// columns with label and threshold columns added. Specs whose window is not
// shorter than the series are reported as warnings.
func (t *Transformer) Transform(src *domain.Table) (*domain.Table, []error, error) {
	out := &domain.Table{Instrument: src.Instrument, Rows: make([]domain.Row, len(src.Rows))}
	for i, r := range src.Rows {
		out.Rows[i] = t.project(r)
	}

	target := src.Column(t.Target)
	var warnings []error
	for _, spec := range t.Specs {
		if len(target) <= spec.Window {
			warnings = append(warnings, fmt.Errorf("%w: %s needs more than %d rows, have %d",
				domain.ErrInsufficientHistory, spec.Column(), spec.Window, len(target)))
		}
		res, err := Compute(target, spec)
		if err != nil {
			return nil, warnings, fmt.Errorf("computing %s: %w", spec.Column(), err)
		}
		col, thr := spec.Column(), spec.ThresholdColumn()
		for i := range out.Rows {
			if res.Labels[i] != "" {
				out.Rows[i].Labels[col] = res.Labels[i]
			}
			out.Rows[i].Values[thr] = res.Threshold
		}
	}
	return out, warnings, nil
}

// project keeps OHLCV and schema columns, dropping anything else the
// upstream table carries.
func (t *Transformer) project(r domain.Row) domain.Row {
	out := domain.NewRow(r.Date)
	for _, c := range domain.BaseColumns {
		if v, ok := r.Values[c]; ok {
			out.Values[c] = v
		}
	}
	if _, ok := out.Values[t.Target]; !ok {
		out.Values[t.Target] = r.Value(t.Target)
	}
	for _, c := range t.Schema.Columns {
		out.Values[c] = r.Value(c)
	}
	return out
}
