package batch

import (
	"fmt"
	"io"

	"stockcast/internal/domain"
)

// Summary aggregates the outcomes of one batch run.
type Summary struct {
	Total     int
	Succeeded int
	NewRows   int
	// Limited holds successes that carried warnings, e.g. a label window
	// longer than the instrument's history.
	Limited  []domain.Outcome
	Failures map[domain.FailureCause][]domain.Outcome
}

// Failed returns the number of failed outcomes.
func (s Summary) Failed() int { return s.Total - s.Succeeded }

// Summarize tallies outcomes after every worker has returned.
func Summarize(outcomes []domain.Outcome) Summary {
	s := Summary{Total: len(outcomes), Failures: make(map[domain.FailureCause][]domain.Outcome)}
	for _, o := range outcomes {
		if o.Success {
			s.Succeeded++
			s.NewRows += o.NewRows
			if len(o.Warnings) > 0 {
				s.Limited = append(s.Limited, o)
			}
			continue
		}
		c := o.Cause()
		s.Failures[c] = append(s.Failures[c], o)
	}
	return s
}

type failureGroup struct {
	title  string
	causes []domain.FailureCause
}

var failureGroups = []failureGroup{
	{"Suspended/delisted (no price variation)", []domain.FailureCause{domain.CauseDegenerate}},
	{"Insufficient data", []domain.FailureCause{domain.CauseInsufficient}},
	{"Missing or empty upstream data", []domain.FailureCause{domain.CauseNotFound, domain.CauseEmpty}},
	{"Other errors", []domain.FailureCause{domain.CauseConfiguration, domain.CauseComputation, domain.CauseOther}},
}

// Print writes a human-readable report of the run to w.
func (s Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "Processing summary\n")
	fmt.Fprintf(w, "  Total instruments: %d\n", s.Total)
	fmt.Fprintf(w, "  Succeeded:         %d (%d new rows)\n", s.Succeeded, s.NewRows)
	fmt.Fprintf(w, "  Failed:            %d\n", s.Failed())

	if len(s.Limited) > 0 {
		fmt.Fprintf(w, "\nLimited history (%d):\n", len(s.Limited))
		for _, o := range s.Limited {
			for _, warn := range o.Warnings {
				fmt.Fprintf(w, "  - %s: %v\n", o.Instrument, warn)
			}
		}
	}

	for _, g := range failureGroups {
		var group []domain.Outcome
		for _, c := range g.causes {
			group = append(group, s.Failures[c]...)
		}
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s (%d):\n", g.title, len(group))
		for _, o := range group {
			fmt.Fprintf(w, "  - %s\n", o.Message)
		}
	}
}
