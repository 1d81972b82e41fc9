package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDataNotFound means the upstream table for an instrument is missing.
	ErrDataNotFound = errors.New("data not found")
	// ErrEmptyData means the upstream table exists but has no rows.
	ErrEmptyData = errors.New("empty data")
	// ErrDegenerateSeries means the price series has near-zero variance,
	// which usually indicates a suspended or delisted instrument.
	ErrDegenerateSeries = errors.New("degenerate series")
	// ErrConfiguration covers unknown label families and invalid windows.
	ErrConfiguration = errors.New("configuration error")
	// ErrInsufficientHistory means no row can receive a defined label.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrComputation wraps unexpected failures while computing a stage.
	ErrComputation = errors.New("computation error")
)

// FailureCause groups outcome errors for batch reporting.
type FailureCause string

const (
	CauseNone          FailureCause = ""
	CauseNotFound      FailureCause = "not_found"
	CauseEmpty         FailureCause = "empty"
	CauseDegenerate    FailureCause = "degenerate"
	CauseInsufficient  FailureCause = "insufficient_data"
	CauseConfiguration FailureCause = "configuration"
	CauseComputation   FailureCause = "computation"
	CauseOther         FailureCause = "other"
)

// Cause classifies err by the sentinel it wraps.
func Cause(err error) FailureCause {
	switch {
	case err == nil:
		return CauseNone
	case errors.Is(err, ErrDegenerateSeries):
		return CauseDegenerate
	case errors.Is(err, ErrInsufficientHistory):
		return CauseInsufficient
	case errors.Is(err, ErrDataNotFound):
		return CauseNotFound
	case errors.Is(err, ErrEmptyData):
		return CauseEmpty
	case errors.Is(err, ErrConfiguration):
		return CauseConfiguration
	case errors.Is(err, ErrComputation):
		return CauseComputation
	}
	return CauseOther
}

// Outcome is the structured result of materializing one instrument.
type Outcome struct {
	Instrument string
	Success    bool
	Message    string
	NewRows    int
	Err        error
	// Warnings are non-fatal conditions, e.g. one label window exceeding
	// the available history.
	Warnings []error
}

// Cause returns the failure cause, or CauseNone for a success.
func (o Outcome) Cause() FailureCause {
	if o.Success {
		return CauseNone
	}
	if o.Err == nil {
		return CauseOther
	}
	return Cause(o.Err)
}

// Succeeded builds a success outcome.
func Succeeded(instrument string, newRows int, format string, args ...any) Outcome {
	return Outcome{
		Instrument: instrument,
		Success:    true,
		Message:    fmt.Sprintf(format, args...),
		NewRows:    newRows,
	}
}

// Failed builds a failure outcome from err.
func Failed(instrument string, err error) Outcome {
	return Outcome{
		Instrument: instrument,
		Success:    false,
		Message:    fmt.Sprintf("%s - %v", instrument, err),
		Err:        err,
	}
}
