package acquisition

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig reports bad or missing run options. No instrument call is made
	ErrInvalidConfig = errors.New("acquisition: invalid configuration")
	// ErrInstrumentFault reports a failed driver call
	ErrInstrumentFault = errors.New("acquisition: instrument fault")
	// ErrAborted reports a run stopped before its last set-point
	ErrAborted = errors.New("acquisition: aborted")
	// ErrInstrumentBusy is returned when another run already owns the instrument
	ErrInstrumentBusy = errors.New("acquisition: instrument busy")
)

// InstrumentFault is a driver call that failed
type InstrumentFault struct {
	Op  string
	Err error
}

func (e *InstrumentFault) Error() string {
	return fmt.Sprintf("instrument fault in %s: %v", e.Op, e.Err)
}

func (e *InstrumentFault) Unwrap() []error { return []error{ErrInstrumentFault, e.Err} }

func fault(op string, err error) error {
	if err == nil {
		return nil
	}
	return &InstrumentFault{Op: op, Err: err}
}

// ConfigurationError is an instrument fault raised while applying static configuration
type ConfigurationError struct {
	Step string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuring %s: %v", e.Step, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// AbortError carries the position at which a run stopped
// Index is the zero-based set-point index, or -1 when no set-point was involved
type AbortError struct {
	Index    int
	SetPoint float64
	Err      error
}

func (e *AbortError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("acquisition aborted: %v", e.Err)
	}
	return fmt.Sprintf("acquisition aborted at set-point %d (%g): %v", e.Index, e.SetPoint, e.Err)
}

func (e *AbortError) Unwrap() []error { return []error{ErrAborted, e.Err} }

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
