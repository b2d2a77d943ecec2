package sweep

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidSweep is returned for sweep bounds or step settings that cannot produce a sequence
var ErrInvalidSweep = errors.New("sweep: invalid sweep")

// Quantity is the sourced quantity a sweep drives
type Quantity int

const (
	Voltage Quantity = iota + 1
	Current
)

func (q Quantity) String() string {
	switch q {
	case Voltage:
		return "voltage"
	case Current:
		return "current"
	default:
		return "unknown"
	}
}

// Shape selects the spacing of computed set-points
type Shape int

const (
	Linear Shape = iota
	Logarithmic
)

func (s Shape) String() string {
	if s == Logarithmic {
		return "Logarithmic"
	}
	return "Linear"
}

// ParseShape accepts "Linear" and "Logarithmic" in any case. Empty means Linear
func ParseShape(s string) (Shape, error) {
	switch {
	case s == "" || strings.EqualFold(s, "linear"):
		return Linear, nil
	case strings.EqualFold(s, "logarithmic") || strings.EqualFold(s, "log"):
		return Logarithmic, nil
	}
	return Linear, fmt.Errorf("%w: unknown sweep type %q", ErrInvalidSweep, s)
}

// Spec describes one sweep. List holds the validated values of a list sweep;
// when it is non-nil the computed path is bypassed
type Spec struct {
	Quantity Quantity
	Start    float64
	Stop     float64
	Steps    int
	Shape    Shape
	Dual     bool
	Stepper  bool
	Dwell    time.Duration
	List     []float64
}

// FromList builds a list-origin spec. Stepper is forced on for bookkeeping;
// no increment is computed for list sweeps
func FromList(q Quantity, values []float64, dwell time.Duration) Spec {
	list := make([]float64, len(values))
	copy(list, values)
	return Spec{
		Quantity: q,
		Steps:    len(list),
		Stepper:  true,
		Dwell:    dwell,
		List:     list,
	}
}

// IsList reports whether the spec originates from a value list
func (s Spec) IsList() bool { return s.List != nil }

// Validate checks the spec without computing the sequence
func (s Spec) Validate() error {
	if s.Quantity != Voltage && s.Quantity != Current {
		return fmt.Errorf("%w: quantity must be voltage or current", ErrInvalidSweep)
	}
	if s.Dwell < 0 {
		return fmt.Errorf("%w: dwell must be >= 0", ErrInvalidSweep)
	}
	if s.IsList() {
		return nil
	}
	if isBad(s.Start) || isBad(s.Stop) {
		return fmt.Errorf("%w: start and stop must be finite", ErrInvalidSweep)
	}
	if s.Steps < 2 {
		return fmt.Errorf("%w: steps must be >= 2, got %d", ErrInvalidSweep, s.Steps)
	}
	if s.Shape == Logarithmic {
		if s.Start <= 0 || s.Stop <= 0 {
			return fmt.Errorf("%w: logarithmic sweep requires positive start and stop", ErrInvalidSweep)
		}
		if s.Start == s.Stop {
			return fmt.Errorf("%w: logarithmic sweep with start == stop", ErrInvalidSweep)
		}
	}
	if s.Stepper && s.Start == s.Stop {
		return fmt.Errorf("%w: stepper sweep needs start != stop", ErrInvalidSweep)
	}
	return nil
}

// StepSize is the increment used by the stepper sequence
func (s Spec) StepSize() float64 {
	return (s.Stop - s.Start) / float64(s.Steps-1)
}

// Plan produces the ordered set-point sequence for spec. It is a pure function of spec
func Plan(spec Spec) ([]float64, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.IsList() {
		out := make([]float64, len(spec.List))
		copy(out, spec.List)
		return out, nil
	}

	var values []float64
	switch {
	case spec.Stepper:
		values = stepped(spec.Start, spec.Stop, spec.StepSize(), spec.Steps)
	case spec.Shape == Logarithmic:
		values = logspace(spec.Start, spec.Stop, spec.Steps)
	default:
		values = linspace(spec.Start, spec.Stop, spec.Steps)
	}

	if spec.Dual {
		n := len(values)
		dual := make([]float64, 2*n)
		copy(dual, values)
		for i, v := range values {
			dual[2*n-1-i] = v
		}
		values = dual
	}
	return values, nil
}

// StepsForSize converts a step size into an inclusive step count
func StepsForSize(start, stop, step float64) (int, error) {
	if step == 0 || isBad(step) {
		return 0, fmt.Errorf("%w: step size must be non-zero", ErrInvalidSweep)
	}
	span := stop - start
	if span != 0 && math.Signbit(span) != math.Signbit(step) {
		return 0, fmt.Errorf("%w: step %g does not move from %g towards %g", ErrInvalidSweep, step, start, stop)
	}
	return int(span/step) + 1, nil
}

func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	delta := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*delta
	}
	out[n-1] = stop
	return out
}

func logspace(start, stop float64, n int) []float64 {
	exps := linspace(math.Log10(start), math.Log10(stop), n)
	out := make([]float64, n)
	for i, e := range exps {
		out[i] = math.Pow(10, e)
	}
	return out
}

// stepped walks start + i*delta until the first value at or beyond stop
// Rounding can make the last element overshoot stop; that is kept as is
func stepped(start, stop, delta float64, steps int) []float64 {
	ascending := delta > 0
	// Exact arithmetic reaches stop at i = steps-1; the slack covers rounding
	limit := steps + 2
	out := make([]float64, 0, steps+1)
	for i := 0; i < limit; i++ {
		v := start + float64(i)*delta
		out = append(out, v)
		if (ascending && v >= stop) || (!ascending && v <= stop) {
			break
		}
	}
	return out
}

func isBad(f float64) bool { return math.IsNaN(f) || math.IsInf(f, 0) }
