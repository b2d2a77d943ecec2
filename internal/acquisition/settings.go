package acquisition

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/RMahshie/smuacq/internal/instrument"
	"github.com/RMahshie/smuacq/internal/sweep"
	"github.com/RMahshie/smuacq/internal/units"
)

// SourceMode selects what is sourced and how the set-points are produced
type SourceMode int

const (
	VoltageBias SourceMode = iota + 1
	VoltageSweep
	VoltageListSweep
	CurrentBias
	CurrentSweep
	CurrentListSweep
)

var sourceModeNames = map[SourceMode]string{
	VoltageBias:      "Voltage Bias",
	VoltageSweep:     "Voltage Sweep",
	VoltageListSweep: "Voltage List Sweep",
	CurrentBias:      "Current Bias",
	CurrentSweep:     "Current Sweep",
	CurrentListSweep: "Current List Sweep",
}

func (m SourceMode) String() string {
	if n, ok := sourceModeNames[m]; ok {
		return n
	}
	return fmt.Sprintf("SourceMode(%d)", int(m))
}

// ParseSourceMode accepts the mode names case-insensitively, with any
// run of spaces, dashes or underscores between words
func ParseSourceMode(s string) (SourceMode, error) {
	norm := strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), " ")
	for m, n := range sourceModeNames {
		if strings.EqualFold(norm, n) {
			return m, nil
		}
	}
	return 0, invalidConfig("unknown source_mode %q", s)
}

// SourcesVoltage reports whether the instrument forces voltage in this mode
func (m SourceMode) SourcesVoltage() bool {
	return m == VoltageBias || m == VoltageSweep || m == VoltageListSweep
}

// IsBias reports whether m holds one fixed level
func (m SourceMode) IsBias() bool { return m == VoltageBias || m == CurrentBias }

// IsList reports whether m reads its set-points from a list
func (m SourceMode) IsList() bool { return m == VoltageListSweep || m == CurrentListSweep }

func (m SourceMode) quantity() sweep.Quantity {
	if m.SourcesVoltage() {
		return sweep.Voltage
	}
	return sweep.Current
}

// Settings is the complete, immutable option set of one run
type Settings struct {
	SourceMode   SourceMode
	Measurements MeasurementRequest

	VoltageRange    string
	CurrentRange    string
	ResistanceRange string

	// Compliance limits
	CurrentLimit float64
	VoltageLimit float64

	// Bias set-points
	VoltageLevel *float64
	CurrentLevel *float64

	Start float64
	Stop  float64
	Steps int
	// Step, when non-zero, takes precedence over Steps
	Step    float64
	Shape   sweep.Shape
	Dual    bool
	Stepper bool
	// Delay is the wait between writing a set-point and sampling it
	Delay time.Duration

	NPLC                  float64
	InputJacks            instrument.Jacks
	SensingMode           instrument.SensingMode
	OutputOffState        instrument.OffState
	HighCapacitance       bool
	OffsetCompensatedOhms bool

	NumMeasurements int
	SampleDelay     time.Duration

	// ListFile names the list a list sweep was read from. The engine reads
	// list data from the reader passed to Run, never from this path
	ListFile string
}

// Default option values
const (
	DefaultCompliance      = 0.1
	DefaultNPLC            = 1.0
	DefaultSteps           = 10
	DefaultNumMeasurements = 1
	DefaultDelay           = 100 * time.Millisecond
)

// NewSettings returns settings for mode with every default applied
func NewSettings(mode SourceMode) Settings {
	return Settings{
		SourceMode:      mode,
		Measurements:    NewMeasurementRequest(Voltage, Current),
		VoltageRange:    "Auto",
		CurrentRange:    "Auto",
		ResistanceRange: "Auto",
		CurrentLimit:    DefaultCompliance,
		VoltageLimit:    DefaultCompliance,
		Start:           0,
		Stop:            1,
		Steps:           DefaultSteps,
		Shape:           sweep.Linear,
		Delay:           DefaultDelay,
		NPLC:            DefaultNPLC,
		NumMeasurements: DefaultNumMeasurements,
		SampleDelay:     DefaultDelay,
	}
}

// Validate checks everything that can be checked without the instrument
func (s Settings) Validate() error {
	if _, ok := sourceModeNames[s.SourceMode]; !ok {
		return invalidConfig("source_mode is required")
	}
	if err := s.Measurements.validate(); err != nil {
		return err
	}
	if _, err := s.ranges(); err != nil {
		return err
	}
	if !positive(s.CurrentLimit) || !positive(s.VoltageLimit) {
		return invalidConfig("compliance limits must be positive")
	}
	if !positive(s.NPLC) {
		return invalidConfig("nplc must be positive, got %g", s.NPLC)
	}
	if s.Delay < 0 || s.SampleDelay < 0 {
		return invalidConfig("delays must not be negative")
	}
	if s.SourceMode.IsBias() {
		if _, err := s.biasLevel(); err != nil {
			return err
		}
		if s.NumMeasurements < 1 {
			return invalidConfig("num_measurements must be at least 1, got %d", s.NumMeasurements)
		}
		return nil
	}
	if !s.SourceMode.IsList() {
		spec, err := s.SweepSpec()
		if err != nil {
			return err
		}
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

// SweepSpec builds the computed sweep of a Sweep mode
func (s Settings) SweepSpec() (sweep.Spec, error) {
	steps := s.Steps
	if s.Step != 0 {
		n, err := sweep.StepsForSize(s.Start, s.Stop, s.Step)
		if err != nil {
			return sweep.Spec{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		steps = n
	}
	return sweep.Spec{
		Quantity: s.SourceMode.quantity(),
		Start:    s.Start,
		Stop:     s.Stop,
		Steps:    steps,
		Shape:    s.Shape,
		Dual:     s.Dual,
		Stepper:  s.Stepper,
		Dwell:    s.Delay,
	}, nil
}

func (s Settings) biasLevel() (float64, error) {
	level, name := s.VoltageLevel, "voltage_level"
	if !s.SourceMode.SourcesVoltage() {
		level, name = s.CurrentLevel, "current_level"
	}
	if level == nil {
		return 0, invalidConfig("%s is required in %s mode", name, s.SourceMode)
	}
	if math.IsNaN(*level) || math.IsInf(*level, 0) {
		return 0, invalidConfig("%s must be finite", name)
	}
	return *level, nil
}

type resolvedRanges struct {
	voltage, current, resistance units.Range
}

func (s Settings) ranges() (resolvedRanges, error) {
	var out resolvedRanges
	for _, r := range []struct {
		key  string
		in   string
		want units.Quantity
		dst  *units.Range
	}{
		{"voltage_range", s.VoltageRange, units.Voltage, &out.voltage},
		{"current_range", s.CurrentRange, units.Current, &out.current},
		{"resistance_range", s.ResistanceRange, units.Resistance, &out.resistance},
	} {
		in := r.in
		if strings.TrimSpace(in) == "" {
			in = "Auto"
		}
		rng, err := units.Resolve(in)
		if err != nil {
			return out, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, r.key, err)
		}
		if rng.Kind == units.Manual && rng.Quantity != r.want {
			return out, invalidConfig("%s %q is not a %s range", r.key, r.in, r.want)
		}
		*r.dst = rng
	}
	return out, nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
