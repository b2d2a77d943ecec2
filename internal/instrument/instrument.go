package instrument

import (
	"context"
	"strings"
)

// Function is a source or measure function of the instrument
type Function int

const (
	Voltage Function = iota + 1
	Current
	Resistance
)

func (f Function) String() string {
	switch f {
	case Voltage:
		return "voltage"
	case Current:
		return "current"
	case Resistance:
		return "resistance"
	default:
		return "unknown"
	}
}

// SensingMode selects 2-wire or 4-wire (remote sense) measurement
type SensingMode int

const (
	TwoWire SensingMode = iota
	FourWire
)

// Jacks selects the front or rear terminals
type Jacks int

const (
	Front Jacks = iota
	Rear
)

// OffState is the output state applied when the source is disabled
type OffState int

const (
	OffNormal OffState = iota
	OffHighZ
	OffZero
	OffGuard
)

// ParseOffState maps a user string to an OffState. Unrecognized input yields OffNormal
func ParseOffState(s string) OffState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high-z", "highz", "high z":
		return OffHighZ
	case "zero":
		return OffZero
	case "guard":
		return OffGuard
	default:
		return OffNormal
	}
}

func (o OffState) String() string {
	switch o {
	case OffHighZ:
		return "High-Z"
	case OffZero:
		return "Zero"
	case OffGuard:
		return "Guard"
	default:
		return "Normal"
	}
}

// AutoRange passed as a range selects instrument auto-ranging
const AutoRange = 0

// Instrument is the capability surface of a source-measure unit
// Any call may fail; callers treat a failure as an instrument fault
type Instrument interface {
	// ApplyVoltage configures a voltage source. sourceRange == AutoRange enables auto-ranging
	ApplyVoltage(ctx context.Context, sourceRange, complianceCurrent float64) error
	// ApplyCurrent configures a current source. sourceRange == AutoRange enables auto-ranging
	ApplyCurrent(ctx context.Context, sourceRange, complianceVoltage float64) error

	SetSourceVoltage(ctx context.Context, v float64) error
	SetSourceCurrent(ctx context.Context, i float64) error
	SourceVoltage(ctx context.Context) (float64, error)
	SourceCurrent(ctx context.Context) (float64, error)

	MeasureVoltage(ctx context.Context) (float64, error)
	MeasureCurrent(ctx context.Context) (float64, error)
	MeasureResistance(ctx context.Context) (float64, error)

	EnableSource(ctx context.Context) error
	DisableSource(ctx context.Context) error
	Shutdown(ctx context.Context) error

	AutoRangeVoltage(ctx context.Context) error
	AutoRangeCurrent(ctx context.Context) error
	SetMeasureRange(ctx context.Context, f Function, value float64) error
	SetNPLC(ctx context.Context, f Function, nplc float64) error

	SetSensingMode(ctx context.Context, mode SensingMode) error
	SetInputJacks(ctx context.Context, jacks Jacks) error
	SetOutputOffState(ctx context.Context, state OffState) error
	SetHighCapacitance(ctx context.Context, on bool) error
	SetOffsetCompensatedOhms(ctx context.Context, on bool) error
}

// Identity is the parsed *IDN? response
type Identity struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Serial       string `json:"serial"`
	Firmware     string `json:"firmware"`
}

// Identifier is implemented by instruments that can report their identity
type Identifier interface {
	Identify(ctx context.Context) (Identity, error)
}

// ParseIdentity splits a comma separated *IDN? response
func ParseIdentity(resp string) Identity {
	parts := strings.SplitN(strings.TrimSpace(resp), ",", 4)
	for len(parts) < 4 {
		parts = append(parts, "")
	}
	return Identity{
		Manufacturer: strings.TrimSpace(parts[0]),
		Model:        strings.TrimSpace(parts[1]),
		Serial:       strings.TrimSpace(parts[2]),
		Firmware:     strings.TrimSpace(parts[3]),
	}
}
