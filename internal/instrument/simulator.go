package instrument

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrSimulatedFault is the default error injected by Simulator.FailOn
var ErrSimulatedFault = errors.New("instrument: simulated fault")

type fault struct {
	nth int
	err error
}

// Simulator is an in-memory source-measure unit driving a resistive load
// It records every call and can inject faults for testing
type Simulator struct {
	mu sync.Mutex

	loadOhms   float64
	source     Function
	level      float64
	compliance float64
	enabled    bool

	Settings SimulatorSettings

	calls  map[string]int
	log    []string
	faults map[string]fault
}

// SimulatorSettings is the last static configuration applied to the simulator
type SimulatorSettings struct {
	SourceRange     float64
	MeasureRanges   map[Function]float64
	AutoRange       map[Function]bool
	NPLC            map[Function]float64
	Sensing         SensingMode
	Jacks           Jacks
	OffState        OffState
	HighCapacitance bool
	OffsetOhms      bool
}

// NewSimulator returns a simulator with a load of loadOhms
func NewSimulator(loadOhms float64) *Simulator {
	if loadOhms <= 0 {
		loadOhms = 1000
	}
	return &Simulator{
		loadOhms: loadOhms,
		calls:    make(map[string]int),
		faults:   make(map[string]fault),
		Settings: SimulatorSettings{
			MeasureRanges: make(map[Function]float64),
			AutoRange:     make(map[Function]bool),
			NPLC:          make(map[Function]float64),
		},
	}
}

// FailOn makes the nth call (1-based) of op fail with err, or ErrSimulatedFault if err is nil
func (s *Simulator) FailOn(op string, nth int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = ErrSimulatedFault
	}
	s.faults[op] = fault{nth: nth, err: err}
}

// Calls returns how many times op was invoked
func (s *Simulator) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Log returns the ordered call log
func (s *Simulator) Log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.log))
	copy(out, s.log)
	return out
}

// Enabled reports whether the output is on
func (s *Simulator) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Identify reports a fixed simulated identity
func (s *Simulator) Identify(ctx context.Context) (Identity, error) {
	return Identity{Manufacturer: "SIMULATED", Model: "2450", Serial: "0", Firmware: "sim"}, nil
}

// record must be called with mu held
func (s *Simulator) record(ctx context.Context, op string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.calls[op]++
	entry := op
	if len(args) > 0 {
		entry = fmt.Sprint(append([]any{op}, args...)...)
	}
	s.log = append(s.log, entry)
	if f, ok := s.faults[op]; ok && f.nth == s.calls[op] {
		return fmt.Errorf("%s: %w", op, f.err)
	}
	return nil
}

// ApplyVoltage switches to sourcing voltage
func (s *Simulator) ApplyVoltage(ctx context.Context, sourceRange, complianceCurrent float64) error {
	return s.apply(ctx, "ApplyVoltage", Voltage, sourceRange, complianceCurrent)
}

// ApplyCurrent switches to sourcing current
func (s *Simulator) ApplyCurrent(ctx context.Context, sourceRange, complianceVoltage float64) error {
	return s.apply(ctx, "ApplyCurrent", Current, sourceRange, complianceVoltage)
}

func (s *Simulator) apply(ctx context.Context, op string, f Function, sourceRange, compliance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, op, " ", sourceRange, " ", compliance); err != nil {
		return err
	}
	s.source = f
	s.level = 0
	s.compliance = compliance
	s.Settings.SourceRange = sourceRange
	return nil
}

// SetSourceVoltage sets the voltage level
func (s *Simulator) SetSourceVoltage(ctx context.Context, v float64) error {
	return s.setLevel(ctx, "SetSourceVoltage", Voltage, v)
}

// SetSourceCurrent sets the current level
func (s *Simulator) SetSourceCurrent(ctx context.Context, i float64) error {
	return s.setLevel(ctx, "SetSourceCurrent", Current, i)
}

func (s *Simulator) setLevel(ctx context.Context, op string, f Function, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, op, " ", v); err != nil {
		return err
	}
	if s.source != f {
		return fmt.Errorf("%s: source function is %s", op, s.source)
	}
	s.level = v
	return nil
}

// SourceVoltage returns the programmed voltage level
func (s *Simulator) SourceVoltage(ctx context.Context) (float64, error) {
	return s.readLevel(ctx, "SourceVoltage", Voltage)
}

// SourceCurrent returns the programmed current level
func (s *Simulator) SourceCurrent(ctx context.Context) (float64, error) {
	return s.readLevel(ctx, "SourceCurrent", Current)
}

func (s *Simulator) readLevel(ctx context.Context, op string, f Function) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, op); err != nil {
		return 0, err
	}
	if s.source != f {
		return 0, nil
	}
	return s.level, nil
}

// MeasureVoltage returns the voltage across the load
func (s *Simulator) MeasureVoltage(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, "MeasureVoltage"); err != nil {
		return 0, err
	}
	v, _ := s.operatingPoint()
	return v, nil
}

// MeasureCurrent returns the current through the load
func (s *Simulator) MeasureCurrent(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, "MeasureCurrent"); err != nil {
		return 0, err
	}
	_, i := s.operatingPoint()
	return i, nil
}

// MeasureResistance returns the load resistance
func (s *Simulator) MeasureResistance(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, "MeasureResistance"); err != nil {
		return 0, err
	}
	return s.loadOhms, nil
}

// operatingPoint returns the voltage across and current through the load,
// clamped at the compliance limit. Must be called with mu held
func (s *Simulator) operatingPoint() (float64, float64) {
	if !s.enabled {
		return 0, 0
	}
	switch s.source {
	case Voltage:
		v, i := s.level, s.level/s.loadOhms
		if s.compliance > 0 && math.Abs(i) > s.compliance {
			i = math.Copysign(s.compliance, i)
			v = i * s.loadOhms
		}
		return v, i
	case Current:
		i, v := s.level, s.level*s.loadOhms
		if s.compliance > 0 && math.Abs(v) > s.compliance {
			v = math.Copysign(s.compliance, v)
			i = v / s.loadOhms
		}
		return v, i
	}
	return 0, 0
}

// EnableSource turns the output on
func (s *Simulator) EnableSource(ctx context.Context) error {
	return s.setOutput(ctx, "EnableSource", true)
}

// DisableSource turns the output off
func (s *Simulator) DisableSource(ctx context.Context) error {
	return s.setOutput(ctx, "DisableSource", false)
}

func (s *Simulator) setOutput(ctx context.Context, op string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, op); err != nil {
		return err
	}
	s.enabled = on
	return nil
}

// Shutdown zeroes both levels and turns the output off
func (s *Simulator) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, "Shutdown"); err != nil {
		return err
	}
	s.level = 0
	s.enabled = false
	return nil
}

// AutoRangeVoltage stores the value in Settings; readings are unaffected
func (s *Simulator) AutoRangeVoltage(ctx context.Context) error {
	return s.setting(ctx, "AutoRangeVoltage", func() { s.Settings.AutoRange[Voltage] = true })
}

// AutoRangeCurrent stores the value in Settings; readings are unaffected
func (s *Simulator) AutoRangeCurrent(ctx context.Context) error {
	return s.setting(ctx, "AutoRangeCurrent", func() { s.Settings.AutoRange[Current] = true })
}

// SetMeasureRange stores the value in Settings; readings are unaffected
func (s *Simulator) SetMeasureRange(ctx context.Context, f Function, value float64) error {
	return s.setting(ctx, "SetMeasureRange", func() { s.Settings.MeasureRanges[f] = value })
}

// SetNPLC stores the value in Settings; readings are unaffected
func (s *Simulator) SetNPLC(ctx context.Context, f Function, nplc float64) error {
	return s.setting(ctx, "SetNPLC", func() { s.Settings.NPLC[f] = nplc })
}

// SetSensingMode stores the value in Settings; readings are unaffected
func (s *Simulator) SetSensingMode(ctx context.Context, mode SensingMode) error {
	return s.setting(ctx, "SetSensingMode", func() { s.Settings.Sensing = mode })
}

// SetInputJacks stores the value in Settings; readings are unaffected
func (s *Simulator) SetInputJacks(ctx context.Context, jacks Jacks) error {
	return s.setting(ctx, "SetInputJacks", func() { s.Settings.Jacks = jacks })
}

// SetOutputOffState stores the value in Settings; readings are unaffected
func (s *Simulator) SetOutputOffState(ctx context.Context, state OffState) error {
	return s.setting(ctx, "SetOutputOffState", func() { s.Settings.OffState = state })
}

// SetHighCapacitance stores the value in Settings; readings are unaffected
func (s *Simulator) SetHighCapacitance(ctx context.Context, on bool) error {
	return s.setting(ctx, "SetHighCapacitance", func() { s.Settings.HighCapacitance = on })
}

// SetOffsetCompensatedOhms stores the value in Settings; readings are unaffected
func (s *Simulator) SetOffsetCompensatedOhms(ctx context.Context, on bool) error {
	return s.setting(ctx, "SetOffsetCompensatedOhms", func() { s.Settings.OffsetOhms = on })
}

func (s *Simulator) setting(ctx context.Context, op string, apply func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(ctx, op); err != nil {
		return err
	}
	apply()
	return nil
}
