package acquisition

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/RMahshie/smuacq/internal/instrument"
	"github.com/RMahshie/smuacq/internal/units"
)

// Configurator applies the static instrument configuration of a run
type Configurator struct {
	inst instrument.Instrument
}

// NewConfigurator creates a configurator that programs inst
func NewConfigurator(inst instrument.Instrument) *Configurator {
	return &Configurator{inst: inst}
}

// Apply validates s and then configures wiring, the source with its compliance
// limit, and the range and NPLC of each enabled measurement. Invalid settings
// fail with ErrInvalidConfig before any instrument call. A failed instrument
// call is returned as a *ConfigurationError
func (c *Configurator) Apply(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	rng, err := s.ranges()
	if err != nil {
		return err
	}

	log.Info().
		Str("source_mode", s.SourceMode.String()).
		Float64("nplc", s.NPLC).
		Str("output_off_state", s.OutputOffState.String()).
		Msg("Configuring instrument")

	steps := []struct {
		name string
		op   string
		fn   func() error
	}{
		{"input jacks", "SetInputJacks", func() error { return c.inst.SetInputJacks(ctx, s.InputJacks) }},
		{"sensing mode", "SetSensingMode", func() error { return c.inst.SetSensingMode(ctx, s.SensingMode) }},
		{"output off state", "SetOutputOffState", func() error { return c.inst.SetOutputOffState(ctx, s.OutputOffState) }},
		{"high capacitance", "SetHighCapacitance", func() error { return c.inst.SetHighCapacitance(ctx, s.HighCapacitance) }},
		{"offset compensated ohms", "SetOffsetCompensatedOhms", func() error {
			return c.inst.SetOffsetCompensatedOhms(ctx, s.OffsetCompensatedOhms)
		}},
	}
	for _, st := range steps {
		if err := st.fn(); err != nil {
			return &ConfigurationError{Step: st.name, Err: fault(st.op, err)}
		}
	}

	if err := c.applySource(ctx, s, rng); err != nil {
		return err
	}

	if s.Measurements.Enabled(Voltage) {
		if err := c.applyMeasure(ctx, instrument.Voltage, rng.voltage, s.NPLC); err != nil {
			return err
		}
	}
	if s.Measurements.Enabled(Current) {
		if err := c.applyMeasure(ctx, instrument.Current, rng.current, s.NPLC); err != nil {
			return err
		}
	}
	if s.Measurements.Enabled(Resistance) {
		if err := c.applyMeasure(ctx, instrument.Resistance, rng.resistance, s.NPLC); err != nil {
			return err
		}
	}

	log.Info().Str("source_mode", s.SourceMode.String()).Msg("Instrument configured")
	return nil
}

func (c *Configurator) applySource(ctx context.Context, s Settings, rng resolvedRanges) error {
	if s.SourceMode.SourcesVoltage() {
		if err := c.inst.ApplyVoltage(ctx, sourceRange(rng.voltage), s.CurrentLimit); err != nil {
			return &ConfigurationError{Step: "voltage source", Err: fault("ApplyVoltage", err)}
		}
	} else {
		if err := c.inst.ApplyCurrent(ctx, sourceRange(rng.current), s.VoltageLimit); err != nil {
			return &ConfigurationError{Step: "current source", Err: fault("ApplyCurrent", err)}
		}
	}
	if !s.SourceMode.IsBias() {
		return nil
	}

	level, err := s.biasLevel()
	if err != nil {
		return err
	}
	if s.SourceMode.SourcesVoltage() {
		err = fault("SetSourceVoltage", c.inst.SetSourceVoltage(ctx, level))
	} else {
		err = fault("SetSourceCurrent", c.inst.SetSourceCurrent(ctx, level))
	}
	if err != nil {
		return &ConfigurationError{Step: "bias level", Err: err}
	}
	return nil
}

func (c *Configurator) applyMeasure(ctx context.Context, f instrument.Function, rng units.Range, nplc float64) error {
	step := f.String() + " measurement"
	switch {
	case rng.IsAuto():
		var err error
		switch f {
		case instrument.Voltage:
			err = fault("AutoRangeVoltage", c.inst.AutoRangeVoltage(ctx))
		case instrument.Current:
			err = fault("AutoRangeCurrent", c.inst.AutoRangeCurrent(ctx))
		}
		if err != nil {
			return &ConfigurationError{Step: step, Err: err}
		}
	case rng.IsBestFixed():
		// The instrument picks its own fixed range
	default:
		if err := c.inst.SetMeasureRange(ctx, f, rng.Value); err != nil {
			return &ConfigurationError{Step: step, Err: fault("SetMeasureRange", err)}
		}
	}
	if err := c.inst.SetNPLC(ctx, f, nplc); err != nil {
		return &ConfigurationError{Step: step, Err: fault("SetNPLC", err)}
	}
	return nil
}

func sourceRange(r units.Range) float64 {
	if r.Kind == units.Manual {
		return r.Value
	}
	return instrument.AutoRange
}
