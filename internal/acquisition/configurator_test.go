package acquisition

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/smuacq/internal/instrument"
)

func callOps(sim *instrument.Simulator) []string {
	var ops []string
	for _, entry := range sim.Log() {
		ops = append(ops, strings.Fields(entry)[0])
	}
	return ops
}

func TestConfigurator_CurrentBiasOrder(t *testing.T) {
	sim := instrument.NewSimulator(1000)

	s := NewSettings(CurrentBias)
	s.CurrentLevel = ptr(1e-6)
	s.CurrentRange = "10µA"
	s.VoltageLimit = 2
	s.Measurements = NewMeasurementRequest(Voltage, Current, Resistance)
	s.ResistanceRange = "10kΩ"
	s.VoltageRange = "Best Fixed"
	s.NPLC = 0.1
	s.SensingMode = instrument.FourWire
	s.InputJacks = instrument.Rear
	s.OutputOffState = instrument.OffZero
	s.HighCapacitance = true

	require.NoError(t, NewConfigurator(sim).Apply(context.Background(), s))

	assert.Equal(t, []string{
		"SetInputJacks",
		"SetSensingMode",
		"SetOutputOffState",
		"SetHighCapacitance",
		"SetOffsetCompensatedOhms",
		"ApplyCurrent",
		"SetSourceCurrent",
		"SetNPLC",         // voltage, best fixed sets no range
		"SetMeasureRange", // current
		"SetNPLC",
		"SetMeasureRange", // resistance
		"SetNPLC",
	}, callOps(sim))

	assert.InDelta(t, 10e-6, sim.Settings.SourceRange, 1e-18)
	assert.InDelta(t, 10e-6, sim.Settings.MeasureRanges[instrument.Current], 1e-18)
	assert.Equal(t, 10000.0, sim.Settings.MeasureRanges[instrument.Resistance])
	assert.Equal(t, 0.1, sim.Settings.NPLC[instrument.Voltage])
	assert.Equal(t, instrument.FourWire, sim.Settings.Sensing)
	assert.Equal(t, instrument.Rear, sim.Settings.Jacks)
	assert.Equal(t, instrument.OffZero, sim.Settings.OffState)
	assert.True(t, sim.Settings.HighCapacitance)
	assert.False(t, sim.Enabled(), "configuration never enables the source")
}

func TestConfigurator_AutoRanges(t *testing.T) {
	sim := instrument.NewSimulator(1000)
	s := voltageSweep(0, 1, 5)

	require.NoError(t, NewConfigurator(sim).Apply(context.Background(), s))

	assert.Equal(t, 1, sim.Calls("AutoRangeVoltage"))
	assert.Equal(t, 1, sim.Calls("AutoRangeCurrent"))
	assert.Zero(t, sim.Calls("SetMeasureRange"))
	assert.Zero(t, sim.Calls("SetSourceVoltage"), "sweeps write set-points in the loop")
	assert.Equal(t, float64(instrument.AutoRange), sim.Settings.SourceRange)
	assert.Equal(t, DefaultNPLC, sim.Settings.NPLC[instrument.Current])
}

func TestConfigurator_InvalidNumbers(t *testing.T) {
	zeroNPLC := voltageSweep(0, 1, 5)
	zeroNPLC.NPLC = 0

	negativeLimit := voltageSweep(0, 1, 5)
	negativeLimit.CurrentLimit = -1

	for name, s := range map[string]Settings{"nplc": zeroNPLC, "limit": negativeLimit} {
		t.Run(name, func(t *testing.T) {
			sim := instrument.NewSimulator(1000)
			err := NewConfigurator(sim).Apply(context.Background(), s)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Empty(t, sim.Log())
		})
	}
}

func TestConfigurator_WrapsInstrumentFailure(t *testing.T) {
	sim := instrument.NewSimulator(1000)
	sim.FailOn("SetOutputOffState", 1, nil)

	err := NewConfigurator(sim).Apply(context.Background(), voltageSweep(0, 1, 5))

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "output off state", cfgErr.Step)
	assert.ErrorIs(t, err, ErrInstrumentFault)
	assert.ErrorIs(t, err, instrument.ErrSimulatedFault)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}
