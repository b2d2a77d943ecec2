package acquisition

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/smuacq/internal/sweep"
)

func TestParseSourceMode(t *testing.T) {
	tests := []struct {
		in   string
		want SourceMode
	}{
		{"Voltage Bias", VoltageBias},
		{"voltage sweep", VoltageSweep},
		{"Voltage List Sweep", VoltageListSweep},
		{"current_bias", CurrentBias},
		{"Current-Sweep", CurrentSweep},
		{"  current   list sweep ", CurrentListSweep},
	}
	for _, tt := range tests {
		got, err := ParseSourceMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseSourceMode("Resistance Sweep")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSettings_SweepSpecFromStepSize(t *testing.T) {
	s := NewSettings(CurrentSweep)
	s.Start, s.Stop, s.Step = 0, 5, 0.05
	s.Shape = sweep.Logarithmic

	spec, err := s.SweepSpec()
	require.NoError(t, err)
	assert.Equal(t, sweep.Current, spec.Quantity)
	assert.Equal(t, 101, spec.Steps)
	assert.Equal(t, sweep.Logarithmic, spec.Shape)

	s.Step = -0.05
	_, err = s.SweepSpec()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSettings_ListModeSkipsBoundsCheck(t *testing.T) {
	s := NewSettings(VoltageListSweep)
	s.Start, s.Stop, s.Steps = 0, 0, 0
	assert.NoError(t, s.Validate())
}

func TestMeasurementRequest_Columns(t *testing.T) {
	req := NewMeasurementRequest(Timestamp, Power, Voltage, Voltage)
	assert.Equal(t, []Quantity{Voltage, Power, Timestamp}, req.Columns())
	assert.False(t, req.Enabled(Resistance))
}

func TestParseQuantity(t *testing.T) {
	for in, want := range map[string]Quantity{
		"voltage":        Voltage,
		"Current (A)":    Current,
		"Resistance (Ω)": Resistance,
		" power ":        Power,
		"TIMESTAMP":      Timestamp,
	} {
		got, err := ParseQuantity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseQuantity("Capacitance")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSample_JSONUsesLabels(t *testing.T) {
	b, err := json.Marshal(Sample{Voltage: 1.5, Power: 0.25})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Voltage (V)": 1.5, "Power (W)": 0.25}`, string(b))

	var back Sample
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, Sample{Voltage: 1.5, Power: 0.25}, back)
}

func TestParseReadMode(t *testing.T) {
	m, err := ParseReadMode("Programmed")
	require.NoError(t, err)
	assert.Equal(t, Programmed, m)

	m, err = ParseReadMode("")
	require.NoError(t, err)
	assert.Equal(t, Measured, m)

	_, err = ParseReadMode("guessed")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
