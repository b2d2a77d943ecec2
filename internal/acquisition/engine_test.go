package acquisition

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/smuacq/internal/instrument"
	"github.com/RMahshie/smuacq/internal/listfile"
	"github.com/RMahshie/smuacq/internal/sweep"
	"github.com/RMahshie/smuacq/internal/units"
)

func voltageSweep(start, stop float64, steps int) Settings {
	s := NewSettings(VoltageSweep)
	s.Start, s.Stop, s.Steps = start, stop, steps
	s.Delay = 0
	return s
}

func ptr(v float64) *float64 { return &v }

func TestEngine_LinearVoltageSweep(t *testing.T) {
	sim := instrument.NewSimulator(1000)
	engine := NewEngine(sim)

	res, err := engine.Run(context.Background(), voltageSweep(0, 1, 5), nil)
	require.NoError(t, err)

	assert.True(t, res.Complete())
	assert.Equal(t, []Quantity{Voltage, Current}, res.Columns)
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1.0}, res.SetPoints)
	require.Len(t, res.Samples, 5)
	for i, sample := range res.Samples {
		assert.InDelta(t, res.SetPoints[i], sample[Voltage], 1e-12)
		assert.InDelta(t, res.SetPoints[i]/1000, sample[Current], 1e-15)
	}

	assert.Equal(t, Completed, engine.State())
	assert.Equal(t, 1, sim.Calls("DisableSource"))
	assert.False(t, sim.Enabled())
}

func TestEngine_FaultOnThirdSetPointAborts(t *testing.T) {
	sim := instrument.NewSimulator(1000)
	sim.FailOn("SetSourceVoltage", 3, nil)
	engine := NewEngine(sim)

	res, err := engine.Run(context.Background(), voltageSweep(0, 9, 10), nil)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, ErrInstrumentFault)
	assert.ErrorIs(t, err, instrument.ErrSimulatedFault)

	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, 2, abort.Index)
	assert.Equal(t, 2.0, abort.SetPoint)

	require.NotNil(t, res)
	assert.Len(t, res.Samples, 2)
	assert.Equal(t, StatusAborted, res.Status)
	assert.False(t, res.Complete())
	assert.Equal(t, Aborted, engine.State())
	assert.Equal(t, 1, sim.Calls("DisableSource"))
}

func TestEngine_InvalidInputTouchesNothing(t *testing.T) {
	logSweep := voltageSweep(0, 1, 5)
	logSweep.Shape = sweep.Logarithmic

	badRange := voltageSweep(0, 1, 5)
	badRange.VoltageRange = "12mW"

	wrongQuantity := voltageSweep(0, 1, 5)
	wrongQuantity.CurrentRange = "200mV"

	noLevel := NewSettings(CurrentBias)

	tests := []struct {
		name     string
		settings Settings
		sentinel error
	}{
		{"log sweep through zero", logSweep, sweep.ErrInvalidSweep},
		{"unknown unit", badRange, units.ErrRangeFormat},
		{"range of wrong quantity", wrongQuantity, ErrInvalidConfig},
		{"bias without level", noLevel, ErrInvalidConfig},
		{"no source mode", Settings{}, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := instrument.NewSimulator(1000)
			engine := NewEngine(sim)

			res, err := engine.Run(context.Background(), tt.settings, nil)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Empty(t, sim.Log())
			assert.Equal(t, Idle, engine.State())
		})
	}
}

func TestEngine_VoltageBiasRepeats(t *testing.T) {
	sim := instrument.NewSimulator(500)
	engine := NewEngine(sim)

	s := NewSettings(VoltageBias)
	s.VoltageLevel = ptr(2)
	s.NumMeasurements = 3
	s.SampleDelay = 0
	s.Measurements = NewMeasurementRequest(Voltage, Current, Power)

	res, err := engine.Run(context.Background(), s, nil)
	require.NoError(t, err)
	require.Len(t, res.Samples, 3)
	for _, sample := range res.Samples {
		assert.InDelta(t, 2.0, sample[Voltage], 1e-12)
		assert.InDelta(t, 4e-3, sample[Current], 1e-12)
		assert.InDelta(t, 8e-3, sample[Power], 1e-12)
	}
	assert.Equal(t, 1, sim.Calls("SetSourceVoltage"), "bias level is written once")
}

func TestEngine_CurrentListSweep(t *testing.T) {
	sim := instrument.NewSimulator(100)
	engine := NewEngine(sim)

	s := NewSettings(CurrentListSweep)
	s.Delay = 0
	s.VoltageLimit = 20
	list := "current\n0.001\n0.002\n0.003,0.004\n0.004\n0.005\n0.006\n"

	res, err := engine.Run(context.Background(), s, strings.NewReader(list))
	require.NoError(t, err)

	assert.Equal(t, []float64{0.001, 0.002, 0.004, 0.005, 0.006}, res.SetPoints)
	require.Len(t, res.Samples, 5)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 4, res.Skipped[0].Line)
	assert.InDelta(t, 0.6, res.Samples[4][Voltage], 1e-12)
	assert.Equal(t, 5, sim.Calls("SetSourceCurrent"))
}

func TestEngine_EmptyListFailsBeforeInstrument(t *testing.T) {
	sim := instrument.NewSimulator(100)
	engine := NewEngine(sim)

	res, err := engine.Run(context.Background(), NewSettings(VoltageListSweep), strings.NewReader("voltage\nx,y\n"))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, listfile.ErrEmptyList)
	assert.Empty(t, sim.Log())
}

func TestEngine_ConfigurationFault(t *testing.T) {
	sim := instrument.NewSimulator(1000)
	sim.FailOn("SetNPLC", 1, nil)
	engine := NewEngine(sim)

	res, err := engine.Run(context.Background(), voltageSweep(0, 1, 5), nil)
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "voltage measurement", cfgErr.Step)
	assert.ErrorIs(t, err, ErrInstrumentFault)
	assert.ErrorIs(t, err, ErrAborted)

	require.NotNil(t, res)
	assert.Empty(t, res.Samples)
	assert.Equal(t, StatusAborted, res.Status)
	assert.Zero(t, sim.Calls("EnableSource"))
	assert.Equal(t, 1, sim.Calls("DisableSource"))
}

func TestEngine_CancellationReleasesSource(t *testing.T) {
	sim := instrument.NewSimulator(1000)
	engine := NewEngine(sim)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := engine.Run(ctx, voltageSweep(0, 1, 10), nil, OnSample(func(i int, _ Sample) {
		if i == 1 {
			cancel()
		}
	}))

	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Len(t, res.Samples, 2)
	assert.Equal(t, StatusAborted, res.Status)
	assert.Equal(t, 1, sim.Calls("DisableSource"))
	assert.False(t, sim.Enabled())
}

func TestEngine_DisableFailureIsReported(t *testing.T) {
	sim := instrument.NewSimulator(1000)
	sim.FailOn("DisableSource", 1, nil)
	engine := NewEngine(sim)

	res, err := engine.Run(context.Background(), voltageSweep(0, 1, 3), nil)
	assert.ErrorIs(t, err, ErrInstrumentFault)
	require.NotNil(t, res)
	assert.Len(t, res.Samples, 3)
	assert.Equal(t, StatusAborted, res.Status)
	assert.Equal(t, Aborted, engine.State())
}

func TestEngine_Plan(t *testing.T) {
	sim := instrument.NewSimulator(1000)
	engine := NewEngine(sim)

	s := voltageSweep(0, 1, 3)
	s.Dual = true
	points, err := engine.Plan(s, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1, 1, 0.5, 0}, points)

	stepSized := voltageSweep(0, 1, 0)
	stepSized.Step = 0.25
	points, err = engine.Plan(stepSized, nil)
	require.NoError(t, err)
	assert.Len(t, points, 5)

	assert.Empty(t, sim.Log())
}

func TestEngine_ConcurrentRunIsBusy(t *testing.T) {
	sim := instrument.NewSimulator(1000)
	engine := NewEngine(sim)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var once sync.Once
	done := make(chan error, 1)
	go func() {
		done <- engine.Stream(ctx, MeasurementRequest{}, time.Millisecond, func(Sample) error {
			once.Do(func() { close(started) })
			return nil
		})
	}()

	<-started
	_, err := engine.Run(context.Background(), voltageSweep(0, 1, 5), nil)
	assert.ErrorIs(t, err, ErrInstrumentBusy)

	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, 1, sim.Calls("DisableSource"))
}

func TestEngine_StreamStopsOnCallbackError(t *testing.T) {
	sim := instrument.NewSimulator(1000)
	require.NoError(t, sim.ApplyVoltage(context.Background(), instrument.AutoRange, 0.1))
	require.NoError(t, sim.SetSourceVoltage(context.Background(), 1))
	engine := NewEngine(sim)

	stop := errors.New("enough")
	var got []Sample
	err := engine.Stream(context.Background(), MeasurementRequest{}, time.Millisecond, func(s Sample) error {
		got = append(got, s)
		if len(got) == 3 {
			return stop
		}
		return nil
	})

	assert.ErrorIs(t, err, stop)
	require.Len(t, got, 3)
	for _, s := range got {
		assert.Len(t, s, len(StreamQuantities))
		assert.InDelta(t, 1e-3, s[Power], 1e-12)
	}
	assert.Equal(t, 1, sim.Calls("EnableSource"))
	assert.Equal(t, 1, sim.Calls("DisableSource"))
	assert.Equal(t, Aborted, engine.State())
}
