package instrument

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulator_VoltageSourceIntoLoad(t *testing.T) {
	sim := NewSimulator(1000)
	ctx := context.Background()

	require.NoError(t, sim.ApplyVoltage(ctx, AutoRange, 0.1))
	require.NoError(t, sim.SetSourceVoltage(ctx, 2))

	i, err := sim.MeasureCurrent(ctx)
	require.NoError(t, err)
	assert.Zero(t, i, "output is off")

	require.NoError(t, sim.EnableSource(ctx))
	i, err = sim.MeasureCurrent(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2e-3, i, 1e-12)

	v, err := sim.SourceVoltage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
}

func TestSimulator_ComplianceClamp(t *testing.T) {
	sim := NewSimulator(100)
	ctx := context.Background()

	require.NoError(t, sim.ApplyCurrent(ctx, AutoRange, 5))
	require.NoError(t, sim.EnableSource(ctx))
	require.NoError(t, sim.SetSourceCurrent(ctx, -0.1))

	v, err := sim.MeasureVoltage(ctx)
	require.NoError(t, err)
	assert.Equal(t, -5.0, v)

	i, err := sim.MeasureCurrent(ctx)
	require.NoError(t, err)
	assert.InDelta(t, -0.05, i, 1e-12)
}

func TestSimulator_SetLevelRequiresMatchingSource(t *testing.T) {
	sim := NewSimulator(1000)
	ctx := context.Background()

	require.NoError(t, sim.ApplyVoltage(ctx, AutoRange, 0.1))
	assert.Error(t, sim.SetSourceCurrent(ctx, 1e-3))
}

func TestSimulator_FailOn(t *testing.T) {
	sim := NewSimulator(1000)
	ctx := context.Background()
	require.NoError(t, sim.ApplyVoltage(ctx, AutoRange, 0.1))

	boom := errors.New("boom")
	sim.FailOn("SetSourceVoltage", 3, boom)

	assert.NoError(t, sim.SetSourceVoltage(ctx, 1))
	assert.NoError(t, sim.SetSourceVoltage(ctx, 2))
	assert.ErrorIs(t, sim.SetSourceVoltage(ctx, 3), boom)
	assert.NoError(t, sim.SetSourceVoltage(ctx, 4))
	assert.Equal(t, 4, sim.Calls("SetSourceVoltage"))
}

func TestSimulator_ShutdownTurnsOutputOff(t *testing.T) {
	sim := NewSimulator(1000)
	ctx := context.Background()
	require.NoError(t, sim.ApplyVoltage(ctx, AutoRange, 0.1))
	require.NoError(t, sim.EnableSource(ctx))

	require.NoError(t, sim.Shutdown(ctx))
	assert.False(t, sim.Enabled())
	assert.Equal(t, 1, sim.Calls("Shutdown"))
}

func TestSimulator_CancelledContext(t *testing.T) {
	sim := NewSimulator(1000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, sim.EnableSource(ctx), context.Canceled)
	assert.Zero(t, sim.Calls("EnableSource"))
}
