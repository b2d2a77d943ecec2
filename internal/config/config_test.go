package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/smuacq/internal/instrument"
)

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SMU_DRIVER", "SCPI")
	t.Setenv("SMU_ADDRESS", "10.0.0.7")
	t.Setenv("SMU_IO_TIMEOUT", "2s")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("S3_BUCKET", "smu-exports")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverSCPI, cfg.Instrument.Driver)
	assert.Equal(t, "10.0.0.7", cfg.Instrument.Address)
	assert.Equal(t, 2*time.Second, cfg.Instrument.IOTimeout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "smu-exports", cfg.AWS.S3Bucket)
	assert.Equal(t, "exports/", cfg.Export.Prefix)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("SMU_DRIVER", "gpib")

	_, err := Load()
	assert.Error(t, err)
}

func TestInstrumentConfig_Open(t *testing.T) {
	inst, err := InstrumentConfig{Driver: DriverSim, SimLoadOhms: 500}.Open(context.Background())
	require.NoError(t, err)
	sim, ok := inst.(*instrument.Simulator)
	require.True(t, ok)
	assert.Empty(t, sim.Log())

	_, err = InstrumentConfig{Driver: "gpib"}.Open(context.Background())
	assert.Error(t, err)
}
