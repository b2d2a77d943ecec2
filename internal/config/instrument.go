package config

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/RMahshie/smuacq/internal/instrument"
)

// Open connects the configured instrument driver
func (c InstrumentConfig) Open(ctx context.Context) (instrument.Instrument, error) {
	switch c.Driver {
	case DriverSim:
		log.Info().Float64("load_ohms", c.SimLoadOhms).Msg("Using simulated instrument")
		return instrument.NewSimulator(c.SimLoadOhms), nil
	case DriverSCPI:
		k, err := instrument.Dial(ctx, c.Address, c.IOTimeout)
		if err != nil {
			return nil, err
		}
		id, _ := k.Identify(ctx)
		log.Info().
			Str("address", c.Address).
			Str("model", id.Model).
			Str("serial", id.Serial).
			Msg("Connected to instrument")
		return k, nil
	}
	return nil, fmt.Errorf("unknown instrument driver %q", c.Driver)
}
