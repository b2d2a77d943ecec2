package acquisition

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RMahshie/smuacq/internal/instrument"
)

// Sampler reads one measurement row from the instrument
type Sampler struct {
	inst instrument.Instrument
	req  MeasurementRequest
	now  func() time.Time
}

// NewSampler returns a sampler for the quantities enabled in req
func NewSampler(inst instrument.Instrument, req MeasurementRequest) *Sampler {
	return &Sampler{inst: inst, req: req, now: time.Now}
}

// Sample reads every enabled quantity, then waits dwell. Power is V×I from the
// values read in the same call, with a missing quantity counting as 0
// A read failure shuts the instrument down and returns an InstrumentFault
// If ctx is cancelled during the dwell the sample is returned with ctx's error
func (s *Sampler) Sample(ctx context.Context, dwell time.Duration) (Sample, error) {
	out := make(Sample, len(s.req.Quantities))

	if s.req.Enabled(Voltage) {
		v, err := s.readVoltage(ctx)
		if err != nil {
			return nil, s.abort(ctx, err)
		}
		out[Voltage] = v
	}
	if s.req.Enabled(Current) {
		i, err := s.readCurrent(ctx)
		if err != nil {
			return nil, s.abort(ctx, err)
		}
		out[Current] = i
	}
	if s.req.Enabled(Resistance) {
		r, err := s.inst.MeasureResistance(ctx)
		if err != nil {
			return nil, s.abort(ctx, fault("MeasureResistance", err))
		}
		out[Resistance] = r
	}
	if s.req.Enabled(Power) {
		out[Power] = out[Voltage] * out[Current]
	}
	if s.req.Enabled(Timestamp) {
		out[Timestamp] = float64(s.now().UnixNano()) / 1e9
	}

	return out, sleep(ctx, dwell)
}

func (s *Sampler) readVoltage(ctx context.Context) (float64, error) {
	if s.req.VoltageMode == Programmed {
		v, err := s.inst.SourceVoltage(ctx)
		return v, fault("SourceVoltage", err)
	}
	v, err := s.inst.MeasureVoltage(ctx)
	return v, fault("MeasureVoltage", err)
}

func (s *Sampler) readCurrent(ctx context.Context) (float64, error) {
	if s.req.CurrentMode == Programmed {
		i, err := s.inst.SourceCurrent(ctx)
		return i, fault("SourceCurrent", err)
	}
	i, err := s.inst.MeasureCurrent(ctx)
	return i, fault("MeasureCurrent", err)
}

// abort issues the safety shutdown after a failed read
func (s *Sampler) abort(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	log.Error().Err(err).Msg("Measurement read failed, shutting instrument down")
	if serr := s.inst.Shutdown(context.WithoutCancel(ctx)); serr != nil {
		log.Error().Err(serr).Msg("Safety shutdown failed")
		return errors.Join(err, fault("Shutdown", serr))
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
