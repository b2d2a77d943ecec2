package acquisition

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RMahshie/smuacq/internal/instrument"
	"github.com/RMahshie/smuacq/internal/listfile"
	"github.com/RMahshie/smuacq/internal/sweep"
)

// State is the lifecycle state of the engine's current or last run
type State int32

const (
	Idle State = iota
	Configuring
	Running
	Completed
	Aborted
)

func (s State) String() string {
	switch s {
	case Configuring:
		return "configuring"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	default:
		return "idle"
	}
}

// DefaultStreamInterval is the wait between streamed samples
const DefaultStreamInterval = 100 * time.Millisecond

// StreamQuantities are sampled by Stream when the request enables nothing
var StreamQuantities = []Quantity{Voltage, Current, Resistance, Power}

// Engine drives one instrument through acquisition runs. A run owns the
// instrument exclusively; a concurrent Run or Stream fails with ErrInstrumentBusy
type Engine struct {
	inst  instrument.Instrument
	owner sync.Mutex
	state atomic.Int32
	now   func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces the wall clock used for timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine driving inst. A nil inst is enough for Plan
func NewEngine(inst instrument.Instrument, opts ...Option) *Engine {
	e := &Engine{inst: inst, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Instrument returns the driven instrument
func (e *Engine) Instrument() instrument.Instrument { return e.inst }

// State returns the state of the current or most recent run
func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) { e.state.Store(int32(s)) }

type runConfig struct {
	onSample func(index int, s Sample)
}

// RunOption configures a single run
type RunOption func(*runConfig)

// OnSample registers fn to be called after each sample is recorded
func OnSample(fn func(index int, s Sample)) RunOption {
	return func(c *runConfig) { c.onSample = fn }
}

// Plan validates s and returns the set-points a run would drive, without
// touching the instrument. listData is read only in list sweep modes
func (e *Engine) Plan(s Settings, listData io.Reader) ([]float64, error) {
	points, _, err := plan(s, listData)
	return points, err
}

func plan(s Settings, listData io.Reader) ([]float64, *listfile.List, error) {
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}
	switch {
	case s.SourceMode.IsBias():
		level, _ := s.biasLevel()
		points := make([]float64, s.NumMeasurements)
		for i := range points {
			points[i] = level
		}
		return points, nil, nil
	case s.SourceMode.IsList():
		list, err := listfile.Load(listData)
		if err != nil {
			return nil, list, err
		}
		points, err := sweep.Plan(sweep.FromList(s.SourceMode.quantity(), list.Values, s.Delay))
		return points, list, err
	default:
		spec, err := s.SweepSpec()
		if err != nil {
			return nil, nil, err
		}
		points, err := sweep.Plan(spec)
		return points, nil, err
	}
}

// Run validates and plans s, configures the instrument, enables the source
// and drives every set-point. Bias modes take NumMeasurements samples at the
// fixed level, SampleDelay apart
//
// Invalid input fails before any instrument call and returns a nil Result
// Otherwise a Result is always returned; on an instrument fault or
// cancellation it holds the samples taken so far and is marked aborted. The
// source is disabled exactly once before Run returns, on every path after
// configuration starts
func (e *Engine) Run(ctx context.Context, s Settings, listData io.Reader, opts ...RunOption) (res *Result, err error) {
	if !e.owner.TryLock() {
		return nil, ErrInstrumentBusy
	}
	defer e.owner.Unlock()

	var rc runConfig
	for _, opt := range opts {
		opt(&rc)
	}

	e.setState(Idle)
	points, list, err := plan(s, listData)
	if err != nil {
		return nil, err
	}

	res = &Result{
		Mode:      s.SourceMode,
		Columns:   s.Measurements.Columns(),
		SetPoints: points,
		StartedAt: e.now(),
	}
	if list != nil {
		res.Skipped = list.Skipped
	}

	e.setState(Configuring)
	defer func() {
		if derr := e.inst.DisableSource(context.WithoutCancel(ctx)); derr != nil {
			log.Error().Err(derr).Msg("Failed to disable source")
			derr = fault("DisableSource", derr)
			if res.Err == nil {
				res.Status = StatusAborted
			}
			res.Err = errors.Join(res.Err, derr)
			err = errors.Join(err, derr)
		}
		res.FinishedAt = e.now()
		if res.Status == StatusCompleted {
			e.setState(Completed)
		} else {
			e.setState(Aborted)
		}
	}()

	if err := NewConfigurator(e.inst).Apply(ctx, s); err != nil {
		return e.abort(res, -1, 0, err)
	}
	if err := e.inst.EnableSource(ctx); err != nil {
		return e.abort(res, -1, 0, fault("EnableSource", err))
	}

	e.setState(Running)
	sampler := &Sampler{inst: e.inst, req: s.Measurements, now: e.now}
	record := func(i int, sample Sample) {
		res.Samples = append(res.Samples, sample)
		if rc.onSample != nil {
			rc.onSample(i, sample)
		}
	}

	if s.SourceMode.IsBias() {
		for i, level := range points {
			sample, err := sampler.Sample(ctx, s.SampleDelay)
			if err != nil {
				if sample != nil {
					record(i, sample)
				}
				return e.abort(res, i, level, err)
			}
			record(i, sample)
		}
	} else {
		for i, sp := range points {
			if err := ctx.Err(); err != nil {
				return e.abort(res, i, sp, err)
			}
			if err := e.setPoint(ctx, s.SourceMode, sp); err != nil {
				return e.abort(res, i, sp, err)
			}
			if err := sleep(ctx, s.Delay); err != nil {
				return e.abort(res, i, sp, err)
			}
			sample, err := sampler.Sample(ctx, 0)
			if err != nil {
				return e.abort(res, i, sp, err)
			}
			record(i, sample)
		}
	}

	res.Status = StatusCompleted
	log.Info().
		Str("source_mode", s.SourceMode.String()).
		Int("samples", len(res.Samples)).
		Msg("Acquisition completed")
	return res, nil
}

func (e *Engine) setPoint(ctx context.Context, mode SourceMode, v float64) error {
	if mode.SourcesVoltage() {
		return fault("SetSourceVoltage", e.inst.SetSourceVoltage(ctx, v))
	}
	return fault("SetSourceCurrent", e.inst.SetSourceCurrent(ctx, v))
}

func (e *Engine) abort(res *Result, index int, setPoint float64, cause error) (*Result, error) {
	err := &AbortError{Index: index, SetPoint: setPoint, Err: cause}
	res.Status = StatusAborted
	res.Err = err

	ev := log.Warn()
	if !errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
		ev = log.Error()
	}
	ev.Err(cause).
		Int("index", index).
		Float64("set_point", setPoint).
		Int("samples", len(res.Samples)).
		Msg("Acquisition aborted")
	return res, err
}

// Stream enables the source and samples continuously, interval apart, until
// ctx is done or fn returns an error. The instrument is expected to be
// configured already. Quantities default to StreamQuantities and interval to
// DefaultStreamInterval. Cancellation ends the stream without error; the
// source is disabled on every exit path
func (e *Engine) Stream(ctx context.Context, req MeasurementRequest, interval time.Duration, fn func(Sample) error) (err error) {
	if !e.owner.TryLock() {
		return ErrInstrumentBusy
	}
	defer e.owner.Unlock()

	if len(req.Quantities) == 0 {
		req.Quantities = StreamQuantities
	}
	if err := req.validate(); err != nil {
		return err
	}
	if interval <= 0 {
		interval = DefaultStreamInterval
	}

	e.setState(Running)
	defer func() {
		if derr := e.inst.DisableSource(context.WithoutCancel(ctx)); derr != nil {
			log.Error().Err(derr).Msg("Failed to disable source")
			err = errors.Join(err, fault("DisableSource", derr))
		}
		if err != nil {
			e.setState(Aborted)
		} else {
			e.setState(Completed)
		}
	}()

	if err := e.inst.EnableSource(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fault("EnableSource", err)
	}

	sampler := &Sampler{inst: e.inst, req: req, now: e.now}
	for {
		sample, err := sampler.Sample(ctx, 0)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(sample); err != nil {
			return err
		}
		if sleep(ctx, interval) != nil {
			return nil
		}
	}
}
