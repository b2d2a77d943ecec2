package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/smuacq/internal/acquisition"
	"github.com/RMahshie/smuacq/internal/instrument"
	"github.com/RMahshie/smuacq/internal/sweep"
)

// RunOptions is the flat option set of one acquisition run, as submitted by
// the API or read from a run file. Unset numeric options keep their defaults
type RunOptions struct {
	SourceMode string `mapstructure:"source_mode"`

	VoltageRange    string   `mapstructure:"voltage_range"`
	CurrentRange    string   `mapstructure:"current_range"`
	ResistanceRange string   `mapstructure:"resistance_range"`
	CurrentLimit    *float64 `mapstructure:"current_limit"`
	VoltageLimit    *float64 `mapstructure:"voltage_limit"`
	VoltageLevel    *float64 `mapstructure:"voltage_level"`
	CurrentLevel    *float64 `mapstructure:"current_level"`

	Start     *float64 `mapstructure:"start"`
	Stop      *float64 `mapstructure:"stop"`
	Steps     *int     `mapstructure:"steps"`
	Step      *float64 `mapstructure:"step"`
	Delay     *float64 `mapstructure:"delay"`
	SweepType string   `mapstructure:"sweep_type"`
	DualSweep bool     `mapstructure:"dual_sweep"`
	Stepper   bool     `mapstructure:"stepper"`
	ListFile  string   `mapstructure:"list_file"`

	Measurements []string `mapstructure:"measurements"`
	VoltageType  string   `mapstructure:"voltage_type"`
	CurrentType  string   `mapstructure:"current_type"`

	NPLC                  *float64 `mapstructure:"nplc"`
	InputJacks            string   `mapstructure:"input_jacks"`
	SensingMode           string   `mapstructure:"sensing_mode"`
	OutputOffState        string   `mapstructure:"output_off_state"`
	HighCapacitance       bool     `mapstructure:"high_capacitance"`
	OffsetCompensatedOhms bool     `mapstructure:"offset_compensated_ohms"`

	NumMeasurements *int     `mapstructure:"num_measurements"`
	DelaySeconds    *float64 `mapstructure:"delay_seconds"`
}

// ParseRunOptions decodes a flat option map into validated run settings
// Values may be strings ("0.5", "On", "Voltage,Current") or native types
// Unknown keys are logged and ignored
func ParseRunOptions(raw map[string]any) (*acquisition.Settings, error) {
	opts, err := DecodeRunOptions(raw)
	if err != nil {
		return nil, err
	}
	return opts.Settings()
}

// DecodeRunOptions decodes raw without validating the values
func DecodeRunOptions(raw map[string]any) (*RunOptions, error) {
	var opts RunOptions
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			onOffHook,
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           &opts,
	})
	if err != nil {
		return nil, fmt.Errorf("creating option decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", acquisition.ErrInvalidConfig, err)
	}
	if len(md.Unused) > 0 {
		sort.Strings(md.Unused)
		log.Warn().Strs("keys", md.Unused).Msg("Ignoring unknown run options")
	}
	return &opts, nil
}

// Settings resolves the options into engine settings and validates them
func (o *RunOptions) Settings() (*acquisition.Settings, error) {
	mode, err := acquisition.ParseSourceMode(o.SourceMode)
	if err != nil {
		return nil, err
	}
	s := acquisition.NewSettings(mode)
	s.ListFile = o.ListFile

	setString(&s.VoltageRange, o.VoltageRange)
	setString(&s.CurrentRange, o.CurrentRange)
	setString(&s.ResistanceRange, o.ResistanceRange)
	setFloat(&s.CurrentLimit, o.CurrentLimit)
	setFloat(&s.VoltageLimit, o.VoltageLimit)
	s.VoltageLevel = o.VoltageLevel
	s.CurrentLevel = o.CurrentLevel

	setFloat(&s.Start, o.Start)
	setFloat(&s.Stop, o.Stop)
	if o.Steps != nil {
		s.Steps = *o.Steps
	}
	setFloat(&s.Step, o.Step)
	if s.Shape, err = sweep.ParseShape(o.SweepType); err != nil {
		return nil, fmt.Errorf("%w: %w", acquisition.ErrInvalidConfig, err)
	}
	s.Dual = o.DualSweep
	s.Stepper = o.Stepper

	switch {
	case o.Delay != nil:
		s.Delay = seconds(*o.Delay)
	case o.DelaySeconds != nil:
		s.Delay = seconds(*o.DelaySeconds)
	}
	if o.DelaySeconds != nil {
		s.SampleDelay = seconds(*o.DelaySeconds)
	}
	if o.NumMeasurements != nil {
		s.NumMeasurements = *o.NumMeasurements
	}

	if len(o.Measurements) > 0 {
		s.Measurements.Quantities = nil
		for _, m := range o.Measurements {
			if strings.TrimSpace(m) == "" {
				continue
			}
			q, err := acquisition.ParseQuantity(m)
			if err != nil {
				return nil, err
			}
			s.Measurements.Quantities = append(s.Measurements.Quantities, q)
		}
	}
	if s.Measurements.VoltageMode, err = acquisition.ParseReadMode(o.VoltageType); err != nil {
		return nil, err
	}
	if s.Measurements.CurrentMode, err = acquisition.ParseReadMode(o.CurrentType); err != nil {
		return nil, err
	}

	setFloat(&s.NPLC, o.NPLC)
	if s.InputJacks, err = parseJacks(o.InputJacks); err != nil {
		return nil, err
	}
	if s.SensingMode, err = parseSensing(o.SensingMode); err != nil {
		return nil, err
	}
	s.OutputOffState = instrument.ParseOffState(o.OutputOffState)
	s.HighCapacitance = o.HighCapacitance
	s.OffsetCompensatedOhms = o.OffsetCompensatedOhms

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func parseJacks(s string) (instrument.Jacks, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "front":
		return instrument.Front, nil
	case "rear":
		return instrument.Rear, nil
	}
	return 0, fmt.Errorf("%w: unknown input_jacks %q", acquisition.ErrInvalidConfig, s)
}

func parseSensing(s string) (instrument.SensingMode, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "")) {
	case "", "2-wire", "2wire":
		return instrument.TwoWire, nil
	case "4-wire", "4wire":
		return instrument.FourWire, nil
	}
	return 0, fmt.Errorf("%w: unknown sensing_mode %q", acquisition.ErrInvalidConfig, s)
}

// onOffHook maps the switch words On/Off (and yes/no) onto booleans
func onOffHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Bool {
		return data, nil
	}
	switch strings.ToLower(strings.TrimSpace(reflect.ValueOf(data).String())) {
	case "on", "yes", "true", "1":
		return true, nil
	case "off", "no", "false", "0", "":
		return false, nil
	}
	return data, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
