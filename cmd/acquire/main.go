package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RMahshie/smuacq/internal/acquisition"
	"github.com/RMahshie/smuacq/internal/config"
	"github.com/RMahshie/smuacq/internal/instrument"
)

type globalOpts struct {
	runFile string
	set     []string
	list    string

	driver  string
	address string
	timeout time.Duration
	load    float64
	verbose bool
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("acquire failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var g globalOpts

	root := &cobra.Command{
		Use:   "acquire",
		Short: "Drive a Keithley 2450 source-measure unit through bias, sweep and list runs",
		Long: `acquire runs one acquisition against a source-measure unit and writes the
measurement table. Run options come from a YAML/JSON/TOML run file and may be
overridden with --set key=value.

Examples:
  acquire plan -f sweep.yaml
  acquire run -f sweep.yaml --csv iv.csv --plot iv.png
  acquire run --set source_mode="Voltage List Sweep" --list points.csv
  acquire stream --driver scpi --address 192.168.0.2:5025`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if g.verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.runFile, "file", "f", "", "run option file (yaml, json or toml)")
	pf.StringArrayVar(&g.set, "set", nil, "override a run option, e.g. --set steps=21 (repeatable)")
	pf.StringVar(&g.list, "list", "", "list sweep values file (overrides list_file)")
	pf.StringVar(&g.driver, "driver", "", "instrument driver: sim or scpi (default from SMU_DRIVER)")
	pf.StringVar(&g.address, "address", "", "instrument host:port (default from SMU_ADDRESS)")
	pf.DurationVar(&g.timeout, "timeout", 0, "per-command I/O watchdog, 0 disables (default from SMU_IO_TIMEOUT)")
	pf.Float64Var(&g.load, "load", 0, "simulated load resistance in ohms (default from SIM_LOAD_OHMS)")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newPlanCmd(&g), newRunCmd(&g), newStreamCmd(&g))
	return root
}

// runSettings merges defaults, the run file and --set overrides into validated settings
func runSettings(g *globalOpts, defaults map[string]any) (*acquisition.Settings, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if g.runFile != "" {
		v.SetConfigFile(g.runFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading run file: %w", err)
		}
	}
	for _, kv := range g.set {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("--set %q: want key=value", kv)
		}
		v.Set(strings.TrimSpace(key), value)
	}
	return config.ParseRunOptions(v.AllSettings())
}

// listData opens the list file of a list sweep, or returns nil for other modes
func listData(g *globalOpts, s *acquisition.Settings) (io.ReadCloser, error) {
	if !s.SourceMode.IsList() {
		return nil, nil
	}
	path := g.list
	if path == "" {
		path = s.ListFile
	}
	if path == "" {
		return nil, fmt.Errorf("%s needs --list or list_file", s.SourceMode)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening list file: %w", err)
	}
	return f, nil
}

// openDriver connects ic; replaced in tests to observe the instrument
var openDriver = func(ctx context.Context, ic config.InstrumentConfig) (instrument.Instrument, error) {
	return ic.Open(ctx)
}

// openInstrument connects the driver chosen by environment and flags
func openInstrument(ctx context.Context, cmd *cobra.Command, g *globalOpts) (instrument.Instrument, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	ic := cfg.Instrument
	flags := cmd.Flags()
	if flags.Changed("driver") {
		ic.Driver = g.driver
	}
	if flags.Changed("address") {
		ic.Address = g.address
	}
	if flags.Changed("timeout") {
		ic.IOTimeout = g.timeout
	}
	if flags.Changed("load") {
		ic.SimLoadOhms = g.load
	}

	inst, err := openDriver(ctx, ic)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := inst.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Error().Err(err).Msg("Instrument shutdown failed")
		}
		if c, ok := inst.(io.Closer); ok {
			c.Close()
		}
	}
	return inst, release, nil
}
