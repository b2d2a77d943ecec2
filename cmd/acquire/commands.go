package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/RMahshie/smuacq/internal/acquisition"
	"github.com/RMahshie/smuacq/internal/export"
)

func newPlanCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the set-points of a run without touching the instrument",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := runSettings(g, nil)
			if err != nil {
				return err
			}
			list, err := listData(g, s)
			if err != nil {
				return err
			}
			if list != nil {
				defer list.Close()
			}

			// Planning never calls the instrument
			points, err := acquisition.NewEngine(nil).Plan(*s, list)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s, %d set-points\n", s.SourceMode, len(points))
			for _, p := range points {
				fmt.Fprintln(out, strconv.FormatFloat(p, 'g', -1, 64))
			}
			return nil
		},
	}
}

type runOpts struct {
	csvPath  string
	xlsxPath string
	plotPath string
	quiet    bool
}

func newRunCmd(g *globalOpts) *cobra.Command {
	var o runOpts

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Configure the instrument, drive every set-point and record the measurement table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAcquisition(cmd, g, o)
		},
	}
	cmd.Flags().StringVar(&o.csvPath, "csv", "", "write the measurement table to a CSV file")
	cmd.Flags().StringVar(&o.xlsxPath, "xlsx", "", "write the measurement table to an Excel workbook")
	cmd.Flags().StringVar(&o.plotPath, "plot", "", "write a Voltage/Current plot; format from extension (.png, .svg, .pdf)")
	cmd.Flags().BoolVarP(&o.quiet, "quiet", "q", false, "do not print samples as they are taken")
	return cmd
}

func runAcquisition(cmd *cobra.Command, g *globalOpts, o runOpts) error {
	ctx := cmd.Context()
	s, err := runSettings(g, nil)
	if err != nil {
		return err
	}
	var plotFormat export.Format
	if o.plotPath != "" {
		if plotFormat, err = export.ParseFormat(strings.TrimPrefix(filepath.Ext(o.plotPath), ".")); err != nil || !plotFormat.IsImage() {
			return fmt.Errorf("--plot %s: want a .png, .svg or .pdf file", o.plotPath)
		}
	}
	list, err := listData(g, s)
	if err != nil {
		return err
	}
	if list != nil {
		defer list.Close()
	}

	inst, release, err := openInstrument(ctx, cmd, g)
	if err != nil {
		return err
	}
	defer release()

	columns := s.Measurements.Columns()
	var table *tabwriter.Writer
	if !o.quiet {
		table = newTable(cmd.OutOrStdout(), columns)
	}

	engine := acquisition.NewEngine(inst)
	res, runErr := engine.Run(ctx, *s, list, acquisition.OnSample(func(i int, sample acquisition.Sample) {
		if table != nil {
			printRow(table, i, columns, sample)
		}
	}))
	if table != nil {
		table.Flush()
	}
	if res == nil {
		return runErr
	}
	for _, sk := range res.Skipped {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped list line %d: %s\n", sk.Line, sk.Reason)
	}

	// Partial tables are written too
	if o.csvPath != "" {
		if err := writeFile(o.csvPath, func(w io.Writer) error { return export.WriteCSV(w, res) }); err != nil {
			return err
		}
		log.Info().Str("path", o.csvPath).Int("rows", len(res.Samples)).Msg("CSV written")
	}
	if o.xlsxPath != "" {
		if err := writeFile(o.xlsxPath, func(w io.Writer) error { return export.WriteXLSX(w, res) }); err != nil {
			return err
		}
		log.Info().Str("path", o.xlsxPath).Int("rows", len(res.Samples)).Msg("Workbook written")
	}
	if o.plotPath != "" && len(res.Samples) > 0 {
		if err := writeFile(o.plotPath, func(w io.Writer) error { return export.WritePlot(w, res, plotFormat) }); err != nil {
			return err
		}
		log.Info().Str("path", o.plotPath).Msg("Plot written")
	}
	return runErr
}

type streamOpts struct {
	interval     time.Duration
	measurements []string
}

func newStreamCmd(g *globalOpts) *cobra.Command {
	var o streamOpts

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Configure the instrument and sample continuously until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stream(cmd, g, o)
		},
	}
	cmd.Flags().DurationVarP(&o.interval, "interval", "i", acquisition.DefaultStreamInterval, "time between samples")
	cmd.Flags().StringSliceVarP(&o.measurements, "measure", "m", nil, "quantities to stream (default Voltage,Current,Resistance,Power)")
	return cmd
}

func stream(cmd *cobra.Command, g *globalOpts, o streamOpts) error {
	ctx := cmd.Context()
	s, err := runSettings(g, map[string]any{
		"source_mode":   acquisition.VoltageBias.String(),
		"voltage_level": 0.0,
	})
	if err != nil {
		return err
	}

	req := acquisition.NewMeasurementRequest(acquisition.StreamQuantities...)
	if len(o.measurements) > 0 {
		req.Quantities = nil
		for _, m := range o.measurements {
			q, err := acquisition.ParseQuantity(m)
			if err != nil {
				return err
			}
			req.Quantities = append(req.Quantities, q)
		}
	}
	req.VoltageMode = s.Measurements.VoltageMode
	req.CurrentMode = s.Measurements.CurrentMode
	// Resistance must be configured for it to be streamed
	s.Measurements.Quantities = req.Quantities

	inst, release, err := openInstrument(ctx, cmd, g)
	if err != nil {
		return err
	}
	defer release()

	if err := acquisition.NewConfigurator(inst).Apply(ctx, *s); err != nil {
		return err
	}

	columns := req.Columns()
	table := newTable(cmd.OutOrStdout(), columns)
	i := 0
	err = acquisition.NewEngine(inst).Stream(ctx, req, o.interval, func(sample acquisition.Sample) error {
		printRow(table, i, columns, sample)
		i++
		return table.Flush()
	})
	if err != nil {
		return err
	}
	log.Info().Int("samples", i).Msg("Stream stopped")
	return nil
}

func newTable(w io.Writer, columns []acquisition.Quantity) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "#\t")
	for _, q := range columns {
		fmt.Fprintf(tw, "%s\t", q.Label())
	}
	fmt.Fprintln(tw)
	return tw
}

func printRow(tw *tabwriter.Writer, i int, columns []acquisition.Quantity, sample acquisition.Sample) {
	fmt.Fprintf(tw, "%d\t", i)
	for _, q := range columns {
		fmt.Fprintf(tw, "%.6g\t", sample[q])
	}
	fmt.Fprintln(tw)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
