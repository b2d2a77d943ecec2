// Package export renders acquisition results as delimited text, spreadsheets or plots
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/RMahshie/smuacq/internal/acquisition"
)

// ErrUnsupportedFormat is returned for an unknown export format
var ErrUnsupportedFormat = errors.New("export: unsupported format")

// ErrNoData is returned when a result has nothing to render
var ErrNoData = errors.New("export: no data")

// Format is an export file format
type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
	PNG  Format = "png"
	SVG  Format = "svg"
	PDF  Format = "pdf"
)

var contentTypes = map[Format]string{
	CSV:  "text/csv",
	XLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	PNG:  "image/png",
	SVG:  "image/svg+xml",
	PDF:  "application/pdf",
}

// ParseFormat maps a format name, case-insensitively
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := contentTypes[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
	return f, nil
}

// ContentType is the MIME type of f
func (f Format) ContentType() string { return contentTypes[f] }

// Extension is the file extension of f, with the dot
func (f Format) Extension() string { return "." + string(f) }

// IsImage reports whether f is a plot format
func (f Format) IsImage() bool {
	switch f {
	case PNG, SVG, PDF:
		return true
	}
	return false
}

// Write renders res in format f
func Write(w io.Writer, res *acquisition.Result, f Format) error {
	switch f {
	case CSV:
		return WriteCSV(w, res)
	case XLSX:
		return WriteXLSX(w, res)
	case PNG, SVG, PDF:
		return WritePlot(w, res, f)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
}

// WriteCSV writes one header row of column labels followed by one row per sample
// An aborted run ends with a single-field trailer row starting with "#"
func WriteCSV(w io.Writer, res *acquisition.Result) error {
	if res == nil || len(res.Columns) == 0 {
		return ErrNoData
	}
	cw := csv.NewWriter(w)

	header := make([]string, len(res.Columns))
	for i, q := range res.Columns {
		header[i] = q.Label()
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	row := make([]string, len(res.Columns))
	for _, s := range res.Samples {
		for i, q := range res.Columns {
			v, ok := s[q]
			if !ok {
				row[i] = ""
				continue
			}
			row[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	if trailer, ok := Trailer(res); ok {
		if err := cw.Write([]string{trailer}); err != nil {
			return fmt.Errorf("writing csv trailer: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Trailer marks the table of an aborted run so it is not taken for a complete one
func Trailer(res *acquisition.Result) (string, bool) {
	if res.Status != acquisition.StatusAborted {
		return "", false
	}
	msg := fmt.Sprintf("# aborted: %d samples", len(res.Samples))
	if len(res.SetPoints) > 0 {
		msg = fmt.Sprintf("# aborted: %d of %d set-points sampled", len(res.Samples), len(res.SetPoints))
	}
	if res.Err != nil {
		msg += ": " + res.Err.Error()
	}
	return msg, true
}
