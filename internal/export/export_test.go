package export

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/RMahshie/smuacq/internal/acquisition"
)

func sweepResult() *acquisition.Result {
	return &acquisition.Result{
		Mode:    acquisition.VoltageSweep,
		Columns: []acquisition.Quantity{acquisition.Voltage, acquisition.Current, acquisition.Power, acquisition.Timestamp},
		Samples: []acquisition.Sample{
			{acquisition.Voltage: 0, acquisition.Current: 0, acquisition.Power: 0, acquisition.Timestamp: 100},
			{acquisition.Voltage: 0.5, acquisition.Current: 5e-4, acquisition.Power: 2.5e-4, acquisition.Timestamp: 100.1},
			{acquisition.Voltage: 1, acquisition.Current: 1e-3, acquisition.Power: 1e-3, acquisition.Timestamp: 100.2},
		},
		Status: acquisition.StatusCompleted,
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sweepResult()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Voltage (V),Current (A),Power (W),Timestamp", lines[0])
	assert.Equal(t, "0.5,0.0005,0.00025,100.1", lines[2])
}

func TestWriteCSV_HeaderOnlyForEmptyRun(t *testing.T) {
	res := &acquisition.Result{Columns: []acquisition.Quantity{acquisition.Resistance}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, res))
	assert.Equal(t, "Resistance (Ω)\n", buf.String())
}

func TestWriteCSV_NoColumns(t *testing.T) {
	assert.ErrorIs(t, WriteCSV(&bytes.Buffer{}, &acquisition.Result{}), ErrNoData)
}

func TestWritePlot(t *testing.T) {
	tests := []struct {
		format Format
		magic  string
	}{
		{PNG, "\x89PNG"},
		{SVG, "<svg"},
		{PDF, "%PDF"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WritePlot(&buf, sweepResult(), tt.format))
			assert.Contains(t, buf.String(), tt.magic)
		})
	}
}

func TestWritePlot_RequiresVoltageOrCurrent(t *testing.T) {
	res := &acquisition.Result{
		Columns: []acquisition.Quantity{acquisition.Resistance},
		Samples: []acquisition.Sample{{acquisition.Resistance: 1000}},
	}
	assert.ErrorIs(t, WritePlot(&bytes.Buffer{}, res, PNG), ErrNoData)
	assert.ErrorIs(t, WritePlot(&bytes.Buffer{}, sweepResult(), CSV), ErrUnsupportedFormat)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" PNG ")
	require.NoError(t, err)
	assert.Equal(t, PNG, f)
	assert.Equal(t, "image/png", f.ContentType())
	assert.Equal(t, ".png", f.Extension())

	f, err = ParseFormat("xlsx")
	require.NoError(t, err)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", f.ContentType())
	assert.False(t, f.IsImage())

	_, err = ParseFormat("wav")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func abortedResult() *acquisition.Result {
	res := sweepResult()
	res.SetPoints = []float64{0, 0.5, 1, 1.5, 2}
	res.Status = acquisition.StatusAborted
	res.Err = errors.New("run cancelled")
	return res
}

func TestWriteCSV_MarksAbortedRun(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, abortedResult()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "# aborted: 3 of 5 set-points sampled: run cancelled", lines[4])

	buf.Reset()
	require.NoError(t, WriteCSV(&buf, sweepResult()))
	assert.NotContains(t, buf.String(), "#")
}

func readSheet(t *testing.T, data []byte) [][]string {
	t.Helper()
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows(SheetName, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	return rows
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sweepResult(), XLSX))

	rows := readSheet(t, buf.Bytes())
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Voltage (V)", "Current (A)", "Power (W)", "Timestamp"}, rows[0])
	assert.Equal(t, []string{"0.5", "0.0005", "0.00025", "100.1"}, rows[2])
}

func TestWriteXLSX_MarksAbortedRun(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, abortedResult()))

	rows := readSheet(t, buf.Bytes())
	require.Len(t, rows, 5)
	assert.Equal(t, "# aborted: 3 of 5 set-points sampled: run cancelled", rows[4][0])
}

func TestWriteXLSX_NoColumns(t *testing.T) {
	assert.ErrorIs(t, WriteXLSX(&bytes.Buffer{}, &acquisition.Result{}), ErrNoData)
}
