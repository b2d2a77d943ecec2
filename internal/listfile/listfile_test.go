package listfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_SkipsMalformedRow(t *testing.T) {
	input := "voltage\n0.1\n0.2\n0.3,0.4\n0.5\n0.6\n0.7\n"

	list, err := Load(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.5, 0.6, 0.7}, list.Values)
	assert.Equal(t, []string{"voltage"}, list.Header)
	require.Len(t, list.Skipped, 1)
	assert.Equal(t, 4, list.Skipped[0].Line)
	assert.Equal(t, []string{"0.3", "0.4"}, list.Skipped[0].Record)
	assert.Contains(t, list.Skipped[0].Reason, "exactly one value")
}

func TestLoad_WithoutHeader(t *testing.T) {
	list, err := Load(strings.NewReader("1e-3\n-2\n3.5\n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1e-3, -2, 3.5}, list.Values)
	assert.Nil(t, list.Header)
	assert.Empty(t, list.Skipped)
}

func TestLoad_BlankLinesAndSpaces(t *testing.T) {
	list, err := Load(strings.NewReader("\n  1.5\n\n 2 \n   \n3\r\n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2, 3}, list.Values)
	assert.Empty(t, list.Skipped)
}

func TestLoad_RejectsNonNumericAndNonFinite(t *testing.T) {
	input := "current\n1\nabc\nNaN\n+Inf\n2\n"

	list, err := Load(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, list.Values)
	assert.Len(t, list.Skipped, 3)
}

func TestLoad_Empty(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no content", ""},
		{"header only", "voltage\n"},
		{"all malformed", "voltage\na,b\nx\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrEmptyList)
		})
	}
}

func TestLoad_NilReader(t *testing.T) {
	_, err := Load(nil)
	assert.ErrorIs(t, err, ErrEmptyList)
}

func TestLoad_MalformedFirstRecordIsSkipped(t *testing.T) {
	list, err := Load(strings.NewReader("1,2\n0.1\n0.2\n0.3\n0.4\n0.5\n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.4, 0.5}, list.Values)
	assert.Nil(t, list.Header)
	require.Len(t, list.Skipped, 1)
	assert.Equal(t, 1, list.Skipped[0].Line)
	assert.Equal(t, []string{"1", "2"}, list.Skipped[0].Record)
	assert.Contains(t, list.Skipped[0].Reason, "exactly one value")
}

func TestLoad_UnterminatedQuoteIsReported(t *testing.T) {
	list, err := Load(strings.NewReader("\"V\n0.1\n0.2\n"))
	assert.ErrorIs(t, err, ErrEmptyList)
	assert.ErrorContains(t, err, "1 records skipped")
	require.NotNil(t, list)
	assert.Nil(t, list.Header)
	require.Len(t, list.Skipped, 1)
	assert.Equal(t, 1, list.Skipped[0].Line)
	assert.Contains(t, list.Skipped[0].Reason, "quote")
}

func TestLoad_QuotedHeader(t *testing.T) {
	list, err := Load(strings.NewReader("\"Voltage (V)\"\n1\n2\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Voltage (V)"}, list.Header)
	assert.Equal(t, []float64{1, 2}, list.Values)
}
