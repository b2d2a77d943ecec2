package listfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrEmptyList is returned when no usable value survives parsing
var ErrEmptyList = errors.New("listfile: no usable list values")

// Skipped records a list record that was dropped
type Skipped struct {
	Line   int      `json:"line"`
	Record []string `json:"record"`
	Reason string   `json:"reason"`
}

// List is the parsed content of a value list
type List struct {
	Values  []float64
	Skipped []Skipped
	Header  []string
}

// Load parses one numeric value per record. A first record holding a single
// non-numeric field is taken as a header. Every other malformed record, the
// first one included, is skipped and logged; only an empty result is fatal
func Load(r io.Reader) (*List, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: no list supplied", ErrEmptyList)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	list := &List{}
	first := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, fmt.Errorf("reading list: %w", err)
			}
			list.skip(perr.StartLine, record, perr.Err.Error())
			first = false
			continue
		}
		if isBlank(record) {
			continue
		}
		line, _ := reader.FieldPos(0)

		value, reason := parseRecord(record)
		if first {
			first = false
			if reason != "" && len(record) == 1 {
				list.Header = record
				continue
			}
		}
		if reason != "" {
			list.skip(line, record, reason)
			continue
		}
		list.Values = append(list.Values, value)
	}

	if len(list.Values) == 0 {
		return list, fmt.Errorf("%w (%d records skipped)", ErrEmptyList, len(list.Skipped))
	}
	return list, nil
}

func (l *List) skip(line int, record []string, reason string) {
	l.Skipped = append(l.Skipped, Skipped{Line: line, Record: record, Reason: reason})
	log.Warn().
		Int("line", line).
		Strs("record", record).
		Str("reason", reason).
		Msg("Skipping invalid list record")
}

func parseRecord(record []string) (float64, string) {
	if len(record) != 1 {
		return 0, fmt.Sprintf("expected exactly one value, got %d", len(record))
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
	if err != nil {
		return 0, fmt.Sprintf("not a number: %q", record[0])
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Sprintf("not a finite number: %q", record[0])
	}
	return v, ""
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
