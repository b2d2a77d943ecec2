package acquisition

import (
	"fmt"
	"strings"
)

// Quantity is a column of the measurement table
type Quantity int

const (
	Voltage Quantity = iota + 1
	Current
	Resistance
	Power
	Timestamp
)

// AllQuantities lists every quantity in table column order
var AllQuantities = []Quantity{Voltage, Current, Resistance, Power, Timestamp}

var quantityNames = map[Quantity][2]string{
	Voltage:    {"Voltage", "Voltage (V)"},
	Current:    {"Current", "Current (A)"},
	Resistance: {"Resistance", "Resistance (Ω)"},
	Power:      {"Power", "Power (W)"},
	Timestamp:  {"Timestamp", "Timestamp"},
}

func (q Quantity) String() string {
	if n, ok := quantityNames[q]; ok {
		return n[0]
	}
	return fmt.Sprintf("Quantity(%d)", int(q))
}

// Label is the column heading, with unit
func (q Quantity) Label() string {
	if n, ok := quantityNames[q]; ok {
		return n[1]
	}
	return q.String()
}

func (q Quantity) MarshalText() ([]byte, error) {
	return []byte(q.Label()), nil
}

func (q *Quantity) UnmarshalText(b []byte) error {
	v, err := ParseQuantity(string(b))
	if err != nil {
		return err
	}
	*q = v
	return nil
}

// ParseQuantity accepts a quantity name or column label, case-insensitively
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	for _, q := range AllQuantities {
		n := quantityNames[q]
		if strings.EqualFold(s, n[0]) || strings.EqualFold(s, n[1]) {
			return q, nil
		}
	}
	return 0, invalidConfig("unknown measurement %q", s)
}

// ReadMode selects whether Voltage or Current is read back from the
// commanded set-point or sensed at the terminals
type ReadMode int

const (
	Measured ReadMode = iota
	Programmed
)

func (m ReadMode) String() string {
	if m == Programmed {
		return "Programmed"
	}
	return "Measured"
}

// ParseReadMode maps "Programmed" or "Measured". Empty input is Measured
func ParseReadMode(s string) (ReadMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "measured":
		return Measured, nil
	case "programmed":
		return Programmed, nil
	}
	return 0, invalidConfig("unknown read mode %q", s)
}

// MeasurementRequest is the set of enabled quantities plus the read mode of Voltage and Current
type MeasurementRequest struct {
	Quantities  []Quantity
	VoltageMode ReadMode
	CurrentMode ReadMode
}

// NewMeasurementRequest enables qs with both read modes Measured
func NewMeasurementRequest(qs ...Quantity) MeasurementRequest {
	return MeasurementRequest{Quantities: qs}
}

// Enabled reports whether q is requested
func (r MeasurementRequest) Enabled(q Quantity) bool {
	for _, v := range r.Quantities {
		if v == q {
			return true
		}
	}
	return false
}

// Columns returns the enabled quantities in table order, without duplicates
func (r MeasurementRequest) Columns() []Quantity {
	var cols []Quantity
	for _, q := range AllQuantities {
		if r.Enabled(q) {
			cols = append(cols, q)
		}
	}
	return cols
}

func (r MeasurementRequest) validate() error {
	for _, q := range r.Quantities {
		if _, ok := quantityNames[q]; !ok {
			return invalidConfig("unknown measurement %d", int(q))
		}
	}
	return nil
}

// Sample is one row of the measurement table
type Sample map[Quantity]float64
