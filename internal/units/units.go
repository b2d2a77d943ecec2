package units

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrRangeFormat is returned when a range selector is neither a sentinel nor <number><unit>
var ErrRangeFormat = errors.New("units: invalid range format")

// Quantity is the physical quantity a manual range applies to
type Quantity int

const (
	Voltage Quantity = iota + 1
	Current
	Resistance
)

func (q Quantity) String() string {
	switch q {
	case Voltage:
		return "voltage"
	case Current:
		return "current"
	case Resistance:
		return "resistance"
	default:
		return "unknown"
	}
}

// Kind tells the configurator how a range should be applied
type Kind int

const (
	Manual Kind = iota
	Auto
	BestFixed
)

// Range is a resolved range selector
type Range struct {
	Kind     Kind
	Value    float64
	Quantity Quantity
}

// IsAuto reports whether the instrument should auto-range
func (r Range) IsAuto() bool { return r.Kind == Auto }

// IsBestFixed reports whether ranging is left to the instrument's own heuristic
func (r Range) IsBestFixed() bool { return r.Kind == BestFixed }

func (r Range) String() string {
	switch r.Kind {
	case Auto:
		return "Auto"
	case BestFixed:
		return "Best Fixed"
	default:
		return fmt.Sprintf("%g %s", r.Value, r.Quantity)
	}
}

type unit struct {
	scale    float64
	quantity Quantity
}

// Keys are compared after lowercasing the ASCII part; μ, k and Ω are matched literally
var unitTable = map[string]unit{
	"mv": {1e-3, Voltage},
	"ma": {1e-3, Current},
	"v":  {1, Voltage},
	"a":  {1, Current},
	"Ω":  {1, Resistance},
	"kΩ": {1e3, Resistance},
	"Ω":  {1, Resistance}, // U+2126 ohm sign
	"kΩ": {1e3, Resistance},
	"μa": {1e-6, Current},
	"µa": {1e-6, Current}, // U+00B5 micro sign, as typed on most keyboards
	"na": {1e-9, Current},
}

var rangePattern = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)(\S+)$`)

// Resolve parses a range selector such as "Auto", "Best Fixed", "200mV" or "10kΩ"
func Resolve(s string) (Range, error) {
	trimmed := strings.TrimSpace(s)
	switch {
	case strings.EqualFold(trimmed, "Auto"):
		return Range{Kind: Auto}, nil
	case strings.EqualFold(trimmed, "Best Fixed"):
		return Range{Kind: BestFixed}, nil
	}

	m := rangePattern.FindStringSubmatch(trimmed)
	if m == nil {
		return Range{}, fmt.Errorf("%w: %q", ErrRangeFormat, s)
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q: %v", ErrRangeFormat, s, err)
	}
	u, ok := unitTable[foldUnit(m[2])]
	if !ok {
		return Range{}, fmt.Errorf("%w: unknown unit %q in %q", ErrRangeFormat, m[2], s)
	}
	return Range{Kind: Manual, Value: value * u.scale, Quantity: u.quantity}, nil
}

// foldUnit lowercases ASCII letters only, leaving the k prefix and the μ and Ω glyphs untouched
func foldUnit(token string) string {
	var b strings.Builder
	for _, r := range token {
		if r >= 'A' && r <= 'Z' && r != 'K' {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
