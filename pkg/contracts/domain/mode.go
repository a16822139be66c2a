package domain

import (
	"fmt"
	"strings"
)

// Mode selects which report family an export produces. Each mode owns its own
// tag table, template and yearly workbook.
type Mode int

const (
	// ModeQuality exports water quality probes (turbidity, chlorine, temperature, pH, redox).
	ModeQuality Mode = iota + 1
	// ModeQuantity exports abstracted water quantities (daily volume counters and max flow).
	ModeQuantity
)

// AllModes lists every supported export mode in a stable order.
var AllModes = []Mode{ModeQuality, ModeQuantity}

// String returns the canonical identifier used in configuration and directory names.
func (m Mode) String() string {
	switch m {
	case ModeQuality:
		return "kvaliteta_vode"
	case ModeQuantity:
		return "zahvacene_kolicine_vode"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModeQuality || m == ModeQuantity
}

// ParseMode converts a configuration or request string into a Mode.
// Short aliases "quality" and "quantity" are accepted.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "kvaliteta_vode", "quality":
		return ModeQuality, nil
	case "zahvacene_kolicine_vode", "quantity", "quantities":
		return ModeQuantity, nil
	default:
		return 0, fmt.Errorf("unknown export mode %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
