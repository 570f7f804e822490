package motor

import (
	"sort"
	"strings"

	"github.com/milosgajdos/go-control"
	"github.com/pkg/errors"
)

// CIM returns the CIM motor
func CIM() Motor {
	return New("CIM", 2.42, 133, 5310, 2.7, 0.0)
}

// MiniCIM returns the MiniCIM motor
func MiniCIM() Motor {
	return New("MiniCIM", 1.41, 89, 5840, 3, 0.0)
}

// Pro775 returns the 775pro motor
func Pro775() Motor {
	return New("775pro", 0.71, 134, 18730, 0.7, 0.00001187)
}

// Falcon returns the Falcon 500 motor
func Falcon() Motor {
	return New("Falcon", 4.69, 257, 6380, 1.5, 0.0)
}

// NEO returns the REV NEO motor
func NEO() Motor {
	return New("NEO", 2.6, 105, 5676, 1.8, 0.0)
}

// krakenInertia models the rotor as a 100 g cylinder of 1.9" diameter
const krakenInertia = 0.1 * (0.95 * 0.0254) * (0.95 * 0.0254)

// KrakenX60 returns the Kraken X60 motor
func KrakenX60() Motor {
	return New("KrakenX60", 7.09, 366, 6000, 2, krakenInertia)
}

// KrakenFOC returns the Kraken X60 motor commutated with field oriented control
func KrakenFOC() Motor {
	return New("KrakenFOC", 9.37, 483, 5800, 2, krakenInertia)
}

var catalog = map[string]func() Motor{
	"cim":       CIM,
	"minicim":   MiniCIM,
	"775pro":    Pro775,
	"falcon":    Falcon,
	"neo":       NEO,
	"krakenx60": KrakenX60,
	"krakenfoc": KrakenFOC,
}

// Lookup returns the catalog motor with the given name. Names are case insensitive.
// It returns error wrapping control.ErrConfig if no such motor exists.
func Lookup(name string) (Motor, error) {
	f, ok := catalog[strings.ToLower(name)]
	if !ok {
		return Motor{}, errors.Wrapf(control.ErrConfig, "unknown motor %q, expected one of %v", name, Names())
	}

	return f(), nil
}

// Names returns sorted catalog motor names
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
