package mkr5

import (
	"fmt"

	"github.com/fuelhost/pumpmaster/serialio"
)

// LineConfig bundles the serial-line parameters a deployment needs to open
// before handing the resulting serialio.Port to NewTransport (spec.md §6).
type LineConfig struct {
	Device   string
	BaudRate int
	Parity   string
	RS485    bool
}

func (c LineConfig) applyDefaults() LineConfig {
	if c.BaudRate == 0 {
		c.BaudRate = 9600
	}
	if c.Parity == "" {
		c.Parity = "E"
	}
	return c
}

// OpenLine opens the configured serial device with DART's customary 9600
// 8E1 framing unless overridden.
func OpenLine(c LineConfig) (*serialio.Port, error) {
	c = c.applyDefaults()
	var parity serialio.Parity
	switch c.Parity {
	case "N":
		parity = serialio.ParityNone
	case "E":
		parity = serialio.ParityEven
	case "O":
		parity = serialio.ParityOdd
	default:
		return nil, newError(KindConfigError, fmt.Sprintf("unknown parity %q", c.Parity), nil)
	}
	return serialio.Open(c.Device, serialio.Config{
		BaudRate: c.BaudRate,
		Parity:   parity,
		DataBits: 8,
		StopBits: 1,
		RS485:    c.RS485,
	})
}
