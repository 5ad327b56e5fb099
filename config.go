package gateway

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ibramn/pump-protocol/dart"
)

// Config is the durable parameter set the gateway is opened or
// reconfigured with. It is the only state the core requires to persist
// across a restart; everything else is derived at runtime.
type Config struct {
	Device      string
	Baud        int
	PumpAddress byte
}

// ConfigView is Config rendered for the get_status/update_config surface,
// with PumpAddress in the "0xNN" form the supervisor surface uses.
type ConfigView struct {
	Port        string `json:"port"`
	Baud        int    `json:"baud"`
	PumpAddress string `json:"pump_address"`
}

// ParseAddress accepts the decimal (80..111) or hex ("0x50", "50") forms
// the supervisor request surface must support for pump_address.
func ParseAddress(s string) (byte, error) {
	s = strings.TrimSpace(s)
	base := 10
	trimmed := s
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		base = 16
		trimmed = s[2:]
	}
	n, err := strconv.ParseUint(trimmed, base, 16)
	if base == 10 && (err != nil || n > 0xFF || !dart.ValidAddress(byte(n))) {
		// Not a valid decimal address: read a bare string as hex ("50" -> 0x50).
		if h, herr := strconv.ParseUint(trimmed, 16, 16); herr == nil && h <= 0xFF && dart.ValidAddress(byte(h)) {
			n, err = h, nil
		}
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a valid address", dart.ErrInvalidAddress, s)
	}
	addr := byte(n)
	if uint64(addr) != n || !dart.ValidAddress(addr) {
		return 0, fmt.Errorf("%w: %q out of [0x%02X,0x%02X]", dart.ErrInvalidAddress, s, dart.MinAddr, dart.MaxAddr)
	}
	return addr, nil
}

func (c Config) view() ConfigView {
	return ConfigView{
		Port:        c.Device,
		Baud:        c.Baud,
		PumpAddress: fmt.Sprintf("0x%02X", c.PumpAddress),
	}
}
