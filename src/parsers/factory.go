package parsers

import (
	"fmt"
	"strings"

	"github.com/username/optionstracker/backend/src/parsers/fidelity"
	"github.com/username/optionstracker/backend/src/parsers/schwab"
)

// GetParser returns the parser for the given broker name, case-insensitively.
func GetParser(broker string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(broker)) {
	case "fidelity":
		return fidelity.NewParser(), nil
	case "schwab":
		return schwab.NewParser(), nil
	default:
		return nil, fmt.Errorf("unsupported broker: %s", broker)
	}
}

// SupportedBrokers lists the broker names GetParser accepts.
func SupportedBrokers() []string {
	return []string{"Fidelity", "Schwab"}
}
