// Package parsers defines the broker statement parser interface and the
// factory that selects an implementation by broker name.
package parsers

import (
	"io"

	"github.com/username/optionstracker/backend/src/models"
)

// Parser converts one broker's CSV export into parsed transactions.
// Implementations return an error only for stream-level failures (unreadable
// input, missing header); individual bad rows become placeholder entries so
// the rest of the file still imports.
type Parser interface {
	// Parse reads a full CSV export and tags every row with the given account.
	Parse(r io.Reader, account string) ([]models.ParsedTransaction, error)

	// BrokerName returns the canonical broker name, e.g. "Fidelity".
	BrokerName() string
}
