package models

import "time"

// ParsedTransaction is the transient, best-effort representation of one source
// row produced by a broker parser. Each parser populates as many fields as the
// export format allows, including the initial action classification; the import
// orchestrator maps it onto a persisted Transaction.
type ParsedTransaction struct {
	// Type is the broker classifier's label (e.g. "SellToOpen"). Unmatched
	// actions pass through as the raw broker label.
	Type            string    `json:"type"`
	Symbol          string    `json:"symbol"`
	TransactionDate time.Time `json:"transaction_date"`
	Quantity        float64   `json:"quantity"`
	Price           float64   `json:"price"`
	Amount          float64   `json:"amount"`
	Fees            float64   `json:"fees"`
	Account         string    `json:"account"`

	// Options specific
	IsOption       bool       `json:"is_option"`
	OptionType     string     `json:"option_type,omitempty"` // "Call" or "Put"
	StrikePrice    *float64   `json:"strike_price,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`

	Notes      string `json:"notes"`
	Source     string `json:"source"`      // broker name
	LineNumber int    `json:"line_number"` // 1-based source line, for error reporting
}

// IsPlaceholder reports whether the row carries no financial data and exists
// only to surface a parse failure. Placeholders must not be persisted.
func (p *ParsedTransaction) IsPlaceholder() bool {
	return p.Symbol == "" && p.Type == ""
}
