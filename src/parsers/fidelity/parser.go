// Package fidelity parses Fidelity activity exports. The format carries
// columns such as Run Date, Action, Symbol, Security Description, Security
// Type, Quantity, Price, Commission, Fees, Amount and Settlement Date.
package fidelity

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/username/optionstracker/backend/src/models"
	"github.com/username/optionstracker/backend/src/parsers/optiondetail"
	"github.com/username/optionstracker/backend/src/processors"
	"github.com/username/optionstracker/backend/src/utils"
)

var dateFormats = []string{
	"01/02/2006",
	"1/2/2006",
	"2006-01-02",
	"01-02-2006",
}

var symbolCleanRe = regexp.MustCompile(`[^A-Za-z0-9\s]`)

type FidelityParser struct{}

func NewParser() *FidelityParser {
	return &FidelityParser{}
}

func (p *FidelityParser) BrokerName() string {
	return "Fidelity"
}

// Parse reads the export row by row. A malformed row becomes a placeholder
// entry carrying only the line number and the error, so one bad line never
// aborts the file.
func (p *FidelityParser) Parse(r io.Reader, account string) ([]models.ParsedTransaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}
	columns := indexColumns(header)

	var transactions []models.ParsedTransaction
	lineNumber := 1
	for {
		lineNumber++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			transactions = append(transactions, models.ParsedTransaction{
				LineNumber: lineNumber,
				Notes:      fmt.Sprintf("Error parsing line: %v", err),
				Source:     p.BrokerName(),
			})
			continue
		}

		action := field(record, columns, "Action")
		symbol := field(record, columns, "Symbol")
		description := field(record, columns, "Security Description")
		securityType := field(record, columns, "Security Type")

		// Skip empty rows
		if strings.TrimSpace(symbol) == "" && strings.TrimSpace(action) == "" {
			continue
		}

		tx := models.ParsedTransaction{
			Symbol:          cleanSymbol(symbol),
			TransactionDate: utils.ParseDate(field(record, columns, "Settlement Date"), dateFormats),
			Quantity:        utils.ParseAmount(field(record, columns, "Quantity")),
			Price:           utils.ParseAmount(field(record, columns, "Price")),
			Amount:          utils.ParseAmount(field(record, columns, "Amount")),
			Fees:            utils.ParseAmount(field(record, columns, "Fees")) + utils.ParseAmount(field(record, columns, "Commission")),
			Account:         account,
			Source:          p.BrokerName(),
			LineNumber:      lineNumber,
		}

		// The classifier only treats the row as an option when the security
		// type says so; CALL/PUT in the description alone still marks the row
		// an option for detail extraction.
		isOptionType := strings.Contains(strings.ToUpper(securityType), "OPTION")
		tx.Type = processors.ClassifyFidelity(action, isOptionType)

		upperDesc := strings.ToUpper(description)
		if isOptionType || strings.Contains(upperDesc, "CALL") || strings.Contains(upperDesc, "PUT") {
			tx.IsOption = true
			details := optiondetail.FromDescription(description)
			tx.OptionType = details.OptionType
			tx.StrikePrice = details.Strike
			tx.ExpirationDate = details.Expiration
			tx.Notes = "Option: " + description
		}

		transactions = append(transactions, tx)
	}

	return transactions, nil
}

// cleanSymbol strips everything but letters, digits and spaces, and uppercases.
func cleanSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbolCleanRe.ReplaceAllString(symbol, "")))
}

func indexColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	return columns
}

// field returns the named column's trimmed value, or "" when the column is
// absent from the header or the row is short.
func field(record []string, columns map[string]int, name string) string {
	i, ok := columns[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
