// Package schwab parses Schwab transaction exports. Schwab files open with a
// preamble of account lines before the real header, encode sells as negative
// quantities, and pack option contracts into a compact symbol code such as
// "AAPL 011725C150".
package schwab

import (
	"bufio"
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
	"1/2/06",
	"01/02/06",
}

var (
	optionSymbolRe  = regexp.MustCompile(`[A-Z]+\s*\d{6}[CP]\d+`)
	leadingSymbolRe = regexp.MustCompile(`^([A-Z]+)`)
	nonAlnumRe      = regexp.MustCompile(`[^A-Za-z0-9]`)
)

type SchwabParser struct{}

func NewParser() *SchwabParser {
	return &SchwabParser{}
}

func (p *SchwabParser) BrokerName() string {
	return "Schwab"
}

func (p *SchwabParser) Parse(r io.Reader, account string) ([]models.ParsedTransaction, error) {
	body, err := skipPreamble(r)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(body))
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

		date := field(record, columns, "Date")
		action := field(record, columns, "Action")
		symbol := field(record, columns, "Symbol")
		description := field(record, columns, "Description")
		fees := field(record, columns, "Fees & Comm")
		if fees == "" {
			fees = field(record, columns, "Fees")
		}

		// Skip blank rows and the trailing summary row
		if date == "" || strings.Contains(date, "Total") || action == "" {
			continue
		}

		tx := models.ParsedTransaction{
			Symbol:          cleanSymbol(symbol),
			TransactionDate: utils.ParseDate(date, dateFormats),
			// Schwab uses negative quantities for sells
			Quantity:   abs(utils.ParseAmount(field(record, columns, "Quantity"))),
			Price:      utils.ParseAmount(field(record, columns, "Price")),
			Amount:     utils.ParseAmount(field(record, columns, "Amount")),
			Fees:       utils.ParseAmount(fees),
			Account:    account,
			Source:     p.BrokerName(),
			LineNumber: lineNumber,
		}

		tx.Type = processors.ClassifySchwab(action, isOptionDescription(description))

		upperDesc := strings.ToUpper(description)
		if isOptionSymbol(symbol) || strings.Contains(upperDesc, "CALL") || strings.Contains(upperDesc, "PUT") {
			tx.IsOption = true
			if underlying, details, ok := optiondetail.FromSchwabSymbol(symbol); ok {
				tx.Symbol = underlying
				tx.OptionType = details.OptionType
				tx.StrikePrice = details.Strike
				tx.ExpirationDate = details.Expiration
			} else {
				tx.Symbol = optiondetail.FirstWord(description)
				details := optiondetail.FromSchwabDescription(description)
				tx.OptionType = details.OptionType
				tx.StrikePrice = details.Strike
				tx.ExpirationDate = details.Expiration
			}
			tx.Notes = "Option: " + description
		}

		transactions = append(transactions, tx)
	}

	return transactions, nil
}

// skipPreamble consumes account-summary lines until the transaction header,
// returning the header line and everything after it.
func skipPreamble(r io.Reader) (string, error) {
	var lines []string
	found := false
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !found {
			if strings.Contains(line, "Date") && strings.Contains(line, "Action") {
				found = true
			} else {
				continue
			}
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if !found {
		return "", fmt.Errorf("no transaction header found")
	}
	return strings.Join(lines, "\n"), nil
}

func isOptionSymbol(symbol string) bool {
	return optionSymbolRe.MatchString(symbol) ||
		strings.Contains(symbol, " C ") ||
		strings.Contains(symbol, " P ")
}

func isOptionDescription(description string) bool {
	upper := strings.ToUpper(description)
	return strings.Contains(upper, "CALL") ||
		strings.Contains(upper, "PUT") ||
		strings.Contains(upper, "OPTION")
}

// cleanSymbol keeps the leading letters of a compact option code; plain
// symbols fall back to an alphanumeric strip.
func cleanSymbol(symbol string) string {
	if m := leadingSymbolRe.FindStringSubmatch(strings.TrimSpace(symbol)); m != nil {
		return m[1]
	}
	return strings.ToUpper(nonAlnumRe.ReplaceAllString(symbol, ""))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func indexColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	return columns
}

func field(record []string, columns map[string]int, name string) string {
	i, ok := columns[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
