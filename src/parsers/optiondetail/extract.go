// Package optiondetail extracts option contract details (type, strike,
// expiration) from the unstructured description and symbol fields brokers
// embed them in. Extraction is best-effort: fields without a recognizable
// pattern are left unset, never an error.
package optiondetail

import (
	"regexp"
	"strings"
	"time"

	"github.com/username/optionstracker/backend/src/utils"
)

// Details holds whatever contract attributes could be recognized.
type Details struct {
	OptionType string // "Call", "Put", or "" when neither keyword is present
	Strike     *float64
	Expiration *time.Time
}

var (
	// Strike tokens: a dollar-prefixed amount wins over a bare number so that
	// "JAN 17 25 $150" yields 150, not the day-of-month.
	dollarStrikeRe = regexp.MustCompile(`\$([\d,]+\.?\d*)`)
	bareStrikeRe   = regexp.MustCompile(`([\d,]+\.?\d*)`)

	// "Jan 17 2025" or "JAN 17 25"
	monthDayYearRe = regexp.MustCompile(`(?i)([A-Za-z]{3})\s+(\d{1,2})\s+(\d{2,4})`)

	// "01/17/25" or "1/17/2025"
	numericDateRe = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{2,4})`)

	// Schwab compact code: SYMBOL + MMDDYY + C/P + strike, e.g. "TSLA120824P200"
	schwabCodeRe = regexp.MustCompile(`([A-Z]+)(\d{2})(\d{2})(\d{2})([CP])([\d.]+)`)
)

// FromDescription applies the free-text strategy used for Fidelity
// descriptions such as "CALL (AAPL) APPLE INC JAN 17 25 $150" or
// "AAPL Jan 17 2025 $150 CALL".
func FromDescription(description string) Details {
	d := Details{OptionType: typeFromText(description)}
	d.Strike = strikeFromText(description)

	if m := monthDayYearRe.FindStringSubmatch(description); m != nil {
		month := normalizeMonth(m[1])
		day := m[2]
		year := m[3]
		if len(year) == 2 {
			year = "20" + year
		}
		if exp, err := time.Parse("Jan 2 2006", month+" "+day+" "+year); err == nil {
			d.Expiration = &exp
		}
	}
	return d
}

// FromSchwabDescription is the fallback strategy for Schwab rows whose symbol
// is not a recognizable compact code, e.g. "AAPL CALL $150 EXP 01/17/25".
// Expirations are numeric month/day/year rather than month names.
func FromSchwabDescription(description string) Details {
	d := Details{OptionType: typeFromText(description)}
	d.Strike = strikeFromText(description)

	if m := numericDateRe.FindString(description); m != "" {
		for _, format := range []string{"1/2/2006", "1/2/06"} {
			if exp, err := time.Parse(format, m); err == nil {
				d.Expiration = &exp
				break
			}
		}
	}
	return d
}

// FromSchwabSymbol parses Schwab's compact option code, returning the
// underlying symbol and the contract details. The second return value is false
// when the token deviates from the SYMBOL+MMDDYY+{C|P}+strike shape; callers
// then fall back to the description.
func FromSchwabSymbol(symbol string) (string, Details, bool) {
	cleaned := strings.ReplaceAll(symbol, " ", "")
	m := schwabCodeRe.FindStringSubmatch(cleaned)
	if m == nil {
		return "", Details{}, false
	}

	underlying := m[1]
	d := Details{}
	if m[5] == "C" {
		d.OptionType = "Call"
	} else {
		d.OptionType = "Put"
	}
	strike := utils.ParseAmount(m[6])
	d.Strike = &strike

	if exp, err := time.Parse("01/02/2006", m[2]+"/"+m[3]+"/20"+m[4]); err == nil {
		d.Expiration = &exp
	}
	return underlying, d, true
}

// FirstWord returns the leading whitespace-delimited token of a description,
// uppercased; used as the underlying-symbol fallback.
func FirstWord(description string) string {
	words := strings.Fields(description)
	if len(words) == 0 {
		return ""
	}
	return strings.ToUpper(words[0])
}

// typeFromText checks CALL before PUT, so a description containing both yields Call.
func typeFromText(s string) string {
	upper := strings.ToUpper(s)
	if strings.Contains(upper, "CALL") {
		return "Call"
	}
	if strings.Contains(upper, "PUT") {
		return "Put"
	}
	return ""
}

func strikeFromText(s string) *float64 {
	m := dollarStrikeRe.FindStringSubmatch(s)
	if m == nil {
		m = bareStrikeRe.FindStringSubmatch(s)
	}
	if m == nil {
		return nil
	}
	strike := utils.ParseAmount(m[1])
	return &strike
}

func normalizeMonth(m string) string {
	if m == "" {
		return m
	}
	return strings.ToUpper(m[:1]) + strings.ToLower(m[1:])
}
