package utils

import (
	"strconv"
	"strings"
	"time"
)

// fallbackDateFormats approximates a locale-flexible parse: tried, in order,
// after a broker's own format list has failed.
var fallbackDateFormats = []string{
	time.RFC3339,
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"2006/01/02",
	"01/02/2006 15:04:05",
}

// ParseDate tries the caller's formats in order, then the flexible fallbacks,
// and finally returns the current UTC time. It never fails a row.
func ParseDate(dateStr string, formats []string) time.Time {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return time.Now().UTC()
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t
		}
	}
	for _, format := range fallbackDateFormats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

// ParseAmount parses a currency-ish numeric field, tolerating dollar signs,
// thousands separators and accounting-style parenthesized negatives:
// "$(1,234.50)" -> -1234.50. Unparsable values default to 0.
func ParseAmount(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	value = strings.ReplaceAll(value, "$", "")
	value = strings.ReplaceAll(value, ",", "")
	value = strings.TrimSpace(value)

	// Handle parentheses as negative
	if strings.HasPrefix(value, "(") && strings.HasSuffix(value, ")") {
		value = "-" + strings.Trim(value, "()")
	}

	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}
