package fidelity

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fidelityCSV = `Run Date,Action,Symbol,Security Description,Security Type,Quantity,Price,Commission,Fees,Amount,Settlement Date
01/10/2024,YOU BOUGHT APPLE INC,AAPL,APPLE INC,Cash,100,$150.00,4.75,0.25,"$(15,005.00)",01/12/2024
01/15/2024,YOU SOLD APPLE INC,AAPL,APPLE INC,Cash,40,$160.00,4.95,0.05,"$6,395.00",01/17/2024
01/16/2024,YOU SOLD OPENING TRANSACTION,-AAPL250117C150,CALL (AAPL) APPLE INC JAN 17 25 $150,OPTION (100 SHS),1,2.00,0.65,0.05,199.30,01/17/2024
`

func TestFidelityParse(t *testing.T) {
	parser := NewParser()
	transactions, err := parser.Parse(strings.NewReader(fidelityCSV), "Brokerage")
	require.NoError(t, err)
	require.Len(t, transactions, 3)

	buy := transactions[0]
	assert.Equal(t, "BuyStock", buy.Type)
	assert.Equal(t, "AAPL", buy.Symbol)
	assert.Equal(t, 100.0, buy.Quantity)
	assert.Equal(t, 150.0, buy.Price)
	assert.Equal(t, -15005.0, buy.Amount)
	assert.Equal(t, 5.0, buy.Fees) // fees + commission
	assert.Equal(t, "Brokerage", buy.Account)
	assert.Equal(t, "Fidelity", buy.Source)
	assert.Equal(t, 2, buy.LineNumber)
	assert.False(t, buy.IsOption)
	assert.True(t, time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC).Equal(buy.TransactionDate))

	sell := transactions[1]
	assert.Equal(t, "SellStock", sell.Type)
	assert.Equal(t, 40.0, sell.Quantity)
	assert.Equal(t, 160.0, sell.Price)

	option := transactions[2]
	assert.Equal(t, "SellToOpen", option.Type)
	assert.True(t, option.IsOption)
	assert.Equal(t, "Call", option.OptionType)
	require.NotNil(t, option.StrikePrice)
	assert.Equal(t, 150.0, *option.StrikePrice)
	require.NotNil(t, option.ExpirationDate)
	assert.Equal(t, "2025-01-17", option.ExpirationDate.Format("2006-01-02"))
	assert.Equal(t, "Option: CALL (AAPL) APPLE INC JAN 17 25 $150", option.Notes)
	// symbol cleanup strips the leading dash
	assert.Equal(t, "AAPL250117C150", option.Symbol)
}

func TestFidelityParseSkipsBlankRows(t *testing.T) {
	csv := `Run Date,Action,Symbol,Security Description,Security Type,Quantity,Price,Commission,Fees,Amount,Settlement Date
,,,,,,,,,,
01/10/2024,YOU BOUGHT APPLE INC,AAPL,APPLE INC,Cash,100,150.00,0,0,-15000.00,01/12/2024
`
	parser := NewParser()
	transactions, err := parser.Parse(strings.NewReader(csv), "Brokerage")
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, "AAPL", transactions[0].Symbol)
}

func TestFidelityParseBadRowBecomesPlaceholder(t *testing.T) {
	csv := `Run Date,Action,Symbol,Security Description,Security Type,Quantity,Price,Commission,Fees,Amount,Settlement Date
01/10/2024,YOU "BOUGHT,AAPL,APPLE INC,Cash,100,150.00,0,0,-15000.00,01/12/2024
01/15/2024,YOU SOLD APPLE INC,AAPL,APPLE INC,Cash,40,160.00,0,0,6400.00,01/17/2024
`
	parser := NewParser()
	transactions, err := parser.Parse(strings.NewReader(csv), "Brokerage")
	require.NoError(t, err)
	require.Len(t, transactions, 2)

	placeholder := transactions[0]
	assert.True(t, placeholder.IsPlaceholder())
	assert.Equal(t, 2, placeholder.LineNumber)
	assert.Contains(t, placeholder.Notes, "Error parsing line")
	assert.Equal(t, "Fidelity", placeholder.Source)

	assert.Equal(t, "SellStock", transactions[1].Type)
}

func TestFidelityParseMissingColumnsTolerated(t *testing.T) {
	csv := `Action,Symbol,Quantity,Price
YOU BOUGHT APPLE INC,AAPL,100,150.00
`
	parser := NewParser()
	transactions, err := parser.Parse(strings.NewReader(csv), "Brokerage")
	require.NoError(t, err)
	require.Len(t, transactions, 1)

	tx := transactions[0]
	assert.Equal(t, "BuyStock", tx.Type)
	assert.Equal(t, 0.0, tx.Amount)
	assert.Equal(t, 0.0, tx.Fees)
	assert.False(t, tx.TransactionDate.IsZero()) // empty date defaults to now
}

func TestFidelityParseEmptyInput(t *testing.T) {
	parser := NewParser()
	_, err := parser.Parse(strings.NewReader(""), "Brokerage")
	assert.Error(t, err)
}
