package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/optionstracker/backend/src/models"
)

const schwabOptionLifecycleCSV = `"Transactions for account ending 1234 as of 01/20/2025"
""
"Date","Action","Symbol","Description","Quantity","Price","Fees & Comm","Amount"
"01/02/2025","Sell to Open","AAPL 011725C150","CALL AAPL $150 EXP 01/17/25","-1","2.00","0.65","200.00"
"01/10/2025","Buy to Close","AAPL 011725C150","CALL AAPL $150 EXP 01/17/25","1","0.50","0.65","-50.00"
`

const fidelityStockCSV = `Run Date,Action,Symbol,Security Description,Security Type,Quantity,Price,Commission,Fees,Amount,Settlement Date
01/10/2024,YOU BOUGHT APPLE INC,AAPL,APPLE INC,Cash,100,150.00,0,0,-15000.00,01/12/2024
01/15/2024,YOU SOLD APPLE INC,AAPL,APPLE INC,Cash,40,160.00,0,0,6400.00,01/17/2024
`

func (ts *testServices) transactionCount(t *testing.T) int {
	t.Helper()
	var count int
	require.NoError(t, ts.db.QueryRow("SELECT COUNT(*) FROM transactions").Scan(&count))
	return count
}

func TestImportUnsupportedBroker(t *testing.T) {
	ts := newTestServices(t)

	result, err := ts.importer.ImportCSV(strings.NewReader("whatever"), "Robinhood", "Main")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 0, result.TransactionsImported)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Robinhood")
	assert.Contains(t, result.Errors[0], "Fidelity, Schwab")
	assert.Equal(t, 0, ts.transactionCount(t))
}

func TestImportUnreadableFile(t *testing.T) {
	ts := newTestServices(t)

	result, err := ts.importer.ImportCSV(strings.NewReader("no header here\n"), "Schwab", "Main")
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Failed to parse CSV")
	assert.Equal(t, 0, ts.transactionCount(t))
}

func TestImportOptionLifecycle(t *testing.T) {
	ts := newTestServices(t)

	result, err := ts.importer.ImportCSV(strings.NewReader(schwabOptionLifecycleCSV), "schwab", "IRA")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.TransactionsImported)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, "Successfully imported 2 transactions from Schwab", result.Message)

	options, err := ts.options.GetAllOptionsPositions("", nil)
	require.NoError(t, err)
	require.Len(t, options, 1)

	o := options[0]
	assert.Equal(t, "AAPL", o.UnderlyingSymbol)
	assert.Equal(t, string(models.StrategyShort), o.Strategy)
	assert.Equal(t, string(models.StatusClosed), o.Status)
	assert.Equal(t, 150.0, o.StrikePrice)
	assert.Equal(t, 1, o.Contracts)
	assert.Equal(t, 200.0, o.TotalPremiumCollected)
	assert.Equal(t, 0.50, o.CurrentPrice)
	assert.Equal(t, 150.0, o.UnrealizedPnL) // 200 collected - 50 buyback
	require.NotNil(t, o.CloseDate)

	// Both transactions carry the back-link to the position
	var linked int
	require.NoError(t, ts.db.QueryRow(
		"SELECT COUNT(*) FROM transactions WHERE options_position_id = ?", o.ID).Scan(&linked))
	assert.Equal(t, 2, linked)
}

func TestImportIsIdempotent(t *testing.T) {
	ts := newTestServices(t)

	first, err := ts.importer.ImportCSV(strings.NewReader(schwabOptionLifecycleCSV), "Schwab", "IRA")
	require.NoError(t, err)
	assert.Equal(t, 2, first.TransactionsImported)

	second, err := ts.importer.ImportCSV(strings.NewReader(schwabOptionLifecycleCSV), "Schwab", "IRA")
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.TransactionsImported)

	assert.Equal(t, 2, ts.transactionCount(t))

	options, err := ts.options.GetAllOptionsPositions("", nil)
	require.NoError(t, err)
	assert.Len(t, options, 1)
}

func TestImportStockRoundTrip(t *testing.T) {
	ts := newTestServices(t)

	result, err := ts.importer.ImportCSV(strings.NewReader(fidelityStockCSV), "Fidelity", "Brokerage")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.TransactionsImported)

	positions, err := ts.positions.GetAllPositions("")
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.Equal(t, "AAPL", p.Symbol)
	assert.Equal(t, 60.0, p.Quantity)
	assert.Equal(t, 150.0, p.AverageCost) // sell leg leaves the average alone
	assert.Equal(t, 160.0, p.CurrentPrice)
	assert.Equal(t, "Brokerage", p.Account)
}

func TestImportBadRowBecomesWarning(t *testing.T) {
	csv := `Run Date,Action,Symbol,Security Description,Security Type,Quantity,Price,Commission,Fees,Amount,Settlement Date
01/10/2024,YOU "BOUGHT,AAPL,APPLE INC,Cash,100,150.00,0,0,-15000.00,01/12/2024
01/15/2024,YOU SOLD APPLE INC,AAPL,APPLE INC,Cash,40,160.00,0,0,6400.00,01/17/2024
`
	ts := newTestServices(t)

	result, err := ts.importer.ImportCSV(strings.NewReader(csv), "Fidelity", "Brokerage")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.TransactionsImported)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "Line 2")
	assert.Contains(t, result.Warnings[0], "Error parsing line")

	// the placeholder row is not persisted
	assert.Equal(t, 1, ts.transactionCount(t))
}

func TestImportDuplicateOpenKeepsFirstSlot(t *testing.T) {
	csv := `"Date","Action","Symbol","Description","Quantity","Price","Fees & Comm","Amount"
"01/02/2025","Sell to Open","AAPL 011725C150","CALL AAPL $150 EXP 01/17/25","-1","2.00","0.65","200.00"
"01/03/2025","Sell to Open","AAPL 011725C150","CALL AAPL $150 EXP 01/17/25","-1","2.10","0.65","210.00"
`
	ts := newTestServices(t)

	result, err := ts.importer.ImportCSV(strings.NewReader(csv), "Schwab", "IRA")
	require.NoError(t, err)
	assert.Equal(t, 2, result.TransactionsImported)

	// Second fill is recorded as a transaction but the slot keeps the first
	// contract's premium.
	options, err := ts.options.GetAllOptionsPositions("", nil)
	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.Equal(t, 2.00, options[0].PremiumPerContract)
	assert.Equal(t, 2, ts.transactionCount(t))
}
