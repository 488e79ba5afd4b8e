package processors

import (
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/optionstracker/backend/src/database"
	"github.com/username/optionstracker/backend/src/logger"
	"github.com/username/optionstracker/backend/src/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

type stockCall struct {
	symbol   string
	quantity float64
	price    float64
	account  string
}

type fakeStockPositions struct {
	calls []stockCall
}

func (f *fakeStockPositions) CreateOrUpdate(symbol string, quantity, price float64, account string) (*models.Position, error) {
	f.calls = append(f.calls, stockCall{symbol, quantity, price, account})
	return &models.Position{Symbol: symbol, Quantity: quantity, AverageCost: price}, nil
}

func newReconcilerTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, database.CreateTables(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func optionTx(txType models.TransactionType, price float64) *models.Transaction {
	optionType := models.OptionCall
	strike := 150.0
	expiration := time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)
	return &models.Transaction{
		Type:            txType,
		Symbol:          "AAPL",
		TransactionDate: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		Quantity:        1,
		Price:           price,
		Account:         "IRA",
		OptionType:      &optionType,
		StrikePrice:     &strike,
		ExpirationDate:  &expiration,
	}
}

func TestApplyStockTypes(t *testing.T) {
	db := newReconcilerTestDB(t)
	stocks := &fakeStockPositions{}
	r := NewReconciler(db, stocks)

	buy := &models.Transaction{Type: models.TypeBuyStock, Symbol: "AAPL", Quantity: 100, Price: 150, Account: "X"}
	require.NoError(t, r.Apply(buy))
	sell := &models.Transaction{Type: models.TypeSellStock, Symbol: "AAPL", Quantity: 40, Price: 160, Account: "X"}
	require.NoError(t, r.Apply(sell))

	require.Len(t, stocks.calls, 2)
	assert.Equal(t, stockCall{"AAPL", 100, 150, "X"}, stocks.calls[0])
	// sells flow through as a negative delta
	assert.Equal(t, stockCall{"AAPL", -40, 160, "X"}, stocks.calls[1])
}

func TestApplyOpenThenClose(t *testing.T) {
	db := newReconcilerTestDB(t)
	r := NewReconciler(db, &fakeStockPositions{})

	require.NoError(t, r.Apply(optionTx(models.TypeSellToOpen, 2.00)))

	var status string
	var strategy string
	require.NoError(t, db.QueryRow("SELECT status, strategy FROM options_positions").Scan(&status, &strategy))
	assert.Equal(t, "Open", status)
	assert.Equal(t, "Short", strategy)

	require.NoError(t, r.Apply(optionTx(models.TypeBuyToClose, 0.50)))

	var currentPrice float64
	require.NoError(t, db.QueryRow("SELECT status, current_price FROM options_positions").Scan(&status, &currentPrice))
	assert.Equal(t, "Closed", status)
	assert.Equal(t, 0.50, currentPrice)
}

func TestApplyBuyToOpenCreatesLongPosition(t *testing.T) {
	db := newReconcilerTestDB(t)
	r := NewReconciler(db, &fakeStockPositions{})

	require.NoError(t, r.Apply(optionTx(models.TypeBuyToOpen, 3.25)))

	var strategy string
	require.NoError(t, db.QueryRow("SELECT strategy FROM options_positions").Scan(&strategy))
	assert.Equal(t, "Long", strategy)
}

func TestApplyDuplicateOpenSkipped(t *testing.T) {
	db := newReconcilerTestDB(t)
	r := NewReconciler(db, &fakeStockPositions{})

	require.NoError(t, r.Apply(optionTx(models.TypeSellToOpen, 2.00)))
	require.NoError(t, r.Apply(optionTx(models.TypeSellToOpen, 2.10)))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM options_positions").Scan(&count))
	assert.Equal(t, 1, count)

	var premium float64
	require.NoError(t, db.QueryRow("SELECT premium_per_contract FROM options_positions").Scan(&premium))
	assert.Equal(t, 2.00, premium)
}

func TestApplyCloseWithoutOpenIsNoop(t *testing.T) {
	db := newReconcilerTestDB(t)
	r := NewReconciler(db, &fakeStockPositions{})

	require.NoError(t, r.Apply(optionTx(models.TypeBuyToClose, 0.50)))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM options_positions").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestApplyIncompleteOptionDetailsIsNoop(t *testing.T) {
	db := newReconcilerTestDB(t)
	r := NewReconciler(db, &fakeStockPositions{})

	tx := optionTx(models.TypeSellToOpen, 2.00)
	tx.StrikePrice = nil
	require.NoError(t, r.Apply(tx))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM options_positions").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestApplyNonPositionTypesAreNoops(t *testing.T) {
	db := newReconcilerTestDB(t)
	stocks := &fakeStockPositions{}
	r := NewReconciler(db, stocks)

	for _, txType := range []models.TransactionType{
		models.TypeDividend, models.TypeFee, models.TypeCommission,
		models.TypeOptionAssigned, models.TypeOptionExercised, models.TypeOptionExpired,
	} {
		require.NoError(t, r.Apply(&models.Transaction{Type: txType, Symbol: "AAPL"}))
	}

	assert.Empty(t, stocks.calls)
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM options_positions").Scan(&count))
	assert.Equal(t, 0, count)
}
