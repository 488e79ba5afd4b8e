package processors

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/username/optionstracker/backend/src/logger"
	"github.com/username/optionstracker/backend/src/models"
)

// StockPositions is the slice of the position service the reconciler needs:
// applying a signed share delta at a given price.
type StockPositions interface {
	CreateOrUpdate(symbol string, quantity, price float64, account string) (*models.Position, error)
}

// Reconciler folds persisted transactions into stock and option positions.
// Stock buys and sells flow into the weighted-average position; option opens
// create a position slot and option closes resolve the matching open slot.
type Reconciler struct {
	db     *sql.DB
	stocks StockPositions
}

func NewReconciler(db *sql.DB, stocks StockPositions) *Reconciler {
	return &Reconciler{db: db, stocks: stocks}
}

// Apply updates positions for one already-persisted transaction. Transaction
// types with no position effect (dividends, fees, assignments) are no-ops.
func (r *Reconciler) Apply(tx *models.Transaction) error {
	switch tx.Type {
	case models.TypeBuyStock:
		_, err := r.stocks.CreateOrUpdate(tx.Symbol, tx.Quantity, tx.Price, tx.Account)
		return err

	case models.TypeSellStock:
		_, err := r.stocks.CreateOrUpdate(tx.Symbol, -tx.Quantity, tx.Price, tx.Account)
		return err

	case models.TypeSellToOpen, models.TypeBuyToOpen:
		return r.openOption(tx)

	case models.TypeBuyToClose, models.TypeSellToClose:
		return r.closeOption(tx)
	}
	return nil
}

// openOption creates an options position for an opening transaction, keyed on
// (underlying, strike, expiration). A second open against an already-open key
// is skipped: the slot holds the first contract's terms.
func (r *Reconciler) openOption(tx *models.Transaction) error {
	if tx.OptionType == nil || tx.StrikePrice == nil || tx.ExpirationDate == nil {
		return nil
	}

	existingID, err := r.findOpenOption(tx.Symbol, *tx.StrikePrice, *tx.ExpirationDate)
	if err != nil {
		return err
	}
	if existingID != 0 {
		logger.L.Warn("options position already open, skipping duplicate open",
			"symbol", tx.Symbol,
			"strike", *tx.StrikePrice,
			"expiration", tx.ExpirationDate.Format("2006-01-02"))
		return nil
	}

	strategy := models.StrategyLong
	if tx.Type == models.TypeSellToOpen {
		strategy = models.StrategyShort
	}

	result, err := r.db.Exec(`
		INSERT INTO options_positions (
			underlying_symbol, option_type, strategy, strike_price, expiration_date,
			contracts, premium_per_contract, current_price, open_date, status, account
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.Symbol, string(*tx.OptionType), string(strategy), *tx.StrikePrice,
		tx.ExpirationDate.UTC().Format(time.RFC3339),
		int(tx.Quantity), tx.Price, tx.Price,
		tx.TransactionDate.UTC().Format(time.RFC3339),
		string(models.StatusOpen), tx.Account)
	if err != nil {
		return fmt.Errorf("failed to create options position: %w", err)
	}
	positionID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read options position id: %w", err)
	}

	return r.linkTransaction(tx, positionID)
}

// closeOption marks the matching open slot closed at the transaction's price.
// With no open match (e.g. the opening trade predates the imported file) the
// close is a no-op.
func (r *Reconciler) closeOption(tx *models.Transaction) error {
	if tx.OptionType == nil || tx.StrikePrice == nil || tx.ExpirationDate == nil {
		return nil
	}

	openID, err := r.findOpenOption(tx.Symbol, *tx.StrikePrice, *tx.ExpirationDate)
	if err != nil {
		return err
	}
	if openID == 0 {
		return nil
	}

	_, err = r.db.Exec(`
		UPDATE options_positions
		SET status = ?, close_date = ?, current_price = ?
		WHERE id = ?`,
		string(models.StatusClosed),
		tx.TransactionDate.UTC().Format(time.RFC3339),
		tx.Price, openID)
	if err != nil {
		return fmt.Errorf("failed to close options position: %w", err)
	}

	return r.linkTransaction(tx, openID)
}

func (r *Reconciler) findOpenOption(symbol string, strike float64, expiration time.Time) (int64, error) {
	var id int64
	err := r.db.QueryRow(`
		SELECT id FROM options_positions
		WHERE underlying_symbol = ? AND strike_price = ? AND expiration_date = ? AND status = ?`,
		symbol, strike, expiration.UTC().Format(time.RFC3339), string(models.StatusOpen)).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up open options position: %w", err)
	}
	return id, nil
}

func (r *Reconciler) linkTransaction(tx *models.Transaction, optionsPositionID int64) error {
	if tx.ID == 0 {
		return nil
	}
	_, err := r.db.Exec("UPDATE transactions SET options_position_id = ? WHERE id = ?", optionsPositionID, tx.ID)
	if err != nil {
		return fmt.Errorf("failed to link transaction to options position: %w", err)
	}
	tx.OptionsPositionID = &optionsPositionID
	return nil
}
