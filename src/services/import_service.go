package services

import (
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/username/optionstracker/backend/src/logger"
	"github.com/username/optionstracker/backend/src/models"
	"github.com/username/optionstracker/backend/src/parsers"
	"github.com/username/optionstracker/backend/src/processors"
)

type importServiceImpl struct {
	db             *sql.DB
	reconciler     *processors.Reconciler
	dashboardCache *cache.Cache
}

func NewImportService(db *sql.DB, reconciler *processors.Reconciler, dashboardCache *cache.Cache) ImportService {
	return &importServiceImpl{db: db, reconciler: reconciler, dashboardCache: dashboardCache}
}

// ImportCSV drives one file through parse, dedup, persist and reconcile.
// Rows are processed strictly in file order because a close later in the file
// must see the position its open created. Each row commits independently; a
// failure partway leaves earlier rows applied and reported via warnings.
func (s *importServiceImpl) ImportCSV(file io.Reader, broker, account string) (*ImportResult, error) {
	runID := uuid.NewString()
	result := &ImportResult{Errors: []string{}, Warnings: []string{}}

	parser, err := parsers.GetParser(broker)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"Unsupported broker: %s. Supported brokers are: %s",
			broker, strings.Join(parsers.SupportedBrokers(), ", ")))
		return result, nil
	}

	logger.L.Info("Starting CSV import", "importRunID", runID, "broker", parser.BrokerName(), "account", account)

	parsed, err := parser.Parse(file, account)
	if err != nil {
		logger.L.Error("CSV parse failed", "importRunID", runID, "broker", parser.BrokerName(), "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to parse CSV: %v", err))
		return result, nil
	}

	for i := range parsed {
		p := &parsed[i]
		if p.IsPlaceholder() {
			result.Warnings = append(result.Warnings, fmt.Sprintf("Line %d: %s", p.LineNumber, p.Notes))
			continue
		}

		imported, err := s.processTransaction(p)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("Line %d: %v", p.LineNumber, err))
			continue
		}
		if imported {
			result.TransactionsImported++
		}
	}

	result.Success = true
	result.Message = fmt.Sprintf("Successfully imported %d transactions from %s",
		result.TransactionsImported, parser.BrokerName())

	logger.L.Info("CSV import finished",
		"importRunID", runID,
		"broker", parser.BrokerName(),
		"imported", result.TransactionsImported,
		"warnings", len(result.Warnings))

	s.dashboardCache.Flush()
	return result, nil
}

// processTransaction persists one parsed row and reconciles positions.
// Returns false without error when the row is a duplicate of an already
// stored transaction (same symbol, date, quantity, price and source).
func (s *importServiceImpl) processTransaction(parsed *models.ParsedTransaction) (bool, error) {
	dateStr := parsed.TransactionDate.UTC().Format(time.RFC3339)

	var existingID int64
	err := s.db.QueryRow(`
		SELECT id FROM transactions
		WHERE symbol = ? AND transaction_date = ? AND quantity = ? AND price = ? AND source = ?`,
		parsed.Symbol, dateStr, parsed.Quantity, parsed.Price, parsed.Source).Scan(&existingID)
	if err == nil {
		return false, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("duplicate check failed: %w", err)
	}

	tx := models.Transaction{
		Type:            processors.ParseTransactionType(parsed.Type),
		Symbol:          parsed.Symbol,
		TransactionDate: parsed.TransactionDate,
		Quantity:        parsed.Quantity,
		Price:           parsed.Price,
		Amount:          parsed.Amount,
		Fees:            parsed.Fees,
		Account:         parsed.Account,
		Notes:           parsed.Notes,
		Source:          parsed.Source,
	}
	if parsed.IsOption {
		if optionType := parseOptionType(parsed.OptionType); optionType != nil {
			tx.OptionType = optionType
		}
		tx.StrikePrice = parsed.StrikePrice
		tx.ExpirationDate = parsed.ExpirationDate
	}

	var optionType any
	if tx.OptionType != nil {
		optionType = string(*tx.OptionType)
	}
	var strikePrice any
	if tx.StrikePrice != nil {
		strikePrice = *tx.StrikePrice
	}
	var expirationDate any
	if tx.ExpirationDate != nil {
		expirationDate = tx.ExpirationDate.UTC().Format(time.RFC3339)
	}

	result, err := s.db.Exec(`
		INSERT INTO transactions (
			type, symbol, transaction_date, quantity, price, amount, fees, account,
			option_type, strike_price, expiration_date, notes, source, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(tx.Type), tx.Symbol, dateStr, tx.Quantity, tx.Price, tx.Amount, tx.Fees, tx.Account,
		optionType, strikePrice, expirationDate, tx.Notes, tx.Source,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("failed to store transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to read transaction id: %w", err)
	}
	tx.ID = id

	if err := s.reconciler.Apply(&tx); err != nil {
		return false, fmt.Errorf("position update failed: %w", err)
	}
	return true, nil
}

func parseOptionType(s string) *models.OptionType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL":
		t := models.OptionCall
		return &t
	case "PUT":
		t := models.OptionPut
		return &t
	default:
		return nil
	}
}
