package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/username/optionstracker/backend/src/models"
	"github.com/username/optionstracker/backend/src/utils"
)

type positionServiceImpl struct {
	db *sql.DB
}

func NewPositionService(db *sql.DB) PositionService {
	return &positionServiceImpl{db: db}
}

func (s *positionServiceImpl) GetAllPositions(account string) ([]PositionDetail, error) {
	query := "SELECT " + positionColumns + " FROM positions"
	var args []any
	if account != "" {
		query += " WHERE account = ?"
		args = append(args, account)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	// Drain the cursor before running the covered-call count queries: an open
	// rows cursor holds its pool connection, and a nested query would wait on
	// it forever with a single-connection pool.
	var positions []*models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	details := []PositionDetail{}
	for _, p := range positions {
		detail, err := s.toDetail(p)
		if err != nil {
			return nil, err
		}
		details = append(details, *detail)
	}
	return details, nil
}

func (s *positionServiceImpl) GetPositionByID(id int64) (*PositionDetail, error) {
	row := s.db.QueryRow("SELECT "+positionColumns+" FROM positions WHERE id = ?", id)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load position %d: %w", id, err)
	}
	return s.toDetail(p)
}

// CreateOrUpdate applies a signed share delta using the weighted-average cost
// formula. A delta that takes the quantity to zero or below closes the
// position: quantity is forced to zero and the average cost is left alone.
func (s *positionServiceImpl) CreateOrUpdate(symbol string, quantity, price float64, account string) (*models.Position, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	row := s.db.QueryRow("SELECT "+positionColumns+" FROM positions WHERE symbol = ? AND account = ?", symbol, account)
	existing, err := scanPosition(row)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to look up position %s: %w", symbol, err)
	}

	if err == sql.ErrNoRows {
		result, err := s.db.Exec(`
			INSERT INTO positions (symbol, quantity, average_cost, current_price, last_updated, account)
			VALUES (?, ?, ?, ?, ?, ?)`,
			symbol, quantity, price, price, now, account)
		if err != nil {
			return nil, fmt.Errorf("failed to create position %s: %w", symbol, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read position id: %w", err)
		}
		return s.loadPosition(id)
	}

	// Buys add cost basis at the trade price; sells remove shares at the
	// existing average cost, so a sell never moves the average.
	costDelta := quantity * price
	if quantity < 0 {
		costDelta = quantity * existing.AverageCost
	}
	totalCost := existing.TotalCost() + costDelta
	totalQuantity := existing.Quantity + quantity

	newQuantity := existing.Quantity
	newAverageCost := existing.AverageCost
	if totalQuantity > 0 {
		newQuantity = totalQuantity
		newAverageCost = totalCost / totalQuantity
	} else {
		// Position closed; keep the last average cost for reference
		newQuantity = 0
	}

	_, err = s.db.Exec(`
		UPDATE positions
		SET quantity = ?, average_cost = ?, current_price = ?, last_updated = ?
		WHERE id = ?`,
		newQuantity, newAverageCost, price, now, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update position %s: %w", symbol, err)
	}
	return s.loadPosition(existing.ID)
}

func (s *positionServiceImpl) UpdatePrice(id int64, currentPrice float64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.Exec("UPDATE positions SET current_price = ?, last_updated = ? WHERE id = ?",
		currentPrice, now, id)
	if err != nil {
		return fmt.Errorf("failed to update price for position %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPositionNotFound
	}
	return nil
}

func (s *positionServiceImpl) Delete(id int64) error {
	result, err := s.db.Exec("DELETE FROM positions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete position %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPositionNotFound
	}
	return nil
}

func (s *positionServiceImpl) loadPosition(id int64) (*models.Position, error) {
	row := s.db.QueryRow("SELECT "+positionColumns+" FROM positions WHERE id = ?", id)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load position %d: %w", id, err)
	}
	return p, nil
}

func (s *positionServiceImpl) toDetail(p *models.Position) (*PositionDetail, error) {
	var coveredCalls int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM options_positions WHERE underlying_position_id = ? AND status = ?",
		p.ID, string(models.StatusOpen)).Scan(&coveredCalls)
	if err != nil {
		return nil, fmt.Errorf("failed to count covered calls for position %d: %w", p.ID, err)
	}

	return &PositionDetail{
		ID:                   p.ID,
		Symbol:               p.Symbol,
		Quantity:             p.Quantity,
		AverageCost:          p.AverageCost,
		CurrentPrice:         p.CurrentPrice,
		TotalCost:            p.TotalCost(),
		MarketValue:          p.MarketValue(),
		UnrealizedPnL:        p.UnrealizedPnL(),
		UnrealizedPnLPercent: utils.RoundFloat(p.UnrealizedPnLPercent(), 4),
		LastUpdated:          p.LastUpdated,
		Account:              p.Account,
		CoveredCallsCount:    coveredCalls,
	}, nil
}
