package services

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/username/optionstracker/backend/src/logger"
	"github.com/username/optionstracker/backend/src/models"
	"github.com/username/optionstracker/backend/src/security/validation"
	"github.com/username/optionstracker/backend/src/utils"
)

type optionsServiceImpl struct {
	db             *sql.DB
	dashboardCache *cache.Cache
}

func NewOptionsService(db *sql.DB, dashboardCache *cache.Cache) OptionsService {
	return &optionsServiceImpl{db: db, dashboardCache: dashboardCache}
}

func (s *optionsServiceImpl) GetAllOptionsPositions(account string, status *models.PositionStatus) ([]OptionsPositionDetail, error) {
	query := "SELECT " + optionsPositionColumns + " FROM options_positions"
	var conditions []string
	var args []any
	if account != "" {
		conditions = append(conditions, "account = ?")
		args = append(args, account)
	}
	if status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*status))
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY expiration_date DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query options positions: %w", err)
	}
	defer rows.Close()

	details := []OptionsPositionDetail{}
	for rows.Next() {
		o, err := scanOptionsPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan options position: %w", err)
		}
		details = append(details, toOptionsDetail(o))
	}
	return details, rows.Err()
}

func (s *optionsServiceImpl) GetOptionsPositionByID(id int64) (*OptionsPositionDetail, error) {
	o, err := s.loadOptionsPosition(s.db, id)
	if err != nil {
		return nil, err
	}
	detail := toOptionsDetail(o)
	return &detail, nil
}

// CreateCoveredCall sells calls against an existing stock position. Every open
// call already written on the position counts against the available shares.
func (s *optionsServiceImpl) CreateCoveredCall(req CreateCoveredCallRequest) (*OptionsPositionDetail, error) {
	row := s.db.QueryRow("SELECT "+positionColumns+" FROM positions WHERE id = ?", req.PositionID)
	position, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load position %d: %w", req.PositionID, err)
	}

	var existingContracts int
	err = s.db.QueryRow(`
		SELECT COALESCE(SUM(contracts), 0) FROM options_positions
		WHERE underlying_position_id = ? AND status = ?`,
		req.PositionID, string(models.StatusOpen)).Scan(&existingContracts)
	if err != nil {
		return nil, fmt.Errorf("failed to count open covered calls: %w", err)
	}

	requiredShares := float64(existingContracts+req.Contracts) * 100
	if position.Quantity < requiredShares {
		return nil, fmt.Errorf("%w: have %v, need %v", ErrInsufficientShares, position.Quantity, requiredShares)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.Exec(`
		INSERT INTO options_positions (
			underlying_symbol, option_type, strategy, strike_price, expiration_date,
			contracts, premium_per_contract, current_price, open_date, status, account,
			underlying_position_id, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		position.Symbol, string(models.OptionCall), string(models.StrategyCoveredCall),
		req.StrikePrice, req.ExpirationDate.UTC().Format(time.RFC3339),
		req.Contracts, req.PremiumPerContract, req.PremiumPerContract,
		now, string(models.StatusOpen), position.Account,
		req.PositionID, validation.SanitizeText(req.Notes))
	if err != nil {
		return nil, fmt.Errorf("failed to create covered call: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read covered call id: %w", err)
	}

	s.invalidateDashboard()
	return s.GetOptionsPositionByID(id)
}

func (s *optionsServiceImpl) CreateCashSecuredPut(req CreateCashSecuredPutRequest) (*OptionsPositionDetail, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.Exec(`
		INSERT INTO options_positions (
			underlying_symbol, option_type, strategy, strike_price, expiration_date,
			contracts, premium_per_contract, current_price, open_date, status, account, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.UnderlyingSymbol, string(models.OptionPut), string(models.StrategyCashSecuredPut),
		req.StrikePrice, req.ExpirationDate.UTC().Format(time.RFC3339),
		req.Contracts, req.PremiumPerContract, req.PremiumPerContract,
		now, string(models.StatusOpen), req.Account, validation.SanitizeText(req.Notes))
	if err != nil {
		return nil, fmt.Errorf("failed to create cash-secured put: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read cash-secured put id: %w", err)
	}

	s.invalidateDashboard()
	return s.GetOptionsPositionByID(id)
}

// RollOption closes an open position with status Rolled and opens its
// replacement, linking the two and recording the net credit, in one database
// transaction.
func (s *optionsServiceImpl) RollOption(req RollOptionRequest) (*models.RollSummary, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin roll transaction: %w", err)
	}
	defer tx.Rollback()

	old, err := s.loadOptionsPosition(tx, req.OptionsPositionID)
	if err != nil {
		return nil, err
	}
	if old.Status != models.StatusOpen {
		return nil, ErrPositionNotOpen
	}

	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339)

	_, err = tx.Exec(`
		UPDATE options_positions
		SET status = ?, close_date = ?, current_price = ?
		WHERE id = ?`,
		string(models.StatusRolled), nowStr, req.ClosingPremium, old.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to close rolled position: %w", err)
	}

	notes := validation.SanitizeText(req.Notes)
	newNotes := notes
	if newNotes == "" {
		newNotes = fmt.Sprintf("Rolled from %v exp %s", old.StrikePrice, old.ExpirationDate.Format("01/02/2006"))
	}

	var underlyingPositionID any
	if old.UnderlyingPositionID != nil {
		underlyingPositionID = *old.UnderlyingPositionID
	}

	result, err := tx.Exec(`
		INSERT INTO options_positions (
			underlying_symbol, option_type, strategy, strike_price, expiration_date,
			contracts, premium_per_contract, current_price, open_date, status, account,
			underlying_position_id, rolled_from_id, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		old.UnderlyingSymbol, string(old.OptionType), string(old.Strategy),
		req.NewStrikePrice, req.NewExpirationDate.UTC().Format(time.RFC3339),
		old.Contracts, req.NewPremiumPerContract, req.NewPremiumPerContract,
		nowStr, string(models.StatusOpen), old.Account,
		underlyingPositionID, old.ID, newNotes)
	if err != nil {
		return nil, fmt.Errorf("failed to create rolled-to position: %w", err)
	}
	newID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read rolled-to position id: %w", err)
	}

	_, err = tx.Exec("UPDATE options_positions SET rolled_to_id = ? WHERE id = ?", newID, old.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to link rolled position: %w", err)
	}

	premiumCollected := float64(old.Contracts) * req.NewPremiumPerContract * 100
	premiumPaid := req.ClosingPremium * float64(old.Contracts) * 100
	netCredit := premiumCollected - premiumPaid

	rollResult, err := tx.Exec(`
		INSERT INTO roll_history (from_options_position_id, to_options_position_id, roll_date, net_credit, notes)
		VALUES (?, ?, ?, ?, ?)`,
		old.ID, newID, nowStr, netCredit, notes)
	if err != nil {
		return nil, fmt.Errorf("failed to record roll history: %w", err)
	}
	rollID, err := rollResult.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read roll history id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit roll: %w", err)
	}

	logger.L.Info("Rolled options position",
		"fromID", old.ID, "toID", newID,
		"symbol", old.UnderlyingSymbol, "netCredit", netCredit)
	s.invalidateDashboard()

	newPosition, err := s.loadOptionsPosition(s.db, newID)
	if err != nil {
		return nil, err
	}
	oldClosed := *old
	oldClosed.Status = models.StatusRolled
	oldClosed.CloseDate = &now
	oldClosed.CurrentPrice = req.ClosingPremium
	oldClosed.RolledToID = &newID

	summary := models.NewRollSummary(models.RollHistory{
		ID:                    rollID,
		FromOptionsPositionID: old.ID,
		ToOptionsPositionID:   newID,
		RollDate:              now,
		NetCredit:             netCredit,
		Notes:                 notes,
	}, &oldClosed, newPosition)
	return &summary, nil
}

func (s *optionsServiceImpl) GetRollHistory(optionsPositionID *int64) ([]models.RollSummary, error) {
	query := "SELECT id, from_options_position_id, to_options_position_id, roll_date, net_credit, notes FROM roll_history"
	var args []any
	if optionsPositionID != nil {
		query += " WHERE from_options_position_id = ? OR to_options_position_id = ?"
		args = append(args, *optionsPositionID, *optionsPositionID)
	}
	query += " ORDER BY roll_date DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query roll history: %w", err)
	}
	defer rows.Close()

	// Drain the cursor before loading the linked positions: an open rows
	// cursor holds its pool connection, and a nested query would wait on it
	// forever with a single-connection pool.
	var history []models.RollHistory
	for rows.Next() {
		var rh models.RollHistory
		var rollDate string
		if err := rows.Scan(&rh.ID, &rh.FromOptionsPositionID, &rh.ToOptionsPositionID, &rollDate, &rh.NetCredit, &rh.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan roll history: %w", err)
		}
		rh.RollDate = parseDBTime(rollDate)
		history = append(history, rh)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	summaries := []models.RollSummary{}
	for _, rh := range history {
		from, err := s.loadOptionsPosition(s.db, rh.FromOptionsPositionID)
		if err != nil && err != ErrOptionsPositionNotFound {
			return nil, err
		}
		to, err := s.loadOptionsPosition(s.db, rh.ToOptionsPositionID)
		if err != nil && err != ErrOptionsPositionNotFound {
			return nil, err
		}
		summaries = append(summaries, models.NewRollSummary(rh, from, to))
	}
	return summaries, nil
}

func (s *optionsServiceImpl) ClosePosition(id int64, closingPrice float64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.Exec(`
		UPDATE options_positions
		SET status = ?, close_date = ?, current_price = ?
		WHERE id = ?`,
		string(models.StatusClosed), now, closingPrice, id)
	if err != nil {
		return fmt.Errorf("failed to close options position %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOptionsPositionNotFound
	}

	s.invalidateDashboard()
	return nil
}

// GetDashboardSummary aggregates portfolio totals. Results are cached per
// account; mutations flush the cache.
func (s *optionsServiceImpl) GetDashboardSummary(account string) (*DashboardSummary, error) {
	cacheKey := "dashboard_summary:" + account
	if cached, found := s.dashboardCache.Get(cacheKey); found {
		if summary, ok := cached.(*DashboardSummary); ok {
			logger.L.Debug("Dashboard summary served from cache", "account", account)
			return summary, nil
		}
	}

	positions, err := s.allPositions(account)
	if err != nil {
		return nil, err
	}
	openOptions, err := s.openOptions(account)
	if err != nil {
		return nil, err
	}

	summary := &DashboardSummary{
		PositionsCount:  len(positions),
		TopPositions:    []PositionDetail{},
		ExpiringOptions: []OptionsPositionDetail{},
	}

	for _, p := range positions {
		summary.TotalPortfolioValue += p.MarketValue()
		summary.TotalUnrealizedPnL += p.UnrealizedPnL()
	}
	for _, o := range openOptions {
		summary.TotalUnrealizedPnL += o.UnrealizedPnL()
		switch o.Strategy {
		case models.StrategyCoveredCall:
			summary.ActiveCoveredCalls++
			summary.TotalPremiumCollected += o.TotalPremiumCollected()
		case models.StrategyCashSecuredPut:
			summary.ActiveCashSecuredPuts++
			summary.TotalPremiumCollected += o.TotalPremiumCollected()
		}
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].MarketValue() > positions[j].MarketValue()
	})
	for i, p := range positions {
		if i >= 5 {
			break
		}
		summary.TopPositions = append(summary.TopPositions, PositionDetail{
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
		})
	}

	sort.Slice(openOptions, func(i, j int) bool {
		return openOptions[i].ExpirationDate.Before(openOptions[j].ExpirationDate)
	})
	for _, o := range openOptions {
		if o.DaysToExpiration() <= 7 {
			summary.ExpiringOptions = append(summary.ExpiringOptions, toOptionsDetail(o))
		}
	}

	s.dashboardCache.Set(cacheKey, summary, cache.DefaultExpiration)
	return summary, nil
}

func (s *optionsServiceImpl) invalidateDashboard() {
	s.dashboardCache.Flush()
}

// queryer lets the loaders run against either the pool or a transaction.
type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

func (s *optionsServiceImpl) loadOptionsPosition(q queryer, id int64) (*models.OptionsPosition, error) {
	row := q.QueryRow("SELECT "+optionsPositionColumns+" FROM options_positions WHERE id = ?", id)
	o, err := scanOptionsPosition(row)
	if err == sql.ErrNoRows {
		return nil, ErrOptionsPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load options position %d: %w", id, err)
	}
	return o, nil
}

func (s *optionsServiceImpl) allPositions(account string) ([]*models.Position, error) {
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

	var positions []*models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *optionsServiceImpl) openOptions(account string) ([]*models.OptionsPosition, error) {
	query := "SELECT " + optionsPositionColumns + " FROM options_positions WHERE status = ?"
	args := []any{string(models.StatusOpen)}
	if account != "" {
		query += " AND account = ?"
		args = append(args, account)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query open options positions: %w", err)
	}
	defer rows.Close()

	var options []*models.OptionsPosition
	for rows.Next() {
		o, err := scanOptionsPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan options position: %w", err)
		}
		options = append(options, o)
	}
	return options, rows.Err()
}

func toOptionsDetail(o *models.OptionsPosition) OptionsPositionDetail {
	return OptionsPositionDetail{
		ID:                    o.ID,
		UnderlyingSymbol:      o.UnderlyingSymbol,
		OptionType:            string(o.OptionType),
		Strategy:              string(o.Strategy),
		StrikePrice:           o.StrikePrice,
		ExpirationDate:        o.ExpirationDate,
		Contracts:             o.Contracts,
		PremiumPerContract:    o.PremiumPerContract,
		CurrentPrice:          o.CurrentPrice,
		TotalPremiumCollected: o.TotalPremiumCollected(),
		CurrentValue:          o.CurrentValue(),
		UnrealizedPnL:         o.UnrealizedPnL(),
		OpenDate:              o.OpenDate,
		CloseDate:             o.CloseDate,
		Status:                string(o.Status),
		Account:               o.Account,
		UnderlyingPositionID:  o.UnderlyingPositionID,
		DaysToExpiration:      o.DaysToExpiration(),
		RequiredCapital:       o.RequiredCapital(),
		Notes:                 o.Notes,
		IsRolled:              o.RolledToID != nil,
		RolledFromID:          o.RolledFromID,
		RolledToID:            o.RolledToID,
	}
}
