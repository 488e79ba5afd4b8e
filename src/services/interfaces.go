// Package services holds the application logic between the HTTP handlers and
// the database: CSV import orchestration, stock position upkeep, and the
// options position lifecycle (covered calls, cash-secured puts, rolls).
package services

import (
	"io"
	"time"

	"github.com/username/optionstracker/backend/src/models"
)

// ImportResult is what one CSV import call reports back. Errors are fatal to
// the import (unsupported broker, unreadable file); warnings are per-row
// problems that did not stop the rest of the file.
type ImportResult struct {
	Success              bool     `json:"success"`
	TransactionsImported int      `json:"transactions_imported"`
	Errors               []string `json:"errors"`
	Warnings             []string `json:"warnings"`
	Message              string   `json:"message"`
}

// PositionDetail is a Position with its derived metrics materialized for the
// API layer.
type PositionDetail struct {
	ID                   int64     `json:"id"`
	Symbol               string    `json:"symbol"`
	Quantity             float64   `json:"quantity"`
	AverageCost          float64   `json:"average_cost"`
	CurrentPrice         float64   `json:"current_price"`
	TotalCost            float64   `json:"total_cost"`
	MarketValue          float64   `json:"market_value"`
	UnrealizedPnL        float64   `json:"unrealized_pnl"`
	UnrealizedPnLPercent float64   `json:"unrealized_pnl_percent"`
	LastUpdated          time.Time `json:"last_updated"`
	Account              string    `json:"account"`
	CoveredCallsCount    int       `json:"covered_calls_count"`
}

// OptionsPositionDetail is an OptionsPosition with derived metrics.
type OptionsPositionDetail struct {
	ID                    int64      `json:"id"`
	UnderlyingSymbol      string     `json:"underlying_symbol"`
	OptionType            string     `json:"option_type"`
	Strategy              string     `json:"strategy"`
	StrikePrice           float64    `json:"strike_price"`
	ExpirationDate        time.Time  `json:"expiration_date"`
	Contracts             int        `json:"contracts"`
	PremiumPerContract    float64    `json:"premium_per_contract"`
	CurrentPrice          float64    `json:"current_price"`
	TotalPremiumCollected float64    `json:"total_premium_collected"`
	CurrentValue          float64    `json:"current_value"`
	UnrealizedPnL         float64    `json:"unrealized_pnl"`
	OpenDate              time.Time  `json:"open_date"`
	CloseDate             *time.Time `json:"close_date,omitempty"`
	Status                string     `json:"status"`
	Account               string     `json:"account"`
	UnderlyingPositionID  *int64     `json:"underlying_position_id,omitempty"`
	DaysToExpiration      int        `json:"days_to_expiration"`
	RequiredCapital       float64    `json:"required_capital"`
	Notes                 string     `json:"notes"`
	IsRolled              bool       `json:"is_rolled"`
	RolledFromID          *int64     `json:"rolled_from_id,omitempty"`
	RolledToID            *int64     `json:"rolled_to_id,omitempty"`
}

// CreateCoveredCallRequest sells calls against an existing stock position.
type CreateCoveredCallRequest struct {
	PositionID         int64     `json:"position_id"`
	StrikePrice        float64   `json:"strike_price"`
	ExpirationDate     time.Time `json:"expiration_date"`
	Contracts          int       `json:"contracts"`
	PremiumPerContract float64   `json:"premium_per_contract"`
	Notes              string    `json:"notes"`
}

// CreateCashSecuredPutRequest opens a short put backed by cash.
type CreateCashSecuredPutRequest struct {
	UnderlyingSymbol   string    `json:"underlying_symbol"`
	StrikePrice        float64   `json:"strike_price"`
	ExpirationDate     time.Time `json:"expiration_date"`
	Contracts          int       `json:"contracts"`
	PremiumPerContract float64   `json:"premium_per_contract"`
	Account            string    `json:"account"`
	Notes              string    `json:"notes"`
}

// RollOptionRequest closes an open position and reopens it at a new strike
// and expiration in one step.
type RollOptionRequest struct {
	OptionsPositionID     int64     `json:"options_position_id"`
	ClosingPremium        float64   `json:"closing_premium"`
	NewStrikePrice        float64   `json:"new_strike_price"`
	NewExpirationDate     time.Time `json:"new_expiration_date"`
	NewPremiumPerContract float64   `json:"new_premium_per_contract"`
	Notes                 string    `json:"notes"`
}

// DashboardSummary aggregates the portfolio for the dashboard endpoint.
type DashboardSummary struct {
	TotalPortfolioValue   float64                 `json:"total_portfolio_value"`
	TotalUnrealizedPnL    float64                 `json:"total_unrealized_pnl"`
	TotalPremiumCollected float64                 `json:"total_premium_collected"`
	ActiveCoveredCalls    int                     `json:"active_covered_calls"`
	ActiveCashSecuredPuts int                     `json:"active_cash_secured_puts"`
	PositionsCount        int                     `json:"positions_count"`
	TopPositions          []PositionDetail        `json:"top_positions"`
	ExpiringOptions       []OptionsPositionDetail `json:"expiring_options"`
}

// ImportService is the CSV import orchestrator.
type ImportService interface {
	ImportCSV(file io.Reader, broker, account string) (*ImportResult, error)
}

// PositionService manages weighted-average stock positions.
type PositionService interface {
	GetAllPositions(account string) ([]PositionDetail, error)
	GetPositionByID(id int64) (*PositionDetail, error)
	CreateOrUpdate(symbol string, quantity, price float64, account string) (*models.Position, error)
	UpdatePrice(id int64, currentPrice float64) error
	Delete(id int64) error
}

// OptionsService manages the options position lifecycle.
type OptionsService interface {
	GetAllOptionsPositions(account string, status *models.PositionStatus) ([]OptionsPositionDetail, error)
	GetOptionsPositionByID(id int64) (*OptionsPositionDetail, error)
	CreateCoveredCall(req CreateCoveredCallRequest) (*OptionsPositionDetail, error)
	CreateCashSecuredPut(req CreateCashSecuredPutRequest) (*OptionsPositionDetail, error)
	RollOption(req RollOptionRequest) (*models.RollSummary, error)
	GetRollHistory(optionsPositionID *int64) ([]models.RollSummary, error)
	ClosePosition(id int64, closingPrice float64) error
	GetDashboardSummary(account string) (*DashboardSummary, error)
}
