package models

import (
	"strings"
	"time"
)

// TransactionType is the canonical classification of a financial event.
type TransactionType string

const (
	// Stock transactions
	TypeBuyStock  TransactionType = "BuyStock"
	TypeSellStock TransactionType = "SellStock"

	// Options transactions
	TypeBuyToOpen   TransactionType = "BuyToOpen"
	TypeSellToOpen  TransactionType = "SellToOpen"
	TypeBuyToClose  TransactionType = "BuyToClose"
	TypeSellToClose TransactionType = "SellToClose"

	// Assignment/Exercise
	TypeOptionAssigned  TransactionType = "OptionAssigned"
	TypeOptionExercised TransactionType = "OptionExercised"
	TypeOptionExpired   TransactionType = "OptionExpired"

	// Dividend
	TypeDividend TransactionType = "Dividend"

	// Other
	TypeFee        TransactionType = "Fee"
	TypeCommission TransactionType = "Commission"
	TypeUnknown    TransactionType = "Unknown"
)

// OptionType is the contract kind of an option.
type OptionType string

const (
	OptionCall OptionType = "Call"
	OptionPut  OptionType = "Put"
)

// OptionStrategy describes how an options position was opened.
type OptionStrategy string

const (
	StrategyLong           OptionStrategy = "Long"           // Bought option
	StrategyShort          OptionStrategy = "Short"          // Sold option
	StrategyCoveredCall    OptionStrategy = "CoveredCall"    // Short call with underlying stock
	StrategyCashSecuredPut OptionStrategy = "CashSecuredPut" // Short put with cash reserve
	StrategySpread         OptionStrategy = "Spread"         // Multi-leg strategy
)

// PositionStatus is the lifecycle state of an options position.
type PositionStatus string

const (
	StatusOpen      PositionStatus = "Open"
	StatusClosed    PositionStatus = "Closed"
	StatusExpired   PositionStatus = "Expired"
	StatusAssigned  PositionStatus = "Assigned"
	StatusExercised PositionStatus = "Exercised"
	StatusRolled    PositionStatus = "Rolled"
)

// IsShort reports whether the strategy collects premium up front.
func (s OptionStrategy) IsShort() bool {
	return s == StrategyShort || s == StrategyCoveredCall || s == StrategyCashSecuredPut
}

// Transaction is an immutable record of one financial event, appended by the
// import pipeline or the manual API paths.
type Transaction struct {
	ID                int64           `json:"id,omitempty"`
	Type              TransactionType `json:"type"`
	Symbol            string          `json:"symbol"`
	TransactionDate   time.Time       `json:"transaction_date"`
	Quantity          float64         `json:"quantity"`
	Price             float64         `json:"price"`
	Amount            float64         `json:"amount"`
	Fees              float64         `json:"fees"`
	Account           string          `json:"account"`
	OptionType        *OptionType     `json:"option_type,omitempty"`
	StrikePrice       *float64        `json:"strike_price,omitempty"`
	ExpirationDate    *time.Time      `json:"expiration_date,omitempty"`
	PositionID        *int64          `json:"position_id,omitempty"`
	OptionsPositionID *int64          `json:"options_position_id,omitempty"`
	Notes             string          `json:"notes"`
	Source            string          `json:"source"` // e.g. "Fidelity", "Schwab", "Manual"
	CreatedAt         time.Time       `json:"created_at"`
}

// Position is the weighted-average stock position for one symbol+account pair.
// Quantity zero means fully closed; the record is retained.
type Position struct {
	ID           int64     `json:"id"`
	Symbol       string    `json:"symbol"`
	Quantity     float64   `json:"quantity"`
	AverageCost  float64   `json:"average_cost"`
	CurrentPrice float64   `json:"current_price"`
	LastUpdated  time.Time `json:"last_updated"`
	Account      string    `json:"account"`
}

func (p *Position) TotalCost() float64 {
	return p.Quantity * p.AverageCost
}

func (p *Position) MarketValue() float64 {
	return p.Quantity * p.CurrentPrice
}

func (p *Position) UnrealizedPnL() float64 {
	return p.MarketValue() - p.TotalCost()
}

func (p *Position) UnrealizedPnLPercent() float64 {
	if p.TotalCost() == 0 {
		return 0
	}
	return p.UnrealizedPnL() / p.TotalCost() * 100
}

// OptionsPosition is one opened option contract slot.
type OptionsPosition struct {
	ID                   int64          `json:"id"`
	UnderlyingSymbol     string         `json:"underlying_symbol"`
	OptionType           OptionType     `json:"option_type"`
	Strategy             OptionStrategy `json:"strategy"`
	StrikePrice          float64        `json:"strike_price"`
	ExpirationDate       time.Time      `json:"expiration_date"`
	Contracts            int            `json:"contracts"`
	PremiumPerContract   float64        `json:"premium_per_contract"`
	CurrentPrice         float64        `json:"current_price"`
	OpenDate             time.Time      `json:"open_date"`
	CloseDate            *time.Time     `json:"close_date,omitempty"`
	Status               PositionStatus `json:"status"`
	Account              string         `json:"account"`
	UnderlyingPositionID *int64         `json:"underlying_position_id,omitempty"` // covered calls only
	RolledFromID         *int64         `json:"rolled_from_id,omitempty"`
	RolledToID           *int64         `json:"rolled_to_id,omitempty"`
	Notes                string         `json:"notes"`
}

// TotalPremiumCollected returns the full premium at open. Options are per 100 shares.
func (o *OptionsPosition) TotalPremiumCollected() float64 {
	return float64(o.Contracts) * o.PremiumPerContract * 100
}

func (o *OptionsPosition) CurrentValue() float64 {
	return float64(o.Contracts) * o.CurrentPrice * 100
}

// UnrealizedPnL is premium minus value for short-style strategies (we collected
// premium, so a falling mark is a gain), value minus premium for long ones.
func (o *OptionsPosition) UnrealizedPnL() float64 {
	if o.Strategy.IsShort() {
		return o.TotalPremiumCollected() - o.CurrentValue()
	}
	return o.CurrentValue() - o.TotalPremiumCollected()
}

// DaysToExpiration is calendar days from now to expiration; negative once past.
func (o *OptionsPosition) DaysToExpiration() int {
	now := time.Now().UTC().Truncate(24 * time.Hour)
	exp := o.ExpirationDate.UTC().Truncate(24 * time.Hour)
	return int(exp.Sub(now).Hours() / 24)
}

// RequiredCapital is the cash reserved for assignment; only cash-secured puts
// reserve anything.
func (o *OptionsPosition) RequiredCapital() float64 {
	if o.Strategy == StrategyCashSecuredPut {
		return float64(o.Contracts) * o.StrikePrice * 100
	}
	return 0
}

// RollHistory links a closed "from" position to its replacement "to" position.
type RollHistory struct {
	ID                    int64     `json:"id"`
	FromOptionsPositionID int64     `json:"from_options_position_id"`
	ToOptionsPositionID   int64     `json:"to_options_position_id"`
	RollDate              time.Time `json:"roll_date"`
	NetCredit             float64   `json:"net_credit"` // Positive = credit, Negative = debit
	Notes                 string    `json:"notes"`
}

// RollSummary is a RollHistory row with the metrics derived through the linked
// positions filled in.
type RollSummary struct {
	ID                    int64     `json:"id"`
	FromOptionsPositionID int64     `json:"from_options_position_id"`
	ToOptionsPositionID   int64     `json:"to_options_position_id"`
	RollDate              time.Time `json:"roll_date"`
	NetCredit             float64   `json:"net_credit"`
	OldStrike             float64   `json:"old_strike"`
	NewStrike             float64   `json:"new_strike"`
	OldExpiration         time.Time `json:"old_expiration"`
	NewExpiration         time.Time `json:"new_expiration"`
	DaysExtended          int       `json:"days_extended"`
	IsRollUp              bool      `json:"is_roll_up"`
	IsRollDown            bool      `json:"is_roll_down"`
	IsRollOut             bool      `json:"is_roll_out"`
	Notes                 string    `json:"notes"`
}

// NewRollSummary derives the roll metrics from the linked from/to positions.
func NewRollSummary(rh RollHistory, from, to *OptionsPosition) RollSummary {
	summary := RollSummary{
		ID:                    rh.ID,
		FromOptionsPositionID: rh.FromOptionsPositionID,
		ToOptionsPositionID:   rh.ToOptionsPositionID,
		RollDate:              rh.RollDate,
		NetCredit:             rh.NetCredit,
		Notes:                 rh.Notes,
	}
	if from != nil {
		summary.OldStrike = from.StrikePrice
		summary.OldExpiration = from.ExpirationDate
	}
	if to != nil {
		summary.NewStrike = to.StrikePrice
		summary.NewExpiration = to.ExpirationDate
	}
	oldExp := summary.OldExpiration.UTC().Truncate(24 * time.Hour)
	newExp := summary.NewExpiration.UTC().Truncate(24 * time.Hour)
	summary.DaysExtended = int(newExp.Sub(oldExp).Hours() / 24)
	summary.IsRollUp = summary.NewStrike > summary.OldStrike
	summary.IsRollDown = summary.NewStrike < summary.OldStrike
	summary.IsRollOut = newExp.After(oldExp)
	return summary
}

// ParsePositionStatus maps a query-string status onto the enum, case-insensitively.
func ParsePositionStatus(s string) (PositionStatus, bool) {
	for _, status := range []PositionStatus{
		StatusOpen, StatusClosed, StatusExpired, StatusAssigned, StatusExercised, StatusRolled,
	} {
		if strings.EqualFold(string(status), s) {
			return status, true
		}
	}
	return "", false
}
