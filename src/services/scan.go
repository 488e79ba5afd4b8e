package services

import (
	"database/sql"
	"time"

	"github.com/username/optionstracker/backend/src/models"
)

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// dbTimeFormats: RFC3339 is what we write; the CURRENT_TIMESTAMP default and
// bare dates cover rows sqlite produced on its own.
var dbTimeFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDBTime(s string) time.Time {
	for _, format := range dbTimeFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

const positionColumns = "id, symbol, quantity, average_cost, current_price, last_updated, account"

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	var lastUpdated string
	err := row.Scan(&p.ID, &p.Symbol, &p.Quantity, &p.AverageCost, &p.CurrentPrice, &lastUpdated, &p.Account)
	if err != nil {
		return nil, err
	}
	p.LastUpdated = parseDBTime(lastUpdated)
	return &p, nil
}

const optionsPositionColumns = `id, underlying_symbol, option_type, strategy, strike_price,
	expiration_date, contracts, premium_per_contract, current_price, open_date, close_date,
	status, account, underlying_position_id, rolled_from_id, rolled_to_id, notes`

func scanOptionsPosition(row rowScanner) (*models.OptionsPosition, error) {
	var o models.OptionsPosition
	var optionType, strategy, status string
	var expirationDate, openDate string
	var closeDate sql.NullString
	var underlyingPositionID, rolledFromID, rolledToID sql.NullInt64

	err := row.Scan(&o.ID, &o.UnderlyingSymbol, &optionType, &strategy, &o.StrikePrice,
		&expirationDate, &o.Contracts, &o.PremiumPerContract, &o.CurrentPrice, &openDate, &closeDate,
		&status, &o.Account, &underlyingPositionID, &rolledFromID, &rolledToID, &o.Notes)
	if err != nil {
		return nil, err
	}

	o.OptionType = models.OptionType(optionType)
	o.Strategy = models.OptionStrategy(strategy)
	o.Status = models.PositionStatus(status)
	o.ExpirationDate = parseDBTime(expirationDate)
	o.OpenDate = parseDBTime(openDate)
	if closeDate.Valid {
		t := parseDBTime(closeDate.String)
		o.CloseDate = &t
	}
	if underlyingPositionID.Valid {
		o.UnderlyingPositionID = &underlyingPositionID.Int64
	}
	if rolledFromID.Valid {
		o.RolledFromID = &rolledFromID.Int64
	}
	if rolledToID.Valid {
		o.RolledToID = &rolledToID.Int64
	}
	return &o, nil
}
