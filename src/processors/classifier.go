// Package processors holds the broker-independent transaction logic: action
// classification and position reconciliation. Parsers and services depend on
// it; it depends only on models and the database layer.
package processors

import (
	"strings"

	"github.com/username/optionstracker/backend/src/models"
)

// optionContext restricts a rule to option rows, stock rows, or neither.
type optionContext int

const (
	anyContext optionContext = iota
	optionsOnly
	stocksOnly
)

// actionRule maps a phrase found in a broker action field to a classifier
// label. Rules are evaluated in order and the first match wins, so broad
// phrases ("YOU BOUGHT") must be constrained or listed after narrow ones.
type actionRule struct {
	phrase  string
	context optionContext
	label   string
}

var fidelityRules = []actionRule{
	{"YOU BOUGHT", stocksOnly, "BuyStock"},
	{"YOU SOLD", stocksOnly, "SellStock"},
	{"YOU BOUGHT", optionsOnly, "BuyToOpen"},
	{"YOU SOLD", optionsOnly, "SellToOpen"},
	{"OPENING TRANSACTION", anyContext, "SellToOpen"},
	{"CLOSING TRANSACTION", anyContext, "BuyToClose"},
	{"ASSIGNMENT", anyContext, "OptionAssigned"},
	{"EXERCISE", anyContext, "OptionExercised"},
	{"EXPIRED", anyContext, "OptionExpired"},
	{"DIVIDEND", anyContext, "Dividend"},
}

var schwabRules = []actionRule{
	{"BUY TO OPEN", anyContext, "BuyToOpen"},
	{"SELL TO OPEN", anyContext, "SellToOpen"},
	{"BUY TO CLOSE", anyContext, "BuyToClose"},
	{"SELL TO CLOSE", anyContext, "SellToClose"},
	{"ASSIGNED", anyContext, "OptionAssigned"},
	{"EXERCISED", anyContext, "OptionExercised"},
	{"EXPIRED", anyContext, "OptionExpired"},
	{"DIVIDEND", anyContext, "Dividend"},
	{"BUY", stocksOnly, "BuyStock"},
	{"SELL", stocksOnly, "SellStock"},
	{"BUY", optionsOnly, "BuyToOpen"},
	{"SELL", optionsOnly, "SellToOpen"},
}

// ClassifyFidelity labels a Fidelity action. Unmatched actions pass through
// unchanged so nothing is silently dropped at parse time.
func ClassifyFidelity(action string, isOption bool) string {
	return classify(fidelityRules, action, isOption)
}

// ClassifySchwab labels a Schwab action. The explicit open/close phrases must
// win before the bare BUY/SELL rules, which is why rule order matters here.
func ClassifySchwab(action string, isOption bool) string {
	return classify(schwabRules, action, isOption)
}

func classify(rules []actionRule, action string, isOption bool) string {
	upper := strings.ToUpper(action)
	for _, r := range rules {
		if !strings.Contains(upper, r.phrase) {
			continue
		}
		switch r.context {
		case optionsOnly:
			if !isOption {
				continue
			}
		case stocksOnly:
			if isOption {
				continue
			}
		}
		return r.label
	}
	return action
}

// ParseTransactionType converts a classifier label into the persisted
// transaction type. Labels that match no known type, including raw broker
// actions passed through by the classifiers, default to BuyStock.
func ParseTransactionType(label string) models.TransactionType {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "BUYSTOCK":
		return models.TypeBuyStock
	case "SELLSTOCK":
		return models.TypeSellStock
	case "BUYTOOPEN":
		return models.TypeBuyToOpen
	case "SELLTOOPEN":
		return models.TypeSellToOpen
	case "BUYTOCLOSE":
		return models.TypeBuyToClose
	case "SELLTOCLOSE":
		return models.TypeSellToClose
	case "OPTIONASSIGNED":
		return models.TypeOptionAssigned
	case "OPTIONEXERCISED":
		return models.TypeOptionExercised
	case "OPTIONEXPIRED":
		return models.TypeOptionExpired
	case "DIVIDEND":
		return models.TypeDividend
	case "FEE":
		return models.TypeFee
	case "COMMISSION":
		return models.TypeCommission
	default:
		return models.TypeBuyStock
	}
}
