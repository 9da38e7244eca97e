package xrpl

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ledgermeta/internal/models"
)

var dropsPerXRP = decimal.New(1, 6)

// Amount is a value in a specific token. Issuer is empty for XRP.
type Amount struct {
	Currency string
	Issuer   string
	Value    decimal.Decimal
}

// Token returns the amount's token identity
func (a Amount) Token() models.Token {
	return models.Token{Currency: a.Currency, Issuer: a.Issuer}
}

// ParseAmount decodes an amount field: a drops string for XRP or an
// {currency, issuer, value} object for issued tokens.
func ParseAmount(v any) (Amount, error) {
	switch x := v.(type) {
	case string:
		drops, err := decimal.NewFromString(x)
		if err != nil {
			return Amount{}, fmt.Errorf("invalid drops amount %q: %w", x, err)
		}
		return Amount{Currency: models.NativeCurrency, Value: drops.Div(dropsPerXRP)}, nil
	case map[string]any:
		currency, _ := x["currency"].(string)
		issuer, _ := x["issuer"].(string)
		raw, _ := x["value"].(string)
		if currency == "" || raw == "" {
			return Amount{}, fmt.Errorf("issued amount missing currency or value: %v", x)
		}
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return Amount{}, fmt.Errorf("invalid issued amount %q: %w", raw, err)
		}
		if currency == models.NativeCurrency && issuer == "" {
			return Amount{Currency: currency, Value: value}, nil
		}
		return Amount{Currency: currency, Issuer: issuer, Value: value}, nil
	case nil:
		return Amount{}, fmt.Errorf("amount is missing")
	default:
		return Amount{}, fmt.Errorf("unsupported amount type %T", v)
	}
}

// ParseDrops parses a fee or balance expressed in drops
func ParseDrops(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid drops %q: %w", s, err)
	}
	return d.IntPart(), nil
}
