// Package extraction derives state changes, offer fills and supply deltas
// from transaction metadata.
package extraction

import (
	"fmt"

	"github.com/shopspring/decimal"
)

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

// issuedValue reads the value of an issued amount field such as a trustline balance
func issuedValue(fields map[string]any, key string) (decimal.Decimal, bool, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return decimal.Zero, false, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return decimal.Zero, false, fmt.Errorf("%s is %T, not an issued amount", key, raw)
	}
	s, _ := m["value"].(string)
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("invalid %s value %q: %w", key, s, err)
	}
	return v, true, nil
}

// limitIssuer returns the account holding one side of a trustline
func limitIssuer(fields map[string]any, key string) string {
	m, _ := fields[key].(map[string]any)
	s, _ := m["issuer"].(string)
	return s
}

func currencyOf(fields map[string]any, key string) string {
	m, _ := fields[key].(map[string]any)
	s, _ := m["currency"].(string)
	return s
}
