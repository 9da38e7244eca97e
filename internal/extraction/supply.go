package extraction

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"ledgermeta/internal/models"
)

// Issued returns the amounts a trustline's balance puts into circulation.
// A positive balance is held by the low account and issued by the high one;
// a negative balance the other way round.
func Issued(fields map[string]any) ([]models.SupplyDelta, error) {
	balance, ok, err := issuedValue(fields, "Balance")
	if err != nil || !ok || balance.IsZero() {
		return nil, err
	}
	currency := currencyOf(fields, "Balance")
	if currency == "" {
		return nil, fmt.Errorf("trustline balance without currency")
	}

	issuer := limitIssuer(fields, "HighLimit")
	if balance.IsNegative() {
		issuer = limitIssuer(fields, "LowLimit")
		balance = balance.Neg()
	}
	if issuer == "" {
		return nil, fmt.Errorf("trustline without limit accounts")
	}
	return []models.SupplyDelta{{
		Token: models.Token{Currency: currency, Issuer: issuer},
		Delta: balance,
	}}, nil
}

// SupplyDeltas sums the change of issued supply per token caused by tx
func SupplyDeltas(tx *models.Transaction) ([]models.SupplyDelta, error) {
	if !tx.Successful() {
		return nil, nil
	}

	totals := make(map[models.Token]decimal.Decimal)
	add := func(fields map[string]any, sign int64) error {
		issued, err := Issued(fields)
		if err != nil {
			return err
		}
		for _, d := range issued {
			totals[d.Token] = totals[d.Token].Add(d.Delta.Mul(decimal.NewFromInt(sign)))
		}
		return nil
	}

	for i := range tx.Meta.AffectedNodes {
		node := &tx.Meta.AffectedNodes[i]
		if node.LedgerEntryType != "RippleState" {
			continue
		}

		var before, after map[string]any
		switch node.NodeType {
		case models.NodeCreated:
			after = node.NewFields
		case models.NodeModified:
			if _, changed := node.PreviousFields["Balance"]; !changed {
				continue
			}
			after = node.FinalFields
			before = withBalance(node.FinalFields, node.PreviousFields["Balance"])
		case models.NodeDeleted:
			before = node.FinalFields
			if b, changed := node.PreviousFields["Balance"]; changed {
				before = withBalance(node.FinalFields, b)
			}
		}

		if err := add(before, -1); err != nil {
			return nil, fmt.Errorf("trustline %s in %s: %w", node.LedgerIndex, tx.Hash, err)
		}
		if err := add(after, 1); err != nil {
			return nil, fmt.Errorf("trustline %s in %s: %w", node.LedgerIndex, tx.Hash, err)
		}
	}

	deltas := make([]models.SupplyDelta, 0, len(totals))
	for token, delta := range totals {
		if delta.IsZero() {
			continue
		}
		deltas = append(deltas, models.SupplyDelta{Token: token, Delta: delta})
	}
	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].Token.Currency != deltas[j].Token.Currency {
			return deltas[i].Token.Currency < deltas[j].Token.Currency
		}
		return deltas[i].Token.Issuer < deltas[j].Token.Issuer
	})
	return deltas, nil
}

func withBalance(fields map[string]any, balance any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	out["Balance"] = balance
	return out
}
