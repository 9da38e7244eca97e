package extraction

import (
	"fmt"

	"ledgermeta/internal/models"
	"ledgermeta/internal/xrpl"
)

// Fill is one offer consumed, fully or partially, by a transaction.
// The taker received Gets and paid Pays.
type Fill struct {
	TxHash     string
	OfferIndex string
	Maker      string
	Taker      string
	Gets       xrpl.Amount
	Pays       xrpl.Amount
}

// Fills lists the offers tx consumed. Offers removed without a change of
// their amounts (cancels, expiry) are not fills.
func Fills(tx *models.Transaction) ([]Fill, error) {
	if !tx.Successful() {
		return nil, nil
	}

	var fills []Fill
	for i := range tx.Meta.AffectedNodes {
		node := &tx.Meta.AffectedNodes[i]
		if node.LedgerEntryType != "Offer" || node.NodeType == models.NodeCreated {
			continue
		}
		prev := node.PreviousFields
		if prev == nil || prev["TakerGets"] == nil || prev["TakerPays"] == nil {
			continue
		}
		final := node.FinalFields

		gets, err := consumed(prev["TakerGets"], final["TakerGets"])
		if err != nil {
			return nil, fmt.Errorf("offer %s in %s: %w", node.LedgerIndex, tx.Hash, err)
		}
		pays, err := consumed(prev["TakerPays"], final["TakerPays"])
		if err != nil {
			return nil, fmt.Errorf("offer %s in %s: %w", node.LedgerIndex, tx.Hash, err)
		}
		if !gets.Value.IsPositive() || !pays.Value.IsPositive() {
			continue
		}

		fills = append(fills, Fill{
			TxHash:     tx.Hash,
			OfferIndex: node.LedgerIndex,
			Maker:      stringField(final, "Account"),
			Taker:      tx.Account,
			Gets:       gets,
			Pays:       pays,
		})
	}
	return fills, nil
}

func consumed(before, after any) (xrpl.Amount, error) {
	prev, err := xrpl.ParseAmount(before)
	if err != nil {
		return xrpl.Amount{}, err
	}
	if after == nil {
		return prev, nil
	}
	rest, err := xrpl.ParseAmount(after)
	if err != nil {
		return xrpl.Amount{}, err
	}
	prev.Value = prev.Value.Sub(rest.Value)
	return prev, nil
}

// Exchange converts a fill into an exchange of base Gets against quote Pays.
// base and quote carry the stored token ids.
func (f Fill) Exchange(ledgerIndex uint32, base, quote models.Token) models.Exchange {
	return models.Exchange{
		TxHash:         f.TxHash,
		OfferIndex:     f.OfferIndex,
		LedgerSequence: ledgerIndex,
		Base:           base,
		Quote:          quote,
		Price:          f.Pays.Value.Div(f.Gets.Value),
		Volume:         f.Gets.Value,
		Maker:          f.Maker,
		Taker:          f.Taker,
	}
}
