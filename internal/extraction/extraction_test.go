package extraction

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgermeta/internal/models"
)

func transaction(t *testing.T, account, nodes string) *models.Transaction {
	t.Helper()
	var meta models.TransactionMeta
	require.NoError(t, json.Unmarshal([]byte(`{"TransactionResult":"tesSUCCESS","AffectedNodes":`+nodes+`}`), &meta))
	return &models.Transaction{
		Hash:    "TX1",
		Account: account,
		Type:    "OfferCreate",
		Result:  meta.TransactionResult,
		Meta:    meta,
	}
}

const offerFill = `[
	{"ModifiedNode": {
		"LedgerEntryType": "Offer",
		"LedgerIndex": "OFFER1",
		"FinalFields": {
			"Account": "rMaker",
			"TakerGets": {"currency": "USD", "issuer": "rIssuer", "value": "60"},
			"TakerPays": "30000000"
		},
		"PreviousFields": {
			"TakerGets": {"currency": "USD", "issuer": "rIssuer", "value": "100"},
			"TakerPays": "50000000"
		}
	}},
	{"DeletedNode": {
		"LedgerEntryType": "Offer",
		"LedgerIndex": "OFFER2",
		"FinalFields": {
			"Account": "rCanceller",
			"TakerGets": "1000",
			"TakerPays": {"currency": "EUR", "issuer": "rIssuer", "value": "1"}
		}
	}},
	{"ModifiedNode": {
		"LedgerEntryType": "AccountRoot",
		"LedgerIndex": "ACC1",
		"FinalFields": {"Account": "rTaker", "Balance": "900"},
		"PreviousFields": {"Balance": "1000"}
	}}
]`

func TestFills(t *testing.T) {
	tx := transaction(t, "rTaker", offerFill)

	fills, err := Fills(tx)
	require.NoError(t, err)
	require.Len(t, fills, 1, "a deleted offer without previous amounts was not consumed")

	f := fills[0]
	assert.Equal(t, "OFFER1", f.OfferIndex)
	assert.Equal(t, "rMaker", f.Maker)
	assert.Equal(t, "rTaker", f.Taker)
	assert.Equal(t, "USD", f.Gets.Currency)
	assert.True(t, decimal.NewFromInt(40).Equal(f.Gets.Value))
	assert.Equal(t, models.NativeCurrency, f.Pays.Currency)
	assert.True(t, decimal.NewFromInt(20).Equal(f.Pays.Value))

	e := f.Exchange(77, models.Token{ID: 2, Currency: "USD", Issuer: "rIssuer"}, models.Token{ID: 1, Currency: "XRP"})
	assert.Equal(t, uint32(77), e.LedgerSequence)
	assert.True(t, decimal.RequireFromString("0.5").Equal(e.Price), "price is XRP per USD")
	assert.True(t, decimal.NewFromInt(40).Equal(e.Volume))
}

func TestFills_FailedTransaction(t *testing.T) {
	tx := transaction(t, "rTaker", offerFill)
	tx.Result = "tecUNFUNDED_OFFER"

	fills, err := Fills(tx)
	require.NoError(t, err)
	assert.Empty(t, fills)
}

func trustline(balance, low, high string) map[string]any {
	return map[string]any{
		"Balance":   map[string]any{"currency": "USD", "issuer": "rrrrrrrrrrrrrrrrrrrrBZbvji", "value": balance},
		"LowLimit":  map[string]any{"currency": "USD", "issuer": low, "value": "0"},
		"HighLimit": map[string]any{"currency": "USD", "issuer": high, "value": "1000"},
	}
}

func TestIssued(t *testing.T) {
	tests := []struct {
		name    string
		balance string
		issuer  string
		amount  string
	}{
		{"positive balance is issued by high", "25", "rHigh", "25"},
		{"negative balance is issued by low", "-7.5", "rLow", "7.5"},
		{"zero balance issues nothing", "0", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issued, err := Issued(trustline(tt.balance, "rLow", "rHigh"))
			require.NoError(t, err)
			if tt.issuer == "" {
				assert.Empty(t, issued)
				return
			}
			require.Len(t, issued, 1)
			assert.Equal(t, tt.issuer, issued[0].Token.Issuer)
			assert.True(t, decimal.RequireFromString(tt.amount).Equal(issued[0].Delta))
		})
	}
}

func TestSupplyDeltas(t *testing.T) {
	nodes := `[
		{"ModifiedNode": {
			"LedgerEntryType": "RippleState",
			"LedgerIndex": "RS1",
			"FinalFields": {
				"Balance": {"currency": "USD", "issuer": "rrrrrrrrrrrrrrrrrrrrBZbvji", "value": "-3"},
				"LowLimit": {"currency": "USD", "issuer": "rLow", "value": "0"},
				"HighLimit": {"currency": "USD", "issuer": "rHigh", "value": "0"}
			},
			"PreviousFields": {
				"Balance": {"currency": "USD", "issuer": "rrrrrrrrrrrrrrrrrrrrBZbvji", "value": "5"}
			}
		}},
		{"CreatedNode": {
			"LedgerEntryType": "RippleState",
			"LedgerIndex": "RS2",
			"NewFields": {
				"Balance": {"currency": "USD", "issuer": "rrrrrrrrrrrrrrrrrrrrBZbvji", "value": "10"},
				"LowLimit": {"currency": "USD", "issuer": "rHolder", "value": "100"},
				"HighLimit": {"currency": "USD", "issuer": "rHigh", "value": "0"}
			}
		}},
		{"DeletedNode": {
			"LedgerEntryType": "RippleState",
			"LedgerIndex": "RS3",
			"FinalFields": {
				"Balance": {"currency": "EUR", "issuer": "rrrrrrrrrrrrrrrrrrrrBZbvji", "value": "0"},
				"LowLimit": {"currency": "EUR", "issuer": "rA", "value": "0"},
				"HighLimit": {"currency": "EUR", "issuer": "rEurIssuer", "value": "0"}
			},
			"PreviousFields": {
				"Balance": {"currency": "EUR", "issuer": "rrrrrrrrrrrrrrrrrrrrBZbvji", "value": "4"}
			}
		}}
	]`
	deltas, err := SupplyDeltas(transaction(t, "rA", nodes))
	require.NoError(t, err)

	got := map[models.Token]string{}
	for _, d := range deltas {
		got[d.Token] = d.Delta.String()
	}
	assert.Equal(t, map[models.Token]string{
		{Currency: "EUR", Issuer: "rEurIssuer"}: "-4",
		{Currency: "USD", Issuer: "rHigh"}:      "5",
		{Currency: "USD", Issuer: "rLow"}:       "3",
	}, got)
}

func TestStateChange_Apply(t *testing.T) {
	tx := transaction(t, "rTaker", offerFill)
	changes := StateChanges(tx)
	require.Len(t, changes, 3)
	assert.True(t, changes[1].Deleted())

	previous := &models.Entry{
		Index:   "ACC1",
		Type:    "AccountRoot",
		Payload: json.RawMessage(`{"index":"ACC1","LedgerEntryType":"AccountRoot","Account":"rTaker","Balance":"1000","Sequence":4}`),
	}
	next, err := changes[2].Apply(previous)
	require.NoError(t, err)
	assert.Equal(t, "ACC1", next.Index)
	assert.JSONEq(t,
		`{"index":"ACC1","LedgerEntryType":"AccountRoot","Account":"rTaker","Balance":"900","Sequence":4}`,
		string(next.Payload),
	)
}
