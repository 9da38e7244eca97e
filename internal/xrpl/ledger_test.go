package xrpl

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgermeta/internal/models"
)

const expandedLedger = `{
  "ledger_index": 200,
  "validated": true,
  "ledger": {
    "ledger_index": "200",
    "ledger_hash": "HASH200",
    "parent_hash": "HASH199",
    "close_time": 10,
    "transactions": [
      {
        "hash": "TX1",
        "TransactionType": "OfferCreate",
        "Account": "rTaker",
        "Fee": "12",
        "metaData": {
          "TransactionIndex": 0,
          "TransactionResult": "tesSUCCESS",
          "AffectedNodes": [
            {"ModifiedNode": {"LedgerEntryType": "AccountRoot", "LedgerIndex": "AR1",
              "FinalFields": {"Balance": "88"}, "PreviousFields": {"Balance": "100"}}},
            {"DeletedNode": {"LedgerEntryType": "Offer", "LedgerIndex": "OF1",
              "FinalFields": {"Account": "rMaker"}}},
            {"CreatedNode": {"LedgerEntryType": "DirectoryNode", "LedgerIndex": "DN1",
              "NewFields": {"Owner": "rTaker"}}}
          ]
        }
      }
    ]
  }
}`

type staticRequester struct {
	result string
	req    Request
}

func (r *staticRequester) Request(ctx context.Context, req Request) (*Response, error) {
	r.req = req
	return &Response{Result: json.RawMessage(r.result), Node: "ws://a"}, nil
}

func TestFetchLedger(t *testing.T) {
	r := &staticRequester{result: expandedLedger}

	ledger, err := FetchLedger(context.Background(), r, 200)
	require.NoError(t, err)

	assert.Equal(t, true, r.req.Params["expand"])
	assert.Equal(t, true, r.req.Params["transactions"])
	assert.Equal(t, uint32(200), ledger.Index)
	assert.Equal(t, "HASH199", ledger.ParentHash)
	assert.Equal(t, int64(rippleEpoch+10), ledger.CloseTime.Unix())

	require.Len(t, ledger.Transactions, 1)
	tx := ledger.Transactions[0]
	assert.Equal(t, "OfferCreate", tx.Type)
	assert.True(t, tx.Successful())
	require.Len(t, tx.Meta.AffectedNodes, 3)

	nodes := tx.Meta.AffectedNodes
	assert.Equal(t, models.NodeModified, nodes[0].NodeType)
	assert.Equal(t, "88", nodes[0].Fields()["Balance"])
	assert.Equal(t, "100", nodes[0].PreviousFields["Balance"])
	assert.Equal(t, models.NodeDeleted, nodes[1].NodeType)
	assert.Equal(t, models.NodeCreated, nodes[2].NodeType)
	assert.Equal(t, "rTaker", nodes[2].Fields()["Owner"])
}

func TestFetchLedger_IndexMismatch(t *testing.T) {
	r := &staticRequester{result: expandedLedger}
	_, err := FetchLedger(context.Background(), r, 201)
	assert.Error(t, err)
}

func TestValidatedLedgerIndex(t *testing.T) {
	r := &staticRequester{result: `{"ledger_index": 77, "ledger": {"ledger_index": "77"}}`}
	index, node, err := ValidatedLedgerIndex(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, uint32(77), index)
	assert.Equal(t, "ws://a", node)
	assert.Equal(t, "validated", r.req.Params["ledger_index"])
}

func TestParseAmount(t *testing.T) {
	xrp, err := ParseAmount("2500000")
	require.NoError(t, err)
	assert.Equal(t, models.NativeCurrency, xrp.Currency)
	assert.Empty(t, xrp.Issuer)
	assert.True(t, xrp.Value.Equal(decimal.NewFromFloat(2.5)))

	iou, err := ParseAmount(map[string]any{"currency": "USD", "issuer": "rIssuer", "value": "-12.75"})
	require.NoError(t, err)
	assert.Equal(t, models.Token{Currency: "USD", Issuer: "rIssuer"}, iou.Token())
	assert.True(t, iou.Value.Equal(decimal.RequireFromString("-12.75")))

	_, err = ParseAmount(map[string]any{"currency": "USD"})
	assert.Error(t, err)
	_, err = ParseAmount(nil)
	assert.Error(t, err)
	_, err = ParseAmount(12.5)
	assert.Error(t, err)
}

func TestRemoteError_Recoverable(t *testing.T) {
	assert.True(t, (&RemoteError{Code: "tooBusy"}).Recoverable())
	assert.False(t, (&RemoteError{Code: "actNotFound"}).Recoverable())
	assert.Contains(t, (&RemoteError{Command: "ledger", Code: "lgrNotFound", Message: "ledger not found"}).Error(), "lgrNotFound")
}
