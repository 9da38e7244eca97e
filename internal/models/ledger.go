package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Node types found in transaction metadata
const (
	NodeCreated  = "CreatedNode"
	NodeModified = "ModifiedNode"
	NodeDeleted  = "DeletedNode"
)

// Ledger is a closed, validated ledger with its expanded transactions
type Ledger struct {
	Index        uint32        `json:"ledger_index"`
	Hash         string        `json:"ledger_hash"`
	ParentHash   string        `json:"parent_hash"`
	CloseTime    time.Time     `json:"close_time"`
	Transactions []Transaction `json:"transactions"`
}

// Transaction is a single transaction applied in a ledger
type Transaction struct {
	Hash        string          `json:"hash"`
	LedgerIndex uint32          `json:"ledger_index"`
	Type        string          `json:"type"`
	Account     string          `json:"account"`
	Fee         string          `json:"fee"` // drops
	Result      string          `json:"result"`
	Raw         json.RawMessage `json:"raw,omitempty"`
	Meta        TransactionMeta `json:"meta"`
}

// Successful reports whether the transaction was applied with tesSUCCESS
func (t *Transaction) Successful() bool {
	return t.Result == "tesSUCCESS"
}

// TransactionMeta holds the ledger changes caused by a transaction
type TransactionMeta struct {
	TransactionIndex  int             `json:"TransactionIndex"`
	TransactionResult string          `json:"TransactionResult"`
	AffectedNodes     []AffectedNode  `json:"AffectedNodes"`
	DeliveredAmount   json.RawMessage `json:"delivered_amount,omitempty"`
}

// AffectedNode is one created, modified or deleted ledger object
type AffectedNode struct {
	NodeType        string
	LedgerEntryType string
	LedgerIndex     string
	NewFields       map[string]any
	FinalFields     map[string]any
	PreviousFields  map[string]any
}

type affectedNodeBody struct {
	LedgerEntryType string         `json:"LedgerEntryType"`
	LedgerIndex     string         `json:"LedgerIndex"`
	NewFields       map[string]any `json:"NewFields,omitempty"`
	FinalFields     map[string]any `json:"FinalFields,omitempty"`
	PreviousFields  map[string]any `json:"PreviousFields,omitempty"`
}

// UnmarshalJSON decodes the {"ModifiedNode": {...}} wrapper used on the wire
func (n *AffectedNode) UnmarshalJSON(data []byte) error {
	var wrapper map[string]affectedNodeBody
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	if len(wrapper) != 1 {
		return fmt.Errorf("affected node must have exactly one key, got %d", len(wrapper))
	}
	for kind, body := range wrapper {
		switch kind {
		case NodeCreated, NodeModified, NodeDeleted:
		default:
			return fmt.Errorf("unknown affected node type %q", kind)
		}
		*n = AffectedNode{
			NodeType:        kind,
			LedgerEntryType: body.LedgerEntryType,
			LedgerIndex:     body.LedgerIndex,
			NewFields:       body.NewFields,
			FinalFields:     body.FinalFields,
			PreviousFields:  body.PreviousFields,
		}
	}
	return nil
}

// MarshalJSON encodes the node back into its wire wrapper
func (n AffectedNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]affectedNodeBody{
		n.NodeType: {
			LedgerEntryType: n.LedgerEntryType,
			LedgerIndex:     n.LedgerIndex,
			NewFields:       n.NewFields,
			FinalFields:     n.FinalFields,
			PreviousFields:  n.PreviousFields,
		},
	})
}

// Fields returns the most recent view of the object's fields
func (n *AffectedNode) Fields() map[string]any {
	if n.NodeType == NodeCreated {
		return n.NewFields
	}
	return n.FinalFields
}

// LedgerStats are per-ledger aggregates computed while applying a ledger
type LedgerStats struct {
	LedgerIndex  uint32         `json:"ledger_index"`
	Hash         string         `json:"hash"`
	CloseTime    time.Time      `json:"close_time"`
	TxCount      int            `json:"tx_count"`
	TxTypeCounts map[string]int `json:"tx_type_counts"`
	MinFee       int64          `json:"min_fee"`
	MaxFee       int64          `json:"max_fee"`
	AvgFee       int64          `json:"avg_fee"`
}

// ProgressEntry is one row of the sync/backfill progress journal
type ProgressEntry struct {
	ID          int64     `json:"id"`
	Task        string    `json:"task"`
	LedgerIndex uint32    `json:"ledger_index"`
	CreatedAt   time.Time `json:"created_at"`
}
