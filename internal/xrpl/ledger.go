package xrpl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"ledgermeta/internal/models"
)

// rippleEpoch is 2000-01-01T00:00:00Z, the origin of ledger close times
const rippleEpoch = 946684800

// FromRippleTime converts seconds since the ripple epoch to time.Time
func FromRippleTime(seconds int64) time.Time {
	return time.Unix(seconds+rippleEpoch, 0).UTC()
}

// flexIndex accepts ledger indexes encoded as numbers or strings
type flexIndex uint32

func (f *flexIndex) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid ledger index %q: %w", s, err)
		}
		*f = flexIndex(v)
		return nil
	}
	var v uint32
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexIndex(v)
	return nil
}

type ledgerHeader struct {
	LedgerIndex  flexIndex         `json:"ledger_index"`
	LedgerHash   string            `json:"ledger_hash"`
	ParentHash   string            `json:"parent_hash"`
	CloseTime    int64             `json:"close_time"`
	Transactions []json.RawMessage `json:"transactions"`
}

type ledgerResult struct {
	LedgerIndex flexIndex    `json:"ledger_index"`
	Validated   bool         `json:"validated"`
	Ledger      ledgerHeader `json:"ledger"`
}

type rawTransaction struct {
	Hash            string                  `json:"hash"`
	TransactionType string                  `json:"TransactionType"`
	Account         string                  `json:"Account"`
	Fee             string                  `json:"Fee"`
	MetaData        *models.TransactionMeta `json:"metaData"`
	Meta            *models.TransactionMeta `json:"meta"`
}

// ValidatedLedgerIndex asks r for the latest validated ledger index
func ValidatedLedgerIndex(ctx context.Context, r Requester) (uint32, string, error) {
	resp, err := r.Request(ctx, Request{
		Command: "ledger",
		Params:  map[string]any{"ledger_index": "validated"},
	})
	if err != nil {
		return 0, "", err
	}

	var res ledgerResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		return 0, "", fmt.Errorf("failed to decode validated ledger: %w", err)
	}
	index := uint32(res.LedgerIndex)
	if index == 0 {
		index = uint32(res.Ledger.LedgerIndex)
	}
	if index == 0 {
		return 0, "", fmt.Errorf("validated ledger response carried no index")
	}
	return index, resp.Node, nil
}

// FetchLedger retrieves ledger index with its expanded transactions
func FetchLedger(ctx context.Context, r Requester, index uint32) (*models.Ledger, error) {
	resp, err := r.Request(ctx, Request{
		Command: "ledger",
		Params: map[string]any{
			"ledger_index": index,
			"transactions": true,
			"expand":       true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ledger %d: %w", index, err)
	}

	ledger, err := DecodeLedger(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ledger %d: %w", index, err)
	}
	if ledger.Index != index {
		return nil, fmt.Errorf("requested ledger %d but node %s returned %d", index, resp.Node, ledger.Index)
	}
	return ledger, nil
}

// DecodeLedger decodes the result of an expanded ledger command
func DecodeLedger(result json.RawMessage) (*models.Ledger, error) {
	var res ledgerResult
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, err
	}

	h := res.Ledger
	index := uint32(h.LedgerIndex)
	if index == 0 {
		index = uint32(res.LedgerIndex)
	}

	ledger := &models.Ledger{
		Index:        index,
		Hash:         h.LedgerHash,
		ParentHash:   h.ParentHash,
		CloseTime:    FromRippleTime(h.CloseTime),
		Transactions: make([]models.Transaction, 0, len(h.Transactions)),
	}

	for i, raw := range h.Transactions {
		var rt rawTransaction
		if err := json.Unmarshal(raw, &rt); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		meta := rt.MetaData
		if meta == nil {
			meta = rt.Meta
		}
		if meta == nil {
			return nil, fmt.Errorf("transaction %s has no metadata, ledger must be requested expanded", rt.Hash)
		}
		ledger.Transactions = append(ledger.Transactions, models.Transaction{
			Hash:        rt.Hash,
			LedgerIndex: index,
			Type:        rt.TransactionType,
			Account:     rt.Account,
			Fee:         rt.Fee,
			Result:      meta.TransactionResult,
			Raw:         raw,
			Meta:        *meta,
		})
	}

	return ledger, nil
}

// LedgerClosed is one message of the ledger stream
type LedgerClosed struct {
	LedgerIndex uint32
	LedgerHash  string
	CloseTime   time.Time
	TxCount     int
	Node        string
}

type ledgerClosedMessage struct {
	Type        string    `json:"type"`
	LedgerIndex flexIndex `json:"ledger_index"`
	LedgerHash  string    `json:"ledger_hash"`
	LedgerTime  int64     `json:"ledger_time"`
	TxnCount    int       `json:"txn_count"`
}

// Subscribe opens a ledger stream on a selected node. The returned channel
// first carries the ledger current at subscription time and is closed when
// the connection drops or ctx ends.
func (p *Pool) Subscribe(ctx context.Context) (<-chan LedgerClosed, error) {
	node, conn, err := p.Select(ctx)
	if err != nil {
		return nil, err
	}

	result, err := conn.Request(ctx, "subscribe", map[string]any{"streams": []string{"ledger"}})
	if err != nil {
		p.markFailure(node, err)
		node.dropConn(conn)
		return nil, fmt.Errorf("failed to subscribe on %s: %w", node.url, err)
	}

	var first ledgerClosedMessage
	if err := json.Unmarshal(result, &first); err != nil {
		return nil, fmt.Errorf("failed to decode subscribe result: %w", err)
	}

	slog.Info("Subscribed to ledger stream", "node", node.url, "ledger_index", uint32(first.LedgerIndex))

	out := make(chan LedgerClosed, streamBuffer)
	go func() {
		defer close(out)

		emit := func(m ledgerClosedMessage) bool {
			select {
			case out <- LedgerClosed{
				LedgerIndex: uint32(m.LedgerIndex),
				LedgerHash:  m.LedgerHash,
				CloseTime:   FromRippleTime(m.LedgerTime),
				TxCount:     m.TxnCount,
				Node:        node.url,
			}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if first.LedgerIndex != 0 && !emit(first) {
			return
		}

		stream := conn.Stream()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-stream:
				if !ok {
					slog.Warn("Ledger stream closed", "node", node.url)
					return
				}
				var m ledgerClosedMessage
				if err := json.Unmarshal(raw, &m); err != nil {
					slog.Warn("Malformed stream message", "node", node.url, "error", err)
					continue
				}
				if m.Type != "ledgerClosed" {
					continue
				}
				if !emit(m) {
					return
				}
			}
		}
	}()

	return out, nil
}

// ValidatedLedgerIndex returns the latest validated ledger index and the node that reported it
func (p *Pool) ValidatedLedgerIndex(ctx context.Context) (uint32, string, error) {
	return ValidatedLedgerIndex(ctx, p)
}

// FetchLedger retrieves a ledger with expanded transactions from any node
func (p *Pool) FetchLedger(ctx context.Context, index uint32) (*models.Ledger, error) {
	return FetchLedger(ctx, p, index)
}
