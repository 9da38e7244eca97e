package xrpl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"ledgermeta/internal/metrics"
	"ledgermeta/internal/models"
)

const defaultPageLimit = 2048

// Chunk is one page of ledger state. An empty Marker means it is the last page.
type Chunk struct {
	Objects []models.Entry
	Marker  string
}

// FeedOptions position a feed. Zero Marker starts from the first page.
type FeedOptions struct {
	LedgerIndex   uint32
	PreferredNode string
	Marker        string
	Limit         int
}

// Feed pages through the full state of one ledger in forward order.
// A Feed is not safe for concurrent use.
type Feed struct {
	requester   Requester
	ledgerIndex uint32
	node        string
	marker      string
	limit       int
	done        bool
}

// NewFeed creates a feed over the state of opts.LedgerIndex
func NewFeed(requester Requester, opts FeedOptions) (*Feed, error) {
	if opts.LedgerIndex == 0 {
		return nil, fmt.Errorf("feed requires a ledger index")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	return &Feed{
		requester:   requester,
		ledgerIndex: opts.LedgerIndex,
		node:        opts.PreferredNode,
		marker:      opts.Marker,
		limit:       limit,
	}, nil
}

type ledgerDataResult struct {
	LedgerIndex flexIndex         `json:"ledger_index"`
	State       []json.RawMessage `json:"state"`
	Marker      json.RawMessage   `json:"marker"`
}

type stateHeader struct {
	Index           string `json:"index"`
	LedgerEntryType string `json:"LedgerEntryType"`
}

// Next returns the next page, or nil once the terminal page was delivered
func (f *Feed) Next(ctx context.Context) (*Chunk, error) {
	if f.done {
		return nil, nil
	}

	params := map[string]any{
		"ledger_index": f.ledgerIndex,
		"binary":       false,
		"limit":        f.limit,
	}
	if f.marker != "" {
		params["marker"] = f.marker
	}

	resp, err := f.requester.Request(ctx, Request{
		Command: "ledger_data",
		Params:  params,
		Node:    f.node,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch state of ledger %d at marker %q: %w", f.ledgerIndex, f.marker, err)
	}

	if f.node != "" && resp.Node != f.node {
		// markers are not guaranteed portable between nodes
		slog.Warn("Feed continued on a different node mid-pagination",
			"ledger_index", f.ledgerIndex,
			"previous_node", f.node,
			"node", resp.Node,
			"marker", f.marker,
		)
		metrics.FeedNodeSwitches.Inc()
	}
	f.node = resp.Node

	var page ledgerDataResult
	if err := json.Unmarshal(resp.Result, &page); err != nil {
		return nil, fmt.Errorf("failed to decode ledger_data page: %w", err)
	}

	objects := make([]models.Entry, 0, len(page.State))
	for _, raw := range page.State {
		var h stateHeader
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, fmt.Errorf("failed to decode state object: %w", err)
		}
		if h.Index == "" {
			return nil, fmt.Errorf("state object without index in ledger %d", f.ledgerIndex)
		}
		objects = append(objects, models.Entry{
			Index:   h.Index,
			Type:    h.LedgerEntryType,
			Payload: raw,
		})
	}

	marker, err := decodeMarker(page.Marker)
	if err != nil {
		return nil, err
	}
	f.marker = marker
	if marker == "" {
		f.done = true
	}

	return &Chunk{Objects: objects, Marker: marker}, nil
}

func decodeMarker(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("unsupported marker encoding %s: %w", string(raw), err)
	}
	return s, nil
}

// LedgerIndex returns the ledger whose state is being read
func (f *Feed) LedgerIndex() uint32 {
	return f.ledgerIndex
}

// Node returns the node that served the last page (or the preferred node before the first page)
func (f *Feed) Node() string {
	return f.node
}

// Marker returns the position of the next page
func (f *Feed) Marker() string {
	return f.marker
}
