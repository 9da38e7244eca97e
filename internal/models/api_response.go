package models

import "time"

// StatusResponse summarises pipeline progress for the /status endpoint and CLI
type StatusResponse struct {
	Snapshot SnapshotStatus `json:"snapshot"`
	Sync     *TaskProgress  `json:"sync,omitempty"`
	Backfill *TaskProgress  `json:"backfill,omitempty"`
}

// SnapshotStatus describes the live snapshot's journal head
type SnapshotStatus struct {
	Variant        string     `json:"variant"`
	LedgerIndex    uint32     `json:"ledger_index,omitempty"`
	Origin         string     `json:"origin,omitempty"`
	EntriesCount   int64      `json:"entries_count"`
	Complete       bool       `json:"complete"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
}

// TaskProgress is the head of a progress journal
type TaskProgress struct {
	LedgerIndex uint32    `json:"ledger_index"`
	UpdatedAt   time.Time `json:"updated_at"`
}
