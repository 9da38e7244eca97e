package models

import (
	"encoding/json"
	"time"
)

// Entry is a ledger state object keyed by its content-addressed index
type Entry struct {
	Index   string          `json:"index"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// JournalEntry is one checkpoint of a snapshot build.
// The last appended entry is always the resume point.
type JournalEntry struct {
	ID             int64      `json:"id"`
	LedgerIndex    uint32     `json:"ledger_index"`
	CreationTime   time.Time  `json:"creation_time"`
	SnapshotOrigin string     `json:"snapshot_origin"`
	SnapshotMarker *string    `json:"snapshot_marker,omitempty"`
	EntriesCount   int64      `json:"entries_count"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
}

// Completed reports whether this entry marks the end of the snapshot
func (j *JournalEntry) Completed() bool {
	return j.CompletionTime != nil
}
