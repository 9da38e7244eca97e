package api

import (
	"context"

	"ledgermeta/internal/ledger"
	"ledgermeta/internal/models"
)

// StatusSource reads the journals a status report is built from
type StatusSource interface {
	Variant() string
	ReadLastJournal(ctx context.Context) (*models.JournalEntry, error)
	ReadProgress(ctx context.Context, task string) (*models.ProgressEntry, error)
}

// BuildStatus summarises the snapshot journal and the task progress journals
func BuildStatus(ctx context.Context, src StatusSource) (*models.StatusResponse, error) {
	out := &models.StatusResponse{
		Snapshot: models.SnapshotStatus{Variant: src.Variant()},
	}

	last, err := src.ReadLastJournal(ctx)
	if err != nil {
		return nil, err
	}
	if last != nil {
		out.Snapshot.LedgerIndex = last.LedgerIndex
		out.Snapshot.Origin = last.SnapshotOrigin
		out.Snapshot.EntriesCount = last.EntriesCount
		out.Snapshot.Complete = last.Completed()
		out.Snapshot.CompletionTime = last.CompletionTime
	}

	for task, dst := range map[string]**models.TaskProgress{
		ledger.TaskSync:     &out.Sync,
		ledger.TaskBackfill: &out.Backfill,
	} {
		p, err := src.ReadProgress(ctx, task)
		if err != nil {
			return nil, err
		}
		if p != nil {
			*dst = &models.TaskProgress{LedgerIndex: p.LedgerIndex, UpdatedAt: p.CreatedAt}
		}
	}
	return out, nil
}

// StoreStatus combines a snapshot journal with the progress journals
type StoreStatus struct {
	Journal interface {
		Variant() string
		ReadLastJournal(ctx context.Context) (*models.JournalEntry, error)
	}
	Progress interface {
		ReadProgress(ctx context.Context, task string) (*models.ProgressEntry, error)
	}
}

// Variant implements StatusSource
func (s StoreStatus) Variant() string { return s.Journal.Variant() }

// ReadLastJournal implements StatusSource
func (s StoreStatus) ReadLastJournal(ctx context.Context) (*models.JournalEntry, error) {
	return s.Journal.ReadLastJournal(ctx)
}

// ReadProgress implements StatusSource
func (s StoreStatus) ReadProgress(ctx context.Context, task string) (*models.ProgressEntry, error) {
	return s.Progress.ReadProgress(ctx, task)
}
