// Package snapshot builds and stores resumable point-in-time copies of ledger state.
package snapshot

import (
	"context"
	"errors"

	"ledgermeta/internal/models"
)

var (
	ErrInvalidVariant = errors.New("snapshot: invalid variant name")
	ErrClosed         = errors.New("snapshot: store is closed")
)

// Store is the journal and entry table of one snapshot variant.
// Calls made with a ctx obtained inside Tx join that transaction.
type Store interface {
	Tx(ctx context.Context, fn func(ctx context.Context) error) error

	ReadLastJournal(ctx context.Context) (*models.JournalEntry, error)
	AppendJournal(ctx context.Context, entry models.JournalEntry) (*models.JournalEntry, error)

	PutEntry(ctx context.Context, entry models.Entry) error
	DeleteEntry(ctx context.Context, index string) error
	GetEntry(ctx context.Context, index string) (*models.Entry, error)
	CountEntries(ctx context.Context) (int64, error)
	ScanEntries(ctx context.Context, entryType string, fn func(models.Entry) error) error

	Close() error
}

// IsIncomplete reports whether the snapshot still needs building: no journal
// entry yet, or the last entry carries no completion time.
func IsIncomplete(ctx context.Context, store Store) (bool, error) {
	last, err := store.ReadLastJournal(ctx)
	if err != nil {
		return false, err
	}
	return last == nil || !last.Completed(), nil
}
