// Package snapshottest provides an in-memory snapshot.Store for tests.
package snapshottest

import (
	"context"
	"sort"
	"sync"

	"ledgermeta/internal/models"
	"ledgermeta/internal/snapshot"
)

type stageKey struct{}

type stage struct {
	entries map[string]*models.Entry
	journal []models.JournalEntry
}

// MemoryStore keeps a snapshot in memory. Writes made inside Tx become
// visible to other callers only when fn returns nil and BeforeCommit allows it.
type MemoryStore struct {
	// BeforeCommit, when set, runs before each commit with the number of
	// transactions committed so far. Returning an error aborts the commit.
	BeforeCommit func(committed int) error

	mu        sync.Mutex
	entries   map[string]models.Entry
	journal   []models.JournalEntry
	committed int
	closed    bool
}

var _ snapshot.Store = (*MemoryStore)(nil)

// New returns an empty store
func New() *MemoryStore {
	return &MemoryStore{entries: make(map[string]models.Entry)}
}

func current(ctx context.Context) *stage {
	s, _ := ctx.Value(stageKey{}).(*stage)
	return s
}

// Tx implements snapshot.Store
func (m *MemoryStore) Tx(ctx context.Context, fn func(ctx context.Context) error) error {
	if current(ctx) != nil {
		return fn(ctx)
	}
	if err := m.checkOpen(); err != nil {
		return err
	}

	s := &stage{entries: make(map[string]*models.Entry)}
	if err := fn(context.WithValue(ctx, stageKey{}, s)); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BeforeCommit != nil {
		if err := m.BeforeCommit(m.committed); err != nil {
			return err
		}
	}
	m.apply(s)
	m.committed++
	return nil
}

func (m *MemoryStore) apply(s *stage) {
	for index, e := range s.entries {
		if e == nil {
			delete(m.entries, index)
			continue
		}
		m.entries[index] = *e
	}
	m.journal = append(m.journal, s.journal...)
}

// write runs fn against the current stage, or in an implicit transaction
func (m *MemoryStore) write(ctx context.Context, fn func(s *stage)) error {
	if s := current(ctx); s != nil {
		fn(s)
		return nil
	}
	return m.Tx(ctx, func(ctx context.Context) error {
		fn(current(ctx))
		return nil
	})
}

func (m *MemoryStore) checkOpen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return snapshot.ErrClosed
	}
	return nil
}

// ReadLastJournal implements snapshot.Store
func (m *MemoryStore) ReadLastJournal(ctx context.Context) (*models.JournalEntry, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if s := current(ctx); s != nil && len(s.journal) > 0 {
		last := s.journal[len(s.journal)-1]
		return &last, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.journal) == 0 {
		return nil, nil
	}
	last := m.journal[len(m.journal)-1]
	return &last, nil
}

// AppendJournal implements snapshot.Store
func (m *MemoryStore) AppendJournal(ctx context.Context, entry models.JournalEntry) (*models.JournalEntry, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	entry.ID = int64(len(m.journal)) + 1
	m.mu.Unlock()

	err := m.write(ctx, func(s *stage) {
		entry.ID += int64(len(s.journal))
		s.journal = append(s.journal, entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// PutEntry implements snapshot.Store
func (m *MemoryStore) PutEntry(ctx context.Context, entry models.Entry) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.write(ctx, func(s *stage) { s.entries[entry.Index] = &entry })
}

// DeleteEntry implements snapshot.Store
func (m *MemoryStore) DeleteEntry(ctx context.Context, index string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.write(ctx, func(s *stage) { s.entries[index] = nil })
}

// GetEntry implements snapshot.Store
func (m *MemoryStore) GetEntry(ctx context.Context, index string) (*models.Entry, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if s := current(ctx); s != nil {
		if e, ok := s.entries[index]; ok {
			if e == nil {
				return nil, nil
			}
			out := *e
			return &out, nil
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[index]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// view merges committed entries with the stage of ctx
func (m *MemoryStore) view(ctx context.Context) map[string]models.Entry {
	m.mu.Lock()
	out := make(map[string]models.Entry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	m.mu.Unlock()

	if s := current(ctx); s != nil {
		for k, v := range s.entries {
			if v == nil {
				delete(out, k)
				continue
			}
			out[k] = *v
		}
	}
	return out
}

// CountEntries implements snapshot.Store
func (m *MemoryStore) CountEntries(ctx context.Context) (int64, error) {
	if err := m.checkOpen(); err != nil {
		return 0, err
	}
	return int64(len(m.view(ctx))), nil
}

// ScanEntries implements snapshot.Store, visiting entries in index order
func (m *MemoryStore) ScanEntries(ctx context.Context, entryType string, fn func(models.Entry) error) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	view := m.view(ctx)
	keys := make([]string, 0, len(view))
	for k, e := range view {
		if entryType == "" || e.Type == entryType {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(view[k]); err != nil {
			return err
		}
	}
	return nil
}

// Journal returns a copy of the committed journal
func (m *MemoryStore) Journal() []models.JournalEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.JournalEntry(nil), m.journal...)
}

// Close implements snapshot.Store
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
