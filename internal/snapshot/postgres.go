package snapshot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/jackc/pgx/v5"

	"ledgermeta/internal/models"
	"ledgermeta/internal/storage"
)

var variantPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// PostgresStore keeps a snapshot in two tables named after its variant
type PostgresStore struct {
	db           *storage.DB
	variant      string
	journalTable string
	entriesTable string
	closed       atomic.Bool
}

// Open creates the variant's tables if needed and returns its store
func Open(ctx context.Context, db *storage.DB, variant string) (*PostgresStore, error) {
	if !variantPattern.MatchString(variant) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVariant, variant)
	}

	s := &PostgresStore{
		db:           db,
		variant:      variant,
		journalTable: pgx.Identifier{"snapshot_" + variant + "_journal"}.Sanitize(),
		entriesTable: pgx.Identifier{"snapshot_" + variant + "_entries"}.Sanitize(),
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.journalTable + ` (
			id              BIGSERIAL PRIMARY KEY,
			ledger_index    BIGINT NOT NULL,
			creation_time   TIMESTAMPTZ NOT NULL,
			snapshot_origin TEXT NOT NULL,
			snapshot_marker TEXT,
			entries_count   BIGINT NOT NULL,
			completion_time TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS ` + s.entriesTable + ` (
			entry_index TEXT PRIMARY KEY,
			entry_type  TEXT NOT NULL,
			payload     JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{"snapshot_" + variant + "_entries_type_idx"}.Sanitize() +
			` ON ` + s.entriesTable + ` (entry_type)`,
	}

	err := db.Tx(ctx, func(ctx context.Context) error {
		for _, stmt := range ddl {
			if _, err := db.Exec(ctx).Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create snapshot %s tables: %w", variant, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Variant returns the snapshot's name
func (s *PostgresStore) Variant() string {
	return s.variant
}

func (s *PostgresStore) exec(ctx context.Context) (storage.Executor, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return s.db.Exec(ctx), nil
}

// Tx implements Store
func (s *PostgresStore) Tx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Tx(ctx, fn)
}

// ReadLastJournal implements Store
func (s *PostgresStore) ReadLastJournal(ctx context.Context) (*models.JournalEntry, error) {
	q, err := s.exec(ctx)
	if err != nil {
		return nil, err
	}

	var j models.JournalEntry
	err = q.QueryRow(ctx, `
		SELECT id, ledger_index, creation_time, snapshot_origin, snapshot_marker, entries_count, completion_time
		FROM `+s.journalTable+`
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&j.ID, &j.LedgerIndex, &j.CreationTime, &j.SnapshotOrigin, &j.SnapshotMarker, &j.EntriesCount, &j.CompletionTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s journal: %w", s.variant, err)
	}
	return &j, nil
}

// AppendJournal implements Store
func (s *PostgresStore) AppendJournal(ctx context.Context, entry models.JournalEntry) (*models.JournalEntry, error) {
	q, err := s.exec(ctx)
	if err != nil {
		return nil, err
	}

	err = q.QueryRow(ctx, `
		INSERT INTO `+s.journalTable+` (
			ledger_index, creation_time, snapshot_origin, snapshot_marker, entries_count, completion_time
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, entry.LedgerIndex, entry.CreationTime, entry.SnapshotOrigin, entry.SnapshotMarker,
		entry.EntriesCount, entry.CompletionTime).Scan(&entry.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to append %s journal: %w", s.variant, err)
	}
	return &entry, nil
}

// PutEntry implements Store
func (s *PostgresStore) PutEntry(ctx context.Context, entry models.Entry) error {
	q, err := s.exec(ctx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO `+s.entriesTable+` (entry_index, entry_type, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (entry_index) DO UPDATE SET
			entry_type = EXCLUDED.entry_type,
			payload = EXCLUDED.payload
	`, entry.Index, entry.Type, []byte(entry.Payload))
	if err != nil {
		return fmt.Errorf("failed to put %s entry %s: %w", entry.Type, entry.Index, err)
	}
	return nil
}

// DeleteEntry implements Store
func (s *PostgresStore) DeleteEntry(ctx context.Context, index string) error {
	q, err := s.exec(ctx)
	if err != nil {
		return err
	}

	if _, err := q.Exec(ctx, `DELETE FROM `+s.entriesTable+` WHERE entry_index = $1`, index); err != nil {
		return fmt.Errorf("failed to delete entry %s: %w", index, err)
	}
	return nil
}

// GetEntry implements Store
func (s *PostgresStore) GetEntry(ctx context.Context, index string) (*models.Entry, error) {
	q, err := s.exec(ctx)
	if err != nil {
		return nil, err
	}

	var (
		e       models.Entry
		payload []byte
	)
	err = q.QueryRow(ctx, `SELECT entry_index, entry_type, payload FROM `+s.entriesTable+` WHERE entry_index = $1`, index).
		Scan(&e.Index, &e.Type, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry %s: %w", index, err)
	}
	e.Payload = payload
	return &e, nil
}

// CountEntries implements Store
func (s *PostgresStore) CountEntries(ctx context.Context) (int64, error) {
	q, err := s.exec(ctx)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := q.QueryRow(ctx, `SELECT count(*) FROM `+s.entriesTable).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s entries: %w", s.variant, err)
	}
	return n, nil
}

// ScanEntries implements Store. fn runs while rows are open and must not
// issue queries through the same transaction.
func (s *PostgresStore) ScanEntries(ctx context.Context, entryType string, fn func(models.Entry) error) error {
	q, err := s.exec(ctx)
	if err != nil {
		return err
	}

	rows, err := q.Query(ctx, `
		SELECT entry_index, entry_type, payload FROM `+s.entriesTable+`
		WHERE ($1 = '' OR entry_type = $1)
		ORDER BY entry_index
	`, entryType)
	if err != nil {
		return fmt.Errorf("failed to scan %s entries: %w", entryType, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e       models.Entry
			payload []byte
		)
		if err := rows.Scan(&e.Index, &e.Type, &payload); err != nil {
			return fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Payload = payload
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close marks the store closed. The shared connection pool stays open.
func (s *PostgresStore) Close() error {
	s.closed.Store(true)
	return nil
}
