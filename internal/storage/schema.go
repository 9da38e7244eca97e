package storage

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ledgers (
		sequence     BIGINT PRIMARY KEY,
		hash         TEXT NOT NULL,
		parent_hash  TEXT NOT NULL,
		close_time   TIMESTAMPTZ NOT NULL,
		tx_count     INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		hash            TEXT PRIMARY KEY,
		ledger_sequence BIGINT NOT NULL,
		tx_index        INTEGER NOT NULL,
		type            TEXT NOT NULL,
		account         TEXT NOT NULL,
		fee             BIGINT NOT NULL,
		result          TEXT NOT NULL,
		raw             JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_ledger_idx ON transactions (ledger_sequence)`,
	`CREATE TABLE IF NOT EXISTS tokens (
		id       BIGSERIAL PRIMARY KEY,
		currency TEXT NOT NULL,
		issuer   TEXT NOT NULL DEFAULT '',
		UNIQUE (currency, issuer)
	)`,
	`INSERT INTO tokens (currency, issuer) VALUES ('XRP', '') ON CONFLICT (currency, issuer) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS token_metrics (
		token_id        BIGINT NOT NULL REFERENCES tokens (id),
		ledger_sequence BIGINT NOT NULL,
		supply          NUMERIC,
		price           NUMERIC,
		marketcap       NUMERIC,
		PRIMARY KEY (token_id, ledger_sequence)
	)`,
	`CREATE TABLE IF NOT EXISTS token_exchanges (
		id              BIGSERIAL PRIMARY KEY,
		tx_hash         TEXT NOT NULL,
		offer_index     TEXT NOT NULL,
		ledger_sequence BIGINT NOT NULL,
		base_id         BIGINT NOT NULL REFERENCES tokens (id),
		quote_id        BIGINT NOT NULL REFERENCES tokens (id),
		price           NUMERIC NOT NULL,
		volume          NUMERIC NOT NULL,
		maker           TEXT NOT NULL,
		taker           TEXT NOT NULL,
		UNIQUE (tx_hash, offer_index)
	)`,
	`CREATE INDEX IF NOT EXISTS token_exchanges_pair_idx ON token_exchanges (base_id, quote_id, ledger_sequence DESC)`,
	`CREATE TABLE IF NOT EXISTS ledger_stats (
		ledger_sequence BIGINT PRIMARY KEY,
		tx_count        INTEGER NOT NULL,
		tx_type_counts  JSONB NOT NULL,
		min_fee         BIGINT NOT NULL,
		max_fee         BIGINT NOT NULL,
		avg_fee         BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ingest_progress (
		id              BIGSERIAL PRIMARY KEY,
		task            TEXT NOT NULL,
		ledger_sequence BIGINT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS ingest_progress_task_idx ON ingest_progress (task, id DESC)`,
}

// Migrate creates the tables used by the repository and seeds the native token
func (db *DB) Migrate(ctx context.Context) error {
	return db.Tx(ctx, func(ctx context.Context) error {
		for _, stmt := range schema {
			if _, err := db.Exec(ctx).Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}
		}
		return nil
	})
}
