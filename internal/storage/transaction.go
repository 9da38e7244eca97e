package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const (
	txKey    contextKey = "storage_transaction"
	hooksKey contextKey = "storage_after_commit"
)

// writeLockKey is the advisory lock taken by every write transaction
const writeLockKey int64 = 0x6c6d657461

type afterCommit struct {
	hooks []func()
}

// GetTx extracts the transaction from ctx
func GetTx(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey).(pgx.Tx)
	return tx, ok
}

// AfterCommit registers fn to run once the transaction in ctx commits.
// Without a transaction fn runs immediately.
func AfterCommit(ctx context.Context, fn func()) {
	if h, ok := ctx.Value(hooksKey).(*afterCommit); ok {
		h.hooks = append(h.hooks, fn)
		return
	}
	fn()
}

// WithTx executes fn within a transaction with automatic rollback on error.
// A ctx that already carries a transaction is reused, so nested calls join
// the outer transaction. Write transactions are serialised with an advisory lock.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if _, ok := GetTx(ctx); ok {
		return fn(ctx)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", writeLockKey); err != nil {
		tx.Rollback(context.WithoutCancel(ctx))
		return fmt.Errorf("failed to acquire write lock: %w", err)
	}

	hooks := &afterCommit{}
	txCtx := context.WithValue(context.WithValue(ctx, txKey, tx), hooksKey, hooks)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, fn := range hooks.hooks {
		fn()
	}
	return nil
}
