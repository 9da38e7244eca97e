package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
)

// Executor is satisfied by both the pool and an open transaction
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Options configure the connection pool
type Options struct {
	URL          string
	MaxConns     int32
	TraceQueries bool
}

// DB wraps the pgx pool shared by the repository and the snapshot stores
type DB struct {
	pool *pgxpool.Pool
}

// Open connects to PostgreSQL. Every connection runs with synchronous_commit
// on so a committed transaction is durable in the WAL.
func Open(ctx context.Context, opts Options) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET synchronous_commit = on")
		return err
	}
	if opts.TraceQueries {
		cfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   tracelog.LoggerFunc(logQuery),
			LogLevel: tracelog.LogLevelDebug,
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func logQuery(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	args := make([]any, 0, 2*len(data))
	for k, v := range data {
		args = append(args, k, v)
	}
	slog.Debug("db: "+msg, args...)
}

// Exec returns the transaction carried by ctx, or the pool
func (db *DB) Exec(ctx context.Context) Executor {
	if tx, ok := GetTx(ctx); ok {
		return tx
	}
	return db.pool
}

// Tx runs fn inside a write transaction, see WithTx
func (db *DB) Tx(ctx context.Context, fn func(ctx context.Context) error) error {
	return WithTx(ctx, db.pool, fn)
}

// Ping checks database connectivity
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close closes the pool
func (db *DB) Close() {
	db.pool.Close()
}
