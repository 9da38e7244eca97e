package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"ledgermeta/internal/models"
)

const tokenCacheSize = 4096

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db     *DB
	tokens *lru.Cache[string, models.Token]
}

// NewPostgresRepository creates a repository over db
func NewPostgresRepository(db *DB) (*PostgresRepository, error) {
	cache, err := lru.New[string, models.Token](tokenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create token cache: %w", err)
	}
	return &PostgresRepository{db: db, tokens: cache}, nil
}

// Tx runs fn in a write transaction shared by every repository and snapshot call made with its ctx
func (r *PostgresRepository) Tx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.Tx(ctx, fn)
}

// SaveLedger saves a ledger header and its transactions
func (r *PostgresRepository) SaveLedger(ctx context.Context, ledger *models.Ledger) error {
	return r.db.Tx(ctx, func(ctx context.Context) error {
		q := r.db.Exec(ctx)

		_, err := q.Exec(ctx, `
			INSERT INTO ledgers (sequence, hash, parent_hash, close_time, tx_count)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (sequence) DO UPDATE SET
				hash = EXCLUDED.hash,
				parent_hash = EXCLUDED.parent_hash,
				close_time = EXCLUDED.close_time,
				tx_count = EXCLUDED.tx_count
		`, ledger.Index, ledger.Hash, ledger.ParentHash, ledger.CloseTime, len(ledger.Transactions))
		if err != nil {
			return fmt.Errorf("failed to save ledger %d: %w", ledger.Index, err)
		}

		if len(ledger.Transactions) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, tx := range ledger.Transactions {
			fee, err := strconv.ParseInt(tx.Fee, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid fee %q on transaction %s: %w", tx.Fee, tx.Hash, err)
			}
			batch.Queue(`
				INSERT INTO transactions (hash, ledger_sequence, tx_index, type, account, fee, result, raw)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (hash) DO NOTHING
			`, tx.Hash, ledger.Index, tx.Meta.TransactionIndex, tx.Type, tx.Account, fee, tx.Result, []byte(tx.Raw))
		}

		pgTx, _ := GetTx(ctx)
		if err := pgTx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save transactions of ledger %d: %w", ledger.Index, err)
		}
		return nil
	})
}

// SaveLedgerStats saves per-ledger statistics
func (r *PostgresRepository) SaveLedgerStats(ctx context.Context, stats *models.LedgerStats) error {
	counts, err := json.Marshal(stats.TxTypeCounts)
	if err != nil {
		return fmt.Errorf("failed to marshal tx type counts: %w", err)
	}

	_, err = r.db.Exec(ctx).Exec(ctx, `
		INSERT INTO ledger_stats (ledger_sequence, tx_count, tx_type_counts, min_fee, max_fee, avg_fee)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ledger_sequence) DO UPDATE SET
			tx_count = EXCLUDED.tx_count,
			tx_type_counts = EXCLUDED.tx_type_counts,
			min_fee = EXCLUDED.min_fee,
			max_fee = EXCLUDED.max_fee,
			avg_fee = EXCLUDED.avg_fee
	`, stats.LedgerIndex, stats.TxCount, counts, stats.MinFee, stats.MaxFee, stats.AvgFee)
	if err != nil {
		return fmt.Errorf("failed to save stats of ledger %d: %w", stats.LedgerIndex, err)
	}
	return nil
}

// RequireToken returns the token identified by (currency, issuer), creating it on first reference
func (r *PostgresRepository) RequireToken(ctx context.Context, currency, issuer string) (models.Token, error) {
	key := currency + ":" + issuer
	if t, ok := r.tokens.Get(key); ok {
		return t, nil
	}

	var id int64
	err := r.db.Exec(ctx).QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO tokens (currency, issuer) VALUES ($1, $2)
			ON CONFLICT (currency, issuer) DO NOTHING
			RETURNING id
		)
		SELECT id FROM inserted
		UNION ALL
		SELECT id FROM tokens WHERE currency = $1 AND issuer = $2
		LIMIT 1
	`, currency, issuer).Scan(&id)
	if err != nil {
		return models.Token{}, fmt.Errorf("failed to require token %s: %w", key, err)
	}

	token := models.Token{ID: id, Currency: currency, Issuer: issuer}
	// only cache ids that are committed
	AfterCommit(ctx, func() { r.tokens.Add(key, token) })
	return token, nil
}

// ReadTokenMetrics returns, per metric, the latest value known for a token
// at or before sequence. LedgerSequence is the latest row considered.
func (r *PostgresRepository) ReadTokenMetrics(ctx context.Context, tokenID int64, sequence uint32) (*models.TokenMetrics, error) {
	var (
		m                        models.TokenMetrics
		latest                   *int64
		supply, price, marketcap decimal.NullDecimal
	)
	err := r.db.Exec(ctx).QueryRow(ctx, `
		SELECT
			(SELECT max(ledger_sequence) FROM token_metrics
				WHERE token_id = $1 AND ledger_sequence <= $2),
			(SELECT supply FROM token_metrics
				WHERE token_id = $1 AND ledger_sequence <= $2 AND supply IS NOT NULL
				ORDER BY ledger_sequence DESC LIMIT 1),
			(SELECT price FROM token_metrics
				WHERE token_id = $1 AND ledger_sequence <= $2 AND price IS NOT NULL
				ORDER BY ledger_sequence DESC LIMIT 1),
			(SELECT marketcap FROM token_metrics
				WHERE token_id = $1 AND ledger_sequence <= $2 AND marketcap IS NOT NULL
				ORDER BY ledger_sequence DESC LIMIT 1)
	`, tokenID, sequence).Scan(&latest, &supply, &price, &marketcap)
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics of token %d: %w", tokenID, err)
	}
	if latest == nil {
		return nil, nil
	}

	m.TokenID = tokenID
	m.LedgerSequence = uint32(*latest)
	m.Supply = nullable(supply)
	m.Price = nullable(price)
	m.Marketcap = nullable(marketcap)
	return &m, nil
}

func nullable(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

// WriteTokenMetrics upserts the non-nil fields of m at (token, sequence)
func (r *PostgresRepository) WriteTokenMetrics(ctx context.Context, m models.TokenMetrics) error {
	_, err := r.db.Exec(ctx).Exec(ctx, `
		INSERT INTO token_metrics (token_id, ledger_sequence, supply, price, marketcap)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_id, ledger_sequence) DO UPDATE SET
			supply = COALESCE(EXCLUDED.supply, token_metrics.supply),
			price = COALESCE(EXCLUDED.price, token_metrics.price),
			marketcap = COALESCE(EXCLUDED.marketcap, token_metrics.marketcap)
	`, m.TokenID, m.LedgerSequence, nullDecimal(m.Supply), nullDecimal(m.Price), nullDecimal(m.Marketcap))
	if err != nil {
		return fmt.Errorf("failed to write metrics of token %d at %d: %w", m.TokenID, m.LedgerSequence, err)
	}
	return nil
}

// SaveExchanges saves exchanges, ignoring ones already stored
func (r *PostgresRepository) SaveExchanges(ctx context.Context, exchanges []models.Exchange) error {
	if len(exchanges) == 0 {
		return nil
	}

	q := r.db.Exec(ctx)
	for _, e := range exchanges {
		_, err := q.Exec(ctx, `
			INSERT INTO token_exchanges (
				tx_hash, offer_index, ledger_sequence, base_id, quote_id, price, volume, maker, taker
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (tx_hash, offer_index) DO NOTHING
		`, e.TxHash, e.OfferIndex, e.LedgerSequence, e.Base.ID, e.Quote.ID, e.Price, e.Volume, e.Maker, e.Taker)
		if err != nil {
			return fmt.Errorf("failed to save exchange %s/%s: %w", e.TxHash, e.OfferIndex, err)
		}
	}
	return nil
}

// ReadTokenExchangeAligned returns the latest exchange between base and quote
// at or before sequence, oriented so that Price is quote per base.
func (r *PostgresRepository) ReadTokenExchangeAligned(ctx context.Context, base, quote models.Token, sequence uint32) (*models.Exchange, error) {
	var (
		e               models.Exchange
		baseID, quoteID int64
	)
	err := r.db.Exec(ctx).QueryRow(ctx, `
		SELECT tx_hash, offer_index, ledger_sequence, base_id, quote_id, price, volume, maker, taker
		FROM token_exchanges
		WHERE ((base_id = $1 AND quote_id = $2) OR (base_id = $2 AND quote_id = $1))
			AND ledger_sequence <= $3
		ORDER BY ledger_sequence DESC, id DESC
		LIMIT 1
	`, base.ID, quote.ID, sequence).Scan(
		&e.TxHash, &e.OfferIndex, &e.LedgerSequence, &baseID, &quoteID, &e.Price, &e.Volume, &e.Maker, &e.Taker,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read exchange %d/%d: %w", base.ID, quote.ID, err)
	}

	e.Base, e.Quote = base, quote
	if baseID != base.ID {
		aligned := Align(e)
		return &aligned, nil
	}
	return &e, nil
}

// Align flips an exchange recorded in the opposite direction
func Align(e models.Exchange) models.Exchange {
	if e.Price.IsZero() {
		return e
	}
	e.Volume = e.Volume.Mul(e.Price)
	e.Price = decimal.NewFromInt(1).Div(e.Price)
	return e
}

// AppendProgress appends a progress entry for task
func (r *PostgresRepository) AppendProgress(ctx context.Context, task string, ledgerIndex uint32) error {
	_, err := r.db.Exec(ctx).Exec(ctx,
		`INSERT INTO ingest_progress (task, ledger_sequence) VALUES ($1, $2)`, task, ledgerIndex)
	if err != nil {
		return fmt.Errorf("failed to append %s progress at %d: %w", task, ledgerIndex, err)
	}
	return nil
}

// ReadProgress returns the last progress entry of task, or nil
func (r *PostgresRepository) ReadProgress(ctx context.Context, task string) (*models.ProgressEntry, error) {
	var p models.ProgressEntry
	err := r.db.Exec(ctx).QueryRow(ctx, `
		SELECT id, task, ledger_sequence, created_at
		FROM ingest_progress
		WHERE task = $1
		ORDER BY id DESC
		LIMIT 1
	`, task).Scan(&p.ID, &p.Task, &p.LedgerIndex, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s progress: %w", task, err)
	}
	return &p, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Close releases the connection pool
func (r *PostgresRepository) Close() error {
	r.db.Close()
	return nil
}
