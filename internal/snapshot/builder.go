package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ledgermeta/internal/logging"
	"ledgermeta/internal/metrics"
	"ledgermeta/internal/models"
	"ledgermeta/internal/xrpl"
)

// Feed yields pages of ledger state, nil once exhausted
type Feed interface {
	Next(ctx context.Context) (*xrpl.Chunk, error)
	LedgerIndex() uint32
	Node() string
}

// FeedFactory opens a feed positioned by opts
type FeedFactory func(opts xrpl.FeedOptions) (Feed, error)

// LedgerSource reports the latest validated ledger and the node that saw it
type LedgerSource interface {
	ValidatedLedgerIndex(ctx context.Context) (uint32, string, error)
}

// BuilderOptions tune a Builder
type BuilderOptions struct {
	ChunkSize   int
	Accumulator *logging.Accumulator
	Now         func() time.Time
	// OnComplete runs inside the completion transaction
	OnComplete func(ctx context.Context, ledgerIndex uint32) error
}

// Builder copies the full state of one ledger into a Store, checkpointing
// every chunk so a crashed build resumes where its last commit left off.
type Builder struct {
	store  Store
	source LedgerSource
	feeds  FeedFactory
	opts   BuilderOptions
	log    *slog.Logger
}

// NewBuilder creates a builder for store
func NewBuilder(store Store, source LedgerSource, feeds FeedFactory, opts BuilderOptions) *Builder {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Accumulator == nil {
		opts.Accumulator = logging.NewAccumulator(slog.Default(), 10*time.Second)
	}
	return &Builder{
		store:  store,
		source: source,
		feeds:  feeds,
		opts:   opts,
		log:    slog.Default().With("task", "snapshot"),
	}
}

// Run builds the snapshot, returning immediately when it is already complete
func (b *Builder) Run(ctx context.Context) error {
	last, err := b.store.ReadLastJournal(ctx)
	if err != nil {
		return err
	}
	if last != nil && last.Completed() {
		b.log.Info("Snapshot already complete",
			"ledger_index", last.LedgerIndex,
			"entries", last.EntriesCount,
		)
		metrics.SnapshotComplete.Set(1)
		return nil
	}

	head, feed, err := b.start(ctx, last)
	if err != nil {
		return err
	}
	metrics.SnapshotLedger.Set(float64(head.LedgerIndex))

	if feed != nil {
		if head, err = b.copyFromFeed(ctx, head, feed); err != nil {
			return err
		}
	}

	return b.complete(ctx, head)
}

// start returns the journal head to continue from and the feed to read.
// A nil feed means pagination already finished before the last crash.
func (b *Builder) start(ctx context.Context, last *models.JournalEntry) (models.JournalEntry, Feed, error) {
	if last != nil {
		if last.SnapshotMarker == nil && last.EntriesCount > 0 {
			b.log.Info("Snapshot pages all committed, finalizing",
				"ledger_index", last.LedgerIndex,
				"entries", last.EntriesCount,
			)
			return *last, nil, nil
		}

		marker := ""
		if last.SnapshotMarker != nil {
			marker = *last.SnapshotMarker
		}
		b.log.Info("♻️ Resuming snapshot",
			"ledger_index", last.LedgerIndex,
			"origin", last.SnapshotOrigin,
			"marker", marker,
			"entries", last.EntriesCount,
		)
		feed, err := b.feeds(xrpl.FeedOptions{
			LedgerIndex:   last.LedgerIndex,
			PreferredNode: last.SnapshotOrigin,
			Marker:        marker,
			Limit:         b.opts.ChunkSize,
		})
		if err != nil {
			return models.JournalEntry{}, nil, fmt.Errorf("failed to resume feed: %w", err)
		}
		return *last, feed, nil
	}

	index, node, err := b.source.ValidatedLedgerIndex(ctx)
	if err != nil {
		return models.JournalEntry{}, nil, fmt.Errorf("failed to get validated ledger: %w", err)
	}

	b.log.Info("📸 Starting new snapshot", "ledger_index", index, "origin", node)

	feed, err := b.feeds(xrpl.FeedOptions{
		LedgerIndex:   index,
		PreferredNode: node,
		Limit:         b.opts.ChunkSize,
	})
	if err != nil {
		return models.JournalEntry{}, nil, fmt.Errorf("failed to open feed: %w", err)
	}

	initial, err := b.store.AppendJournal(ctx, models.JournalEntry{
		LedgerIndex:    index,
		CreationTime:   b.opts.Now().UTC(),
		SnapshotOrigin: node,
	})
	if err != nil {
		return models.JournalEntry{}, nil, err
	}
	return *initial, feed, nil
}

func (b *Builder) copyFromFeed(ctx context.Context, head models.JournalEntry, feed Feed) (models.JournalEntry, error) {
	for {
		chunk, err := feed.Next(ctx)
		if err != nil {
			metrics.ErrorsTotal.WithLabelValues("snapshot").Inc()
			return head, err
		}
		if chunk == nil {
			return head, nil
		}

		next := head
		next.ID = 0
		next.SnapshotOrigin = feed.Node()
		next.SnapshotMarker = nil
		if chunk.Marker != "" {
			marker := chunk.Marker
			next.SnapshotMarker = &marker
		}
		next.EntriesCount = head.EntriesCount + int64(len(chunk.Objects))

		var committed *models.JournalEntry
		err = b.store.Tx(ctx, func(ctx context.Context) error {
			for _, entry := range chunk.Objects {
				if err := b.store.PutEntry(ctx, entry); err != nil {
					b.log.Error("Failed to apply ledger entry",
						"type", entry.Type,
						"index", entry.Index,
						"ledger_index", head.LedgerIndex,
						"error", err,
					)
					return fmt.Errorf("apply %s %s of ledger %d: %w", entry.Type, entry.Index, head.LedgerIndex, err)
				}
			}
			var err error
			committed, err = b.store.AppendJournal(ctx, next)
			return err
		})
		if err != nil {
			metrics.ErrorsTotal.WithLabelValues("snapshot").Inc()
			return head, err
		}
		head = *committed

		metrics.SnapshotChunksCommitted.Inc()
		metrics.SnapshotEntriesCopied.Add(float64(len(chunk.Objects)))
		b.opts.Accumulator.Info("Copied ledger state",
			map[string]int64{"objects": int64(len(chunk.Objects))},
			"ledger_index", head.LedgerIndex,
			"total", head.EntriesCount,
		)
	}
}

func (b *Builder) complete(ctx context.Context, head models.JournalEntry) error {
	now := b.opts.Now().UTC()
	final := head
	final.ID = 0
	final.SnapshotMarker = nil
	final.CompletionTime = &now

	err := b.store.Tx(ctx, func(ctx context.Context) error {
		if _, err := b.store.AppendJournal(ctx, final); err != nil {
			return err
		}
		if b.opts.OnComplete != nil {
			return b.opts.OnComplete(ctx, head.LedgerIndex)
		}
		return nil
	})
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("snapshot").Inc()
		return fmt.Errorf("failed to complete snapshot: %w", err)
	}

	b.opts.Accumulator.Flush()
	metrics.SnapshotComplete.Set(1)
	b.log.Info("✅ Snapshot complete",
		"ledger_index", head.LedgerIndex,
		"entries", head.EntriesCount,
		"duration", now.Sub(head.CreationTime).Round(time.Second),
	)
	return nil
}

// Terminate flushes pending progress and closes the store
func (b *Builder) Terminate() error {
	b.opts.Accumulator.Flush()
	return b.store.Close()
}
