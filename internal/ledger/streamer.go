package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ledgermeta/internal/ledger/retry"
	"ledgermeta/internal/metrics"
	"ledgermeta/internal/models"
	"ledgermeta/internal/pipeline"
	"ledgermeta/internal/xrpl"
)

// Subscriber opens a stream of validated ledger closes
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan xrpl.LedgerClosed, error)
}

// StreamerOptions configure a Streamer
type StreamerOptions struct {
	Subscriber Subscriber
	Fetcher    pipeline.Fetcher
	Processor  *Processor
	Pipeline   pipeline.Config
	Retry      retry.Strategy
	// Reconnect builds the backoff used between stream reconnects
	Reconnect func() backoff.BackOff
}

// Streamer follows the validated ledger stream and applies every ledger
// above its head, in order and without gaps
type Streamer struct {
	opts     StreamerOptions
	pipeline *pipeline.Pipeline
	head     uint32
}

// NewStreamer creates a new Streamer instance
func NewStreamer(opts StreamerOptions) *Streamer {
	if opts.Reconnect == nil {
		opts.Reconnect = func() backoff.BackOff {
			eb := backoff.NewExponentialBackOff()
			eb.InitialInterval = time.Second
			eb.MaxInterval = 30 * time.Second
			eb.MaxElapsedTime = 0
			return eb
		}
	}
	s := &Streamer{opts: opts}
	s.pipeline = pipeline.New(opts.Pipeline, TaskSync, opts.Fetcher, s, opts.Retry)
	return s
}

// ApplyLedger applies one ledger and advances the head
func (s *Streamer) ApplyLedger(ctx context.Context, ledger *models.Ledger) error {
	if err := s.opts.Processor.ApplyLedger(ctx, ledger); err != nil {
		return err
	}
	s.head = ledger.Index
	return nil
}

// Head returns the last applied ledger
func (s *Streamer) Head() uint32 {
	return s.head
}

// Start applies ledgers after head until ctx is cancelled or a ledger fails
// to apply. Lost streams and unreachable nodes only cause a reconnect.
func (s *Streamer) Start(ctx context.Context, head uint32) error {
	s.head = head
	slog.Info("Starting ledger streamer", "head", head)

	for {
		stream, release, err := s.subscribe(ctx)
		if err != nil {
			return err
		}

		err = s.follow(ctx, stream)
		release()
		if ctx.Err() != nil {
			slog.Warn("Context cancelled, stopping streamer", "head", s.head)
			return ctx.Err()
		}
		if err != nil && !errors.Is(err, xrpl.ErrNoReachableNode) {
			return err
		}
		slog.Warn("Ledger stream interrupted, reconnecting", "head", s.head, "error", err)
	}
}

// subscribe opens a stream bound to its own context. The returned release
// func cancels that context and waits for the stream to close, so an
// abandoned subscription never keeps reading from a live connection.
func (s *Streamer) subscribe(ctx context.Context) (<-chan xrpl.LedgerClosed, func(), error) {
	subCtx, cancel := context.WithCancel(ctx)

	var stream <-chan xrpl.LedgerClosed
	op := func() error {
		var err error
		stream, err = s.opts.Subscriber.Subscribe(subCtx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		metrics.ErrorsTotal.WithLabelValues(TaskSync).Inc()
		slog.Warn("Failed to subscribe to ledger stream", "retry_in", next, "error", err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(s.opts.Reconnect(), ctx), notify); err != nil {
		cancel()
		return nil, nil, err
	}

	release := func() {
		cancel()
		// announcements dropped here are covered by the next range fetch
		for range stream {
		}
	}
	return stream, release, nil
}

// follow consumes stream until it closes. Announcements at or below the head
// are duplicates and ignored.
func (s *Streamer) follow(ctx context.Context, stream <-chan xrpl.LedgerClosed) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case closed, ok := <-stream:
			if !ok {
				return nil
			}
			if closed.LedgerIndex <= s.head {
				slog.Debug("Ignoring ledger at or below head",
					"ledger_index", closed.LedgerIndex,
					"head", s.head,
				)
				continue
			}

			metrics.PipelineLag.Set(float64(closed.LedgerIndex - s.head))
			if gap := closed.LedgerIndex - s.head; gap > 1 {
				slog.Info("Catching up to validated ledger",
					"head", s.head,
					"target", closed.LedgerIndex,
					"gap", gap,
				)
			}

			if err := s.pipeline.FetchRange(ctx, s.head+1, closed.LedgerIndex); err != nil {
				return err
			}
			metrics.PipelineLag.Set(0)
		}
	}
}

// Stop flushes pending progress lines
func (s *Streamer) Stop() {
	s.opts.Processor.Flush()
	slog.Info("Streamer stopped", "head", s.head)
}
