package logging

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Accumulator aggregates high-frequency progress messages and writes one
// summary line per message once the flush interval has elapsed.
// Each task owns its own Accumulator.
type Accumulator struct {
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	lastFlush time.Time
	pending   map[string]*accumulated
}

type accumulated struct {
	counts map[string]int64
	attrs  []any
	hits   int
}

// NewAccumulator creates an accumulator flushing to logger every interval
func NewAccumulator(logger *slog.Logger, interval time.Duration) *Accumulator {
	return newAccumulator(logger, interval, time.Now)
}

func newAccumulator(logger *slog.Logger, interval time.Duration, now func() time.Time) *Accumulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accumulator{
		logger:    logger,
		interval:  interval,
		now:       now,
		lastFlush: now(),
		pending:   make(map[string]*accumulated),
	}
}

// Info adds counts to msg's running totals. attrs replace the previous
// attrs for msg (last value wins, e.g. the current ledger index).
func (a *Accumulator) Info(msg string, counts map[string]int64, attrs ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()

	acc, ok := a.pending[msg]
	if !ok {
		acc = &accumulated{counts: make(map[string]int64)}
		a.pending[msg] = acc
	}
	for k, v := range counts {
		acc.counts[k] += v
	}
	acc.attrs = attrs
	acc.hits++

	if a.now().Sub(a.lastFlush) >= a.interval {
		a.flushLocked()
	}
}

// Flush writes every pending summary immediately
func (a *Accumulator) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flushLocked()
}

func (a *Accumulator) flushLocked() {
	msgs := make([]string, 0, len(a.pending))
	for msg := range a.pending {
		msgs = append(msgs, msg)
	}
	sort.Strings(msgs)

	for _, msg := range msgs {
		acc := a.pending[msg]
		keys := make([]string, 0, len(acc.counts))
		for k := range acc.counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		args := make([]any, 0, 2*len(keys)+len(acc.attrs)+2)
		for _, k := range keys {
			args = append(args, k, acc.counts[k])
		}
		args = append(args, acc.attrs...)
		args = append(args, "batches", acc.hits)
		a.logger.Info(msg, args...)
	}

	a.pending = make(map[string]*accumulated)
	a.lastFlush = a.now()
}
