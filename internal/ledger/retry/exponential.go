package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ExponentialBackoffStrategy implements retry with exponential backoff
type ExponentialBackoffStrategy struct {
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
}

// NewExponentialBackoffStrategy creates a new ExponentialBackoffStrategy
func NewExponentialBackoffStrategy(maxRetries int, initialDelay, maxDelay time.Duration) *ExponentialBackoffStrategy {
	return &ExponentialBackoffStrategy{
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
	}
}

// Execute runs the operation with exponential backoff retry logic.
// Non-recoverable errors stop the loop immediately.
func (s *ExponentialBackoffStrategy) Execute(ctx context.Context, operation Operation) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.initialDelay
	eb.MaxInterval = s.maxDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		err := operation()
		if err == nil {
			if attempt > 1 {
				slog.Info("Operation succeeded after retry",
					"attempt", attempt,
					"total_attempts", s.maxRetries+1)
			}
			return nil
		}
		if !IsRecoverable(err) {
			slog.Error("Non-recoverable error, failing immediately",
				"error", err,
				"attempt", attempt)
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		slog.Warn("Operation failed, retrying with exponential backoff",
			"attempt", attempt,
			"max_attempts", s.maxRetries+1,
			"retry_in", next,
			"error", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.maxRetries)), ctx)
	err := backoff.RetryNotify(op, b, notify)
	if err == nil {
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("context cancelled during retry: %w", ctxErr)
	}
	if !IsRecoverable(err) {
		return err
	}
	return fmt.Errorf("operation failed after %d attempts: %w", attempt, err)
}

// Name returns the strategy name
func (s *ExponentialBackoffStrategy) Name() string {
	return "ExponentialBackoff"
}

// Recoverable marks an error as transient regardless of its message
type Recoverable interface {
	Recoverable() bool
}

// IsRecoverable determines if an error is recoverable and worth retrying
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var r Recoverable
	if errors.As(err, &r) {
		return r.Recoverable()
	}

	errStr := strings.ToLower(err.Error())

	// Network errors that are typically recoverable
	recoverablePatterns := []string{
		"connection reset by peer",
		"connection refused",
		"timeout",
		"temporary failure",
		"network is unreachable",
		"broken pipe",
		"i/o timeout",
		"eof",
		"tls handshake timeout",
		"no such host",
		"connection timed out",
		"dial tcp",
		"websocket: close",
		"deadline exceeded",
	}

	for _, pattern := range recoverablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
