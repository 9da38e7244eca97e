package retry

import (
	"context"
	"log/slog"
)

// Strategy decides how often a failed fetch is attempted again
type Strategy interface {
	Execute(ctx context.Context, operation Operation) error
	Name() string
}

// Operation is one attempt at a retryable call
type Operation func() error

// NewStrategy returns the strategy selected by config. A disabled retry or a
// zero retry budget both run operations once.
func NewStrategy(config Config) Strategy {
	if !config.Enabled || config.MaxRetries <= 0 {
		slog.Info("Ledger fetch retry disabled", "enabled", config.Enabled, "max_retries", config.MaxRetries)
		return NewNoRetryStrategy()
	}

	slog.Info("Ledger fetch retry enabled",
		"strategy", "exponential",
		"max_retries", config.MaxRetries,
		"initial_delay", config.InitialDelay,
		"max_delay", config.MaxDelay,
	)
	return NewExponentialBackoffStrategy(config.MaxRetries, config.InitialDelay, config.MaxDelay)
}
