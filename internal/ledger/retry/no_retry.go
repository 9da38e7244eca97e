package retry

import (
	"context"
	"log/slog"
)

// NoRetryStrategy runs each operation exactly once. Fetch failures surface
// to the caller, which stops the range being processed.
type NoRetryStrategy struct{}

func NewNoRetryStrategy() *NoRetryStrategy {
	return &NoRetryStrategy{}
}

// Execute runs operation once unless ctx is already done
func (s *NoRetryStrategy) Execute(ctx context.Context, operation Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := operation()
	if err != nil && IsRecoverable(err) {
		slog.Debug("Recoverable error not retried", "strategy", s.Name(), "error", err)
	}
	return err
}

func (s *NoRetryStrategy) Name() string {
	return "none"
}
