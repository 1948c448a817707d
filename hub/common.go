package hub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

// WithRetries runs fn until it succeeds or fails with anything other than a
// rate limit. Rate-limited attempts sleep out the hub's retry window first,
// unless the context ends the wait early.
func WithRetries[R any](ctx context.Context, logger *slog.Logger, fn func() (R, error)) (R, error) {
	for {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		var rateLimitErr *ErrRateLimited
		if errors.As(err, &rateLimitErr) {
			logger.Warn("Hub rate limited, sleeping", "duration", rateLimitErr.RetryAfter)
			select {
			case <-time.After(rateLimitErr.RetryAfter):
				logger.Debug("Finished rate limit sleep, retrying operation.")
				continue
			case <-ctx.Done():
				var zero R
				return zero, fmt.Errorf("operation cancelled during rate limit sleep: %w", ctx.Err())
			}
		}

		var zero R
		return zero, err
	}
}
