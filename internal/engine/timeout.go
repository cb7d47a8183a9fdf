package engine

import (
	"context"
	"time"
)

// DefaultTimeout is the default per-resource operation timeout. Failures are
// surfaced verbatim and never retried automatically; the timeout only bounds
// how long a single provider call may hang.
const DefaultTimeout = 30 * time.Minute

// WithTimeout wraps a context with a per-resource timeout.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
