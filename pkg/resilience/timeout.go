package resilience

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/errors"
)

// WithTimeout runs fn with a context cancelled after timeout. When the
// deadline passes first the error wraps ErrTimeout; fn keeps running in
// the background until it observes its context.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return apperrors.Newf(apperrors.ErrTimeout, http.StatusServiceUnavailable,
			"%s did not finish within %v", name, timeout)
	}
}
