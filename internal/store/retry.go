package store

import (
	"context"
	"time"

	"codeberg.org/mutker/fand/internal/errors"
)

// transientError marks a failure worth retrying.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func isTransient(err error) bool {
	var t *transientError
	if errors.As(err, &t) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// withRetry runs op with a per-attempt timeout. Transient failures are
// retried with linear backoff; exhausting the attempts yields ErrUnavailable.
// Other failures are returned unchanged.
func withRetry(ctx context.Context, opts Options, op func(ctx context.Context) error) error {
	errFactory := errors.New()

	attempts := opts.Retries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errFactory.Wrap(ErrUnavailable, ctx.Err())
			case <-time.After(opts.Backoff * time.Duration(attempt)):
			}
		}

		attemptCtx := ctx
		cancel := func() {}
		if opts.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		}
		err := op(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		lastErr = err
	}

	return errFactory.Wrap(ErrUnavailable, lastErr)
}
