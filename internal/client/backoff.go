package client

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// linearBackOff waits step, 2*step, 3*step, ... between attempts.
type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.step
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// retry runs op until it succeeds, fails permanently or has been retried
// maxRetries times. Cancellation of ctx stops it with ctx's error.
func retry(ctx context.Context, maxRetries int, step time.Duration, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{step: step}, uint64(maxRetries)),
		ctx,
	)
	err := backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		var serverErr *Error
		if errors.As(err, &serverErr) && !serverErr.Temporary() {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
