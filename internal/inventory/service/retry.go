package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/medlan/medlan-backend/pkg/errors"
)

// run executes fn in a transaction, retrying the whole transaction with
// exponential backoff while it fails with a retryable error. Any other error
// is returned at once.
func (e *Engine) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.opts.RetryInitialInterval
	policy.MaxInterval = time.Second
	policy.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := e.store.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		e.logger.Warn().
			Err(err).
			Str("operation", op).
			Int("attempt", attempt).
			Msg("concurrency conflict, retrying")
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(e.opts.RetryMaxAttempts-1)), ctx))
}
