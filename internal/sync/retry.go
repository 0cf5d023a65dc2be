package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/njoerd114/placesync/internal/apperr"
)

// retryPolicy bounds the attempts of background work. Repository calls are
// never retried; only the refresher's passes use a policy.
type retryPolicy struct {
	tries    uint
	initial  time.Duration
	maxDelay time.Duration
}

var (
	// defaultRetry is used by [Refresher.Run].
	defaultRetry = retryPolicy{tries: 3, initial: 500 * time.Millisecond, maxDelay: 5 * time.Second}
	// noRetry runs fn once.
	noRetry = retryPolicy{tries: 1}
)

// backOff returns the wait schedule between attempts.
func (p retryPolicy) backOff() backoff.BackOff {
	if p.tries <= 1 {
		return &backoff.StopBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxInterval = p.maxDelay
	return b
}

// retry executes fn until it succeeds or fails with anything other than
// KindRemoteUnavailable, waiting with exponential backoff between attempts.
func retry[T any](ctx context.Context, p retryPolicy, log *slog.Logger, fn func(context.Context) (T, error)) (T, error) {
	tries := max(p.tries, 1)
	v, err := backoff.Retry(ctx, func() (T, error) {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, backoff.Permanent(err)
		}
		v, err := fn(ctx)
		if err != nil && !apperr.Is(err, apperr.KindRemoteUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug("retrying after transient failure", "wait", next, "error", err)
		}),
	)
	if err == nil {
		return v, nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	switch {
	case ctx.Err() != nil:
		return v, fmt.Errorf("retry cancelled: %w", err)
	case tries > 1 && apperr.Is(err, apperr.KindRemoteUnavailable):
		return v, fmt.Errorf("all %d attempts failed: %w", tries, err)
	}
	return v, err
}
