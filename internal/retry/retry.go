// Package retry runs a query attempt with bounded exponential backoff.
//
// Attempts are strictly sequential. An error is retried only when it is a
// transient transport failure and the failing attempt delivered no rows to
// the caller.
package retry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	spiceerrint "github.com/spiceai/spice-sql-go/internal/errors"
	"github.com/spiceai/spice-sql-go/logger"
	"github.com/spiceai/spice-sql-go/queryctx"
)

type Config struct {
	MaxRetries     int
	BackoffFactor  float64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Context is the retry state of one top level call.
type Context struct {
	maxRetries int
	attempts   int
	partial    atomic.Bool
}

// MarkPartialDelivery records that rows reached the caller. It cannot be undone.
func (rc *Context) MarkPartialDelivery() {
	rc.partial.Store(true)
}

func (rc *Context) PartialDelivery() bool {
	return rc.partial.Load()
}

// Attempts returns the number of attempts started so far.
func (rc *Context) Attempts() int {
	return rc.attempts
}

func (rc *Context) MaxRetries() int {
	return rc.maxRetries
}

// Attempt runs one try. Implementations call rc.MarkPartialDelivery before
// handing rows to the caller.
type Attempt[T any] func(ctx context.Context, rc *Context) (T, error)

// Execute runs attempt up to cfg.MaxRetries+1 times and returns the first
// success or the most recent error.
func Execute[T any](ctx context.Context, cfg Config, attempt Attempt[T], opts ...Option) (T, error) {
	var zero T
	if cfg.MaxRetries < 0 {
		return zero, spiceerrint.NewValidationError(ctx, spiceerrint.ErrNegativeMaxRetries, nil)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	rc := &Context{maxRetries: cfg.MaxRetries}
	log := logger.WithContext(queryctx.CorrelationIdFromContext(ctx), queryctx.QueryIdFromContext(ctx))

	op := func() (T, error) {
		rc.attempts++
		res, err := attempt(ctx, rc)
		if err == nil {
			return res, nil
		}

		if rc.PartialDelivery() {
			if !errors.Is(err, spiceerrint.PartialDeliveryError) {
				err = spiceerrint.NewPartialDeliveryError(ctx, 1, err)
			}
			return zero, backoff.Permanent(err)
		}
		if !spiceerrint.IsRetryable(err) {
			return zero, backoff.Permanent(err)
		}

		log.Debug().Err(err).Msgf("spice: attempt %d of %d failed", rc.attempts, rc.MaxRetries()+1)
		return zero, err
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(newBackOff(cfg)),
		backoff.WithMaxTries(uint(cfg.MaxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Info().Msgf("spice: retrying in %v after error: %v", next, err)
			if o.onRetry != nil {
				o.onRetry(rc.attempts, err)
			}
		}),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		return zero, err
	}

	return res, nil
}

func newBackOff(cfg Config) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if cfg.InitialBackoff > 0 {
		b.InitialInterval = cfg.InitialBackoff
	}
	if cfg.BackoffFactor >= 1 {
		b.Multiplier = cfg.BackoffFactor
	}
	if cfg.MaxBackoff > 0 {
		b.MaxInterval = cfg.MaxBackoff
	}
	return b
}

type options struct {
	onRetry func(attempt int, err error)
}

type Option func(*options)

// WithOnRetry is called after a failed attempt that will be retried.
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(o *options) {
		o.onRetry = fn
	}
}
