package sentinel

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spiceai/spice-sql-go/logger"
)

const (
	DEFAULT_TIMEOUT  = 0
	DEFAULT_INTERVAL = 100 * time.Millisecond
)

var ErrTimeout = errors.New("sentinel timed out")

type WatchStatus int

const (
	WatchSuccess WatchStatus = iota
	WatchErr
	WatchExecuting
	WatchTimeout
	WatchCanceled
)

func (s WatchStatus) String() string {
	switch s {
	case WatchSuccess:
		return "SUCCESS"
	case WatchErr:
		return "ERROR"
	case WatchExecuting:
		return "EXECUTING"
	case WatchCanceled:
		return "CANCELED"
	case WatchTimeout:
		return "TIMEOUT"
	}
	return "<UNSET>"
}

type Done func() bool

// Sentinel polls StatusFn until it reports done, then hands the last status to OnDoneFn.
type Sentinel[T any] struct {
	StatusFn   func(ctx context.Context) (doneFn Done, status T, err error)
	OnCancelFn func() error
	OnDoneFn   func(ctx context.Context, status T) (T, error)

	// check the status right away instead of after the first interval
	PollImmediately bool
}

// Watch checks the status on the given interval, up to timeout. Zero timeout
// waits until ctx is done. A StatusFn error stops the watch. Cancellation and
// timeout call OnCancelFn.
func (s Sentinel[T]) Watch(ctx context.Context, interval, timeout time.Duration) (WatchStatus, T, error) {
	var zero T
	if s.StatusFn == nil {
		s.StatusFn = func(context.Context) (Done, T, error) { return func() bool { return true }, zero, nil }
	}
	if timeout == 0 {
		timeout = DEFAULT_TIMEOUT
	}
	if interval == 0 {
		interval = DEFAULT_INTERVAL
	}

	var timeoutTimerCh <-chan time.Time
	if timeout != 0 {
		timeoutTimer := time.NewTimer(timeout)
		timeoutTimerCh = timeoutTimer.C
		defer timeoutTimer.Stop()
	}

	first := interval
	if s.PollImmediately {
		first = 0
	}
	intervalTimer := time.NewTimer(first)
	defer intervalTimer.Stop()

	type result struct {
		value T
		err   error
	}
	resCh := make(chan result, 1)
	processor := func(status T) {
		ret, err := s.OnDoneFn(ctx, status)
		resCh <- result{ret, err}
	}

	cancel := func() error {
		if s.OnCancelFn != nil {
			return s.OnCancelFn()
		}
		return nil
	}

	for {
		select {
		case <-intervalTimer.C:
			done, status, err := s.StatusFn(ctx)
			if err != nil {
				return WatchErr, status, err
			}
			if done() {
				if s.OnDoneFn == nil {
					return WatchSuccess, status, nil
				}
				go processor(status)
			} else {
				// StatusFn is called again after interval time
				_ = intervalTimer.Reset(interval)
			}
		case res := <-resCh:
			if res.err != nil {
				return WatchErr, zero, res.err
			}
			return WatchSuccess, res.value, nil
		case <-ctx.Done():
			_ = intervalTimer.Stop()
			err := cancel()
			if err == nil {
				err = ctx.Err()
			}
			return WatchCanceled, zero, err
		case <-timeoutTimerCh:
			_ = intervalTimer.Stop()
			logger.Info().Msgf("wait timed out after %s", timeout.String())
			if err := cancel(); err != nil {
				return WatchTimeout, zero, errors.Wrap(ErrTimeout, err.Error())
			}
			return WatchTimeout, zero, ErrTimeout
		}
	}
}
