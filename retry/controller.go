package retry

import (
	"context"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/talentbridge/go-apiclient/envelope"
)

const msgRetryLimit = "Maximum retries exceeded"

// Operation performs one attempt. attempt is zero-based.
type Operation[T any] func(ctx context.Context, attempt int) (envelope.Envelope[T], error)

// Waiter blocks for d or until ctx is done.
type Waiter func(ctx context.Context, d time.Duration) error

type settings struct {
	wait    Waiter
	logger  log.Logger
	breaker *Breaker
}

// Option configures a single Do call.
type Option func(*settings)

// WithWaiter replaces the backoff wait.
func WithWaiter(w Waiter) Option {
	return func(s *settings) { s.wait = w }
}

// WithLogger ...
func WithLogger(logger log.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithBreaker routes every attempt through b.
func WithBreaker(b *Breaker) Option {
	return func(s *settings) { s.breaker = b }
}

// Do invokes op until it succeeds, fails with a client error, or the policy
// runs out of attempts. The last envelope is returned as is.
//
// A non-nil error from op is a fault. It is returned on the final attempt and
// retried with the same backoff before that.
func Do[T any](ctx context.Context, policy Policy, op Operation[T], opts ...Option) (envelope.Envelope[T], error) {
	s := settings{wait: WaitWithContext}
	for _, o := range opts {
		o(&s)
	}
	if s.logger == nil {
		s.logger = log.NewLogger()
	}

	for attempt := 0; attempt <= policy.MaxAttempts; attempt++ {
		result, err := invoke(ctx, s, op, attempt)
		last := attempt == policy.MaxAttempts

		var reason string
		if err != nil {
			if last {
				return result, err
			}
			reason = err.Error()
		} else {
			if result.Success {
				return result, nil
			}
			if result.Error != nil && result.Error.IsClientError() {
				return result, nil
			}
			if last {
				return result, nil
			}
			if result.Error != nil {
				reason = result.Error.Error()
			}
		}

		delay := policy.Delay(attempt)
		s.logger.Warnf("Attempt %d/%d failed: %s, retrying in %s", attempt+1, policy.MaxAttempts+1, reason, delay)

		if waitErr := s.wait(ctx, delay); waitErr != nil {
			s.logger.Debugf("Retry wait interrupted: %s", waitErr)
			if err != nil {
				return result, err
			}
			return result, nil
		}
	}

	return envelope.Fail[T](envelope.NewError(envelope.KindRetryLimit, msgRetryLimit)), nil
}

func invoke[T any](ctx context.Context, s settings, op Operation[T], attempt int) (envelope.Envelope[T], error) {
	if s.breaker == nil {
		return op(ctx, attempt)
	}
	return guard(ctx, s.breaker, op, attempt)
}

// WaitWithContext sleeps for delay without holding any lock. It returns
// ctx.Err() if ctx is done first.
func WaitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
