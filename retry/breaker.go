package retry

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"github.com/talentbridge/go-apiclient/envelope"
)

const msgBreakerOpen = "Circuit breaker is open"

// BreakerConfig ...
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	FailureRatio     float64
	MinRequests      uint32
	OnStateChange    func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig ...
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		FailureRatio:     0.5,
		MinRequests:      10,
	}
}

// Breaker stops sending attempts to a remote that keeps failing. Only
// retryable failures count against it; client errors do not.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker ...
func NewBreaker(cfg BreakerConfig) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.FailureThreshold {
				return true
			}
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: cfg.OnStateChange,
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// State ...
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Counts ...
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

func guard[T any](ctx context.Context, b *Breaker, op Operation[T], attempt int) (envelope.Envelope[T], error) {
	var (
		result envelope.Envelope[T]
		fault  error
	)

	_, err := b.cb.Execute(func() (interface{}, error) {
		result, fault = op(ctx, attempt)
		if fault != nil {
			return nil, fault
		}
		if !result.Success && result.Error != nil && result.Error.Retryable() {
			return nil, result.Error
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return envelope.Fail[T](envelope.NewError(envelope.KindNetwork, msgBreakerOpen)), nil
	}
	return result, fault
}
