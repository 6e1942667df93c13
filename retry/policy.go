// Package retry re-invokes envelope-producing operations with exponential
// backoff. Client errors are never retried.
package retry

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPolicy is returned by Policy.Validate.
var ErrInvalidPolicy = errors.New("invalid retry policy")

const (
	DefaultMaxAttempts = 2
	DefaultBaseDelay   = 1000 * time.Millisecond
	DefaultMultiplier  = 2
)

// Policy controls how many times and how far apart a failed operation is
// re-invoked. MaxAttempts counts retries, so an operation runs at most
// MaxAttempts+1 times.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  int
	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration
}

// DefaultPolicy waits 1s and then 2s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Multiplier:  DefaultMultiplier,
	}
}

// Delay returns BaseDelay * Multiplier^attempt, where attempt is the
// zero-based index of the attempt that just failed.
func (p Policy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= time.Duration(p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Validate ...
func (p Policy) Validate() error {
	if p.MaxAttempts < 0 {
		return fmt.Errorf("%w: max attempts must not be negative, got %d", ErrInvalidPolicy, p.MaxAttempts)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("%w: base delay must be positive, got %s", ErrInvalidPolicy, p.BaseDelay)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("%w: multiplier must be at least 1, got %d", ErrInvalidPolicy, p.Multiplier)
	}
	if p.MaxDelay < 0 {
		return fmt.Errorf("%w: max delay must not be negative, got %s", ErrInvalidPolicy, p.MaxDelay)
	}
	return nil
}
