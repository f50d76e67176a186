// Package retry wraps provider calls in a bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retried operation by attempt count and total elapsed time.
// Whichever limit is reached first ends the loop.
type Policy struct {
	MaxAttempts int           `yaml:"max_attempts" default:"10" validate:"min=1"`
	BaseDelay   time.Duration `yaml:"base_delay" default:"1s" validate:"min=0"`
	MaxDelay    time.Duration `yaml:"max_delay" default:"8s" validate:"min=0"`
	MaxElapsed  time.Duration `yaml:"max_elapsed" default:"10s" validate:"min=0"`
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 10,
		BaseDelay:   time.Second,
		MaxDelay:    8 * time.Second,
		MaxElapsed:  10 * time.Second,
	}
}

// NotifyFunc observes a failed attempt before the next sleep.
type NotifyFunc func(err error, wait time.Duration)

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the policy is
// exhausted, or ctx is cancelled. The last error is returned unwrapped.
func (p Policy) Do(ctx context.Context, op func() error, notify NotifyFunc) error {
	var n backoff.Notify
	if notify != nil {
		n = backoff.Notify(notify)
	}
	err := backoff.RetryNotify(op, p.backOff(ctx), n)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.MaxInterval = p.MaxDelay
	eb.MaxElapsedTime = p.MaxElapsed
	eb.Reset()

	var b backoff.BackOff = eb
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}
