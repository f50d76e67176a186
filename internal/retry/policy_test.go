package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		MaxElapsed:  time.Second,
	}
}

func TestPolicy_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicy_StopsAtMaxAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	notified := 0

	err := fastPolicy(4).Do(context.Background(), func() error {
		calls++
		return boom
	}, func(error, time.Duration) { notified++ })

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 3, notified)
}

func TestPolicy_PermanentErrorNotRetried(t *testing.T) {
	bad := errors.New("bad request")
	calls := 0

	err := fastPolicy(10).Do(context.Background(), func() error {
		calls++
		return Permanent(bad)
	}, nil)

	assert.ErrorIs(t, err, bad)
	assert.Equal(t, 1, calls)
}

func TestPolicy_StopsAtMaxElapsed(t *testing.T) {
	p := Policy{
		MaxAttempts: 1000,
		BaseDelay:   5 * time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		MaxElapsed:  30 * time.Millisecond,
	}

	calls := 0
	start := time.Now()
	err := p.Do(context.Background(), func() error {
		calls++
		return errors.New("down")
	}, nil)

	assert.Error(t, err)
	assert.Less(t, calls, 1000)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPolicy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 100, BaseDelay: time.Hour, MaxDelay: time.Hour, MaxElapsed: time.Hour}

	calls := 0
	err := p.Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("down")
	}, nil)

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 10, p.MaxAttempts)
	assert.Equal(t, 10*time.Second, p.MaxElapsed)
}
