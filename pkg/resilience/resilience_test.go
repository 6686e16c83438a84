package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/errors"
)

var errFlaky = errors.New("flaky")

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, func() error {
		calls++
		return errFlaky
	})
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 2, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	cfg := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return !errors.Is(err, apperrors.ErrClosed) },
	}
	err := Retry(context.Background(), "op", cfg, func() error {
		calls++
		return apperrors.ErrClosed
	})
	assert.ErrorIs(t, err, apperrors.ErrClosed)
	assert.Equal(t, 1, calls)
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 5*time.Millisecond, "slow", func(context.Context) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, apperrors.ErrTimeout)

	err = WithTimeout(context.Background(), time.Second, "fast", func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	clock := time.Unix(0, 0)
	b := NewBreaker("store", BreakerConfig{FailureThreshold: 2, Cooldown: time.Second})
	b.now = func() time.Time { return clock }

	calls := 0
	failing := func() error { calls++; return errFlaky }
	assert.ErrorIs(t, b.Do(failing), errFlaky)
	assert.ErrorIs(t, b.Do(failing), errFlaky)
	assert.Equal(t, BreakerOpen, b.State())

	assert.ErrorIs(t, b.Do(failing), ErrBreakerOpen)
	assert.Equal(t, 2, calls)

	clock = clock.Add(time.Second)
	assert.Equal(t, BreakerHalfOpen, b.State())
	assert.ErrorIs(t, b.Do(failing), errFlaky)
	assert.Equal(t, BreakerOpen, b.State(), "failed probe reopens")

	clock = clock.Add(time.Second)
	assert.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := NewBreaker("store", BreakerConfig{FailureThreshold: 2})
	_ = b.Do(func() error { return errFlaky })
	_ = b.Do(func() error { return nil })
	_ = b.Do(func() error { return errFlaky })
	assert.Equal(t, BreakerClosed, b.State())

	_ = b.Do(func() error { return errFlaky })
	assert.Equal(t, BreakerOpen, b.State())
	b.Reset()
	assert.Equal(t, BreakerClosed, b.State())
}
