package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"rms-connector-service/internal/errs"
)

func newTestExecutor(policy Policy, breaker *CircuitBreaker) (*Executor, *[]time.Duration) {
	e := NewExecutor("test", policy, breaker)
	var sleeps []time.Duration
	e.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return e, &sleeps
}

func TestExecuteSucceedsFirstAttempt(t *testing.T) {
	e, sleeps := newTestExecutor(Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute}, nil)

	calls := 0
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *sleeps)

	m := e.Metrics()
	assert.Equal(t, int64(1), m.Attempts)
	assert.Equal(t, int64(1), m.Successes)
	assert.Equal(t, int64(0), m.Retries)
}

func TestExecuteRetriesTransientErrors(t *testing.T) {
	e, sleeps := newTestExecutor(Policy{
		MaxAttempts:     3,
		BaseDelay:       time.Second,
		MaxDelay:        time.Minute,
		ExponentialBase: 2.0,
	}, nil)

	calls := 0
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errs.New(errs.KindTransientAPI, "flaky", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, *sleeps, 2)
	assert.Equal(t, time.Second, (*sleeps)[0])
	assert.Equal(t, 2*time.Second, (*sleeps)[1])
	assert.Equal(t, int64(2), e.Metrics().Retries)
}

func TestExecuteStopsOnTerminalKind(t *testing.T) {
	e, sleeps := newTestExecutor(Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		StopOn:      []errs.Kind{errs.KindUnauthorized},
	}, nil)

	calls := 0
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return errs.New(errs.KindUnauthorized, "bad token", nil)
	})

	require.Error(t, err)
	assert.Equal(t, errs.KindUnauthorized, errs.KindOf(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, *sleeps)
}

func TestExecuteRetryOnRestrictsKinds(t *testing.T) {
	e, _ := newTestExecutor(Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		RetryOn:     []errs.Kind{errs.KindRateLimited},
	}, nil)

	calls := 0
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		// Retryable by default, but not in the RetryOn set.
		return errs.New(errs.KindConnectionLost, "gone", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteHonorsRetryAfterClampedToMaxDelay(t *testing.T) {
	e, sleeps := newTestExecutor(Policy{
		MaxAttempts: 2,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
	}, nil)

	calls := 0
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errs.RateLimited(time.Hour, nil)
		}
		return nil
	})

	require.NoError(t, err)
	require.Len(t, *sleeps, 1)
	assert.Equal(t, 10*time.Second, (*sleeps)[0])
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	e, _ := newTestExecutor(Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second}, nil)

	calls := 0
	cause := errs.New(errs.KindQueryTimeout, "slow", nil)
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, errs.KindQueryTimeout, errs.KindOf(err))
	assert.Equal(t, int64(1), e.Metrics().Failures)
}

func TestExecuteUntypedErrorsDoNotRetry(t *testing.T) {
	e, _ := newTestExecutor(Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second}, nil)

	calls := 0
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return errors.New("plain")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteFailsFastWhenBreakerOpen(t *testing.T) {
	breaker := NewCircuitBreaker(1, 1, time.Hour)
	breaker.RecordFailure()

	e, _ := newTestExecutor(Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute}, breaker)

	calls := 0
	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.Error(t, err)
	assert.Equal(t, errs.KindCircuitOpen, errs.KindOf(err))
	assert.Equal(t, 0, calls)
	assert.True(t, e.BreakerOpen())
}

func TestExecuteFailuresTripBreaker(t *testing.T) {
	breaker := NewCircuitBreaker(2, 1, time.Hour)
	e, _ := newTestExecutor(Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second}, breaker)

	_ = e.Execute(context.Background(), "op", func(ctx context.Context) error {
		return errs.New(errs.KindTransientAPI, "down", nil)
	})

	// Two failed attempts in one Execute reach the failure threshold.
	assert.Equal(t, CircuitOpen, breaker.State())
}

func TestExecuteOpTimeoutMapsToOperationTimeout(t *testing.T) {
	e, _ := newTestExecutor(Policy{
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Second,
		OpTimeout:   10 * time.Millisecond,
	}, nil)

	err := e.Execute(context.Background(), "op", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.Equal(t, errs.KindOperationTimeout, errs.KindOf(err))
}

func TestExecuteContextCancellationAborts(t *testing.T) {
	e := NewExecutor("test", Policy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := e.Execute(ctx, "op", func(ctx context.Context) error {
		calls++
		return errs.New(errs.KindTransientAPI, "flaky", nil)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	e := NewExecutor("test", Policy{
		MaxAttempts:     10,
		BaseDelay:       time.Second,
		MaxDelay:        5 * time.Second,
		ExponentialBase: 2.0,
	}, nil)

	assert.Equal(t, time.Second, e.backoff(1, 0))
	assert.Equal(t, 2*time.Second, e.backoff(2, 0))
	assert.Equal(t, 5*time.Second, e.backoff(5, 0))
}

func TestBackoffJitterStaysWithinTenPercent(t *testing.T) {
	e := NewExecutor("test", Policy{
		MaxAttempts:     3,
		BaseDelay:       time.Second,
		MaxDelay:        time.Minute,
		ExponentialBase: 2.0,
		Jitter:          true,
	}, nil)

	for i := 0; i < 50; i++ {
		d := e.backoff(1, 0)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}

func TestBackoffJitterNeverExceedsMaxDelay(t *testing.T) {
	e := NewExecutor("test", Policy{
		MaxAttempts:     5,
		BaseDelay:       5 * time.Second,
		MaxDelay:        5 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}, nil)

	for i := 0; i < 50; i++ {
		d := e.backoff(3, 0)
		assert.LessOrEqual(t, d, 5*time.Second)
		assert.GreaterOrEqual(t, d, 4500*time.Millisecond)
	}
}

func TestNewFabricPolicies(t *testing.T) {
	fabric := NewFabric()

	require.NotNil(t, fabric.Storefront.Breaker())
	require.NotNil(t, fabric.Rms.Breaker())
	assert.Nil(t, fabric.Sync.Breaker())

	assert.Equal(t, "storefront", fabric.Storefront.Name())
	assert.Equal(t, 3, fabric.Storefront.policy.MaxAttempts)
	assert.Equal(t, time.Second, fabric.Storefront.policy.BaseDelay)
	assert.Equal(t, 30*time.Second, fabric.Storefront.policy.MaxDelay)
	assert.Equal(t, 180*time.Second, fabric.Storefront.policy.OpTimeout)

	assert.Equal(t, 3, fabric.Rms.policy.MaxAttempts)
	assert.Equal(t, 2*time.Second, fabric.Rms.policy.BaseDelay)
	assert.Equal(t, 45*time.Second, fabric.Rms.policy.OpTimeout)

	assert.Equal(t, 2, fabric.Sync.policy.MaxAttempts)
	assert.Equal(t, 5*time.Second, fabric.Sync.policy.BaseDelay)
}
