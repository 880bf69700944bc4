package retry

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"rms-connector-service/internal/errs"
)

// Policy defines retry behavior for one named executor.
type Policy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool        // ±10% when set
	RetryOn         []errs.Kind // when non-empty, only these kinds retry
	StopOn          []errs.Kind // these kinds abort immediately
	OpTimeout       time.Duration
}

// StorefrontPolicy governs storefront API calls.
func StorefrontPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
		RetryOn:         []errs.Kind{errs.KindRateLimited, errs.KindTransientAPI, errs.KindOperationTimeout},
		StopOn:          []errs.Kind{errs.KindUnauthorized, errs.KindPermanentAPI},
		OpTimeout:       180 * time.Second,
	}
}

// RmsPolicy governs RMS database calls.
func RmsPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		BaseDelay:       2 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
		RetryOn:         []errs.Kind{errs.KindConnectionLost, errs.KindQueryTimeout, errs.KindOperationTimeout},
		StopOn:          []errs.Kind{errs.KindConstraintViolation, errs.KindValidation},
		OpTimeout:       45 * time.Second,
	}
}

// SyncPolicy governs whole-order upserts. No breaker and no per-attempt
// timeout; the inner store calls carry their own.
func SyncPolicy() Policy {
	return Policy{
		MaxAttempts:     2,
		BaseDelay:       5 * time.Second,
		MaxDelay:        120 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
		StopOn:          []errs.Kind{errs.KindValidation, errs.KindConstraintViolation, errs.KindUnauthorized, errs.KindPermanentAPI},
	}
}

// Metrics is a snapshot of executor counters.
type Metrics struct {
	Attempts        int64         `json:"attempts"`
	Successes       int64         `json:"successes"`
	Failures        int64         `json:"failures"`
	Retries         int64         `json:"retries"`
	AverageDuration time.Duration `json:"averageDuration"`
	BreakerState    string        `json:"breakerState,omitempty"`
}

// Executor runs operations under a named retry policy and an optional
// circuit breaker.
type Executor struct {
	name    string
	policy  Policy
	breaker *CircuitBreaker

	mu            sync.Mutex
	attempts      int64
	successes     int64
	failures      int64
	retries       int64
	totalDuration time.Duration
	completed     int64

	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor. breaker may be nil.
func NewExecutor(name string, policy Policy, breaker *CircuitBreaker) *Executor {
	return &Executor{
		name:    name,
		policy:  policy,
		breaker: breaker,
		sleep:   sleepCtx,
	}
}

// Name returns the executor's policy name.
func (e *Executor) Name() string {
	return e.name
}

// Breaker returns the attached circuit breaker, or nil.
func (e *Executor) Breaker() *CircuitBreaker {
	return e.breaker
}

// BreakerOpen reports whether the attached breaker currently refuses calls.
func (e *Executor) BreakerOpen() bool {
	return e.breaker != nil && e.breaker.State() == CircuitOpen
}

// Execute runs op under the executor's policy. It fails fast with a
// CIRCUIT_OPEN error when the breaker refuses, honors rate-limit hints
// clamped to the policy's max delay, and stops immediately on kinds the
// policy marks terminal.
func (e *Executor) Execute(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	if e.breaker != nil && !e.breaker.CanExecute() {
		err := errs.New(errs.KindCircuitOpen, "circuit open for "+e.name, nil)
		e.record(false, 0)
		return err
	}

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		e.countAttempt()

		lastErr = e.runAttempt(ctx, op)
		if lastErr == nil {
			if e.breaker != nil {
				e.breaker.RecordSuccess()
			}
			e.record(true, time.Since(start))
			return nil
		}

		if e.breaker != nil {
			e.breaker.RecordFailure()
		}

		if attempt >= e.policy.MaxAttempts || !e.shouldRetry(lastErr) {
			break
		}
		e.countRetry()

		delay := e.backoff(attempt, errs.RetryAfterOf(lastErr))
		if err := e.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	e.record(false, time.Since(start))
	return lastErr
}

// runAttempt runs op under the per-attempt timeout, mapping a deadline hit
// to an OPERATION_TIMEOUT error.
func (e *Executor) runAttempt(ctx context.Context, op func(ctx context.Context) error) error {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if e.policy.OpTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, e.policy.OpTimeout)
		defer cancel()
	}

	err := op(attemptCtx)
	if err == nil {
		return nil
	}
	if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return errs.New(errs.KindOperationTimeout, "operation timed out in "+e.name, err)
	}
	return err
}

// shouldRetry applies the policy's stop and retry sets to a classified error.
func (e *Executor) shouldRetry(err error) bool {
	kind := errs.KindOf(err)
	for _, k := range e.policy.StopOn {
		if kind == k {
			return false
		}
	}
	if len(e.policy.RetryOn) > 0 {
		for _, k := range e.policy.RetryOn {
			if kind == k {
				return true
			}
		}
		return false
	}
	return errs.IsRetryable(err)
}

// backoff computes the sleep before the next attempt. A rate-limit hint
// wins, clamped to MaxDelay.
func (e *Executor) backoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		if retryAfter > e.policy.MaxDelay {
			return e.policy.MaxDelay
		}
		return retryAfter
	}

	base := e.policy.ExponentialBase
	if base <= 0 {
		base = 2.0
	}
	delay := float64(e.policy.BaseDelay) * math.Pow(base, float64(attempt-1))
	if delay > float64(e.policy.MaxDelay) {
		delay = float64(e.policy.MaxDelay)
	}
	if e.policy.Jitter {
		delay += delay * 0.1 * (rand.Float64()*2 - 1)
	}
	// MaxDelay is a hard cap; jitter never pushes the sleep past it.
	if delay > float64(e.policy.MaxDelay) {
		delay = float64(e.policy.MaxDelay)
	}
	return time.Duration(delay)
}

// Metrics returns a snapshot of the executor's counters.
func (e *Executor) Metrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := Metrics{
		Attempts:  e.attempts,
		Successes: e.successes,
		Failures:  e.failures,
		Retries:   e.retries,
	}
	if e.completed > 0 {
		m.AverageDuration = e.totalDuration / time.Duration(e.completed)
	}
	if e.breaker != nil {
		m.BreakerState = e.breaker.State().String()
	}
	return m
}

func (e *Executor) countAttempt() {
	e.mu.Lock()
	e.attempts++
	e.mu.Unlock()
}

func (e *Executor) countRetry() {
	e.mu.Lock()
	e.retries++
	e.mu.Unlock()
}

func (e *Executor) record(success bool, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if success {
		e.successes++
	} else {
		e.failures++
	}
	e.completed++
	e.totalDuration += d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fabric holds the three process-wide executors created at startup.
type Fabric struct {
	Storefront *Executor
	Rms        *Executor
	Sync       *Executor
}

// NewFabric builds the named executors with their production policies:
// storefront (breaker 10 failures / 60s reset), rms (breaker 2 / 300s) and
// sync (no breaker).
func NewFabric() *Fabric {
	return &Fabric{
		Storefront: NewExecutor("storefront", StorefrontPolicy(), NewCircuitBreaker(10, 3, 60*time.Second)),
		Rms:        NewExecutor("rms", RmsPolicy(), NewCircuitBreaker(2, 3, 300*time.Second)),
		Sync:       NewExecutor("sync", SyncPolicy(), nil),
	}
}
