package vectorstackai

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
)

// Retry defaults. DefaultMaxRetries counts total attempts, including the first one.
const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 16 * time.Second
	DefaultJitter       = 1 * time.Second
)

// exponentialJitter waits initial*2^n plus up to jitter of uniform noise, capped at max.
type exponentialJitter struct {
	initial time.Duration
	max     time.Duration
	jitter  time.Duration
	attempt int
	rand    func() float64
}

func newExponentialJitter() *exponentialJitter {
	return &exponentialJitter{
		initial: DefaultInitialDelay,
		max:     DefaultMaxDelay,
		jitter:  DefaultJitter,
		rand:    rand.Float64,
	}
}

func (b *exponentialJitter) NextBackOff() time.Duration {
	delay := b.max
	// past 2^5 the exponential term alone already exceeds the cap
	if b.attempt < 5 {
		delay = b.initial * time.Duration(1<<uint(b.attempt))
	}
	delay += time.Duration(b.rand() * float64(b.jitter))
	b.attempt++
	if delay > b.max {
		return b.max
	}
	return delay
}

func (b *exponentialJitter) Reset() {
	b.attempt = 0
}

// retryController runs one logical call, retrying only transient failures.
type retryController struct {
	maxAttempts int
	newBackOff  func() backoff.BackOff
	logger      hclog.Logger
	onRetry     func(operation string, err error)
}

func newRetryController(maxAttempts int, logger hclog.Logger) *retryController {
	return &retryController{
		maxAttempts: minOne(maxAttempts),
		newBackOff:  func() backoff.BackOff { return newExponentialJitter() },
		logger:      logger,
	}
}

// run invokes fn until it succeeds, returns a non-retryable error, or the attempt budget is spent. The last error
// is returned unchanged.
func (r *retryController) run(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), uint64(r.maxAttempts-1)), ctx)
	notify := func(err error, wait time.Duration) {
		r.logger.Debug("retrying request", "operation", operation, "attempt", attempt, "wait", wait, "error", err)
		if r.onRetry != nil {
			r.onRetry(operation, err)
		}
	}
	return backoff.RetryNotify(op, policy, notify)
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Kind.Retryable()
}

func minOne(x int) int {
	if x < 1 {
		return 1
	}
	return x
}
