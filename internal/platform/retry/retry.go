// Package retry provides the bounded retry policy used for panel fetches and
// Telegram sends, built on cenkalti/backoff
package retry

import (
	"context"
	"errors"
	"time"

	perr "otprelay/internal/platform/errors"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how often and how far apart an operation is attempted
// Attempts counts the first try, so Attempts 3 means up to 2 retries
type Policy struct {
	Attempts    int
	Delay       time.Duration
	MaxDelay    time.Duration
	Exponential bool
	Jitter      float64

	// Retryable decides whether a failed attempt is repeated; nil means perr.Retryable
	Retryable func(error) bool
}

// Fixed returns a constant-delay policy (3 attempts / 2s for Telegram)
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{Attempts: attempts, Delay: delay}
}

// Exponential returns a doubling policy capped at maxDelay with 20% jitter
func Exponential(attempts int, initial, maxDelay time.Duration) Policy {
	return Policy{Attempts: attempts, Delay: initial, MaxDelay: maxDelay, Exponential: true, Jitter: 0.2}
}

// RetryAfterHinter is implemented by errors that carry a server-provided wait
type RetryAfterHinter interface {
	RetryAfter() time.Duration
}

// Notify is called before each wait with the attempt that just failed
type Notify func(attempt int, err error, wait time.Duration)

// Do runs op until it succeeds, returns a non-retryable error, exhausts
// Attempts, or ctx ends; the last operation error is returned on exhaustion
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error, notify Notify) error {
	attempts := max(1, p.Attempts)
	isRetryable := p.Retryable
	if isRetryable == nil {
		isRetryable = perr.Retryable
	}

	h := &hinted{inner: p.backoff()}
	b := backoff.WithContext(backoff.WithMaxRetries(h, uint64(attempts-1)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx, attempt)
		h.last = err
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempt, err, wait)
		}
	})
}

func (p Policy) backoff() backoff.BackOff {
	if !p.Exponential {
		return backoff.NewConstantBackOff(max(0, p.Delay))
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = max(time.Millisecond, p.Delay)
	if p.MaxDelay > 0 {
		eb.MaxInterval = p.MaxDelay
	}
	eb.RandomizationFactor = p.Jitter
	eb.MaxElapsedTime = 0
	eb.Reset()
	return eb
}

// hinted stretches the next wait to a server hint when the last error carried one
type hinted struct {
	inner backoff.BackOff
	last  error
}

func (h *hinted) NextBackOff() time.Duration {
	d := h.inner.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	var hint RetryAfterHinter
	if errors.As(h.last, &hint) {
		if ra := hint.RetryAfter(); ra > d {
			return ra
		}
	}
	return d
}

func (h *hinted) Reset() {
	h.inner.Reset()
	h.last = nil
}
