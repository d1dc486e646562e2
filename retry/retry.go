// Package retry runs an operation again after transient failures, backing
// off exponentially between attempts. It is used around facilitator calls by
// the paying client and, when enabled, by the payment processor.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/x402arcade/x402-go"
)

// ErrInvalidConfig is returned when a Config cannot drive any attempt.
var ErrInvalidConfig = errors.New("retry: invalid config")

// Config holds retry configuration.
type Config struct {
	MaxAttempts  int           // total attempts, including the first
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // upper bound for any single delay
	Multiplier   float64       // growth factor applied after each delay

	// OnRetry, when set, is called before sleeping with the attempt that
	// just failed (starting at 1), its error and the upcoming delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig is used by WithSimpleRetry.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
}

// Validate checks that the config allows at least one attempt.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: MaxAttempts must be at least 1, got %d", ErrInvalidConfig, c.MaxAttempts)
	}
	if c.InitialDelay < 0 || c.MaxDelay < 0 {
		return fmt.Errorf("%w: delays cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// IsRetryable determines if an error should trigger a retry.
type IsRetryable func(error) bool

// WithRetry executes fn until it succeeds, returns a non-retryable error,
// the attempts are exhausted or ctx is done. The error from the last attempt
// is wrapped, so errors.As still finds a *x402.PaymentError in it.
func WithRetry[T any](
	ctx context.Context,
	config Config,
	isRetryable IsRetryable,
	fn func() (T, error),
) (T, error) {
	var zero T
	if err := config.Validate(); err != nil {
		return zero, err
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("context cancelled after %d attempts: %w", attempt-1, errors.Join(err, lastErr))
			}
			return zero, fmt.Errorf("context cancelled: %w", err)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}
		if attempt == config.MaxAttempts {
			break
		}

		if config.OnRetry != nil {
			config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, errors.Join(ctx.Err(), lastErr)
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if config.MaxDelay > 0 && delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// WithSimpleRetry uses DefaultConfig.
func WithSimpleRetry[T any](
	ctx context.Context,
	fn func() (T, error),
	isRetryable IsRetryable,
) (T, error) {
	return WithRetry(ctx, DefaultConfig, isRetryable, fn)
}

// IsRetryableSettlement reports whether a settlement failure may be retried
// with the same authorization. Transport failures, timeouts and facilitator
// errors qualify. Rejections of the authorization itself do not, and neither
// does anything that is not a *x402.PaymentError.
//
// Retrying an ambiguous failure is safe: the token contract consumes the
// nonce at most once, so a duplicate submission comes back as
// NONCE_ALREADY_USED rather than a second transfer.
func IsRetryableSettlement(err error) bool {
	pe, ok := x402.AsPaymentError(err)
	if !ok {
		return false
	}
	switch pe.Code {
	case x402.CodeNetworkError, x402.CodeTimeout, x402.CodeFacilitatorError:
		return true
	}
	return false
}
