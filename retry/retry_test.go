package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/x402arcade/x402-go"
)

var fastConfig = Config{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     5 * time.Millisecond,
	Multiplier:   2.0,
}

func always(error) bool { return true }

func TestWithRetry(t *testing.T) {
	t.Run("first attempt succeeds", func(t *testing.T) {
		calls := 0
		got, err := WithRetry(context.Background(), fastConfig, always, func() (string, error) {
			calls++
			return "tx", nil
		})
		if err != nil || got != "tx" || calls != 1 {
			t.Errorf("got %q, %v after %d calls", got, err, calls)
		}
	})

	t.Run("recovers after transient failures", func(t *testing.T) {
		calls := 0
		got, err := WithRetry(context.Background(), fastConfig, always, func() (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("connection reset")
			}
			return 42, nil
		})
		if err != nil || got != 42 || calls != 3 {
			t.Errorf("got %d, %v after %d calls", got, err, calls)
		}
	})

	t.Run("stops at max attempts and keeps the last error", func(t *testing.T) {
		calls := 0
		last := x402.NewPaymentError(x402.CodeTimeout, "deadline", nil)
		_, err := WithRetry(context.Background(), fastConfig, always, func() (string, error) {
			calls++
			return "", last
		})
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
		pe, ok := x402.AsPaymentError(err)
		if !ok || pe.Code != x402.CodeTimeout {
			t.Errorf("expected TIMEOUT PaymentError in %v", err)
		}
	})

	t.Run("non-retryable error returns immediately", func(t *testing.T) {
		calls := 0
		rejected := errors.New("rejected")
		_, err := WithRetry(context.Background(), fastConfig,
			func(err error) bool { return !errors.Is(err, rejected) },
			func() (string, error) {
				calls++
				return "", rejected
			})
		if !errors.Is(err, rejected) || calls != 1 {
			t.Errorf("got %v after %d calls", err, calls)
		}
	})

	t.Run("cancelled context prevents the first attempt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		_, err := WithRetry(ctx, fastConfig, always, func() (string, error) {
			calls++
			return "", nil
		})
		if !errors.Is(err, context.Canceled) || calls != 0 {
			t.Errorf("got %v after %d calls", err, calls)
		}
	})

	t.Run("deadline during backoff keeps both errors", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		cfg := Config{MaxAttempts: 10, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}
		boom := errors.New("boom")
		calls := 0
		_, err := WithRetry(ctx, cfg, always, func() (string, error) {
			calls++
			return "", boom
		})
		if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, boom) {
			t.Errorf("expected deadline and last error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("invalid config makes no attempt", func(t *testing.T) {
		for _, attempts := range []int{0, -1} {
			calls := 0
			cfg := fastConfig
			cfg.MaxAttempts = attempts
			_, err := WithRetry(context.Background(), cfg, always, func() (string, error) {
				calls++
				return "ok", nil
			})
			if !errors.Is(err, ErrInvalidConfig) || calls != 0 {
				t.Errorf("MaxAttempts=%d: got %v after %d calls", attempts, err, calls)
			}
		}
	})
}

func TestWithRetryBackoff(t *testing.T) {
	var delays []time.Duration
	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     3 * time.Millisecond,
		Multiplier:   2,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			if attempt != len(delays)+1 {
				t.Errorf("attempt = %d, want %d", attempt, len(delays)+1)
			}
			delays = append(delays, delay)
		},
	}

	_, _ = WithRetry(context.Background(), cfg, always, func() (string, error) {
		return "", errors.New("down")
	})

	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond, 3 * time.Millisecond}
	if fmt.Sprint(delays) != fmt.Sprint(want) {
		t.Errorf("delays = %v, want %v", delays, want)
	}
}

func TestWithSimpleRetry(t *testing.T) {
	type receipt struct{ Hash string }
	got, err := WithSimpleRetry(context.Background(), func() (*receipt, error) {
		return &receipt{Hash: "0xabc"}, nil
	}, always)
	if err != nil || got.Hash != "0xabc" {
		t.Errorf("got %+v, %v", got, err)
	}
}

func TestIsRetryableSettlement(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("eof"), false},
		{"network error", x402.NewPaymentError(x402.CodeNetworkError, "dial", nil), true},
		{"timeout", x402.NewPaymentError(x402.CodeTimeout, "deadline", nil), true},
		{"facilitator error", x402.NewPaymentError(x402.CodeFacilitatorError, "status 500", nil), true},
		{"wrapped timeout", fmt.Errorf("settle: %w", x402.NewPaymentError(x402.CodeTimeout, "deadline", nil)), true},
		{"invalid signature", x402.NewPaymentError(x402.CodeInvalidSignature, "bad sig", nil), false},
		{"nonce used", x402.NewPaymentError(x402.CodeNonceAlreadyUsed, "used", nil), false},
		{"insufficient balance", x402.NewPaymentError(x402.CodeInsufficientBalance, "poor", nil), false},
		{"validation", x402.NewPaymentError(x402.CodeAmountMismatch, "short", nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableSettlement(tt.err); got != tt.want {
				t.Errorf("IsRetryableSettlement(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func BenchmarkWithRetry(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = WithRetry(context.Background(), DefaultConfig, always, func() (string, error) {
			return "ok", nil
		})
	}
}
