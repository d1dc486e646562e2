// Package x402test provides payment fixtures and a scripted facilitator for
// tests of packages built on the payment processor.
package x402test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/x402arcade/x402-go"
	"github.com/x402arcade/x402-go/encoding"
	"github.com/x402arcade/x402-go/facilitator"
)

const (
	PayTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
	Payer = "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"
	// Amount is 0.01 devUSDC.e in base units.
	Amount = "10000"
	Block  = 4242
)

var (
	Nonce       = "0x" + strings.Repeat("ab", 32)
	Transaction = "0x" + strings.Repeat("cd", 32)
)

// Config returns a validated testnet configuration charging Amount to PayTo.
func Config(t testing.TB) *x402.PaymentConfig {
	t.Helper()
	cfg, err := x402.NewPaymentConfig(x402.PaymentConfig{
		PayTo:          PayTo,
		Amount:         Amount,
		FacilitatorURL: "https://facilitator.example.com",
		ChainID:        338,
		Description:    "Start a game",
	})
	if err != nil {
		t.Fatalf("NewPaymentConfig: %v", err)
	}
	return cfg
}

// Payload returns a well-formed payload satisfying Config at now. The
// signature is shaped correctly but not real.
func Payload(now time.Time) x402.PaymentPayload {
	return x402.PaymentPayload{
		X402Version: x402.ProtocolVersion,
		Scheme:      x402.SchemeExact,
		Network:     "cronos-testnet",
		From:        Payer,
		To:          PayTo,
		Value:       Amount,
		ValidAfter:  x402.UintFromUint64(uint64(now.Add(-10 * time.Second).Unix())),
		ValidBefore: x402.UintFromUint64(uint64(now.Add(5 * time.Minute).Unix())),
		Nonce:       Nonce,
		V:           27,
		R:           "0x" + strings.Repeat("11", 32),
		S:           "0x" + strings.Repeat("22", 32),
	}
}

// Header encodes p as an X-Payment header value.
func Header(t testing.TB, p x402.PaymentPayload) string {
	t.Helper()
	v, err := encoding.EncodePayment(p)
	if err != nil {
		t.Fatalf("EncodePayment: %v", err)
	}
	return v
}

// Settled is a successful outcome for Transaction in Block.
func Settled() x402.SettlementOutcome {
	return x402.NewSettlementSuccess(Transaction, Block, time.Now())
}

// Facilitator returns scripted outcomes in order, repeating the last one.
// It is safe for concurrent use.
type Facilitator struct {
	// Err, when set, is returned from Settle as if nothing had been sent.
	Err error

	mu       sync.Mutex
	outcomes []x402.SettlementOutcome
	requests []x402.SettlementRequest
}

var _ facilitator.Interface = (*Facilitator)(nil)

// NewFacilitator creates a facilitator answering with outcomes. With none it
// always settles successfully.
func NewFacilitator(outcomes ...x402.SettlementOutcome) *Facilitator {
	if len(outcomes) == 0 {
		outcomes = []x402.SettlementOutcome{Settled()}
	}
	return &Facilitator{outcomes: outcomes}
}

func (f *Facilitator) Settle(_ context.Context, req x402.SettlementRequest) (x402.SettlementOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return x402.SettlementOutcome{}, f.Err
	}
	f.requests = append(f.requests, req)
	i := min(len(f.requests), len(f.outcomes)) - 1
	return f.outcomes[i], nil
}

func (f *Facilitator) Supported(context.Context) (*facilitator.SupportedResponse, error) {
	return &facilitator.SupportedResponse{Kinds: []facilitator.SupportedKind{
		{X402Version: "1", Scheme: x402.SchemeExact, Network: "cronos-testnet"},
	}}, nil
}

// Calls returns the number of settle requests received.
func (f *Facilitator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Requests returns a copy of the settle requests received.
func (f *Facilitator) Requests() []x402.SettlementRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]x402.SettlementRequest(nil), f.requests...)
}
