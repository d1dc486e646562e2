package x402

import (
	"strings"
	"testing"
	"time"
)

const (
	testPayTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
	testPayer = "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"
)

var (
	testNonce = "0x" + strings.Repeat("ab", 32)
	testR     = "0x" + strings.Repeat("11", 32)
	testS     = "0x" + strings.Repeat("22", 32)
)

func newTestConfig(t *testing.T) *PaymentConfig {
	t.Helper()
	cfg, err := NewPaymentConfig(PaymentConfig{
		PayTo:          testPayTo,
		Amount:         "10000",
		FacilitatorURL: "https://facilitator.example.com",
		ChainID:        338,
	})
	if err != nil {
		t.Fatalf("NewPaymentConfig: %v", err)
	}
	return cfg
}

func newTestPayload(now time.Time) PaymentPayload {
	return PaymentPayload{
		X402Version: ProtocolVersion,
		Scheme:      SchemeExact,
		Network:     "cronos-testnet",
		From:        testPayer,
		To:          testPayTo,
		Value:       "10000",
		ValidAfter:  UintFromUint64(uint64(now.Add(-10 * time.Second).Unix())),
		ValidBefore: UintFromUint64(uint64(now.Add(5 * time.Minute).Unix())),
		Nonce:       testNonce,
		V:           27,
		R:           testR,
		S:           testS,
	}
}
