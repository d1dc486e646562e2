package http

import (
	"github.com/x402arcade/x402-go/internal/x402test"
)

const (
	testPayTo = x402test.PayTo
	testPayer = x402test.Payer
)

var (
	testNonce = x402test.Nonce
	testTx    = x402test.Transaction

	newTestConfig      = x402test.Config
	newTestPayload     = x402test.Payload
	encodeTestPayload  = x402test.Header
	settledOutcome     = x402test.Settled
	newFakeFacilitator = x402test.NewFacilitator
)
