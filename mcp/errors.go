// Package mcp carries x402 payments over the Model Context Protocol, where
// the payment travels in tools/call metadata instead of an HTTP header.
package mcp

import (
	"fmt"
	"net/http"

	"github.com/x402arcade/x402-go"
)

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

// PaymentRequired answers a tools/call without payment with the challenge.
func PaymentRequired(challenge x402.PaymentRequiredResponse) *RPCError {
	return &RPCError{Code: CodePaymentRequired, Message: "Payment required", Data: challenge}
}

// FromPaymentError maps a failed payment onto a JSON-RPC error. status is
// the HTTP status the same failure would get; 402 failures carry the
// challenge so the client can pay again.
func FromPaymentError(perr *x402.PaymentError, status int, challenge x402.PaymentRequiredResponse) *RPCError {
	if status == http.StatusPaymentRequired {
		challenge.Error = x402.NewErrorBody(perr)
		return &RPCError{Code: CodePaymentRequired, Message: perr.Message, Data: challenge}
	}

	code := CodeInternalError
	if status == http.StatusBadRequest || status == http.StatusForbidden {
		code = CodeInvalidParams
	}
	return &RPCError{
		Code:    code,
		Message: perr.Message,
		Data:    x402.ErrorResponse{X402Version: x402.ProtocolVersion, Error: x402.NewErrorBody(perr)},
	}
}
