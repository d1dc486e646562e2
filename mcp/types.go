package mcp

import "fmt"

// Metadata keys carrying x402 data in MCP messages.
const (
	// MetaKeyPayment is the key for payment data in tools/call params._meta.
	// The value is either the X-Payment header string or its decoded JSON object.
	MetaKeyPayment = "x402/payment"

	// MetaKeyPaymentResponse is the key for the settlement summary in result._meta.
	MetaKeyPaymentResponse = "x402/payment-response"
)

// JSON-RPC error codes used for payment failures.
const (
	CodeParseError      = -32700
	CodeInvalidRequest  = -32600
	CodeInvalidParams   = -32602
	CodeInternalError   = -32603
	CodePaymentRequired = 402
)

// ToolResource is the resource URL of a tool in challenges and records.
func ToolResource(tool string) string {
	return fmt.Sprintf("mcp://tools/%s", tool)
}
