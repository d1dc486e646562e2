package server

import (
	"log/slog"

	httpx402 "github.com/x402arcade/x402-go/http"
)

// Config holds configuration for the MCP server with x402 payment support.
type Config struct {
	// Payment configures the processor that settles tool payments.
	Payment *httpx402.Config

	// PaymentTools maps payable tool names to the description shown in
	// their challenge.
	PaymentTools map[string]string

	Logger *slog.Logger
}

// AddPaymentTool marks a tool as payable.
func (c *Config) AddPaymentTool(toolName, description string) {
	if c.PaymentTools == nil {
		c.PaymentTools = make(map[string]string)
	}
	c.PaymentTools[toolName] = description
}

// RequiresPayment checks if a tool requires payment.
func (c *Config) RequiresPayment(toolName string) bool {
	_, ok := c.PaymentTools[toolName]
	return ok
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
