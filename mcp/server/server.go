// Package server exposes MCP tools over streamable HTTP with x402 payments
// for the tools marked payable.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	httpx402 "github.com/x402arcade/x402-go/http"
)

// X402Server wraps an MCP server and adds x402 payment protection.
type X402Server struct {
	mcpServer *mcpserver.MCPServer
	processor *httpx402.Processor
	config    *Config
}

// NewX402Server creates an MCP server whose payable tools are settled by a
// processor built from config.Payment.
func NewX402Server(name, version string, config *Config, opts ...mcpserver.ServerOption) (*X402Server, error) {
	if config == nil || config.Payment == nil {
		return nil, errors.New("payment configuration is required")
	}
	if config.Payment.Logger == nil {
		config.Payment.Logger = config.Logger
	}
	processor, err := httpx402.NewProcessorFromConfig(config.Payment)
	if err != nil {
		return nil, err
	}
	if config.PaymentTools == nil {
		config.PaymentTools = make(map[string]string)
	}

	return &X402Server{
		mcpServer: mcpserver.NewMCPServer(name, version, opts...),
		processor: processor,
		config:    config,
	}, nil
}

// AddTool adds a free tool.
func (s *X402Server) AddTool(tool mcpproto.Tool, handler mcpserver.ToolHandlerFunc) {
	s.mcpServer.AddTool(tool, handler)
}

// AddPayableTool adds a tool that runs only after its payment settled. An
// empty description falls back to the tool's own. The handler finds the
// record with httpx402.PaymentFromContext.
func (s *X402Server) AddPayableTool(tool mcpproto.Tool, handler mcpserver.ToolHandlerFunc, description string) {
	if description == "" {
		description = tool.Description
	}
	s.config.AddPaymentTool(tool.Name, description)
	s.mcpServer.AddTool(tool, handler)
}

// Handler returns the streamable HTTP handler wrapped with payment handling.
func (s *X402Server) Handler(opts ...mcpserver.StreamableHTTPOption) http.Handler {
	opts = append(opts, mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
		if record, ok := httpx402.PaymentFromContext(r.Context()); ok {
			return httpx402.WithPayment(ctx, record)
		}
		return ctx
	}))
	return NewX402Handler(mcpserver.NewStreamableHTTPServer(s.mcpServer, opts...), s.processor, s.config)
}

// Start serves the MCP endpoint on addr until ctx is cancelled.
func (s *X402Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger := s.config.logger()
	logger.Info("starting x402 MCP server",
		"addr", addr,
		"facilitator", s.processor.Config().FacilitatorURL,
		"payableTools", len(s.config.PaymentTools))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Processor returns the processor settling tool payments.
func (s *X402Server) Processor() *httpx402.Processor {
	return s.processor
}

// GetMCPServer returns the underlying MCP server (for advanced usage)
func (s *X402Server) GetMCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}
