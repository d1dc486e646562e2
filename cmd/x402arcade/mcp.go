package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"
	"github.com/x402arcade/x402-go/evm"
	httpx402 "github.com/x402arcade/x402-go/http"
	mcpx402 "github.com/x402arcade/x402-go/mcp/server"
)

func newMCPCmd(root *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the arcade as MCP tools",
		Long: `Serve the arcade over MCP streamable HTTP. list_games is free;
start_game requires an x402 payment in params._meta["x402/payment"].`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadServerSettings(os.Getenv)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				settings.Port = port
			}

			srv, err := newMCPServer(settings, root)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Start(ctx, ":"+settings.Port)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", defaultPort, "Port to listen on (overrides PORT)")
	return cmd
}

func newMCPServer(s *serverSettings, root *rootOptions) (*mcpx402.X402Server, error) {
	client := httpx402.NewFacilitatorClient(s.Payment)
	client.Logger = root.logger
	if s.JWTKey != "" {
		provider, err := httpx402.NewJWTAuthorizationProvider(s.JWTKeyID, s.JWTKey, root.logger)
		if err != nil {
			return nil, fmt.Errorf("FACILITATOR_JWT_KEY: %w", err)
		}
		client.AuthorizationProvider = provider
	}

	payment := &httpx402.Config{
		Payment:     s.Payment,
		Facilitator: client,
		OnPayment:   auditLog(root.logger),
	}
	if s.VerifySignatures {
		payment.VerifySignature = evm.VerifyPayloadSignature
	}

	srv, err := mcpx402.NewX402Server("x402arcade", "1.0.0", &mcpx402.Config{
		Payment: payment,
		Logger:  root.logger,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(games))
	for id := range games {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	srv.AddTool(
		mcpproto.NewTool("list_games", mcpproto.WithDescription("List the arcade's games")),
		func(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
			return mcpproto.NewToolResultText(strings.Join(ids, ", ")), nil
		},
	)
	srv.AddPayableTool(
		mcpproto.NewTool("start_game",
			mcpproto.WithDescription("Start a paid game session"),
			mcpproto.WithString("game",
				mcpproto.Required(),
				mcpproto.Description("Game to start"),
				mcpproto.Enum(ids...),
			),
		),
		startGameTool(root),
		s.Payment.Description,
	)
	return srv, nil
}

func startGameTool(root *rootOptions) func(context.Context, mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	return func(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
		record, ok := httpx402.PaymentFromContext(ctx)
		if !ok {
			return mcpproto.NewToolResultError("payment record missing"), nil
		}
		game := strings.ToLower(req.GetString("game", ""))
		if _, known := games[game]; !known {
			// The payment has settled; the error names it for a refund.
			root.logger.Warn("paid start_game for unknown game", "game", game, "record", record.ID)
			return mcpproto.NewToolResultError(fmt.Sprintf("unknown game %q; payment %s settled", game, record.ID)), nil
		}

		session := newGameSession(game, record)
		root.logger.Info("game session started", "session", session.ID, "game", game, "player", session.Player)

		data, err := json.Marshal(session)
		if err != nil {
			return nil, err
		}
		return mcpproto.NewToolResultText(string(data)), nil
	}
}
