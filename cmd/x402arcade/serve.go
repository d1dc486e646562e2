package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/x402arcade/x402-go/evm"
	httpx402 "github.com/x402arcade/x402-go/http"
	"github.com/x402arcade/x402-go/retry"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the arcade API",
		Long: `Run the arcade API. Starting a game requires an x402 payment:

  GET  /api/health               facilitator health
  GET  /api/games                game catalog and price
  POST /api/games/{game}/start   paid; returns a game session`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadServerSettings(os.Getenv)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				settings.Port = port
			}

			a, err := newArcade(settings, root.logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, ":"+settings.Port, a.routes(), root.logger)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", defaultPort, "Port to listen on (overrides PORT)")
	return cmd
}

// newArcade wires the facilitator client and the payment processor.
func newArcade(s *serverSettings, logger *slog.Logger) (*arcade, error) {
	client := httpx402.NewFacilitatorClient(s.Payment)
	client.Logger = logger

	if s.JWTKey != "" {
		provider, err := httpx402.NewJWTAuthorizationProvider(s.JWTKeyID, s.JWTKey, logger)
		if err != nil {
			return nil, fmt.Errorf("FACILITATOR_JWT_KEY: %w", err)
		}
		client.AuthorizationProvider = provider
	}

	cfg := &httpx402.Config{
		Payment:     s.Payment,
		Facilitator: client,
		OnPayment:   auditLog(logger),
		Logger:      logger,
	}
	if s.VerifySignatures {
		cfg.VerifySignature = evm.VerifyPayloadSignature
	}
	if s.SettleRetries > 0 {
		rc := retry.DefaultConfig
		rc.MaxAttempts = s.SettleRetries + 1
		cfg.SettleRetry = &rc
	}

	processor, err := httpx402.NewProcessorFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("arcade configured",
		"network", s.Payment.Network(),
		"payTo", s.Payment.PayTo,
		"amount", s.Payment.Amount,
		"token", s.Payment.TokenAddress,
		"facilitator", s.Payment.FacilitatorURL,
		"verifySignatures", s.VerifySignatures,
		"settleRetries", s.SettleRetries)

	return &arcade{processor: processor, health: client, logger: logger}, nil
}

// serve runs handler on addr until ctx is cancelled, then drains in-flight
// requests. A request being settled keeps running until the facilitator
// answers or its own timeout fires.
func serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("arcade listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
