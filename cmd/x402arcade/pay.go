package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/x402arcade/x402-go"
	"github.com/x402arcade/x402-go/evm"
	httpx402 "github.com/x402arcade/x402-go/http"
)

type payOptions struct {
	key       string
	mnemonic  string
	account   uint32
	keystore  string
	password  string
	chainID   int64
	maxAmount string
	method    string
	data      string
	timeout   time.Duration
}

func newPayCmd(root *rootOptions) *cobra.Command {
	opts := &payOptions{}

	cmd := &cobra.Command{
		Use:   "pay <url>",
		Short: "Request a paid resource, paying the 402 challenge",
		Long: `Request a URL and answer its 402 challenge with an EIP-3009 authorization.

The payer key is taken from --key, --mnemonic or --keystore, falling back to
the PAYER_PRIVATE_KEY and PAYER_MNEMONIC environment variables.`,
		Example: `  x402arcade pay http://localhost:3001/api/games/snake/start --key 0x... --max 0.05`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := opts.signer(os.Getenv)
			if err != nil {
				return err
			}
			root.logger.Info("payer ready", "address", signer.Address().Hex(), "network", signer.Network())

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return pay(ctx, cmd.OutOrStdout(), signer, opts.method, args[0], opts.data, root.logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.key, "key", "", "Payer private key (hex)")
	f.StringVar(&opts.mnemonic, "mnemonic", "", "BIP-39 mnemonic of the payer")
	f.Uint32Var(&opts.account, "account", 0, "Account index for --mnemonic")
	f.StringVar(&opts.keystore, "keystore", "", "Path to an encrypted keystore file")
	f.StringVar(&opts.password, "password", "", "Keystore password")
	f.Int64Var(&opts.chainID, "chain-id", defaultChainID, "Chain to pay on")
	f.StringVar(&opts.maxAmount, "max", "", "Refuse challenges above this token amount (e.g. 0.05)")
	f.StringVarP(&opts.method, "method", "X", http.MethodPost, "HTTP method")
	f.StringVarP(&opts.data, "data", "d", "", "Request body")
	f.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Overall request timeout")
	return cmd
}

// signer builds the payer from flags, then the environment.
func (o *payOptions) signer(getenv func(string) string) (*evm.Signer, error) {
	signerOpts := []evm.SignerOption{evm.WithChainID(o.chainID)}

	switch {
	case o.key != "":
		signerOpts = append(signerOpts, evm.WithPrivateKey(o.key))
	case o.mnemonic != "":
		signerOpts = append(signerOpts, evm.WithMnemonic(o.mnemonic, o.account))
	case o.keystore != "":
		signerOpts = append(signerOpts, evm.WithKeystore(o.keystore, o.password))
	case getenv("PAYER_PRIVATE_KEY") != "":
		signerOpts = append(signerOpts, evm.WithPrivateKey(getenv("PAYER_PRIVATE_KEY")))
	case getenv("PAYER_MNEMONIC") != "":
		signerOpts = append(signerOpts, evm.WithMnemonic(getenv("PAYER_MNEMONIC"), o.account))
	default:
		return nil, errors.New("a payer key is required: use --key, --mnemonic or --keystore")
	}

	if o.maxAmount != "" {
		decimals := 6
		if chain, ok := x402.ChainByID(o.chainID); ok {
			decimals = chain.Decimals
		}
		limit, err := x402.ParseAmount(o.maxAmount, decimals)
		if err != nil {
			return nil, fmt.Errorf("--max: %w", err)
		}
		signerOpts = append(signerOpts, evm.WithMaxAmountPerCall(limit.String()))
	}
	return evm.NewSigner(signerOpts...)
}

// pay sends one request through the paying client and prints the response.
func pay(ctx context.Context, out io.Writer, signer x402.Signer, method, url, data string, logger *slog.Logger) error {
	client, err := httpx402.NewClient(
		httpx402.WithSigner(signer),
		httpx402.WithPaymentCallbacks(
			func(ev x402.PaymentEvent) {
				logger.Info("paying", "amount", ev.Amount, "payTo", ev.Recipient, "network", ev.Network)
			},
			func(ev x402.PaymentEvent) {
				logger.Info("payment accepted", "transaction", ev.Transaction, "duration", ev.Duration)
			},
			func(ev x402.PaymentEvent) {
				logger.Warn("payment rejected", "code", ev.Code, "error", ev.Error)
			},
		),
	)
	if err != nil {
		return err
	}

	var body io.Reader
	if data != "" {
		body = bytes.NewBufferString(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if data != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	fmt.Fprintf(out, "Status: %s\n", resp.Status)
	if settlement := httpx402.GetSettlement(resp); settlement != nil {
		fmt.Fprintf(out, "Transaction: %s\n", settlement.Transaction)
		fmt.Fprintf(out, "Payer: %s\n", settlement.Payer)
		if settlement.BlockNumber > 0 {
			fmt.Fprintf(out, "Block: %d\n", settlement.BlockNumber)
		}
	}
	fmt.Fprintf(out, "\n%s\n", bytes.TrimSpace(respBody))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server answered %s", resp.Status)
	}
	return nil
}
