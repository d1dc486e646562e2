package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/x402arcade/x402-go"
)

const (
	testPayerKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testPayerAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testTxHash       = "0x8f2e5b1b4c7d2a3e9f0a1b2c3d4e5f60718293a4b5c6d7e8f90123456789abcd"
)

// newFacilitatorServer answers /settle with a confirmed transfer and
// /supported with the testnet kind.
func newFacilitatorServer(t *testing.T, settles *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/settle":
			settles.Add(1)
			var req x402.SettlementRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if !strings.EqualFold(req.Authorization.From, testPayerAddress) || req.ChainID != 338 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = io.WriteString(w, `{"success":true,"transaction":{"hash":"`+testTxHash+`","blockNumber":"77"}}`)
		case "/supported":
			_, _ = io.WriteString(w, `{"kinds":[{"x402Version":1,"scheme":"exact","network":"cronos-testnet"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPayEndToEnd(t *testing.T) {
	var settles atomic.Int32
	fac := newFacilitatorServer(t, &settles)

	env := baseEnv()
	env["FACILITATOR_URL"] = fac.URL
	env["VERIFY_SIGNATURES"] = "true"
	settings, err := loadServerSettings(mapEnv(env))
	if err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newArcade(settings, logger)
	if err != nil {
		t.Fatal(err)
	}
	api := httptest.NewServer(a.routes())
	defer api.Close()

	opts := &payOptions{key: testPayerKey, chainID: 338, maxAmount: "0.05"}
	signer, err := opts.signer(mapEnv(nil))
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err = pay(context.Background(), &out, signer, http.MethodPost, api.URL+"/api/games/snake/start", "", logger)
	if err != nil {
		t.Fatalf("pay: %v\n%s", err, out.String())
	}
	if settles.Load() != 1 {
		t.Errorf("settle calls = %d", settles.Load())
	}
	for _, want := range []string{"201 Created", "Transaction: " + testTxHash, "Block: 77", `"game":"snake"`} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	rec, err := http.Get(api.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	rec.Body.Close()
	if rec.StatusCode != http.StatusOK {
		t.Errorf("health = %d", rec.StatusCode)
	}
}

func TestPayRefusesExpensiveGames(t *testing.T) {
	var settles atomic.Int32
	fac := newFacilitatorServer(t, &settles)

	env := baseEnv()
	env["FACILITATOR_URL"] = fac.URL
	env["GAME_PRICE"] = "1"
	settings, err := loadServerSettings(mapEnv(env))
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newArcade(settings, logger)
	if err != nil {
		t.Fatal(err)
	}
	api := httptest.NewServer(a.routes())
	defer api.Close()

	opts := &payOptions{key: testPayerKey, chainID: 338, maxAmount: "0.05"}
	signer, err := opts.signer(mapEnv(nil))
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := pay(context.Background(), &out, signer, http.MethodPost, api.URL+"/api/games/snake/start", "", logger); err == nil {
		t.Fatal("expected the payment to be refused")
	}
	if settles.Load() != 0 {
		t.Error("nothing should reach the facilitator")
	}
}

func TestPaySignerSources(t *testing.T) {
	tests := []struct {
		name    string
		opts    payOptions
		env     map[string]string
		want    string
		wantErr bool
	}{
		{name: "flag key", opts: payOptions{key: testPayerKey, chainID: 338}, want: testPayerAddress},
		{name: "env key", opts: payOptions{chainID: 338}, env: map[string]string{"PAYER_PRIVATE_KEY": testPayerKey}, want: testPayerAddress},
		{
			name: "env mnemonic",
			opts: payOptions{chainID: 338, account: 1},
			env:  map[string]string{"PAYER_MNEMONIC": "test test test test test test test test test test test junk"},
			want: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		},
		{name: "no key", opts: payOptions{chainID: 338}, wantErr: true},
		{name: "bad max", opts: payOptions{key: testPayerKey, chainID: 338, maxAmount: "lots"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer, err := tt.opts.signer(mapEnv(tt.env))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if signer.Address().Hex() != tt.want {
				t.Errorf("address = %s, want %s", signer.Address().Hex(), tt.want)
			}
			if signer.Network() != "cronos-testnet" {
				t.Errorf("network = %s", signer.Network())
			}
		})
	}
}

func TestChallengeCommand(t *testing.T) {
	t.Setenv("PAY_TO_ADDRESS", testPayTo)
	t.Setenv("FACILITATOR_URL", "https://facilitator.example.com")
	t.Setenv("GAME_PRICE", "0.05")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"challenge", "/api/games/pong/start", "--env-file", ""})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	var challenge x402.PaymentRequiredResponse
	if err := json.Unmarshal(out.Bytes(), &challenge); err != nil {
		t.Fatalf("decode: %v\n%s", err, out.String())
	}
	if challenge.X402Version != "1" || len(challenge.Accepts) != 1 {
		t.Fatalf("unexpected challenge %+v", challenge)
	}
	req := challenge.Accepts[0]
	if req.MaxAmountRequired != "50000" || req.Resource != "/api/games/pong/start" || req.Network != "cronos-testnet" {
		t.Errorf("unexpected requirement %+v", req)
	}
}
