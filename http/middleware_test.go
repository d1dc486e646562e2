package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/x402arcade/x402-go"
	"github.com/x402arcade/x402-go/encoding"
	"github.com/x402arcade/x402-go/internal/x402test"
)

func newTestHandler(t *testing.T, fac *x402test.Facilitator, reached *bool) http.Handler {
	t.Helper()
	mw := NewX402Middleware(&Config{
		Payment:     newTestConfig(t),
		Facilitator: fac,
	})
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*reached = true
		record, ok := PaymentFromContext(r.Context())
		if !ok {
			t.Error("payment record missing from context")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"payer": record.Payer})
	}))
}

func TestMiddlewareChallenge(t *testing.T) {
	var reached bool
	handler := newTestHandler(t, newFakeFacilitator(settledOutcome()), &reached)

	req := httptest.NewRequest(http.MethodPost, "http://arcade.test/api/games/snake/start", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	if reached {
		t.Error("handler must not run without payment")
	}

	var raw map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	if v, ok := raw["x402Version"].(string); !ok || v != "1" {
		t.Errorf("x402Version = %#v, want the string \"1\"", raw["x402Version"])
	}
	if _, ok := raw["error"]; ok {
		t.Error("plain challenge should not carry an error")
	}

	var challenge x402.PaymentRequiredResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &challenge); err != nil {
		t.Fatal(err)
	}
	if len(challenge.Accepts) != 1 {
		t.Fatalf("accepts = %d, want 1", len(challenge.Accepts))
	}
	if challenge.PayTo != testPayTo || challenge.Amount != "10000" || challenge.ChainID != 338 {
		t.Errorf("unexpected challenge %+v", challenge)
	}
	if challenge.Resource != "http://arcade.test/api/games/snake/start" {
		t.Errorf("resource = %q", challenge.Resource)
	}
	if challenge.Description != "Start a game" {
		t.Errorf("description = %q", challenge.Description)
	}
}

func TestMiddlewareFailures(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name          string
		header        string
		outcome       x402.SettlementOutcome
		wantStatus    int
		wantCode      x402.ErrorCode
		wantChallenge bool
	}{
		{
			name:       "malformed header",
			header:     "bm90IGpzb24=",
			outcome:    settledOutcome(),
			wantStatus: http.StatusBadRequest,
			wantCode:   x402.CodeInvalidJSON,
		},
		{
			name: "wrong recipient",
			header: func() string {
				p := newTestPayload(now)
				p.To = testPayer
				return encodeTestPayload(t, p)
			}(),
			outcome:    settledOutcome(),
			wantStatus: http.StatusForbidden,
			wantCode:   x402.CodeRecipientMismatch,
		},
		{
			name: "wrong amount",
			header: func() string {
				p := newTestPayload(now)
				p.Value = "20000"
				return encodeTestPayload(t, p)
			}(),
			outcome:       settledOutcome(),
			wantStatus:    http.StatusPaymentRequired,
			wantCode:      x402.CodeAmountMismatch,
			wantChallenge: true,
		},
		{
			name:          "insufficient balance",
			header:        encodeTestPayload(t, newTestPayload(now)),
			outcome:       x402.NewSettlementFailure(x402.CodeInsufficientBalance, "balance too low", time.Time{}),
			wantStatus:    http.StatusPaymentRequired,
			wantCode:      x402.CodeInsufficientBalance,
			wantChallenge: true,
		},
		{
			name:       "facilitator timeout",
			header:     encodeTestPayload(t, newTestPayload(now)),
			outcome:    x402.NewSettlementFailure(x402.CodeTimeout, "slow", time.Time{}),
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   x402.CodeTimeout,
		},
		{
			name:       "facilitator error",
			header:     encodeTestPayload(t, newTestPayload(now)),
			outcome:    x402.NewSettlementFailure(x402.CodeFacilitatorError, "status 500", time.Time{}),
			wantStatus: http.StatusBadGateway,
			wantCode:   x402.CodeFacilitatorError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reached bool
			handler := newTestHandler(t, newFakeFacilitator(tt.outcome), &reached)

			req := httptest.NewRequest(http.MethodPost, "/api/games/snake/start", nil)
			req.Header.Set("X-PAYMENT", tt.header)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if reached {
				t.Error("handler must not run after a failed payment")
			}
			if rec.Header().Get(x402.PaymentResponseHeader) != "" {
				t.Error("failed payments must not carry a payment response header")
			}

			var body struct {
				X402Version string          `json:"x402Version"`
				Accepts     json.RawMessage `json:"accepts"`
				Error       *x402.ErrorBody `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.X402Version != x402.ProtocolVersion {
				t.Errorf("x402Version = %q", body.X402Version)
			}
			if body.Error == nil || body.Error.Code != tt.wantCode {
				t.Fatalf("error = %+v, want code %s", body.Error, tt.wantCode)
			}
			if got := len(body.Accepts) > 0; got != tt.wantChallenge {
				t.Errorf("challenge present = %v, want %v", got, tt.wantChallenge)
			}
		})
	}
}

func TestMiddlewareSuccess(t *testing.T) {
	var reached bool
	fac := newFakeFacilitator(settledOutcome())
	handler := newTestHandler(t, fac, &reached)

	req := httptest.NewRequest(http.MethodPost, "/api/games/snake/start", nil)
	req.Header.Set(x402.PaymentHeader, encodeTestPayload(t, newTestPayload(time.Now())))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !reached {
		t.Fatal("handler did not run")
	}
	if fac.Calls() != 1 {
		t.Errorf("facilitator calls = %d", fac.Calls())
	}

	settlement, err := encoding.DecodeSettlement(rec.Header().Get(x402.PaymentResponseHeader))
	if err != nil {
		t.Fatalf("DecodeSettlement: %v", err)
	}
	if !settlement.Success || settlement.Transaction != testTx || settlement.Payer != testPayer {
		t.Errorf("unexpected settlement %+v", settlement)
	}
	if settlement.Network != "cronos-testnet" || settlement.BlockNumber != 4242 {
		t.Errorf("unexpected settlement %+v", settlement)
	}
}

func TestNewX402MiddlewarePanicsOnBadConfig(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewX402Middleware(&Config{})
}

func TestPaymentFromContextEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := PaymentFromContext(req.Context()); ok {
		t.Error("expected no payment")
	}
	if _, ok := PaymentFromContext(WithPayment(req.Context(), nil)); ok {
		t.Error("nil record should not count")
	}
}
