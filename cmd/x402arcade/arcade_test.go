package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/x402arcade/x402-go"
	httpx402 "github.com/x402arcade/x402-go/http"
	"github.com/x402arcade/x402-go/internal/x402test"
)

type fakeHealth struct {
	status httpx402.HealthStatus
}

func (f fakeHealth) Health(context.Context) httpx402.HealthStatus { return f.status }

// eventLog collects audit events.
type eventLog struct {
	mu     sync.Mutex
	events []x402.PaymentEvent
}

func (l *eventLog) record(ev x402.PaymentEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func newTestArcade(t *testing.T, fac *x402test.Facilitator, health httpx402.HealthStatus) (*arcade, *eventLog) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	events := &eventLog{}
	processor, err := httpx402.NewProcessorFromConfig(&httpx402.Config{
		Payment:     x402test.Config(t),
		Facilitator: fac,
		OnPayment: func(ev x402.PaymentEvent) {
			events.record(ev)
			auditLog(logger)(ev)
		},
		Logger: logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &arcade{processor: processor, health: fakeHealth{health}, logger: logger}, events
}

func TestArcadeHealth(t *testing.T) {
	tests := []struct {
		name       string
		status     httpx402.HealthStatus
		wantCode   int
		wantStatus string
	}{
		{"healthy", httpx402.HealthStatus{Healthy: true, Latency: time.Millisecond}, http.StatusOK, "ok"},
		{"facilitator down", httpx402.HealthStatus{Error: "connection refused"}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestArcade(t, x402test.NewFacilitator(), tt.status)
			rec := httptest.NewRecorder()
			a.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var body struct {
				Status  string `json:"status"`
				Network string `json:"network"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tt.wantStatus || body.Network != "cronos-testnet" {
				t.Errorf("unexpected body %+v", body)
			}
		})
	}
}

func TestArcadeListGames(t *testing.T) {
	a, _ := newTestArcade(t, x402test.NewFacilitator(), httpx402.HealthStatus{Healthy: true})
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/games", nil))

	var body struct {
		Games []struct {
			ID    string `json:"id"`
			Price string `json:"price"`
		} `json:"games"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Games) != len(games) {
		t.Fatalf("games = %d", len(body.Games))
	}
	if body.Games[0].ID != "pong" || body.Games[0].Price != "0.01" {
		t.Errorf("first game = %+v", body.Games[0])
	}
}

func TestArcadeStartGame(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		header    func(t *testing.T) string
		outcome   x402.SettlementOutcome
		wantCode  int
		wantCalls int
	}{
		{
			name:     "unknown game is never charged",
			path:     "/api/games/chess/start",
			header:   func(t *testing.T) string { return x402test.Header(t, x402test.Payload(time.Now())) },
			outcome:  x402test.Settled(),
			wantCode: http.StatusNotFound,
		},
		{
			name:     "no payment",
			path:     "/api/games/snake/start",
			header:   func(t *testing.T) string { return "" },
			outcome:  x402test.Settled(),
			wantCode: http.StatusPaymentRequired,
		},
		{
			name:      "settlement rejected",
			path:      "/api/games/snake/start",
			header:    func(t *testing.T) string { return x402test.Header(t, x402test.Payload(time.Now())) },
			outcome:   x402.NewSettlementFailure(x402.CodeInsufficientBalance, "balance too low", time.Now()),
			wantCode:  http.StatusPaymentRequired,
			wantCalls: 1,
		},
		{
			name:      "paid",
			path:      "/api/games/Tetris/start",
			header:    func(t *testing.T) string { return x402test.Header(t, x402test.Payload(time.Now())) },
			outcome:   x402test.Settled(),
			wantCode:  http.StatusCreated,
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fac := x402test.NewFacilitator(tt.outcome)
			a, _ := newTestArcade(t, fac, httpx402.HealthStatus{Healthy: true})

			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if h := tt.header(t); h != "" {
				req.Header.Set(x402.PaymentHeader, h)
			}
			rec := httptest.NewRecorder()
			a.routes().ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if fac.Calls() != tt.wantCalls {
				t.Errorf("facilitator calls = %d, want %d", fac.Calls(), tt.wantCalls)
			}
		})
	}
}

func TestArcadeSessionCarriesPayment(t *testing.T) {
	a, events := newTestArcade(t, x402test.NewFacilitator(), httpx402.HealthStatus{Healthy: true})

	req := httptest.NewRequest(http.MethodPost, "/api/games/snake/start", nil)
	req.Header.Set(x402.PaymentHeader, x402test.Header(t, x402test.Payload(time.Now())))
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(x402.PaymentResponseHeader) == "" {
		t.Error("settlement header missing")
	}

	var session gameSession
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatal(err)
	}
	if session.ID == "" || session.Game != "snake" {
		t.Errorf("unexpected session %+v", session)
	}
	if session.Player != x402test.Payer || session.Transaction != x402test.Transaction || session.AmountPaid != "0.01" {
		t.Errorf("session does not reflect the payment: %+v", session)
	}

	if len(events.events) != 2 {
		t.Fatalf("events = %d, want pending and success", len(events.events))
	}
	if events.events[1].Type != x402.PaymentEventSuccess || events.events[1].RecordID != session.PaymentID {
		t.Errorf("success event %+v does not match session payment %s", events.events[1], session.PaymentID)
	}
}
