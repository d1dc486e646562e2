package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/x402arcade/x402-go"
	httpx402 "github.com/x402arcade/x402-go/http"
	x402chi "github.com/x402arcade/x402-go/http/chi"
)

// games the arcade can start.
var games = map[string]string{
	"snake":  "Snake",
	"tetris": "Tetris",
	"pong":   "Pong",
}

// gameSession is created for every settled payment.
type gameSession struct {
	ID          string    `json:"sessionId"`
	Game        string    `json:"game"`
	Player      string    `json:"player"`
	PaymentID   string    `json:"paymentId"`
	AmountPaid  string    `json:"amountPaid"`
	Transaction string    `json:"transactionHash"`
	Network     string    `json:"network"`
	StartedAt   time.Time `json:"startedAt"`
}

func newGameSession(game string, record *x402.PaymentRecord) gameSession {
	return gameSession{
		ID:          uuid.NewString(),
		Game:        game,
		Player:      record.Payer,
		PaymentID:   record.ID,
		AmountPaid:  record.FormattedAmount,
		Transaction: record.TransactionHash,
		Network:     record.Network,
		StartedAt:   time.Now().UTC(),
	}
}

// healthChecker is the part of the facilitator client the health route needs.
type healthChecker interface {
	Health(ctx context.Context) httpx402.HealthStatus
}

type arcade struct {
	processor *httpx402.Processor
	health    healthChecker
	logger    *slog.Logger
}

// routes builds the arcade API. Only starting a game is gated; the game is
// looked up before payment so unknown games are never charged.
func (a *arcade) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	cfg := a.processor.Config()

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/games", a.handleListGames)
		r.With(requireGame, x402chi.Middleware(a.processor, cfg.Description)).
			Post("/games/{game}/start", a.handleStartGame)
	})
	return r
}

func requireGame(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		game := strings.ToLower(chi.URLParam(r, "game"))
		if _, ok := games[game]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown game: " + game})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *arcade) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := a.health.Health(r.Context())
	code := http.StatusOK
	state := "ok"
	if !status.Healthy {
		code = http.StatusServiceUnavailable
		state = "degraded"
	}
	writeJSON(w, code, map[string]any{
		"status":      state,
		"network":     a.processor.Config().Network(),
		"facilitator": status,
	})
}

func (a *arcade) handleListGames(w http.ResponseWriter, r *http.Request) {
	cfg := a.processor.Config()
	price := x402.FormatAmount(cfg.AmountInt(), cfg.TokenDecimals)

	type gameInfo struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Price string `json:"price"`
	}
	list := make([]gameInfo, 0, len(games))
	for id, name := range games {
		list = append(list, gameInfo{ID: id, Name: name, Price: price})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	writeJSON(w, http.StatusOK, map[string]any{
		"games":   list,
		"network": cfg.Network(),
		"payTo":   cfg.PayTo,
	})
}

func (a *arcade) handleStartGame(w http.ResponseWriter, r *http.Request) {
	record, ok := httpx402.PaymentFromContext(r.Context())
	if !ok {
		// Unreachable behind the payment middleware.
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "payment record missing"})
		return
	}

	session := newGameSession(strings.ToLower(chi.URLParam(r, "game")), record)
	a.logger.Info("game session started",
		"session", session.ID,
		"game", session.Game,
		"player", session.Player,
		"record", record.ID)

	writeJSON(w, http.StatusCreated, session)
}

// auditLog writes one line per payment lifecycle event.
func auditLog(logger *slog.Logger) x402.PaymentCallback {
	return func(ev x402.PaymentEvent) {
		attrs := []any{
			"event", string(ev.Type),
			"record", ev.RecordID,
			"resource", ev.Resource,
			"payer", ev.Payer,
			"amount", ev.Amount,
			"network", ev.Network,
		}
		switch ev.Type {
		case x402.PaymentEventSuccess:
			attrs = append(attrs, "transaction", ev.Transaction, "duration", ev.Duration)
		case x402.PaymentEventFailure:
			attrs = append(attrs, "code", ev.Code, "error", ev.Error, "duration", ev.Duration)
		}
		logger.Info("payment audit", attrs...)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
