package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/x402arcade/x402-go"
	"github.com/x402arcade/x402-go/encoding"
	"github.com/x402arcade/x402-go/facilitator"
	"github.com/x402arcade/x402-go/retry"
	"github.com/x402arcade/x402-go/validation"
)

// SignatureVerifier checks a payload's signature locally before anything is
// sent to the facilitator. evm.VerifyPayloadSignature is the usual choice.
type SignatureVerifier func(x402.PaymentPayload, *x402.PaymentConfig) error

// Processor turns a request's headers into a settled PaymentRecord:
// locate, decode, validate, check, settle, record. It holds no per-request
// state and is safe for concurrent use.
type Processor struct {
	config      *x402.PaymentConfig
	facilitator facilitator.Interface
	logger      *slog.Logger
	now         func() time.Time
	verify      SignatureVerifier
	settleRetry *retry.Config
	onEvent     x402.PaymentCallback
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithLogger sets the logger. slog.Default() is used otherwise.
func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock replaces time.Now for validity window checks.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithSignatureVerifier enables the local signature check. A mismatch fails
// with INVALID_SIGNATURE without contacting the facilitator.
func WithSignatureVerifier(v SignatureVerifier) ProcessorOption {
	return func(p *Processor) {
		p.verify = v
	}
}

// WithSettleRetry retries settlement failures accepted by
// retry.IsRetryableSettlement. Settlement is attempted once without it.
func WithSettleRetry(cfg retry.Config) ProcessorOption {
	return func(p *Processor) {
		p.settleRetry = &cfg
	}
}

// WithEventCallback receives pending, success and failure events.
func WithEventCallback(cb x402.PaymentCallback) ProcessorOption {
	return func(p *Processor) {
		p.onEvent = cb
	}
}

// NewProcessor creates a Processor for a validated configuration.
func NewProcessor(cfg *x402.PaymentConfig, fac facilitator.Interface, opts ...ProcessorOption) (*Processor, error) {
	if cfg == nil {
		return nil, x402.NewConfigError("config", "", "payment configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fac == nil {
		return nil, errors.New("facilitator is required")
	}

	p := &Processor{
		config:      cfg,
		facilitator: fac,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the payment configuration.
func (p *Processor) Config() *x402.PaymentConfig {
	return p.config
}

// Challenge builds the 402 body for a resource.
func (p *Processor) Challenge(resource, description string) x402.PaymentRequiredResponse {
	return x402.BuildPaymentRequired(p.config, resource, description)
}

// Process runs the full payment flow for one request. It returns the settled
// record, or the error that stopped the flow. A missing header yields
// MISSING_HEADER, which callers answer with the plain challenge.
func (p *Processor) Process(ctx context.Context, header http.Header, resource string) (*x402.PaymentRecord, *x402.PaymentError) {
	det := LocatePaymentHeader(header, p.config.Debug, p.logger)
	if !det.Found {
		return nil, x402.NewValidationError(x402.CodeMissingHeader, "payment header is required")
	}

	payload, err := encoding.DecodePayment(det.Value)
	if err != nil {
		perr := asPaymentError(err, x402.CodeInvalidJSON)
		p.logger.Warn("invalid payment header", "resource", resource, "error", err)
		return nil, perr
	}

	if perr := validation.ValidatePayload(payload).Err(); perr != nil {
		p.logger.Warn("payment payload rejected", "resource", resource, "code", perr.Code, "field", perr.Field)
		return nil, perr
	}
	if perr := x402.CheckPayment(payload, p.config, p.now()); perr != nil {
		p.logger.Warn("payment does not satisfy requirement",
			"resource", resource, "payer", payload.From, "code", perr.Code, "field", perr.Field)
		return nil, perr
	}

	pending, err := x402.BuildPendingPaymentRecord(payload, p.config, det.DetectedAt)
	if err != nil {
		return nil, asPaymentError(err, x402.CodeInvalidPayload)
	}
	p.emit(x402.PaymentEvent{
		Type:      x402.PaymentEventPending,
		RecordID:  pending.ID,
		Resource:  resource,
		Network:   pending.Network,
		Payer:     pending.Payer,
		Recipient: pending.Recipient,
		Amount:    pending.FormattedAmount,
	})

	start := time.Now()
	outcome, perr := p.settle(ctx, payload)
	if perr != nil {
		p.fail(pending, resource, perr, time.Since(start))
		return nil, perr
	}

	record, err := x402.BuildPaymentRecord(payload, outcome, p.config, det.DetectedAt)
	if err != nil {
		perr := asPaymentError(err, x402.CodeUnknownError)
		p.fail(pending, resource, perr, time.Since(start))
		return nil, perr
	}
	record.ID = pending.ID

	p.logger.Info("payment settled",
		"record", record.ID,
		"payer", record.Payer,
		"amount", record.FormattedAmount,
		"network", record.Network,
		"transaction", record.TransactionHash,
		"block", record.BlockNumber)
	p.emit(x402.PaymentEvent{
		Type:        x402.PaymentEventSuccess,
		RecordID:    record.ID,
		Resource:    resource,
		Network:     record.Network,
		Payer:       record.Payer,
		Recipient:   record.Recipient,
		Amount:      record.FormattedAmount,
		Transaction: record.TransactionHash,
		Duration:    time.Since(start),
	})
	return record, nil
}

// settle runs the optional local signature check and the facilitator call.
// A successful return always carries a trusted outcome.
func (p *Processor) settle(ctx context.Context, payload x402.PaymentPayload) (x402.SettlementOutcome, *x402.PaymentError) {
	if p.verify != nil {
		if err := p.verify(payload, p.config); err != nil {
			outcome := x402.NewSettlementFailure(x402.CodeInvalidSignature, err.Error(), p.now())
			return outcome, outcome.Err()
		}
	}

	req := x402.BuildSettlementRequest(payload, p.config)
	cfg := retry.Config{MaxAttempts: 1}
	if p.settleRetry != nil {
		cfg = *p.settleRetry
		userHook := cfg.OnRetry
		cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			p.logger.Warn("retrying settlement", "attempt", attempt, "delay", delay, "error", err)
			if userHook != nil {
				userHook(attempt, err, delay)
			}
		}
	}

	attempts := 0
	ambiguous := false
	outcome, err := retry.WithRetry(ctx, cfg, retry.IsRetryableSettlement, func() (x402.SettlementOutcome, error) {
		attempts++
		o, err := p.facilitator.Settle(ctx, req)
		if err != nil {
			return o, err
		}
		if perr := o.Err(); perr != nil {
			if perr.Ambiguous {
				ambiguous = true
			}
			return o, perr
		}
		return o, nil
	})
	if err == nil {
		return outcome, nil
	}

	perr, ok := x402.AsPaymentError(err)
	if !ok {
		if attempts == 0 {
			return outcome, x402.NewSettlementError(x402.CodeFacilitatorError, "settlement was not attempted", err)
		}
		return outcome, x402.NewSettlementError(x402.CodeFacilitatorError, "settlement request was not sent", err)
	}
	if perr.Code == x402.CodeNonceAlreadyUsed && ambiguous {
		// An earlier attempt whose result was lost may be the one that
		// consumed the nonce.
		cp := *perr
		cp.Ambiguous = true
		cp.Message = "nonce already used after an ambiguous settlement attempt; the payment may have settled"
		perr = &cp
	}
	return outcome, perr
}

func (p *Processor) fail(pending *x402.PaymentRecord, resource string, perr *x402.PaymentError, d time.Duration) {
	p.logger.Warn("payment failed",
		"record", pending.ID,
		"payer", pending.Payer,
		"code", perr.Code,
		"ambiguous", perr.Ambiguous,
		"error", perr.Message)
	p.emit(x402.PaymentEvent{
		Type:      x402.PaymentEventFailure,
		RecordID:  pending.ID,
		Resource:  resource,
		Network:   pending.Network,
		Payer:     pending.Payer,
		Recipient: pending.Recipient,
		Amount:    pending.FormattedAmount,
		Code:      perr.Code,
		Error:     perr,
		Duration:  d,
	})
}

func (p *Processor) emit(ev x402.PaymentEvent) {
	if p.onEvent == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	p.onEvent(ev)
}

func asPaymentError(err error, fallback x402.ErrorCode) *x402.PaymentError {
	if perr, ok := x402.AsPaymentError(err); ok {
		return perr
	}
	return x402.NewPaymentError(fallback, err.Error(), err)
}

// StatusFor maps an error code to the HTTP status of the response.
func StatusFor(code x402.ErrorCode) int {
	switch code {
	case x402.CodeMissingHeader,
		x402.CodeInvalidNetwork,
		x402.CodeAmountMismatch,
		x402.CodeAuthorizationExpired,
		x402.CodeAuthorizationNotYetValid,
		x402.CodeInvalidSignature,
		x402.CodeExpiredAuthorization,
		x402.CodeInsufficientBalance,
		x402.CodeNonceAlreadyUsed,
		x402.CodeInvalidToken,
		x402.CodeUnsupportedChain:
		return http.StatusPaymentRequired
	case x402.CodeInvalidJSON,
		x402.CodeInvalidVersion,
		x402.CodeInvalidScheme,
		x402.CodeInvalidPayload:
		return http.StatusBadRequest
	case x402.CodeRecipientMismatch:
		return http.StatusForbidden
	case x402.CodeNetworkError, x402.CodeTimeout:
		return http.StatusGatewayTimeout
	case x402.CodeFacilitatorError, x402.CodeUnknownError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
