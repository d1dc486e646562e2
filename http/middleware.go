// Package http gates HTTP resources behind x402 payments and provides the
// facilitator client and a paying HTTP client.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/x402arcade/x402-go"
	"github.com/x402arcade/x402-go/facilitator"
	"github.com/x402arcade/x402-go/http/internal/helpers"
	"github.com/x402arcade/x402-go/retry"
)

// Config holds the configuration for the x402 middleware.
type Config struct {
	// Payment is the validated payment configuration. Required.
	Payment *x402.PaymentConfig

	// Description overrides Payment.Description in challenges.
	Description string

	// Facilitator replaces the HTTP facilitator client built from
	// Payment.FacilitatorURL. The Facilitator* fields below only apply to
	// the built client.
	Facilitator facilitator.Interface

	// FacilitatorAuthorization is a static Authorization header value.
	// Example: "Bearer your-api-key".
	FacilitatorAuthorization string

	// FacilitatorAuthorizationProvider returns a per-request Authorization
	// value and takes precedence over FacilitatorAuthorization.
	FacilitatorAuthorizationProvider AuthorizationProvider

	FacilitatorOnBeforeSettle OnBeforeSettleFunc
	FacilitatorOnAfterSettle  OnAfterSettleFunc

	// VerifySignature enables the local signature check.
	VerifySignature SignatureVerifier

	// SettleRetry enables retrying transient settlement failures.
	SettleRetry *retry.Config

	// OnPayment receives payment lifecycle events.
	OnPayment x402.PaymentCallback

	Logger *slog.Logger
}

// NewProcessorFromConfig builds the processor described by config.
func NewProcessorFromConfig(config *Config) (*Processor, error) {
	if config == nil || config.Payment == nil {
		return nil, x402.NewConfigError("payment", "", "payment configuration is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fac := config.Facilitator
	if fac == nil {
		client := NewFacilitatorClient(config.Payment)
		client.Authorization = config.FacilitatorAuthorization
		client.AuthorizationProvider = config.FacilitatorAuthorizationProvider
		client.OnBeforeSettle = config.FacilitatorOnBeforeSettle
		client.OnAfterSettle = config.FacilitatorOnAfterSettle
		client.Logger = logger
		fac = client
	}

	opts := []ProcessorOption{
		WithLogger(logger),
		WithSignatureVerifier(config.VerifySignature),
		WithEventCallback(config.OnPayment),
	}
	if config.SettleRetry != nil {
		opts = append(opts, WithSettleRetry(*config.SettleRetry))
	}
	return NewProcessor(config.Payment, fac, opts...)
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// PaymentContextKey is the context key for the settled *x402.PaymentRecord.
const PaymentContextKey = contextKey("x402_payment")

// WithPayment returns a copy of ctx carrying the payment record.
func WithPayment(ctx context.Context, record *x402.PaymentRecord) context.Context {
	return context.WithValue(ctx, PaymentContextKey, record)
}

// PaymentFromContext returns the payment record stored by the middleware.
func PaymentFromContext(ctx context.Context) (*x402.PaymentRecord, bool) {
	record, ok := ctx.Value(PaymentContextKey).(*x402.PaymentRecord)
	return record, ok && record != nil
}

// NewX402Middleware creates a new x402 payment middleware. It panics if the
// configuration is unusable, as that is a programming error caught at startup.
func NewX402Middleware(config *Config) func(http.Handler) http.Handler {
	processor, err := NewProcessorFromConfig(config)
	if err != nil {
		panic("x402: " + err.Error())
	}
	return Middleware(processor, config.Description)
}

// Middleware gates handlers behind payments processed by p. The handler runs
// only after settlement succeeded and finds the record in the request context.
func Middleware(p *Processor, description string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resource := helpers.ResourceURL(r)

			record, perr := p.Process(r.Context(), r.Header, resource)
			if perr != nil {
				p.WriteError(w, resource, description, perr)
				return
			}

			p.WriteReceipt(w, record)
			next.ServeHTTP(w, r.WithContext(WithPayment(r.Context(), record)))
		})
	}
}

// WriteError answers a failed payment. 402 responses carry the challenge so
// the client can pay again; the rest carry only the error. Ambiguous
// failures become 504 whatever their code.
func (p *Processor) WriteError(w http.ResponseWriter, resource, description string, perr *x402.PaymentError) {
	status := StatusFor(perr.Code)
	if perr.Ambiguous {
		status = http.StatusGatewayTimeout
	}

	if status == http.StatusPaymentRequired {
		challenge := p.Challenge(resource, description)
		if perr.Code != x402.CodeMissingHeader {
			challenge.Error = x402.NewErrorBody(perr)
		}
		helpers.SendPaymentRequired(w, challenge)
		return
	}
	helpers.SendError(w, status, perr)
}

// WriteReceipt adds the X-Payment-Response header for a settled record.
func (p *Processor) WriteReceipt(w http.ResponseWriter, record *x402.PaymentRecord) {
	if err := helpers.AddPaymentResponseHeader(w, record); err != nil {
		// The payment is settled either way.
		p.logger.Warn("failed to add payment response header", "record", record.ID, "error", err)
	}
}
