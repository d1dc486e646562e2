// Package chi provides Chi-compatible middleware for x402 payment gating.
// It is a thin adapter over the processor in the http package.
package chi

import (
	"net/http"

	httpx402 "github.com/x402arcade/x402-go/http"
	"github.com/x402arcade/x402-go/http/internal/helpers"
)

// NewChiX402Middleware creates a new x402 payment middleware for Chi.
//
// The middleware:
//   - Bypasses OPTIONS requests for CORS preflight support
//   - Answers requests without a payment header with a 402 challenge
//   - Validates and settles the payment before the handler runs
//   - Stores the *x402.PaymentRecord in the request context
//
// Example usage:
//
//	cfg, _ := x402.NewPaymentConfig(x402.PaymentConfig{...})
//	r := chi.NewRouter()
//	r.With(NewChiX402Middleware(&httpx402.Config{Payment: cfg})).
//	    Post("/api/games/{game}/start", func(w http.ResponseWriter, r *http.Request) {
//	        record, _ := httpx402.PaymentFromContext(r.Context())
//	        w.Write([]byte("paid by " + record.Payer))
//	    })
func NewChiX402Middleware(config *httpx402.Config) func(http.Handler) http.Handler {
	processor, err := httpx402.NewProcessorFromConfig(config)
	if err != nil {
		panic("x402: " + err.Error())
	}
	return Middleware(processor, config.Description)
}

// Middleware gates Chi routes with an existing processor.
func Middleware(p *httpx402.Processor, description string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			resource := helpers.ResourceURL(r)
			record, perr := p.Process(r.Context(), r.Header, resource)
			if perr != nil {
				p.WriteError(w, resource, description, perr)
				return
			}

			p.WriteReceipt(w, record)
			next.ServeHTTP(w, r.WithContext(httpx402.WithPayment(r.Context(), record)))
		})
	}
}
