// Package pocketbase provides PocketBase-compatible middleware for x402
// payment gating. It translates core.RequestEvent to stdlib http patterns
// and delegates the payment flow to the processor in the http package.
package pocketbase

import (
	"net/http"

	"github.com/pocketbase/pocketbase/core"
	"github.com/x402arcade/x402-go"
	httpx402 "github.com/x402arcade/x402-go/http"
	"github.com/x402arcade/x402-go/http/internal/helpers"
)

// PaymentKey is the request store key holding the *x402.PaymentRecord.
const PaymentKey = "x402_payment"

// NewPocketBaseX402Middleware creates a new x402 payment middleware for PocketBase.
//
// After settlement the record is stored in the request store and can be read with:
//
//	record := e.Get(PaymentKey).(*x402.PaymentRecord)
//
// Example usage:
//
//	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
//	    se.Router.POST("/api/games/{game}/start", handler).
//	        BindFunc(NewPocketBaseX402Middleware(&httpx402.Config{Payment: cfg}))
//	    return se.Next()
//	})
func NewPocketBaseX402Middleware(config *httpx402.Config) func(*core.RequestEvent) error {
	processor, err := httpx402.NewProcessorFromConfig(config)
	if err != nil {
		panic("x402: " + err.Error())
	}
	return Middleware(processor, config.Description)
}

// Middleware gates PocketBase routes with an existing processor. A failed
// payment writes its response and returns nil, which stops the chain
// without PocketBase writing an error body of its own.
func Middleware(p *httpx402.Processor, description string) func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if e.Request.Method == http.MethodOptions {
			return e.Next()
		}

		resource := helpers.ResourceURL(e.Request)
		record, perr := p.Process(e.Request.Context(), e.Request.Header, resource)
		if perr != nil {
			p.WriteError(e.Response, resource, description, perr)
			return nil
		}

		p.WriteReceipt(e.Response, record)
		e.Set(PaymentKey, record)
		e.Request = e.Request.WithContext(httpx402.WithPayment(e.Request.Context(), record))
		return e.Next()
	}
}

// PaymentFromEvent returns the record stored by the middleware.
func PaymentFromEvent(e *core.RequestEvent) (*x402.PaymentRecord, bool) {
	record, ok := e.Get(PaymentKey).(*x402.PaymentRecord)
	return record, ok
}
