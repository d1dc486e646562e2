// Package helpers provides the response plumbing shared by the stdlib, Chi,
// Gin and PocketBase middleware so that all of them answer identically.
package helpers

import (
	"encoding/json"
	"net/http"

	"github.com/x402arcade/x402-go"
	"github.com/x402arcade/x402-go/encoding"
)

// ResourceURL builds the absolute URL of the requested resource.
func ResourceURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// WriteJSON writes v as the JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encoding failure leaves a truncated body
	// behind the correct status code.
	_ = json.NewEncoder(w).Encode(v)
}

// SendPaymentRequired sends a 402 challenge.
func SendPaymentRequired(w http.ResponseWriter, challenge x402.PaymentRequiredResponse) {
	WriteJSON(w, http.StatusPaymentRequired, challenge)
}

// SendError sends a payment error without a challenge.
func SendError(w http.ResponseWriter, status int, err *x402.PaymentError) {
	WriteJSON(w, status, x402.ErrorResponse{
		X402Version: x402.ProtocolVersion,
		Error:       x402.NewErrorBody(err),
	})
}

// AddPaymentResponseHeader adds the base64 settlement summary of a settled record.
func AddPaymentResponseHeader(w http.ResponseWriter, record *x402.PaymentRecord) error {
	encoded, err := encoding.EncodeSettlement(record.SettlementResponse())
	if err != nil {
		return err
	}
	w.Header().Set(x402.PaymentResponseHeader, encoded)
	return nil
}
