package http

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/x402arcade/x402-go"
)

// previewLength is how much of a header value debug logs may show.
const previewLength = 16

// HeaderDetection is the result of searching a header set for the payment header.
type HeaderDetection struct {
	Found bool
	// Value is the raw, still-encoded header value.
	Value string
	// MatchedName is the header name as it appeared in the set. Diagnostic only.
	MatchedName string
	DetectedAt  time.Time
}

// LocatePaymentHeader finds the payment header regardless of the casing the
// client used. Only the first occurrence counts: when the header is repeated
// its first value is used, and an empty first value means no payment. Among
// differently cased keys the canonical one wins, then the lexically smallest.
// Absence is a normal result, not an error.
//
// With debug set, a truncated preview of the value is logged. Logging never
// changes the result.
func LocatePaymentHeader(h http.Header, debug bool, logger *slog.Logger) HeaderDetection {
	det := HeaderDetection{DetectedAt: time.Now()}

	if name, ok := paymentHeaderKey(h); ok {
		det.MatchedName = name
		if values := h[name]; len(values) > 0 {
			det.Value = strings.TrimSpace(values[0])
			det.Found = det.Value != ""
		}
	}

	if debug {
		if logger == nil {
			logger = slog.Default()
		}
		if det.Found {
			logger.Debug("payment header detected",
				"header", det.MatchedName,
				"length", len(det.Value),
				"preview", previewValue(det.Value))
		} else {
			logger.Debug("payment header not present", "headers", len(h))
		}
	}
	if !det.Found {
		det.MatchedName = ""
	}
	return det
}

// paymentHeaderKey picks the map key holding the payment header. Keys not
// canonicalised by the transport are compared in sorted order so the choice
// does not depend on map iteration.
func paymentHeaderKey(h http.Header) (string, bool) {
	canonical := http.CanonicalHeaderKey(x402.PaymentHeader)
	if _, ok := h[canonical]; ok {
		return canonical, true
	}
	var keys []string
	for name := range h {
		if strings.EqualFold(name, x402.PaymentHeader) {
			keys = append(keys, name)
		}
	}
	if len(keys) == 0 {
		return "", false
	}
	sort.Strings(keys)
	return keys[0], true
}

// previewValue never returns the whole value, however short it is.
func previewValue(v string) string {
	n := previewLength
	if n >= len(v) {
		n = len(v) / 2
	}
	return v[:n] + "..."
}
