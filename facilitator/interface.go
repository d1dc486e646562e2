// Package facilitator defines the contract of the external settlement service.
package facilitator

import (
	"context"
	"encoding/json"

	"github.com/x402arcade/x402-go"
)

// Interface is the facilitator as seen by the payment processor.
type Interface interface {
	// Settle submits a signed authorization for on-chain execution. Every
	// response from the facilitator, including transport failures, is
	// reported through the outcome. The error is reserved for failures that
	// happen before anything is sent.
	Settle(ctx context.Context, req x402.SettlementRequest) (x402.SettlementOutcome, error)

	// Supported queries the facilitator for supported payment types.
	Supported(ctx context.Context) (*SupportedResponse, error)
}

// SupportedKind describes a supported payment type.
type SupportedKind struct {
	X402Version json.Number    `json:"x402Version"`
	Scheme      string         `json:"scheme"`
	Network     string         `json:"network"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// SupportedResponse lists all payment types supported by the facilitator.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// Supports reports whether the facilitator lists the scheme on the network.
func (r *SupportedResponse) Supports(scheme, network string) bool {
	if r == nil {
		return false
	}
	for _, k := range r.Kinds {
		if k.Scheme == scheme && k.Network == network {
			return true
		}
	}
	return false
}
