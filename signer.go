package x402

import (
	"math/big"
	"time"
)

// Signer produces signed payment payloads on behalf of a payer.
type Signer interface {
	// Network returns the network label the signer pays on.
	Network() string

	// CanSign reports whether the signer can satisfy the requirement.
	CanSign(requirement *PaymentRequirement) bool

	// Sign creates a signed payload for the requirement.
	Sign(requirement *PaymentRequirement) (*PaymentPayload, error)

	// MaxAmount returns the per-call spending limit, or nil if there is none.
	MaxAmount() *big.Int
}

// SelectRequirement picks the first accepted requirement one of the signers
// can pay and returns it with that signer.
func SelectRequirement(accepts []PaymentRequirement, signers []Signer) (*PaymentRequirement, Signer, error) {
	for i := range accepts {
		req := &accepts[i]
		if req.Scheme != SchemeExact {
			continue
		}
		for _, s := range signers {
			if !s.CanSign(req) {
				continue
			}
			if limit := s.MaxAmount(); limit != nil {
				amount, ok := Uint(req.MaxAmountRequired).Int()
				if !ok || amount.Cmp(limit) > 0 {
					continue
				}
			}
			return req, s, nil
		}
	}
	return nil, nil, ErrNoMatchingRequirement
}

// PaymentEventType names a step in a payment's lifecycle.
type PaymentEventType string

const (
	PaymentEventAttempt PaymentEventType = "attempt"
	PaymentEventPending PaymentEventType = "pending"
	PaymentEventSuccess PaymentEventType = "success"
	PaymentEventFailure PaymentEventType = "failure"
)

// PaymentEvent describes a payment lifecycle step for audit logging and callbacks.
type PaymentEvent struct {
	Type        PaymentEventType
	Timestamp   time.Time
	RecordID    string
	Resource    string
	Network     string
	Payer       string
	Recipient   string
	Amount      string
	Transaction string
	Code        ErrorCode
	Error       error
	Duration    time.Duration
}

// PaymentCallback receives payment lifecycle events.
type PaymentCallback func(PaymentEvent)
