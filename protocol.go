package x402

import (
	"fmt"
	"strings"
	"time"
)

// CheckPayment cross-checks a structurally valid payload against the
// configuration and the clock: network, amount, recipient and validity
// window. It returns the first violation found, or nil.
func CheckPayment(p PaymentPayload, cfg *PaymentConfig, now time.Time) *PaymentError {
	if p.Network != cfg.Network() {
		return NewPaymentError(CodeInvalidNetwork,
			fmt.Sprintf("payment is for network %q, expected %q", p.Network, cfg.Network()), nil).
			WithField("network", p.Network)
	}

	value, ok := p.Value.Int()
	if !ok {
		return NewPaymentError(CodeInvalidPayload, "value is not an integer", nil).WithField("value", p.Value.String())
	}
	if value.Cmp(cfg.AmountInt()) != 0 {
		return NewPaymentError(CodeAmountMismatch,
			fmt.Sprintf("payment value %s does not match required amount %s", value, cfg.Amount), nil).
			WithField("value", p.Value.String())
	}

	if !SameAddress(p.To, cfg.PayTo) {
		return NewPaymentError(CodeRecipientMismatch, "payment recipient does not match", nil).WithField("to", p.To)
	}

	return CheckValidityWindow(p, cfg, now)
}

// CheckValidityWindow checks validAfter and validBefore against now using the
// configured minimum remaining window and maximum authorization age.
func CheckValidityWindow(p PaymentPayload, cfg *PaymentConfig, now time.Time) *PaymentError {
	validAfter, err := p.ValidAfter.Uint64()
	if err != nil {
		return NewPaymentError(CodeInvalidPayload, "invalid validAfter", err).WithField("validAfter", p.ValidAfter.String())
	}
	validBefore, err := p.ValidBefore.Uint64()
	if err != nil {
		return NewPaymentError(CodeInvalidPayload, "invalid validBefore", err).WithField("validBefore", p.ValidBefore.String())
	}

	nowUnix := now.Unix()
	if nowUnix < 0 {
		nowUnix = 0
	}
	current := uint64(nowUnix)

	if current < validAfter {
		return NewPaymentError(CodeAuthorizationNotYetValid,
			fmt.Sprintf("authorization is valid from %d, now is %d", validAfter, current), nil).
			WithField("validAfter", p.ValidAfter.String())
	}

	minWindow := uint64(cfg.MinValidityWindow / time.Second)
	if validBefore <= current || validBefore-current < minWindow {
		return NewPaymentError(CodeAuthorizationExpired,
			fmt.Sprintf("authorization expires at %d, needs at least %ds remaining", validBefore, minWindow), nil).
			WithField("validBefore", p.ValidBefore.String())
	}

	if cfg.MaxAuthorizationAge > 0 {
		maxAge := uint64(cfg.MaxAuthorizationAge / time.Second)
		if validBefore-current > maxAge {
			return NewPaymentError(CodeInvalidPayload,
				fmt.Sprintf("authorization window exceeds maximum of %ds", maxAge), nil).
				WithField("validBefore", p.ValidBefore.String())
		}
	}
	return nil
}

// SameAddress compares two hex addresses ignoring checksum casing.
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
