// Package validation performs structural checks on payment payloads and
// payment requirements. It makes no network calls and does not read the clock.
package validation

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/x402arcade/x402-go"
)

var (
	// evmAddressRegex matches Ethereum-style addresses (0x followed by 40 hex chars)
	evmAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

	// bytes32Regex matches a 0x-prefixed 32-byte hex value (nonce, r, s)
	bytes32Regex = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

	// uintRegex matches a non-negative decimal integer
	uintRegex = regexp.MustCompile(`^\d+$`)
)

// FieldError is a single structural problem with a payload field.
type FieldError struct {
	Field   string
	Value   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Result is the outcome of ValidatePayload. All problems are collected.
type Result struct {
	Valid  bool
	Errors []FieldError
}

// Err narrows the result to a PaymentError. Version, scheme and network
// problems get their own codes; everything else is INVALID_PAYLOAD. The
// message lists every problem found. Err returns nil for valid results.
func (r Result) Err() *x402.PaymentError {
	if r.Valid || len(r.Errors) == 0 {
		return nil
	}

	messages := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		messages[i] = e.Error()
	}
	message := strings.Join(messages, "; ")

	first := r.Errors[0]
	code := x402.CodeInvalidPayload
	for _, e := range r.Errors {
		var c x402.ErrorCode
		switch e.Field {
		case "x402Version":
			c = x402.CodeInvalidVersion
		case "scheme":
			c = x402.CodeInvalidScheme
		case "network":
			c = x402.CodeInvalidNetwork
		default:
			continue
		}
		code, first = c, e
		break
	}
	return x402.NewPaymentError(code, message, nil).WithField(first.Field, first.Value)
}

// ValidatePayload checks every field of a decoded payload and reports all
// problems at once. It never panics.
func ValidatePayload(p x402.PaymentPayload) Result {
	var errs []FieldError
	add := func(field, value, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Value: value, Message: fmt.Sprintf(format, args...)})
	}

	if p.X402Version != x402.ProtocolVersion {
		add("x402Version", p.X402Version, "unsupported x402 version %q, expected %q", p.X402Version, x402.ProtocolVersion)
	}
	if p.Scheme != x402.SchemeExact {
		add("scheme", p.Scheme, "unsupported scheme %q, expected %q", p.Scheme, x402.SchemeExact)
	}
	if strings.TrimSpace(p.Network) == "" {
		add("network", p.Network, "network cannot be empty")
	}

	if err := ValidateAddress(p.From); err != nil {
		add("from", p.From, "%v", err)
	}
	if err := ValidateAddress(p.To); err != nil {
		add("to", p.To, "%v", err)
	}

	if err := ValidateAmount(p.Value.String()); err != nil {
		add("value", p.Value.String(), "%v", err)
	}
	if err := ValidateUint(p.ValidAfter.String()); err != nil {
		add("validAfter", p.ValidAfter.String(), "%v", err)
	}
	if err := ValidateUint(p.ValidBefore.String()); err != nil {
		add("validBefore", p.ValidBefore.String(), "%v", err)
	}

	if !bytes32Regex.MatchString(p.Nonce) {
		add("nonce", p.Nonce, "nonce must be 0x followed by 64 hex characters")
	}
	if p.V != 27 && p.V != 28 {
		add("v", fmt.Sprint(p.V), "v must be 27 or 28, got %d", p.V)
	}
	if !bytes32Regex.MatchString(p.R) {
		add("r", p.R, "r must be 0x followed by 64 hex characters")
	}
	if !bytes32Regex.MatchString(p.S) {
		add("s", p.S, "s must be 0x followed by 64 hex characters")
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// ValidateAmount validates that an amount string is a positive decimal
// integer that fits in 256 bits.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}
	if !uintRegex.MatchString(amount) {
		return fmt.Errorf("amount must be a positive integer string, got %q", amount)
	}
	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok || amt.Sign() <= 0 {
		return fmt.Errorf("amount must be positive, got %s", amount)
	}
	if amt.BitLen() > 256 {
		return fmt.Errorf("amount exceeds 256 bits")
	}
	return nil
}

// ValidateUint validates a non-negative decimal integer string such as a unix timestamp.
func ValidateUint(value string) error {
	if !uintRegex.MatchString(value) {
		return fmt.Errorf("must be a non-negative integer string, got %q", value)
	}
	return nil
}

// ValidateAddress validates a 20-byte hex EVM address with 0x prefix.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if !evmAddressRegex.MatchString(address) || !common.IsHexAddress(address) {
		return fmt.Errorf("invalid EVM address format: %s (expected 0x followed by 40 hex characters)", address)
	}
	return nil
}

// ValidatePaymentRequirement checks a requirement received in a 402
// challenge before a client signs anything for it.
func ValidatePaymentRequirement(req x402.PaymentRequirement) error {
	if err := ValidateAmount(req.MaxAmountRequired); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}
	if req.Scheme != x402.SchemeExact {
		return fmt.Errorf("invalid requirement: unsupported scheme %q", req.Scheme)
	}
	if req.Network == "" {
		return fmt.Errorf("invalid requirement: network cannot be empty")
	}
	if err := ValidateAddress(req.PayTo); err != nil {
		return fmt.Errorf("invalid requirement: payTo %w", err)
	}
	if err := ValidateAddress(req.Asset.Address); err != nil {
		return fmt.Errorf("invalid requirement: asset %w", err)
	}
	if req.MaxTimeoutSeconds < 0 {
		return fmt.Errorf("invalid requirement: timeout cannot be negative: %d", req.MaxTimeoutSeconds)
	}

	d := req.EIP712Domain
	if d.Name == "" || d.Version == "" {
		return fmt.Errorf("invalid requirement: EIP-712 name and version are required")
	}
	if d.ChainID <= 0 {
		return fmt.Errorf("invalid requirement: EIP-712 chainId must be positive")
	}
	if !strings.EqualFold(d.VerifyingContract, req.Asset.Address) {
		return fmt.Errorf("invalid requirement: EIP-712 verifyingContract does not match asset")
	}
	return nil
}
