package x402

import (
	"errors"
	"fmt"
)

// Standard x402 error definitions

var (
	// ErrPaymentRequired indicates that no payment header was supplied.
	ErrPaymentRequired = errors.New("payment required")

	// ErrInvalidPayment is matched by every validation-kind PaymentError.
	ErrInvalidPayment = errors.New("invalid payment")

	// ErrSettlementFailed is matched by every settlement-kind PaymentError.
	ErrSettlementFailed = errors.New("settlement failed")

	// ErrInvalidConfig is matched by every configuration PaymentError.
	ErrInvalidConfig = errors.New("invalid payment configuration")

	// ErrFacilitatorUnavailable indicates the facilitator service could not be reached.
	ErrFacilitatorUnavailable = errors.New("facilitator unavailable")

	// ErrInvalidKey indicates a malformed or missing private key.
	ErrInvalidKey = errors.New("invalid private key")

	// ErrInvalidKeystore indicates a keystore file that cannot be read or decrypted.
	ErrInvalidKeystore = errors.New("invalid keystore")

	// ErrInvalidMnemonic indicates a BIP-39 mnemonic that fails validation.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")

	// ErrNoMatchingRequirement indicates a 402 challenge with nothing the signer can pay.
	ErrNoMatchingRequirement = errors.New("no payable requirement")

	// ErrAmountExceeded indicates a requested amount above the signer's per-call limit.
	ErrAmountExceeded = errors.New("amount exceeds per-call limit")
)

// ErrorKind groups error codes into the two payment taxonomies plus configuration.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindValidation errors are raised before any network call; nothing has been consumed.
	KindValidation
	// KindSettlement errors are raised after the facilitator was involved.
	KindSettlement
	// KindConfig errors are raised while building a PaymentConfig.
	KindConfig
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindSettlement:
		return "settlement"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// ErrorCode is a machine-readable payment error code.
type ErrorCode string

// Validation error codes.
const (
	CodeMissingHeader            ErrorCode = "MISSING_HEADER"
	CodeInvalidJSON              ErrorCode = "INVALID_JSON"
	CodeInvalidVersion           ErrorCode = "INVALID_VERSION"
	CodeInvalidScheme            ErrorCode = "INVALID_SCHEME"
	CodeInvalidNetwork           ErrorCode = "INVALID_NETWORK"
	CodeInvalidPayload           ErrorCode = "INVALID_PAYLOAD"
	CodeAmountMismatch           ErrorCode = "AMOUNT_MISMATCH"
	CodeRecipientMismatch        ErrorCode = "RECIPIENT_MISMATCH"
	CodeAuthorizationExpired     ErrorCode = "AUTHORIZATION_EXPIRED"
	CodeAuthorizationNotYetValid ErrorCode = "AUTHORIZATION_NOT_YET_VALID"
)

// Settlement error codes.
const (
	CodeInvalidSignature     ErrorCode = "INVALID_SIGNATURE"
	CodeExpiredAuthorization ErrorCode = "EXPIRED_AUTHORIZATION"
	CodeInsufficientBalance  ErrorCode = "INSUFFICIENT_BALANCE"
	CodeNonceAlreadyUsed     ErrorCode = "NONCE_ALREADY_USED"
	CodeInvalidToken         ErrorCode = "INVALID_TOKEN"
	CodeUnsupportedChain     ErrorCode = "UNSUPPORTED_CHAIN"
	CodeFacilitatorError     ErrorCode = "FACILITATOR_ERROR"
	CodeNetworkError         ErrorCode = "NETWORK_ERROR"
	CodeTimeout              ErrorCode = "TIMEOUT"
	CodeUnknownError         ErrorCode = "UNKNOWN_ERROR"
)

// CodeInvalidConfig is the single configuration error code.
const CodeInvalidConfig ErrorCode = "INVALID_CONFIG"

var codeKinds = map[ErrorCode]ErrorKind{
	CodeMissingHeader:            KindValidation,
	CodeInvalidJSON:              KindValidation,
	CodeInvalidVersion:           KindValidation,
	CodeInvalidScheme:            KindValidation,
	CodeInvalidNetwork:           KindValidation,
	CodeInvalidPayload:           KindValidation,
	CodeAmountMismatch:           KindValidation,
	CodeRecipientMismatch:        KindValidation,
	CodeAuthorizationExpired:     KindValidation,
	CodeAuthorizationNotYetValid: KindValidation,

	CodeInvalidSignature:     KindSettlement,
	CodeExpiredAuthorization: KindSettlement,
	CodeInsufficientBalance:  KindSettlement,
	CodeNonceAlreadyUsed:     KindSettlement,
	CodeInvalidToken:         KindSettlement,
	CodeUnsupportedChain:     KindSettlement,
	CodeFacilitatorError:     KindSettlement,
	CodeNetworkError:         KindSettlement,
	CodeTimeout:              KindSettlement,
	CodeUnknownError:         KindSettlement,

	CodeInvalidConfig: KindConfig,
}

// Kind reports which taxonomy the code belongs to.
func (c ErrorCode) Kind() ErrorKind {
	return codeKinds[c]
}

// IsSettlementCode reports whether c is one of the known settlement codes.
func IsSettlementCode(c ErrorCode) bool {
	return c.Kind() == KindSettlement
}

// IsAmbiguous reports whether a failure with this code leaves on-chain state unknown.
// The authorization may already have been executed when the facilitator call
// timed out or the connection dropped.
func (c ErrorCode) IsAmbiguous() bool {
	return c == CodeNetworkError || c == CodeTimeout
}

// PaymentError is a structured payment error carrying a closed-set code and,
// for field-level problems, the offending field and value.
type PaymentError struct {
	Code      ErrorCode
	Message   string
	Field     string
	Value     string
	Ambiguous bool
	Err       error
}

// NewPaymentError creates a PaymentError. Ambiguous is derived from the code.
func NewPaymentError(code ErrorCode, message string, err error) *PaymentError {
	return &PaymentError{
		Code:      code,
		Message:   message,
		Ambiguous: code.IsAmbiguous(),
		Err:       err,
	}
}

// NewValidationError creates a validation-kind PaymentError. It panics if
// code is not a validation code.
func NewValidationError(code ErrorCode, message string) *PaymentError {
	mustKind(code, KindValidation)
	return NewPaymentError(code, message, nil)
}

// NewSettlementError creates a settlement-kind PaymentError wrapping err.
// It panics if code is not a settlement code.
func NewSettlementError(code ErrorCode, message string, err error) *PaymentError {
	mustKind(code, KindSettlement)
	return NewPaymentError(code, message, err)
}

// NewConfigError creates an INVALID_CONFIG error for a configuration field.
func NewConfigError(field, value, message string) *PaymentError {
	return NewPaymentError(CodeInvalidConfig, message, nil).WithField(field, value)
}

func mustKind(code ErrorCode, kind ErrorKind) {
	if code.Kind() != kind {
		panic(fmt.Sprintf("x402: %s is not a %s code", code, kind))
	}
}

// WithField returns a copy of the error annotated with the offending field and value.
func (e *PaymentError) WithField(field, value string) *PaymentError {
	cp := *e
	cp.Field = field
	cp.Value = value
	return &cp
}

// Kind reports the taxonomy of the error.
func (e *PaymentError) Kind() ErrorKind {
	return e.Code.Kind()
}

func (e *PaymentError) Error() string {
	msg := fmt.Sprintf("x402: %s: %s", e.Code, e.Message)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %s)", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind, so callers can write
// errors.Is(err, x402.ErrSettlementFailed).
func (e *PaymentError) Is(target error) bool {
	switch target {
	case ErrInvalidPayment:
		return e.Kind() == KindValidation && e.Code != CodeMissingHeader
	case ErrPaymentRequired:
		return e.Code == CodeMissingHeader
	case ErrSettlementFailed:
		return e.Kind() == KindSettlement
	case ErrInvalidConfig:
		return e.Kind() == KindConfig
	}
	return false
}

// AsPaymentError unwraps err into a *PaymentError if it is one.
func AsPaymentError(err error) (*PaymentError, bool) {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
