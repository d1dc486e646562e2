package x402

import "time"

// Protocol constants.
const (
	// ProtocolVersion is the only supported x402 protocol version.
	ProtocolVersion = "1"

	// SchemeExact is the only supported payment scheme.
	SchemeExact = "exact"

	// PaymentHeader is the canonical name of the inbound payment header.
	// Lookups are case-insensitive.
	PaymentHeader = "X-Payment"

	// PaymentResponseHeader carries base64 settlement information back to the payer.
	PaymentResponseHeader = "X-Payment-Response"

	// AssetSymbol is the fixed symbol advertised for the payment token.
	AssetSymbol = "USDC"

	// DefaultMimeType is advertised for gated JSON resources.
	DefaultMimeType = "application/json"
)

// PaymentPayload is the flattened form of a decoded payment header.
type PaymentPayload struct {
	X402Version string `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       Uint   `json:"value"`
	ValidAfter  Uint   `json:"validAfter"`
	ValidBefore Uint   `json:"validBefore"`
	Nonce       string `json:"nonce"`
	V           int    `json:"v"`
	R           string `json:"r"`
	S           string `json:"s"`
}

// Authorization returns the EIP-3009 message part of the payload.
func (p PaymentPayload) Authorization() Authorization {
	return Authorization{
		From:        p.From,
		To:          p.To,
		Value:       p.Value,
		ValidAfter:  p.ValidAfter,
		ValidBefore: p.ValidBefore,
		Nonce:       p.Nonce,
	}
}

// Signature returns the split ECDSA signature of the payload.
func (p PaymentPayload) Signature() Signature {
	return Signature{V: p.V, R: p.R, S: p.S}
}

// Authorization is an EIP-3009 transferWithAuthorization message.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       Uint   `json:"value"`
	ValidAfter  Uint   `json:"validAfter"`
	ValidBefore Uint   `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// Signature is an ECDSA signature split into recovery id and components.
type Signature struct {
	V int    `json:"v"`
	R string `json:"r"`
	S string `json:"s"`
}

// SettlementAuthorization is the authorization object sent to the facilitator,
// with the signature fields nested inside it.
type SettlementAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       Uint   `json:"value"`
	ValidAfter  Uint   `json:"validAfter"`
	ValidBefore Uint   `json:"validBefore"`
	Nonce       string `json:"nonce"`
	V           int    `json:"v"`
	R           string `json:"r"`
	S           string `json:"s"`
}

// SettlementRequest is the body POSTed to the facilitator's settle endpoint.
type SettlementRequest struct {
	Authorization SettlementAuthorization `json:"authorization"`
	ChainID       int64                   `json:"chainId"`
	TokenAddress  string                  `json:"tokenAddress"`
}

// FacilitatorSettleResponse is the raw settle response from the facilitator.
type FacilitatorSettleResponse struct {
	Success     bool                    `json:"success"`
	Transaction *FacilitatorTransaction `json:"transaction,omitempty"`
	Error       *FacilitatorError       `json:"error,omitempty"`
}

// FacilitatorTransaction is the on-chain proof returned on success.
type FacilitatorTransaction struct {
	Hash        string `json:"hash"`
	BlockNumber *Uint  `json:"blockNumber,omitempty"`
}

// FacilitatorError is the failure detail returned on unsuccessful settlement.
type FacilitatorError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SettlementOutcome is the internal, enriched result of a settlement attempt.
type SettlementOutcome struct {
	Success         bool      `json:"success"`
	TransactionHash string    `json:"transactionHash,omitempty"`
	BlockNumber     uint64    `json:"blockNumber,omitempty"`
	ErrorCode       ErrorCode `json:"errorCode,omitempty"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	SettledAt       time.Time `json:"settledAt"`
}

// PaymentRequiredResponse is the JSON body of an HTTP 402 challenge.
type PaymentRequiredResponse struct {
	X402Version       string               `json:"x402Version"`
	Accepts           []PaymentRequirement `json:"accepts"`
	Amount            string               `json:"amount"`
	Currency          string               `json:"currency"`
	PayTo             string               `json:"payTo"`
	ChainID           int64                `json:"chainId"`
	TokenAddress      string               `json:"tokenAddress"`
	Description       string               `json:"description,omitempty"`
	Resource          string               `json:"resource,omitempty"`
	MaxTimeoutSeconds int                  `json:"maxTimeoutSeconds,omitempty"`
	Error             *ErrorBody           `json:"error,omitempty"`
}

// PaymentRequirement is one accepted way of paying for a resource.
type PaymentRequirement struct {
	Scheme            string       `json:"scheme"`
	Network           string       `json:"network"`
	MaxAmountRequired string       `json:"maxAmountRequired"`
	Resource          string       `json:"resource"`
	Description       string       `json:"description,omitempty"`
	MimeType          string       `json:"mimeType,omitempty"`
	PayTo             string       `json:"payTo"`
	MaxTimeoutSeconds int          `json:"maxTimeoutSeconds,omitempty"`
	Asset             AssetInfo    `json:"asset"`
	EIP712Domain      EIP712Domain `json:"eip712Domain"`
}

// AssetInfo describes the payment token.
type AssetInfo struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	Symbol   string `json:"symbol"`
}

// EIP712Domain is the signing domain a wallet needs to produce a
// transferWithAuthorization signature the token contract accepts.
type EIP712Domain struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           int64  `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
}

// ErrorBody is the JSON shape of a PaymentError in HTTP responses.
type ErrorBody struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Field     string    `json:"field,omitempty"`
	Ambiguous bool      `json:"ambiguous,omitempty"`
}

// NewErrorBody converts a PaymentError into its response shape.
// The offending value is not included.
func NewErrorBody(err *PaymentError) *ErrorBody {
	if err == nil {
		return nil
	}
	return &ErrorBody{
		Code:      err.Code,
		Message:   err.Message,
		Field:     err.Field,
		Ambiguous: err.Ambiguous,
	}
}

// ErrorResponse is the body written for non-402 payment failures.
type ErrorResponse struct {
	X402Version string     `json:"x402Version"`
	Error       *ErrorBody `json:"error"`
}

// SettlementResponse is the payload of the X-Payment-Response header.
type SettlementResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer,omitempty"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
}
