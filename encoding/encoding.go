// Package encoding provides the codec for x402 payment headers and
// settlement response headers: base64 text wrapping a JSON document.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/x402arcade/x402-go"
)

// Header is the JSON document carried in the payment header.
type Header struct {
	X402Version Version       `json:"x402Version"`
	Scheme      string        `json:"scheme"`
	Network     string        `json:"network"`
	Payload     HeaderPayload `json:"payload"`
}

// HeaderPayload holds the signed authorization message and its signature.
type HeaderPayload struct {
	Message HeaderMessage `json:"message"`
	V       RecoveryID    `json:"v"`
	R       string        `json:"r"`
	S       string        `json:"s"`
}

// HeaderMessage is the EIP-3009 authorization message.
type HeaderMessage struct {
	From        string    `json:"from"`
	To          string    `json:"to"`
	Value       x402.Uint `json:"value"`
	ValidAfter  x402.Uint `json:"validAfter"`
	ValidBefore x402.Uint `json:"validBefore"`
	Nonce       string    `json:"nonce"`
}

// Version is the protocol version. It is written as a string and read from
// either a string or a number.
type Version string

func (v *Version) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Version(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("x402Version: %w", err)
	}
	*v = Version(n.String())
	return nil
}

// RecoveryID is the signature v value. It is written as a number and read
// from a number or a numeric string. Values that are not small integers
// decode to -1 so that validation reports them against the v field.
type RecoveryID int

func (r *RecoveryID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = 0
		return nil
	}
	var text string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("v: %w", err)
		}
		text = n.String()
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil || n < math.MinInt32 || n > math.MaxInt32 {
		*r = -1
		return nil
	}
	*r = RecoveryID(n)
	return nil
}

// Flatten converts a header document into a PaymentPayload.
func (h Header) Flatten() x402.PaymentPayload {
	return x402.PaymentPayload{
		X402Version: string(h.X402Version),
		Scheme:      h.Scheme,
		Network:     h.Network,
		From:        h.Payload.Message.From,
		To:          h.Payload.Message.To,
		Value:       h.Payload.Message.Value,
		ValidAfter:  h.Payload.Message.ValidAfter,
		ValidBefore: h.Payload.Message.ValidBefore,
		Nonce:       h.Payload.Message.Nonce,
		V:           int(h.Payload.V),
		R:           h.Payload.R,
		S:           h.Payload.S,
	}
}

// EncodeHeader converts a PaymentPayload into the header document.
// DecodeHeader(EncodeHeader(p)) == p for every well-formed payload.
func EncodeHeader(p x402.PaymentPayload) Header {
	return Header{
		X402Version: Version(p.X402Version),
		Scheme:      p.Scheme,
		Network:     p.Network,
		Payload: HeaderPayload{
			Message: HeaderMessage{
				From:        p.From,
				To:          p.To,
				Value:       p.Value,
				ValidAfter:  p.ValidAfter,
				ValidBefore: p.ValidBefore,
				Nonce:       p.Nonce,
			},
			V: RecoveryID(p.V),
			R: p.R,
			S: p.S,
		},
	}
}

// EncodePayment converts a PaymentPayload to the base64 header value.
func EncodePayment(p x402.PaymentPayload) (string, error) {
	data, err := json.Marshal(EncodeHeader(p))
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePayment converts a base64 header value to a PaymentPayload.
// Any base64 or JSON failure is reported as an INVALID_JSON PaymentError.
func DecodePayment(encoded string) (x402.PaymentPayload, error) {
	data, err := decodeBase64(encoded)
	if err != nil {
		return x402.PaymentPayload{}, x402.NewPaymentError(x402.CodeInvalidJSON, "payment header is not valid base64", err)
	}

	var h Header
	if err := json.Unmarshal(data, &h); err != nil {
		return x402.PaymentPayload{}, x402.NewPaymentError(x402.CodeInvalidJSON, "payment header is not valid JSON", err)
	}
	return h.Flatten(), nil
}

// DecodeHeader parses header JSON without the base64 layer.
func DecodeHeader(data []byte) (x402.PaymentPayload, error) {
	var h Header
	if err := json.Unmarshal(data, &h); err != nil {
		return x402.PaymentPayload{}, x402.NewPaymentError(x402.CodeInvalidJSON, "payment header is not valid JSON", err)
	}
	return h.Flatten(), nil
}

// EncodeSettlement converts a SettlementResponse to the base64 value of the
// X-Payment-Response header.
func EncodeSettlement(settlement x402.SettlementResponse) (string, error) {
	data, err := json.Marshal(settlement)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settlement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeSettlement parses an X-Payment-Response header value.
func DecodeSettlement(encoded string) (x402.SettlementResponse, error) {
	var settlement x402.SettlementResponse

	data, err := decodeBase64(encoded)
	if err != nil {
		return settlement, fmt.Errorf("failed to decode base64: %w", err)
	}
	if err := json.Unmarshal(data, &settlement); err != nil {
		return settlement, fmt.Errorf("failed to unmarshal settlement: %w", err)
	}
	return settlement, nil
}

// decodeBase64 accepts standard and URL-safe alphabets, padded or not.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty value")
	}
	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
