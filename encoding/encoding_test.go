package encoding

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/x402arcade/x402-go"
	"github.com/x402arcade/x402-go/validation"
)

var (
	testNonce = "0x" + strings.Repeat("ab", 32)
	testR     = "0x" + strings.Repeat("11", 32)
	testS     = "0x" + strings.Repeat("22", 32)
)

func samplePayload() x402.PaymentPayload {
	return x402.PaymentPayload{
		X402Version: "1",
		Scheme:      "exact",
		Network:     "cronos-testnet",
		From:        "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
		To:          "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		Value:       "10000",
		ValidAfter:  "0",
		ValidBefore: "999999",
		Nonce:       testNonce,
		V:           27,
		R:           testR,
		S:           testS,
	}
}

func TestPaymentRoundTrip(t *testing.T) {
	payloads := []x402.PaymentPayload{
		samplePayload(),
		func() x402.PaymentPayload {
			p := samplePayload()
			p.V = 28
			p.Value = "115792089237316195423570985008687907853269984665640564039457584007913129639935"
			return p
		}(),
		func() x402.PaymentPayload {
			p := samplePayload()
			p.Network = "cronos-mainnet"
			p.ValidAfter = "1700000000"
			p.ValidBefore = "1700003600"
			return p
		}(),
	}

	for i, p := range payloads {
		encoded, err := EncodePayment(p)
		if err != nil {
			t.Fatalf("#%d EncodePayment: %v", i, err)
		}
		decoded, err := DecodePayment(encoded)
		if err != nil {
			t.Fatalf("#%d DecodePayment: %v", i, err)
		}
		if decoded != p {
			t.Errorf("#%d round trip mismatch:\n got %+v\nwant %+v", i, decoded, p)
		}
	}
}

func TestEncodeHeaderShape(t *testing.T) {
	data, err := json.Marshal(EncodeHeader(samplePayload()))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["x402Version"] != "1" {
		t.Errorf("x402Version = %v", m["x402Version"])
	}
	payload := m["payload"].(map[string]any)
	if payload["v"] != float64(27) {
		t.Errorf("v = %v, want number 27", payload["v"])
	}
	message := payload["message"].(map[string]any)
	if message["value"] != "10000" || message["nonce"] != testNonce {
		t.Errorf("message = %v", message)
	}
}

func TestDecodePaymentNumericFields(t *testing.T) {
	raw := `{"x402Version":1,"scheme":"exact","network":"cronos-testnet","payload":{"message":{` +
		`"from":"0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0","to":"0x209693Bc6afc0C5328bA36FaF03C514EF312287C",` +
		`"value":10000,"validAfter":0,"validBefore":999999,"nonce":"` + testNonce + `"},` +
		`"v":"28","r":"` + testR + `","s":"` + testS + `"}}`

	p, err := DecodePayment(base64.StdEncoding.EncodeToString([]byte(raw)))
	if err != nil {
		t.Fatalf("DecodePayment: %v", err)
	}
	if p.X402Version != "1" {
		t.Errorf("X402Version = %q", p.X402Version)
	}
	if p.Value != "10000" || p.ValidAfter != "0" || p.ValidBefore != "999999" {
		t.Errorf("numeric fields not normalized: %+v", p)
	}
	if p.V != 28 {
		t.Errorf("V = %d, want 28", p.V)
	}
}

func numericValueHeader(value string) string {
	raw := `{"x402Version":1,"scheme":"exact","network":"cronos-testnet","payload":{"message":{` +
		`"from":"0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0","to":"0x209693Bc6afc0C5328bA36FaF03C514EF312287C",` +
		`"value":` + value + `,"validAfter":0,"validBefore":999999,"nonce":"` + testNonce + `"},` +
		`"v":27,"r":"` + testR + `","s":"` + testS + `"}}`
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

func TestDecodePaymentOversizedNumbers(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"huge exponent", "1e100000000"},
		{"huge negative exponent", "1e-100000000"},
		{"exponent past 256 bits", "1e80"},
		{"literal past 256 bits", "1" + strings.Repeat("0", 79)},
		{"long literal", strings.Repeat("9", 100000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			p, err := DecodePayment(numericValueHeader(tt.value))
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Errorf("decode took %v", elapsed)
			}
			if err != nil {
				t.Fatalf("DecodePayment: %v", err)
			}
			if len(p.Value) > len(tt.value) {
				t.Errorf("value was expanded to %d characters", len(p.Value))
			}

			res := validation.ValidatePayload(p)
			if res.Valid {
				t.Fatal("oversized value should be rejected")
			}
			perr := res.Err()
			if perr.Code != x402.CodeInvalidPayload || perr.Field != "value" {
				t.Errorf("got %s on %q, want INVALID_PAYLOAD on value", perr.Code, perr.Field)
			}
		})
	}
}

func TestDecodePaymentMaxUint256Number(t *testing.T) {
	max := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	p, err := DecodePayment(numericValueHeader(max))
	if err != nil {
		t.Fatal(err)
	}
	if string(p.Value) != max {
		t.Errorf("Value = %s", p.Value)
	}
	if !validation.ValidatePayload(p).Valid {
		t.Error("the largest 256-bit value should validate")
	}
}

func TestDecodePaymentUnparseableV(t *testing.T) {
	raw := `{"x402Version":"1","payload":{"message":{},"v":"twenty-seven"}}`
	p, err := DecodePayment(base64.StdEncoding.EncodeToString([]byte(raw)))
	if err != nil {
		t.Fatalf("DecodePayment: %v", err)
	}
	if p.V != -1 {
		t.Errorf("V = %d, want -1", p.V)
	}
}

func TestDecodePaymentAlternateAlphabets(t *testing.T) {
	data, _ := json.Marshal(EncodeHeader(samplePayload()))
	for name, enc := range map[string]*base64.Encoding{
		"raw std": base64.RawStdEncoding,
		"url":     base64.URLEncoding,
		"raw url": base64.RawURLEncoding,
	} {
		p, err := DecodePayment(enc.EncodeToString(data))
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if p != samplePayload() {
			t.Errorf("%s: mismatch %+v", name, p)
		}
	}
}

func TestDecodePaymentErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not base64", "!!!not-base64!!!"},
		{"not json", base64.StdEncoding.EncodeToString([]byte("hello"))},
		{"truncated json", base64.StdEncoding.EncodeToString([]byte(`{"x402Version":"1",`))},
		{"wrong type", base64.StdEncoding.EncodeToString([]byte(`{"scheme":5}`))},
		{"json array", base64.StdEncoding.EncodeToString([]byte(`[1,2]`))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayment(tt.input)
			if err == nil {
				t.Fatal("expected error")
			}
			pe, ok := x402.AsPaymentError(err)
			if !ok || pe.Code != x402.CodeInvalidJSON {
				t.Errorf("expected INVALID_JSON, got %v", err)
			}
			if !errors.Is(err, x402.ErrInvalidPayment) {
				t.Error("expected ErrInvalidPayment")
			}
		})
	}
}

func TestSettlementRoundTrip(t *testing.T) {
	in := x402.SettlementResponse{
		Success:     true,
		Transaction: "0xabc",
		Network:     "cronos-testnet",
		Payer:       "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
		BlockNumber: 100,
	}
	encoded, err := EncodeSettlement(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeSettlement(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}
	if _, err := DecodeSettlement("%%%"); err == nil {
		t.Error("expected error for invalid base64")
	}
}
