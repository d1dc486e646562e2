package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/x402arcade/x402-go"
	"github.com/x402arcade/x402-go/encoding"
	"github.com/x402arcade/x402-go/validation"
)

// X402Transport is a RoundTripper that answers 402 challenges. It signs a
// payment for the first requirement one of its signers can pay and repeats
// the request once with the X-Payment header set.
type X402Transport struct {
	// Base is the underlying RoundTripper (typically http.DefaultTransport).
	Base http.RoundTripper

	// Signers are tried in order for every accepted requirement.
	Signers []x402.Signer

	OnPaymentAttempt x402.PaymentCallback
	OnPaymentSuccess x402.PaymentCallback
	OnPaymentFailure x402.PaymentCallback
}

func (t *X402Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *X402Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// The body may be needed twice.
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		body, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to buffer request body: %w", err)
		}
		req = RequestWithBody(req, body)
	}

	resp, err := t.base().RoundTrip(cloneRequest(req))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	challenge, err := parsePaymentRequired(resp)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	requirement, signer, err := x402.SelectRequirement(validRequirements(challenge.Accepts), t.Signers)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	event := x402.PaymentEvent{
		Resource:  req.URL.String(),
		Network:   requirement.Network,
		Recipient: requirement.PayTo,
		Amount:    requirement.MaxAmountRequired,
	}
	t.emit(t.OnPaymentAttempt, x402.PaymentEventAttempt, event)

	payload, err := signer.Sign(requirement)
	if err == nil {
		event.Payer = payload.From
		var header string
		header, err = encoding.EncodePayment(*payload)
		if err == nil {
			retry := cloneRequest(req)
			retry.Header.Set(x402.PaymentHeader, header)
			resp, err = t.base().RoundTrip(retry)
		}
	}
	event.Duration = time.Since(start)
	if err != nil {
		event.Error = err
		t.emit(t.OnPaymentFailure, x402.PaymentEventFailure, event)
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if settlement := GetSettlement(resp); settlement != nil {
			event.Transaction = settlement.Transaction
		}
		t.emit(t.OnPaymentSuccess, x402.PaymentEventSuccess, event)
		return resp, nil
	}

	event.Code, event.Error = responseError(resp)
	t.emit(t.OnPaymentFailure, x402.PaymentEventFailure, event)
	return resp, nil
}

func (t *X402Transport) emit(cb x402.PaymentCallback, typ x402.PaymentEventType, ev x402.PaymentEvent) {
	if cb == nil {
		return
	}
	ev.Type = typ
	ev.Timestamp = time.Now()
	cb(ev)
}

// parsePaymentRequired reads the challenge body of a 402 response.
func parsePaymentRequired(resp *http.Response) (x402.PaymentRequiredResponse, error) {
	var challenge x402.PaymentRequiredResponse

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return challenge, fmt.Errorf("failed to read payment challenge: %w", err)
	}
	if err := json.Unmarshal(body, &challenge); err != nil {
		return challenge, fmt.Errorf("failed to parse payment challenge: %w", err)
	}
	if challenge.X402Version != x402.ProtocolVersion {
		return challenge, fmt.Errorf("unsupported x402 version %q", challenge.X402Version)
	}
	if len(challenge.Accepts) == 0 {
		return challenge, errors.New("payment challenge lists no requirements")
	}
	return challenge, nil
}

// validRequirements drops requirements that cannot be paid safely.
func validRequirements(accepts []x402.PaymentRequirement) []x402.PaymentRequirement {
	valid := make([]x402.PaymentRequirement, 0, len(accepts))
	for _, req := range accepts {
		if validation.ValidatePaymentRequirement(req) == nil {
			valid = append(valid, req)
		}
	}
	return valid
}

// responseError extracts the error code of a failed paid request. The body
// is restored for the caller.
func responseError(resp *http.Response) (x402.ErrorCode, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("paid request returned status %d", resp.StatusCode)
	}

	var parsed x402.ErrorResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil {
		return parsed.Error.Code, fmt.Errorf("paid request returned status %d: %s: %s",
			resp.StatusCode, parsed.Error.Code, parsed.Error.Message)
	}
	return "", fmt.Errorf("paid request returned status %d", resp.StatusCode)
}

func cloneRequest(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			clone.Body = body
		}
	}
	return clone
}

// RequestWithBody clones an HTTP request with a replayable body.
func RequestWithBody(req *http.Request, body []byte) *http.Request {
	clone := req.Clone(req.Context())
	clone.Body = io.NopCloser(bytes.NewReader(body))
	clone.ContentLength = int64(len(body))
	clone.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return clone
}
