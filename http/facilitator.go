package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/x402arcade/x402-go"
	"github.com/x402arcade/x402-go/facilitator"
)

// maxResponseBody caps how much of a facilitator response is read.
const maxResponseBody = 1 << 20

// AuthorizationProvider returns an Authorization header value for an
// outgoing facilitator request. It is called for every request, so it may
// hand out short-lived tokens. It must be safe for concurrent use.
type AuthorizationProvider func(*http.Request) string

// OnBeforeSettleFunc is called before a settle request is sent. Returning an
// error aborts the call and nothing is sent.
type OnBeforeSettleFunc func(context.Context, x402.SettlementRequest) error

// OnAfterSettleFunc is called with the outcome of every settle request that was sent.
type OnAfterSettleFunc func(context.Context, x402.SettlementRequest, x402.SettlementOutcome)

// FacilitatorClient talks to the facilitator's HTTP API.
type FacilitatorClient struct {
	BaseURL  string
	Client   *http.Client
	Timeouts x402.TimeoutConfig

	// Authorization is a static Authorization header value. If
	// AuthorizationProvider is also set, the provider takes precedence.
	Authorization string

	AuthorizationProvider AuthorizationProvider

	OnBeforeSettle OnBeforeSettleFunc
	OnAfterSettle  OnAfterSettleFunc

	Logger *slog.Logger
}

var _ facilitator.Interface = (*FacilitatorClient)(nil)

// NewFacilitatorClient creates a client for the facilitator named in cfg.
func NewFacilitatorClient(cfg *x402.PaymentConfig) *FacilitatorClient {
	return &FacilitatorClient{
		BaseURL:  cfg.FacilitatorURL,
		Client:   &http.Client{},
		Timeouts: cfg.Timeouts,
	}
}

// HealthStatus is the result of a facilitator health probe.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

func (c *FacilitatorClient) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *FacilitatorClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func (c *FacilitatorClient) endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

func (c *FacilitatorClient) setAuthorizationHeader(req *http.Request) {
	var authValue string
	if c.AuthorizationProvider != nil {
		authValue = c.AuthorizationProvider(req)
	} else if c.Authorization != "" {
		authValue = c.Authorization
	}
	if authValue != "" {
		req.Header.Set("Authorization", authValue)
	}
}

// Settle POSTs the settlement request to {BaseURL}/settle.
//
// Every response, and every transport failure once the request may have
// left the process, is reported through the outcome:
//
//   - a deadline becomes TIMEOUT and any other transport failure NETWORK_ERROR
//   - a non-2xx status becomes FACILITATOR_ERROR unless the body carries a
//     known settlement code
//   - a 2xx body is parsed with x402.DecodeSettlementOutcome
//
// The returned error is non-nil only when nothing was sent.
func (c *FacilitatorClient) Settle(ctx context.Context, req x402.SettlementRequest) (x402.SettlementOutcome, error) {
	if c.OnBeforeSettle != nil {
		if err := c.OnBeforeSettle(ctx, req); err != nil {
			return x402.SettlementOutcome{}, fmt.Errorf("settlement aborted: %w", err)
		}
	}

	data, err := json.Marshal(req)
	if err != nil {
		return x402.SettlementOutcome{}, fmt.Errorf("failed to marshal settlement request: %w", err)
	}

	reqCtx := ctx
	if c.Timeouts.SettleTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.Timeouts.SettleTimeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint("/settle"), bytes.NewReader(data))
	if err != nil {
		return x402.SettlementOutcome{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	c.setAuthorizationHeader(httpReq)

	logger := c.logger()
	start := time.Now()
	logger.Debug("settling payment", "url", httpReq.URL.String(), "from", req.Authorization.From, "chainId", req.ChainID)

	outcome := c.doSettle(reqCtx, httpReq)

	if outcome.Success {
		logger.Debug("facilitator settled payment",
			"transaction", outcome.TransactionHash,
			"block", outcome.BlockNumber,
			"duration", time.Since(start))
	} else {
		logger.Warn("facilitator settlement failed",
			"code", outcome.ErrorCode,
			"error", outcome.ErrorMessage,
			"duration", time.Since(start))
	}

	if c.OnAfterSettle != nil {
		c.OnAfterSettle(ctx, req, outcome)
	}
	return outcome, nil
}

func (c *FacilitatorClient) doSettle(ctx context.Context, httpReq *http.Request) x402.SettlementOutcome {
	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return transportFailure(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return transportFailure(ctx, err)
	}
	settledAt := time.Now()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var parsed x402.FacilitatorSettleResponse
		if json.Unmarshal(body, &parsed) == nil && !parsed.Success && parsed.Error != nil &&
			x402.IsSettlementCode(x402.ErrorCode(parsed.Error.Code)) {
			return x402.ParseSettlementOutcome(parsed, settledAt)
		}
		msg := fmt.Sprintf("facilitator returned status %d", resp.StatusCode)
		if snippet := strings.TrimSpace(string(body)); snippet != "" && len(snippet) < 500 {
			msg += ": " + snippet
		}
		return x402.NewSettlementFailure(x402.CodeFacilitatorError, msg, settledAt)
	}

	return x402.DecodeSettlementOutcome(body, settledAt)
}

// transportFailure classifies an error raised while the request was in
// flight. Both results are ambiguous: the transfer may have executed.
func transportFailure(ctx context.Context, err error) x402.SettlementOutcome {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return x402.NewSettlementFailure(x402.CodeTimeout, "facilitator did not respond in time: "+err.Error(), time.Time{})
	}
	return x402.NewSettlementFailure(x402.CodeNetworkError, "facilitator request failed: "+err.Error(), time.Time{})
}

// Supported queries the facilitator for supported payment types.
func (c *FacilitatorClient) Supported(ctx context.Context) (*facilitator.SupportedResponse, error) {
	reqCtx := ctx
	if c.Timeouts.HealthTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.Timeouts.HealthTimeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.endpoint("/supported"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuthorizationHeader(httpReq)

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: supported endpoint returned status %d", x402.ErrFacilitatorUnavailable, resp.StatusCode)
	}

	var supportedResp facilitator.SupportedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&supportedResp); err != nil {
		return nil, fmt.Errorf("failed to decode supported response: %w", err)
	}
	return &supportedResp, nil
}

// Health probes the facilitator through its supported endpoint. Any 200
// reply with a decodable body counts as healthy.
func (c *FacilitatorClient) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	_, err := c.Supported(ctx)
	status := HealthStatus{Healthy: err == nil, Latency: time.Since(start)}
	if err != nil {
		status.Error = err.Error()
		c.logger().Warn("facilitator health check failed", "url", c.BaseURL, "error", err)
	}
	return status
}
