package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/x402arcade/x402-go"
	httpx402 "github.com/x402arcade/x402-go/http"
	"github.com/x402arcade/x402-go/mcp"
)

// X402Handler wraps an MCP HTTP handler and gates payable tools. The payment
// is taken from params._meta["x402/payment"] and settled before the tool
// runs; the settlement summary is added to result._meta.
type X402Handler struct {
	mcpHandler http.Handler
	processor  *httpx402.Processor
	config     *Config
}

// NewX402Handler creates a new x402 payment handler.
func NewX402Handler(mcpHandler http.Handler, processor *httpx402.Processor, config *Config) *X402Handler {
	if config == nil {
		config = &Config{}
	}
	return &X402Handler{
		mcpHandler: mcpHandler,
		processor:  processor,
		config:     config,
	}
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

type toolCallParams struct {
	Name string                     `json:"name"`
	Meta map[string]json.RawMessage `json:"_meta"`
}

// maxRequestBody caps how much of a JSON-RPC request is read.
const maxRequestBody = 1 << 20

// ServeHTTP intercepts tools/call requests for payable tools.
func (h *X402Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.mcpHandler.ServeHTTP(w, r)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeRPCError(w, nil, &mcp.RPCError{Code: mcp.CodeInvalidRequest, Message: "Request body too large"})
			return
		}
		writeRPCError(w, nil, &mcp.RPCError{Code: mcp.CodeParseError, Message: "Parse error"})
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPCError(w, nil, &mcp.RPCError{Code: mcp.CodeParseError, Message: "Parse error"})
		return
	}
	if req.Method != "tools/call" {
		h.mcpHandler.ServeHTTP(w, r)
		return
	}

	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeRPCError(w, req.ID, &mcp.RPCError{Code: mcp.CodeInvalidParams, Message: "Invalid params"})
		return
	}
	description, payable := h.config.PaymentTools[params.Name]
	if !payable {
		h.mcpHandler.ServeHTTP(w, r)
		return
	}

	logger := h.config.logger().With("requestID", req.ID, "tool", params.Name)
	resource := mcp.ToolResource(params.Name)

	header := http.Header{}
	if value, ok := paymentValue(params.Meta); ok {
		header.Set(x402.PaymentHeader, value)
	}

	record, perr := h.processor.Process(r.Context(), header, resource)
	if perr != nil {
		challenge := h.processor.Challenge(resource, description)
		if perr.Code == x402.CodeMissingHeader {
			writeRPCError(w, req.ID, mcp.PaymentRequired(challenge))
			return
		}
		status := httpx402.StatusFor(perr.Code)
		if perr.Ambiguous {
			status = http.StatusGatewayTimeout
		}
		writeRPCError(w, req.ID, mcp.FromPaymentError(perr, status, challenge))
		return
	}

	r = r.WithContext(httpx402.WithPayment(r.Context(), record))
	r.Body = io.NopCloser(bytes.NewReader(body))

	rec := &responseRecorder{headerMap: make(http.Header), statusCode: http.StatusOK}
	h.mcpHandler.ServeHTTP(rec, r)

	contentType := rec.headerMap.Get("Content-Type")
	var out []byte
	if strings.HasPrefix(contentType, "text/event-stream") {
		out, err = injectSettlementEvents(rec.body.Bytes(), record.SettlementResponse())
	} else {
		out, err = injectSettlement(rec.body.Bytes(), record.SettlementResponse())
	}
	if err != nil {
		// The payment is settled; the tool output goes back unchanged.
		logger.Warn("could not add settlement to tool result",
			"record", record.ID, "contentType", contentType, "error", err)
		out = rec.body.Bytes()
	}

	for k, v := range rec.headerMap {
		w.Header()[k] = v
	}
	w.Header().Del("Content-Length")
	w.WriteHeader(rec.statusCode)
	_, _ = w.Write(out)
}

// paymentValue turns the _meta payment into an X-Payment header value. A
// string is used as is; an object is the decoded header and is re-encoded
// from its original bytes, so numbers keep their exact text.
func paymentValue(meta map[string]json.RawMessage) (string, bool) {
	raw, ok := meta[mcp.MetaKeyPayment]
	if !ok {
		return "", false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, s != ""
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return "", false
	}
	return base64.StdEncoding.EncodeToString(compact.Bytes()), true
}

// injectSettlement adds the settlement summary to result._meta. Responses
// carrying a JSON-RPC error are returned unchanged.
func injectSettlement(body []byte, settlement x402.SettlementResponse) ([]byte, error) {
	var resp map[string]json.RawMessage
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	rawResult, ok := resp["result"]
	if !ok {
		return body, nil
	}

	var result map[string]any
	if err := json.Unmarshal(rawResult, &result); err != nil {
		return nil, err
	}
	meta, ok := result["_meta"].(map[string]any)
	if !ok {
		meta = make(map[string]any)
	}
	meta[mcp.MetaKeyPaymentResponse] = settlement
	result["_meta"] = meta

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	resp["result"] = encoded
	return json.Marshal(resp)
}

var errNoResult = errors.New("no JSON-RPC result in event stream")

// injectSettlementEvents adds the settlement to every JSON-RPC result
// carried in the data lines of a server-sent event stream.
func injectSettlementEvents(body []byte, settlement x402.SettlementResponse) ([]byte, error) {
	lines := bytes.Split(body, []byte("\n"))
	injected := false
	for i, line := range lines {
		data, ok := bytes.CutPrefix(bytes.TrimRight(line, "\r"), []byte("data:"))
		if !ok {
			continue
		}
		data = bytes.TrimSpace(data)
		if !bytes.Contains(data, []byte(`"result"`)) {
			continue
		}
		out, err := injectSettlement(data, settlement)
		if err != nil {
			continue
		}
		lines[i] = append([]byte("data: "), out...)
		injected = true
	}
	if !injected {
		return nil, errNoResult
	}
	return bytes.Join(lines, []byte("\n")), nil
}

func writeRPCError(w http.ResponseWriter, id any, rpcErr *mcp.RPCError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK) // JSON-RPC errors use 200 status
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   rpcErr,
	})
}

// responseRecorder records HTTP responses for modification
type responseRecorder struct {
	headerMap  http.Header
	body       bytes.Buffer
	statusCode int
}

func (r *responseRecorder) Header() http.Header {
	return r.headerMap
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	return r.body.Write(b)
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
}
