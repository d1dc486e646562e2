package x402

import (
	"strings"
	"testing"
	"time"
)

func TestDecodeSettlementOutcome(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name        string
		body        string
		wantSuccess bool
		wantHash    string
		wantBlock   uint64
		wantCode    ErrorCode
		wantMessage string
	}{
		{
			name:        "success",
			body:        `{"success":true,"transaction":{"hash":"0xabc","blockNumber":100}}`,
			wantSuccess: true,
			wantHash:    "0xabc",
			wantBlock:   100,
		},
		{
			name:        "success with string block number",
			body:        `{"success":true,"transaction":{"hash":"0xabc","blockNumber":"100"}}`,
			wantSuccess: true,
			wantHash:    "0xabc",
			wantBlock:   100,
		},
		{
			name:        "failure",
			body:        `{"success":false,"error":{"code":"INSUFFICIENT_BALANCE","message":"m"}}`,
			wantCode:    CodeInsufficientBalance,
			wantMessage: "m",
		},
		{
			name:     "success without transaction",
			body:     `{"success":true}`,
			wantCode: CodeUnknownError,
		},
		{
			name:     "success without hash",
			body:     `{"success":true,"transaction":{"blockNumber":100}}`,
			wantCode: CodeUnknownError,
		},
		{
			name:     "success without block number",
			body:     `{"success":true,"transaction":{"hash":"0xabc"}}`,
			wantCode: CodeUnknownError,
		},
		{
			name:     "success with garbage block number",
			body:     `{"success":true,"transaction":{"hash":"0xabc","blockNumber":"soon"}}`,
			wantCode: CodeUnknownError,
		},
		{
			name:     "failure without error object",
			body:     `{"success":false}`,
			wantCode: CodeUnknownError,
		},
		{
			name:        "unrecognised failure code",
			body:        `{"success":false,"error":{"code":"RATE_LIMITED","message":"slow down"}}`,
			wantCode:    CodeFacilitatorError,
			wantMessage: "RATE_LIMITED: slow down",
		},
		{
			name:     "malformed json",
			body:     `{"success":tru`,
			wantCode: CodeFacilitatorError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeSettlementOutcome([]byte(tt.body), at)
			if got.Success != tt.wantSuccess {
				t.Fatalf("Success = %v, want %v (%+v)", got.Success, tt.wantSuccess, got)
			}
			if got.TransactionHash != tt.wantHash || got.BlockNumber != tt.wantBlock {
				t.Errorf("transaction = %q/%d, want %q/%d", got.TransactionHash, got.BlockNumber, tt.wantHash, tt.wantBlock)
			}
			if got.ErrorCode != tt.wantCode {
				t.Errorf("ErrorCode = %q, want %q", got.ErrorCode, tt.wantCode)
			}
			if tt.wantMessage != "" && got.ErrorMessage != tt.wantMessage {
				t.Errorf("ErrorMessage = %q, want %q", got.ErrorMessage, tt.wantMessage)
			}
			if !got.SettledAt.Equal(at) {
				t.Errorf("SettledAt = %v, want %v", got.SettledAt, at)
			}
			if IsSuccessfulSettlement(&got) != tt.wantSuccess {
				t.Errorf("IsSuccessfulSettlement = %v", !tt.wantSuccess)
			}
		})
	}
}

func TestParseSettlementOutcomeDefaultsTimestamp(t *testing.T) {
	before := time.Now()
	got := ParseSettlementOutcome(FacilitatorSettleResponse{Success: false}, time.Time{})
	if got.SettledAt.Before(before) {
		t.Errorf("SettledAt = %v, expected now", got.SettledAt)
	}
}

func TestIsSuccessfulSettlement(t *testing.T) {
	tests := []struct {
		name    string
		outcome *SettlementOutcome
		want    bool
	}{
		{"nil", nil, false},
		{"complete", &SettlementOutcome{Success: true, TransactionHash: "0x1", BlockNumber: 5}, true},
		{"flag only", &SettlementOutcome{Success: true}, false},
		{"no block", &SettlementOutcome{Success: true, TransactionHash: "0x1"}, false},
		{"no hash", &SettlementOutcome{Success: true, BlockNumber: 5}, false},
		{"failure with hash", &SettlementOutcome{Success: false, TransactionHash: "0x1", BlockNumber: 5}, false},
	}
	for _, tt := range tests {
		if got := IsSuccessfulSettlement(tt.outcome); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSettlementOutcomeErr(t *testing.T) {
	ok := NewSettlementSuccess("0xabc", 7, time.Time{})
	if ok.Err() != nil {
		t.Errorf("successful outcome returned error %v", ok.Err())
	}

	failed := NewSettlementFailure(CodeTimeout, "deadline exceeded", time.Time{})
	err := failed.Err()
	if err == nil || err.Code != CodeTimeout || !err.Ambiguous {
		t.Errorf("unexpected error %+v", err)
	}

	partial := SettlementOutcome{Success: true}
	if err := partial.Err(); err == nil || err.Code != CodeUnknownError {
		t.Errorf("partial outcome error = %v", err)
	}

	var nilOutcome *SettlementOutcome
	if err := nilOutcome.Err(); err == nil || !strings.Contains(err.Message, "no settlement") {
		t.Errorf("nil outcome error = %v", err)
	}
}
