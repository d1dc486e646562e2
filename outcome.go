package x402

import (
	"encoding/json"
	"fmt"
	"time"
)

// ParseSettlementOutcome maps a facilitator settle response onto a
// SettlementOutcome. A zero settledAt means now.
//
// A success response without a usable transaction hash and block number is
// reported as an UNKNOWN_ERROR failure. An unrecognised failure code becomes
// FACILITATOR_ERROR with the original code kept in the message.
func ParseSettlementOutcome(resp FacilitatorSettleResponse, settledAt time.Time) SettlementOutcome {
	if settledAt.IsZero() {
		settledAt = time.Now()
	}

	if resp.Success {
		tx := resp.Transaction
		if tx == nil || tx.Hash == "" || tx.BlockNumber == nil {
			return NewSettlementFailure(CodeUnknownError, "facilitator reported success without a transaction", settledAt)
		}
		block, err := tx.BlockNumber.Uint64()
		if err != nil || block == 0 {
			return NewSettlementFailure(CodeUnknownError, "facilitator reported success with an invalid block number", settledAt)
		}
		return NewSettlementSuccess(tx.Hash, block, settledAt)
	}

	if resp.Error == nil {
		return NewSettlementFailure(CodeUnknownError, "facilitator reported failure without an error", settledAt)
	}
	code := ErrorCode(resp.Error.Code)
	message := resp.Error.Message
	if !IsSettlementCode(code) {
		message = fmt.Sprintf("%s: %s", resp.Error.Code, resp.Error.Message)
		code = CodeFacilitatorError
	}
	return NewSettlementFailure(code, message, settledAt)
}

// DecodeSettlementOutcome parses a raw facilitator response body. Bodies
// that are not valid JSON become FACILITATOR_ERROR failures.
func DecodeSettlementOutcome(body []byte, settledAt time.Time) SettlementOutcome {
	var resp FacilitatorSettleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		if settledAt.IsZero() {
			settledAt = time.Now()
		}
		return NewSettlementFailure(CodeFacilitatorError, "malformed facilitator response: "+err.Error(), settledAt)
	}
	return ParseSettlementOutcome(resp, settledAt)
}

// NewSettlementSuccess builds a successful outcome. A zero settledAt means now.
func NewSettlementSuccess(txHash string, blockNumber uint64, settledAt time.Time) SettlementOutcome {
	if settledAt.IsZero() {
		settledAt = time.Now()
	}
	return SettlementOutcome{
		Success:         true,
		TransactionHash: txHash,
		BlockNumber:     blockNumber,
		SettledAt:       settledAt,
	}
}

// NewSettlementFailure builds a failed outcome. A zero settledAt means now.
func NewSettlementFailure(code ErrorCode, message string, settledAt time.Time) SettlementOutcome {
	if settledAt.IsZero() {
		settledAt = time.Now()
	}
	return SettlementOutcome{
		Success:      false,
		ErrorCode:    code,
		ErrorMessage: message,
		SettledAt:    settledAt,
	}
}

// IsSuccessfulSettlement reports whether an outcome can be trusted as
// settled: the success flag, a transaction hash and a block number are all
// required. Block 0 is genesis and never holds a settlement.
func IsSuccessfulSettlement(o *SettlementOutcome) bool {
	return o != nil && o.Success && o.TransactionHash != "" && o.BlockNumber > 0
}

// Err converts an untrusted outcome into a settlement PaymentError.
// It returns nil for successful outcomes.
func (o *SettlementOutcome) Err() *PaymentError {
	if IsSuccessfulSettlement(o) {
		return nil
	}
	if o == nil {
		return NewPaymentError(CodeUnknownError, "no settlement outcome", nil)
	}
	code := o.ErrorCode
	if code == "" {
		code = CodeUnknownError
	}
	message := o.ErrorMessage
	if message == "" {
		message = "settlement was not confirmed"
	}
	return NewPaymentError(code, message, nil)
}
