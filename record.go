package x402

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// PaymentRecord is the proof of payment handed to downstream code.
// Builders return fresh values that share no memory with their inputs;
// callers must not modify a record after it is built.
type PaymentRecord struct {
	ID              string    `json:"id"`
	Payer           string    `json:"payer"`
	Recipient       string    `json:"recipient"`
	Amount          *big.Int  `json:"amount"`
	FormattedAmount string    `json:"formattedAmount"`
	TokenAddress    string    `json:"tokenAddress"`
	ChainID         int64     `json:"chainId"`
	Network         string    `json:"network"`
	TransactionHash string    `json:"transactionHash,omitempty"`
	BlockNumber     uint64    `json:"blockNumber,omitempty"`
	SettledAt       time.Time `json:"settledAt,omitzero"`
	ReceivedAt      time.Time `json:"receivedAt"`
	Nonce           string    `json:"nonce"`
	ValidAfter      uint64    `json:"validAfter"`
	ValidBefore     uint64    `json:"validBefore"`
}

// Pending reports whether the record has not been settled yet.
func (r *PaymentRecord) Pending() bool {
	return r.TransactionHash == ""
}

// BuildPaymentRecord combines a validated payload with a successful
// settlement outcome. The amount comes from the payload, since the
// facilitator response carries only transfer proof. A zero receivedAt means now.
func BuildPaymentRecord(p PaymentPayload, outcome SettlementOutcome, cfg *PaymentConfig, receivedAt time.Time) (*PaymentRecord, error) {
	if !IsSuccessfulSettlement(&outcome) {
		return nil, fmt.Errorf("cannot build payment record: %w", outcome.Err())
	}
	record, err := BuildPendingPaymentRecord(p, cfg, receivedAt)
	if err != nil {
		return nil, err
	}
	record.TransactionHash = outcome.TransactionHash
	record.BlockNumber = outcome.BlockNumber
	record.SettledAt = outcome.SettledAt
	return record, nil
}

// BuildPendingPaymentRecord builds a record for a payment that passed
// validation but is not settled yet. Settlement fields are left empty.
func BuildPendingPaymentRecord(p PaymentPayload, cfg *PaymentConfig, receivedAt time.Time) (*PaymentRecord, error) {
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	amount, ok := p.Value.Int()
	if !ok {
		return nil, NewPaymentError(CodeInvalidPayload, "value is not an integer", nil).WithField("value", p.Value.String())
	}
	validAfter, err := p.ValidAfter.Uint64()
	if err != nil {
		return nil, NewPaymentError(CodeInvalidPayload, "invalid validAfter", err).WithField("validAfter", p.ValidAfter.String())
	}
	validBefore, err := p.ValidBefore.Uint64()
	if err != nil {
		return nil, NewPaymentError(CodeInvalidPayload, "invalid validBefore", err).WithField("validBefore", p.ValidBefore.String())
	}

	return &PaymentRecord{
		ID:              uuid.NewString(),
		Payer:           p.From,
		Recipient:       p.To,
		Amount:          amount,
		FormattedAmount: FormatAmount(amount, cfg.TokenDecimals),
		TokenAddress:    cfg.TokenAddress,
		ChainID:         cfg.ChainID,
		Network:         cfg.Network(),
		ReceivedAt:      receivedAt,
		Nonce:           p.Nonce,
		ValidAfter:      validAfter,
		ValidBefore:     validBefore,
	}, nil
}

// SettlementResponse summarises a settled record for the X-Payment-Response header.
func (r *PaymentRecord) SettlementResponse() SettlementResponse {
	return SettlementResponse{
		Success:     !r.Pending(),
		Transaction: r.TransactionHash,
		Network:     r.Network,
		Payer:       r.Payer,
		BlockNumber: r.BlockNumber,
	}
}
