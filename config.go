package x402

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TimeoutConfig holds timeouts for facilitator operations.
type TimeoutConfig struct {
	// SettleTimeout bounds a single settle round trip (on-chain execution included).
	SettleTimeout time.Duration
	// HealthTimeout bounds a /supported probe.
	HealthTimeout time.Duration
	// RequestTimeout bounds a whole paid request in the paying client.
	RequestTimeout time.Duration
}

// DefaultTimeouts are the timeouts used when none are configured.
var DefaultTimeouts = TimeoutConfig{
	SettleTimeout:  60 * time.Second,
	HealthTimeout:  5 * time.Second,
	RequestTimeout: 120 * time.Second,
}

// WithSettleTimeout returns a copy with the settle timeout replaced.
func (c TimeoutConfig) WithSettleTimeout(d time.Duration) TimeoutConfig {
	c.SettleTimeout = d
	return c
}

// WithHealthTimeout returns a copy with the health timeout replaced.
func (c TimeoutConfig) WithHealthTimeout(d time.Duration) TimeoutConfig {
	c.HealthTimeout = d
	return c
}

// WithRequestTimeout returns a copy with the request timeout replaced.
func (c TimeoutConfig) WithRequestTimeout(d time.Duration) TimeoutConfig {
	c.RequestTimeout = d
	return c
}

// Validate checks that all timeouts are positive.
func (c TimeoutConfig) Validate() error {
	if c.SettleTimeout <= 0 {
		return errors.New("settle timeout must be positive")
	}
	if c.HealthTimeout <= 0 {
		return errors.New("health timeout must be positive")
	}
	if c.RequestTimeout < 0 {
		return errors.New("request timeout must not be negative")
	}
	return nil
}

// Default timing bounds for authorizations.
const (
	DefaultMaxAuthorizationAge = time.Hour
	DefaultMinValidityWindow   = 30 * time.Second
)

// PaymentConfig holds the parameters of a payment requirement. Build it with
// NewPaymentConfig and treat it as read-only afterwards.
type PaymentConfig struct {
	// PayTo is the recipient address.
	PayTo string
	// Amount is the price in atomic token units, as a decimal string.
	Amount string
	// TokenAddress is the EIP-3009 token contract.
	TokenAddress string
	// TokenName is the token's EIP-712 domain name.
	TokenName string
	// TokenDecimals is the number of decimal places of the token.
	TokenDecimals int
	// TokenVersion is the token's EIP-712 domain version.
	TokenVersion string
	// FacilitatorURL is the absolute base URL of the facilitator.
	FacilitatorURL string
	// ChainID is the EIP-155 chain id.
	ChainID int64
	// MaxAuthorizationAge is the longest accepted distance between now and validBefore.
	MaxAuthorizationAge time.Duration
	// MinValidityWindow is the shortest accepted remaining validity of an authorization.
	MinValidityWindow time.Duration
	// Description is the default human-readable description in challenges.
	Description string
	// Debug enables diagnostic logging of header detection.
	Debug bool
	// Timeouts for facilitator calls.
	Timeouts TimeoutConfig
}

// NewPaymentConfig fills in defaults from the chain table and validates the
// result. An invalid configuration is returned as a *PaymentError naming the
// first invalid field.
func NewPaymentConfig(cfg PaymentConfig) (*PaymentConfig, error) {
	if chain, ok := ChainByID(cfg.ChainID); ok {
		if cfg.TokenAddress == "" {
			cfg.TokenAddress = chain.USDCAddress
		}
		if cfg.TokenName == "" {
			cfg.TokenName = chain.EIP3009Name
		}
		if cfg.TokenVersion == "" {
			cfg.TokenVersion = chain.EIP3009Version
		}
		if cfg.TokenDecimals == 0 {
			cfg.TokenDecimals = chain.Decimals
		}
	}
	if cfg.MaxAuthorizationAge == 0 {
		cfg.MaxAuthorizationAge = DefaultMaxAuthorizationAge
	}
	if cfg.MinValidityWindow == 0 {
		cfg.MinValidityWindow = DefaultMinValidityWindow
	}
	if cfg.Timeouts == (TimeoutConfig{}) {
		cfg.Timeouts = DefaultTimeouts
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field and reports the first invalid one.
// It has no side effects, so repeated calls give the same answer.
func (c PaymentConfig) Validate() error {
	if !common.IsHexAddress(c.PayTo) {
		return configError("payTo", c.PayTo, "must be a 20-byte hex address")
	}
	amount, ok := Uint(c.Amount).Int()
	if !ok || amount.Sign() <= 0 {
		return configError("amount", c.Amount, "must be a positive integer in atomic units")
	}
	if _, err := Uint(c.Amount).Uint256(); err != nil {
		return configError("amount", c.Amount, err.Error())
	}
	if !common.IsHexAddress(c.TokenAddress) {
		return configError("tokenAddress", c.TokenAddress, "must be a 20-byte hex address")
	}
	if c.TokenName == "" {
		return configError("tokenName", "", "is required")
	}
	if c.TokenDecimals < 0 {
		return configError("tokenDecimals", fmt.Sprint(c.TokenDecimals), "must not be negative")
	}
	if c.TokenVersion == "" {
		return configError("tokenVersion", "", "is required")
	}
	u, err := url.Parse(c.FacilitatorURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return configError("facilitatorURL", c.FacilitatorURL, "must be an absolute URL")
	}
	if c.ChainID <= 0 {
		return configError("chainId", fmt.Sprint(c.ChainID), "must be positive")
	}
	if c.MaxAuthorizationAge < 0 {
		return configError("maxAuthorizationAge", c.MaxAuthorizationAge.String(), "must not be negative")
	}
	if c.MinValidityWindow < 0 {
		return configError("minValidityWindow", c.MinValidityWindow.String(), "must not be negative")
	}
	if c.MaxAuthorizationAge > 0 && c.MinValidityWindow > c.MaxAuthorizationAge {
		return configError("minValidityWindow", c.MinValidityWindow.String(), "must not exceed maxAuthorizationAge")
	}
	if err := c.Timeouts.Validate(); err != nil {
		return configError("timeouts", "", err.Error())
	}
	return nil
}

// AmountInt returns the configured price as a fresh big integer.
func (c *PaymentConfig) AmountInt() *big.Int {
	n, ok := Uint(c.Amount).Int()
	if !ok {
		return new(big.Int)
	}
	return n
}

// Network returns the network label derived from the chain id.
func (c *PaymentConfig) Network() string {
	return NetworkLabel(c.ChainID)
}

// Domain returns the EIP-712 domain of the configured token.
func (c *PaymentConfig) Domain() EIP712Domain {
	return USDCDomain(c.ChainID, c.TokenAddress, c.TokenName, c.TokenVersion)
}

func configError(field, value, msg string) *PaymentError {
	return NewConfigError(field, value, field+" "+msg)
}
