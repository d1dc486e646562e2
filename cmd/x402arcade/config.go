package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/x402arcade/x402-go"
)

// Defaults for a local testnet arcade.
const (
	defaultChainID     = 338
	defaultGamePrice   = "0.01"
	defaultPort        = "3001"
	defaultDescription = "Start an arcade game"
)

// serverSettings is everything serve needs, read from the environment.
type serverSettings struct {
	Payment *x402.PaymentConfig
	Port    string

	JWTKey   string
	JWTKeyID string

	VerifySignatures bool
	SettleRetries    int
}

// loadServerSettings reads and validates the environment. Any invalid value
// is reported with the variable that carried it.
func loadServerSettings(getenv func(string) string) (*serverSettings, error) {
	payment, err := loadPaymentConfig(getenv)
	if err != nil {
		return nil, err
	}

	s := &serverSettings{
		Payment:          payment,
		Port:             envOr(getenv, "PORT", defaultPort),
		JWTKey:           getenv("FACILITATOR_JWT_KEY"),
		JWTKeyID:         getenv("FACILITATOR_JWT_KEY_ID"),
		VerifySignatures: envBool(getenv, "VERIFY_SIGNATURES"),
	}
	if (s.JWTKey == "") != (s.JWTKeyID == "") {
		return nil, fmt.Errorf("FACILITATOR_JWT_KEY and FACILITATOR_JWT_KEY_ID must be set together")
	}
	if v := getenv("SETTLE_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("SETTLE_RETRIES: must be a non-negative integer, got %q", v)
		}
		s.SettleRetries = n
	}
	return s, nil
}

// loadPaymentConfig builds the payment configuration. GAME_PRICE is a
// human-readable token amount such as "0.01"; token fields default from the
// chain table.
func loadPaymentConfig(getenv func(string) string) (*x402.PaymentConfig, error) {
	chainID := int64(defaultChainID)
	if v := getenv("CHAIN_ID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("CHAIN_ID: %q is not an integer", v)
		}
		chainID = n
	}

	decimals := 6
	if chain, ok := x402.ChainByID(chainID); ok {
		decimals = chain.Decimals
	}
	if v := getenv("TOKEN_DECIMALS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("TOKEN_DECIMALS: %q is not an integer", v)
		}
		decimals = n
	}

	price := envOr(getenv, "GAME_PRICE", defaultGamePrice)
	amount, err := x402.ParseAmount(price, decimals)
	if err != nil {
		return nil, fmt.Errorf("GAME_PRICE: %w", err)
	}

	maxAge, err := envDuration(getenv, "MAX_AUTHORIZATION_AGE")
	if err != nil {
		return nil, err
	}
	minWindow, err := envDuration(getenv, "MIN_VALIDITY_WINDOW")
	if err != nil {
		return nil, err
	}

	cfg, err := x402.NewPaymentConfig(x402.PaymentConfig{
		PayTo:               getenv("PAY_TO_ADDRESS"),
		Amount:              amount.String(),
		TokenAddress:        getenv("USDC_ADDRESS"),
		TokenName:           getenv("TOKEN_NAME"),
		TokenDecimals:       decimals,
		TokenVersion:        getenv("TOKEN_VERSION"),
		FacilitatorURL:      getenv("FACILITATOR_URL"),
		ChainID:             chainID,
		MaxAuthorizationAge: maxAge,
		MinValidityWindow:   minWindow,
		Description:         envOr(getenv, "GAME_DESCRIPTION", defaultDescription),
		Debug:               envBool(getenv, "X402_DEBUG"),
	})
	if err != nil {
		return nil, fmt.Errorf("invalid payment configuration: %w", err)
	}
	return cfg, nil
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(getenv func(string) string, key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(getenv(key)))
	return b
}

// envDuration accepts a Go duration ("90s", "1h") or a plain number of
// seconds. Unset yields zero, which selects the library default.
func envDuration(getenv func(string) string, key string) (time.Duration, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration", key, v)
	}
	return d, nil
}
