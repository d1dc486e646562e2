// Package x402 implements the server side of the x402 HTTP payment protocol
// for the arcade: payment configuration, the 402 challenge, mapping of signed
// EIP-3009 authorizations to facilitator settlement requests, and the payment
// records that downstream game-session code accepts as proof of payment.
package x402

import "fmt"

// ChainConfig contains chain-specific configuration for the USDC payment token.
type ChainConfig struct {
	// ChainID is the EIP-155 chain identifier.
	ChainID int64

	// NetworkID is the x402 network label advertised in challenges.
	NetworkID string

	// Testnet marks non-production chains.
	Testnet bool

	// USDCAddress is the bridged USDC token contract.
	USDCAddress string

	// Decimals is the number of decimal places for USDC (always 6).
	Decimals int

	// EIP3009Name is the EIP-712 domain "name" of the token contract.
	EIP3009Name string

	// EIP3009Version is the EIP-712 domain "version" of the token contract.
	EIP3009Version string

	// RPCURL is a public JSON-RPC endpoint for the chain.
	RPCURL string
}

var (
	// CronosTestnet is Cronos EVM testnet with devUSDC.e.
	CronosTestnet = ChainConfig{
		ChainID:        338,
		NetworkID:      "cronos-testnet",
		Testnet:        true,
		USDCAddress:    "0xc01efAaF7C5C61bEbFAeb358E1161b537b8bC0e0",
		Decimals:       6,
		EIP3009Name:    "Bridged USDC (Stargate)",
		EIP3009Version: "1",
		RPCURL:         "https://evm-t3.cronos.org",
	}

	// CronosMainnet is Cronos EVM mainnet with USDC.e.
	CronosMainnet = ChainConfig{
		ChainID:        25,
		NetworkID:      "cronos-mainnet",
		Testnet:        false,
		USDCAddress:    "0xf951eC28187D9E5Ca673Da8FE6757E6f0Be5F77C",
		Decimals:       6,
		EIP3009Name:    "Bridged USDC (Stargate)",
		EIP3009Version: "2",
		RPCURL:         "https://evm.cronos.org",
	}
)

var knownChains = []ChainConfig{CronosTestnet, CronosMainnet}

// ChainByID looks up a known chain by its chain id.
func ChainByID(chainID int64) (ChainConfig, bool) {
	for _, c := range knownChains {
		if c.ChainID == chainID {
			return c, true
		}
	}
	return ChainConfig{}, false
}

// ChainByNetwork looks up a known chain by its network label.
func ChainByNetwork(network string) (ChainConfig, bool) {
	for _, c := range knownChains {
		if c.NetworkID == network {
			return c, true
		}
	}
	return ChainConfig{}, false
}

// NetworkLabel derives the network label from a chain id. Known chains map to
// their testnet or mainnet name; anything else is labelled "eip155:<id>".
func NetworkLabel(chainID int64) string {
	if c, ok := ChainByID(chainID); ok {
		return c.NetworkID
	}
	return fmt.Sprintf("eip155:%d", chainID)
}

// USDCDomain builds the EIP-712 signing domain for a token on a chain.
func USDCDomain(chainID int64, tokenAddress, name, version string) EIP712Domain {
	return EIP712Domain{
		Name:              name,
		Version:           version,
		ChainID:           chainID,
		VerifyingContract: tokenAddress,
	}
}
