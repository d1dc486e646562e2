// Package evm signs and verifies EIP-3009 transferWithAuthorization payments
// for EVM chains and provides an x402.Signer backed by a local key.
package evm

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/x402arcade/x402-go"
)

// ClockSkew is subtracted from validAfter so that a payer whose clock runs
// ahead of the server is not rejected as not yet valid.
const ClockSkew = 10 * time.Second

// ErrSignatureMismatch is returned when a signature recovers to an address
// other than the authorization's from.
var ErrSignatureMismatch = errors.New("signature does not match payer")

// EIP3009Authorization represents the parameters for EIP-3009 transferWithAuthorization.
type EIP3009Authorization struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	ValidAfter  *big.Int
	ValidBefore *big.Int
	Nonce       common.Hash
}

// CreateEIP3009Authorization creates an authorization valid from now minus
// ClockSkew until now plus validity, with a random nonce.
func CreateEIP3009Authorization(from, to common.Address, value *big.Int, validity time.Duration, now time.Time) (*EIP3009Authorization, error) {
	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return &EIP3009Authorization{
		From:        from,
		To:          to,
		Value:       new(big.Int).Set(value),
		ValidAfter:  big.NewInt(now.Add(-ClockSkew).Unix()),
		ValidBefore: big.NewInt(now.Add(validity).Unix()),
		Nonce:       nonce,
	}, nil
}

// AuthorizationFromPayload parses the wire form of an authorization.
func AuthorizationFromPayload(a x402.Authorization) (*EIP3009Authorization, error) {
	if !common.IsHexAddress(a.From) || !common.IsHexAddress(a.To) {
		return nil, errors.New("from and to must be hex addresses")
	}
	nonce, err := hexutil.Decode(a.Nonce)
	if err != nil || len(nonce) != common.HashLength {
		return nil, fmt.Errorf("nonce must be 32 bytes of hex: %q", a.Nonce)
	}

	var ints [3]*big.Int
	for i, u := range []x402.Uint{a.Value, a.ValidAfter, a.ValidBefore} {
		v, err := u.Uint256()
		if err != nil {
			return nil, err
		}
		ints[i] = v.ToBig()
	}

	return &EIP3009Authorization{
		From:        common.HexToAddress(a.From),
		To:          common.HexToAddress(a.To),
		Value:       ints[0],
		ValidAfter:  ints[1],
		ValidBefore: ints[2],
		Nonce:       common.BytesToHash(nonce),
	}, nil
}

// Payload returns the wire form of the authorization.
func (a *EIP3009Authorization) Payload() x402.Authorization {
	return x402.Authorization{
		From:        a.From.Hex(),
		To:          a.To.Hex(),
		Value:       x402.NewUint(a.Value),
		ValidAfter:  x402.NewUint(a.ValidAfter),
		ValidBefore: x402.NewUint(a.ValidBefore),
		Nonce:       a.Nonce.Hex(),
	}
}

// TypedData builds the EIP-712 typed data of an authorization.
func TypedData(domain x402.EIP712Domain, auth *EIP3009Authorization) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(big.NewInt(domain.ChainID)),
			VerifyingContract: common.HexToAddress(domain.VerifyingContract).Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From.Hex(),
			"to":          auth.To.Hex(),
			"value":       (*math.HexOrDecimal256)(auth.Value),
			"validAfter":  (*math.HexOrDecimal256)(auth.ValidAfter),
			"validBefore": (*math.HexOrDecimal256)(auth.ValidBefore),
			"nonce":       auth.Nonce.Hex(),
		},
	}
}

// HashAuthorization computes the EIP-712 digest that is signed:
// keccak256("\x19\x01" || domainSeparator || hashStruct(message)).
func HashAuthorization(domain x402.EIP712Domain, auth *EIP3009Authorization) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(TypedData(domain, auth))
	if err != nil {
		return nil, fmt.Errorf("failed to hash authorization: %w", err)
	}
	return digest, nil
}

// SignTransferAuthorization signs an authorization for the token described by domain.
func SignTransferAuthorization(privateKey *ecdsa.PrivateKey, domain x402.EIP712Domain, auth *EIP3009Authorization) (x402.Signature, error) {
	digest, err := HashAuthorization(domain, auth)
	if err != nil {
		return x402.Signature{}, err
	}

	sig, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return x402.Signature{}, fmt.Errorf("failed to sign authorization: %w", err)
	}

	return x402.Signature{
		V: int(sig[64]) + 27,
		R: hexutil.Encode(sig[:32]),
		S: hexutil.Encode(sig[32:64]),
	}, nil
}

// RecoverAuthorizer returns the address that produced sig over auth.
// High-s signatures are rejected.
func RecoverAuthorizer(domain x402.EIP712Domain, auth *EIP3009Authorization, sig x402.Signature) (common.Address, error) {
	if sig.V != 27 && sig.V != 28 {
		return common.Address{}, fmt.Errorf("invalid recovery id %d", sig.V)
	}
	r, err := hexutil.Decode(sig.R)
	if err != nil || len(r) != 32 {
		return common.Address{}, errors.New("r must be 32 bytes of hex")
	}
	s, err := hexutil.Decode(sig.S)
	if err != nil || len(s) != 32 {
		return common.Address{}, errors.New("s must be 32 bytes of hex")
	}

	v := byte(sig.V - 27)
	if !crypto.ValidateSignatureValues(v, new(big.Int).SetBytes(r), new(big.Int).SetBytes(s), true) {
		return common.Address{}, errors.New("signature values out of range")
	}

	digest, err := HashAuthorization(domain, auth)
	if err != nil {
		return common.Address{}, err
	}

	raw := make([]byte, 65)
	copy(raw[:32], r)
	copy(raw[32:64], s)
	raw[64] = v
	pub, err := crypto.SigToPub(digest, raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyPayloadSignature checks that a payload was signed by its from
// address over the configured token domain. It has the shape of
// http.SignatureVerifier.
func VerifyPayloadSignature(p x402.PaymentPayload, cfg *x402.PaymentConfig) error {
	auth, err := AuthorizationFromPayload(p.Authorization())
	if err != nil {
		return err
	}
	signer, err := RecoverAuthorizer(cfg.Domain(), auth, p.Signature())
	if err != nil {
		return err
	}
	if signer != auth.From {
		return fmt.Errorf("%w: recovered %s, payload from %s", ErrSignatureMismatch, signer.Hex(), auth.From.Hex())
	}
	return nil
}

// generateNonce generates a cryptographically secure 32-byte random nonce.
func generateNonce() (common.Hash, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(nonce[:]), nil
}
