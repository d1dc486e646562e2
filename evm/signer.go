package evm

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/x402arcade/x402-go"
)

// DefaultValidity caps how long a signed authorization stays valid.
const DefaultValidity = 5 * time.Minute

// Signer implements x402.Signer with a local private key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	network    string
	chainID    int64
	maxAmount  *big.Int
	validity   time.Duration
	now        func() time.Time
}

var _ x402.Signer = (*Signer)(nil)

// SignerOption configures a Signer.
type SignerOption func(*Signer) error

// NewSigner creates a new EVM signer with the given options. A key and a
// chain are required.
func NewSigner(opts ...SignerOption) (*Signer, error) {
	s := &Signer{
		validity: DefaultValidity,
		now:      time.Now,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.privateKey == nil {
		return nil, x402.ErrInvalidKey
	}
	if s.chainID <= 0 {
		return nil, x402.NewConfigError("chainId", "", "a network or chain id is required")
	}

	s.address = crypto.PubkeyToAddress(s.privateKey.PublicKey)
	return s, nil
}

// WithPrivateKey sets the private key from a hex string.
func WithPrivateKey(hexKey string) SignerOption {
	return func(s *Signer) error {
		privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return x402.ErrInvalidKey
		}
		s.privateKey = privateKey
		return nil
	}
}

// WithECDSAKey sets an already parsed private key.
func WithECDSAKey(key *ecdsa.PrivateKey) SignerOption {
	return func(s *Signer) error {
		if key == nil {
			return x402.ErrInvalidKey
		}
		s.privateKey = key
		return nil
	}
}

// WithNetwork selects a known chain by its network label, such as "cronos-testnet".
func WithNetwork(network string) SignerOption {
	return func(s *Signer) error {
		chain, ok := x402.ChainByNetwork(network)
		if !ok {
			return x402.NewConfigError("network", network, fmt.Sprintf("unknown network %q", network))
		}
		s.network = chain.NetworkID
		s.chainID = chain.ChainID
		return nil
	}
}

// WithChainID selects a chain by id. Unknown chains are labelled "eip155:<id>".
func WithChainID(chainID int64) SignerOption {
	return func(s *Signer) error {
		if chainID <= 0 {
			return x402.NewConfigError("chainId", fmt.Sprint(chainID), "chain id must be positive")
		}
		s.network = x402.NetworkLabel(chainID)
		s.chainID = chainID
		return nil
	}
}

// WithMaxAmountPerCall limits the atomic amount a single payment may spend.
func WithMaxAmountPerCall(amount string) SignerOption {
	return func(s *Signer) error {
		maxAmount, ok := x402.Uint(amount).Int()
		if !ok {
			return x402.NewConfigError("maxAmount", amount, "max amount must be a decimal integer")
		}
		s.maxAmount = maxAmount
		return nil
	}
}

// WithValidity sets how long signed authorizations stay valid. Challenges
// asking for a shorter maxTimeoutSeconds win.
func WithValidity(d time.Duration) SignerOption {
	return func(s *Signer) error {
		if d <= 0 {
			return x402.NewConfigError("validity", d.String(), "validity must be positive")
		}
		s.validity = d
		return nil
	}
}

// Network implements x402.Signer.
func (s *Signer) Network() string {
	return s.network
}

// ChainID returns the chain the signer pays on.
func (s *Signer) ChainID() int64 {
	return s.chainID
}

// MaxAmount implements x402.Signer.
func (s *Signer) MaxAmount() *big.Int {
	return s.maxAmount
}

// Address returns the signer's address.
func (s *Signer) Address() common.Address {
	return s.address
}

// CanSign implements x402.Signer. The requirement's signing domain must be
// for this chain and name the advertised asset as verifying contract.
func (s *Signer) CanSign(req *x402.PaymentRequirement) bool {
	if req.Scheme != x402.SchemeExact || req.Network != s.network {
		return false
	}
	d := req.EIP712Domain
	return d.ChainID == s.chainID &&
		d.Name != "" && d.Version != "" &&
		common.IsHexAddress(d.VerifyingContract) &&
		x402.SameAddress(d.VerifyingContract, req.Asset.Address)
}

// Sign implements x402.Signer.
func (s *Signer) Sign(req *x402.PaymentRequirement) (*x402.PaymentPayload, error) {
	if !s.CanSign(req) {
		return nil, x402.ErrNoMatchingRequirement
	}
	if !common.IsHexAddress(req.PayTo) {
		return nil, fmt.Errorf("invalid payTo address %q", req.PayTo)
	}

	amount, ok := x402.Uint(req.MaxAmountRequired).Int()
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount %q", req.MaxAmountRequired)
	}
	if s.maxAmount != nil && amount.Cmp(s.maxAmount) > 0 {
		return nil, x402.ErrAmountExceeded
	}

	validity := s.validity
	if req.MaxTimeoutSeconds > 0 {
		validity = min(validity, time.Duration(req.MaxTimeoutSeconds)*time.Second)
	}

	auth, err := CreateEIP3009Authorization(s.address, common.HexToAddress(req.PayTo), amount, validity, s.now())
	if err != nil {
		return nil, err
	}

	sig, err := SignTransferAuthorization(s.privateKey, req.EIP712Domain, auth)
	if err != nil {
		return nil, err
	}

	a := auth.Payload()
	return &x402.PaymentPayload{
		X402Version: x402.ProtocolVersion,
		Scheme:      x402.SchemeExact,
		Network:     s.network,
		From:        a.From,
		To:          a.To,
		Value:       a.Value,
		ValidAfter:  a.ValidAfter,
		ValidBefore: a.ValidBefore,
		Nonce:       a.Nonce,
		V:           sig.V,
		R:           sig.R,
		S:           sig.S,
	}, nil
}
