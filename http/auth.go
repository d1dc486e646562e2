package http

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// DefaultTokenLifetime is how long facilitator bearer tokens stay valid.
const DefaultTokenLifetime = 2 * time.Minute

// JWTAuth signs short-lived bearer tokens for facilitators that authenticate
// merchants with an API key pair. The key is parsed once; JWTAuth is safe
// for concurrent use.
type JWTAuth struct {
	keyID      string
	issuer     string
	lifetime   time.Duration
	privateKey any
}

// FacilitatorClaims are the claims carried by a facilitator bearer token.
type FacilitatorClaims struct {
	*jwt.Claims
	// URI binds the token to one request: "{METHOD} {host}{path}".
	URI string `json:"uri"`
}

// NewJWTAuth parses a PEM-encoded ECDSA (SEC 1 or PKCS #8) or Ed25519 key.
// An empty issuer defaults to "x402arcade".
func NewJWTAuth(keyID, pemKey, issuer string) (*JWTAuth, error) {
	if keyID == "" {
		return nil, errors.New("key id must not be empty")
	}

	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, errors.New("failed to decode PEM block: invalid PEM format")
	}

	var privateKey any
	var err error
	privateKey, err = x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		privateKey, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
	}

	switch privateKey.(type) {
	case *ecdsa.PrivateKey, ed25519.PrivateKey:
	default:
		return nil, errors.New("unsupported private key type: must be ECDSA or Ed25519")
	}

	if issuer == "" {
		issuer = "x402arcade"
	}
	return &JWTAuth{
		keyID:      keyID,
		issuer:     issuer,
		lifetime:   DefaultTokenLifetime,
		privateKey: privateKey,
	}, nil
}

// Token signs a bearer token for one request.
func (a *JWTAuth) Token(method, host, path string) (string, error) {
	alg := jose.EdDSA
	if _, ok := a.privateKey.(*ecdsa.PrivateKey); ok {
		alg = jose.ES256
	}

	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: alg, Key: a.privateKey},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", a.keyID),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create JWT signer: %w", err)
	}

	now := time.Now()
	claims := &FacilitatorClaims{
		Claims: &jwt.Claims{
			Subject:   a.keyID,
			Issuer:    a.issuer,
			NotBefore: jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(now.Add(a.lifetime)),
		},
		URI: method + " " + host + path,
	}

	token, err := jwt.Signed(sig).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize JWT: %w", err)
	}
	return token, nil
}

// Provider returns an AuthorizationProvider that signs a fresh token per
// request. Signing failures are logged and the request goes out without an
// Authorization header; the facilitator's rejection then surfaces as
// FACILITATOR_ERROR.
func (a *JWTAuth) Provider(logger *slog.Logger) AuthorizationProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return func(r *http.Request) string {
		token, err := a.Token(r.Method, r.URL.Host, r.URL.Path)
		if err != nil {
			logger.Error("failed to sign facilitator token", "error", err)
			return ""
		}
		return "Bearer " + token
	}
}

// NewJWTAuthorizationProvider is shorthand for NewJWTAuth followed by Provider.
func NewJWTAuthorizationProvider(keyID, pemKey string, logger *slog.Logger) (AuthorizationProvider, error) {
	auth, err := NewJWTAuth(keyID, pemKey, "")
	if err != nil {
		return nil, err
	}
	return auth.Provider(logger), nil
}
