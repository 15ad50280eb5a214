package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"
)

// KeyManager holds the provider's ECDSA P-256 keypair used to sign ID tokens
// and session cookies.
type KeyManager struct {
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
	kid        string // Key ID (fingerprint)
}

// NewKeyManager creates a new KeyManager with a fresh ECDSA P-256 keypair.
// Sessions signed by a generated key do not survive a restart.
func NewKeyManager() (*KeyManager, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}

	return newKeyManager(privateKey)
}

// LoadKeyManager reads a PEM encoded EC private key from path.
func LoadKeyManager(path string) (*KeyManager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	return NewKeyManagerFromPEM(data)
}

// NewKeyManagerFromPEM parses a PEM encoded EC private key (SEC 1 or PKCS #8).
func NewKeyManagerFromPEM(data []byte) (*KeyManager, error) {
	privateKey, err := jwt.ParseECPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	if privateKey.Curve != elliptic.P256() {
		return nil, ErrInvalidSigningKeyType
	}

	return newKeyManager(privateKey)
}

// newKeyManager computes the kid as the base58-encoded SHA256 hash of the
// public key DER bytes.
func newKeyManager(privateKey *ecdsa.PrivateKey) (*KeyManager, error) {
	pubKeyDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	hash := sha256.Sum256(pubKeyDER)

	return &KeyManager{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		kid:        base58.Encode(hash[:]),
	}, nil
}

// Kid returns the key ID (fingerprint) for this keypair.
func (km *KeyManager) Kid() string {
	return km.kid
}

// PublicKey returns the verification key.
func (km *KeyManager) PublicKey() *ecdsa.PublicKey {
	return km.publicKey
}

// PrivateKeyPEM encodes the private key as PKCS #8 PEM, used by the
// keygen command.
func (km *KeyManager) PrivateKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(km.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// SignJWT signs claims with the private key.
// The token header will include the kid for key identification.
func (km *KeyManager) SignJWT(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = km.kid

	tokenString, err := token.SignedString(km.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}

	return tokenString, nil
}

// keyFunc resolves the verification key for a parsed token, rejecting
// tokens signed by any other key.
func (km *KeyManager) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	kid, _ := token.Header["kid"].(string)
	if kid != km.kid {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}

	return km.publicKey, nil
}

// JWK returns the public key in JWK (JSON Web Key) format.
func (km *KeyManager) JWK() map[string]any {
	return map[string]any{
		"kty": "EC",
		"use": "sig",
		"crv": "P-256",
		"kid": km.kid,
		"x":   base64.RawURLEncoding.EncodeToString(km.publicKey.X.FillBytes(make([]byte, 32))),
		"y":   base64.RawURLEncoding.EncodeToString(km.publicKey.Y.FillBytes(make([]byte, 32))),
		"alg": "ES256",
	}
}
