package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyManager(t *testing.T) {
	t.Run("generated key", func(t *testing.T) {
		km, err := NewKeyManager()
		require.NoError(t, err)
		require.NotEmpty(t, km.Kid())
		require.NotNil(t, km.PublicKey())
	})

	t.Run("PEM round trip keeps the kid", func(t *testing.T) {
		km, err := NewKeyManager()
		require.NoError(t, err)

		data, err := km.PrivateKeyPEM()
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "signing.pem")
		require.NoError(t, os.WriteFile(path, data, 0o600))

		loaded, err := LoadKeyManager(path)
		require.NoError(t, err)
		require.Equal(t, km.Kid(), loaded.Kid())
	})

	t.Run("rejects other curves", func(t *testing.T) {
		key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		require.NoError(t, err)
		der, err := x509.MarshalECPrivateKey(key)
		require.NoError(t, err)

		_, err = NewKeyManagerFromPEM(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))
		require.ErrorIs(t, err, ErrInvalidSigningKeyType)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadKeyManager(filepath.Join(t.TempDir(), "missing.pem"))
		require.Error(t, err)
	})

	t.Run("JWK", func(t *testing.T) {
		km, err := NewKeyManager()
		require.NoError(t, err)

		jwk := km.JWK()
		require.Equal(t, "EC", jwk["kty"])
		require.Equal(t, "ES256", jwk["alg"])
		require.Equal(t, km.Kid(), jwk["kid"])
		require.Len(t, jwk["x"], 43)
		require.Len(t, jwk["y"], 43)
	})
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("short")
	require.ErrorIs(t, err, ErrPasswordTooShort)

	hash, err := HashPassword(testPassword)
	require.NoError(t, err)
	require.True(t, IsPasswordHash(hash))
	require.False(t, IsPasswordHash(testPassword))

	require.NoError(t, comparePassword(hash, testPassword))
	require.ErrorIs(t, comparePassword(hash, "wrong-password"), ErrInvalidCredentials)
}
