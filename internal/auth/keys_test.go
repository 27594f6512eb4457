// ABOUTME: Tests for verification and signing key parsing.
// ABOUTME: Covers PEM PKIX, OpenSSH authorized_keys, and PKCS8 private keys.

package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/crypto/ssh"
)

func TestParseVerificationKeyPEM(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	parsed, err := ParseVerificationKey(pemBytes)
	require.NoError(t, err)

	pub, ok := parsed.(*rsa.PublicKey)
	require.True(t, ok, "expected *rsa.PublicKey, got %T", parsed)
	assert.True(t, pub.Equal(&key.PublicKey))
}

func TestParseVerificationKeyOpenSSH(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	authorized := ssh.MarshalAuthorizedKey(sshPub)

	parsed, err := ParseVerificationKey(authorized)
	require.NoError(t, err)

	// The parsed key must verify tokens signed with the matching private key.
	issuer, err := NewIssuer(priv, "t", "aud")
	require.NoError(t, err)
	token, err := issuer.Issue("s", nil, time.Hour)
	require.NoError(t, err)

	_, err = NewKeyVerifier(parsed, "aud").Verify(token)
	assert.NoError(t, err)
}

func TestParseVerificationKeyGarbage(t *testing.T) {
	_, err := ParseVerificationKey([]byte("not a key"))
	assert.Error(t, err)
}

func TestLoadSigningKeyPKCS8(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	require.NoError(t, os.WriteFile(path, pemBytes, 0o600))

	key, err := LoadSigningKey(path)
	require.NoError(t, err)
	_, ok := key.(ed25519.PrivateKey)
	assert.True(t, ok, "expected ed25519.PrivateKey, got %T", key)
}

func TestLoadVerificationKeyMissingFile(t *testing.T) {
	_, err := LoadVerificationKey(filepath.Join(t.TempDir(), "absent.pem"))
	assert.Error(t, err)
}
