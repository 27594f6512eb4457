// ABOUTME: Tests for JWT verification strategies and scope parsing.
// ABOUTME: Covers audience enforcement, blank subjects, expiry, and pass-through mode.

package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAudience = "opsgate"

func newRSAIssuer(t *testing.T) (*Issuer, *rsa.PublicKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	issuer, err := NewIssuer(key, "opsgate-test", testAudience)
	require.NoError(t, err)
	return issuer, &key.PublicKey
}

func TestVerifyRoundTrip(t *testing.T) {
	issuer, pub := newRSAIssuer(t)
	verifier := NewKeyVerifier(pub, testAudience)

	token, err := issuer.Issue("agent-1", []string{"read:filesystem", "exec:shell"}, time.Hour)
	require.NoError(t, err)

	p, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", p.Subject)
	assert.Equal(t, []string{"read:filesystem", "exec:shell"}, p.Scopes)
	assert.Equal(t, "opsgate-test", p.Issuer)
	assert.Equal(t, testAudience, p.Audience)
	assert.True(t, p.HasScope("exec:shell"))
	assert.False(t, p.HasScope("admin:*"))
}

func TestVerifyEd25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	issuer, err := NewIssuer(priv, "opsgate-test", testAudience)
	require.NoError(t, err)

	token, err := issuer.Issue("agent-ed", []string{"read:git"}, time.Hour)
	require.NoError(t, err)

	p, err := NewKeyVerifier(pub, testAudience).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "agent-ed", p.Subject)
}

func TestVerifyWrongAudience(t *testing.T) {
	issuer, pub := newRSAIssuer(t)
	verifier := NewKeyVerifier(pub, "some-other-service")

	token, err := issuer.Issue("agent-1", nil, time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrWrongAudience)
}

func TestVerifyExpiredToken(t *testing.T) {
	issuer, pub := newRSAIssuer(t)
	verifier := NewKeyVerifier(pub, testAudience)

	token, err := issuer.Issue("agent-1", nil, -time.Minute)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyBlankSubject(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	claims := jwt.MapClaims{
		"sub": "  ",
		"aud": testAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)

	_, err = NewKeyVerifier(&key.PublicKey, testAudience).Verify(token)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestVerifyRejectsSymmetricSigning(t *testing.T) {
	// An HS256 token must never pass an asymmetric verifier, even if an
	// attacker signs with bytes derived from the public key.
	claims := jwt.MapClaims{
		"sub": "mallory",
		"aud": testAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("shared"))
	require.NoError(t, err)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	_, err = NewKeyVerifier(&key.PublicKey, testAudience).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyGarbageToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	_, err = NewKeyVerifier(&key.PublicKey, testAudience).Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseScopes(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"read:filesystem write:filesystem", []string{"read:filesystem", "write:filesystem"}},
		{"read:git,read:database", []string{"read:git", "read:database"}},
		{"a, b  c", []string{"a", "b", "c"}},
		{"", []string{}},
		{"   ", []string{}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ParseScopes(tc.raw), "raw=%q", tc.raw)
	}
}

func TestPassthroughVerifier(t *testing.T) {
	v := NewPassthroughVerifier([]string{"read:filesystem"})

	// The strategy succeeds regardless of what the caller presents,
	// including nothing at all.
	for _, token := range []string{"", "anything", "Bearer junk"} {
		p, err := v.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "anonymous", p.Subject)
		assert.Equal(t, []string{"read:filesystem"}, p.Scopes)
	}
}
