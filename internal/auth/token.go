// ABOUTME: JWT verification strategies producing Principals from bearer tokens.
// ABOUTME: Asymmetric verification with a public key, plus a pass-through strategy.

package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors.
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token expired")
	ErrMissingClaim  = errors.New("missing required claim")
	ErrWrongAudience = errors.New("token audience does not include this service")
)

// asymmetricMethods lists the signing algorithms accepted for verification.
// Symmetric HMAC methods are rejected: the service holds only a public key.
var asymmetricMethods = []string{
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256", "ES384", "ES512",
	"EdDSA",
}

// Verifier validates a bearer token and produces the caller's identity.
// The concrete strategy is selected once at startup, so every request path
// traverses the same authentication hook regardless of configuration.
type Verifier interface {
	Verify(tokenString string) (*Principal, error)
}

// KeyVerifier verifies asymmetrically signed JWTs using a public key only.
type KeyVerifier struct {
	key      crypto.PublicKey
	audience string
}

// NewKeyVerifier creates a verifier for the given public key and expected
// audience.
func NewKeyVerifier(key crypto.PublicKey, audience string) *KeyVerifier {
	return &KeyVerifier{key: key, audience: audience}
}

// Verify validates the signature and standard claims, then builds a
// Principal. A valid principal requires a non-blank subject and an audience
// claim that includes the configured audience. Scopes come from the "scope"
// claim as a space- or comma-delimited set.
func (v *KeyVerifier) Verify(tokenString string) (*Principal, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return v.key, nil },
		jwt.WithValidMethods(asymmetricMethods),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, ErrWrongAudience
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	iss, _ := claims.GetIssuer()

	var scopes []string
	if raw, ok := claims["scope"].(string); ok {
		scopes = ParseScopes(raw)
	}

	return &Principal{
		Subject:  sub,
		Scopes:   scopes,
		Issuer:   iss,
		Audience: v.audience,
	}, nil
}

// ParseScopes splits a scope claim into individual scopes. Both space- and
// comma-delimited forms are accepted.
func ParseScopes(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	scopes := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			scopes = append(scopes, f)
		}
	}
	return scopes
}

// PassthroughVerifier is the always-succeeding strategy used when no
// verification key is configured. Every request still exercises the same
// authentication hook; the check simply grants the configured identity.
type PassthroughVerifier struct {
	Subject string
	Scopes  []string
}

// NewPassthroughVerifier creates a pass-through strategy granting the given
// default scopes. Subject defaults to "anonymous".
func NewPassthroughVerifier(scopes []string) *PassthroughVerifier {
	return &PassthroughVerifier{Subject: "anonymous", Scopes: scopes}
}

// Verify ignores the token and returns the configured principal.
func (v *PassthroughVerifier) Verify(string) (*Principal, error) {
	scopes := make([]string, len(v.Scopes))
	copy(scopes, v.Scopes)
	return &Principal{Subject: v.Subject, Scopes: scopes}, nil
}

// Issuer self-issues tokens with a private key. This is a separate,
// optional capability; the serving path never needs the private key.
type Issuer struct {
	key      crypto.PrivateKey
	method   jwt.SigningMethod
	issuer   string
	audience string
}

// NewIssuer creates a token issuer. The signing method is derived from the
// key type: RSA keys sign RS256, ECDSA keys ES256, Ed25519 keys EdDSA.
func NewIssuer(key crypto.PrivateKey, issuer, audience string) (*Issuer, error) {
	var method jwt.SigningMethod
	switch key.(type) {
	case *rsa.PrivateKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PrivateKey:
		method = jwt.SigningMethodES256
	case ed25519.PrivateKey:
		method = jwt.SigningMethodEdDSA
	default:
		return nil, fmt.Errorf("unsupported signing key type %T", key)
	}
	return &Issuer{key: key, method: method, issuer: issuer, audience: audience}, nil
}

// Issue creates a signed token for the subject with the given scopes and
// lifetime.
func (i *Issuer) Issue(subject string, scopes []string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   subject,
		"iss":   i.issuer,
		"aud":   i.audience,
		"scope": strings.Join(scopes, " "),
		"iat":   now.Unix(),
		"exp":   now.Add(expiresIn).Unix(),
	}
	return jwt.NewWithClaims(i.method, claims).SignedString(i.key)
}
