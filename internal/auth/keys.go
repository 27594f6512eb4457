// ABOUTME: Verification and signing key loading from PEM and OpenSSH formats.
// ABOUTME: Accepts authorized_keys-style public keys so agent keys work directly.

package auth

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// LoadVerificationKey reads a public key from path. Both PEM (PKIX, PKCS1,
// or certificate) and OpenSSH authorized_keys formats are accepted, so a key
// generated with ssh-keygen can be used without conversion.
func LoadVerificationKey(path string) (crypto.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading verification key: %w", err)
	}
	return ParseVerificationKey(data)
}

// ParseVerificationKey parses a public key from raw bytes.
func ParseVerificationKey(data []byte) (crypto.PublicKey, error) {
	trimmed := strings.TrimSpace(string(data))

	if strings.HasPrefix(trimmed, "ssh-") || strings.HasPrefix(trimmed, "ecdsa-sha2-") {
		sshKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(trimmed))
		if err != nil {
			return nil, fmt.Errorf("parsing OpenSSH public key: %w", err)
		}
		cryptoKey, ok := sshKey.(ssh.CryptoPublicKey)
		if !ok {
			return nil, fmt.Errorf("unsupported OpenSSH key type %s", sshKey.Type())
		}
		return cryptoKey.CryptoPublicKey(), nil
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in verification key")
	}

	switch block.Type {
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing certificate: %w", err)
		}
		return cert.PublicKey, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}

// LoadSigningKey reads a PEM-encoded private key from path. PKCS8, PKCS1,
// and SEC1 EC encodings are accepted.
func LoadSigningKey(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading signing key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in signing key")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("unsupported private key encoding in %s", path)
}
