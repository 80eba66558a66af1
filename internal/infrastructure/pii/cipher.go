// Package pii protects registrant identity fields at the persistence boundary:
// age encryption for stored values and keyed BLAKE3 hashes for exact-match
// lookups of values that are stored encrypted.
package pii

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// AgeCipher encrypts field values to a single X25519 identity. Ciphertext is
// base64 so it fits string columns and BSON string fields.
type AgeCipher struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewAgeCipher parses an AGE-SECRET-KEY-1... identity.
func NewAgeCipher(secretKey string) (*AgeCipher, error) {
	identity, err := age.ParseX25519Identity(strings.TrimSpace(secretKey))
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}
	return &AgeCipher{identity: identity, recipient: identity.Recipient()}, nil
}

// GenerateIdentity returns a fresh secret key, for seeding development setups.
func GenerateIdentity() (string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generating age identity: %w", err)
	}
	return identity.String(), nil
}

// Encrypt returns "" for an empty value so optional fields stay empty.
func (c *AgeCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, c.recipient)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (c *AgeCipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), c.identity)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading plaintext: %w", err)
	}
	return string(out), nil
}

// NopCipher stores values as given. Only for local development and tests.
type NopCipher struct{}

func (NopCipher) Encrypt(plaintext string) (string, error)  { return plaintext, nil }
func (NopCipher) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }
