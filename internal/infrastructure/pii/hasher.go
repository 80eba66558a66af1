package pii

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// KeySize is the length of a lookup key in bytes.
const KeySize = 32

// Hasher derives lookup hashes with BLAKE3 in keyed mode. The domain is mixed
// into the input so an email hash never equals a person hash of the same text.
type Hasher struct {
	key [KeySize]byte
}

// NewHasher takes the key as 64 hex characters.
func NewHasher(hexKey string) (*Hasher, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding lookup key: %w", err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("lookup key must be %d bytes, got %d", KeySize, len(raw))
	}
	h := &Hasher{}
	copy(h.key[:], raw)
	return h, nil
}

// Hash returns the hex digest of normalized within domain.
func (h *Hasher) Hash(domain, normalized string) string {
	// NewKeyed only fails on a wrong key length, which the array type rules out.
	hasher, err := blake3.NewKeyed(h.key[:])
	if err != nil {
		panic("pii: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write([]byte(domain))
	_, _ = hasher.Write([]byte{0})
	_, _ = hasher.Write([]byte(normalized))
	return hex.EncodeToString(hasher.Sum(nil))
}
