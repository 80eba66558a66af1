package ports

import (
	"context"
	"time"
)

// FieldCipher encrypts identity fields at the persistence boundary.
type FieldCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// LookupHasher derives stable one-way hashes used for exact-match lookups of
// encrypted values.
type LookupHasher interface {
	Hash(domain, normalized string) string
}

// PersonLocker serializes concurrent intake for the same person key.
type PersonLocker interface {
	// Acquire returns a release func, or ok=false when another intake holds the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}
