package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const releaseTimeout = 2 * time.Second

// releaseScript deletes the lock only while it still holds our token, so an
// expired lock taken over by another intake is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// PersonLock serializes concurrent registrations of the same person.
// Key format: reglock:person:<person_hash>
type PersonLock struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewPersonLock creates a PersonLock wrapping the given Redis client.
func NewPersonLock(client *redis.Client, log zerolog.Logger) *PersonLock {
	return &PersonLock{client: client, log: log}
}

// Acquire takes the lock with SET NX PX. ok is false when another intake holds it.
func (l *PersonLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token, err := newToken()
	if err != nil {
		return nil, false, err
	}

	redisKey := l.key(key)
	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("person lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The request context may already be cancelled when release runs.
		rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{redisKey}, token).Err(); err != nil {
			l.log.Warn().Err(err).Str("key", redisKey).Msg("person lock release failed, waiting for expiry")
		}
	}
	return release, true, nil
}

func (l *PersonLock) key(personHash string) string {
	return "reglock:person:" + personHash
}

func newToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("person lock token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
