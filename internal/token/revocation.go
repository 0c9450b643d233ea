// Package token implements the access-token revocation registry. Revoked
// token identifiers (jti claims) are kept until the token would have expired
// anyway; resource servers must consult the registry on every authenticated
// call, not just the auth endpoints.
package token

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationRegistry records access tokens that must be rejected even though
// they are still cryptographically valid and unexpired.
type RevocationRegistry interface {
	// Revoke marks tokenID rejected until originalExpiry. Idempotent.
	Revoke(ctx context.Context, tokenID string, originalExpiry time.Time) error
	// IsRevoked reports whether tokenID has been revoked.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

const revokedKeyPrefix = "revoked:"

// RedisRegistry stores revocations as Redis keys whose TTL equals the
// remaining life of the token. Expiry-based eviction means an entry can
// never vanish before the token's own exp, and a plain SET is idempotent
// and atomic, so logout storms need no extra locking.
type RedisRegistry struct{ rdb *redis.Client }

func NewRedisRegistry(rdb *redis.Client) *RedisRegistry { return &RedisRegistry{rdb: rdb} }

func (r *RedisRegistry) Revoke(ctx context.Context, tokenID string, originalExpiry time.Time) error {
	ttl := time.Until(originalExpiry)
	if ttl <= 0 {
		// Already past its natural expiry; signature verification rejects it.
		return nil
	}
	return r.rdb.Set(ctx, revokedKeyPrefix+tokenID, "1", ttl).Err()
}

func (r *RedisRegistry) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRegistry is a process-local registry used in tests and as a fallback
// when Redis is unreachable at startup. Only suitable for a single instance;
// revocations are not shared across processes.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]time.Time // tokenID -> original expiry
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[string]time.Time)}
}

func (m *MemoryRegistry) Revoke(_ context.Context, tokenID string, originalExpiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[tokenID] = originalExpiry
	return nil
}

func (m *MemoryRegistry) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	now := time.Now().UTC()

	m.mu.RLock()
	exp, ok := m.entries[tokenID]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if now.After(exp) {
		// Lazy purge: the token is past its natural expiry, so dropping the
		// entry can no longer cause a false "not revoked".
		m.mu.Lock()
		if exp2, ok := m.entries[tokenID]; ok && now.After(exp2) {
			delete(m.entries, tokenID)
		}
		m.mu.Unlock()
		return false, nil
	}
	return true, nil
}
