package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "authz:version"

// Cache memoizes authorization decisions in Redis with version-bump
// invalidation: every RBAC mutation bumps the version, orphaning all
// prior entries. Callers read the version once, before computing a
// decision, and store under that version; a mutation that commits in
// between bumps past it, so the stale entry is never visible in the
// new epoch. A nil Cache (or nil client) disables caching entirely.
// Cache failures are never authoritative; callers fall through to the
// store and the decision stays fail-closed there.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

func (c *Cache) key(ver int64, userID uint32, perm Permission, collectionID uint32) string {
	return fmt.Sprintf("authz:%d:%d:%d:%d", ver, userID, uint8(perm), collectionID)
}

// Version returns the current invalidation epoch. ok is false when the
// cache is disabled or unreachable.
func (c *Cache) Version(ctx context.Context) (ver int64, ok bool) {
	if !c.enabled() {
		return 0, false
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, false
		}
		return 1, true
	}
	if err != nil {
		return 0, false
	}
	return ver, true
}

// Lookup returns the decision cached under the given epoch and whether
// one was present.
func (c *Cache) Lookup(ctx context.Context, ver int64, userID uint32, perm Permission, collectionID uint32) (allowed, ok bool) {
	if !c.enabled() {
		return false, false
	}
	val, err := c.client.Get(ctx, c.key(ver, userID, perm, collectionID)).Result()
	if err != nil {
		return false, false
	}
	return val == "1", true
}

// Store records a decision under the given epoch. The epoch must be the
// one read before the decision was computed; a bump in between leaves
// the entry orphaned in the old epoch instead of poisoning the new one.
func (c *Cache) Store(ctx context.Context, ver int64, userID uint32, perm Permission, collectionID uint32, allowed bool) {
	if !c.enabled() {
		return
	}
	val := "0"
	if allowed {
		val = "1"
	}
	_ = c.client.Set(ctx, c.key(ver, userID, perm, collectionID), val, c.ttl).Err()
}

// Bump invalidates every cached decision by incrementing the version.
func (c *Cache) Bump(ctx context.Context) {
	if !c.enabled() {
		return
	}
	_ = c.client.Incr(ctx, cacheVersionKey).Err()
}
