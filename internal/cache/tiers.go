package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Cache key prefixes and TTLs.
const (
	tiersKeyPrefix    = "tiers:"
	negCacheKeySuffix = ":neg"

	// DefaultTiersTTL is the TTL for cached resolved tier sets. Kept
	// short so tier changes on the subscription service show up without
	// a manual re-verify.
	DefaultTiersTTL = 10 * time.Minute

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = 5 * time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// GetTiers retrieves a resolved tier set from cache by email.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetTiers(ctx context.Context, email string) ([]string, error) {
	key := tiersKeyPrefix + hashEmail(email)

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, ErrCacheMiss
	}

	var tiers []string
	if err := json.Unmarshal(data, &tiers); err != nil {
		// Corrupted cache entry - treat as miss
		return nil, ErrCacheMiss
	}

	return tiers, nil
}

// SetTiers caches a resolved tier set for an email.
func (c *Cache) SetTiers(ctx context.Context, email string, tiers []string) error {
	key := tiersKeyPrefix + hashEmail(email)

	data, err := json.Marshal(tiers)
	if err != nil {
		return fmt.Errorf("marshal tiers: %w", err)
	}

	if err := c.client.Set(ctx, key, data, DefaultTiersTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache tiers: %w", err)
	}

	// Remove negative cache if exists
	c.client.Del(ctx, key+negCacheKeySuffix)

	return nil
}

// DeleteTiers removes a cached tier set.
func (c *Cache) DeleteTiers(ctx context.Context, email string) error {
	key := tiersKeyPrefix + hashEmail(email)

	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.Del(ctx, key+negCacheKeySuffix)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete tiers from cache: %w", err)
	}

	return nil
}

// IsNegativelyCached checks if an email is in negative cache, meaning a
// recent resolution found no member for it.
func (c *Cache) IsNegativelyCached(ctx context.Context, email string) (bool, error) {
	key := tiersKeyPrefix + hashEmail(email) + negCacheKeySuffix

	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// SetNegativeCache marks an email as not found.
func (c *Cache) SetNegativeCache(ctx context.Context, email string) error {
	key := tiersKeyPrefix + hashEmail(email) + negCacheKeySuffix

	err := c.client.SetEx(ctx, key, "", NegativeCacheTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}

	return nil
}

// hashEmail creates a truncated SHA256 hash of a lowercased email.
// Keeps raw contact addresses out of Redis while staying unique enough
// for cache keys.
func hashEmail(email string) string {
	hash := sha256.Sum256([]byte(strings.ToLower(email)))
	return hex.EncodeToString(hash[:8]) // 16 hex chars
}
