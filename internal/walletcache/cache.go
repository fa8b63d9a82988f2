// Package walletcache holds display-only wallet snapshots in Redis.
//
// Snapshots are never consulted for monetary decisions. Each mutation
// invalidates the snapshot and raises a version floor so a slow reader cannot
// re-populate the cache with a wallet older than the mutation.
package walletcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-wallet/internal/wallet"
	"storefront-wallet/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "wallet:snapshot:"

// floorTTLFactor keeps the version floor alive longer than any snapshot it guards.
const floorTTLFactor = 4

type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func snapshotKey(userID string) string { return keyPrefix + userID }

func floorKey(userID string) string { return keyPrefix + userID + ":floor" }

// version orders snapshots of one wallet. Microseconds keep it inside the
// 53-bit range Lua compares exactly.
func version(w wallet.Wallet) int64 {
	if w.LastUpdated.IsZero() {
		return 0
	}
	return w.LastUpdated.UnixMicro()
}

func (c *Cache) Get(ctx context.Context, userID string) (wallet.Wallet, bool, error) {
	raw, err := c.rdb.Get(ctx, snapshotKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return wallet.Wallet{}, false, nil
	}
	if err != nil {
		return wallet.Wallet{}, false, fmt.Errorf("walletcache get: %w", err)
	}
	var w wallet.Wallet
	if err := json.Unmarshal(raw, &w); err != nil {
		// A snapshot we cannot decode is treated as a miss.
		return wallet.Wallet{}, false, nil
	}
	return w, true, nil
}

func (c *Cache) Set(ctx context.Context, w wallet.Wallet) error {
	payload, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("walletcache encode: %w", err)
	}
	if _, err := utils.SetIfNotOlder(ctx, c.rdb, snapshotKey(w.UserID), floorKey(w.UserID), version(w), payload, c.ttl); err != nil {
		return fmt.Errorf("walletcache set: %w", err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, w wallet.Wallet) error {
	if err := utils.DeleteAndRaiseFloor(ctx, c.rdb, snapshotKey(w.UserID), floorKey(w.UserID), version(w), c.ttl*floorTTLFactor); err != nil {
		return fmt.Errorf("walletcache invalidate: %w", err)
	}
	return nil
}
