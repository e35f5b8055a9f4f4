// Package cache provides Redis-backed read-through caches.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/internal/domain/cart"
)

var _ cart.Cache = (*CartCache)(nil)

// setIfVersionScript writes the cart only while the version key still holds
// the value the loader read before going to the database. A missing version
// key counts as 0.
var setIfVersionScript = redis.NewScript(`
local v = redis.call("GET", KEYS[2]) or "0"
if v ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// CartCache stores carts as JSON under "cart:{<userID>}" next to a version
// counter under "cart:{<userID>}:v". Both keys share a hash tag so the
// conditional write stays on one cluster slot. Entries expire after the base
// TTL plus up to maxJitter so that carts written together do not expire
// together.
type CartCache struct {
	client    redis.Cmdable
	baseTTL   time.Duration
	maxJitter time.Duration
}

// NewCartCache returns a CartCache with the given base TTL.
func NewCartCache(client redis.Cmdable, baseTTL time.Duration) *CartCache {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &CartCache{
		client:    client,
		baseTTL:   baseTTL,
		maxJitter: 5 * time.Minute,
	}
}

// Get returns the cached cart or cart.ErrCacheMiss.
func (c *CartCache) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	data, err := c.client.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cart.ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}

	var out cart.Cart
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "unmarshal cart")
	}
	return &out, nil
}

// Version returns the invalidation counter of the user's entry.
func (c *CartCache) Version(ctx context.Context, userID string) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "redis get version")
	}
	return v, nil
}

// Set stores the cart unless its version moved past version.
func (c *CartCache) Set(ctx context.Context, v *cart.Cart, version int64) (bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return false, errors.Wrap(err, "marshal cart")
	}
	keys := []string{cartKey(v.UserID), versionKey(v.UserID)}
	n, err := setIfVersionScript.Run(ctx, c.client, keys,
		strconv.FormatInt(version, 10), data, c.ttl().Milliseconds()).Int()
	if err != nil {
		return false, errors.Wrap(err, "redis set")
	}
	return n == 1, nil
}

// Delete removes the cached cart and bumps its version. The version outlives
// any entry so a slow loader cannot see it reset.
func (c *CartCache) Delete(ctx context.Context, userID string) error {
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, cartKey(userID))
		p.Incr(ctx, versionKey(userID))
		p.Expire(ctx, versionKey(userID), c.baseTTL+c.maxJitter)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

func (c *CartCache) ttl() time.Duration {
	if c.maxJitter <= 0 {
		return c.baseTTL
	}
	return c.baseTTL + rand.N(c.maxJitter)
}

func cartKey(userID string) string {
	return fmt.Sprintf("cart:{%s}", userID)
}

func versionKey(userID string) string {
	return fmt.Sprintf("cart:{%s}:v", userID)
}
