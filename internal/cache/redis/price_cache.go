package redis

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vogeb-org/auctiond/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each auction's
// last computed clearing price is stored at key "auction:price:{id}" with
// fields "price" (decimal string) and "ts" (Unix nanosecond timestamp). The
// cache is advisory: settlement always recomputes from the record, so entries
// carry a short TTL and are invalidated on termination.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. Entries
// expire after ttl; a non-positive ttl disables expiry.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(id domain.AuctionID) string {
	return "auction:price:" + strconv.FormatUint(uint64(id), 10)
}

// SetPrice stores the latest computed price and its computation timestamp.
func (pc *PriceCache) SetPrice(ctx context.Context, id domain.AuctionID, price *big.Int, ts time.Time) error {
	key := priceKey(id)
	fields := map[string]interface{}{
		"price": price.String(),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}

	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %d: %w", id, err)
	}
	return nil
}

// GetPrice retrieves the cached price and timestamp for an auction. It returns
// domain.ErrAuctionNotFound when no entry exists or the entry has expired.
func (pc *PriceCache) GetPrice(ctx context.Context, id domain.AuctionID) (*big.Int, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(id)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get price %d: %w", id, err)
	}
	if len(vals) == 0 {
		return nil, time.Time{}, domain.ErrAuctionNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return nil, time.Time{}, domain.ErrAuctionNotFound
	}
	price, ok := new(big.Int).SetString(priceStr, 10)
	if !ok {
		return nil, time.Time{}, fmt.Errorf("redis: parse price %d: bad value %q", id, priceStr)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return nil, time.Time{}, domain.ErrAuctionNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: parse ts %d: %w", id, err)
	}

	return price, time.Unix(0, tsNano), nil
}

// Invalidate removes the cached price for an auction. Called when the record
// reaches a terminal status.
func (pc *PriceCache) Invalidate(ctx context.Context, id domain.AuctionID) error {
	if err := pc.rdb.Del(ctx, priceKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate price %d: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
