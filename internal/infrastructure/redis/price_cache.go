package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"live-auction/internal/domain"
	"time"

	"github.com/go-redis/redis/v8"
)

// putIfNewer replaces the cached snapshot only when the incoming version is
// higher, so an out-of-order writer never rolls the price back.
var putIfNewer = redis.NewScript(`
	local current = redis.call('HGET', KEYS[1], 'version')
	if current and tonumber(current) >= tonumber(ARGV[1]) then
		return 0
	end
	redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
	return 1
`)

// PriceCache is the shared fast-reject snapshot cache. It is never
// authoritative; the store re-checks every bid under its row lock.
type PriceCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPriceCache(client *redis.Client, ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &PriceCache{client: client, ttl: ttl}
}

func (c *PriceCache) Get(ctx context.Context, auctionID string) (*domain.Auction, error) {
	data, err := c.client.HGet(ctx, snapshotKey(auctionID), "data").Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var auction domain.Auction
	if err := json.Unmarshal(data, &auction); err != nil {
		return nil, fmt.Errorf("decode cached auction %s: %w", auctionID, err)
	}
	return &auction, nil
}

func (c *PriceCache) Put(ctx context.Context, auction *domain.Auction) error {
	data, err := json.Marshal(auction)
	if err != nil {
		return err
	}
	return putIfNewer.Run(ctx, c.client, []string{snapshotKey(auction.ID)},
		auction.Version, data, c.ttl.Milliseconds()).Err()
}
