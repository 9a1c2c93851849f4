package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// KeyAuctionSnapshot holds the latest cached auction: hash {version, data}.
	KeyAuctionSnapshot = "auction:%s:snapshot"

	DefaultChannel  = "auction_events"
	DefaultCacheTTL = 10 * time.Minute
)

// NewClient connects and pings.
func NewClient(ctx context.Context, address, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", address, err)
	}
	return client, nil
}

func snapshotKey(auctionID string) string {
	return fmt.Sprintf(KeyAuctionSnapshot, auctionID)
}
