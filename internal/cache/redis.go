package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// BidCache keeps the current highest bid per auction in Redis so hot read
// paths (listing pages, the live ticker) skip the database. It is strictly
// best-effort: the store is the source of truth and a miss or stale entry
// only costs a database read, never a wrong arbitration.
type BidCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewBidCache(addr, password string, db int) (*BidCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis at %s: %w", addr, err)
	}

	return &BidCache{client: rdb, ttl: 24 * time.Hour}, nil
}

func highestKey(auctionID string) string {
	return fmt.Sprintf("auction:%s:highest_bid", auctionID)
}

func bidderKey(auctionID string) string {
	return fmt.Sprintf("auction:%s:highest_bidder", auctionID)
}

// SetHighest records a newly accepted bid. Called post-commit from the
// engine observer; failures are logged and swallowed.
func (c *BidCache) SetHighest(ctx context.Context, auctionID, buyerID string, amount int) {
	pipe := c.client.Pipeline()
	pipe.Set(ctx, highestKey(auctionID), amount, c.ttl)
	pipe.Set(ctx, bidderKey(auctionID), buyerID, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warnf("Failed to cache highest bid for auction %s: %v", auctionID, err)
	}
}

// GetHighest returns the cached highest bid and bidder. ok is false on a
// miss or any Redis error.
func (c *BidCache) GetHighest(ctx context.Context, auctionID string) (amount int, buyerID string, ok bool) {
	pipe := c.client.Pipeline()
	amountCmd := pipe.Get(ctx, highestKey(auctionID))
	bidderCmd := pipe.Get(ctx, bidderKey(auctionID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, "", false
	}

	amount, err := amountCmd.Int()
	if err != nil {
		return 0, "", false
	}
	return amount, bidderCmd.Val(), true
}

// Invalidate drops the cached entries for an auction, used when it reaches
// a terminal status.
func (c *BidCache) Invalidate(ctx context.Context, auctionID string) {
	if err := c.client.Del(ctx, highestKey(auctionID), bidderKey(auctionID)).Err(); err != nil {
		log.Warnf("Failed to invalidate bid cache for auction %s: %v", auctionID, err)
	}
}

func (c *BidCache) Close() error {
	return c.client.Close()
}
