// Package ratelimit throttles bid submissions per bidder so one buyer
// cannot hammer a hot lot. Limiting is keyed by the authenticated bidder id,
// not by IP: the contended resource is the per-lot lock, and a bidder behind
// a NAT should not eat another bidder's quota.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// BidLimiter limits bid submissions per bidder in a fixed time window,
// backed by Redis so every instance of the service shares one quota.
type BidLimiter struct {
	limit  int
	window time.Duration
	client *redis.Client
	prefix string
}

// NewBidLimiter creates a Redis-backed limiter.
func NewBidLimiter(addr, password string, limit int, window time.Duration) (*BidLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("bid limiter requires positive limit and window")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("bid limiter redis addr is required")
	}
	return &BidLimiter{
		limit:  limit,
		window: window,
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		prefix: "auction:bidlimit",
	}, nil
}

// Allow reports whether the bidder is within quota. On Redis failures it
// fails open: a degraded cache must not block bidding, the per-lot lock
// still protects the ledger.
func (l *BidLimiter) Allow(ctx context.Context, bidderID string) bool {
	if l == nil {
		return true
	}
	bidderID = strings.TrimSpace(bidderID)
	if bidderID == "" {
		return false
	}
	windowMs := l.window.Milliseconds()
	slot := time.Now().UTC().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%s:%d", l.prefix, bidderID, slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := fixedWindowScript.Run(ctx, l.client, []string{key}, windowMs).Int64()
	if err != nil {
		return true
	}
	return count <= int64(l.limit)
}
