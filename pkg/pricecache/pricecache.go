// Package pricecache keeps two small Redis-backed conveniences for the bid
// path: the latest accepted price per lot (advisory, for cheap polling), and
// idempotency records so a retried submission does not double-bid. The store
// remains authoritative for both prices and ledgers; every entry here
// expires on its own.
package pricecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"publishelf/pkg/domain"
)

const (
	priceKeyPrefix = "auction:price:"
	idemKeyPrefix  = "auction:submission:"

	defaultPriceTTL = 24 * time.Hour
	defaultIdemTTL  = 24 * time.Hour
)

// Cache wraps a Redis client for the auction service.
type Cache struct {
	client   *redis.Client
	priceTTL time.Duration
	idemTTL  time.Duration
}

// New connects to Redis at addr.
func New(addr, password string) *Cache {
	return &Cache{
		client:   redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		priceTTL: defaultPriceTTL,
		idemTTL:  defaultIdemTTL,
	}
}

// SetPrice records the latest accepted price for a lot.
func (c *Cache) SetPrice(ctx context.Context, lotID string, price decimal.Decimal) error {
	return c.client.Set(ctx, priceKeyPrefix+lotID, price.String(), c.priceTTL).Err()
}

// GetPrice returns the cached price for a lot, if present.
func (c *Cache) GetPrice(ctx context.Context, lotID string) (decimal.Decimal, bool, error) {
	raw, err := c.client.Get(ctx, priceKeyPrefix+lotID).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse cached price: %w", err)
	}
	return price, true, nil
}

// SubmissionRecord is what a replayed idempotent submission returns: the
// originally accepted bid and the price it set.
type SubmissionRecord struct {
	LotID        string          `json:"lotId"`
	Bid          domain.Bid      `json:"bid"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
}

// StoreSubmission records the outcome of an accepted bid under the caller's
// idempotency key. Keys are scoped per bidder so one buyer's key cannot
// replay another's submission.
func (c *Cache) StoreSubmission(ctx context.Context, bidderID, key string, rec SubmissionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal submission record: %w", err)
	}
	return c.client.Set(ctx, idemKey(bidderID, key), data, c.idemTTL).Err()
}

// GetSubmission looks up a previously stored submission outcome.
func (c *Cache) GetSubmission(ctx context.Context, bidderID, key string) (SubmissionRecord, bool, error) {
	raw, err := c.client.Get(ctx, idemKey(bidderID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return SubmissionRecord{}, false, nil
	}
	if err != nil {
		return SubmissionRecord{}, false, err
	}
	var rec SubmissionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return SubmissionRecord{}, false, fmt.Errorf("unmarshal submission record: %w", err)
	}
	return rec, true, nil
}

func idemKey(bidderID, key string) string {
	return idemKeyPrefix + bidderID + ":" + key
}
