package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"publishelf/pkg/domain"
)

func newTestLot(id string) domain.AuctionLot {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.AuctionLot{
		ID:           id,
		Title:        "First Folio",
		Author:       "William Shakespeare",
		Condition:    domain.ConditionFair,
		BasePrice:    decimal.NewFromInt(500),
		CurrentPrice: decimal.Zero,
		AuctionStart: start,
		AuctionEnd:   start.Add(2 * time.Hour),
		OwnerID:      "publisher-1",
		CreatedAt:    start.Add(-24 * time.Hour),
	}
}

func TestMemoryStoreAppendBidUnknownLot(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.AppendBid(context.Background(), "missing", func(domain.AuctionLot) (domain.Bid, error) {
		t.Fatal("decide must not run for a missing lot")
		return domain.Bid{}, nil
	})
	if !errors.Is(err, ErrLotNotFound) {
		t.Fatalf("expected ErrLotNotFound, got %v", err)
	}
}

func TestMemoryStoreRejectedDecideLeavesLotUntouched(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CreateLot(ctx, newTestLot("lot-1")); err != nil {
		t.Fatalf("create lot: %v", err)
	}
	rejection := errors.New("below minimum")
	if _, err := s.AppendBid(ctx, "lot-1", func(domain.AuctionLot) (domain.Bid, error) {
		return domain.Bid{}, rejection
	}); !errors.Is(err, rejection) {
		t.Fatalf("expected rejection to propagate, got %v", err)
	}
	lot, ok, err := s.GetLot(ctx, "lot-1")
	if err != nil || !ok {
		t.Fatalf("get lot: ok=%v err=%v", ok, err)
	}
	if len(lot.BiddingHistory) != 0 {
		t.Fatalf("ledger should be empty after rejection, got %d bids", len(lot.BiddingHistory))
	}
	if !lot.CurrentPrice.IsZero() {
		t.Fatalf("current price should be untouched, got %s", lot.CurrentPrice)
	}
}

func TestMemoryStoreAppendBidUpdatesLedgerAndPrice(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CreateLot(ctx, newTestLot("lot-1")); err != nil {
		t.Fatalf("create lot: %v", err)
	}
	bid := domain.Bid{ID: "bid-1", BidderID: "buyer-1", Amount: decimal.NewFromInt(600), PlacedAt: time.Now().UTC()}
	updated, err := s.AppendBid(ctx, "lot-1", func(domain.AuctionLot) (domain.Bid, error) {
		return bid, nil
	})
	if err != nil {
		t.Fatalf("append bid: %v", err)
	}
	if len(updated.BiddingHistory) != 1 || updated.BiddingHistory[0].ID != "bid-1" {
		t.Fatalf("unexpected ledger: %+v", updated.BiddingHistory)
	}
	if !updated.CurrentPrice.Equal(bid.Amount) {
		t.Fatalf("current price = %s, want %s", updated.CurrentPrice, bid.Amount)
	}

	// Mutating the returned copy must not reach the store.
	updated.BiddingHistory[0].Amount = decimal.NewFromInt(1)
	lot, _, _ := s.GetLot(ctx, "lot-1")
	if !lot.BiddingHistory[0].Amount.Equal(bid.Amount) {
		t.Fatalf("stored bid mutated through returned copy")
	}
}

func TestMemoryStoreConcurrentAppendsSerializePerLot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CreateLot(ctx, newTestLot("lot-1")); err != nil {
		t.Fatalf("create lot: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendBid(ctx, "lot-1", func(lot domain.AuctionLot) (domain.Bid, error) {
				// Each decide sees the effect of every previous append.
				return domain.Bid{
					ID:       fmt.Sprintf("bid-%d", i),
					BidderID: "buyer-1",
					Amount:   lot.CurrentPrice.Add(decimal.NewFromInt(100)),
					PlacedAt: time.Now().UTC(),
				}, nil
			})
			if err != nil {
				t.Errorf("append bid %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	lot, _, err := s.GetLot(ctx, "lot-1")
	if err != nil {
		t.Fatalf("get lot: %v", err)
	}
	if len(lot.BiddingHistory) != workers {
		t.Fatalf("ledger length = %d, want %d", len(lot.BiddingHistory), workers)
	}
	// Prices strictly increase by 100 per accepted bid; a lost update would
	// leave a duplicate amount.
	prev := decimal.Zero
	for i, b := range lot.BiddingHistory {
		want := prev.Add(decimal.NewFromInt(100))
		if !b.Amount.Equal(want) {
			t.Fatalf("bid %d amount = %s, want %s", i, b.Amount, want)
		}
		prev = b.Amount
	}
	if !lot.CurrentPrice.Equal(decimal.NewFromInt(workers * 100)) {
		t.Fatalf("final price = %s, want %d", lot.CurrentPrice, workers*100)
	}
}
