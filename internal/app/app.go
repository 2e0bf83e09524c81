package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"publishelf/pkg/auction"
	"publishelf/pkg/domain"
	"publishelf/pkg/pricecache"
	"publishelf/pkg/store"
)

// DefaultMinAuctionWindow is the smallest allowed gap between auction start
// and end. The storefront's creation form enforces the same rule; here it is
// a hard invariant, not a UI courtesy.
const DefaultMinAuctionWindow = time.Hour

// Config wires the application core.
type Config struct {
	Store            store.Store
	Cache            *pricecache.Cache // optional; nil disables idempotency and price caching
	MinIncrement     decimal.Decimal   // zero means auction.DefaultMinIncrement
	MinAuctionWindow time.Duration     // zero means DefaultMinAuctionWindow
	Now              func() time.Time  // test seam; defaults to time.Now
}

// App is the auction core: lot creation, partitioned listing, lot detail,
// and atomic bid submission.
type App struct {
	store        store.Store
	cache        *pricecache.Cache
	minIncrement decimal.Decimal
	minWindow    time.Duration
	now          func() time.Time
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	minIncrement := cfg.MinIncrement
	if minIncrement.IsZero() {
		minIncrement = auction.DefaultMinIncrement
	}
	if minIncrement.IsNegative() {
		return nil, fmt.Errorf("minimum increment must be positive")
	}
	minWindow := cfg.MinAuctionWindow
	if minWindow <= 0 {
		minWindow = DefaultMinAuctionWindow
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &App{
		store:        cfg.Store,
		cache:        cfg.Cache,
		minIncrement: minIncrement,
		minWindow:    minWindow,
		now:          now,
	}, nil
}

// MinIncrement exposes the configured increment for display purposes.
func (a *App) MinIncrement() decimal.Decimal { return a.minIncrement }

// CreateLotInput carries the fields a publisher sets when listing a book.
type CreateLotInput struct {
	Title        string
	Author       string
	Description  string
	Genre        string
	Condition    string
	BasePrice    decimal.Decimal
	AuctionStart time.Time
	AuctionEnd   time.Time
	OwnerID      string
}

// CreateLot validates and persists a new auction lot. The current price
// starts at zero, meaning "no bids yet".
func (a *App) CreateLot(ctx context.Context, in CreateLotInput) (domain.AuctionLot, error) {
	if strings.TrimSpace(in.Title) == "" {
		return domain.AuctionLot{}, fmt.Errorf("%w: title is required", ErrInvalidLot)
	}
	if strings.TrimSpace(in.Author) == "" {
		return domain.AuctionLot{}, fmt.Errorf("%w: author is required", ErrInvalidLot)
	}
	if strings.TrimSpace(in.OwnerID) == "" {
		return domain.AuctionLot{}, fmt.Errorf("%w: owner id is required", ErrInvalidLot)
	}
	condition, ok := domain.ParseCondition(in.Condition)
	if !ok {
		return domain.AuctionLot{}, fmt.Errorf("%w: unknown condition %q", ErrInvalidLot, in.Condition)
	}
	if !in.BasePrice.IsPositive() {
		return domain.AuctionLot{}, fmt.Errorf("%w: base price must be positive", ErrInvalidLot)
	}
	if !in.AuctionEnd.After(in.AuctionStart) {
		return domain.AuctionLot{}, fmt.Errorf("%w: auction end must be after start", ErrInvalidLot)
	}
	if in.AuctionEnd.Sub(in.AuctionStart) < a.minWindow {
		return domain.AuctionLot{}, fmt.Errorf("%w: auction window must be at least %s", ErrInvalidLot, a.minWindow)
	}

	lot := domain.AuctionLot{
		ID:           uuid.NewString(),
		Title:        strings.TrimSpace(in.Title),
		Author:       strings.TrimSpace(in.Author),
		Description:  strings.TrimSpace(in.Description),
		Genre:        strings.TrimSpace(in.Genre),
		Condition:    condition,
		BasePrice:    in.BasePrice,
		CurrentPrice: decimal.Zero,
		AuctionStart: in.AuctionStart.UTC(),
		AuctionEnd:   in.AuctionEnd.UTC(),
		OwnerID:      in.OwnerID,
		CreatedAt:    a.now().UTC(),
	}
	if err := a.store.CreateLot(ctx, lot); err != nil {
		return domain.AuctionLot{}, fmt.Errorf("create lot: %w", err)
	}
	return lot, nil
}

// PartitionedLots is the listing view: every lot lands in exactly one slice.
type PartitionedLots struct {
	Upcoming []domain.AuctionLot `json:"upcoming"`
	Active   []domain.AuctionLot `json:"active"`
	Ended    []domain.AuctionLot `json:"ended"`
}

// ListAuctions partitions all lots by status at the current instant.
// Upcoming lots surface the soonest start first, active lots the soonest end
// first, ended lots the most recent end first.
func (a *App) ListAuctions(ctx context.Context) (PartitionedLots, error) {
	lots, err := a.store.ListLots(ctx)
	if err != nil {
		return PartitionedLots{}, fmt.Errorf("list lots: %w", err)
	}
	now := a.now()
	res := PartitionedLots{
		Upcoming: []domain.AuctionLot{},
		Active:   []domain.AuctionLot{},
		Ended:    []domain.AuctionLot{},
	}
	for _, lot := range lots {
		switch auction.ResolveStatus(now, lot.AuctionStart, lot.AuctionEnd) {
		case domain.StatusUpcoming:
			res.Upcoming = append(res.Upcoming, lot)
		case domain.StatusActive:
			res.Active = append(res.Active, lot)
		default:
			res.Ended = append(res.Ended, lot)
		}
	}
	sort.Slice(res.Upcoming, func(i, j int) bool {
		return res.Upcoming[i].AuctionStart.Before(res.Upcoming[j].AuctionStart)
	})
	sort.Slice(res.Active, func(i, j int) bool {
		return res.Active[i].AuctionEnd.Before(res.Active[j].AuctionEnd)
	})
	sort.Slice(res.Ended, func(i, j int) bool {
		return res.Ended[i].AuctionEnd.After(res.Ended[j].AuctionEnd)
	})
	return res, nil
}

// ResolvedBid is a ledger entry with the bidder's display identity attached.
type ResolvedBid struct {
	domain.Bid
	BidderName  string `json:"bidderName,omitempty"`
	BidderEmail string `json:"bidderEmail,omitempty"`
}

// LotDetail is the single-lot view: the lot, its derived status, the display
// price, the minimum acceptable next bid, and the ledger with bidder
// identities resolved.
type LotDetail struct {
	Lot            domain.AuctionLot `json:"lot"`
	Status         domain.Status     `json:"status"`
	DisplayPrice   decimal.Decimal   `json:"displayPrice"`
	MinimumNextBid decimal.Decimal   `json:"minimumNextBid"`
	Bids           []ResolvedBid     `json:"bids"`
}

// GetAuction returns the detail view for one lot.
func (a *App) GetAuction(ctx context.Context, lotID string) (LotDetail, error) {
	lot, ok, err := a.store.GetLot(ctx, lotID)
	if err != nil {
		return LotDetail{}, fmt.Errorf("get lot: %w", err)
	}
	if !ok {
		return LotDetail{}, ErrLotNotFound
	}

	ids := make([]string, 0, len(lot.BiddingHistory))
	seen := make(map[string]bool, len(lot.BiddingHistory))
	for _, b := range lot.BiddingHistory {
		if !seen[b.BidderID] {
			seen[b.BidderID] = true
			ids = append(ids, b.BidderID)
		}
	}
	bidders, err := a.store.GetBidders(ctx, ids)
	if err != nil {
		return LotDetail{}, fmt.Errorf("resolve bidders: %w", err)
	}
	bids := make([]ResolvedBid, 0, len(lot.BiddingHistory))
	for _, b := range lot.BiddingHistory {
		rb := ResolvedBid{Bid: b}
		if identity, ok := bidders[b.BidderID]; ok {
			rb.BidderName = identity.Name
			rb.BidderEmail = identity.Email
		}
		bids = append(bids, rb)
	}
	return LotDetail{
		Lot:            lot,
		Status:         auction.ResolveStatus(a.now(), lot.AuctionStart, lot.AuctionEnd),
		DisplayPrice:   lot.DisplayPrice(),
		MinimumNextBid: auction.MinimumAcceptableBid(lot, a.minIncrement),
		Bids:           bids,
	}, nil
}

// SubmitResult is the outcome of an accepted submission.
type SubmitResult struct {
	Bid          domain.Bid      `json:"bid"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	Replayed     bool            `json:"replayed,omitempty"`
}

// SubmitBid validates and appends a bid as one atomic unit per lot. The
// validator runs inside the store's per-lot exclusive scope, against the
// current persisted state, so two concurrent submissions on one lot each see
// the other's effect. A non-empty idempotencyKey makes retries of the same
// logical submission safe: a replay returns the originally accepted bid.
func (a *App) SubmitBid(ctx context.Context, lotID string, bidder domain.Bidder, amount decimal.Decimal, idempotencyKey string) (SubmitResult, error) {
	if a.cache != nil && idempotencyKey != "" {
		rec, ok, err := a.cache.GetSubmission(ctx, bidder.ID, idempotencyKey)
		if err != nil {
			slog.Warn("idempotency lookup failed", "lot_id", lotID, "err", err)
		} else if ok && rec.LotID == lotID {
			return SubmitResult{Bid: rec.Bid, CurrentPrice: rec.CurrentPrice, Replayed: true}, nil
		}
	}

	var accepted domain.Bid
	updated, err := a.store.AppendBid(ctx, lotID, func(lot domain.AuctionLot) (domain.Bid, error) {
		decision := auction.ValidateBid(lot, amount, a.now(), a.minIncrement)
		if !decision.Accepted {
			return domain.Bid{}, &RejectionError{
				Reason:            decision.Reason,
				MinimumAcceptable: decision.MinimumAcceptable,
			}
		}
		accepted = domain.Bid{
			ID:       uuid.NewString(),
			BidderID: bidder.ID,
			Amount:   amount,
			PlacedAt: a.now().UTC(),
		}
		return accepted, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrLotNotFound) {
			return SubmitResult{}, ErrLotNotFound
		}
		return SubmitResult{}, err
	}

	// Identity and cache writes are best effort: the bid is already placed
	// and the store stays authoritative.
	if err := a.store.SaveBidder(ctx, bidder); err != nil {
		slog.Warn("save bidder identity failed", "bidder_id", bidder.ID, "err", err)
	}
	if a.cache != nil {
		if err := a.cache.SetPrice(ctx, lotID, updated.CurrentPrice); err != nil {
			slog.Warn("price cache update failed", "lot_id", lotID, "err", err)
		}
		if idempotencyKey != "" {
			rec := pricecache.SubmissionRecord{LotID: lotID, Bid: accepted, CurrentPrice: updated.CurrentPrice}
			if err := a.cache.StoreSubmission(ctx, bidder.ID, idempotencyKey, rec); err != nil {
				slog.Warn("idempotency record write failed", "lot_id", lotID, "err", err)
			}
		}
	}
	return SubmitResult{Bid: accepted, CurrentPrice: updated.CurrentPrice}, nil
}
