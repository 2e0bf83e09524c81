package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the phase of an auction lot, derived from the clock and the
// lot's window. It is never persisted.
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusActive   Status = "active"
	StatusEnded    Status = "ended"
)

// Condition grades the physical state of an antique book.
type Condition string

const (
	ConditionMint      Condition = "Mint"
	ConditionNearMint  Condition = "Near Mint"
	ConditionExcellent Condition = "Excellent"
	ConditionVeryGood  Condition = "Very Good"
	ConditionGood      Condition = "Good"
	ConditionFair      Condition = "Fair"
)

// ParseCondition maps a raw string onto the condition enumeration.
func ParseCondition(s string) (Condition, bool) {
	switch Condition(s) {
	case ConditionMint, ConditionNearMint, ConditionExcellent,
		ConditionVeryGood, ConditionGood, ConditionFair:
		return Condition(s), true
	default:
		return "", false
	}
}

// AuctionLot is one antique book listed for auction. Descriptive metadata,
// the price floor, and the auction window are fixed at creation; only
// CurrentPrice and BiddingHistory change afterwards, and only through
// accepted bids.
type AuctionLot struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Author         string          `json:"author"`
	Description    string          `json:"description,omitempty"`
	Genre          string          `json:"genre,omitempty"`
	Condition      Condition       `json:"condition"`
	BasePrice      decimal.Decimal `json:"basePrice"`
	CurrentPrice   decimal.Decimal `json:"currentPrice"`
	AuctionStart   time.Time       `json:"auctionStart"`
	AuctionEnd     time.Time       `json:"auctionEnd"`
	OwnerID        string          `json:"ownerId"`
	BiddingHistory []Bid           `json:"biddingHistory"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// DisplayPrice is the price shown to buyers: the current price, or the base
// price while no bid has been accepted yet (CurrentPrice zero).
func (l AuctionLot) DisplayPrice() decimal.Decimal {
	if l.CurrentPrice.IsZero() {
		return l.BasePrice
	}
	return l.CurrentPrice
}

// Bid is a single (bidder, amount, time) record in a lot's ledger. Bids are
// append-only: once recorded they are never edited, reordered, or removed.
type Bid struct {
	ID       string          `json:"id"`
	BidderID string          `json:"bidderId"`
	Amount   decimal.Decimal `json:"amount"`
	PlacedAt time.Time       `json:"placedAt"`
}

// Bidder is the display identity of a buyer, captured from the verified
// token at bid time so lot detail can resolve bidder ids.
type Bidder struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
