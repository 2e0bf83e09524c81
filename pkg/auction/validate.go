package auction

import (
	"time"

	"github.com/shopspring/decimal"

	"publishelf/pkg/domain"
)

// Rejection reasons surfaced to the bidder.
const (
	ReasonNotActive    = "auction not active"
	ReasonBelowMinimum = "below minimum"
)

// DefaultMinIncrement is the smallest amount a new bid must add on top of
// the price in effect, in currency units.
var DefaultMinIncrement = decimal.NewFromInt(100)

// Decision is the outcome of validating a proposed bid. MinimumAcceptable is
// populated for every decision so callers can tell bidders what would have
// been (or still is) enough.
type Decision struct {
	Accepted          bool
	Reason            string
	MinimumAcceptable decimal.Decimal
}

// MinimumAcceptableBid returns the lowest amount a new bid on the lot may
// carry: max(currentPrice, basePrice) + minIncrement.
func MinimumAcceptableBid(lot domain.AuctionLot, minIncrement decimal.Decimal) decimal.Decimal {
	floor := decimal.Max(lot.CurrentPrice, lot.BasePrice)
	return floor.Add(minIncrement)
}

// ValidateBid decides whether a proposed amount is acceptable for the lot at
// the given instant. It never mutates anything; the caller persists on
// acceptance.
func ValidateBid(lot domain.AuctionLot, amount decimal.Decimal, now time.Time, minIncrement decimal.Decimal) Decision {
	minimum := MinimumAcceptableBid(lot, minIncrement)
	if ResolveStatus(now, lot.AuctionStart, lot.AuctionEnd) != domain.StatusActive {
		return Decision{Reason: ReasonNotActive, MinimumAcceptable: minimum}
	}
	if !amount.IsPositive() || amount.LessThan(minimum) {
		return Decision{Reason: ReasonBelowMinimum, MinimumAcceptable: minimum}
	}
	return Decision{Accepted: true, MinimumAcceptable: minimum}
}
