package store

import (
	"context"
	"errors"

	"publishelf/pkg/domain"
)

// ErrLotNotFound is returned when an operation references a lot id that does
// not exist.
var ErrLotNotFound = errors.New("auction lot not found")

// DecideBid inspects the current persisted state of a lot and either returns
// the bid to append or an error (a validation rejection, typically). It runs
// inside the store's per-lot exclusive scope, so the lot it sees cannot be
// changed by a concurrent submission.
type DecideBid func(lot domain.AuctionLot) (domain.Bid, error)

// Store defines persistence for auction lots, their bid ledgers, and bidder
// identities. The bid ledger is append-only: AppendBid is the only mutator,
// and it only ever adds one bid and raises the current price.
type Store interface {
	// lots
	CreateLot(ctx context.Context, lot domain.AuctionLot) error
	GetLot(ctx context.Context, id string) (domain.AuctionLot, bool, error)
	ListLots(ctx context.Context) ([]domain.AuctionLot, error)

	// AppendBid runs decide against the lot's current state and, on success,
	// appends the returned bid and sets the lot's current price to the bid
	// amount, as a single atomic unit per lot. Two concurrent calls for the
	// same lot serialize; calls for different lots do not contend. If decide
	// fails or persistence fails, nothing is written and the error is
	// returned unwrapped so callers can inspect it.
	AppendBid(ctx context.Context, lotID string, decide DecideBid) (domain.AuctionLot, error)

	// bidders
	SaveBidder(ctx context.Context, b domain.Bidder) error
	GetBidders(ctx context.Context, ids []string) (map[string]domain.Bidder, error)
}
