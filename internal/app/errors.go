package app

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrLotNotFound indicates the referenced lot does not exist.
	ErrLotNotFound = errors.New("auction lot not found")
	// ErrInvalidLot indicates a lot creation request violated a creation
	// invariant (condition, base price, auction window).
	ErrInvalidLot = errors.New("invalid auction lot")
)

// RejectionError is the expected, user-facing outcome of a bid that fails
// validation. It is not a system fault; callers surface Reason to the bidder
// and MinimumAcceptable so the UI can say what would be enough.
type RejectionError struct {
	Reason            string
	MinimumAcceptable decimal.Decimal
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("bid rejected: %s (minimum acceptable %s)", e.Reason, e.MinimumAcceptable)
}
