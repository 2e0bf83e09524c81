// Package auction holds the pure rules of the antique-book auction: phase
// derivation from the clock and bid acceptance. Both are side-effect free so
// the same logic can back server-side enforcement and client-facing hints;
// the server's call at submission time is always the authoritative one.
package auction

import (
	"time"

	"publishelf/pkg/domain"
)

// ResolveStatus derives a lot's phase from the clock. Both window boundaries
// resolve to Active, so a bid at the exact start or end instant is in-window.
func ResolveStatus(now, start, end time.Time) domain.Status {
	if now.Before(start) {
		return domain.StatusUpcoming
	}
	if now.After(end) {
		return domain.StatusEnded
	}
	return domain.StatusActive
}
