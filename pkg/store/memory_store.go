package store

import (
	"context"
	"sync"

	"publishelf/pkg/domain"
)

// MemoryStore keeps lots in-process. It carries the same per-lot exclusion
// discipline as the Postgres store: each lot has its own mutex, held across
// the whole decide-append unit, so submissions on one lot serialize without
// blocking other lots.
type MemoryStore struct {
	mu      sync.RWMutex
	lots    map[string]*lotEntry
	order   []string
	bidders map[string]domain.Bidder
}

type lotEntry struct {
	mu  sync.Mutex
	lot domain.AuctionLot
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lots:    make(map[string]*lotEntry),
		bidders: make(map[string]domain.Bidder),
	}
}

// CreateLot stores a new lot and tracks insertion order.
func (m *MemoryStore) CreateLot(_ context.Context, lot domain.AuctionLot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.lots[lot.ID]; !exists {
		m.order = append(m.order, lot.ID)
	}
	m.lots[lot.ID] = &lotEntry{lot: copyLot(lot)}
	return nil
}

// GetLot retrieves a lot by ID.
func (m *MemoryStore) GetLot(_ context.Context, id string) (domain.AuctionLot, bool, error) {
	m.mu.RLock()
	entry, ok := m.lots[id]
	m.mu.RUnlock()
	if !ok {
		return domain.AuctionLot{}, false, nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return copyLot(entry.lot), true, nil
}

// ListLots returns lots in insertion order.
func (m *MemoryStore) ListLots(_ context.Context) ([]domain.AuctionLot, error) {
	m.mu.RLock()
	entries := make([]*lotEntry, 0, len(m.order))
	for _, id := range m.order {
		if e, ok := m.lots[id]; ok {
			entries = append(entries, e)
		}
	}
	m.mu.RUnlock()
	res := make([]domain.AuctionLot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		res = append(res, copyLot(e.lot))
		e.mu.Unlock()
	}
	return res, nil
}

// AppendBid serializes submissions per lot via the entry mutex.
func (m *MemoryStore) AppendBid(_ context.Context, lotID string, decide DecideBid) (domain.AuctionLot, error) {
	m.mu.RLock()
	entry, ok := m.lots[lotID]
	m.mu.RUnlock()
	if !ok {
		return domain.AuctionLot{}, ErrLotNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	bid, err := decide(copyLot(entry.lot))
	if err != nil {
		return domain.AuctionLot{}, err
	}
	entry.lot.BiddingHistory = append(entry.lot.BiddingHistory, bid)
	entry.lot.CurrentPrice = bid.Amount
	return copyLot(entry.lot), nil
}

// SaveBidder upserts a bidder identity.
func (m *MemoryStore) SaveBidder(_ context.Context, b domain.Bidder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bidders[b.ID] = b
	return nil
}

// GetBidders resolves known bidder ids.
func (m *MemoryStore) GetBidders(_ context.Context, ids []string) (map[string]domain.Bidder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]domain.Bidder, len(ids))
	for _, id := range ids {
		if b, ok := m.bidders[id]; ok {
			res[id] = b
		}
	}
	return res, nil
}

func copyLot(l domain.AuctionLot) domain.AuctionLot {
	out := l
	out.BiddingHistory = append([]domain.Bid(nil), l.BiddingHistory...)
	return out
}
