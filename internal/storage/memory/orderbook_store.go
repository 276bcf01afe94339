package memory

import (
	"context"
	"sync"
	"time"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// OrderbookStore is an in-memory implementation of storage.OrderbookStore.
type OrderbookStore struct {
	mu   sync.RWMutex
	data []*domain.OrderbookSnapshot
}

// NewOrderbookStore creates a new in-memory orderbook store.
func NewOrderbookStore() *OrderbookStore {
	return &OrderbookStore{}
}

var _ storage.OrderbookStore = (*OrderbookStore)(nil)

// Insert appends a snapshot.
func (s *OrderbookStore) Insert(_ context.Context, snap *domain.OrderbookSnapshot) error {
	if snap == nil || snap.MarketID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *snap
	s.data = append(s.data, &cp)
	return nil
}

// Latest returns the most recent snapshot for a market outcome. An empty
// outcomeLabel matches any outcome.
func (s *OrderbookStore) Latest(_ context.Context, marketID, outcomeLabel string) (*domain.OrderbookSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.OrderbookSnapshot
	for _, snap := range s.data {
		if snap.MarketID != marketID {
			continue
		}
		if outcomeLabel != "" && snap.OutcomeLabel != outcomeLabel {
			continue
		}
		if latest == nil || snap.Timestamp.After(latest.Timestamp) {
			latest = snap
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

// DeleteOlderThan removes snapshots older than cutoff.
func (s *OrderbookStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.data[:0]
	removed := 0
	for _, snap := range s.data {
		if snap.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, snap)
	}
	s.data = kept
	return removed, nil
}
