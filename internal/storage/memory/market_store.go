package memory

import (
	"context"
	"sync"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// MarketStore is an in-memory implementation of storage.MarketStore.
type MarketStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Market
}

// NewMarketStore creates a new in-memory market store.
func NewMarketStore() *MarketStore {
	return &MarketStore{data: make(map[string]*domain.Market)}
}

var _ storage.MarketStore = (*MarketStore)(nil)

// Upsert inserts or replaces a market row by id.
func (s *MarketStore) Upsert(_ context.Context, m *domain.Market) error {
	if m == nil || m.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *m
	s.data[m.ID] = &cp
	return nil
}

// GetByID retrieves a market by id.
func (s *MarketStore) GetByID(_ context.Context, id string) (*domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// SettlementStore is an in-memory implementation of storage.SettlementStore.
type SettlementStore struct {
	mu   sync.RWMutex
	data map[string]*domain.MarketSettlement
}

// NewSettlementStore creates a new in-memory settlement store.
func NewSettlementStore() *SettlementStore {
	return &SettlementStore{data: make(map[string]*domain.MarketSettlement)}
}

var _ storage.SettlementStore = (*SettlementStore)(nil)

// Upsert inserts or replaces a settlement by market id.
func (s *SettlementStore) Upsert(_ context.Context, st *domain.MarketSettlement) error {
	if st == nil || st.MarketID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *st
	s.data[st.MarketID] = &cp
	return nil
}

// GetByMarketID retrieves a settlement by market id.
func (s *SettlementStore) GetByMarketID(_ context.Context, marketID string) (*domain.MarketSettlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.data[marketID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

// GetAll retrieves every settlement.
func (s *SettlementStore) GetAll(_ context.Context) ([]*domain.MarketSettlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.MarketSettlement, 0, len(s.data))
	for _, st := range s.data {
		cp := *st
		out = append(out, &cp)
	}
	return out, nil
}
