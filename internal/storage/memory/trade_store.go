package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Trade // keyed by trade_id
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{data: make(map[string]*domain.Trade)}
}

var _ storage.TradeStore = (*TradeStore)(nil)

// Upsert inserts a trade, keeping the existing row for a known trade_id.
func (s *TradeStore) Upsert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TradeID]; exists {
		return nil
	}
	cp := *t
	s.data[t.TradeID] = &cp
	return nil
}

// UpsertBulk upserts multiple trades, keep-first on duplicates.
func (s *TradeStore) UpsertBulk(ctx context.Context, trades []*domain.Trade) error {
	for _, t := range trades {
		if err := s.Upsert(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// GetSince retrieves trades with timestamp >= since, ordered by timestamp ASC.
func (s *TradeStore) GetSince(_ context.Context, since time.Time) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Trade
	for _, t := range s.data {
		if !t.Timestamp.Before(since) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sortTrades(out)
	return out, nil
}

// GetByMarketRange retrieves trades for one market within [start, end).
func (s *TradeStore) GetByMarketRange(_ context.Context, marketID string, start, end time.Time) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Trade
	for _, t := range s.data {
		if t.MarketID != marketID {
			continue
		}
		if t.Timestamp.Before(start) || !t.Timestamp.Before(end) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sortTrades(out)
	return out, nil
}

// GetByWallet retrieves every trade for a wallet, ordered by timestamp ASC.
func (s *TradeStore) GetByWallet(_ context.Context, wallet string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Trade
	for _, t := range s.data {
		if t.Wallet == wallet {
			cp := *t
			out = append(out, &cp)
		}
	}
	sortTrades(out)
	return out, nil
}

// Wallets returns the distinct wallets with at least one trade.
func (s *TradeStore) Wallets(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, t := range s.data {
		if _, ok := seen[t.Wallet]; !ok {
			seen[t.Wallet] = struct{}{}
			out = append(out, t.Wallet)
		}
	}
	sort.Strings(out)
	return out, nil
}

func sortTrades(trades []*domain.Trade) {
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].Timestamp.Equal(trades[j].Timestamp) {
			return trades[i].TradeID < trades[j].TradeID
		}
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})
}
