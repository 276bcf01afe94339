package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// ProfileStore is an in-memory implementation of storage.ProfileStore.
type ProfileStore struct {
	mu   sync.RWMutex
	data map[string]*domain.WhaleProfile
}

// NewProfileStore creates a new in-memory profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{data: make(map[string]*domain.WhaleProfile)}
}

var _ storage.ProfileStore = (*ProfileStore)(nil)

// Upsert fully overwrites the profile row for a wallet.
func (s *ProfileStore) Upsert(_ context.Context, p *domain.WhaleProfile) error {
	if p == nil || p.Wallet == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.data[p.Wallet] = &cp
	return nil
}

// GetByWallet retrieves a profile by wallet.
func (s *ProfileStore) GetByWallet(_ context.Context, wallet string) (*domain.WhaleProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[wallet]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// scoreEntry pairs a score with its breakdown in insertion order.
type scoreEntry struct {
	score     domain.WhaleScore
	breakdown domain.WhaleScoreBreakdown
}

// ScoreStore is an in-memory implementation of storage.ScoreStore.
type ScoreStore struct {
	mu   sync.RWMutex
	data []scoreEntry
}

// NewScoreStore creates a new in-memory score store.
func NewScoreStore() *ScoreStore {
	return &ScoreStore{}
}

var _ storage.ScoreStore = (*ScoreStore)(nil)

// Insert appends a score and its breakdown.
func (s *ScoreStore) Insert(_ context.Context, sc *domain.WhaleScore, b *domain.WhaleScoreBreakdown) error {
	if sc == nil || b == nil || sc.Wallet == "" || sc.MarketID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = append(s.data, scoreEntry{score: *sc, breakdown: *b})
	return nil
}

// LatestByPair returns the most recent score for a pair.
func (s *ScoreStore) LatestByPair(_ context.Context, wallet, marketID string) (*domain.WhaleScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.WhaleScore
	for i := range s.data {
		sc := &s.data[i].score
		if sc.Wallet != wallet || sc.MarketID != marketID {
			continue
		}
		if latest == nil || sc.CalculatedAt.After(latest.CalculatedAt) {
			latest = sc
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

// GetByPairRange retrieves scores for a pair within [start, end).
func (s *ScoreStore) GetByPairRange(_ context.Context, wallet, marketID string, start, end time.Time) ([]*domain.WhaleScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.WhaleScore
	for i := range s.data {
		sc := s.data[i].score
		if sc.Wallet != wallet || sc.MarketID != marketID {
			continue
		}
		if sc.CalculatedAt.Before(start) || !sc.CalculatedAt.Before(end) {
			continue
		}
		cp := sc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CalculatedAt.Before(out[j].CalculatedAt)
	})
	return out, nil
}
