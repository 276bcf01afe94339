package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// AlertStore is an in-memory implementation of storage.AlertStore.
type AlertStore struct {
	mu     sync.RWMutex
	nextID int64
	data   []*domain.Alert
}

// NewAlertStore creates a new in-memory alert store.
func NewAlertStore() *AlertStore {
	return &AlertStore{nextID: 1}
}

var _ storage.AlertStore = (*AlertStore)(nil)

// Insert appends an alert and assigns its ID.
func (s *AlertStore) Insert(_ context.Context, a *domain.Alert) error {
	if a == nil || a.Wallet == "" || a.MarketID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	cp.ID = s.nextID
	s.nextID++
	s.data = append(s.data, &cp)
	a.ID = cp.ID
	return nil
}

// ExistsRecent reports whether a (wallet, market, type) alert exists at or after since.
func (s *AlertStore) ExistsRecent(_ context.Context, wallet, marketID string, typ domain.AlertType, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.data {
		if a.Wallet == wallet && a.MarketID == marketID && a.Type == typ && !a.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// GetSince retrieves alerts created at or after since, ordered by created_at ASC.
func (s *AlertStore) GetSince(_ context.Context, since time.Time) ([]*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Alert
	for _, a := range s.data {
		if !a.CreatedAt.Before(since) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sortAlerts(out)
	return out, nil
}

// GetScoredSince retrieves alerts at or after since with score >= minScore.
func (s *AlertStore) GetScoredSince(_ context.Context, since time.Time, minScore int) ([]*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Alert
	for _, a := range s.data {
		if !a.CreatedAt.Before(since) && a.Score >= minScore {
			cp := *a
			out = append(out, &cp)
		}
	}
	sortAlerts(out)
	return out, nil
}

// GetByTypeSince retrieves alerts of one type created at or after since.
func (s *AlertStore) GetByTypeSince(_ context.Context, typ domain.AlertType, since time.Time) ([]*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Alert
	for _, a := range s.data {
		if a.Type == typ && !a.CreatedAt.Before(since) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sortAlerts(out)
	return out, nil
}

func sortAlerts(alerts []*domain.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].ID < alerts[j].ID
		}
		return alerts[i].CreatedAt.Before(alerts[j].CreatedAt)
	})
}

// SubscriberStore is an in-memory implementation of storage.SubscriberStore.
type SubscriberStore struct {
	mu     sync.RWMutex
	nextID int64
	data   map[string]*domain.Subscriber // keyed by chat id
}

// NewSubscriberStore creates a new in-memory subscriber store.
func NewSubscriberStore() *SubscriberStore {
	return &SubscriberStore{nextID: 1, data: make(map[string]*domain.Subscriber)}
}

var _ storage.SubscriberStore = (*SubscriberStore)(nil)

// Upsert inserts or replaces a subscriber by chat id.
func (s *SubscriberStore) Upsert(_ context.Context, sub *domain.Subscriber) error {
	if sub == nil || sub.ChatID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sub
	if existing, ok := s.data[sub.ChatID]; ok {
		cp.ID = existing.ID
	} else {
		cp.ID = s.nextID
		s.nextID++
	}
	s.data[sub.ChatID] = &cp
	return nil
}

// GetActive retrieves active subscribers ordered by id.
func (s *SubscriberStore) GetActive(_ context.Context) ([]*domain.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Subscriber
	for _, sub := range s.data {
		if sub.Active {
			cp := *sub
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
