package postgres

import (
	"context"
	"fmt"
	"time"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// OrderbookStore implements storage.OrderbookStore using PostgreSQL.
type OrderbookStore struct {
	pool *Pool
}

// NewOrderbookStore creates a new OrderbookStore.
func NewOrderbookStore(pool *Pool) *OrderbookStore {
	return &OrderbookStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OrderbookStore = (*OrderbookStore)(nil)

// Insert appends a snapshot.
func (s *OrderbookStore) Insert(ctx context.Context, snap *domain.OrderbookSnapshot) error {
	if snap == nil || snap.MarketID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO orderbook_snapshots (market_id, outcome_label, timestamp, bid_depth_usd, ask_depth_usd, total_depth_usd)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		snap.MarketID,
		snap.OutcomeLabel,
		snap.Timestamp,
		snap.BidDepthUSD,
		snap.AskDepthUSD,
		snap.TotalDepthUSD,
	)
	if err != nil {
		return fmt.Errorf("insert orderbook snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot for a market outcome. An empty
// outcomeLabel matches any outcome.
func (s *OrderbookStore) Latest(ctx context.Context, marketID, outcomeLabel string) (*domain.OrderbookSnapshot, error) {
	query := `
		SELECT market_id, outcome_label, timestamp, bid_depth_usd, ask_depth_usd, total_depth_usd
		FROM orderbook_snapshots
		WHERE market_id = $1 AND ($2 = '' OR outcome_label = $2)
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var snap domain.OrderbookSnapshot
	err := s.pool.QueryRow(ctx, query, marketID, outcomeLabel).Scan(
		&snap.MarketID,
		&snap.OutcomeLabel,
		&snap.Timestamp,
		&snap.BidDepthUSD,
		&snap.AskDepthUSD,
		&snap.TotalDepthUSD,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest orderbook snapshot: %w", err)
	}
	return &snap, nil
}

// DeleteOlderThan removes snapshots older than cutoff.
func (s *OrderbookStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM orderbook_snapshots WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old orderbook snapshots: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
