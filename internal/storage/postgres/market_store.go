package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// MarketStore implements storage.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *Pool
}

// NewMarketStore creates a new MarketStore.
func NewMarketStore(pool *Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MarketStore = (*MarketStore)(nil)

// Upsert inserts or replaces a market row by id.
func (s *MarketStore) Upsert(ctx context.Context, m *domain.Market) error {
	if m == nil || m.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO markets (id, title, category, status, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			category = EXCLUDED.category,
			status = EXCLUDED.status,
			created_at = EXCLUDED.created_at,
			resolved_at = EXCLUDED.resolved_at
	`

	_, err := s.pool.Exec(ctx, query,
		m.ID,
		m.Title,
		m.Category,
		m.Status,
		m.CreatedAt,
		m.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert market: %w", err)
	}
	return nil
}

// GetByID retrieves a market by id.
func (s *MarketStore) GetByID(ctx context.Context, id string) (*domain.Market, error) {
	query := `
		SELECT id, title, category, status, created_at, resolved_at
		FROM markets
		WHERE id = $1
	`

	var m domain.Market
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&m.ID,
		&m.Title,
		&m.Category,
		&m.Status,
		&m.CreatedAt,
		&m.ResolvedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get market by id: %w", err)
	}
	return &m, nil
}

// SettlementStore implements storage.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *Pool
}

// NewSettlementStore creates a new SettlementStore.
func NewSettlementStore(pool *Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SettlementStore = (*SettlementStore)(nil)

// Upsert inserts or replaces a settlement by market id.
func (s *SettlementStore) Upsert(ctx context.Context, st *domain.MarketSettlement) error {
	if st == nil || st.MarketID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO market_settlements (market_id, settled_outcome, settled_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (market_id) DO UPDATE SET
			settled_outcome = EXCLUDED.settled_outcome,
			settled_at = EXCLUDED.settled_at
	`

	_, err := s.pool.Exec(ctx, query, st.MarketID, st.SettledOutcome, st.SettledAt)
	if err != nil {
		return fmt.Errorf("upsert settlement: %w", err)
	}
	return nil
}

// GetByMarketID retrieves a settlement by market id.
func (s *SettlementStore) GetByMarketID(ctx context.Context, marketID string) (*domain.MarketSettlement, error) {
	query := `
		SELECT market_id, settled_outcome, settled_at
		FROM market_settlements
		WHERE market_id = $1
	`

	var st domain.MarketSettlement
	err := s.pool.QueryRow(ctx, query, marketID).Scan(&st.MarketID, &st.SettledOutcome, &st.SettledAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get settlement by market id: %w", err)
	}
	return &st, nil
}

// GetAll retrieves every settlement ordered by settled_at ASC.
func (s *SettlementStore) GetAll(ctx context.Context) ([]*domain.MarketSettlement, error) {
	query := `
		SELECT market_id, settled_outcome, settled_at
		FROM market_settlements
		ORDER BY settled_at ASC, market_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get settlements: %w", err)
	}
	defer rows.Close()

	return scanSettlements(rows)
}

func scanSettlements(rows pgx.Rows) ([]*domain.MarketSettlement, error) {
	var out []*domain.MarketSettlement

	for rows.Next() {
		var st domain.MarketSettlement
		if err := rows.Scan(&st.MarketID, &st.SettledOutcome, &st.SettledAt); err != nil {
			return nil, fmt.Errorf("scan settlement row: %w", err)
		}
		out = append(out, &st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlement rows: %w", err)
	}

	return out, nil
}
