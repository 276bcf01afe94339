package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// AlertStore implements storage.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *Pool
}

// NewAlertStore creates a new AlertStore.
func NewAlertStore(pool *Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AlertStore = (*AlertStore)(nil)

// Insert appends an alert and assigns its ID.
func (s *AlertStore) Insert(ctx context.Context, a *domain.Alert) error {
	if a == nil || a.Wallet == "" || a.MarketID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO alerts (wallet, market_id, type, score, amount, price, side, tx_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := s.pool.QueryRow(ctx, query,
		a.Wallet,
		a.MarketID,
		a.Type,
		a.Score,
		a.Amount,
		a.Price,
		a.Side,
		a.TxCount,
		a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ExistsRecent reports whether a (wallet, market, type) alert exists at or after since.
func (s *AlertStore) ExistsRecent(ctx context.Context, wallet, marketID string, typ domain.AlertType, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM alerts
			WHERE wallet = $1 AND market_id = $2 AND type = $3 AND created_at >= $4
		)
	`

	var exists bool
	if err := s.pool.QueryRow(ctx, query, wallet, marketID, typ, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("check recent alert: %w", err)
	}
	return exists, nil
}

// GetSince retrieves alerts created at or after since, ordered by created_at ASC.
func (s *AlertStore) GetSince(ctx context.Context, since time.Time) ([]*domain.Alert, error) {
	query := alertSelect + `
		WHERE created_at >= $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("get alerts since: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// GetScoredSince retrieves alerts at or after since with score >= minScore.
func (s *AlertStore) GetScoredSince(ctx context.Context, since time.Time, minScore int) ([]*domain.Alert, error) {
	query := alertSelect + `
		WHERE created_at >= $1 AND score >= $2
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, since, minScore)
	if err != nil {
		return nil, fmt.Errorf("get scored alerts since: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// GetByTypeSince retrieves alerts of one type created at or after since.
func (s *AlertStore) GetByTypeSince(ctx context.Context, typ domain.AlertType, since time.Time) ([]*domain.Alert, error) {
	query := alertSelect + `
		WHERE type = $1 AND created_at >= $2
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, typ, since)
	if err != nil {
		return nil, fmt.Errorf("get alerts by type since: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

const alertSelect = `
	SELECT id, wallet, market_id, type, score, amount, price, side, tx_count, created_at
	FROM alerts
`

func scanAlerts(rows pgx.Rows) ([]*domain.Alert, error) {
	var out []*domain.Alert

	for rows.Next() {
		var a domain.Alert
		err := rows.Scan(
			&a.ID,
			&a.Wallet,
			&a.MarketID,
			&a.Type,
			&a.Score,
			&a.Amount,
			&a.Price,
			&a.Side,
			&a.TxCount,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		out = append(out, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert rows: %w", err)
	}

	return out, nil
}

// SubscriberStore implements storage.SubscriberStore using PostgreSQL.
type SubscriberStore struct {
	pool *Pool
}

// NewSubscriberStore creates a new SubscriberStore.
func NewSubscriberStore(pool *Pool) *SubscriberStore {
	return &SubscriberStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SubscriberStore = (*SubscriberStore)(nil)

// Upsert inserts or replaces a subscriber by chat id.
func (s *SubscriberStore) Upsert(ctx context.Context, sub *domain.Subscriber) error {
	if sub == nil || sub.ChatID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO subscribers (chat_id, tier, plan_expires_at, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chat_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			plan_expires_at = EXCLUDED.plan_expires_at,
			active = EXCLUDED.active
		RETURNING id
	`

	err := s.pool.QueryRow(ctx, query,
		sub.ChatID,
		sub.Tier,
		sub.PlanExpiresAt,
		sub.Active,
	).Scan(&sub.ID)
	if err != nil {
		return fmt.Errorf("upsert subscriber: %w", err)
	}
	return nil
}

// GetActive retrieves active subscribers ordered by id.
func (s *SubscriberStore) GetActive(ctx context.Context) ([]*domain.Subscriber, error) {
	query := `
		SELECT id, chat_id, tier, plan_expires_at, active
		FROM subscribers
		WHERE active = TRUE
		ORDER BY id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get active subscribers: %w", err)
	}
	defer rows.Close()

	var out []*domain.Subscriber
	for rows.Next() {
		var sub domain.Subscriber
		if err := rows.Scan(&sub.ID, &sub.ChatID, &sub.Tier, &sub.PlanExpiresAt, &sub.Active); err != nil {
			return nil, fmt.Errorf("scan subscriber row: %w", err)
		}
		out = append(out, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriber rows: %w", err)
	}
	return out, nil
}
