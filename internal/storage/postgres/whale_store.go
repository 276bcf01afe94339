package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// ProfileStore implements storage.ProfileStore using PostgreSQL.
type ProfileStore struct {
	pool *Pool
}

// NewProfileStore creates a new ProfileStore.
func NewProfileStore(pool *Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ProfileStore = (*ProfileStore)(nil)

// Upsert fully overwrites the profile row for a wallet.
func (s *ProfileStore) Upsert(ctx context.Context, p *domain.WhaleProfile) error {
	if p == nil || p.Wallet == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO whale_profiles (wallet, total_volume, win_rate, avg_size, markets_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (wallet) DO UPDATE SET
			total_volume = EXCLUDED.total_volume,
			win_rate = EXCLUDED.win_rate,
			avg_size = EXCLUDED.avg_size,
			markets_count = EXCLUDED.markets_count,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		p.Wallet,
		p.TotalVolume,
		p.WinRate,
		p.AvgSize,
		p.MarketsCount,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert whale profile: %w", err)
	}
	return nil
}

// GetByWallet retrieves a profile by wallet.
func (s *ProfileStore) GetByWallet(ctx context.Context, wallet string) (*domain.WhaleProfile, error) {
	query := `
		SELECT wallet, total_volume, win_rate, avg_size, markets_count, updated_at
		FROM whale_profiles
		WHERE wallet = $1
	`

	var p domain.WhaleProfile
	err := s.pool.QueryRow(ctx, query, wallet).Scan(
		&p.Wallet,
		&p.TotalVolume,
		&p.WinRate,
		&p.AvgSize,
		&p.MarketsCount,
		&p.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get whale profile: %w", err)
	}
	return &p, nil
}

// ScoreStore implements storage.ScoreStore using PostgreSQL.
type ScoreStore struct {
	pool *Pool
}

// NewScoreStore creates a new ScoreStore.
func NewScoreStore(pool *Pool) *ScoreStore {
	return &ScoreStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ScoreStore = (*ScoreStore)(nil)

// Insert appends a score and its breakdown in one transaction.
func (s *ScoreStore) Insert(ctx context.Context, sc *domain.WhaleScore, b *domain.WhaleScoreBreakdown) error {
	if sc == nil || b == nil || sc.Wallet == "" || sc.MarketID == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO whale_scores (wallet, market_id, score, calculated_at)
		VALUES ($1, $2, $3, $4)
	`, sc.Wallet, sc.MarketID, sc.Score, sc.CalculatedAt)
	if err != nil {
		return fmt.Errorf("insert whale score: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO whale_score_breakdowns (wallet, market_id, capital_impact, timing_advantage, historical_accuracy, market_impact, calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.Wallet, b.MarketID, b.CapitalImpact, b.TimingAdvantage, b.HistoricalAccuracy, b.MarketImpact, b.CalculatedAt)
	if err != nil {
		return fmt.Errorf("insert whale score breakdown: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LatestByPair returns the most recent score for a pair.
func (s *ScoreStore) LatestByPair(ctx context.Context, wallet, marketID string) (*domain.WhaleScore, error) {
	query := `
		SELECT wallet, market_id, score, calculated_at
		FROM whale_scores
		WHERE wallet = $1 AND market_id = $2
		ORDER BY calculated_at DESC
		LIMIT 1
	`

	var sc domain.WhaleScore
	err := s.pool.QueryRow(ctx, query, wallet, marketID).Scan(
		&sc.Wallet,
		&sc.MarketID,
		&sc.Score,
		&sc.CalculatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest whale score: %w", err)
	}
	return &sc, nil
}

// GetByPairRange retrieves scores for a pair within [start, end).
func (s *ScoreStore) GetByPairRange(ctx context.Context, wallet, marketID string, start, end time.Time) ([]*domain.WhaleScore, error) {
	query := `
		SELECT wallet, market_id, score, calculated_at
		FROM whale_scores
		WHERE wallet = $1 AND market_id = $2 AND calculated_at >= $3 AND calculated_at < $4
		ORDER BY calculated_at ASC
	`

	rows, err := s.pool.Query(ctx, query, wallet, marketID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get whale scores by range: %w", err)
	}
	defer rows.Close()

	return scanScores(rows)
}

func scanScores(rows pgx.Rows) ([]*domain.WhaleScore, error) {
	var out []*domain.WhaleScore

	for rows.Next() {
		var sc domain.WhaleScore
		if err := rows.Scan(&sc.Wallet, &sc.MarketID, &sc.Score, &sc.CalculatedAt); err != nil {
			return nil, fmt.Errorf("scan whale score row: %w", err)
		}
		out = append(out, &sc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate whale score rows: %w", err)
	}

	return out, nil
}
