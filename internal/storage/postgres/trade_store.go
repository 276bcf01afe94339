package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const insertTradeQuery = `
	INSERT INTO trades (trade_id, market_id, wallet, side, amount, price, timestamp)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (trade_id) DO NOTHING
`

// Upsert inserts a trade, keeping the existing row for a known trade_id.
func (s *TradeStore) Upsert(ctx context.Context, t *domain.Trade) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertTradeQuery,
		t.TradeID,
		t.MarketID,
		t.Wallet,
		t.Side,
		t.Amount,
		t.Price,
		t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("upsert trade: %w", err)
	}
	return nil
}

// UpsertBulk upserts multiple trades in one transaction, keep-first on
// duplicates.
func (s *TradeStore) UpsertBulk(ctx context.Context, trades []*domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, insertTradeQuery,
			t.TradeID,
			t.MarketID,
			t.Wallet,
			t.Side,
			t.Amount,
			t.Price,
			t.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("upsert trade in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetSince retrieves trades with timestamp >= since, ordered by timestamp ASC.
func (s *TradeStore) GetSince(ctx context.Context, since time.Time) ([]*domain.Trade, error) {
	query := `
		SELECT trade_id, market_id, wallet, side, amount, price, timestamp
		FROM trades
		WHERE timestamp >= $1
		ORDER BY timestamp ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("get trades since: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByMarketRange retrieves trades for one market within [start, end).
func (s *TradeStore) GetByMarketRange(ctx context.Context, marketID string, start, end time.Time) ([]*domain.Trade, error) {
	query := `
		SELECT trade_id, market_id, wallet, side, amount, price, timestamp
		FROM trades
		WHERE market_id = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, marketID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get trades by market range: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByWallet retrieves every trade for a wallet, ordered by timestamp ASC.
func (s *TradeStore) GetByWallet(ctx context.Context, wallet string) ([]*domain.Trade, error) {
	query := `
		SELECT trade_id, market_id, wallet, side, amount, price, timestamp
		FROM trades
		WHERE wallet = $1
		ORDER BY timestamp ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("get trades by wallet: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// Wallets returns the distinct wallets with at least one trade.
func (s *TradeStore) Wallets(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT wallet FROM trades ORDER BY wallet ASC`)
	if err != nil {
		return nil, fmt.Errorf("get trade wallets: %w", err)
	}
	defer rows.Close()

	var wallets []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet rows: %w", err)
	}
	return wallets, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		var t domain.Trade

		err := rows.Scan(
			&t.TradeID,
			&t.MarketID,
			&t.Wallet,
			&t.Side,
			&t.Amount,
			&t.Price,
			&t.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
