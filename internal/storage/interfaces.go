package storage

import (
	"context"
	"time"

	"whalewatch/internal/domain"
)

// TradeStore provides access to normalized trade records.
type TradeStore interface {
	// Upsert inserts a trade, silently keeping the existing row when the
	// trade_id was already ingested.
	Upsert(ctx context.Context, t *domain.Trade) error

	// UpsertBulk upserts multiple trades. Duplicates within the batch or
	// against existing rows are kept-first, not errors.
	UpsertBulk(ctx context.Context, trades []*domain.Trade) error

	// GetSince retrieves all trades with timestamp >= since, ordered by
	// timestamp ASC.
	GetSince(ctx context.Context, since time.Time) ([]*domain.Trade, error)

	// GetByMarketRange retrieves trades for one market within [start, end),
	// ordered by timestamp ASC.
	GetByMarketRange(ctx context.Context, marketID string, start, end time.Time) ([]*domain.Trade, error)

	// GetByWallet retrieves every trade ever recorded for a wallet.
	GetByWallet(ctx context.Context, wallet string) ([]*domain.Trade, error)

	// Wallets returns the distinct wallets with at least one trade.
	Wallets(ctx context.Context) ([]string, error)
}

// OrderbookStore provides access to orderbook depth snapshots.
type OrderbookStore interface {
	// Insert appends a snapshot.
	Insert(ctx context.Context, s *domain.OrderbookSnapshot) error

	// Latest returns the most recent snapshot for a market outcome. An
	// empty outcomeLabel matches any outcome for the market.
	// Returns ErrNotFound when no snapshot exists.
	Latest(ctx context.Context, marketID, outcomeLabel string) (*domain.OrderbookSnapshot, error)

	// DeleteOlderThan removes snapshots with timestamp < cutoff and returns
	// the number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// MarketStore provides access to market metadata rows.
type MarketStore interface {
	// Upsert inserts or replaces a market row by id.
	Upsert(ctx context.Context, m *domain.Market) error

	// GetByID retrieves a market. Returns ErrNotFound when it does not exist.
	GetByID(ctx context.Context, id string) (*domain.Market, error)
}

// SettlementStore provides access to market settlement records.
type SettlementStore interface {
	// Upsert inserts or replaces a settlement by market id.
	Upsert(ctx context.Context, s *domain.MarketSettlement) error

	// GetByMarketID retrieves a settlement. Returns ErrNotFound when the
	// market has not settled.
	GetByMarketID(ctx context.Context, marketID string) (*domain.MarketSettlement, error)

	// GetAll retrieves every settlement.
	GetAll(ctx context.Context) ([]*domain.MarketSettlement, error)
}

// ProfileStore provides access to whale profiles.
type ProfileStore interface {
	// Upsert fully overwrites the profile row for a wallet.
	Upsert(ctx context.Context, p *domain.WhaleProfile) error

	// GetByWallet retrieves a profile. Returns ErrNotFound when absent.
	GetByWallet(ctx context.Context, wallet string) (*domain.WhaleProfile, error)
}

// ScoreStore provides access to the append-only whale score ledger.
type ScoreStore interface {
	// Insert appends a score and its breakdown under the same
	// (wallet, market, calculated_at) key.
	Insert(ctx context.Context, s *domain.WhaleScore, b *domain.WhaleScoreBreakdown) error

	// LatestByPair returns the most recent score for a pair.
	// Returns ErrNotFound when the pair has never been scored.
	LatestByPair(ctx context.Context, wallet, marketID string) (*domain.WhaleScore, error)

	// GetByPairRange retrieves scores for a pair within [start, end),
	// ordered by calculated_at ASC.
	GetByPairRange(ctx context.Context, wallet, marketID string, start, end time.Time) ([]*domain.WhaleScore, error)
}

// AlertStore provides access to persisted alerts.
type AlertStore interface {
	// Insert appends an alert and assigns its ID.
	Insert(ctx context.Context, a *domain.Alert) error

	// ExistsRecent reports whether an alert with the same
	// (wallet, market, type) was created at or after since.
	ExistsRecent(ctx context.Context, wallet, marketID string, typ domain.AlertType, since time.Time) (bool, error)

	// GetSince retrieves alerts created at or after since, ordered by
	// created_at ASC.
	GetSince(ctx context.Context, since time.Time) ([]*domain.Alert, error)

	// GetScoredSince retrieves alerts created at or after since with
	// score >= minScore, ordered by created_at ASC.
	GetScoredSince(ctx context.Context, since time.Time, minScore int) ([]*domain.Alert, error)

	// GetByTypeSince retrieves alerts of one type created at or after since.
	GetByTypeSince(ctx context.Context, typ domain.AlertType, since time.Time) ([]*domain.Alert, error)
}

// SubscriberStore provides access to notification recipients.
type SubscriberStore interface {
	// Upsert inserts or replaces a subscriber by chat id.
	Upsert(ctx context.Context, s *domain.Subscriber) error

	// GetActive retrieves subscribers with a bound channel that are active.
	GetActive(ctx context.Context) ([]*domain.Subscriber, error)
}

// Stores bundles every repository the pipeline needs.
type Stores struct {
	Trades      TradeStore
	Orderbooks  OrderbookStore
	Markets     MarketStore
	Settlements SettlementStore
	Profiles    ProfileStore
	Scores      ScoreStore
	Alerts      AlertStore
	Subscribers SubscriberStore
}
