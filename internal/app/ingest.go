package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"whalewatch/clients"
	"whalewatch/clients/datafeed"
	"whalewatch/clients/gamma"
	"whalewatch/config"
	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// Ingestor feeds the stores: trade polling, orderbook snapshots, and market
// metadata refresh, plus the optional websocket trade stream.
type Ingestor struct {
	logger  *zap.Logger
	cfg     *config.Config
	clients *clients.Clients
	stores  *storage.Stores

	now func() time.Time

	mu       sync.RWMutex
	tokenIDs []string
	outcomes map[string]string // token id -> outcome label
}

func NewIngestor(logger *zap.Logger, cfg *config.Config, cl *clients.Clients, stores *storage.Stores) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		logger:   logger,
		cfg:      cfg,
		clients:  cl,
		stores:   stores,
		now:      time.Now,
		tokenIDs: append([]string(nil), cfg.Polymarket.WatchedMarkets...),
		outcomes: make(map[string]string),
	}
}

// TokenIDs returns the token ids currently tracked for polling and
// streaming.
func (in *Ingestor) TokenIDs() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return append([]string(nil), in.tokenIDs...)
}

// RefreshMarkets rebuilds the tracked token set and upserts market metadata
// and settlements. With an explicit watch list configured, metadata is
// fetched per token; otherwise the top markets by volume are tracked.
func (in *Ingestor) RefreshMarkets(ctx context.Context) error {
	if len(in.cfg.Polymarket.WatchedMarkets) > 0 {
		return in.refreshWatched(ctx)
	}
	return in.refreshTop(ctx)
}

func (in *Ingestor) refreshWatched(ctx context.Context) error {
	for _, tokenID := range in.cfg.Polymarket.WatchedMarkets {
		m, err := in.clients.Gamma.GetMarketByTokenID(ctx, tokenID)
		if err != nil {
			in.logger.Warn("market metadata fetch failed",
				zap.String("tokenID", shortID(tokenID)), zap.Error(err))
			continue
		}
		if m == nil {
			continue
		}
		in.upsertMarket(ctx, m)
	}
	return nil
}

func (in *Ingestor) refreshTop(ctx context.Context) error {
	markets, err := in.clients.Gamma.GetTopMarketsByVolume(ctx, in.cfg.Polymarket.TopMarkets)
	if err != nil {
		return fmt.Errorf("fetch top markets: %w", err)
	}

	var tokens []string
	outcomes := make(map[string]string)
	for i := range markets {
		m := &markets[i]
		ids, labels := in.upsertMarket(ctx, m)
		tokens = append(tokens, ids...)
		for tokenID, label := range labels {
			outcomes[tokenID] = label
		}
	}

	in.mu.Lock()
	in.tokenIDs = tokens
	in.outcomes = outcomes
	in.mu.Unlock()

	in.logger.Info("market refresh complete",
		zap.Int("markets", len(markets)),
		zap.Int("tokens", len(tokens)))
	return nil
}

// upsertMarket writes one metadata row per token id, since trades arrive
// keyed by token. Closed markets with a resolvable winner also settle.
func (in *Ingestor) upsertMarket(ctx context.Context, m *gamma.Market) ([]string, map[string]string) {
	tokenIDs := m.GetTokenIDs()
	outcomeNames := m.GetOutcomes()

	status := domain.MarketStatusActive
	var resolvedAt *time.Time
	if m.Closed {
		status = domain.MarketStatusResolved
		if closed := m.GetClosedTime(); !closed.IsZero() {
			resolvedAt = &closed
		}
	}

	labels := make(map[string]string, len(tokenIDs))
	for i, tokenID := range tokenIDs {
		label := ""
		if i < len(outcomeNames) {
			label = outcomeNames[i]
		}
		labels[tokenID] = label

		row := &domain.Market{
			ID:         tokenID,
			Title:      m.Question,
			Category:   m.Category,
			Status:     status,
			CreatedAt:  m.GetStartTime(),
			ResolvedAt: resolvedAt,
		}
		if err := in.stores.Markets.Upsert(ctx, row); err != nil {
			in.logger.Warn("market upsert failed",
				zap.String("tokenID", shortID(tokenID)), zap.Error(err))
			continue
		}

		if m.Closed {
			if winner := m.GetWinningOutcome(); winner != "" {
				settledAt := in.now().UTC()
				if resolvedAt != nil {
					settledAt = *resolvedAt
				}
				settlement := &domain.MarketSettlement{
					MarketID:       tokenID,
					SettledOutcome: winner,
					SettledAt:      settledAt,
				}
				if err := in.stores.Settlements.Upsert(ctx, settlement); err != nil {
					in.logger.Warn("settlement upsert failed",
						zap.String("tokenID", shortID(tokenID)), zap.Error(err))
				}
			}
		}
	}

	return tokenIDs, labels
}

// PollTrades fetches recent trades for the tracked tokens and upserts them.
// Re-ingesting the same trade id is a no-op.
func (in *Ingestor) PollTrades(ctx context.Context) error {
	tokens := in.TokenIDs()
	if len(tokens) == 0 {
		return nil
	}

	records, err := in.clients.DataFeed.GetTrades(ctx, tokens, in.cfg.Ingest.TradeLimit)
	if err != nil {
		return fmt.Errorf("fetch trades: %w", err)
	}

	trades := make([]*domain.Trade, 0, len(records))
	for i := range records {
		if t := records[i].ToDomain(); t != nil {
			trades = append(trades, t)
		}
	}
	if len(trades) == 0 {
		return nil
	}

	if err := in.stores.Trades.UpsertBulk(ctx, trades); err != nil {
		return fmt.Errorf("store trades: %w", err)
	}

	in.logger.Debug("trade poll complete",
		zap.Int("fetched", len(records)),
		zap.Int("stored", len(trades)))
	return nil
}

// SnapshotOrderbooks records current book depth for every tracked token.
// Per-token failures are logged and skipped.
func (in *Ingestor) SnapshotOrderbooks(ctx context.Context) error {
	tokens := in.TokenIDs()
	now := in.now().UTC()

	taken := 0
	for _, tokenID := range tokens {
		book, err := in.clients.DataFeed.GetBook(ctx, tokenID)
		if err != nil {
			in.logger.Warn("book fetch failed",
				zap.String("tokenID", shortID(tokenID)), zap.Error(err))
			continue
		}

		in.mu.RLock()
		label := in.outcomes[tokenID]
		in.mu.RUnlock()

		snap := book.ToSnapshot(label, now)
		if err := in.stores.Orderbooks.Insert(ctx, snap); err != nil {
			in.logger.Warn("snapshot write failed",
				zap.String("tokenID", shortID(tokenID)), zap.Error(err))
			continue
		}
		taken++
	}

	in.logger.Debug("orderbook snapshot complete",
		zap.Int("tokens", len(tokens)),
		zap.Int("snapshots", taken))
	return nil
}

// ConsumeStream drains the websocket trade feed into the trade store until
// ctx is cancelled. Parse failures and non-trade events are dropped.
func (in *Ingestor) ConsumeStream(ctx context.Context) {
	stream := in.clients.Stream
	if stream == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-stream.Errors():
			if !ok {
				return
			}
			in.logger.Warn("stream error", zap.Error(err))
		case msg, ok := <-stream.Messages():
			if !ok {
				return
			}
			event := datafeed.ParseTradeEvent(msg)
			if event == nil {
				continue
			}
			trade := event.ToDomain()
			if trade == nil {
				continue
			}
			if err := in.stores.Trades.Upsert(ctx, trade); err != nil {
				in.logger.Warn("stream trade write failed",
					zap.String("tradeID", shortID(trade.TradeID)), zap.Error(err))
			}
		}
	}
}
