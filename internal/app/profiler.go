package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"whalewatch/config"
	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// Profiler recomputes per-wallet aggregate statistics from scratch on its
// own schedule, decoupled from detection and scoring. Each pass fully
// overwrites the profile row; there is no incremental merge.
type Profiler struct {
	logger *zap.Logger
	cfg    config.ProfilerConfig
	stores *storage.Stores

	now func() time.Time
}

func NewProfiler(logger *zap.Logger, cfg config.ProfilerConfig, stores *storage.Stores) *Profiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Profiler{
		logger: logger,
		cfg:    cfg,
		stores: stores,
		now:    time.Now,
	}
}

// Run rebuilds the profile of every wallet with at least one recorded trade.
// Per-wallet failures are logged and skipped.
func (p *Profiler) Run(ctx context.Context) error {
	wallets, err := p.stores.Trades.Wallets(ctx)
	if err != nil {
		return fmt.Errorf("list wallets: %w", err)
	}

	now := p.now().UTC()
	updated := 0
	for _, wallet := range wallets {
		trades, err := p.stores.Trades.GetByWallet(ctx, wallet)
		if err != nil {
			p.logger.Error("wallet trade fetch failed",
				zap.String("wallet", shortAddress(wallet)), zap.Error(err))
			continue
		}
		if len(trades) == 0 {
			continue
		}

		profile := buildProfile(wallet, trades, now)
		if err := p.stores.Profiles.Upsert(ctx, profile); err != nil {
			p.logger.Error("profile write failed",
				zap.String("wallet", shortAddress(wallet)), zap.Error(err))
			continue
		}
		updated++
	}

	p.logger.Info("profiling pass complete",
		zap.Int("wallets", len(wallets)),
		zap.Int("updated", updated))
	return nil
}

// buildProfile aggregates one wallet's full trade history. Volume sums share
// amounts rather than notional; score distributions depend on that choice,
// so it stays.
func buildProfile(wallet string, trades []*domain.Trade, now time.Time) *domain.WhaleProfile {
	type marketSides struct {
		buyShares  float64
		buyCost    float64
		sellShares float64
		sellValue  float64
	}

	var totalVolume float64
	markets := make(map[string]*marketSides)
	for _, t := range trades {
		totalVolume += t.Amount

		ms := markets[t.MarketID]
		if ms == nil {
			ms = &marketSides{}
			markets[t.MarketID] = ms
		}
		switch t.Side {
		case domain.TradeSideBuy:
			ms.buyShares += t.Amount
			ms.buyCost += t.Notional()
		case domain.TradeSideSell:
			ms.sellShares += t.Amount
			ms.sellValue += t.Notional()
		}
	}

	// A market counts as a win when the wallet's average sell price beats
	// its average buy price. Markets traded on one side only never count.
	wins := 0
	for _, ms := range markets {
		if ms.buyShares <= 0 || ms.sellShares <= 0 {
			continue
		}
		avgBuy := ms.buyCost / ms.buyShares
		avgSell := ms.sellValue / ms.sellShares
		if avgSell > avgBuy {
			wins++
		}
	}

	winRate := 0.0
	if len(markets) > 0 {
		winRate = float64(wins) / float64(len(markets))
	}

	return &domain.WhaleProfile{
		Wallet:       wallet,
		TotalVolume:  totalVolume,
		WinRate:      winRate,
		AvgSize:      totalVolume / float64(len(trades)),
		MarketsCount: len(markets),
		UpdatedAt:    now,
	}
}
