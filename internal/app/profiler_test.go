package app

import (
	"context"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"whalewatch/config"
	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
	"whalewatch/internal/storage/memory"
)

var profilerBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestProfiler(t *testing.T) (*Profiler, *storage.Stores) {
	t.Helper()
	stores := memory.NewStores()
	p := NewProfiler(zap.NewNop(), config.Defaults().Profiler, stores)
	p.now = func() time.Time { return profilerBase }
	return p, stores
}

func TestBuildProfile_WinRateAndVolume(t *testing.T) {
	trades := []*domain.Trade{
		// m1: bought at 0.4, sold at 0.6 — a win.
		{TradeID: "a", MarketID: "m1", Wallet: "0xw", Side: domain.TradeSideBuy, Amount: 100, Price: 0.4},
		{TradeID: "b", MarketID: "m1", Wallet: "0xw", Side: domain.TradeSideSell, Amount: 100, Price: 0.6},
		// m2: bought at 0.7, sold at 0.3 — a loss.
		{TradeID: "c", MarketID: "m2", Wallet: "0xw", Side: domain.TradeSideBuy, Amount: 200, Price: 0.7},
		{TradeID: "d", MarketID: "m2", Wallet: "0xw", Side: domain.TradeSideSell, Amount: 200, Price: 0.3},
		// m3: buy only — never counts as a win.
		{TradeID: "e", MarketID: "m3", Wallet: "0xw", Side: domain.TradeSideBuy, Amount: 50, Price: 0.9},
	}

	p := buildProfile("0xw", trades, profilerBase)

	// Volume sums share amounts, not notional.
	if p.TotalVolume != 650 {
		t.Errorf("expected total volume 650 shares, got %f", p.TotalVolume)
	}
	if p.MarketsCount != 3 {
		t.Errorf("expected 3 markets, got %d", p.MarketsCount)
	}
	if math.Abs(p.WinRate-1.0/3.0) > 1e-9 {
		t.Errorf("expected win rate 1/3, got %f", p.WinRate)
	}
	if p.AvgSize != 130 {
		t.Errorf("expected avg size 130, got %f", p.AvgSize)
	}
	if !p.UpdatedAt.Equal(profilerBase) {
		t.Errorf("expected updated at %v, got %v", profilerBase, p.UpdatedAt)
	}
}

func TestBuildProfile_WinNeedsBothSides(t *testing.T) {
	trades := []*domain.Trade{
		{TradeID: "a", MarketID: "m1", Wallet: "0xw", Side: domain.TradeSideSell, Amount: 100, Price: 0.99},
	}
	p := buildProfile("0xw", trades, profilerBase)
	if p.WinRate != 0 {
		t.Errorf("sell-only market must not count as a win, got win rate %f", p.WinRate)
	}
}

func TestProfiler_Run_OverwritesProfile(t *testing.T) {
	p, stores := newTestProfiler(t)
	ctx := context.Background()

	seedTrade(t, stores, "a", "0xw", "m1", domain.TradeSideBuy, 100, 0.4, profilerBase.Add(-time.Hour))
	if err := p.Run(ctx); err != nil {
		t.Fatalf("profiling pass: %v", err)
	}

	first, err := stores.Profiles.GetByWallet(ctx, "0xw")
	if err != nil {
		t.Fatalf("fetch profile: %v", err)
	}
	if first.TotalVolume != 100 || first.MarketsCount != 1 {
		t.Errorf("unexpected first profile: %+v", first)
	}

	// More history; the next pass replaces the row wholesale.
	seedTrade(t, stores, "b", "0xw", "m1", domain.TradeSideSell, 100, 0.6, profilerBase.Add(-30*time.Minute))
	seedTrade(t, stores, "c", "0xw", "m2", domain.TradeSideBuy, 300, 0.5, profilerBase.Add(-20*time.Minute))
	if err := p.Run(ctx); err != nil {
		t.Fatalf("second profiling pass: %v", err)
	}

	second, err := stores.Profiles.GetByWallet(ctx, "0xw")
	if err != nil {
		t.Fatalf("fetch profile: %v", err)
	}
	if second.TotalVolume != 500 {
		t.Errorf("expected recomputed volume 500, got %f", second.TotalVolume)
	}
	if second.MarketsCount != 2 {
		t.Errorf("expected 2 markets, got %d", second.MarketsCount)
	}
	if second.WinRate != 0.5 {
		t.Errorf("expected win rate 0.5, got %f", second.WinRate)
	}
}

func TestProfiler_Run_NoTrades(t *testing.T) {
	p, _ := newTestProfiler(t)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("expected empty pass to succeed, got %v", err)
	}
}
