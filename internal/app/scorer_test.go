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

var scorerBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestScorer(t *testing.T) (*Scorer, *storage.Stores) {
	t.Helper()
	stores := memory.NewStores()
	s := NewScorer(zap.NewNop(), config.Defaults().Scorer, stores)
	s.now = func() time.Time { return scorerBase }
	return s, stores
}

func TestWeightsSumToOne(t *testing.T) {
	sum := weightCapitalImpact + weightTimingAdvantage + weightHistoricalAccuracy + weightMarketImpact
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("weights must sum to 1.0, got %f", sum)
	}
}

func TestCapitalImpact_KnownRatio(t *testing.T) {
	at := scorerBase
	// $20,000 wallet volume inside the trailing 10 minutes.
	trades := []*domain.Trade{
		{Amount: 40000, Price: 0.5, Timestamp: at.Add(-5 * time.Minute)},
	}

	// Against $100,000 market volume: ratio 0.2 → log10(21)×5 ≈ 6.61.
	got := capitalImpact(trades, at, 100_000)
	if math.Abs(got-6.6107) > 0.01 {
		t.Errorf("expected ≈6.61, got %f", got)
	}
}

func TestCapitalImpact_Clamped(t *testing.T) {
	at := scorerBase
	trades := []*domain.Trade{{Amount: 1_000_000, Price: 1.0, Timestamp: at}}

	if got := capitalImpact(trades, at, 1000); got != 10 {
		t.Errorf("expected clamp at 10, got %f", got)
	}
	if got := capitalImpact(nil, at, 1000); got != 0 {
		t.Errorf("expected 0 without wallet volume, got %f", got)
	}
	if got := capitalImpact(trades, at, 0); got != 0 {
		t.Errorf("expected 0 without market volume, got %f", got)
	}
}

func TestCapitalImpact_IgnoresTradesOutsideWindow(t *testing.T) {
	at := scorerBase
	trades := []*domain.Trade{
		{Amount: 40000, Price: 0.5, Timestamp: at.Add(-5 * time.Minute)},
		{Amount: 40000, Price: 0.5, Timestamp: at.Add(-15 * time.Minute)}, // too old
	}
	got := capitalImpact(trades, at, 100_000)
	if math.Abs(got-6.6107) > 0.01 {
		t.Errorf("expected only windowed volume to count, got %f", got)
	}
}

func TestHistoricalAccuracy_CappedOnThinHistory(t *testing.T) {
	s, stores := newTestScorer(t)
	ctx := context.Background()

	// High win rate over 3 markets: raw value exceeds 5 but thin history
	// caps it.
	err := stores.Profiles.Upsert(ctx, &domain.WhaleProfile{
		Wallet: "0xthin", WinRate: 1.0, MarketsCount: 3, UpdatedAt: scorerBase,
	})
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	if got := s.historicalAccuracy(ctx, "0xthin"); got != 5 {
		t.Errorf("expected cap at 5 for thin history, got %f", got)
	}
}

func TestHistoricalAccuracy_KnownValue(t *testing.T) {
	s, stores := newTestScorer(t)
	ctx := context.Background()

	// win_rate 0.8 over 12 markets: 0.8 × ln(13) × 10 ≈ 20.5, clamped to 10.
	err := stores.Profiles.Upsert(ctx, &domain.WhaleProfile{
		Wallet: "0xvet", WinRate: 0.8, MarketsCount: 12, UpdatedAt: scorerBase,
	})
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	if got := s.historicalAccuracy(ctx, "0xvet"); got != 10 {
		t.Errorf("expected clamp at 10, got %f", got)
	}
}

func TestHistoricalAccuracy_NoProfile(t *testing.T) {
	s, _ := newTestScorer(t)
	if got := s.historicalAccuracy(context.Background(), "0xnobody"); got != 0 {
		t.Errorf("expected 0 without a profile, got %f", got)
	}
}

func TestTimingAdvantage_EarlyVersusLate(t *testing.T) {
	s, stores := newTestScorer(t)
	ctx := context.Background()

	created := scorerBase.Add(-14 * 24 * time.Hour)
	err := stores.Markets.Upsert(ctx, &domain.Market{
		ID: "m1", Title: "Test market", Status: domain.MarketStatusActive, CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("seed market: %v", err)
	}

	// Halfway through the default lifetime with a short activity span:
	// (1 − 0.5) × 10 − 1 = 4.
	mid := created.Add(7 * 24 * time.Hour)
	if got := s.timingAdvantage(ctx, "m1", mid.Add(-time.Hour), mid); got != 4 {
		t.Errorf("expected 4 for mid-life short-span entry, got %f", got)
	}

	// Same entry point held for four days earns the patience bonus: 6.
	if got := s.timingAdvantage(ctx, "m1", mid.Add(-4*24*time.Hour), mid); got != 6 {
		t.Errorf("expected 6 with patience bonus, got %f", got)
	}

	// Trading past the lifetime clamps at 0 before the span adjustment.
	late := created.Add(15 * 24 * time.Hour)
	if got := s.timingAdvantage(ctx, "m1", late.Add(-time.Hour), late); got != 0 {
		t.Errorf("expected 0 past lifetime, got %f", got)
	}
}

func TestTimingAdvantage_UnknownMarketIsNeutral(t *testing.T) {
	s, _ := newTestScorer(t)
	if got := s.timingAdvantage(context.Background(), "missing", scorerBase, scorerBase); got != 5 {
		t.Errorf("expected neutral 5 for unknown market, got %f", got)
	}
}

func TestMarketImpact_NoPostEventTrades(t *testing.T) {
	s, stores := newTestScorer(t)
	ctx := context.Background()

	seedTrade(t, stores, "t1", "0xw", "m1", domain.TradeSideBuy, 100, 0.5, scorerBase.Add(-time.Hour))
	last := &domain.Trade{MarketID: "m1", Price: 0.5, Timestamp: scorerBase.Add(-time.Hour)}

	got, err := s.marketImpact(ctx, "m1", last)
	if err != nil {
		t.Fatalf("market impact: %v", err)
	}
	if got != 0 {
		t.Errorf("expected 0 impact without post-event trades, got %f", got)
	}
}

func TestMarketImpact_MeasuredMove(t *testing.T) {
	s, stores := newTestScorer(t)
	ctx := context.Background()

	event := scorerBase.Add(-8 * time.Hour)

	// Pre-event prices oscillate around 0.5 for a known stddev of 0.1.
	seedTrade(t, stores, "p1", "0xa", "m1", domain.TradeSideBuy, 100, 0.4, event.Add(-3*time.Hour))
	seedTrade(t, stores, "p2", "0xa", "m1", domain.TradeSideBuy, 100, 0.6, event.Add(-2*time.Hour))
	seedTrade(t, stores, "p3", "0xa", "m1", domain.TradeSideBuy, 100, 0.4, event.Add(-90*time.Minute))
	seedTrade(t, stores, "p4", "0xa", "m1", domain.TradeSideBuy, 100, 0.6, event.Add(-time.Hour))

	// Price 6.5 hours later sits at 0.7: |0.7−0.5| / 0.1 × 5 = 10.
	seedTrade(t, stores, "after", "0xb", "m1", domain.TradeSideBuy, 100, 0.7, event.Add(impactDelay+30*time.Minute))

	last := &domain.Trade{MarketID: "m1", Price: 0.5, Timestamp: event}
	got, err := s.marketImpact(ctx, "m1", last)
	if err != nil {
		t.Fatalf("market impact: %v", err)
	}
	if math.Abs(got-10) > 1e-9 {
		t.Errorf("expected 10, got %f", got)
	}
}

func TestToStoredScore(t *testing.T) {
	cases := []struct {
		in   float64
		want int
	}{
		{0, 0},
		{6.6107, 66},
		{10, 100},
		{12.5, 100},
		{-3, 0},
	}
	for _, c := range cases {
		if got := toStoredScore(c.in); got != c.want {
			t.Errorf("toStoredScore(%f) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestScorer_Run_AppendsToLedger(t *testing.T) {
	s, stores := newTestScorer(t)
	ctx := context.Background()

	seedTrade(t, stores, "t1", "0xw", "m1", domain.TradeSideBuy, 4000, 0.5, scorerBase.Add(-time.Hour))

	if err := s.Run(ctx); err != nil {
		t.Fatalf("scoring pass: %v", err)
	}

	first, err := stores.Scores.LatestByPair(ctx, "0xw", "m1")
	if err != nil {
		t.Fatalf("fetch score: %v", err)
	}
	if first.Score < 0 || first.Score > 100 {
		t.Errorf("score outside storage scale: %d", first.Score)
	}

	// A second pass appends; history is never overwritten.
	s.now = func() time.Time { return scorerBase.Add(time.Minute) }
	if err := s.Run(ctx); err != nil {
		t.Fatalf("second scoring pass: %v", err)
	}

	ledger, err := stores.Scores.GetByPairRange(ctx, "0xw", "m1",
		scorerBase.Add(-time.Hour), scorerBase.Add(time.Hour))
	if err != nil {
		t.Fatalf("fetch ledger: %v", err)
	}
	if len(ledger) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(ledger))
	}
}

func TestPriceStddev(t *testing.T) {
	trades := []*domain.Trade{
		{Price: 0.4}, {Price: 0.6}, {Price: 0.4}, {Price: 0.6},
	}
	if got := priceStddev(trades); math.Abs(got-0.1) > 1e-9 {
		t.Errorf("expected stddev 0.1, got %f", got)
	}
	if got := priceStddev(trades[:1]); got != 0 {
		t.Errorf("expected 0 for single trade, got %f", got)
	}
}
