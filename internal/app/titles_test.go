package app

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage/memory"
)

func TestDefaultTitleValidator(t *testing.T) {
	cases := []struct {
		title string
		want  bool
	}{
		{"Will BTC close above $100k?", true},
		{"", false},
		{"   ", false},
		{"Market 123456…abcdef", false},
		{"Some market [archived]", false},
		{"Old question [DELETED]", false},
	}
	for _, c := range cases {
		if got := defaultTitleValidator(c.title); got != c.want {
			t.Errorf("defaultTitleValidator(%q) = %v, want %v", c.title, got, c.want)
		}
	}
}

func TestTitleResolver_StoreHit(t *testing.T) {
	stores := memory.NewStores()
	ctx := context.Background()

	err := stores.Markets.Upsert(ctx, &domain.Market{
		ID: "m1", Title: "Will it rain tomorrow?", Status: domain.MarketStatusActive,
	})
	if err != nil {
		t.Fatalf("seed market: %v", err)
	}

	r := newTitleResolver(zap.NewNop(), stores.Markets, nil)
	if got := r.Resolve(ctx, "m1"); got != "Will it rain tomorrow?" {
		t.Errorf("expected stored title, got %q", got)
	}
}

func TestTitleResolver_CacheSurvivesStoreLoss(t *testing.T) {
	stores := memory.NewStores()
	ctx := context.Background()

	err := stores.Markets.Upsert(ctx, &domain.Market{
		ID: "m1", Title: "Cached question", Status: domain.MarketStatusActive,
	})
	if err != nil {
		t.Fatalf("seed market: %v", err)
	}

	r := newTitleResolver(zap.NewNop(), stores.Markets, nil)
	if got := r.Resolve(ctx, "m1"); got != "Cached question" {
		t.Fatalf("expected first resolve to hit the store, got %q", got)
	}

	// Point the resolver at an empty store; the cache still answers.
	r.markets = memory.NewMarketStore()
	if got := r.Resolve(ctx, "m1"); got != "Cached question" {
		t.Errorf("expected cache hit, got %q", got)
	}
}

func TestTitleResolver_StaleTitleFallsThrough(t *testing.T) {
	stores := memory.NewStores()
	ctx := context.Background()

	err := stores.Markets.Upsert(ctx, &domain.Market{
		ID: "m1", Title: "Dead market [archived]", Status: domain.MarketStatusResolved,
	})
	if err != nil {
		t.Fatalf("seed market: %v", err)
	}

	r := newTitleResolver(zap.NewNop(), stores.Markets, nil)
	got := r.Resolve(ctx, "m1")
	if !strings.HasPrefix(got, "Market ") {
		t.Errorf("expected placeholder for stale title, got %q", got)
	}
}

func TestTitleResolver_PlaceholderWhenUnknown(t *testing.T) {
	r := newTitleResolver(zap.NewNop(), memory.NewMarketStore(), nil)
	got := r.Resolve(context.Background(), "0123456789abcdef0123")
	if !strings.HasPrefix(got, "Market ") {
		t.Errorf("expected placeholder, got %q", got)
	}
}

func TestNormalizeTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Will BTC Close Above $100k?", "will btc close above $100k?"},
		{"  spaced   out\ttitle ", "spaced out title"},
		{"", ""},
	}
	for _, c := range cases {
		if got := normalizeTitle(c.in); got != c.want {
			t.Errorf("normalizeTitle(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
