package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

func TestProfileStore_UpsertOverwrites(t *testing.T) {
	store := NewProfileStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Upsert(ctx, &domain.WhaleProfile{
		Wallet: "0xabc", TotalVolume: 5000, WinRate: 0.5, AvgSize: 100, MarketsCount: 4, UpdatedAt: now,
	}))
	require.NoError(t, store.Upsert(ctx, &domain.WhaleProfile{
		Wallet: "0xabc", TotalVolume: 8000, WinRate: 0.6, AvgSize: 120, MarketsCount: 6, UpdatedAt: now.Add(time.Hour),
	}))

	p, err := store.GetByWallet(ctx, "0xabc")
	require.NoError(t, err)
	assert.InDelta(t, 8000.0, p.TotalVolume, 0.0001)
	assert.Equal(t, 6, p.MarketsCount)
}

func TestProfileStore_GetMissing(t *testing.T) {
	store := NewProfileStore()
	_, err := store.GetByWallet(context.Background(), "0xnobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScoreStore_LatestByPair(t *testing.T) {
	store := NewScoreStore()
	ctx := context.Background()
	now := time.Now().UTC()

	for i, score := range []int{40, 70, 55} {
		ts := now.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.Insert(ctx,
			&domain.WhaleScore{Wallet: "0xabc", MarketID: "m1", Score: score, CalculatedAt: ts},
			&domain.WhaleScoreBreakdown{Wallet: "0xabc", MarketID: "m1", CalculatedAt: ts},
		))
	}

	latest, err := store.LatestByPair(ctx, "0xabc", "m1")
	require.NoError(t, err)
	assert.Equal(t, 55, latest.Score)

	_, err = store.LatestByPair(ctx, "0xabc", "m2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScoreStore_GetByPairRange(t *testing.T) {
	store := NewScoreStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.Insert(ctx,
			&domain.WhaleScore{Wallet: "0xabc", MarketID: "m1", Score: 50 + i, CalculatedAt: ts},
			&domain.WhaleScoreBreakdown{Wallet: "0xabc", MarketID: "m1", CalculatedAt: ts},
		))
	}

	// [start, end): the entry at base+2h is excluded
	scores, err := store.GetByPairRange(ctx, "0xabc", "m1", base, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, 50, scores[0].Score)
	assert.Equal(t, 51, scores[1].Score)
}

func TestOrderbookStore_LatestAndPrune(t *testing.T) {
	store := NewOrderbookStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Insert(ctx, &domain.OrderbookSnapshot{
			MarketID:      "m1",
			OutcomeLabel:  "Yes",
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			BidDepthUSD:   1000,
			AskDepthUSD:   2000,
			TotalDepthUSD: 3000 + float64(i),
		}))
	}

	snap, err := store.Latest(ctx, "m1", "Yes")
	require.NoError(t, err)
	assert.InDelta(t, 3002.0, snap.TotalDepthUSD, 0.0001)

	_, err = store.Latest(ctx, "m1", "No")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	removed, err := store.DeleteOlderThan(ctx, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	snap, err = store.Latest(ctx, "m1", "Yes")
	require.NoError(t, err)
	assert.InDelta(t, 3002.0, snap.TotalDepthUSD, 0.0001)
}
