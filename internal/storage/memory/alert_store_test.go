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

func TestAlertStore_InsertAssignsID(t *testing.T) {
	store := NewAlertStore()
	ctx := context.Background()
	now := time.Now().UTC()

	a := &domain.Alert{
		Wallet:    "0xabc",
		MarketID:  "m1",
		Type:      domain.AlertTypeBuild,
		Score:     72,
		Amount:    1000,
		Price:     0.4,
		Side:      domain.TradeSideBuy,
		TxCount:   3,
		CreatedAt: now,
	}
	require.NoError(t, store.Insert(ctx, a))
	assert.Equal(t, int64(1), a.ID)

	b := &domain.Alert{
		Wallet:    "0xdef",
		MarketID:  "m2",
		Type:      domain.AlertTypeExit,
		CreatedAt: now,
	}
	require.NoError(t, store.Insert(ctx, b))
	assert.Equal(t, int64(2), b.ID)
}

func TestAlertStore_ExistsRecent(t *testing.T) {
	store := NewAlertStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Insert(ctx, &domain.Alert{
		Wallet:    "0xabc",
		MarketID:  "m1",
		Type:      domain.AlertTypeBuild,
		CreatedAt: now.Add(-20 * time.Minute),
	}))

	ok, err := store.ExistsRecent(ctx, "0xabc", "m1", domain.AlertTypeBuild, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	// outside the window
	ok, err = store.ExistsRecent(ctx, "0xabc", "m1", domain.AlertTypeBuild, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	// different type on the same pair
	ok, err = store.ExistsRecent(ctx, "0xabc", "m1", domain.AlertTypeExit, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAlertStore_GetScoredSince(t *testing.T) {
	store := NewAlertStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Insert(ctx, &domain.Alert{
		Wallet: "0xaaa", MarketID: "m1", Type: domain.AlertTypeBuild, Score: 80, CreatedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, store.Insert(ctx, &domain.Alert{
		Wallet: "0xbbb", MarketID: "m1", Type: domain.AlertTypeBuild, Score: 60, CreatedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, store.Insert(ctx, &domain.Alert{
		Wallet: "0xccc", MarketID: "m1", Type: domain.AlertTypeBuild, Score: 90, CreatedAt: now.Add(-72 * time.Hour),
	}))

	alerts, err := store.GetScoredSince(ctx, now.Add(-48*time.Hour), 75)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "0xaaa", alerts[0].Wallet)
}

func TestAlertStore_GetByTypeSince(t *testing.T) {
	store := NewAlertStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Insert(ctx, &domain.Alert{
		Wallet: domain.GroupWallet, MarketID: "m1", Type: domain.AlertTypeConviction, CreatedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, store.Insert(ctx, &domain.Alert{
		Wallet: "0xaaa", MarketID: "m1", Type: domain.AlertTypeBuild, CreatedAt: now.Add(-time.Hour),
	}))

	alerts, err := store.GetByTypeSince(ctx, domain.AlertTypeConviction, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.GroupWallet, alerts[0].Wallet)
}

func TestSubscriberStore_UpsertAndGetActive(t *testing.T) {
	store := NewSubscriberStore()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &domain.Subscriber{ChatID: "100", Tier: domain.TierFree, Active: true}))
	require.NoError(t, store.Upsert(ctx, &domain.Subscriber{ChatID: "200", Tier: domain.TierElite, Active: true}))
	require.NoError(t, store.Upsert(ctx, &domain.Subscriber{ChatID: "300", Tier: domain.TierPro, Active: false}))

	// re-upsert keeps the original id
	require.NoError(t, store.Upsert(ctx, &domain.Subscriber{ChatID: "100", Tier: domain.TierPro, Active: true}))

	subs, err := store.GetActive(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "100", subs[0].ChatID)
	assert.Equal(t, domain.TierPro, subs[0].Tier)
	assert.Equal(t, "200", subs[1].ChatID)
}

func TestSubscriberStore_UpsertInvalid(t *testing.T) {
	store := NewSubscriberStore()
	err := store.Upsert(context.Background(), &domain.Subscriber{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
