package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"whalewatch/config"
	"whalewatch/internal/storage"
)

// titleCacheLimit bounds the resolver's in-memory title cache between
// cleanup passes.
const titleCacheLimit = 5000

// Cleaner prunes time-series data past its retention window and trims the
// in-memory title cache. Only orderbook snapshots are pruned from storage;
// trades, alerts, and scores are kept as history.
type Cleaner struct {
	logger *zap.Logger
	cfg    config.CleanupConfig
	stores *storage.Stores
	titles *titleResolver

	now func() time.Time
}

func NewCleaner(logger *zap.Logger, cfg config.CleanupConfig, stores *storage.Stores, titles *titleResolver) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{
		logger: logger,
		cfg:    cfg,
		stores: stores,
		titles: titles,
		now:    time.Now,
	}
}

// Run deletes snapshots older than the retention cutoff.
func (c *Cleaner) Run(ctx context.Context) error {
	cutoff := c.now().UTC().Add(-c.cfg.OrderbookRetention)

	removed, err := c.stores.Orderbooks.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune orderbook snapshots: %w", err)
	}
	if removed > 0 {
		c.logger.Info("pruned orderbook snapshots",
			zap.Int("removed", removed),
			zap.Time("cutoff", cutoff))
	}

	if c.titles != nil {
		if evicted := c.titles.evictCache(titleCacheLimit); evicted > 0 {
			c.logger.Info("cleared title cache", zap.Int("entries", evicted))
		}
	}
	return nil
}
