package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"whalewatch/clients/gamma"
	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// titleValidator reports whether a stored market title is usable. Stale rows
// from earlier metadata refreshes can carry dead titles that should be
// discarded and re-resolved instead of shown to users.
type titleValidator func(title string) bool

// staleTitleMarkers match titles known to be left over from dead metadata.
var staleTitleMarkers = []string{
	"[archived]",
	"[deleted]",
	"(archived)",
}

func defaultTitleValidator(title string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return false
	}
	if strings.HasPrefix(t, "market ") && len(t) <= len("market ")+16 {
		// Our own fallback placeholder; never treat it as a real title.
		return false
	}
	for _, marker := range staleTitleMarkers {
		if strings.Contains(t, marker) {
			return false
		}
	}
	return true
}

// titleResolver maps market ids to display titles through a layered lookup:
// in-memory cache, metadata store, live Gamma fetch, then a placeholder.
type titleResolver struct {
	logger  *zap.Logger
	markets storage.MarketStore
	gamma   *gamma.Client
	valid   titleValidator

	mu    sync.Mutex
	cache map[string]string
}

func newTitleResolver(logger *zap.Logger, markets storage.MarketStore, gammaClient *gamma.Client) *titleResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &titleResolver{
		logger:  logger,
		markets: markets,
		gamma:   gammaClient,
		valid:   defaultTitleValidator,
		cache:   make(map[string]string),
	}
}

// Resolve never fails: when every layer comes up empty it returns a
// placeholder derived from the market id.
func (r *titleResolver) Resolve(ctx context.Context, marketID string) string {
	r.mu.Lock()
	cached, ok := r.cache[marketID]
	r.mu.Unlock()
	if ok && r.valid(cached) {
		return cached
	}

	if title := r.fromStore(ctx, marketID); title != "" {
		r.remember(marketID, title)
		return title
	}

	if title := r.fromGamma(ctx, marketID); title != "" {
		r.remember(marketID, title)
		return title
	}

	return placeholderTitle(marketID)
}

func (r *titleResolver) fromStore(ctx context.Context, marketID string) string {
	if r.markets == nil {
		return ""
	}
	m, err := r.markets.GetByID(ctx, marketID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.logger.Warn("market lookup failed", zap.String("marketID", shortID(marketID)), zap.Error(err))
		}
		return ""
	}
	if !r.valid(m.Title) {
		return ""
	}
	return m.Title
}

func (r *titleResolver) fromGamma(ctx context.Context, marketID string) string {
	if r.gamma == nil {
		return ""
	}
	m, err := r.gamma.GetMarketByTokenID(ctx, marketID)
	if err != nil {
		r.logger.Warn("live title fetch failed", zap.String("marketID", shortID(marketID)), zap.Error(err))
		return ""
	}
	if m == nil || !r.valid(m.Question) {
		return ""
	}

	// Persist what we fetched so the next resolver instance starts warm.
	if r.markets != nil {
		row := &domain.Market{
			ID:        marketID,
			Title:     m.Question,
			Category:  m.Category,
			Status:    domain.MarketStatusActive,
			CreatedAt: m.GetStartTime(),
		}
		if m.Closed {
			row.Status = domain.MarketStatusResolved
			if closed := m.GetClosedTime(); !closed.IsZero() {
				row.ResolvedAt = &closed
			}
		}
		if err := r.markets.Upsert(ctx, row); err != nil {
			r.logger.Warn("market cache write failed", zap.String("marketID", shortID(marketID)), zap.Error(err))
		}
	}
	return m.Question
}

// evictCache clears the in-memory title cache once it exceeds max entries.
// The store and Gamma layers refill it on demand, so a full clear is cheap.
func (r *titleResolver) evictCache(max int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cache) <= max {
		return 0
	}
	n := len(r.cache)
	r.cache = make(map[string]string)
	return n
}

func (r *titleResolver) remember(marketID, title string) {
	r.mu.Lock()
	r.cache[marketID] = title
	r.mu.Unlock()
}

func placeholderTitle(marketID string) string {
	return fmt.Sprintf("Market %s", shortID(marketID))
}

// normalizeTitle collapses a title to a comparison key for grouping alerts
// that reference the same logical market through different token ids.
func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(title))), " ")
}
