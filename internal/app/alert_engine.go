package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"whalewatch/clients/telegram"
	"whalewatch/config"
	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// sentIDsLimit bounds the process-lifetime dedup set. When it fills up the
// whole set is cleared; the boot-time filter keeps that from causing
// redelivery storms.
const sentIDsLimit = 10_000

// messageSender is the notification channel the engine dispatches through.
// telegram.Client satisfies it.
type messageSender interface {
	Enabled() bool
	SendMessage(ctx context.Context, chatID, text string) error
}

// opsNotifier receives a plain-text copy of each dispatched alert for the
// team. discord.Client satisfies it.
type opsNotifier interface {
	SendMessage(message string)
}

// AlertEngine owns the delivery side of the pipeline: it reads persisted
// alerts, applies tier and rate rules, formats messages, and synthesizes
// conviction signals from clusters of agreeing wallets.
//
// Dispatch state is process-memory only. Alerts created before this process
// booted are never dispatched by it, which keeps restarts from resending.
type AlertEngine struct {
	logger *zap.Logger
	cfg    config.AlertsConfig
	stores *storage.Stores
	sender messageSender
	ops    opsNotifier
	titles *titleResolver

	bootTime time.Time
	now      func() time.Time
	sleep    func(time.Duration)

	mu             sync.Mutex
	sentIDs        map[int64]struct{}
	marketLastSent map[string]time.Time
}

func NewAlertEngine(logger *zap.Logger, cfg config.AlertsConfig, stores *storage.Stores, sender messageSender, ops opsNotifier, titles *titleResolver) *AlertEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertEngine{
		logger:         logger,
		cfg:            cfg,
		stores:         stores,
		sender:         sender,
		ops:            ops,
		titles:         titles,
		bootTime:       time.Now().UTC(),
		now:            time.Now,
		sleep:          time.Sleep,
		sentIDs:        make(map[int64]struct{}),
		marketLastSent: make(map[string]time.Time),
	}
}

// Dispatch runs one delivery pass over recently created alerts.
func (e *AlertEngine) Dispatch(ctx context.Context) error {
	now := e.now().UTC()

	since := now.Add(-e.cfg.DispatchWindow)
	if e.bootTime.After(since) {
		since = e.bootTime
	}

	alerts, err := e.stores.Alerts.GetSince(ctx, since)
	if err != nil {
		return fmt.Errorf("fetch dispatchable alerts: %w", err)
	}
	if len(alerts) == 0 {
		return nil
	}

	subs, err := e.stores.Subscribers.GetActive(ctx)
	if err != nil {
		return fmt.Errorf("fetch subscribers: %w", err)
	}

	// One pass never sends two conviction alerts for the same title, even
	// when distinct market ids resolve to it.
	convictionTitles := make(map[string]struct{})

	dispatched := 0
	for _, a := range alerts {
		if e.alreadySent(a.ID) {
			continue
		}
		if a.Type != domain.AlertTypeConviction && a.Notional() < e.cfg.MinNotionalUSD {
			// Noise, not an error.
			continue
		}
		if e.marketRateLimited(a.MarketID, now) {
			// Leave unsent; a later pass may pick it up once the
			// market's limit window passes.
			continue
		}

		title := placeholderTitle(a.MarketID)
		if e.titles != nil {
			title = e.titles.Resolve(ctx, a.MarketID)
		}

		if a.Type == domain.AlertTypeConviction {
			key := normalizeTitle(title)
			if _, dup := convictionTitles[key]; dup {
				e.markSent(a.ID)
				continue
			}
			convictionTitles[key] = struct{}{}
		}

		e.deliver(ctx, a, title, subs, now)
		e.mirror(a, title)
		e.markSent(a.ID)
		e.noteMarketDispatch(a.MarketID, now)
		dispatched++
	}

	if dispatched > 0 {
		e.logger.Info("dispatch pass complete",
			zap.Int("alerts", dispatched),
			zap.Int("subscribers", len(subs)))
	}
	return nil
}

// deliver sends one alert to every eligible recipient, serialized with a
// throttle delay. Recipient failures never abort the loop.
func (e *AlertEngine) deliver(ctx context.Context, a *domain.Alert, title string, subs []*domain.Subscriber, now time.Time) {
	if e.sender == nil || !e.sender.Enabled() {
		return
	}

	sentAny := false
	for _, sub := range subs {
		tier := sub.EffectiveTier(now)

		if a.Type == domain.AlertTypeConviction && tier != domain.TierElite {
			continue
		}
		if tier == domain.TierFree && now.Sub(a.CreatedAt) < e.cfg.FreeDelay {
			continue
		}

		if sentAny {
			e.sleep(e.cfg.SendThrottle)
		}

		msg := formatAlertMessage(a, title, now, messageOptions{
			ShowScore: tier != domain.TierFree,
			Extended:  tier == domain.TierElite,
		})

		if err := e.send(ctx, sub.ChatID, msg); err != nil {
			e.logger.Error("alert delivery failed",
				zap.Int64("alertID", a.ID),
				zap.String("chatID", sub.ChatID),
				zap.Error(err))
			continue
		}
		sentAny = true
	}
}

// mirror posts a one-line copy of a dispatched alert to the ops channel.
func (e *AlertEngine) mirror(a *domain.Alert, title string) {
	if e.ops == nil {
		return
	}
	line := fmt.Sprintf("[%s] %s", a.Type, title)
	if a.Type == domain.AlertTypeConviction {
		line += fmt.Sprintf(" | %d wallets | score %d", a.TxCount, a.Score)
	} else {
		line += fmt.Sprintf(" | %s %s @ %.3f | %s | score %d",
			a.Side, formatUSD(a.Notional()), a.Price, shortAddress(a.Wallet), a.Score)
	}
	e.ops.SendMessage(line)
}

// send pushes one message, retrying exactly once after a provider throttle
// with the provider-specified backoff plus a second of slack.
func (e *AlertEngine) send(ctx context.Context, chatID, msg string) error {
	err := e.sender.SendMessage(ctx, chatID, msg)
	if err == nil {
		return nil
	}

	var throttled *telegram.ThrottledError
	if !errors.As(err, &throttled) {
		return err
	}

	e.logger.Warn("provider throttled, backing off",
		zap.String("chatID", chatID),
		zap.Duration("retryAfter", throttled.RetryAfter))
	e.sleep(throttled.RetryAfter + time.Second)

	return e.sender.SendMessage(ctx, chatID, msg)
}

// SynthesizeConviction groups recent high-score alerts by market title and
// persists one synthetic alert per cluster of independently agreeing wallets.
func (e *AlertEngine) SynthesizeConviction(ctx context.Context) error {
	now := e.now().UTC()

	alerts, err := e.stores.Alerts.GetScoredSince(ctx, now.Add(-e.cfg.ConvictionWindow), e.cfg.ConvictionMinScore)
	if err != nil {
		return fmt.Errorf("fetch scored alerts: %w", err)
	}

	type group struct {
		marketID string
		wallets  map[string]struct{}
		scoreSum int
		count    int
	}
	groups := make(map[string]*group)
	for _, a := range alerts {
		if a.Type == domain.AlertTypeConviction || a.Wallet == domain.GroupWallet {
			continue
		}

		key := a.MarketID
		if e.titles != nil {
			if title := e.titles.Resolve(ctx, a.MarketID); normalizeTitle(title) != "" {
				key = normalizeTitle(title)
			}
		}

		g := groups[key]
		if g == nil {
			g = &group{marketID: a.MarketID, wallets: make(map[string]struct{})}
			groups[key] = g
		}
		g.wallets[a.Wallet] = struct{}{}
		g.scoreSum += a.Score
		g.count++
	}

	suppressed, err := e.suppressedTitles(ctx, now)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	created := 0
	for _, key := range keys {
		g := groups[key]
		if len(g.wallets) < e.cfg.ConvictionWallets {
			continue
		}
		avg := float64(g.scoreSum) / float64(g.count)
		if avg < float64(e.cfg.ConvictionMinScore) {
			continue
		}
		if _, dup := suppressed[key]; dup {
			continue
		}

		alert := &domain.Alert{
			Wallet:    domain.GroupWallet,
			MarketID:  g.marketID,
			Type:      domain.AlertTypeConviction,
			Score:     int(math.Round(avg)),
			TxCount:   len(g.wallets),
			CreatedAt: now,
		}
		if err := e.stores.Alerts.Insert(ctx, alert); err != nil {
			e.logger.Error("conviction alert persist failed",
				zap.String("marketID", shortID(g.marketID)), zap.Error(err))
			continue
		}
		created++
	}

	if created > 0 {
		e.logger.Info("conviction synthesis complete",
			zap.Int("groups", len(groups)),
			zap.Int("created", created))
	}
	return nil
}

// suppressedTitles collects normalized titles that already received a
// conviction alert inside the suppression window, keeping re-runs idempotent.
func (e *AlertEngine) suppressedTitles(ctx context.Context, now time.Time) (map[string]struct{}, error) {
	existing, err := e.stores.Alerts.GetByTypeSince(ctx, domain.AlertTypeConviction, now.Add(-e.cfg.ConvictionSuppress))
	if err != nil {
		return nil, fmt.Errorf("fetch recent conviction alerts: %w", err)
	}

	out := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		key := a.MarketID
		if e.titles != nil {
			if title := e.titles.Resolve(ctx, a.MarketID); normalizeTitle(title) != "" {
				key = normalizeTitle(title)
			}
		}
		out[key] = struct{}{}
	}
	return out, nil
}

func (e *AlertEngine) alreadySent(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sentIDs[id]
	return ok
}

func (e *AlertEngine) markSent(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sentIDs) >= sentIDsLimit {
		e.sentIDs = make(map[int64]struct{})
	}
	e.sentIDs[id] = struct{}{}
}

func (e *AlertEngine) marketRateLimited(marketID string, now time.Time) bool {
	if e.cfg.MarketRateLimit <= 0 {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	last, ok := e.marketLastSent[marketID]
	return ok && now.Sub(last) < e.cfg.MarketRateLimit
}

func (e *AlertEngine) noteMarketDispatch(marketID string, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.marketLastSent[marketID] = now
}
