package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"whalewatch/config"
	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// Heuristic score hints attached to freshly detected alerts. These are not
// the composite whale score; the scorer recomputes that on its own cadence.
const (
	scoreHintBuild      = 80
	scoreHintExit       = 82
	scoreHintSpike      = 85
	scoreHintDepthShock = 88
)

// pairKey groups trades by the (wallet, market) pair that drives both
// detection and scoring.
type pairKey struct {
	Wallet   string
	MarketID string
}

// Detector scans a recent trade window per (wallet, market) pair and turns
// abnormal capital behavior into candidate alerts.
type Detector struct {
	logger *zap.Logger
	cfg    config.DetectorConfig
	stores *storage.Stores

	now func() time.Time
}

func NewDetector(logger *zap.Logger, cfg config.DetectorConfig, stores *storage.Stores) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		logger: logger,
		cfg:    cfg,
		stores: stores,
		now:    time.Now,
	}
}

// Run executes one detection pass over the trailing trade window. A failure
// in one pair's classification is logged and skipped; only the initial trade
// fetch is fatal for the pass.
func (d *Detector) Run(ctx context.Context) error {
	now := d.now().UTC()

	trades, err := d.stores.Trades.GetSince(ctx, now.Add(-d.cfg.TradeWindow))
	if err != nil {
		return fmt.Errorf("fetch trade window: %w", err)
	}
	if len(trades) == 0 {
		return nil
	}

	pairs := make(map[pairKey][]*domain.Trade)
	markets := make(map[string][]*domain.Trade)
	for _, t := range trades {
		k := pairKey{Wallet: t.Wallet, MarketID: t.MarketID}
		pairs[k] = append(pairs[k], t)
		markets[t.MarketID] = append(markets[t.MarketID], t)
	}

	keys := make([]pairKey, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Wallet != keys[j].Wallet {
			return keys[i].Wallet < keys[j].Wallet
		}
		return keys[i].MarketID < keys[j].MarketID
	})

	emitted := 0
	for _, k := range keys {
		candidates := d.classifyPair(ctx, k, pairs[k], markets[k.MarketID], now)
		for _, c := range candidates {
			created, err := d.persist(ctx, c, now)
			if err != nil {
				d.logger.Error("alert persist failed",
					zap.String("wallet", shortAddress(k.Wallet)),
					zap.String("marketID", shortID(k.MarketID)),
					zap.String("type", string(c.Type)),
					zap.Error(err))
				continue
			}
			if created {
				emitted++
			}
		}
	}

	d.logger.Info("detection pass complete",
		zap.Int("trades", len(trades)),
		zap.Int("pairs", len(pairs)),
		zap.Int("alerts", emitted))
	return nil
}

// classifyPair applies every rule to one (wallet, market) group. Trades
// arrive sorted ascending by time. A pair may yield zero, one, or several
// alerts of different types in one pass.
func (d *Detector) classifyPair(ctx context.Context, k pairKey, pairTrades, marketTrades []*domain.Trade, now time.Time) []*domain.Alert {
	var out []*domain.Alert

	if eligible, t := d.whaleEligible(pairTrades); eligible {
		d.logger.Debug("whale-eligible pair",
			zap.String("wallet", shortAddress(k.Wallet)),
			zap.String("marketID", shortID(k.MarketID)),
			zap.Float64("notional", t.Notional()))
	}

	recent := tradesAfter(pairTrades, now.Add(-d.cfg.PairWindow))

	if a := d.checkBuild(k, recent, domain.TradeSideBuy); a != nil {
		out = append(out, a)
	}
	if a := d.checkBuild(k, recent, domain.TradeSideSell); a != nil {
		out = append(out, a)
	}
	if a := d.checkExit(k, recent); a != nil {
		out = append(out, a)
	}
	if a := d.checkSpike(ctx, k, pairTrades, marketTrades, recent, now); a != nil {
		out = append(out, a)
	}

	return out
}

// whaleEligible reports whether any single trade in the window clears the
// large-trade threshold. It unlocks scrutiny of the pair but never emits an
// alert by itself.
func (d *Detector) whaleEligible(trades []*domain.Trade) (bool, *domain.Trade) {
	for _, t := range trades {
		if t.Notional() >= d.cfg.SingleTradeUSD {
			return true, t
		}
	}
	return false, nil
}

// checkBuild detects accumulation: enough same-side trades with enough total
// value inside the trailing pair window. The emitted alert carries the last
// qualifying trade's size and price.
func (d *Detector) checkBuild(k pairKey, recent []*domain.Trade, side domain.TradeSide) *domain.Alert {
	var (
		count int
		total float64
		last  *domain.Trade
	)
	for _, t := range recent {
		if t.Side != side {
			continue
		}
		count++
		total += t.Notional()
		last = t
	}
	if count < d.cfg.BuildMinTrades || total < d.cfg.BuildMinUSD {
		return nil
	}

	return &domain.Alert{
		Wallet:   k.Wallet,
		MarketID: k.MarketID,
		Type:     domain.AlertTypeBuild,
		Score:    scoreHintBuild,
		Amount:   last.Amount,
		Price:    last.Price,
		Side:     side,
		TxCount:  count,
	}
}

// checkExit detects a meaningful unwind: sell share-volume at least half of
// buy share-volume inside the window, with the sells worth real money.
func (d *Detector) checkExit(k pairKey, recent []*domain.Trade) *domain.Alert {
	var (
		buyShares  float64
		sellShares float64
		sellUSD    float64
		sellCount  int
		lastSell   *domain.Trade
	)
	for _, t := range recent {
		switch t.Side {
		case domain.TradeSideBuy:
			buyShares += t.Amount
		case domain.TradeSideSell:
			sellShares += t.Amount
			sellUSD += t.Notional()
			sellCount++
			lastSell = t
		}
	}
	// Without buys in the window there is no position being exited.
	if buyShares <= 0 || lastSell == nil {
		return nil
	}
	if sellShares < d.cfg.ExitVolumeRatio*buyShares || sellUSD < d.cfg.ExitMinUSD {
		return nil
	}

	return &domain.Alert{
		Wallet:   k.Wallet,
		MarketID: k.MarketID,
		Type:     domain.AlertTypeExit,
		Score:    scoreHintExit,
		Amount:   lastSell.Amount,
		Price:    lastSell.Price,
		Side:     domain.TradeSideSell,
		TxCount:  sellCount,
	}
}

// checkSpike detects abnormal short-window market volume that the wallet
// participated in, then upgrades the hint when the wallet's last trade also
// consumed a large fraction of visible book depth. Both conditions share one
// spike alert per pass so the pair-level dedup invariant holds.
func (d *Detector) checkSpike(ctx context.Context, k pairKey, pairTrades, marketTrades, recent []*domain.Trade, now time.Time) *domain.Alert {
	spikeStart := now.Add(-d.cfg.SpikeWindow)

	var marketSpikeUSD, marketWindowUSD float64
	for _, t := range marketTrades {
		marketWindowUSD += t.Notional()
		if !t.Timestamp.Before(spikeStart) {
			marketSpikeUSD += t.Notional()
		}
	}

	buckets := float64(d.cfg.TradeWindow) / float64(d.cfg.SpikeWindow)
	if buckets <= 0 {
		return nil
	}
	avgSpikeUSD := marketWindowUSD / buckets

	var (
		walletSpikeCount int
		walletSpikeLast  *domain.Trade
	)
	for _, t := range pairTrades {
		if !t.Timestamp.Before(spikeStart) {
			walletSpikeCount++
			walletSpikeLast = t
		}
	}

	volumeSpike := marketSpikeUSD > d.cfg.SpikeMultiplier*avgSpikeUSD &&
		marketSpikeUSD >= d.cfg.SpikeMinUSD &&
		walletSpikeLast != nil

	shockTrade := d.depthShockTrade(ctx, k, pairTrades, recent)

	switch {
	case shockTrade != nil:
		count := walletSpikeCount
		if count == 0 {
			count = 1
		}
		return &domain.Alert{
			Wallet:   k.Wallet,
			MarketID: k.MarketID,
			Type:     domain.AlertTypeSpike,
			Score:    scoreHintDepthShock,
			Amount:   shockTrade.Amount,
			Price:    shockTrade.Price,
			Side:     shockTrade.Side,
			TxCount:  count,
		}
	case volumeSpike:
		return &domain.Alert{
			Wallet:   k.Wallet,
			MarketID: k.MarketID,
			Type:     domain.AlertTypeSpike,
			Score:    scoreHintSpike,
			Amount:   walletSpikeLast.Amount,
			Price:    walletSpikeLast.Price,
			Side:     walletSpikeLast.Side,
			TxCount:  walletSpikeCount,
		}
	}
	return nil
}

// depthShockTrade returns the wallet's last trade when its size is a large
// fraction of the latest visible book depth for the market, inferring the
// traded outcome from the majority side of the wallet's recent activity.
func (d *Detector) depthShockTrade(ctx context.Context, k pairKey, pairTrades, recent []*domain.Trade) *domain.Trade {
	if len(pairTrades) == 0 {
		return nil
	}
	last := pairTrades[len(pairTrades)-1]

	var buys, sells int
	for _, t := range recent {
		if t.Side == domain.TradeSideBuy {
			buys++
		} else {
			sells++
		}
	}
	if buys == 0 && sells == 0 {
		return nil
	}

	snap, err := d.stores.Orderbooks.Latest(ctx, k.MarketID, "")
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			d.logger.Warn("orderbook lookup failed",
				zap.String("marketID", shortID(k.MarketID)), zap.Error(err))
		}
		return nil
	}
	if snap.TotalDepthUSD <= 0 {
		return nil
	}
	if last.Amount < d.cfg.DepthShockRatio*snap.TotalDepthUSD {
		return nil
	}
	return last
}

// persist writes one candidate alert unless an alert with the same
// (wallet, market, type) already exists inside the dedup window. A dedup hit
// is a silent skip, not an error.
func (d *Detector) persist(ctx context.Context, a *domain.Alert, now time.Time) (bool, error) {
	since := now.Add(-d.cfg.DedupWindow)
	exists, err := d.stores.Alerts.ExistsRecent(ctx, a.Wallet, a.MarketID, a.Type, since)
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	if exists {
		d.logger.Debug("duplicate alert suppressed",
			zap.String("wallet", shortAddress(a.Wallet)),
			zap.String("marketID", shortID(a.MarketID)),
			zap.String("type", string(a.Type)))
		return false, nil
	}

	a.CreatedAt = now
	if err := d.stores.Alerts.Insert(ctx, a); err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}

	d.logger.Info("alert created",
		zap.Int64("id", a.ID),
		zap.String("wallet", shortAddress(a.Wallet)),
		zap.String("marketID", shortID(a.MarketID)),
		zap.String("type", string(a.Type)),
		zap.Float64("notional", a.Notional()))
	return true, nil
}

// tradesAfter returns the suffix of time-sorted trades at or after cutoff.
func tradesAfter(trades []*domain.Trade, cutoff time.Time) []*domain.Trade {
	idx := sort.Search(len(trades), func(i int) bool {
		return !trades[i].Timestamp.Before(cutoff)
	})
	return trades[idx:]
}
