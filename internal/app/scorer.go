package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"whalewatch/config"
	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// Composite weights. They sum to 1.0.
const (
	weightCapitalImpact      = 0.35
	weightTimingAdvantage    = 0.25
	weightHistoricalAccuracy = 0.20
	weightMarketImpact       = 0.20
)

const (
	capitalWindow     = 10 * time.Minute
	impactDelay       = 6 * time.Hour
	impactWindow      = time.Hour
	impactLookback    = 24 * time.Hour
	patienceSpan      = 72 * time.Hour
	hastySpan         = 24 * time.Hour
	lowSampleMarkets  = 5
	lowSampleScoreCap = 5.0
)

// Scorer computes the composite whale score for every (wallet, market) pair
// with recent activity. Scores append to a ledger; nothing is overwritten.
type Scorer struct {
	logger *zap.Logger
	cfg    config.ScorerConfig
	stores *storage.Stores

	now func() time.Time
}

func NewScorer(logger *zap.Logger, cfg config.ScorerConfig, stores *storage.Stores) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		logger: logger,
		cfg:    cfg,
		stores: stores,
		now:    time.Now,
	}
}

// Run scores every pair active inside the activity window. Per-pair failures
// are logged and skipped.
func (s *Scorer) Run(ctx context.Context) error {
	now := s.now().UTC()

	trades, err := s.stores.Trades.GetSince(ctx, now.Add(-s.cfg.ActivityWindow))
	if err != nil {
		return fmt.Errorf("fetch activity window: %w", err)
	}
	if len(trades) == 0 {
		return nil
	}

	pairs := make(map[pairKey][]*domain.Trade)
	marketUSD := make(map[string]float64)
	for _, t := range trades {
		k := pairKey{Wallet: t.Wallet, MarketID: t.MarketID}
		pairs[k] = append(pairs[k], t)
		marketUSD[t.MarketID] += t.Notional()
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

	scored := 0
	for _, k := range keys {
		if err := s.scorePair(ctx, k, pairs[k], marketUSD[k.MarketID], now); err != nil {
			s.logger.Error("pair scoring failed",
				zap.String("wallet", shortAddress(k.Wallet)),
				zap.String("marketID", shortID(k.MarketID)),
				zap.Error(err))
			continue
		}
		scored++
	}

	s.logger.Info("scoring pass complete",
		zap.Int("pairs", len(pairs)),
		zap.Int("scored", scored))
	return nil
}

func (s *Scorer) scorePair(ctx context.Context, k pairKey, pairTrades []*domain.Trade, marketUSD float64, now time.Time) error {
	last := pairTrades[len(pairTrades)-1]
	first := pairTrades[0]

	capital := capitalImpact(pairTrades, last.Timestamp, marketUSD)
	timing := s.timingAdvantage(ctx, k.MarketID, first.Timestamp, last.Timestamp)
	historical := s.historicalAccuracy(ctx, k.Wallet)
	impact, err := s.marketImpact(ctx, k.MarketID, last)
	if err != nil {
		return err
	}

	composite := capital*weightCapitalImpact +
		timing*weightTimingAdvantage +
		historical*weightHistoricalAccuracy +
		impact*weightMarketImpact

	score := &domain.WhaleScore{
		Wallet:       k.Wallet,
		MarketID:     k.MarketID,
		Score:        toStoredScore(composite),
		CalculatedAt: now,
	}
	breakdown := &domain.WhaleScoreBreakdown{
		Wallet:             k.Wallet,
		MarketID:           k.MarketID,
		CapitalImpact:      toStoredScore(capital),
		TimingAdvantage:    toStoredScore(timing),
		HistoricalAccuracy: toStoredScore(historical),
		MarketImpact:       toStoredScore(impact),
		CalculatedAt:       now,
	}

	if err := s.stores.Scores.Insert(ctx, score, breakdown); err != nil {
		return fmt.Errorf("append score: %w", err)
	}
	return nil
}

// capitalImpact compares the wallet's trailing short-window USD volume at
// its last trade against the market's whole-window USD volume, log-compressed
// onto the 0-10 scale.
func capitalImpact(pairTrades []*domain.Trade, at time.Time, marketUSD float64) float64 {
	if marketUSD <= 0 {
		return 0
	}
	start := at.Add(-capitalWindow)

	var walletUSD float64
	for _, t := range pairTrades {
		if t.Timestamp.Before(start) || t.Timestamp.After(at) {
			continue
		}
		walletUSD += t.Notional()
	}

	ratio := walletUSD / marketUSD
	return clamp(math.Log10(ratio*100+1)*5, 0, 10)
}

// timingAdvantage rewards entering early in a market's lifetime, nudged by
// how long the wallet has been working the position.
func (s *Scorer) timingAdvantage(ctx context.Context, marketID string, firstTrade, lastTrade time.Time) float64 {
	market, err := s.stores.Markets.GetByID(ctx, marketID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("market lookup failed",
				zap.String("marketID", shortID(marketID)), zap.Error(err))
		}
		// No lifecycle data: neither early nor late.
		return 5
	}

	end := market.CreatedAt.Add(s.cfg.DefaultLifetime)
	if market.ResolvedAt != nil {
		end = *market.ResolvedAt
	}
	lifetime := end.Sub(market.CreatedAt)
	if lifetime <= 0 {
		return 5
	}

	elapsed := lastTrade.Sub(market.CreatedAt)
	score := clamp((1-elapsed.Seconds()/lifetime.Seconds())*10, 0, 10)

	span := lastTrade.Sub(firstTrade)
	if span > patienceSpan {
		score++
	} else if span < hastySpan {
		score--
	}
	return clamp(score, 0, 10)
}

// historicalAccuracy scales the wallet's win rate by how many markets back
// it up. Wallets with thin history are capped regardless of win rate.
func (s *Scorer) historicalAccuracy(ctx context.Context, wallet string) float64 {
	profile, err := s.stores.Profiles.GetByWallet(ctx, wallet)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("profile lookup failed",
				zap.String("wallet", shortAddress(wallet)), zap.Error(err))
		}
		return 0
	}

	score := clamp(profile.WinRate*math.Log(float64(profile.MarketsCount)+1)*10, 0, 10)
	if profile.MarketsCount < lowSampleMarkets {
		score = math.Min(score, lowSampleScoreCap)
	}
	return score
}

// marketImpact measures how far the market price moved after the wallet's
// last trade, in units of the market's trailing price volatility. No trades
// in the post-event window means no measurable impact.
func (s *Scorer) marketImpact(ctx context.Context, marketID string, last *domain.Trade) (float64, error) {
	after, err := s.stores.Trades.GetByMarketRange(ctx, marketID,
		last.Timestamp.Add(impactDelay), last.Timestamp.Add(impactDelay+impactWindow))
	if err != nil {
		return 0, fmt.Errorf("fetch post-event trades: %w", err)
	}
	if len(after) == 0 {
		return 0, nil
	}

	var avgAfter float64
	for _, t := range after {
		avgAfter += t.Price
	}
	avgAfter /= float64(len(after))

	before, err := s.stores.Trades.GetByMarketRange(ctx, marketID,
		last.Timestamp.Add(-impactLookback), last.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("fetch pre-event trades: %w", err)
	}
	stddev := priceStddev(before)
	if stddev <= 0 {
		return 0, nil
	}

	return clamp(math.Abs(avgAfter-last.Price)/stddev*5, 0, 10), nil
}

func priceStddev(trades []*domain.Trade) float64 {
	if len(trades) < 2 {
		return 0
	}
	var mean float64
	for _, t := range trades {
		mean += t.Price
	}
	mean /= float64(len(trades))

	var variance float64
	for _, t := range trades {
		d := t.Price - mean
		variance += d * d
	}
	variance /= float64(len(trades))
	return math.Sqrt(variance)
}

// toStoredScore converts a 0-10 sub-score or composite to the 0-100 integer
// storage scale.
func toStoredScore(v float64) int {
	n := int(math.Round(clamp(v, 0, 10) * 10))
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
