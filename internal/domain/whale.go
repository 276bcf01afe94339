package domain

import "time"

// WhaleProfile is the per-wallet aggregate snapshot maintained by the profiler.
// Each profiling pass fully overwrites the row; there is no incremental merge.
type WhaleProfile struct {
	Wallet       string
	TotalVolume  float64 // sum of share amounts across all trades
	WinRate      float64 // 0.0 to 1.0
	AvgSize      float64
	MarketsCount int
	UpdatedAt    time.Time
}

// WhaleScore is one entry in the append-only score ledger for a
// (wallet, market) pair. Score is stored on a 0-100 integer scale and
// displayed divided by 10; the latest entry by CalculatedAt is authoritative.
type WhaleScore struct {
	Wallet       string
	MarketID     string
	Score        int // 0-100
	CalculatedAt time.Time
}

// Display returns the user-facing 0-10 score.
func (s *WhaleScore) Display() float64 {
	return float64(s.Score) / 10
}

// WhaleScoreBreakdown carries the four sub-scores behind a WhaleScore,
// stored on the same 0-100 scale under the same (wallet, market, time) key.
type WhaleScoreBreakdown struct {
	Wallet             string
	MarketID           string
	CapitalImpact      int
	TimingAdvantage    int
	HistoricalAccuracy int
	MarketImpact       int
	CalculatedAt       time.Time
}
