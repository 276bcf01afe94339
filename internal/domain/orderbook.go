package domain

import "time"

// OrderbookSnapshot is a point-in-time measurement of visible book depth for a
// market outcome. Snapshots are append-only and pruned after a retention window.
type OrderbookSnapshot struct {
	MarketID      string
	OutcomeLabel  string
	Timestamp     time.Time
	BidDepthUSD   float64
	AskDepthUSD   float64
	TotalDepthUSD float64
}
