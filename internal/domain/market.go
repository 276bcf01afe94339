package domain

import "time"

// MarketStatus is the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "active"
	MarketStatusResolved MarketStatus = "resolved"
)

// Market holds metadata for one tradeable token/outcome id. Multi-outcome
// markets expand to multiple rows sharing a title, so title lookups must
// tolerate missing or placeholder values.
type Market struct {
	ID         string
	Title      string
	Category   string
	Status     MarketStatus
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// MarketSettlement records the settled outcome of a resolved market.
type MarketSettlement struct {
	MarketID       string
	SettledOutcome string
	SettledAt      time.Time
}
