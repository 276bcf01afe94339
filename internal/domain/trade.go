package domain

import "time"

// TradeSide identifies the direction of a trade.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Trade is a normalized trade record as produced by the ingestion layer.
// Trades are immutable once ingested and deduplicated by TradeID.
type Trade struct {
	TradeID   string
	MarketID  string
	Wallet    string
	Side      TradeSide
	Amount    float64 // shares
	Price     float64
	Timestamp time.Time
}

// Notional returns the USD value of the trade.
func (t *Trade) Notional() float64 {
	return t.Amount * t.Price
}
