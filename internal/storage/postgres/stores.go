package postgres

import "whalewatch/internal/storage"

// NewStores builds a complete Postgres-backed store bundle sharing one pool.
func NewStores(pool *Pool) *storage.Stores {
	return &storage.Stores{
		Trades:      NewTradeStore(pool),
		Orderbooks:  NewOrderbookStore(pool),
		Markets:     NewMarketStore(pool),
		Settlements: NewSettlementStore(pool),
		Profiles:    NewProfileStore(pool),
		Scores:      NewScoreStore(pool),
		Alerts:      NewAlertStore(pool),
		Subscribers: NewSubscriberStore(pool),
	}
}
