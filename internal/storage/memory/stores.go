package memory

import "whalewatch/internal/storage"

// NewStores builds a complete in-memory store bundle. Data lives only for
// the lifetime of the process; useful for local runs and tests.
func NewStores() *storage.Stores {
	return &storage.Stores{
		Trades:      NewTradeStore(),
		Orderbooks:  NewOrderbookStore(),
		Markets:     NewMarketStore(),
		Settlements: NewSettlementStore(),
		Profiles:    NewProfileStore(),
		Scores:      NewScoreStore(),
		Alerts:      NewAlertStore(),
		Subscribers: NewSubscriberStore(),
	}
}
