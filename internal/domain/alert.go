package domain

import "time"

// AlertType classifies the detected behavior behind an alert.
type AlertType string

const (
	AlertTypeBuild      AlertType = "build"
	AlertTypeExit       AlertType = "exit"
	AlertTypeSpike      AlertType = "spike"
	AlertTypeConviction AlertType = "conviction"
)

// GroupWallet is the sentinel wallet value for conviction alerts that
// represent agreement across multiple wallets.
const GroupWallet = "group"

// Alert is a persisted candidate signal. Alerts are immutable once created;
// dispatch state lives in process memory only.
type Alert struct {
	ID        int64
	Wallet    string
	MarketID  string
	Type      AlertType
	Score     int // 0-100
	Amount    float64
	Price     float64
	Side      TradeSide
	TxCount   int
	CreatedAt time.Time
}

// Notional returns the USD value the alert represents.
func (a *Alert) Notional() float64 {
	return a.Amount * a.Price
}
