package domain

import "time"

// Tier is a subscription level gating alert delay, score visibility and
// extended context.
type Tier string

const (
	TierFree  Tier = "free"
	TierPro   Tier = "pro"
	TierElite Tier = "elite"
)

// Subscriber is a notification recipient with a bound messaging channel.
type Subscriber struct {
	ID            int64
	ChatID        string // external messaging channel identifier
	Tier          Tier
	PlanExpiresAt *time.Time
	Active        bool
}

// EffectiveTier returns the tier to apply for feature and limit checks.
// An expired paid plan is treated as free regardless of the stored label.
func (s *Subscriber) EffectiveTier(now time.Time) Tier {
	if s.Tier == TierFree {
		return TierFree
	}
	if s.PlanExpiresAt != nil && now.After(*s.PlanExpiresAt) {
		return TierFree
	}
	return s.Tier
}
