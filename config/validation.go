package config

import (
	"fmt"
	"time"
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of config validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Error summarizes the result as a single message.
func (r ValidationResult) Error() string {
	if r.Valid {
		return ""
	}
	return fmt.Sprintf("%d invalid config field(s), first: %s: %s",
		len(r.Errors), r.Errors[0].Field, r.Errors[0].Message)
}

// Validate checks the config for invalid values.
func (c *Config) Validate() ValidationResult {
	var errors []ValidationError

	errors = append(errors, validateIngest(&c.Ingest)...)
	errors = append(errors, validateDetector(&c.Detector)...)
	errors = append(errors, validateScorer(&c.Scorer)...)
	errors = append(errors, validateAlerts(&c.Alerts)...)
	errors = append(errors, validateCleanup(&c.Cleanup)...)

	return ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}
}

func validateIngest(ic *IngestConfig) []ValidationError {
	var errors []ValidationError

	if ic.PollInterval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "ingest.poll_interval",
			Message: "must be at least 1 second",
		})
	}

	if ic.TradeLimit < 1 {
		errors = append(errors, ValidationError{
			Field:   "ingest.trade_limit",
			Message: "must be at least 1",
		})
	}

	return errors
}

func validateDetector(dc *DetectorConfig) []ValidationError {
	var errors []ValidationError

	if dc.Interval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "detector.interval",
			Message: "must be at least 1 second",
		})
	}

	if dc.PairWindow <= 0 || dc.PairWindow > dc.TradeWindow {
		errors = append(errors, ValidationError{
			Field:   "detector.pair_window",
			Message: "must be positive and no larger than trade_window",
		})
	}

	if dc.SpikeWindow <= 0 || dc.SpikeWindow > dc.TradeWindow {
		errors = append(errors, ValidationError{
			Field:   "detector.spike_window",
			Message: "must be positive and no larger than trade_window",
		})
	}

	if dc.SingleTradeUSD < 0 || dc.BuildMinUSD < 0 || dc.ExitMinUSD < 0 || dc.SpikeMinUSD < 0 {
		errors = append(errors, ValidationError{
			Field:   "detector.thresholds",
			Message: "USD thresholds must be non-negative",
		})
	}

	if dc.BuildMinTrades < 2 {
		errors = append(errors, ValidationError{
			Field:   "detector.build_min_trades",
			Message: "must be at least 2",
		})
	}

	if dc.ExitVolumeRatio <= 0 || dc.ExitVolumeRatio > 1 {
		errors = append(errors, ValidationError{
			Field:   "detector.exit_volume_ratio",
			Message: "must be in (0, 1]",
		})
	}

	if dc.SpikeMultiplier <= 1 {
		errors = append(errors, ValidationError{
			Field:   "detector.spike_multiplier",
			Message: "must be greater than 1",
		})
	}

	if dc.DepthShockRatio <= 0 || dc.DepthShockRatio > 1 {
		errors = append(errors, ValidationError{
			Field:   "detector.depth_shock_ratio",
			Message: "must be in (0, 1]",
		})
	}

	if dc.DedupWindow <= 0 {
		errors = append(errors, ValidationError{
			Field:   "detector.dedup_window",
			Message: "must be positive",
		})
	}

	return errors
}

func validateScorer(sc *ScorerConfig) []ValidationError {
	var errors []ValidationError

	if sc.Interval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "scorer.interval",
			Message: "must be at least 1 second",
		})
	}

	if sc.ActivityWindow <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scorer.activity_window",
			Message: "must be positive",
		})
	}

	if sc.DefaultLifetime <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scorer.default_lifetime",
			Message: "must be positive",
		})
	}

	return errors
}

func validateAlerts(ac *AlertsConfig) []ValidationError {
	var errors []ValidationError

	if ac.DispatchInterval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "alerts.dispatch_interval",
			Message: "must be at least 1 second",
		})
	}

	if ac.DispatchWindow <= 0 {
		errors = append(errors, ValidationError{
			Field:   "alerts.dispatch_window",
			Message: "must be positive",
		})
	}

	if ac.FreeDelay < 0 {
		errors = append(errors, ValidationError{
			Field:   "alerts.free_delay",
			Message: "must be non-negative",
		})
	}

	if ac.MinNotionalUSD < 0 {
		errors = append(errors, ValidationError{
			Field:   "alerts.min_notional_usd",
			Message: "must be non-negative",
		})
	}

	if ac.ConvictionMinScore < 0 || ac.ConvictionMinScore > 100 {
		errors = append(errors, ValidationError{
			Field:   "alerts.conviction_min_score",
			Message: "must be between 0 and 100",
		})
	}

	if ac.ConvictionWallets < 2 {
		errors = append(errors, ValidationError{
			Field:   "alerts.conviction_wallets",
			Message: "must be at least 2",
		})
	}

	return errors
}

func validateCleanup(cc *CleanupConfig) []ValidationError {
	var errors []ValidationError

	if cc.OrderbookRetention < 1*time.Hour {
		errors = append(errors, ValidationError{
			Field:   "cleanup.orderbook_retention",
			Message: "must be at least 1 hour",
		})
	}

	return errors
}
