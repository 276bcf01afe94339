package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"whalewatch/clients/discord"
	"whalewatch/config"
	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// Reporter periodically posts pipeline statistics to the ops channel: alert
// volume by type, wallet and market spread, and settlement coverage. This is
// observability output, not a subscriber-facing surface.
type Reporter struct {
	logger  *zap.Logger
	cfg     config.ReportConfig
	stores  *storage.Stores
	discord *discord.Client

	now func() time.Time
}

func NewReporter(logger *zap.Logger, cfg config.ReportConfig, stores *storage.Stores, dc *discord.Client) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		logger:  logger,
		cfg:     cfg,
		stores:  stores,
		discord: dc,
		now:     time.Now,
	}
}

// Run assembles one report over the trailing report interval.
func (r *Reporter) Run(ctx context.Context) error {
	now := r.now().UTC()
	since := now.Add(-r.cfg.Interval)

	alerts, err := r.stores.Alerts.GetSince(ctx, since)
	if err != nil {
		return fmt.Errorf("fetch alerts for report: %w", err)
	}

	byType := make(map[domain.AlertType]int)
	scoreSum := make(map[domain.AlertType]int)
	wallets := make(map[string]struct{})
	markets := make(map[string]struct{})
	var notional float64
	for _, a := range alerts {
		byType[a.Type]++
		scoreSum[a.Type] += a.Score
		markets[a.MarketID] = struct{}{}
		if a.Wallet != domain.GroupWallet {
			wallets[a.Wallet] = struct{}{}
		}
		notional += a.Notional()
	}

	settlements, err := r.stores.Settlements.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("fetch settlements for report: %w", err)
	}

	settled := make(map[string]string, len(settlements))
	settledRecently := 0
	alertedAndSettled := 0
	for _, s := range settlements {
		settled[s.MarketID] = s.SettledOutcome
		if s.SettledAt.After(since) {
			settledRecently++
		}
		if _, ok := markets[s.MarketID]; ok {
			alertedAndSettled++
		}
	}

	hits, judged := r.hitRate(ctx, alerts, settled)

	r.logger.Info("pipeline report",
		zap.Int("alerts", len(alerts)),
		zap.Int("wallets", len(wallets)),
		zap.Int("markets", len(markets)),
		zap.Int("settledRecently", settledRecently))

	if r.discord == nil {
		return nil
	}

	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Whale pipeline report (last %s)", r.cfg.Interval),
		Color: 0x3b88c3,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Alerts", Value: fmt.Sprintf("%d (%s notional)", len(alerts), formatUSD(notional)), Inline: true},
			{Name: "Build / Exit / Spike / Conviction", Value: fmt.Sprintf("%d / %d / %d / %d",
				byType[domain.AlertTypeBuild], byType[domain.AlertTypeExit],
				byType[domain.AlertTypeSpike], byType[domain.AlertTypeConviction]), Inline: true},
			{Name: "Distinct wallets", Value: fmt.Sprintf("%d", len(wallets)), Inline: true},
			{Name: "Distinct markets", Value: fmt.Sprintf("%d", len(markets)), Inline: true},
			{Name: "Avg score (B/E/S/C)", Value: fmt.Sprintf("%s / %s / %s / %s",
				avgScore(scoreSum, byType, domain.AlertTypeBuild),
				avgScore(scoreSum, byType, domain.AlertTypeExit),
				avgScore(scoreSum, byType, domain.AlertTypeSpike),
				avgScore(scoreSum, byType, domain.AlertTypeConviction)), Inline: true},
			{Name: "Hit rate (settled)", Value: formatHitRate(hits, judged), Inline: true},
			{Name: "Markets settled in window", Value: fmt.Sprintf("%d", settledRecently), Inline: true},
			{Name: "Alerted markets now settled", Value: fmt.Sprintf("%d", alertedAndSettled), Inline: true},
		},
		Timestamp: now.Format(time.RFC3339),
	}
	r.discord.SendEmbed(embed)
	return nil
}

// hitRate judges directional alerts against settled outcomes. The latest
// snapshot supplies the outcome label for the alerted token; a buy on the
// winning outcome or a sell on a losing one counts as a hit. Alerts whose
// market is unsettled, or whose outcome label is unknown, are not judged.
func (r *Reporter) hitRate(ctx context.Context, alerts []*domain.Alert, settled map[string]string) (hits, judged int) {
	for _, a := range alerts {
		if a.Type == domain.AlertTypeConviction {
			continue
		}
		winner, ok := settled[a.MarketID]
		if !ok {
			continue
		}
		snap, err := r.stores.Orderbooks.Latest(ctx, a.MarketID, "")
		if err != nil || snap.OutcomeLabel == "" {
			continue
		}
		judged++
		won := snap.OutcomeLabel == winner
		if (a.Side == domain.TradeSideBuy && won) || (a.Side == domain.TradeSideSell && !won) {
			hits++
		}
	}
	return hits, judged
}

func avgScore(sum map[domain.AlertType]int, count map[domain.AlertType]int, t domain.AlertType) string {
	if count[t] == 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f", float64(sum[t])/float64(count[t]))
}

func formatHitRate(hits, judged int) string {
	if judged == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.0f%% (%d/%d)", 100*float64(hits)/float64(judged), hits, judged)
}
