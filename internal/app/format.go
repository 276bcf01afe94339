package app

import (
	"fmt"
	"strings"
	"time"

	"whalewatch/internal/domain"
)

// messageOptions control per-tier rendering of one alert.
type messageOptions struct {
	ShowScore bool // hidden for free tier
	Extended  bool // contextual bullets, elite only
}

var alertHeadlines = map[domain.AlertType]string{
	domain.AlertTypeBuild:      "🐋 Whale Building Position",
	domain.AlertTypeExit:       "🚪 Whale Exiting Position",
	domain.AlertTypeSpike:      "📈 Volume Spike",
	domain.AlertTypeConviction: "🔥 Conviction Signal",
}

// buildContextLines derives the annotation bullets shown to elite
// subscribers from the alert fields alone.
func buildContextLines(a *domain.Alert) []string {
	var lines []string
	if a.Type == domain.AlertTypeBuild {
		lines = append(lines, "Accumulation detected: repeated same-side entries")
	}
	if a.Notional() >= 10_000 {
		lines = append(lines, fmt.Sprintf("Large size: %s notional", formatUSD(a.Notional())))
	}
	if a.TxCount >= 3 {
		lines = append(lines, fmt.Sprintf("Multi-trade pattern: %d trades in window", a.TxCount))
	}
	if a.Score >= 85 {
		lines = append(lines, "High whale score: historically predictive wallet")
	}
	return lines
}

// formatAlertMessage renders the fixed notification template for one alert.
func formatAlertMessage(a *domain.Alert, title string, now time.Time, opts messageOptions) string {
	var sb strings.Builder

	headline := alertHeadlines[a.Type]
	if headline == "" {
		headline = "🐋 Whale Activity"
	}
	sb.WriteString(fmt.Sprintf("*%s*\n\n", escapeMarkdown(headline)))

	sb.WriteString(fmt.Sprintf("*Market:* %s\n", escapeMarkdown(title)))

	if a.Type == domain.AlertTypeConviction {
		sb.WriteString(fmt.Sprintf("*Wallets:* %d independent whales agree\n", a.TxCount))
	} else {
		sideEmoji := "🟢"
		if a.Side == domain.TradeSideSell {
			sideEmoji = "🔴"
		}
		sb.WriteString(fmt.Sprintf("*Side:* %s %s\n", sideEmoji, strings.ToUpper(string(a.Side))))
		sb.WriteString(fmt.Sprintf("*Size:* %s (%.2f shares @ $%.3f)\n", formatUSD(a.Notional()), a.Amount, a.Price))
		sb.WriteString(fmt.Sprintf("*Trades:* %d\n", a.TxCount))
		sb.WriteString(fmt.Sprintf("*Wallet:* %s\n", escapeMarkdown(shortAddress(a.Wallet))))
	}

	if opts.ShowScore {
		score := domain.WhaleScore{Score: a.Score}
		sb.WriteString(fmt.Sprintf("*Whale Score:* %.1f/10\n", score.Display()))
	}

	if opts.Extended {
		if lines := buildContextLines(a); len(lines) > 0 {
			sb.WriteString("\n")
			for _, line := range lines {
				sb.WriteString(fmt.Sprintf("• %s\n", escapeMarkdown(line)))
			}
		}
	}

	sb.WriteString(fmt.Sprintf("\n_%s • alert #%d_", humanizeSince(a.CreatedAt, now), a.ID))

	return sb.String()
}
