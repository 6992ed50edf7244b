package bot

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/martin/internal/domain"
)

func approvalText(t *domain.Trade, w *domain.MarketWindow, sig *domain.Signal, threshold float64, deadline string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔔 <b>Entry candidate #%d</b>\n\n", t.ID)
	fmt.Fprintf(&sb, "Market: %s\n", w.Slug)
	fmt.Fprintf(&sb, "Direction: <b>%s</b>\n", sig.Direction)
	fmt.Fprintf(&sb, "Quality: %.1f (min %.1f)\n", sig.Quality, threshold)
	fmt.Fprintf(&sb, "Policy: %s\n", t.PolicyMode)
	fmt.Fprintf(&sb, "Respond by %s or the trade is skipped.", deadline)
	return sb.String()
}

// assetPrice is one spot quote for the status card. A zero price means
// the feed has not seen a trade for that asset yet.
type assetPrice struct {
	Asset string
	Price decimal.Decimal
}

func statusText(st *domain.Stats, mode, execMode string, activeTrades int, spot []assetPrice) string {
	state := "running"
	if st.IsPaused {
		state = "paused"
	}
	gate := ""
	switch {
	case st.DayOnly:
		gate = " (day-only)"
	case st.NightOnly:
		gate = " (night-only)"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🤖 <b>Status</b>: %s%s\n", state, gate)
	fmt.Fprintf(&sb, "Session: %s, execution: %s\n", mode, execMode)
	fmt.Fprintf(&sb, "Policy: %s, streak %d (night %d)\n", st.PolicyMode, st.TradeLevelStreak, st.NightStreak)
	fmt.Fprintf(&sb, "Active trades: %d", activeTrades)
	if len(spot) > 0 {
		sb.WriteString("\nSpot:")
		for _, p := range spot {
			if p.Price.IsZero() {
				fmt.Fprintf(&sb, " %s n/a", p.Asset)
				continue
			}
			fmt.Fprintf(&sb, " %s %s", p.Asset, p.Price.StringFixed(2))
		}
	}
	return sb.String()
}

func statsText(st *domain.Stats) string {
	winRate := 0.0
	if st.TotalTrades > 0 {
		winRate = 100 * float64(st.TotalWins) / float64(st.TotalTrades)
	}

	var sb strings.Builder
	sb.WriteString("📊 <b>Stats</b>\n")
	fmt.Fprintf(&sb, "Trades: %d (%d W / %d L, %.1f%%)\n", st.TotalTrades, st.TotalWins, st.TotalLosses, winRate)
	fmt.Fprintf(&sb, "Streak: %d, night streak: %d\n", st.TradeLevelStreak, st.NightStreak)
	fmt.Fprintf(&sb, "Policy: %s", st.PolicyMode)
	if st.LastStrictDayThreshold != nil {
		fmt.Fprintf(&sb, "\nStrict thresholds: day %.1f", *st.LastStrictDayThreshold)
		if st.LastStrictNightThreshold != nil {
			fmt.Fprintf(&sb, ", night %.1f", *st.LastStrictNightThreshold)
		}
	}
	return sb.String()
}

func reportText(settled []domain.Trade) string {
	if len(settled) == 0 {
		return "📋 No settled trades in the last 24h."
	}

	wins := 0
	pnl := decimal.Zero
	for _, t := range settled {
		if t.IsWin != nil && *t.IsWin {
			wins++
		}
		if t.PnL != nil {
			pnl = pnl.Add(*t.PnL)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 <b>Last 24h</b>: %d settled, %d wins\n", len(settled), wins)
	fmt.Fprintf(&sb, "PnL: %s USD", pnl.StringFixed(2))
	return sb.String()
}

func tradesText(trades []domain.Trade) string {
	if len(trades) == 0 {
		return "No trades yet."
	}

	var sb strings.Builder
	sb.WriteString("🧾 <b>Recent trades</b>\n")
	for _, t := range trades {
		line := fmt.Sprintf("#%d %s", t.ID, t.Status)
		if t.Status == domain.StatusCancelled {
			line += fmt.Sprintf(" (%s)", t.CancelReason)
		}
		if t.PnL != nil {
			line += fmt.Sprintf(" pnl %s", t.PnL.StringFixed(2))
		}
		sb.WriteString(line + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
