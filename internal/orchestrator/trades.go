package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/martin/internal/capcheck"
	"github.com/web3guy0/martin/internal/config"
	"github.com/web3guy0/martin/internal/domain"
	"github.com/web3guy0/martin/internal/execution"
	"github.com/web3guy0/martin/internal/stats"
)

// processTrade advances one trade by at most one lifecycle step per
// status, with one exception: a matured signal collapses
// SIGNALLED -> WAITING_CONFIRM -> WAITING_CAP and gets its first cap
// evaluation in the same cycle. A cap PASS stops at READY; the entry
// decision runs on the next cycle.
func (o *Orchestrator) processTrade(ctx context.Context, cfg *config.Config, mode domain.TimeMode, t *domain.Trade) {
	now := o.nowFn()

	w, err := o.db.GetWindow(t.WindowID)
	if err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("Window load failed")
		return
	}

	switch t.Status {
	case domain.StatusNew:
		if _, err := o.db.Transition(t.ID, domain.StatusSearchingSignal, nil); err != nil {
			log.Error().Err(err).Int64("trade_id", t.ID).Msg("Search start failed")
		}

	case domain.StatusSearchingSignal:
		o.searchSignal(ctx, cfg, mode, t, w, now)

	case domain.StatusSignalled:
		o.maybeConfirm(ctx, cfg, mode, t, w, now)

	case domain.StatusWaitingConfirm:
		// Crash recovery: finish the collapse started in a previous run.
		if _, err := o.db.Transition(t.ID, domain.StatusWaitingCap, nil); err != nil {
			log.Error().Err(err).Int64("trade_id", t.ID).Msg("Cap wait start failed")
			return
		}
		o.evaluateCap(ctx, cfg, mode, t, w, now)

	case domain.StatusWaitingCap:
		o.evaluateCap(ctx, cfg, mode, t, w, now)

	case domain.StatusReady:
		o.decideEntry(ctx, cfg, mode, t, w, now)

	case domain.StatusOrderPlaced:
		o.trackOrder(ctx, cfg, t, w, now)
	}
}

// searchSignal runs the oracle over the window's candles and attaches a
// qualifying signal. A below-threshold detection keeps the trade
// searching; a stronger signal can still show up before the window ends.
func (o *Orchestrator) searchSignal(ctx context.Context, cfg *config.Config, mode domain.TimeMode, t *domain.Trade, w *domain.MarketWindow, now int64) {
	if w.IsExpired(now) {
		o.cancel(t.ID, domain.CancelNoSignal, domain.DecisionAutoSkip, "window closed without a signal")
		return
	}

	snap, err := o.snapshots.EnsureFresh(ctx, w.Asset, cfg.Loop.SnapshotFreshnessSeconds)
	if err != nil {
		log.Warn().Err(err).Str("asset", w.Asset).Int64("trade_id", t.ID).Msg("Snapshot unavailable")
		return
	}

	eval := o.oracle.Evaluate(snap.Candles1m, snap.Candles5m, w.StartTS, w.EndTS, now)
	if eval == nil {
		return
	}

	st, err := o.db.GetStats()
	if err != nil {
		log.Error().Err(err).Msg("Stats load failed")
		return
	}
	threshold := stats.Threshold(mode, st, cfg)
	if eval.Quality < threshold {
		log.Info().
			Int64("trade_id", t.ID).
			Float64("quality", eval.Quality).
			Float64("threshold", threshold).
			Msg("📉 Signal below threshold, still searching")
		return
	}

	confirmTS := eval.SignalTS + cfg.Trading.ConfirmDelaySeconds
	if confirmTS >= w.EndTS {
		o.cancel(t.ID, domain.CancelLate, domain.DecisionAutoSkip, "confirm point past window end")
		return
	}

	sig := &domain.Signal{
		WindowID:         w.ID,
		Direction:        eval.Direction,
		SignalTS:         eval.SignalTS,
		ConfirmTS:        confirmTS,
		Quality:          eval.Quality,
		QualityBreakdown: eval.Breakdown,
		AnchorBarTS:      eval.AnchorBarTS,
	}
	if _, err := o.db.AttachSignal(t.ID, sig, w.TokenFor(eval.Direction)); err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("Signal attach failed")
		return
	}
	log.Info().
		Int64("trade_id", t.ID).
		Str("asset", w.Asset).
		Str("direction", string(eval.Direction)).
		Float64("quality", eval.Quality).
		Int64("confirm_ts", confirmTS).
		Msg("📡 Signal attached")
}

// maybeConfirm re-checks the attached signal against the current
// threshold, waits out the confirm delay, then collapses the two waiting
// states and evaluates the cap immediately. The threshold can rise while
// the trade sits SIGNALLED (a STRICT flip or a settings change), and a
// signal that no longer clears it is dropped.
func (o *Orchestrator) maybeConfirm(ctx context.Context, cfg *config.Config, mode domain.TimeMode, t *domain.Trade, w *domain.MarketWindow, now int64) {
	sig, err := o.db.GetSignalByWindow(w.ID)
	if err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("Signal load failed")
		return
	}

	st, err := o.db.GetStats()
	if err != nil {
		log.Error().Err(err).Msg("Stats load failed")
		return
	}
	threshold := stats.Threshold(mode, st, cfg)
	if sig.Quality < threshold {
		log.Info().
			Int64("trade_id", t.ID).
			Float64("quality", sig.Quality).
			Float64("threshold", threshold).
			Msg("📉 Threshold rose above the signal quality")
		o.cancel(t.ID, domain.CancelLowQuality, domain.DecisionAutoSkip, "")
		return
	}

	if now < sig.ConfirmTS {
		return
	}
	if sig.ConfirmTS >= w.EndTS {
		o.cancel(t.ID, domain.CancelLate, domain.DecisionAutoSkip, "")
		return
	}

	if _, err := o.db.Transition(t.ID, domain.StatusWaitingConfirm, nil); err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("Confirm step failed")
		return
	}
	if _, err := o.db.Transition(t.ID, domain.StatusWaitingCap, nil); err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("Cap wait start failed")
		return
	}
	o.evaluateCap(ctx, cfg, mode, t, w, now)
}

// evaluateCap fetches the token's price history and applies the cap rule.
func (o *Orchestrator) evaluateCap(ctx context.Context, cfg *config.Config, mode domain.TimeMode, t *domain.Trade, w *domain.MarketWindow, now int64) {
	sig, err := o.db.GetSignalByWindow(w.ID)
	if err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("Signal load failed")
		return
	}

	cc, err := o.db.EnsureCapCheck(t.ID, t.TokenID, sig.ConfirmTS, w.EndTS)
	if err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("Cap check row failed")
		return
	}

	to := now
	if to > w.EndTS {
		to = w.EndTS
	}
	ticks, err := o.book.PriceTicks(ctx, t.TokenID, sig.ConfirmTS, to)
	if err != nil {
		log.Warn().Err(err).Int64("trade_id", t.ID).Msg("Price history unavailable")
		return
	}

	res := capcheck.Evaluate(ticks, capcheck.Params{
		ConfirmTS: sig.ConfirmTS,
		EndTS:     w.EndTS,
		Now:       now,
		PriceCap:  decimal.NewFromFloat(cfg.Trading.PriceCap),
		MinTicks:  cfg.Trading.CapMinTicks,
	})

	cc.Status = domain.CapStatus(res.Status)
	cc.ConsecutiveTicks = res.ConsecutiveTicks
	cc.FirstPassTS = res.FirstPassTS
	cc.PriceAtPass = res.PriceAtPass
	if err := o.db.UpdateCapCheck(cc); err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("Cap check update failed")
		return
	}

	switch res.Status {
	case capcheck.Pass:
		st, err := o.db.GetStats()
		if err != nil {
			log.Error().Err(err).Msg("Stats load failed")
			return
		}
		if _, err := o.db.Transition(t.ID, domain.StatusReady, func(tr *domain.Trade) {
			tr.TimeMode = mode
			tr.PolicyMode = st.PolicyMode
		}); err != nil {
			log.Error().Err(err).Int64("trade_id", t.ID).Msg("Ready transition failed")
			return
		}
		log.Info().
			Int64("trade_id", t.ID).
			Str("price_at_pass", res.PriceAtPass.String()).
			Msg("✅ Cap passed")

	case capcheck.Late:
		o.cancel(t.ID, domain.CancelLate, domain.DecisionAutoSkip, "")

	case capcheck.Fail:
		o.cancel(t.ID, domain.CancelCapFail, domain.DecisionAutoSkip, "")
	}
}

// decideEntry routes a READY trade: night trades auto-approve under the
// night rules, day trades wait for the user within the response window.
func (o *Orchestrator) decideEntry(ctx context.Context, cfg *config.Config, mode domain.TimeMode, t *domain.Trade, w *domain.MarketWindow, now int64) {
	if w.IsExpired(now) {
		o.cancel(t.ID, domain.CancelExpired, domain.DecisionAutoSkip, "window closed before a decision")
		return
	}

	if t.Decision == domain.DecisionOK {
		o.placeOrder(ctx, cfg, t, w, t.Decision)
		return
	}

	if mode == domain.ModeNight {
		o.decideNight(ctx, cfg, t, w)
		return
	}
	o.decideDay(cfg, t, w, now)
}

func (o *Orchestrator) decideNight(ctx context.Context, cfg *config.Config, t *domain.Trade, w *domain.MarketWindow) {
	if !cfg.DayNight.NightAutotradeEnabled {
		o.cancel(t.ID, domain.CancelNightDisabled, domain.DecisionAutoSkip, "night autotrade off")
		return
	}

	st, err := o.db.GetStats()
	if err != nil {
		log.Error().Err(err).Msg("Stats load failed")
		return
	}
	if st.NightDisabled {
		o.cancel(t.ID, domain.CancelNightDisabled, domain.DecisionAutoSkip, "night cap reached earlier this session")
		return
	}

	o.placeOrder(ctx, cfg, t, w, domain.DecisionAutoOK)
}

func (o *Orchestrator) decideDay(cfg *config.Config, t *domain.Trade, w *domain.MarketWindow, now int64) {
	o.mu.Lock()
	emitted, sent := o.emittedAt[t.ID]
	o.mu.Unlock()

	if !sent {
		// Card timestamp lost in a restart: fall back to the time the
		// trade went READY so a stale trade still times out.
		if now-t.UpdatedAt.Unix() >= cfg.DayNight.MaxResponseSeconds {
			o.cancel(t.ID, domain.CancelExpired, domain.DecisionAutoSkip, "no response within the approval window")
			o.notifier.TradeEvent(fmt.Sprintf("⏰ Trade #%d expired without a response", t.ID))
			return
		}

		sig, err := o.db.GetSignalByWindow(w.ID)
		if err != nil {
			log.Error().Err(err).Int64("trade_id", t.ID).Msg("Signal load failed")
			return
		}
		st, err := o.db.GetStats()
		if err != nil {
			log.Error().Err(err).Msg("Stats load failed")
			return
		}
		threshold := stats.Threshold(domain.ModeDay, st, cfg)
		deadline := now + cfg.DayNight.MaxResponseSeconds
		o.mu.Lock()
		o.emittedAt[t.ID] = now
		o.mu.Unlock()
		o.notifier.ApprovalRequest(t, w, sig, threshold, deadline)
		log.Info().
			Int64("trade_id", t.ID).
			Int64("deadline", deadline).
			Msg("🔔 Approval requested")
		return
	}

	if now-emitted >= cfg.DayNight.MaxResponseSeconds {
		o.cancel(t.ID, domain.CancelExpired, domain.DecisionAutoSkip, "no response within the approval window")
		o.notifier.TradeEvent(fmt.Sprintf("⏰ Trade #%d expired without a response", t.ID))
	}
}

// placeOrder submits the entry and moves the trade to ORDER_PLACED with
// the executor's view of the fill.
func (o *Orchestrator) placeOrder(ctx context.Context, cfg *config.Config, t *domain.Trade, w *domain.MarketWindow, decision domain.Decision) {
	price := decimal.NewFromFloat(cfg.Trading.PriceCap)
	stake := decimal.NewFromFloat(cfg.Trading.StakeUSD)

	res, err := o.executor.Place(ctx, t, t.TokenID, price, stake)
	if err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("Order placement failed")
		return
	}

	if _, err := o.db.Transition(t.ID, domain.StatusOrderPlaced, func(tr *domain.Trade) {
		tr.Decision = decision
		tr.OrderID = res.OrderID
		tr.FillStatus = res.FillStatus
		tr.FillPrice = res.FillPrice
		tr.StakeAmount = stake
	}); err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Str("order_id", res.OrderID).Msg("Order record failed")
		return
	}
	o.forgetTrade(t.ID)

	log.Info().
		Int64("trade_id", t.ID).
		Str("order_id", res.OrderID).
		Str("decision", string(decision)).
		Str("stake", stake.String()).
		Msg("💸 Order placed")
	o.notifier.TradeEvent(fmt.Sprintf("💸 Trade #%d: order placed on %s %s", t.ID, w.Asset, t.TokenID))
}

// trackOrder polls the fill until the window closes, then drives
// settlement with a decaying retry until the outcome resolves or the
// settlement timeout trips.
func (o *Orchestrator) trackOrder(ctx context.Context, cfg *config.Config, t *domain.Trade, w *domain.MarketWindow, now int64) {
	if t.FillStatus == domain.FillPending {
		status, fill, err := o.executor.FillState(ctx, t)
		if err != nil {
			log.Warn().Err(err).Int64("trade_id", t.ID).Msg("Fill poll failed")
			return
		}
		if status != t.FillStatus {
			if err := o.db.SaveTradeFill(t.ID, status, fill); err != nil {
				log.Error().Err(err).Int64("trade_id", t.ID).Msg("Fill update failed")
				return
			}
			t.FillStatus = status
			t.FillPrice = fill
			log.Info().Int64("trade_id", t.ID).Str("fill", string(status)).Msg("📬 Fill update")
		}
	}

	if t.FillStatus == domain.FillRejected {
		if _, err := o.db.Transition(t.ID, domain.StatusError, nil); err != nil {
			log.Error().Err(err).Int64("trade_id", t.ID).Msg("Reject handling failed")
			return
		}
		o.forgetTrade(t.ID)
		o.notifier.TradeEvent(fmt.Sprintf("🚫 Trade #%d: order rejected by the venue", t.ID))
		return
	}

	if !w.IsExpired(now) {
		return
	}
	o.settle(ctx, cfg, t, w, now)
}

func (o *Orchestrator) settle(ctx context.Context, cfg *config.Config, t *domain.Trade, w *domain.MarketWindow, now int64) {
	elapsed := now - w.EndTS
	if elapsed >= cfg.Execution.SettleTimeoutSeconds {
		if _, err := o.db.Transition(t.ID, domain.StatusError, nil); err != nil {
			log.Error().Err(err).Int64("trade_id", t.ID).Msg("Settlement timeout handling failed")
			return
		}
		o.forgetTrade(t.ID)
		log.Error().Int64("trade_id", t.ID).Int64("elapsed", elapsed).Msg("⌛ Settlement timed out")
		o.notifier.TradeEvent(fmt.Sprintf("⌛ Trade #%d: outcome never resolved, marked ERROR", t.ID))
		return
	}

	o.mu.Lock()
	next := o.settlePollAt[t.ID]
	o.mu.Unlock()
	if now < next {
		return
	}

	outcome := w.Outcome
	if outcome == nil {
		dir, ok, err := o.catalog.ResolvedOutcome(ctx, w.Slug)
		if err != nil {
			log.Warn().Err(err).Str("slug", w.Slug).Msg("Outcome lookup failed")
		}
		if err != nil || !ok {
			o.mu.Lock()
			o.settlePollAt[t.ID] = now + settleRetryDelay(elapsed)
			o.mu.Unlock()
			return
		}
		if err := o.db.SetWindowOutcome(w.ID, dir); err != nil {
			log.Error().Err(err).Int64("window_id", w.ID).Msg("Outcome store failed")
			return
		}
		outcome = &dir
	}

	// An unfilled order carries no position: settle flat. The streak
	// ledger ignores it because the trade never filled.
	isWin, pnl := false, decimal.Zero
	if t.IsFilled() {
		sig, err := o.db.GetSignalByWindow(w.ID)
		if err != nil {
			log.Error().Err(err).Int64("trade_id", t.ID).Msg("Signal load failed")
			return
		}
		isWin, pnl = execution.Settlement(sig.Direction, *outcome, t.StakeAmount, t.FillPrice)
	}

	settled, err := o.db.SettleTrade(t.ID, isWin, pnl, func(s *domain.Stats, tr *domain.Trade) {
		stats.Apply(s, tr, isWin, cfg)
	})
	if err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("Settlement failed")
		return
	}
	o.forgetTrade(t.ID)

	emoji := "🏆"
	if !isWin {
		emoji = "💀"
	}
	log.Info().
		Int64("trade_id", t.ID).
		Bool("is_win", isWin).
		Str("pnl", pnl.String()).
		Str("outcome", string(*outcome)).
		Msg(emoji + " Trade settled")
	o.notifier.TradeEvent(fmt.Sprintf("%s Trade #%d settled %s: PnL %s USD",
		emoji, settled.ID, *outcome, pnl.StringFixed(2)))
}

// settleRetryDelay decays the outcome polling: every cycle for the first
// ten minutes, then every five, then every fifteen.
func settleRetryDelay(elapsed int64) int64 {
	switch {
	case elapsed < 600:
		return 0
	case elapsed < 3600:
		return 300
	default:
		return 900
	}
}

func (o *Orchestrator) cancel(tradeID int64, reason domain.CancelReason, decision domain.Decision, note string) {
	if _, err := o.db.Cancel(tradeID, reason, decision); err != nil {
		log.Error().Err(err).Int64("trade_id", tradeID).Str("reason", string(reason)).Msg("Cancel failed")
		return
	}
	o.forgetTrade(tradeID)
	ev := log.Info().Int64("trade_id", tradeID).Str("reason", string(reason))
	if note != "" {
		ev = ev.Str("note", note)
	}
	ev.Msg("🛑 Trade cancelled")
}
