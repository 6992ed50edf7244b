// Package orchestrator runs the decision cycle: discover hourly windows,
// open a trade per window, walk each trade through its lifecycle, place
// and settle orders. All state lives in the database; the orchestrator
// itself only keeps per-trade locks and a little approval bookkeeping, so
// a restart resumes cleanly from the stored statuses.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/martin/internal/binance"
	"github.com/web3guy0/martin/internal/capcheck"
	"github.com/web3guy0/martin/internal/config"
	"github.com/web3guy0/martin/internal/database"
	"github.com/web3guy0/martin/internal/domain"
	"github.com/web3guy0/martin/internal/execution"
	"github.com/web3guy0/martin/internal/snapshot"
	"github.com/web3guy0/martin/internal/stats"
	"github.com/web3guy0/martin/internal/ta"
	"github.com/web3guy0/martin/internal/timemode"
)

// MarketCatalog discovers windows and resolves their outcomes. Satisfied
// by *gamma.Client.
type MarketCatalog interface {
	DiscoverHourlyWindows(ctx context.Context, assets []string, now int64) ([]domain.MarketWindow, error)
	ResolvedOutcome(ctx context.Context, slug string) (domain.Direction, bool, error)
}

// SnapshotProvider serves fresh candle snapshots. Satisfied by
// *snapshot.Worker.
type SnapshotProvider interface {
	EnsureFresh(ctx context.Context, asset string, freshnessSeconds int64) (*snapshot.Snapshot, error)
}

// SignalOracle evaluates a window's candles for an entry signal.
// Satisfied by *ta.Engine.
type SignalOracle interface {
	Evaluate(candles1m, candles5m []binance.Candle, startTS, endTS, now int64) *ta.Evaluation
}

// BookClient serves outcome-token price history for the cap check.
// Satisfied by *clob.Client.
type BookClient interface {
	PriceTicks(ctx context.Context, tokenID string, from, to int64) ([]capcheck.Tick, error)
}

// Notifier pushes user-facing events. The telegram bot implements it; a
// NopNotifier stands in when telegram is not configured.
type Notifier interface {
	ApprovalRequest(t *domain.Trade, w *domain.MarketWindow, sig *domain.Signal, threshold float64, deadline int64)
	TradeEvent(text string)
}

type NopNotifier struct{}

func (NopNotifier) ApprovalRequest(*domain.Trade, *domain.MarketWindow, *domain.Signal, float64, int64) {
}
func (NopNotifier) TradeEvent(string) {}

type Orchestrator struct {
	db        *database.Database
	baseCfg   *config.Config
	catalog   MarketCatalog
	snapshots SnapshotProvider
	oracle    SignalOracle
	book      BookClient
	executor  execution.Executor
	notifier  Notifier

	nowFn func() int64

	locks sync.Map // trade id -> *sync.Mutex

	mu           sync.Mutex
	emittedAt    map[int64]int64 // trade id -> approval card ts
	settlePollAt map[int64]int64 // trade id -> next settlement poll ts

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(db *database.Database, cfg *config.Config, catalog MarketCatalog, snapshots SnapshotProvider,
	oracle SignalOracle, book BookClient, executor execution.Executor, notifier Notifier) *Orchestrator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Orchestrator{
		db:           db,
		baseCfg:      cfg,
		catalog:      catalog,
		snapshots:    snapshots,
		oracle:       oracle,
		book:         book,
		executor:     executor,
		notifier:     notifier,
		nowFn:        func() int64 { return time.Now().Unix() },
		emittedAt:    make(map[int64]int64),
		settlePollAt: make(map[int64]int64),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// SetNotifier swaps the notifier in. Call before Run; the bot needs the
// orchestrator first, so wiring happens in two steps.
func (o *Orchestrator) SetNotifier(n Notifier) {
	if n != nil {
		o.notifier = n
	}
}

// Run executes cycles until the context ends or Stop is called.
func (o *Orchestrator) Run(ctx context.Context) {
	defer close(o.doneCh)

	log.Info().Dur("period", o.baseCfg.TickPeriod()).Msg("🤖 Orchestrator started")
	o.RunCycle(ctx)

	ticker := time.NewTicker(o.baseCfg.TickPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.RunCycle(ctx)
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) Stop() {
	close(o.stopCh)
	<-o.doneCh
	log.Info().Msg("🤖 Orchestrator stopped")
}

// EffectiveConfig resolves settings > env > file for this cycle.
func (o *Orchestrator) EffectiveConfig() *config.Config {
	rows, err := o.db.GetSettings()
	if err != nil {
		log.Warn().Err(err).Msg("Settings load failed, using base config")
		return o.baseCfg
	}
	cfg, errs := o.baseCfg.WithSettings(rows)
	for _, e := range errs {
		log.Warn().Err(e).Msg("Ignoring bad setting")
	}
	return cfg
}

// RunCycle runs one full decision cycle.
func (o *Orchestrator) RunCycle(ctx context.Context) {
	now := o.nowFn()
	cfg := o.EffectiveConfig()

	st, err := o.db.GetStats()
	if err != nil {
		log.Error().Err(err).Msg("Stats load failed, skipping cycle")
		return
	}
	if st.IsPaused {
		log.Debug().Msg("⏸ Paused, skipping cycle")
		return
	}

	resolver := timemode.New(cfg.Location(), cfg.DayNight.DayStartHour, cfg.DayNight.DayEndHour)
	mode := resolver.Mode(now)
	o.rearmNightAutotrade(st, mode)

	log.Debug().
		Int64("now", now).
		Str("mode", string(mode)).
		Str("policy", string(st.PolicyMode)).
		Int("streak", st.TradeLevelStreak).
		Msg("Cycle start")

	o.refreshRollingThresholds(cfg, now)

	if o.allowNewTrades(st, mode) {
		o.discover(ctx, cfg, st, now)
	}

	trades, err := o.db.GetActiveTrades()
	if err != nil {
		log.Error().Err(err).Msg("Active trades load failed")
		return
	}
	for i := range trades {
		t := trades[i]
		o.withTradeLock(t.ID, func() {
			o.processTrade(ctx, cfg, mode, &t)
		})
	}
}

// allowNewTrades applies the day_only/night_only gates. In-flight trades
// keep advancing either way.
func (o *Orchestrator) allowNewTrades(st *domain.Stats, mode domain.TimeMode) bool {
	if st.DayOnly && mode == domain.ModeNight {
		return false
	}
	if st.NightOnly && mode == domain.ModeDay {
		return false
	}
	return true
}

// rearmNightAutotrade clears the night-cap latch on any DAY cycle. The
// latch lives in the stats row, so a restart during the night keeps the
// session disabled until morning.
func (o *Orchestrator) rearmNightAutotrade(st *domain.Stats, mode domain.TimeMode) {
	if mode != domain.ModeDay || !st.NightDisabled {
		return
	}
	if _, err := o.db.UpdateStatsFields(func(s *domain.Stats) {
		s.NightDisabled = false
	}); err != nil {
		log.Error().Err(err).Msg("Night re-arm failed")
		return
	}
	st.NightDisabled = false
	log.Info().Msg("🌅 Day session, night autotrade re-armed")
}

// refreshRollingThresholds recomputes quantile thresholds at most hourly.
func (o *Orchestrator) refreshRollingThresholds(cfg *config.Config, now int64) {
	if !cfg.RollingQuantile.Enabled {
		return
	}
	st, err := o.db.GetStats()
	if err != nil {
		return
	}
	if st.LastQuantileUpdateTS != nil && now-*st.LastQuantileUpdateTS < 3600 {
		return
	}

	day, night, err := stats.RollingThresholds(o.db, cfg, time.Unix(now, 0))
	if err != nil {
		log.Warn().Err(err).Msg("Rolling threshold refresh failed")
		return
	}
	if _, err := o.db.UpdateStatsFields(func(s *domain.Stats) {
		s.LastStrictDayThreshold = day
		s.LastStrictNightThreshold = night
		ts := now
		s.LastQuantileUpdateTS = &ts
	}); err != nil {
		log.Error().Err(err).Msg("Rolling threshold store failed")
	}
}

// discover upserts the current windows and opens a trade for each one
// that has none.
func (o *Orchestrator) discover(ctx context.Context, cfg *config.Config, st *domain.Stats, now int64) {
	windows, err := o.catalog.DiscoverHourlyWindows(ctx, cfg.Trading.Assets, now)
	if err != nil {
		log.Warn().Err(err).Msg("Window discovery failed")
		return
	}

	for i := range windows {
		w, err := o.db.UpsertWindow(&windows[i])
		if err != nil {
			log.Error().Err(err).Str("slug", windows[i].Slug).Msg("Window upsert failed")
			continue
		}

		trade, created, err := o.db.CreateTradeForWindow(w.ID, st.TradeLevelStreak, st.NightStreak, st.PolicyMode)
		if err != nil {
			log.Error().Err(err).Int64("window_id", w.ID).Msg("Trade create failed")
			continue
		}
		if !created {
			continue
		}
		if _, err := o.db.Transition(trade.ID, domain.StatusSearchingSignal, nil); err != nil {
			log.Error().Err(err).Int64("trade_id", trade.ID).Msg("Search start failed")
			continue
		}
		log.Info().
			Int64("trade_id", trade.ID).
			Str("asset", w.Asset).
			Str("slug", w.Slug).
			Msg("🚀 Search started")
	}
}

func (o *Orchestrator) withTradeLock(tradeID int64, fn func()) {
	v, _ := o.locks.LoadOrStore(tradeID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	fn()
}

func (o *Orchestrator) forgetTrade(tradeID int64) {
	o.mu.Lock()
	delete(o.emittedAt, tradeID)
	delete(o.settlePollAt, tradeID)
	o.mu.Unlock()
}

// Control surface, used by the telegram bot.

// ConfirmTrade applies a user approval decision to a READY trade. SKIP
// cancels immediately; OK is recorded and the next cycle places the order.
func (o *Orchestrator) ConfirmTrade(tradeID int64, approve bool, userID int64) error {
	var outErr error
	o.withTradeLock(tradeID, func() {
		t, err := o.db.GetTrade(tradeID)
		if err != nil {
			outErr = err
			return
		}
		if t.Status != domain.StatusReady || t.Decision != domain.DecisionPending {
			outErr = &StaleDecisionError{TradeID: tradeID, Status: t.Status}
			return
		}

		if !approve {
			if _, err := o.db.Cancel(tradeID, domain.CancelSkip, domain.DecisionSkip); err != nil {
				outErr = err
				return
			}
			o.forgetTrade(tradeID)
			log.Info().Int64("trade_id", tradeID).Int64("user_id", userID).Msg("👎 Entry skipped by user")
			return
		}

		if err := o.db.SetTradeDecision(tradeID, domain.DecisionOK); err != nil {
			outErr = err
			return
		}
		log.Info().Int64("trade_id", tradeID).Int64("user_id", userID).Msg("👍 Entry approved by user")
	})
	return outErr
}

// StaleDecisionError marks an approval that arrived after the trade left
// READY (timeout, cancel, or a duplicate button press).
type StaleDecisionError struct {
	TradeID int64
	Status  domain.TradeStatus
}

func (e *StaleDecisionError) Error() string {
	return fmt.Sprintf("trade %d is not awaiting a decision (status %s)", e.TradeID, e.Status)
}

// Pause stops cycle processing; in-flight trades freeze where they are.
func (o *Orchestrator) Pause() error {
	_, err := o.db.UpdateStatsFields(func(s *domain.Stats) { s.IsPaused = true })
	if err == nil {
		log.Info().Msg("⏸ Paused")
	}
	return err
}

func (o *Orchestrator) Resume() error {
	_, err := o.db.UpdateStatsFields(func(s *domain.Stats) { s.IsPaused = false })
	if err == nil {
		log.Info().Msg("▶️ Resumed")
	}
	return err
}

// SetDayOnly gates new trades to day sessions. Mutually exclusive with
// night-only.
func (o *Orchestrator) SetDayOnly(enabled bool) error {
	_, err := o.db.UpdateStatsFields(func(s *domain.Stats) {
		s.DayOnly = enabled
		if enabled {
			s.NightOnly = false
		}
	})
	return err
}

func (o *Orchestrator) SetNightOnly(enabled bool) error {
	_, err := o.db.UpdateStatsFields(func(s *domain.Stats) {
		s.NightOnly = enabled
		if enabled {
			s.DayOnly = false
		}
	})
	return err
}

// ApplySetting validates and persists one settings override.
func (o *Orchestrator) ApplySetting(key, value string) error {
	if _, errs := o.baseCfg.WithSettings(map[string]string{key: value}); len(errs) > 0 {
		return errs[0]
	}
	return o.db.SetSetting(key, value)
}
