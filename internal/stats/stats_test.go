package stats

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/web3guy0/martin/internal/config"
	"github.com/web3guy0/martin/internal/domain"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func countedTrade(mode domain.TimeMode) *domain.Trade {
	return &domain.Trade{
		TimeMode:   mode,
		Decision:   domain.DecisionOK,
		FillStatus: domain.FillFilled,
	}
}

func TestApplyWinMovesStreaks(t *testing.T) {
	cfg := testConfig(t)
	s := &domain.Stats{ID: 1, PolicyMode: domain.PolicyBase}

	Apply(s, countedTrade(domain.ModeNight), true, cfg)

	if s.TradeLevelStreak != 1 || s.NightStreak != 1 {
		t.Errorf("streaks = %d/%d, want 1/1", s.TradeLevelStreak, s.NightStreak)
	}
	if s.TotalTrades != 1 || s.TotalWins != 1 {
		t.Errorf("totals = %d trades / %d wins", s.TotalTrades, s.TotalWins)
	}

	Apply(s, countedTrade(domain.ModeDay), true, cfg)
	if s.TradeLevelStreak != 2 {
		t.Errorf("trade streak = %d, want 2", s.TradeLevelStreak)
	}
	if s.NightStreak != 1 {
		t.Errorf("day win must not move the night streak, got %d", s.NightStreak)
	}
}

func TestApplyLossResetsBothStreaksAndPolicy(t *testing.T) {
	cfg := testConfig(t)
	s := &domain.Stats{
		ID:               1,
		TradeLevelStreak: 4,
		NightStreak:      2,
		PolicyMode:       domain.PolicyStrict,
	}

	Apply(s, countedTrade(domain.ModeDay), false, cfg)

	if s.TradeLevelStreak != 0 || s.NightStreak != 0 {
		t.Errorf("streaks = %d/%d, want 0/0", s.TradeLevelStreak, s.NightStreak)
	}
	if s.PolicyMode != domain.PolicyBase {
		t.Errorf("policy = %s, want BASE", s.PolicyMode)
	}
	if s.TotalLosses != 1 {
		t.Errorf("losses = %d, want 1", s.TotalLosses)
	}
}

func TestApplySwitchesToStrictAtStreak(t *testing.T) {
	cfg := testConfig(t) // switch_streak_at = 3
	s := &domain.Stats{ID: 1, PolicyMode: domain.PolicyBase}

	for i := 0; i < 2; i++ {
		Apply(s, countedTrade(domain.ModeDay), true, cfg)
		if s.PolicyMode != domain.PolicyBase {
			t.Fatalf("policy flipped early at streak %d", s.TradeLevelStreak)
		}
	}
	Apply(s, countedTrade(domain.ModeDay), true, cfg)
	if s.PolicyMode != domain.PolicyStrict {
		t.Errorf("policy = %s at streak 3, want STRICT", s.PolicyMode)
	}
}

func TestApplyIgnoresUncountedTrades(t *testing.T) {
	cfg := testConfig(t)
	s := &domain.Stats{ID: 1, TradeLevelStreak: 2, PolicyMode: domain.PolicyBase}

	skipped := &domain.Trade{
		TimeMode:   domain.ModeDay,
		Decision:   domain.DecisionAutoSkip,
		FillStatus: domain.FillPending,
	}
	Apply(s, skipped, false, cfg)

	unfilled := &domain.Trade{
		TimeMode:   domain.ModeDay,
		Decision:   domain.DecisionOK,
		FillStatus: domain.FillRejected,
	}
	Apply(s, unfilled, false, cfg)

	if s.TradeLevelStreak != 2 || s.TotalTrades != 0 {
		t.Errorf("uncounted trades moved the ledger: streak %d, trades %d",
			s.TradeLevelStreak, s.TotalTrades)
	}
}

func TestApplyNightCapResetSoft(t *testing.T) {
	cfg := testConfig(t) // night_max_win_streak = 5
	cfg.DayNight.NightSessionMode = "SOFT"
	s := &domain.Stats{
		ID:               1,
		TradeLevelStreak: 4,
		NightStreak:      4,
		PolicyMode:       domain.PolicyStrict,
	}

	Apply(s, countedTrade(domain.ModeNight), true, cfg)

	if !s.NightDisabled {
		t.Error("cap-reaching win must latch night autotrade off")
	}
	if s.NightStreak != 0 {
		t.Errorf("night streak = %d, want 0", s.NightStreak)
	}
	if s.PolicyMode != domain.PolicyBase {
		t.Errorf("policy = %s, want BASE", s.PolicyMode)
	}
	if s.TradeLevelStreak != 5 {
		t.Errorf("SOFT must keep the trade streak, got %d", s.TradeLevelStreak)
	}
}

func TestApplyNightCapResetHard(t *testing.T) {
	cfg := testConfig(t)
	cfg.DayNight.NightSessionMode = "HARD"
	s := &domain.Stats{
		ID:               1,
		TradeLevelStreak: 4,
		NightStreak:      4,
		PolicyMode:       domain.PolicyStrict,
	}

	Apply(s, countedTrade(domain.ModeNight), true, cfg)

	if !s.NightDisabled {
		t.Error("cap-reaching win must latch night autotrade off")
	}
	if s.TradeLevelStreak != 0 || s.NightStreak != 0 {
		t.Errorf("streaks = %d/%d, want 0/0", s.TradeLevelStreak, s.NightStreak)
	}
	if s.PolicyMode != domain.PolicyBase {
		t.Errorf("policy = %s, want BASE", s.PolicyMode)
	}
}

func TestApplyNightCapOffKeepsStreaks(t *testing.T) {
	cfg := testConfig(t)
	cfg.DayNight.NightSessionMode = "OFF"
	s := &domain.Stats{
		ID:               1,
		TradeLevelStreak: 4,
		NightStreak:      4,
		PolicyMode:       domain.PolicyStrict,
	}

	Apply(s, countedTrade(domain.ModeNight), true, cfg)

	if !s.NightDisabled {
		t.Error("OFF still latches night autotrade off")
	}
	if s.TradeLevelStreak != 5 || s.NightStreak != 5 {
		t.Errorf("OFF must keep the streaks: %d/%d", s.TradeLevelStreak, s.NightStreak)
	}
	if s.PolicyMode != domain.PolicyStrict {
		t.Errorf("OFF must keep the policy, got %s", s.PolicyMode)
	}
}

func TestApplyBelowNightCapDoesNotLatch(t *testing.T) {
	cfg := testConfig(t)
	s := &domain.Stats{ID: 1, NightStreak: 2, TradeLevelStreak: 2, PolicyMode: domain.PolicyBase}

	Apply(s, countedTrade(domain.ModeNight), true, cfg)
	if s.NightDisabled {
		t.Error("latch must not trip below the cap")
	}

	// A day win cannot trip the night cap even at the boundary.
	s = &domain.Stats{ID: 1, NightStreak: 4, TradeLevelStreak: 4, PolicyMode: domain.PolicyStrict}
	Apply(s, countedTrade(domain.ModeDay), true, cfg)
	if s.NightDisabled {
		t.Error("a day win must not trip the night cap")
	}
	if s.NightStreak != 4 {
		t.Errorf("night streak = %d, want 4", s.NightStreak)
	}
}

func TestThresholdBaseAndIncrementalStrict(t *testing.T) {
	cfg := testConfig(t) // day 35, night 45, start_strict_after 3, increment 5

	s := &domain.Stats{PolicyMode: domain.PolicyBase, TradeLevelStreak: 2}
	if got := Threshold(domain.ModeDay, s, cfg); got != 35 {
		t.Errorf("BASE day = %v, want 35", got)
	}
	if got := Threshold(domain.ModeNight, s, cfg); got != 45 {
		t.Errorf("BASE night = %v, want 45", got)
	}

	s = &domain.Stats{PolicyMode: domain.PolicyStrict, TradeLevelStreak: 3}
	if got := Threshold(domain.ModeDay, s, cfg); got != 40 { // 35 + 1*5
		t.Errorf("STRICT day at streak 3 = %v, want 40", got)
	}
	s.TradeLevelStreak = 5
	if got := Threshold(domain.ModeDay, s, cfg); got != 50 { // 35 + 3*5
		t.Errorf("STRICT day at streak 5 = %v, want 50", got)
	}
	if got := Threshold(domain.ModeNight, s, cfg); got != 60 { // 45 + 3*5
		t.Errorf("STRICT night at streak 5 = %v, want 60", got)
	}
}

func TestThresholdQuantileSourceAndFallback(t *testing.T) {
	cfg := testConfig(t)
	cfg.RollingQuantile.Enabled = true

	// No stored threshold yet: fall back to base * mult.
	s := &domain.Stats{PolicyMode: domain.PolicyStrict, TradeLevelStreak: 5}
	if got, want := Threshold(domain.ModeDay, s, cfg), 35*1.2; math.Abs(got-want) > 1e-9 {
		t.Errorf("fallback day = %v, want %v", got, want)
	}

	stored := 62.5
	s.LastStrictDayThreshold = &stored
	if got := Threshold(domain.ModeDay, s, cfg); got != 62.5 {
		t.Errorf("stored day = %v, want 62.5", got)
	}
	// Night still unset: fallback applies per mode.
	if got, want := Threshold(domain.ModeNight, s, cfg), 45*1.2; math.Abs(got-want) > 1e-9 {
		t.Errorf("fallback night = %v, want %v", got, want)
	}
}

func TestQuantileType7(t *testing.T) {
	samples := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	tests := []struct {
		label string
		want  float64
	}{
		{"p90", 91},  // h = 9*0.90 = 8.1
		{"p95", 95.5},
		{"p99", 99.1},
	}
	for _, tt := range tests {
		got, ok := Quantile(samples, tt.label)
		if !ok {
			t.Fatalf("%s: not ok", tt.label)
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s = %v, want %v", tt.label, got, tt.want)
		}
	}

	if _, ok := Quantile(samples, "p50"); ok {
		t.Error("unsupported label must report not ok")
	}
	if _, ok := Quantile(nil, "p90"); ok {
		t.Error("empty samples must report not ok")
	}

	// Input order must not matter.
	shuffled := []float64{70, 10, 100, 40, 90, 20, 60, 30, 80, 50}
	got, _ := Quantile(shuffled, "p90")
	if math.Abs(got-91) > 1e-9 {
		t.Errorf("shuffled p90 = %v, want 91", got)
	}
}

type fakeSamples struct {
	day   []float64
	night []float64
	err   error
}

func (f *fakeSamples) QualitySamples(mode domain.TimeMode, _ time.Time, _ int) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	if mode == domain.ModeNight {
		return f.night, nil
	}
	return f.day, nil
}

func TestRollingThresholds(t *testing.T) {
	cfg := testConfig(t)
	cfg.RollingQuantile.Enabled = true
	cfg.RollingQuantile.MinSamples = 5

	many := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	src := &fakeSamples{day: many, night: []float64{1, 2}}

	day, night, err := RollingThresholds(src, cfg, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if day == nil {
		t.Fatal("day threshold must be set with enough samples")
	}
	if math.Abs(*day-91) > 1e-9 { // p90 of many
		t.Errorf("day = %v, want 91", *day)
	}
	if night != nil {
		t.Errorf("night must stay nil below min_samples, got %v", *night)
	}

	src.err = errors.New("db down")
	if _, _, err := RollingThresholds(src, cfg, time.Now()); err == nil {
		t.Error("source error must propagate")
	}
}
