// Package stats owns the win-streak ledger and the quality policy derived
// from it. Streaks move only on settled trades that were both taken and
// filled; everything else settles without touching them. The policy flips
// to STRICT on a long enough streak and back to BASE on any counted loss.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/martin/internal/config"
	"github.com/web3guy0/martin/internal/domain"
)

// Apply folds one settled trade into the stats row. Call under the same
// transaction that marks the trade SETTLED. A winning night trade that
// reaches the night win cap triggers the configured reset right here and
// latches night autotrade off until the next day session, so the reset
// and the settlement can never diverge.
func Apply(s *domain.Stats, t *domain.Trade, isWin bool, cfg *config.Config) {
	if !t.CountsForStreak() {
		return
	}

	s.TotalTrades++
	if isWin {
		s.TotalWins++
		s.TradeLevelStreak++
		if t.TimeMode == domain.ModeNight {
			s.NightStreak++
		}
	} else {
		s.TotalLosses++
		s.TradeLevelStreak = 0
		s.NightStreak = 0
		s.PolicyMode = domain.PolicyBase
	}

	if s.TradeLevelStreak >= cfg.DayNight.SwitchStreakAt {
		s.PolicyMode = domain.PolicyStrict
	}

	if isWin && t.TimeMode == domain.ModeNight && s.NightStreak >= cfg.DayNight.NightMaxWinStreak {
		s.NightDisabled = true
		capReset(s, domain.NightSessionMode(cfg.DayNight.NightSessionMode))
		log.Info().
			Str("mode", cfg.DayNight.NightSessionMode).
			Int("trade_streak", s.TradeLevelStreak).
			Msg("🌙 Night win cap reached, autotrade off until morning")
	}
}

// capReset applies the configured reset when the night win cap is hit.
// OFF keeps the streaks, SOFT clears the night streak and drops back to
// BASE, HARD also clears the trade-level streak.
func capReset(s *domain.Stats, mode domain.NightSessionMode) {
	switch mode {
	case domain.NightSoft:
		s.NightStreak = 0
		s.PolicyMode = domain.PolicyBase
	case domain.NightHard:
		s.NightStreak = 0
		s.TradeLevelStreak = 0
		s.PolicyMode = domain.PolicyBase
	}
}

// Threshold returns the effective minimum quality for the time mode under
// the current policy. BASE uses the configured floor. STRICT uses the
// rolling quantile threshold when one is available, the fallback multiplier
// when quantiles are enabled but not yet warmed up, and the incremental
// formula when quantiles are off.
func Threshold(mode domain.TimeMode, s *domain.Stats, cfg *config.Config) float64 {
	base := cfg.DayNight.BaseDayMinQuality
	if mode == domain.ModeNight {
		base = cfg.DayNight.BaseNightMinQuality
	}
	if s.PolicyMode != domain.PolicyStrict {
		return base
	}

	if cfg.RollingQuantile.Enabled {
		stored := s.LastStrictDayThreshold
		if mode == domain.ModeNight {
			stored = s.LastStrictNightThreshold
		}
		if stored != nil {
			return *stored
		}
		return base * cfg.RollingQuantile.StrictFallbackMult
	}

	extra := s.TradeLevelStreak - cfg.DayNight.StartStrictAfterNWins + 1
	if extra < 0 {
		extra = 0
	}
	return base + float64(extra)*cfg.DayNight.StrictQualityIncrement
}

// quantileLevels maps the configured labels onto probabilities.
var quantileLevels = map[string]float64{
	"p90": 0.90,
	"p95": 0.95,
	"p97": 0.97,
	"p99": 0.99,
}

// Quantile computes the type-7 (linear interpolation) sample quantile for
// one of the supported labels. ok is false for an unknown label or an
// empty sample set.
func Quantile(samples []float64, label string) (float64, bool) {
	q, known := quantileLevels[label]
	if !known || len(samples) == 0 {
		return 0, false
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	h := float64(len(sorted)-1) * q
	lo := int(math.Floor(h))
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo], true
	}
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo]), true
}

// SampleSource yields quality samples for the rolling window. Satisfied by
// *database.Database.
type SampleSource interface {
	QualitySamples(mode domain.TimeMode, cutoff time.Time, limit int) ([]float64, error)
}

// RollingThresholds recomputes the STRICT thresholds from the rolling
// sample window. A mode with fewer than min_samples stays nil, which sends
// Threshold to the fallback multiplier.
func RollingThresholds(src SampleSource, cfg *config.Config, now time.Time) (day, night *float64, err error) {
	cutoff := now.AddDate(0, 0, -cfg.RollingQuantile.RollingDays)

	day, err = rollingThreshold(src, cfg, domain.ModeDay, cfg.RollingQuantile.StrictDayQ, cutoff)
	if err != nil {
		return nil, nil, err
	}
	night, err = rollingThreshold(src, cfg, domain.ModeNight, cfg.RollingQuantile.StrictNightQ, cutoff)
	if err != nil {
		return nil, nil, err
	}
	return day, night, nil
}

func rollingThreshold(src SampleSource, cfg *config.Config, mode domain.TimeMode, label string, cutoff time.Time) (*float64, error) {
	samples, err := src.QualitySamples(mode, cutoff, cfg.RollingQuantile.MaxSamples)
	if err != nil {
		return nil, err
	}
	if len(samples) < cfg.RollingQuantile.MinSamples {
		log.Debug().
			Str("mode", string(mode)).
			Int("samples", len(samples)).
			Int("min_samples", cfg.RollingQuantile.MinSamples).
			Msg("Not enough samples for rolling threshold")
		return nil, nil
	}

	v, ok := Quantile(samples, label)
	if !ok {
		return nil, nil
	}
	log.Info().
		Str("mode", string(mode)).
		Str("quantile", label).
		Float64("threshold", v).
		Int("samples", len(samples)).
		Msg("📐 Rolling threshold updated")
	return &v, nil
}
