// Package ta detects entry signals on 1-minute candles and scores them.
//
// Detection: EMA20 crossover with a 2-bar confirm, evaluated at candle
// close only. Quality: distance from the anchor bar, ADX(14) trend
// strength and EMA50 slope, multiplied by a 5-minute trend factor.
// The orchestrator treats the whole thing as a black box behind its
// oracle interface and only ever compares Quality against a threshold.
package ta

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/martin/internal/binance"
	"github.com/web3guy0/martin/internal/domain"
)

const (
	emaSignalPeriod = 20
	emaSlopePeriod  = 50
	slopeBars       = 6
	adxPeriod       = 14
	anchorScale     = 10000.0
	weightAnchor    = 1.0
	weightADX       = 0.2
	weightSlope     = 0.2
	trendBonus      = 1.10
	trendPenalty    = 0.70

	// EMA20 needs 20 bars plus 3 for the crossover pattern.
	minCandles = 23
)

// Evaluation is one qualifying detection. Breakdown is opaque JSON.
type Evaluation struct {
	Direction   domain.Direction
	SignalTS    int64
	Quality     float64
	Breakdown   string
	AnchorBarTS int64
}

// breakdown is serialized into Evaluation.Breakdown for notifications and
// the signal row. Nobody downstream parses it.
type breakdown struct {
	AnchorPrice     float64 `json:"anchor_price"`
	SignalPrice     float64 `json:"signal_price"`
	RetFromAnchor   float64 `json:"ret_from_anchor"`
	AnchorComponent float64 `json:"anchor_component"`
	ADXValue        float64 `json:"adx_value"`
	ADXComponent    float64 `json:"adx_component"`
	EMA50Slope      float64 `json:"ema50_slope"`
	SlopeComponent  float64 `json:"slope_component"`
	TrendMult       float64 `json:"trend_mult"`
	FinalQuality    float64 `json:"final_quality"`
}

type signal struct {
	direction   domain.Direction
	signalTS    int64
	signalPrice float64
	anchorTS    int64
	anchorPrice float64
	signalIdx   int
}

// Engine is stateless; ConfirmDelay only shifts the confirm point the
// orchestrator derives from SignalTS.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate scans the 1m candles of the window for a crossover signal and,
// if one is found, scores it. Returns nil when no signal is present yet.
// Pure: equivalent inputs give equivalent outputs.
func (e *Engine) Evaluate(candles1m, candles5m []binance.Candle, startTS, endTS, now int64) *Evaluation {
	// Only closed bars up to now take part.
	c1m := candlesUpTo(candles1m, now)
	c5m := candlesUpTo(candles5m, now)

	sig := detectSignal(c1m, startTS)
	if sig == nil {
		return nil
	}

	bd := score(sig, c1m, c5m)
	raw, err := json.Marshal(bd)
	if err != nil {
		log.Error().Err(err).Msg("Quality breakdown marshal failed")
		raw = []byte("{}")
	}

	return &Evaluation{
		Direction:   sig.direction,
		SignalTS:    sig.signalTS,
		Quality:     bd.FinalQuality,
		Breakdown:   string(raw),
		AnchorBarTS: sig.anchorTS,
	}
}

func candlesUpTo(candles []binance.Candle, now int64) []binance.Candle {
	out := candles
	for len(out) > 0 && out[len(out)-1].OpenTime > now {
		out = out[:len(out)-1]
	}
	return out
}

// detectSignal looks for the EMA20 crossover with a 2-bar confirm:
// the two most recent closed bars on one side of the EMA, the bar before
// them on the other side. The anchor is the first bar at or after the
// window start.
func detectSignal(candles []binance.Candle, startTS int64) *signal {
	if len(candles) < minCandles {
		return nil
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i], _ = c.Close.Float64()
	}
	ema := EMA(closes, emaSignalPeriod)

	anchorIdx := -1
	for i, c := range candles {
		if c.OpenTime >= startTS {
			anchorIdx = i
			break
		}
	}
	if anchorIdx < 0 || anchorIdx >= len(candles)-2 {
		return nil
	}
	anchor := candles[anchorIdx]
	anchorPrice, _ := anchor.Close.Float64()

	for i := anchorIdx + 2; i < len(candles); i++ {
		if ema[i] == 0 || ema[i-1] == 0 || ema[i-2] == 0 {
			continue
		}

		above := closes[i] > ema[i] && closes[i-1] > ema[i-1] && closes[i-2] < ema[i-2]
		below := closes[i] < ema[i] && closes[i-1] < ema[i-1] && closes[i-2] > ema[i-2]

		if above || below {
			dir := domain.DirectionUp
			if below {
				dir = domain.DirectionDown
			}
			return &signal{
				direction:   dir,
				signalTS:    candles[i].OpenTime,
				signalPrice: closes[i],
				anchorTS:    anchor.OpenTime,
				anchorPrice: anchorPrice,
				signalIdx:   i,
			}
		}
	}
	return nil
}

// score computes quality = (anchor*1.0 + adx*0.2 + slope*0.2) * trend_mult.
func score(sig *signal, candles1m, candles5m []binance.Candle) breakdown {
	bd := breakdown{
		AnchorPrice: sig.anchorPrice,
		SignalPrice: sig.signalPrice,
		TrendMult:   1.0,
	}

	if sig.anchorPrice != 0 {
		bd.RetFromAnchor = (sig.signalPrice - sig.anchorPrice) / sig.anchorPrice
	}
	bd.AnchorComponent = abs(bd.RetFromAnchor) * anchorScale

	highs := make([]float64, len(candles1m))
	lows := make([]float64, len(candles1m))
	closes := make([]float64, len(candles1m))
	for i, c := range candles1m {
		highs[i], _ = c.High.Float64()
		lows[i], _ = c.Low.Float64()
		closes[i], _ = c.Close.Float64()
	}

	idx := sig.signalIdx
	if idx >= len(candles1m) {
		idx = len(candles1m) - 1
	}

	adx := ADX(highs, lows, closes, adxPeriod)
	if idx >= 0 && idx < len(adx) {
		bd.ADXValue = adx[idx]
	}
	bd.ADXComponent = min1(bd.ADXValue / 100.0)

	ema50 := EMA(closes, emaSlopePeriod)
	if prev := idx - slopeBars; prev >= 0 && idx < len(ema50) && ema50[prev] != 0 {
		bd.EMA50Slope = ema50[idx] - ema50[prev]
		bd.SlopeComponent = min1(abs(bd.EMA50Slope/ema50[prev]) * 100)
	}

	bd.TrendMult = trendMultiplier(sig, candles5m)

	bd.FinalQuality = (weightAnchor*bd.AnchorComponent +
		weightADX*bd.ADXComponent +
		weightSlope*bd.SlopeComponent) * bd.TrendMult
	return bd
}

// trendMultiplier confirms or opposes the signal against EMA20 on the
// 5-minute frame.
func trendMultiplier(sig *signal, candles5m []binance.Candle) float64 {
	if len(candles5m) == 0 {
		return 1.0
	}

	idx := -1
	for i, c := range candles5m {
		if c.OpenTime <= sig.signalTS {
			idx = i
		} else {
			break
		}
	}
	if idx < 0 {
		idx = len(candles5m) - 1
	}

	closes := make([]float64, len(candles5m))
	for i, c := range candles5m {
		closes[i], _ = c.Close.Float64()
	}
	ema := EMA(closes, emaSignalPeriod)
	if idx >= len(ema) || ema[idx] == 0 {
		return 1.0
	}

	confirms := closes[idx] > ema[idx]
	if sig.direction == domain.DirectionDown {
		confirms = closes[idx] < ema[idx]
	}
	if confirms {
		return trendBonus
	}
	return trendPenalty
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
