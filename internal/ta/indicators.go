package ta

import "math"

// EMA computes an exponential moving average with an SMA seed. Entries
// before the seed are zero, which callers treat as not-yet-valid.
func EMA(values []float64, period int) []float64 {
	if len(values) == 0 || period <= 0 {
		return nil
	}
	if len(values) < period {
		return make([]float64, len(values))
	}

	out := make([]float64, len(values))
	sma := 0.0
	for _, v := range values[:period] {
		sma += v
	}
	out[period-1] = sma / float64(period)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = (values[i]-out[i-1])*multiplier + out[i-1]
	}
	return out
}

// ADX computes the Average Directional Index with Wilder smoothing.
// Values before 2*period-1 are zero (not yet valid).
func ADX(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	if n < period*2 {
		return make([]float64, n)
	}

	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)

	for i := 1; i < n; i++ {
		tr[i] = math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))

		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	atr := wilderSmooth(tr, period)
	smoothPlus := wilderSmooth(plusDM, period)
	smoothMinus := wilderSmooth(minusDM, period)

	plusDI := make([]float64, n)
	minusDI := make([]float64, n)
	dx := make([]float64, n)
	for i := period; i < n; i++ {
		if atr[i] != 0 {
			plusDI[i] = 100 * smoothPlus[i] / atr[i]
			minusDI[i] = 100 * smoothMinus[i] / atr[i]
		}
		if sum := plusDI[i] + minusDI[i]; sum != 0 {
			dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / sum
		}
	}

	adx := make([]float64, n)
	start := period*2 - 1
	if start < n {
		first := 0.0
		for i := period; i <= start; i++ {
			first += dx[i]
		}
		adx[start] = first / float64(period)
		for i := start + 1; i < n; i++ {
			adx[i] = (adx[i-1]*float64(period-1) + dx[i]) / float64(period)
		}
	}
	return adx
}

// wilderSmooth seeds with the sum of the first period values and then
// applies Wilder's recursive smoothing.
func wilderSmooth(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) < period+1 {
		return out
	}

	first := 0.0
	for _, v := range values[1 : period+1] {
		first += v
	}
	out[period] = first

	for i := period + 1; i < len(values); i++ {
		out[i] = out[i-1] - out[i-1]/float64(period) + values[i]
	}
	return out
}
