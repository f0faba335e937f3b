package indicators

import (
	"math"

	"strategylab/services/market"
)

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|). Index 0 has no previous
// close and is absent.
func TrueRange(candles []market.Candle) Series {
	out := make(Series, len(candles))
	for i := 1; i < len(candles); i++ {
		out[i] = Some(trueRange(candles[i], candles[i-1].Close))
	}
	return out
}

func trueRange(c market.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}

// ATR seeds with the mean of the first period true ranges and then applies Wilder's
// smoothing (prev*(period-1)+tr)/period. Warm-up: period.
func ATR(candles []market.Candle, period int) Series {
	out := make(Series, len(candles))
	if period <= 0 || len(candles) < period+1 {
		return out
	}
	tr := TrueRange(candles)

	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += tr[i].v
	}
	atr /= float64(period)
	out[period] = Some(atr)

	p := float64(period)
	for i := period + 1; i < len(candles); i++ {
		atr = (atr*(p-1) + tr[i].v) / p
		out[i] = Some(atr)
	}
	return out
}
