package indicators

import "strategylab/services/market"

// StochasticResult holds %K (smoothed) and %D.
type StochasticResult struct {
	K Series
	D Series
}

// Stochastic computes raw %K over kPeriod (50 when the range is zero), smooths it with
// SMA(smooth) and derives %D = SMA(dPeriod) of the smoothed %K.
// Warm-up: kPeriod+smooth-2 for %K, kPeriod+smooth+dPeriod-3 for %D.
func Stochastic(candles []market.Candle, kPeriod, dPeriod, smooth int) StochasticResult {
	n := len(candles)
	raw := make(Series, n)
	if kPeriod > 0 {
		for i := kPeriod - 1; i < n; i++ {
			hh, ll := highestLowest(candles, i, kPeriod)
			if hh == ll {
				raw[i] = Some(50)
				continue
			}
			raw[i] = Some((candles[i].Close - ll) / (hh - ll) * 100)
		}
	}
	if smooth < 1 {
		smooth = 1
	}
	k := SMA(raw, smooth)
	return StochasticResult{K: k, D: SMA(k, dPeriod)}
}

// highestLowest returns the highest high and lowest low of candles[i-period+1..i].
func highestLowest(candles []market.Candle, i, period int) (float64, float64) {
	hh, ll := candles[i].High, candles[i].Low
	for j := i - period + 1; j < i; j++ {
		hh = max(hh, candles[j].High)
		ll = min(ll, candles[j].Low)
	}
	return hh, ll
}
