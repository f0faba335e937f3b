package indicators

import "strategylab/services/market"

// OBV accumulates volume signed by the close-to-close direction, starting at 0. No warm-up.
func OBV(candles []market.Candle) Series {
	out := make(Series, len(candles))
	if len(candles) == 0 {
		return out
	}
	obv := 0.0
	out[0] = Some(0)
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			obv += candles[i].Volume
		case candles[i].Close < candles[i-1].Close:
			obv -= candles[i].Volume
		}
		out[i] = Some(obv)
	}
	return out
}
