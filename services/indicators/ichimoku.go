package indicators

import "strategylab/services/market"

// IchimokuResult holds the five Ichimoku lines aligned with the input candles.
type IchimokuResult struct {
	Tenkan  Series
	Kijun   Series
	SenkouA Series
	SenkouB Series
	Chikou  Series
}

// Ichimoku computes the conversion (tenkan) and base (kijun) lines as midpoints of the
// highest high and lowest low, and the leading spans shifted forward by displacement bars.
// The lagging span is exposed without look-ahead: Chikou[i] is close[i-displacement], the
// price the current close is compared against on a chart.
//
// Warm-up: tenkan-1, kijun-1, max(tenkan,kijun)-1+displacement for span A,
// senkouB-1+displacement for span B, displacement for Chikou.
func Ichimoku(candles []market.Candle, tenkan, kijun, senkouB, displacement int) IchimokuResult {
	n := len(candles)
	res := IchimokuResult{
		Tenkan:  midpoint(candles, tenkan),
		Kijun:   midpoint(candles, kijun),
		SenkouA: make(Series, n),
		SenkouB: make(Series, n),
		Chikou:  make(Series, n),
	}
	spanB := midpoint(candles, senkouB)
	if displacement < 0 {
		displacement = 0
	}
	for i := displacement; i < n; i++ {
		j := i - displacement
		t, ok1 := res.Tenkan[j].Get()
		k, ok2 := res.Kijun[j].Get()
		if ok1 && ok2 {
			res.SenkouA[i] = Some((t + k) / 2)
		}
		res.SenkouB[i] = spanB[j]
		res.Chikou[i] = Some(candles[j].Close)
	}
	return res
}

func midpoint(candles []market.Candle, period int) Series {
	out := make(Series, len(candles))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(candles); i++ {
		hh, ll := highestLowest(candles, i, period)
		out[i] = Some((hh + ll) / 2)
	}
	return out
}
