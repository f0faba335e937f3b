package indicators

import (
	"fmt"
	"math"

	"strategylab/services/market"
)

// FibRatios are the retracement ratios measured down from the swing high.
var FibRatios = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}

// FibLevel is one retracement line.
type FibLevel struct {
	Ratio  float64
	Port   string
	Series Series
}

// FibPort names the output for a ratio, e.g. 0.618 -> "level_618", 1 -> "level_100".
func FibPort(ratio float64) string {
	if ratio == 1 {
		return "level_100"
	}
	return fmt.Sprintf("level_%d", int(math.Round(ratio*1000)))
}

// Fibonacci computes retracement levels between the highest high and lowest low of the
// trailing period candles: level = high - (high-low)*ratio. Warm-up: period-1.
func Fibonacci(candles []market.Candle, period int) []FibLevel {
	n := len(candles)
	levels := make([]FibLevel, len(FibRatios))
	for k, r := range FibRatios {
		levels[k] = FibLevel{Ratio: r, Port: FibPort(r), Series: make(Series, n)}
	}
	if period <= 0 {
		return levels
	}
	for i := period - 1; i < n; i++ {
		hh, ll := highestLowest(candles, i, period)
		for k, r := range FibRatios {
			levels[k].Series[i] = Some(hh - (hh-ll)*r)
		}
	}
	return levels
}
