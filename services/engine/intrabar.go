package engine

import (
	"sort"

	"strategylab/services/market"
)

// stopTouched reports whether the candle traded at or below level.
func stopTouched(c market.Candle, level float64) bool { return c.Low <= level }

// targetTouched reports whether the candle traded at or above level.
func targetTouched(c market.Candle, level float64) bool { return c.High >= level }

// sortLevels orders the ladder by ascending profit target.
func sortLevels(levels []tpLevelState) {
	sort.SliceStable(levels, func(i, j int) bool { return levels[i].ProfitPct < levels[j].ProfitPct })
}
