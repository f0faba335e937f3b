package engine

import "strategylab/services/market"

// BenchmarkComparison relates a strategy equity curve to a buy-and-hold curve over the
// same period.
type BenchmarkComparison struct {
	StrategyReturnPct  float64 `json:"strategy_return_pct"`
	BenchmarkReturnPct float64 `json:"benchmark_return_pct"`
	Alpha              float64 `json:"alpha"`
	Beta               float64 `json:"beta"`
}

// BuyAndHold values the whole initial balance invested at the first candle's open.
func BuyAndHold(candles []market.Candle, initial float64) []EquityPoint {
	curve := make([]EquityPoint, 0, len(candles))
	if len(candles) == 0 || candles[0].Open <= 0 {
		for _, c := range candles {
			curve = append(curve, EquityPoint{Timestamp: c.Timestamp, Equity: initial})
		}
		return curve
	}
	qty := initial / candles[0].Open
	for _, c := range candles {
		curve = append(curve, EquityPoint{Timestamp: c.Timestamp, Equity: qty * c.Close})
	}
	return curve
}

// CompareBenchmark computes returns from the first and last point of each curve, alpha as
// their difference and beta as cov/var of the period returns. Beta is 0 when the benchmark
// does not move.
func CompareBenchmark(strategyCurve, benchmarkCurve []float64) BenchmarkComparison {
	cmp := BenchmarkComparison{
		StrategyReturnPct:  curveReturnPct(strategyCurve),
		BenchmarkReturnPct: curveReturnPct(benchmarkCurve),
	}
	cmp.Alpha = cmp.StrategyReturnPct - cmp.BenchmarkReturnPct
	cmp.Beta = beta(periodReturns(strategyCurve), periodReturns(benchmarkCurve))
	return cmp
}

func curveReturnPct(curve []float64) float64 {
	if len(curve) < 2 || curve[0] == 0 {
		return 0
	}
	return (curve[len(curve)-1] - curve[0]) / curve[0] * 100
}

func beta(strat, bench []float64) float64 {
	n := min(len(strat), len(bench))
	if n < 2 {
		return 0
	}
	ms, mb := mean(strat[:n]), mean(bench[:n])
	var cov, variance float64
	for i := 0; i < n; i++ {
		cov += (strat[i] - ms) * (bench[i] - mb)
		variance += (bench[i] - mb) * (bench[i] - mb)
	}
	if variance == 0 {
		return 0
	}
	return cov / variance
}
