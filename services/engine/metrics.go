package engine

import (
	"math"

	"github.com/shopspring/decimal"

	"strategylab/services/market"
)

const daysPerYear = 365.25

func emptyResult(initial float64) BacktestResult {
	return BacktestResult{
		InitialBalance: initial,
		FinalBalance:   initial,
		EquityCurve:    []EquityPoint{},
		BenchmarkCurve: []EquityPoint{},
		Trades:         []Trade{},
	}
}

func buildResult(opts Options, candles []market.Candle, st *SimulationState, curve []EquityPoint) BacktestResult {
	initial := opts.InitialBalance
	res := emptyResult(initial)
	res.FinalBalance = st.Equity
	res.EquityCurve = curve
	res.Trades = st.Trades
	res.NumTrades = len(st.Trades)
	res.BenchmarkCurve = BuyAndHold(candles, initial)

	if initial != 0 {
		res.TotalReturnPct = (res.FinalBalance - initial) / initial * 100
	}
	years := max(candles[len(candles)-1].Timestamp.Sub(candles[0].Timestamp).Hours()/24/daysPerYear, 1/daysPerYear)
	res.CAGRPct = cagrPct(initial, res.FinalBalance, years)
	res.MaxDrawdownPct = maxDrawdownPct(initial, curve)

	if res.NumTrades > 0 {
		wins := 0
		for _, t := range st.Trades {
			if t.IsWin() {
				wins++
			}
		}
		res.WinRatePct = float64(wins) / float64(res.NumTrades) * 100
	}

	strat := withInitial(initial, curve)
	bench := withInitial(initial, res.BenchmarkCurve)
	cmp := CompareBenchmark(strat, bench)
	res.BenchmarkReturnPct = cmp.BenchmarkReturnPct
	res.Alpha = res.TotalReturnPct - cmp.BenchmarkReturnPct
	res.Beta = cmp.Beta

	returns := periodReturns(strat)
	ppy := opts.Timeframe.PeriodsPerYear()
	res.Sharpe = sharpe(returns, ppy)
	res.Sortino = sortino(returns, ppy)
	if res.MaxDrawdownPct > 0 {
		res.Calmar = res.CAGRPct / res.MaxDrawdownPct
	}

	total := st.fees.Add(st.slippage).Add(st.spread)
	res.TotalFeesUSD = st.fees.InexactFloat64()
	res.TotalSlippageUSD = st.slippage.InexactFloat64()
	res.TotalSpreadUSD = st.spread.InexactFloat64()
	res.TotalCostsUSD = total.InexactFloat64()
	if res.NumTrades > 0 {
		res.AvgCostPerTradeUSD = total.Div(decimal.NewFromInt(int64(res.NumTrades))).InexactFloat64()
	}
	res.GrossReturnUSD = st.gross.InexactFloat64()
	if initial != 0 {
		res.GrossReturnPct = res.GrossReturnUSD / initial * 100
	}
	if !st.gross.IsZero() {
		res.CostPctGrossReturn = total.Div(st.gross.Abs()).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}

	sum := Summarize(st.Trades)
	res.ProfitFactor = sum.ProfitFactor.InexactFloat64()
	res.AvgWinUSD = sum.AvgWinUsd.InexactFloat64()
	res.AvgLossUSD = sum.AvgLossUsd.InexactFloat64()
	res.ExpectancyUSD = sum.Expectancy.InexactFloat64()
	res.AvgBarsHeld = sum.AvgBarsHeld.InexactFloat64()
	res.ExposurePct = float64(st.BarsInMarket) / float64(len(candles)) * 100
	return res
}

// cagrPct is ((final/initial)^(1/years)-1)*100, or 0 when undefined. A wiped-out account
// is -100.
func cagrPct(initial, final, years float64) float64 {
	if initial <= 0 || years <= 0 {
		return 0
	}
	if final <= 0 {
		return -100
	}
	g := (math.Pow(final/initial, 1/years) - 1) * 100
	if math.IsNaN(g) || math.IsInf(g, 0) {
		return 0
	}
	return g
}

// maxDrawdownPct is the largest peak-to-trough drop, the initial balance being the first peak.
func maxDrawdownPct(initial float64, curve []EquityPoint) float64 {
	peak, worst := initial, 0.0
	for _, p := range curve {
		peak = max(peak, p.Equity)
		if peak > 0 {
			worst = max(worst, (peak-p.Equity)/peak*100)
		}
	}
	return worst
}

func withInitial(initial float64, curve []EquityPoint) []float64 {
	out := make([]float64, 0, len(curve)+1)
	out = append(out, initial)
	for _, p := range curve {
		out = append(out, p.Equity)
	}
	return out
}

// periodReturns are simple returns between consecutive points; a zero base yields 0.
func periodReturns(curve []float64) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if curve[i-1] != 0 {
			out[i-1] = (curve[i] - curve[i-1]) / curve[i-1]
		}
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// sharpe is mean/sample-stddev annualised by sqrt(periodsPerYear), with a zero risk-free rate.
func sharpe(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	ss := 0.0
	for _, r := range returns {
		ss += (r - m) * (r - m)
	}
	sd := math.Sqrt(ss / float64(len(returns)-1))
	if sd == 0 {
		return 0
	}
	return m / sd * math.Sqrt(periodsPerYear)
}

// sortino divides by the downside deviation sqrt(mean(min(r,0)^2)).
func sortino(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	ss := 0.0
	for _, r := range returns {
		if r < 0 {
			ss += r * r
		}
	}
	dd := math.Sqrt(ss / float64(len(returns)))
	if dd == 0 {
		return 0
	}
	return mean(returns) / dd * math.Sqrt(periodsPerYear)
}
