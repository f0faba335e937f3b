// Package engine simulates a single-instrument, long-only strategy over OHLCV candles and
// derives the trade log, equity curve and risk metrics.
package engine

import "strategylab/services/market"

// Options are the per-run cost and account parameters. Rates are fractions (0.001 = 0.1%).
type Options struct {
	InitialBalance float64          `json:"initial_balance" yaml:"initial_balance"`
	FeeRate        float64          `json:"fee_rate" yaml:"fee_rate"`
	SlippageRate   float64          `json:"slippage_rate" yaml:"slippage_rate"`
	SpreadRate     float64          `json:"spread_rate" yaml:"spread_rate"`
	Timeframe      market.Timeframe `json:"timeframe" yaml:"timeframe"`
}

// DefaultOptions are a 10k account on daily bars with 0.1% fees and 0.05% slippage.
func DefaultOptions() Options {
	return Options{
		InitialBalance: 10000,
		FeeRate:        0.001,
		SlippageRate:   0.0005,
		Timeframe:      market.TF1d,
	}
}

func (o Options) costs() CostModel {
	return CostModel{FeeRate: o.FeeRate, SlippageRate: o.SlippageRate, SpreadRate: o.SpreadRate}
}
