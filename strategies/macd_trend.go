package strategies

import "strategylab/services/strategy"

func init() {
	register(Template{
		Name:        "macd_trend",
		Description: "MACD line crossing its signal while ADX confirms a trend, with a trailing stop",
		Defaults: strategy.Params{
			"fast_period":       12,
			"slow_period":       26,
			"signal_period":     9,
			"adx_period":        14,
			"min_adx":           20.0,
			"trailing_stop_pct": 5.0,
			"max_drawdown_pct":  0.0,
		},
		build: buildMACDTrend,
	})
}

func buildMACDTrend(p strategy.Params) strategy.Definition {
	var b builder
	macd := b.block("macd", "macd", strategy.Params{
		"fast":   p.Int(12, "fast_period"),
		"slow":   p.Int(26, "slow_period"),
		"signal": p.Int(9, "signal_period"),
	})
	adx := b.block("adx", "adx", strategy.Params{"period": p.Int(14, "adx_period")})

	up := b.block("macd_up", "crossover", nil)
	b.wire(macd, strategy.PortMACD, up, strategy.PortA)
	b.wire(macd, strategy.PortSignal, up, strategy.PortB)
	trend := b.block("trending", "compare", strategy.Params{"operator": ">", "value": p.Float(20, "min_adx")})
	b.wire(adx, strategy.PortADX, trend, strategy.PortA)
	both := b.block("entry_and", "and", nil)
	b.wire(up, strategy.PortResult, both, strategy.PortA)
	b.wire(trend, strategy.PortResult, both, strategy.PortB)
	entry := b.block("entry", "entry_signal", nil)
	b.wire(both, strategy.PortResult, entry, strategy.PortSignal)

	down := b.block("macd_down", "crossover", strategy.Params{"direction": "below"})
	b.wire(macd, strategy.PortMACD, down, strategy.PortA)
	b.wire(macd, strategy.PortSignal, down, strategy.PortB)
	exit := b.block("exit", "exit_signal", nil)
	b.wire(down, strategy.PortResult, exit, strategy.PortSignal)

	b.risk(p, "trailing_stop_pct", "trailing_stop", "percent")
	b.risk(p, "max_drawdown_pct", "max_drawdown", "percent")
	return b.def
}
