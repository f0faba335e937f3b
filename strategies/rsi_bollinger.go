package strategies

import "strategylab/services/strategy"

func init() {
	register(Template{
		Name:        "rsi_bollinger",
		Description: "Mean reversion: oversold RSI below the lower band, exit at the middle band or overbought RSI",
		Defaults: strategy.Params{
			"rsi_period":     14,
			"oversold":       30.0,
			"overbought":     70.0,
			"bb_period":      20,
			"bb_std_dev":     2.0,
			"stop_loss_pct":  5.0,
			"time_exit_bars": 20,
		},
		build: buildRSIBollinger,
	})
}

func buildRSIBollinger(p strategy.Params) strategy.Definition {
	var b builder
	px := b.block("close", "price", nil)
	rsi := b.block("rsi", "rsi", strategy.Params{"period": p.Int(14, "rsi_period")})
	bb := b.block("bb", "bollinger", strategy.Params{
		"period":  p.Int(20, "bb_period"),
		"std_dev": p.Float(2, "bb_std_dev"),
	})

	oversold := b.block("oversold", "compare", strategy.Params{"operator": "<", "value": p.Float(30, "oversold")})
	b.wire(rsi, strategy.PortValue, oversold, strategy.PortA)
	under := b.block("under_lower", "compare", strategy.Params{"operator": "<"})
	b.wire(px, strategy.PortValue, under, strategy.PortA)
	b.wire(bb, strategy.PortLower, under, strategy.PortB)
	both := b.block("entry_and", "and", nil)
	b.wire(oversold, strategy.PortResult, both, strategy.PortA)
	b.wire(under, strategy.PortResult, both, strategy.PortB)
	entry := b.block("entry", "entry_signal", nil)
	b.wire(both, strategy.PortResult, entry, strategy.PortSignal)

	overbought := b.block("overbought", "compare", strategy.Params{"operator": ">", "value": p.Float(70, "overbought")})
	b.wire(rsi, strategy.PortValue, overbought, strategy.PortA)
	reverted := b.block("above_middle", "compare", strategy.Params{"operator": ">="})
	b.wire(px, strategy.PortValue, reverted, strategy.PortA)
	b.wire(bb, strategy.PortMiddle, reverted, strategy.PortB)
	either := b.block("exit_or", "or", nil)
	b.wire(overbought, strategy.PortResult, either, strategy.PortA)
	b.wire(reverted, strategy.PortResult, either, strategy.PortB)
	exit := b.block("exit", "exit_signal", nil)
	b.wire(either, strategy.PortResult, exit, strategy.PortSignal)

	b.risk(p, "stop_loss_pct", "stop_loss", "percent")
	if bars := p.Int(0, "time_exit_bars"); bars > 0 {
		b.block("time_exit", "time_exit", strategy.Params{"bars": bars})
	}
	return b.def
}
