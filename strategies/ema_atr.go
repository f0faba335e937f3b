package strategies

import "strategylab/services/strategy"

func init() {
	register(Template{
		Name:        "ema_atr",
		Description: "Fast EMA crossing above slow EMA while ATR clears a volatility floor",
		Defaults: strategy.Params{
			"fast_period":     26,
			"slow_period":     100,
			"atr_period":      14,
			"min_atr":         0.0,
			"stop_loss_pct":   2.0,
			"take_profit_pct": 4.0,
		},
		build: buildEMAATR,
	})
}

func buildEMAATR(p strategy.Params) strategy.Definition {
	var b builder
	fast := b.block("ema_fast", "ema", strategy.Params{"period": p.Int(26, "fast_period")})
	slow := b.block("ema_slow", "ema", strategy.Params{"period": p.Int(100, "slow_period")})
	atr := b.block("atr", "atr", strategy.Params{"period": p.Int(14, "atr_period")})

	up := b.block("cross_up", "crossover", strategy.Params{"direction": "above"})
	b.wire(fast, strategy.PortValue, up, strategy.PortA)
	b.wire(slow, strategy.PortValue, up, strategy.PortB)

	vol := b.block("atr_floor", "compare", strategy.Params{"operator": ">", "value": p.Float(0, "min_atr")})
	b.wire(atr, strategy.PortValue, vol, strategy.PortA)

	both := b.block("entry_and", "and", nil)
	b.wire(up, strategy.PortResult, both, strategy.PortA)
	b.wire(vol, strategy.PortResult, both, strategy.PortB)
	entry := b.block("entry", "entry_signal", nil)
	b.wire(both, strategy.PortResult, entry, strategy.PortSignal)

	down := b.block("cross_down", "crossover", strategy.Params{"direction": "below"})
	b.wire(fast, strategy.PortValue, down, strategy.PortA)
	b.wire(slow, strategy.PortValue, down, strategy.PortB)
	exit := b.block("exit", "exit_signal", nil)
	b.wire(down, strategy.PortResult, exit, strategy.PortSignal)

	b.risk(p, "stop_loss_pct", "stop_loss", "percent")
	b.risk(p, "take_profit_pct", "take_profit", "take_profit_pct")
	return b.def
}
