package strategies

import "strategylab/services/strategy"

func init() {
	register(Template{
		Name:        "ichimoku_baseline",
		Description: "Close crossing the Kijun-sen baseline with fixed TP/SL",
		Defaults: strategy.Params{
			"tenkan_period":   9,
			"kijun_period":    26,
			"senkou_b_period": 52,
			"displacement":    26,
			"take_profit_pct": 1.9,
			"stop_loss_pct":   0.8,
		},
		build: buildIchimokuBaseline,
	})
}

func buildIchimokuBaseline(p strategy.Params) strategy.Definition {
	var b builder
	px := b.block("close", "price", strategy.Params{"source": "close"})
	ichi := b.block("ichimoku", "ichimoku", strategy.Params{
		"tenkan":       p.Int(9, "tenkan_period"),
		"kijun":        p.Int(26, "kijun_period"),
		"senkou_b":     p.Int(52, "senkou_b_period"),
		"displacement": p.Int(26, "displacement"),
	})

	up := b.block("above_kijun", "crossover", strategy.Params{"direction": "above"})
	b.wire(px, strategy.PortValue, up, strategy.PortA)
	b.wire(ichi, strategy.PortKijun, up, strategy.PortB)
	entry := b.block("entry", "entry_signal", nil)
	b.wire(up, strategy.PortResult, entry, strategy.PortSignal)

	down := b.block("below_kijun", "crossover", strategy.Params{"direction": "below"})
	b.wire(px, strategy.PortValue, down, strategy.PortA)
	b.wire(ichi, strategy.PortKijun, down, strategy.PortB)
	exit := b.block("exit", "exit_signal", nil)
	b.wire(down, strategy.PortResult, exit, strategy.PortSignal)

	b.risk(p, "take_profit_pct", "take_profit", "take_profit_pct")
	b.risk(p, "stop_loss_pct", "stop_loss", "percent")
	return b.def
}
