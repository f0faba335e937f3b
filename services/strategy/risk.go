package strategy

import "sort"

// DefaultTakeProfit is used when a take_profit block configures no level.
var DefaultTakeProfit = []TakeProfitLevel{{ProfitPct: 10, ClosePct: 100}}

// applyRisk copies every risk block's configuration into sig. When a kind appears more than
// once the last block wins.
func applyRisk(g *graph, sig *Signals) {
	sig.PositionSizePct = 100
	for _, id := range g.order {
		p := g.blocks[id].Params
		switch g.kinds[id] {
		case KindPositionSize:
			sig.PositionSizePct = p.Float(100, "percent", "position_size_pct", "size_pct", "value")
		case KindTakeProfit:
			sig.TakeProfitLevels = takeProfitLevels(p)
		case KindStopLoss:
			sig.StopLossPct = floatPtr(p, "percent", "stop_loss_pct", "value")
		case KindMaxDrawdown:
			sig.MaxDrawdownPct = floatPtr(p, "percent", "max_drawdown_pct", "value")
		case KindTrailingStop:
			sig.TrailingStopPct = floatPtr(p, "percent", "trailing_stop_pct", "value")
		case KindTimeExit:
			if p.Has("bars", "time_exit_bars", "value") {
				bars := p.Int(0, "bars", "time_exit_bars", "value")
				sig.TimeExitBars = &bars
			}
		}
	}
}

func floatPtr(p Params, keys ...string) *float64 {
	if !p.Has(keys...) {
		return nil
	}
	v := p.Float(0, keys...)
	return &v
}

// takeProfitLevels reads an explicit levels list, or the single legacy take_profit_pct
// closing the whole position. Levels are returned sorted by profit.
func takeProfitLevels(p Params) []TakeProfitLevel {
	var levels []TakeProfitLevel
	switch raw := p["levels"].(type) {
	case []TakeProfitLevel:
		levels = append(levels, raw...)
	case []map[string]any:
		for _, m := range raw {
			levels = append(levels, levelFrom(m))
		}
	case []any:
		for _, r := range raw {
			if m, ok := r.(map[string]any); ok {
				levels = append(levels, levelFrom(m))
			}
		}
	}
	if len(levels) > 0 {
		sort.SliceStable(levels, func(i, j int) bool { return levels[i].ProfitPct < levels[j].ProfitPct })
		return levels
	}
	if p.Has("take_profit_pct", "percent") {
		return []TakeProfitLevel{{ProfitPct: p.Float(0, "take_profit_pct", "percent"), ClosePct: 100}}
	}
	return append([]TakeProfitLevel(nil), DefaultTakeProfit...)
}

func levelFrom(m map[string]any) TakeProfitLevel {
	lp := Params(m)
	return TakeProfitLevel{
		ProfitPct: lp.Float(0, "profit_pct", "percent"),
		ClosePct:  lp.Float(100, "close_pct", "size_pct"),
	}
}
