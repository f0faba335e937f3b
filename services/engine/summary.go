package engine

import "github.com/shopspring/decimal"

// TradeSummary aggregates a trade log. Money fields are exact decimal sums.
type TradeSummary struct {
	TotalTrades         int
	Wins                int
	Losses              int
	WinRate             decimal.Decimal
	NetPnlUsd           decimal.Decimal
	AvgWinUsd           decimal.Decimal
	AvgLossUsd          decimal.Decimal
	Expectancy          decimal.Decimal
	ProfitFactor        decimal.Decimal
	AvgHoldingTimeHours decimal.Decimal
	AvgBarsHeld         decimal.Decimal
}

// Summarize computes win/loss statistics. AvgLossUsd is a magnitude and ProfitFactor is 0
// when there are no losing trades.
func Summarize(trades []Trade) TradeSummary {
	if len(trades) == 0 {
		return TradeSummary{}
	}

	var wins, losses int
	var netPnl, grossProfit, grossLoss decimal.Decimal
	var holdingSeconds, bars int64

	for _, t := range trades {
		pnl := decimal.NewFromFloat(t.PnL)
		netPnl = netPnl.Add(pnl)
		if t.IsWin() {
			wins++
			grossProfit = grossProfit.Add(pnl)
		} else {
			losses++
			grossLoss = grossLoss.Add(pnl.Abs())
		}
		holdingSeconds += t.DurationSeconds
		bars += int64(t.BarsHeld)
	}

	total := decimal.NewFromInt(int64(len(trades)))
	hundred := decimal.NewFromInt(100)
	winRate := decimal.NewFromInt(int64(wins)).Div(total).Mul(hundred)

	var avgWin, avgLoss, profitFactor decimal.Decimal
	if wins > 0 {
		avgWin = grossProfit.Div(decimal.NewFromInt(int64(wins)))
	}
	if losses > 0 {
		avgLoss = grossLoss.Div(decimal.NewFromInt(int64(losses)))
	}
	if grossLoss.GreaterThan(decimal.Zero) {
		profitFactor = grossProfit.Div(grossLoss)
	}
	p := winRate.Div(hundred)
	expectancy := p.Mul(avgWin).Sub(decimal.NewFromInt(1).Sub(p).Mul(avgLoss))

	return TradeSummary{
		TotalTrades:         len(trades),
		Wins:                wins,
		Losses:              losses,
		WinRate:             winRate,
		NetPnlUsd:           netPnl,
		AvgWinUsd:           avgWin,
		AvgLossUsd:          avgLoss,
		Expectancy:          expectancy,
		ProfitFactor:        profitFactor,
		AvgHoldingTimeHours: decimal.NewFromInt(holdingSeconds).Div(total).Div(decimal.NewFromInt(3600)),
		AvgBarsHeld:         decimal.NewFromInt(bars).Div(total),
	}
}
