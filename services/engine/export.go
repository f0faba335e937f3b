package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

var tradeHeader = []string{
	"entry_time_utc", "exit_time_utc", "side", "entry_price", "exit_price", "qty",
	"pnl_usd", "pnl_pct", "exit_reason", "mae_usd", "mfe_usd", "r_multiple",
	"fee_usd", "slippage_usd", "spread_usd", "notional_usd", "bars_held", "duration_seconds",
}

// WriteTradesCSV writes one row per trade followed by a summary section.
func WriteTradesCSV(w io.Writer, trades []Trade) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(tradeHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, t := range trades {
		r := ""
		if t.RMultiple != nil {
			r = ftoa(*t.RMultiple)
		}
		record := []string{
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			t.Side,
			ftoa(t.EntryPrice),
			ftoa(t.ExitPrice),
			ftoa(t.Qty),
			ftoa(t.PnL),
			ftoa(t.PnLPct),
			string(t.ExitReason),
			ftoa(t.MAEUSD),
			ftoa(t.MFEUSD),
			r,
			ftoa(t.FeeCostUSD),
			ftoa(t.SlippageCostUSD),
			ftoa(t.SpreadCostUSD),
			ftoa(t.NotionalUSD),
			strconv.Itoa(t.BarsHeld),
			strconv.FormatInt(t.DurationSeconds, 10),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write trade: %w", err)
		}
	}

	summary := Summarize(trades)
	rows := [][]string{
		{""},
		{"# Summary"},
		{"total_trades", strconv.Itoa(summary.TotalTrades)},
		{"wins", strconv.Itoa(summary.Wins)},
		{"losses", strconv.Itoa(summary.Losses)},
		{"win_rate", summary.WinRate.StringFixed(2)},
		{"net_pnl_usd", summary.NetPnlUsd.StringFixed(2)},
		{"avg_win_usd", summary.AvgWinUsd.StringFixed(2)},
		{"avg_loss_usd", summary.AvgLossUsd.StringFixed(2)},
		{"expectancy", summary.Expectancy.StringFixed(2)},
		{"profit_factor", summary.ProfitFactor.StringFixed(4)},
		{"avg_holding_time_hours", summary.AvgHoldingTimeHours.StringFixed(2)},
	}
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return writer.Error()
}

// WriteEquityCSV writes the equity curve as timestamp_ms,equity.
func WriteEquityCSV(w io.Writer, curve []EquityPoint) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"timestamp_ms", "equity"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, p := range curve {
		if err := writer.Write([]string{strconv.FormatInt(p.Timestamp.UnixMilli(), 10), ftoa(p.Equity)}); err != nil {
			return fmt.Errorf("failed to write equity point: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
