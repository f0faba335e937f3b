package engine

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExitReason names the rule that closed (part of) a position.
type ExitReason string

const (
	ExitTakeProfit   ExitReason = "tp"
	ExitStopLoss     ExitReason = "sl"
	ExitSignal       ExitReason = "signal"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitTimeExit     ExitReason = "time_exit"
	ExitMaxDrawdown  ExitReason = "max_dd"
	ExitEndOfData    ExitReason = "end_of_data"
)

// ExitReasons lists every reason in priority order. End of data is a forced close.
var ExitReasons = []ExitReason{
	ExitStopLoss, ExitTrailingStop, ExitMaxDrawdown, ExitTakeProfit, ExitTimeExit, ExitSignal, ExitEndOfData,
}

// ParseExitReason validates s.
func ParseExitReason(s string) (ExitReason, error) {
	for _, r := range ExitReasons {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown exit reason %q", s)
}

func (r *ExitReason) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseExitReason(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// SideLong is the only side the simulator opens.
const SideLong = "long"

// Trade is one completed full or partial exit. Prices are effective fill prices, after
// slippage and fees; the raw prices are kept alongside.
type Trade struct {
	EntryTime     time.Time  `json:"entry_time"`
	ExitTime      time.Time  `json:"exit_time"`
	EntryIndex    int        `json:"entry_index"`
	ExitIndex     int        `json:"exit_index"`
	Side          string     `json:"side"`
	EntryPrice    float64    `json:"entry_price"`
	ExitPrice     float64    `json:"exit_price"`
	RawEntryPrice float64    `json:"raw_entry_price"`
	RawExitPrice  float64    `json:"raw_exit_price"`
	Qty           float64    `json:"qty"`
	PnL           float64    `json:"pnl"`
	PnLPct        float64    `json:"pnl_pct"`
	GrossPnL      float64    `json:"gross_pnl"`
	ExitReason    ExitReason `json:"exit_reason"`

	MAEUSD  float64   `json:"mae_usd"`
	MAEPct  float64   `json:"mae_pct"`
	MAETime time.Time `json:"mae_time"`
	MFEUSD  float64   `json:"mfe_usd"`
	MFEPct  float64   `json:"mfe_pct"`
	MFETime time.Time `json:"mfe_time"`

	// nil when no stop-loss is configured or the stop sits at the entry price
	InitialRiskUSD *float64 `json:"initial_risk_usd"`
	RMultiple      *float64 `json:"r_multiple"`

	FeeCostUSD      float64 `json:"fee_cost_usd"`
	SlippageCostUSD float64 `json:"slippage_cost_usd"`
	SpreadCostUSD   float64 `json:"spread_cost_usd"`
	NotionalUSD     float64 `json:"notional_usd"`

	DurationSeconds int64 `json:"duration_seconds"`
	BarsHeld        int   `json:"bars_held"`
}

// TotalCostUSD is the sum of fee, slippage and spread cost.
func (t Trade) TotalCostUSD() float64 { return t.FeeCostUSD + t.SlippageCostUSD + t.SpreadCostUSD }

// IsWin reports a strictly positive net PnL.
func (t Trade) IsWin() bool { return t.PnL > 0 }

// EquityPoint is the account value after a candle's exits are processed.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// BacktestResult is the outcome of one run.
type BacktestResult struct {
	InitialBalance float64 `json:"initial_balance"`
	FinalBalance   float64 `json:"final_balance"`
	TotalReturnPct float64 `json:"total_return_pct"`
	CAGRPct        float64 `json:"cagr_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	NumTrades      int     `json:"num_trades"`
	WinRatePct     float64 `json:"win_rate_pct"`

	EquityCurve    []EquityPoint `json:"equity_curve"`
	BenchmarkCurve []EquityPoint `json:"benchmark_curve"`
	Trades         []Trade       `json:"trades"`

	BenchmarkReturnPct float64 `json:"benchmark_return_pct"`
	Alpha              float64 `json:"alpha"`
	Beta               float64 `json:"beta"`

	Sharpe  float64 `json:"sharpe"`
	Sortino float64 `json:"sortino"`
	Calmar  float64 `json:"calmar"`

	TotalFeesUSD       float64 `json:"total_fees_usd"`
	TotalSlippageUSD   float64 `json:"total_slippage_usd"`
	TotalSpreadUSD     float64 `json:"total_spread_usd"`
	TotalCostsUSD      float64 `json:"total_costs_usd"`
	AvgCostPerTradeUSD float64 `json:"avg_cost_per_trade_usd"`
	GrossReturnUSD     float64 `json:"gross_return_usd"`
	GrossReturnPct     float64 `json:"gross_return_pct"`
	CostPctGrossReturn float64 `json:"cost_pct_gross_return"`

	ProfitFactor  float64 `json:"profit_factor"`
	AvgWinUSD     float64 `json:"avg_win_usd"`
	AvgLossUSD    float64 `json:"avg_loss_usd"`
	ExpectancyUSD float64 `json:"expectancy_usd"`
	AvgBarsHeld   float64 `json:"avg_bars_held"`
	ExposurePct   float64 `json:"exposure_pct"`
}
