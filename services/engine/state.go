package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"strategylab/services/market"
)

// qtyEpsilon absorbs float residue left by partial closes.
const qtyEpsilon = 1e-12

// tpLevelState is one take-profit rung of the open position.
type tpLevelState struct {
	ProfitPct float64
	ClosePct  float64
	Price     float64
	Triggered bool
}

// SimulationState is everything the per-candle step reads and writes. It is reset to flat
// after every full exit.
type SimulationState struct {
	Equity float64
	Trades []Trade

	Open          bool
	EntryIndex    int
	EntryTime     time.Time
	RawEntryPrice float64
	EntryPrice    float64
	InitialQty    float64
	Qty           float64

	StopPrice float64
	HasStop   bool
	// TrailPeak is the highest high of the candles before the current one, starting at the
	// entry price.
	TrailPeak float64
	Levels    []tpLevelState

	PeakHigh   float64
	PeakTime   time.Time
	TroughLow  float64
	TroughTime time.Time

	BarsInMarket int

	fees, slippage, spread decimal.Decimal
	gross                  decimal.Decimal
}

func newSimulationState(initial float64) *SimulationState {
	return &SimulationState{Equity: initial, Trades: make([]Trade, 0)}
}

// markToMarket is realized equity plus the open position valued at close.
func (st *SimulationState) markToMarket(price float64) float64 {
	if !st.Open {
		return st.Equity
	}
	return st.Equity + (price-st.EntryPrice)*st.Qty
}

// observe widens the excursion extremes with candle c.
func (st *SimulationState) observe(c market.Candle) {
	if c.High > st.PeakHigh {
		st.PeakHigh, st.PeakTime = c.High, c.Timestamp
	}
	if c.Low < st.TroughLow {
		st.TroughLow, st.TroughTime = c.Low, c.Timestamp
	}
}

// recordTrade closes qty of the open position at rawExit and appends the trade. The
// position goes flat once nothing remains.
func (st *SimulationState) recordTrade(m CostModel, c market.Candle, index int, rawExit, qty float64, reason ExitReason) Trade {
	qty = min(qty, st.Qty)
	exitPrice := m.ExitPrice(rawExit)

	cost := m.Buy(st.RawEntryPrice, qty).Add(m.Sell(rawExit, qty))
	gross := decimal.NewFromFloat(rawExit).Sub(decimal.NewFromFloat(st.RawEntryPrice)).Mul(decimal.NewFromFloat(qty))
	net := gross.Sub(cost.Total())
	pnl := net.InexactFloat64()

	t := Trade{
		EntryTime:       st.EntryTime,
		ExitTime:        c.Timestamp,
		EntryIndex:      st.EntryIndex,
		ExitIndex:       index,
		Side:            SideLong,
		EntryPrice:      st.EntryPrice,
		ExitPrice:       exitPrice,
		RawEntryPrice:   st.RawEntryPrice,
		RawExitPrice:    rawExit,
		Qty:             qty,
		PnL:             pnl,
		GrossPnL:        gross.InexactFloat64(),
		ExitReason:      reason,
		FeeCostUSD:      cost.Fee.InexactFloat64(),
		SlippageCostUSD: cost.Slippage.InexactFloat64(),
		SpreadCostUSD:   cost.Spread.InexactFloat64(),
		NotionalUSD:     st.RawEntryPrice * qty,
		DurationSeconds: int64(c.Timestamp.Sub(st.EntryTime) / time.Second),
		BarsHeld:        index - st.EntryIndex,
	}
	if committed := st.EntryPrice * qty; committed > 0 {
		t.PnLPct = pnl / committed * 100
	}

	if st.EntryPrice > 0 {
		mfe := max(st.PeakHigh-st.EntryPrice, 0)
		mae := max(st.EntryPrice-st.TroughLow, 0)
		t.MFEUSD, t.MFEPct, t.MFETime = mfe*qty, mfe/st.EntryPrice*100, st.PeakTime
		t.MAEUSD, t.MAEPct, t.MAETime = mae*qty, mae/st.EntryPrice*100, st.TroughTime
	}

	if st.HasStop {
		if risk := abs(st.EntryPrice-st.StopPrice) * qty; risk > 0 {
			r := pnl / risk
			t.InitialRiskUSD, t.RMultiple = &risk, &r
		}
	}

	st.Equity += pnl
	st.Qty -= qty
	st.fees = st.fees.Add(cost.Fee)
	st.slippage = st.slippage.Add(cost.Slippage)
	st.spread = st.spread.Add(cost.Spread)
	st.gross = st.gross.Add(gross)
	st.Trades = append(st.Trades, t)

	if st.Qty <= qtyEpsilon*max(st.InitialQty, 1) {
		st.flatten()
	}
	return t
}

func (st *SimulationState) flatten() {
	st.Open = false
	st.Qty = 0
	st.InitialQty = 0
	st.HasStop = false
	st.Levels = nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
