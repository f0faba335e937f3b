package engine

import (
	"strconv"

	"go.uber.org/zap"

	"strategylab/services/market"
	"strategylab/services/strategy"
)

// Simulator runs the long-only exit state machine over a candle series.
type Simulator struct {
	opts   Options
	costs  CostModel
	logger *zap.Logger
	log    *EventLog
}

func NewSimulator(opts Options, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{opts: opts, costs: opts.costs(), logger: logger, log: &EventLog{}}
}

// Events returns the entry and exit events of the last run.
func (s *Simulator) Events() *EventLog { return s.log }

// RunBacktest simulates signals over candles with a no-op logger.
func RunBacktest(candles []market.Candle, signals strategy.Signals, opts Options) BacktestResult {
	return NewSimulator(opts, nil).Run(candles, signals)
}

// Run simulates one position slot candle by candle. An entry signal on candle i fills at
// candle i+1's open; no exit rule is evaluated on the fill candle.
func (s *Simulator) Run(candles []market.Candle, sig strategy.Signals) BacktestResult {
	s.log = &EventLog{}
	if len(candles) == 0 {
		return emptyResult(s.opts.InitialBalance)
	}

	st := newSimulationState(s.opts.InitialBalance)
	curve := make([]EquityPoint, 0, len(candles))
	for i, c := range candles {
		if !st.Open && i > 0 && at(sig.EntryLong, i-1) {
			s.enter(st, sig, i, c)
		}
		if st.Open {
			st.BarsInMarket++
			st.observe(c)
			if i > st.EntryIndex {
				s.step(st, sig, i, c)
			}
			if st.Open {
				st.TrailPeak = max(st.TrailPeak, c.High)
			}
		}
		curve = append(curve, EquityPoint{Timestamp: c.Timestamp, Equity: st.markToMarket(c.Close)})
	}

	if st.Open {
		last := len(candles) - 1
		s.exit(st, last, candles[last], candles[last].Close, st.Qty, ExitEndOfData)
		curve[last].Equity = st.Equity
	}

	res := buildResult(s.opts, candles, st, curve)
	s.logger.Info("Backtest completed",
		zap.Int("candles", len(candles)),
		zap.Int("trades", res.NumTrades),
		zap.Float64("final_balance", res.FinalBalance),
		zap.Float64("total_return_pct", res.TotalReturnPct),
	)
	return res
}

func (s *Simulator) enter(st *SimulationState, sig strategy.Signals, i int, c market.Candle) {
	if st.Equity <= 0 || c.Open <= 0 {
		return
	}
	entry := s.costs.EntryPrice(c.Open)
	qty := st.Equity * sig.PositionSizePct / 100 / entry
	if qty <= 0 {
		return
	}

	st.Open = true
	st.EntryIndex = i
	st.EntryTime = c.Timestamp
	st.RawEntryPrice = c.Open
	st.EntryPrice = entry
	st.InitialQty, st.Qty = qty, qty
	st.TrailPeak = entry
	st.PeakHigh, st.PeakTime = entry, c.Timestamp
	st.TroughLow, st.TroughTime = entry, c.Timestamp

	st.HasStop = sig.StopLossPct != nil
	if st.HasStop {
		st.StopPrice = entry * (1 - *sig.StopLossPct/100)
	}
	st.Levels = make([]tpLevelState, 0, len(sig.TakeProfitLevels))
	for _, l := range sig.TakeProfitLevels {
		st.Levels = append(st.Levels, tpLevelState{
			ProfitPct: l.ProfitPct,
			ClosePct:  l.ClosePct,
			Price:     entry * (1 + l.ProfitPct/100),
		})
	}
	sortLevels(st.Levels)

	s.log.Append(Event{Time: c.Timestamp, Index: i, Type: EventEntry, Details: map[string]string{
		"price": strconv.FormatFloat(entry, 'f', -1, 64),
		"qty":   strconv.FormatFloat(qty, 'f', -1, 64),
	}})
	s.logger.Debug("Opened long position",
		zap.Int("index", i),
		zap.Float64("entry_price", entry),
		zap.Float64("qty", qty),
	)
}

// step applies the exit rules to candle i in priority order: stop-loss, trailing stop, max
// drawdown, take-profit ladder, time exit, exit signal.
func (s *Simulator) step(st *SimulationState, sig strategy.Signals, i int, c market.Candle) {
	if st.HasStop && stopTouched(c, st.StopPrice) {
		s.exit(st, i, c, st.StopPrice, st.Qty, ExitStopLoss)
		return
	}
	if sig.TrailingStopPct != nil {
		level := st.TrailPeak * (1 - *sig.TrailingStopPct/100)
		if stopTouched(c, level) {
			// a candle that opens through the trail fills at the open
			s.exit(st, i, c, min(level, c.Open), st.Qty, ExitTrailingStop)
			return
		}
	}
	if sig.MaxDrawdownPct != nil && st.EntryPrice > 0 {
		if (st.EntryPrice-c.Close)/st.EntryPrice*100 >= *sig.MaxDrawdownPct {
			s.exit(st, i, c, c.Close, st.Qty, ExitMaxDrawdown)
			return
		}
	}
	for k := range st.Levels {
		lvl := &st.Levels[k]
		if lvl.Triggered || !targetTouched(c, lvl.Price) {
			continue
		}
		lvl.Triggered = true
		if qty := min(st.InitialQty*lvl.ClosePct/100, st.Qty); qty > 0 {
			s.exit(st, i, c, lvl.Price, qty, ExitTakeProfit)
		}
		if !st.Open {
			return
		}
	}
	if sig.TimeExitBars != nil && i-st.EntryIndex >= *sig.TimeExitBars {
		s.exit(st, i, c, c.Close, st.Qty, ExitTimeExit)
		return
	}
	if at(sig.ExitLong, i) {
		s.exit(st, i, c, c.Close, st.Qty, ExitSignal)
	}
}

func (s *Simulator) exit(st *SimulationState, i int, c market.Candle, raw, qty float64, reason ExitReason) {
	t := st.recordTrade(s.costs, c, i, raw, qty, reason)
	typ := EventExit
	if st.Open {
		typ = EventPartialExit
	}
	s.log.Append(Event{Time: c.Timestamp, Index: i, Type: typ, Details: map[string]string{
		"reason": string(reason),
		"price":  strconv.FormatFloat(t.ExitPrice, 'f', -1, 64),
		"qty":    strconv.FormatFloat(t.Qty, 'f', -1, 64),
		"pnl":    strconv.FormatFloat(t.PnL, 'f', -1, 64),
	}})
	s.logger.Debug("Closed position",
		zap.Int("index", i),
		zap.String("reason", string(reason)),
		zap.Float64("pnl", t.PnL),
		zap.Bool("partial", st.Open),
	)
}

// at treats indices past the end of a signal series as false.
func at(b []bool, i int) bool { return i >= 0 && i < len(b) && b[i] }
