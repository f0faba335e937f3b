package forensics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/services/engine"
	"strategylab/services/forensics"
	"strategylab/services/market"
	"strategylab/services/strategy"
)

func candles(closes ...float64) []market.Candle {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{Timestamp: start.Add(time.Duration(i) * time.Hour), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 10}
	}
	return out
}

func conn(from, to, toPort string) strategy.Connection {
	return strategy.Connection{From: strategy.PortRef{BlockID: from}, To: strategy.PortRef{BlockID: to, Port: toPort}}
}

// entry: RSI(2) < 30 OR close > 100, AND close > SMA(2); exit: close crossed below SMA(2)
func definition() strategy.Definition {
	return strategy.Definition{
		Blocks: []strategy.Block{
			{ID: "close", Type: "price"},
			{ID: "rsi", Type: "rsi", Params: strategy.Params{"period": 2.0}},
			{ID: "sma", Type: "sma", Params: strategy.Params{"period": 2.0}},
			{ID: "oversold", Type: "compare", Params: strategy.Params{"operator": "<", "value": 30.0}},
			{ID: "breakout", Type: "compare", Params: strategy.Params{"operator": ">", "value": 100.0}},
			{ID: "trend", Type: "compare", Params: strategy.Params{"operator": ">"}},
			{ID: "either", Type: "or"},
			{ID: "both", Type: "and"},
			{ID: "cross", Type: "crossover", Params: strategy.Params{"direction": "below"}},
			{ID: "entry", Type: "entry_signal"},
			{ID: "exit", Type: "exit_signal"},
			{ID: "bb", Type: "bollinger", Params: strategy.Params{"period": 2.0}},
		},
		Connections: []strategy.Connection{
			conn("close", "rsi", "source"),
			conn("close", "sma", "source"),
			conn("rsi", "oversold", "a"),
			conn("close", "breakout", "a"),
			conn("close", "trend", "a"),
			conn("sma", "trend", "b"),
			conn("oversold", "either", "a"),
			conn("breakout", "either", "b"),
			conn("either", "both", "a"),
			conn("trend", "both", "b"),
			conn("both", "entry", "signal"),
			conn("close", "cross", "a"),
			conn("sma", "cross", "b"),
			conn("cross", "exit", "signal"),
		},
	}
}

func TestExplainTradeKeepsOnlyTrueBranches(t *testing.T) {
	// idx2: close 105 > 100, > sma 102.5; rsi(2) = 100 so oversold is false
	cs := candles(95, 100, 105, 107, 103)
	x, err := forensics.ExplainTrade(definition(), cs, forensics.TradeWindow{EntryIndex: 3, ExitIndex: 4, ExitReason: engine.ExitSignal})
	require.NoError(t, err)

	require.Len(t, x.EntryConditions, 2)
	assert.Equal(t, "Close > 100", x.EntryConditions[0].Label)
	assert.Equal(t, "Close > SMA(2)", x.EntryConditions[1].Label)
	assert.Equal(t, "105", x.EntryConditions[1].Values["Close"])
	assert.Equal(t, "102.5", x.EntryConditions[1].Values["SMA(2)"])
	assert.Equal(t, 2, x.EntrySignalIndex)

	require.Len(t, x.ExitConditions, 1)
	assert.Equal(t, "Close crossed below SMA(2)", x.ExitConditions[0].Label)
	assert.Contains(t, x.Summary, "because Close > 100 and Close > SMA(2)")
	assert.Contains(t, x.Summary, "exit signal")
}

func TestExplainTradeNonSignalExitHasNoExitConditions(t *testing.T) {
	cs := candles(95, 100, 105, 107, 103)
	x, err := forensics.ExplainTrade(definition(), cs, forensics.TradeWindow{EntryIndex: 3, ExitIndex: 4, ExitReason: engine.ExitStopLoss})
	require.NoError(t, err)
	assert.Empty(t, x.ExitConditions)
	assert.Contains(t, x.Summary, "stop-loss hit")
}

func TestOverlaysArePriceIndicatorsOnly(t *testing.T) {
	cs := candles(95, 100, 105, 107, 103)
	x, err := forensics.ExplainTrade(definition(), cs, forensics.TradeWindow{EntryIndex: 3, ExitIndex: 4, ExitReason: engine.ExitEndOfData})
	require.NoError(t, err)

	require.Len(t, x.Overlays, 2)
	assert.Equal(t, "SMA(2)", x.Overlays[0].Name)
	assert.Len(t, x.Overlays[0].Lines["value"], len(cs))
	assert.Equal(t, "Bollinger(2,2)", x.Overlays[1].Name)
	assert.Contains(t, x.Overlays[1].Lines, "upper")
	assert.Contains(t, x.Overlays[1].Lines, "lower")
}

func TestExplainTradeValidatesWindow(t *testing.T) {
	cs := candles(1, 2, 3)
	_, err := forensics.ExplainTrade(definition(), cs, forensics.TradeWindow{EntryIndex: 0, ExitIndex: 1})
	assert.Error(t, err)
	_, err = forensics.ExplainTrade(definition(), cs, forensics.TradeWindow{EntryIndex: 2, ExitIndex: 5})
	assert.Error(t, err)

	_, err = forensics.ExplainTrade(strategy.Definition{}, cs, forensics.TradeWindow{EntryIndex: 1, ExitIndex: 2})
	assert.ErrorIs(t, err, strategy.ErrStrategyInvalid)
}

func TestNotConditionLabel(t *testing.T) {
	def := strategy.Definition{
		Blocks: []strategy.Block{
			{ID: "close", Type: "price"},
			{ID: "high", Type: "compare", Params: strategy.Params{"operator": ">", "value": 50.0}},
			{ID: "neg", Type: "not"},
			{ID: "entry", Type: "entry_signal"},
		},
		Connections: []strategy.Connection{conn("close", "high", "a"), conn("high", "neg", "a"), conn("neg", "entry", "signal")},
	}
	x, err := forensics.ExplainTrade(def, candles(10, 20, 30), forensics.TradeWindow{EntryIndex: 1, ExitIndex: 2, ExitReason: engine.ExitEndOfData})
	require.NoError(t, err)
	require.Len(t, x.EntryConditions, 1)
	assert.Equal(t, "NOT(Close > 50)", x.EntryConditions[0].Label)
}

func TestStore(t *testing.T) {
	s := forensics.NewStore()
	id := forensics.TradeID("job", 3)
	assert.Equal(t, "job-3", id)
	_, ok := s.Get(id)
	assert.False(t, ok)

	s.Put(id, &forensics.TradeExplanation{Summary: "x"})
	got, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, "x", got.Summary)
	assert.Equal(t, 1, s.Len())
}
