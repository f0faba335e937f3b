package strategy

import (
	"strings"

	"strategylab/services/indicators"
)

// Kind is the closed set of block types.
type Kind int

const (
	KindInvalid Kind = iota

	// sources
	KindPrice
	KindVolume
	KindConstant
	KindYesterdayClose

	// indicators
	KindSMA
	KindEMA
	KindRSI
	KindMACD
	KindBollinger
	KindATR
	KindStochastic
	KindADX
	KindIchimoku
	KindOBV
	KindFibonacci
	KindPriceVariationPct

	// logic
	KindCompare
	KindCrossover
	KindAnd
	KindOr
	KindNot

	// signals
	KindEntrySignal
	KindExitSignal

	// risk
	KindPositionSize
	KindTakeProfit
	KindStopLoss
	KindMaxDrawdown
	KindTimeExit
	KindTrailingStop
)

var kindNames = map[Kind]string{
	KindPrice:             "price",
	KindVolume:            "volume",
	KindConstant:          "constant",
	KindYesterdayClose:    "yesterday_close",
	KindSMA:               "sma",
	KindEMA:               "ema",
	KindRSI:               "rsi",
	KindMACD:              "macd",
	KindBollinger:         "bollinger",
	KindATR:               "atr",
	KindStochastic:        "stochastic",
	KindADX:               "adx",
	KindIchimoku:          "ichimoku",
	KindOBV:               "obv",
	KindFibonacci:         "fibonacci",
	KindPriceVariationPct: "price_variation_pct",
	KindCompare:           "compare",
	KindCrossover:         "crossover",
	KindAnd:               "and",
	KindOr:                "or",
	KindNot:               "not",
	KindEntrySignal:       "entry_signal",
	KindExitSignal:        "exit_signal",
	KindPositionSize:      "position_size",
	KindTakeProfit:        "take_profit",
	KindStopLoss:          "stop_loss",
	KindMaxDrawdown:       "max_drawdown",
	KindTimeExit:          "time_exit",
	KindTrailingStop:      "trailing_stop",
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames)+4)
	for k, n := range kindNames {
		m[n] = k
	}
	// accepted spellings from older editors
	m["bollinger_bands"] = KindBollinger
	m["stoch"] = KindStochastic
	m["price_variation"] = KindPriceVariationPct
	m["cross"] = KindCrossover
	return m
}()

// ParseKind maps a block type string to its Kind. Matching is case-insensitive.
func ParseKind(s string) (Kind, bool) {
	k, ok := kindByName[strings.ToLower(strings.TrimSpace(s))]
	return k, ok
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "invalid"
}

// IsRisk reports whether the block only contributes scalar configuration.
func (k Kind) IsRisk() bool { return k >= KindPositionSize && k <= KindTrailingStop }

// IsIndicator reports whether the block is computed by the indicator library.
func (k Kind) IsIndicator() bool { return k >= KindSMA && k <= KindPriceVariationPct }

// IsLogic reports whether the block produces a boolean series.
func (k Kind) IsLogic() bool { return k >= KindCompare && k <= KindNot }

// Output port names.
const (
	PortValue     = "value"
	PortResult    = "result"
	PortSignal    = "signal"
	PortSource    = "source"
	PortA         = "a"
	PortB         = "b"
	PortMACD      = "macd"
	PortHistogram = "histogram"
	PortUpper     = "upper"
	PortMiddle    = "middle"
	PortLower     = "lower"
	PortK         = "k"
	PortD         = "d"
	PortADX       = "adx"
	PortPlusDI    = "plus_di"
	PortMinusDI   = "minus_di"
	PortTenkan    = "tenkan"
	PortKijun     = "kijun"
	PortSenkouA   = "senkou_a"
	PortSenkouB   = "senkou_b"
	PortChikou    = "chikou"
)

// Outputs lists the ports a kind produces. The first entry is the default port. Risk and
// signal blocks produce nothing.
func (k Kind) Outputs() []string {
	switch k {
	case KindPrice, KindVolume, KindConstant, KindYesterdayClose,
		KindSMA, KindEMA, KindRSI, KindATR, KindOBV, KindPriceVariationPct:
		return []string{PortValue}
	case KindMACD:
		return []string{PortMACD, PortSignal, PortHistogram}
	case KindBollinger:
		return []string{PortMiddle, PortUpper, PortLower}
	case KindStochastic:
		return []string{PortK, PortD}
	case KindADX:
		return []string{PortADX, PortPlusDI, PortMinusDI}
	case KindIchimoku:
		return []string{PortTenkan, PortKijun, PortSenkouA, PortSenkouB, PortChikou}
	case KindFibonacci:
		out := make([]string, len(indicators.FibRatios))
		for i, r := range indicators.FibRatios {
			out[i] = indicators.FibPort(r)
		}
		return out
	case KindCompare, KindCrossover, KindAnd, KindOr, KindNot:
		return []string{PortResult}
	default:
		return nil
	}
}

// inputAliases maps legacy input port names onto the canonical ones.
func (k Kind) inputAliases() map[string]string {
	switch k {
	case KindCompare, KindCrossover:
		return map[string]string{
			"left": PortA, "right": PortB,
			"input1": PortA, "input2": PortB,
			"fast": PortA, "slow": PortB,
			"series": PortA, "reference": PortB,
		}
	case KindNot:
		return map[string]string{"input": PortA, "in": PortA, "value": PortA, PortSignal: PortA}
	case KindEntrySignal, KindExitSignal:
		return map[string]string{"input": PortSignal, "in": PortSignal, "condition": PortSignal, PortA: PortSignal}
	case KindSMA, KindEMA, KindRSI, KindMACD, KindBollinger, KindPriceVariationPct:
		return map[string]string{"input": PortSource, "in": PortSource, "price": PortSource, PortValue: PortSource}
	default:
		return nil
	}
}

// acceptsInput reports whether the kind reads canonical input port. and/or take any
// number of named inputs; sources, candle indicators and risk blocks take none.
func (k Kind) acceptsInput(port string) bool {
	switch k {
	case KindAnd, KindOr:
		return true
	case KindCompare, KindCrossover:
		return port == PortA || port == PortB
	case KindNot:
		return port == PortA
	case KindEntrySignal, KindExitSignal:
		return port == PortSignal
	case KindSMA, KindEMA, KindRSI, KindMACD, KindBollinger, KindPriceVariationPct:
		return port == PortSource
	default:
		return false
	}
}

func (k Kind) canonicalInput(port string) string {
	port = strings.ToLower(strings.TrimSpace(port))
	if alias, ok := k.inputAliases()[port]; ok {
		return alias
	}
	return port
}

// Warmup returns the number of leading bars for which the block's default output is absent.
func (k Kind) Warmup(p Params) int {
	switch k {
	case KindYesterdayClose:
		return 1
	case KindSMA, KindEMA, KindBollinger:
		return max(p.Int(20, "period", "length")-1, 0)
	case KindRSI:
		return p.Int(14, "period", "length")
	case KindATR:
		return p.Int(14, "period", "length")
	case KindMACD:
		fast, slow, signal := macdParams(p)
		return max(fast, slow) + signal - 2
	case KindStochastic:
		kp, dp, smooth := stochasticParams(p)
		return kp + smooth + dp - 3
	case KindADX:
		return 2*p.Int(14, "period", "length") - 1
	case KindIchimoku:
		_, _, senkouB, disp := ichimokuParams(p)
		return senkouB - 1 + disp
	case KindFibonacci:
		return max(p.Int(50, "period", "lookback")-1, 0)
	case KindPriceVariationPct:
		return p.Int(1, "period", "lookback")
	default:
		return 0
	}
}

func macdParams(p Params) (fast, slow, signal int) {
	return p.Int(12, "fast", "fast_period"), p.Int(26, "slow", "slow_period"), p.Int(9, "signal", "signal_period")
}

func stochasticParams(p Params) (kPeriod, dPeriod, smooth int) {
	return p.Int(14, "k_period", "period"), p.Int(3, "d_period"), p.Int(3, "smooth", "smooth_k")
}

func ichimokuParams(p Params) (tenkan, kijun, senkouB, displacement int) {
	return p.Int(9, "tenkan", "tenkan_period", "conversion_period"),
		p.Int(26, "kijun", "kijun_period", "base_period"),
		p.Int(52, "senkou_b", "senkou_b_period", "span_b_period"),
		p.Int(26, "displacement", "shift")
}
