package forensics

import (
	"fmt"
	"strconv"
	"strings"

	"strategylab/services/strategy"
)

// describe renders a port as a short human-readable operand, e.g. "RSI(14)" or
// "MACD(12,26,9) signal".
func describe(ev *strategy.Evaluator, ref strategy.PortRef) string {
	b, kind, ok := ev.Block(ref.BlockID)
	if !ok {
		return ref.String()
	}
	p := b.Params
	period := func(def int) int { return p.Int(def, "period", "length") }

	switch kind {
	case strategy.KindPrice:
		field := strings.ToLower(p.String("close", "source", "field", "price_type"))
		return titleCase(field)
	case strategy.KindVolume:
		return "Volume"
	case strategy.KindConstant:
		return num(p.Float(0, "value"))
	case strategy.KindYesterdayClose:
		return "Yesterday close"
	case strategy.KindSMA:
		return fmt.Sprintf("SMA(%d)", period(20))
	case strategy.KindEMA:
		return fmt.Sprintf("EMA(%d)", period(20))
	case strategy.KindRSI:
		return fmt.Sprintf("RSI(%d)", period(14))
	case strategy.KindATR:
		return fmt.Sprintf("ATR(%d)", period(14))
	case strategy.KindOBV:
		return "OBV"
	case strategy.KindPriceVariationPct:
		return fmt.Sprintf("Price change %%(%d)", p.Int(1, "period", "lookback"))
	case strategy.KindMACD:
		name := fmt.Sprintf("MACD(%d,%d,%d)", p.Int(12, "fast", "fast_period"), p.Int(26, "slow", "slow_period"), p.Int(9, "signal", "signal_period"))
		return withPort(name, ref.Port, strategy.PortMACD)
	case strategy.KindBollinger:
		name := fmt.Sprintf("Bollinger(%d,%s)", period(20), num(p.Float(2, "std_dev", "stddev", "k", "multiplier")))
		return withPort(name, ref.Port, strategy.PortMiddle)
	case strategy.KindStochastic:
		name := fmt.Sprintf("Stochastic(%d,%d,%d)", p.Int(14, "k_period", "period"), p.Int(3, "d_period"), p.Int(3, "smooth", "smooth_k"))
		if ref.Port == strategy.PortD {
			return name + " %D"
		}
		return name + " %K"
	case strategy.KindADX:
		name := fmt.Sprintf("ADX(%d)", period(14))
		switch ref.Port {
		case strategy.PortPlusDI:
			return name + " +DI"
		case strategy.PortMinusDI:
			return name + " -DI"
		}
		return name
	case strategy.KindIchimoku:
		port := ref.Port
		if port == "" {
			port = strategy.PortTenkan
		}
		return "Ichimoku " + strings.ReplaceAll(port, "_", " ")
	case strategy.KindFibonacci:
		port := strings.TrimPrefix(ref.Port, "level_")
		if v, err := strconv.Atoi(port); err == nil {
			if v == 100 {
				return "Fib 100%"
			}
			return "Fib " + num(float64(v)/10) + "%"
		}
		return "Fib " + port
	default:
		if b.Label != "" {
			return b.Label
		}
		return kind.String()
	}
}

func withPort(name, port, def string) string {
	if port == "" || port == def {
		return name
	}
	return name + " " + port
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
