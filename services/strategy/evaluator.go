package strategy

import (
	"fmt"
	"math"
	"strings"

	"strategylab/services/indicators"
	"strategylab/services/market"
)

// output is the cached value of one port: either a numeric or a boolean series.
type output struct {
	num  indicators.Series
	bits []bool
}

func (o output) isBool() bool { return o.bits != nil }

// Evaluator lazily computes block outputs over a candle series. Every port is evaluated at
// most once. An Evaluator is not safe for concurrent use.
type Evaluator struct {
	g        *graph
	candles  []market.Candle
	memo     map[PortRef]output
	visiting map[string]bool
}

// NewEvaluator validates def and prepares it for evaluation against candles.
func NewEvaluator(def Definition, candles []market.Candle) (*Evaluator, error) {
	g, err := compile(def)
	if err != nil {
		return nil, err
	}
	return &Evaluator{
		g:        g,
		candles:  candles,
		memo:     make(map[PortRef]output),
		visiting: make(map[string]bool),
	}, nil
}

// Len is the number of candles.
func (e *Evaluator) Len() int { return len(e.candles) }

// Candles returns the series the evaluator runs over.
func (e *Evaluator) Candles() []market.Candle { return e.candles }

// Block returns a block and its kind.
func (e *Evaluator) Block(id string) (*Block, Kind, bool) {
	b, ok := e.g.blocks[id]
	if !ok {
		return nil, KindInvalid, false
	}
	return b, e.g.kinds[id], true
}

// BlockIDs lists block ids in definition order.
func (e *Evaluator) BlockIDs() []string { return e.g.order }

// Inputs returns the connected inputs of a block keyed by canonical port name.
func (e *Evaluator) Inputs(id string) map[string]PortRef { return e.g.inputs[id] }

// InputPorts returns the connected input port names of a block, sorted.
func (e *Evaluator) InputPorts(id string) []string { return e.g.inputPorts(id) }

// Series evaluates ref as numbers. Boolean ports read as 1 and 0.
func (e *Evaluator) Series(ref PortRef) (indicators.Series, error) {
	o, err := e.eval(ref)
	if err != nil {
		return nil, err
	}
	if !o.isBool() {
		return o.num, nil
	}
	out := make(indicators.Series, len(o.bits))
	for i, b := range o.bits {
		if b {
			out[i] = indicators.Some(1)
		} else {
			out[i] = indicators.Some(0)
		}
	}
	return out, nil
}

// Bools evaluates ref as a condition. Numeric ports are true where defined and non-zero.
func (e *Evaluator) Bools(ref PortRef) ([]bool, error) {
	o, err := e.eval(ref)
	if err != nil {
		return nil, err
	}
	if o.isBool() {
		return o.bits, nil
	}
	out := make([]bool, len(o.num))
	for i, v := range o.num {
		x, ok := v.Get()
		out[i] = ok && x != 0
	}
	return out, nil
}

// ValueAt is Series(ref)[i]; out-of-range indices are absent.
func (e *Evaluator) ValueAt(ref PortRef, i int) (indicators.Value, error) {
	s, err := e.Series(ref)
	if err != nil {
		return indicators.None, err
	}
	return s.At(i), nil
}

// BoolAt is Bools(ref)[i]; out-of-range indices are false.
func (e *Evaluator) BoolAt(ref PortRef, i int) (bool, error) {
	b, err := e.Bools(ref)
	if err != nil {
		return false, err
	}
	if i < 0 || i >= len(b) {
		return false, nil
	}
	return b[i], nil
}

// IsBoolPort reports whether ref evaluates to a boolean series.
func (e *Evaluator) IsBoolPort(ref PortRef) bool {
	return e.g.kinds[ref.BlockID].IsLogic()
}

func (e *Evaluator) eval(ref PortRef) (output, error) {
	if _, ok := e.g.blocks[ref.BlockID]; !ok {
		return output{}, invalid(CodeUnknownBlockReference, ref.BlockID, "unknown block %q", ref.BlockID)
	}
	ref = e.g.resolveOutput(ref)
	if o, ok := e.memo[ref]; ok {
		return o, nil
	}
	if e.visiting[ref.BlockID] {
		return output{}, invalid(CodeCycleDetected, ref.BlockID, "block graph contains a cycle through %q", ref.BlockID)
	}
	e.visiting[ref.BlockID] = true
	defer delete(e.visiting, ref.BlockID)

	if err := e.evaluateBlock(ref.BlockID); err != nil {
		return output{}, err
	}
	o, ok := e.memo[ref]
	if !ok {
		return output{}, invalid(CodeInvalidConnection, ref.BlockID, "block has no output port %q", ref.Port)
	}
	return o, nil
}

func (e *Evaluator) store(id, port string, s indicators.Series) {
	e.memo[PortRef{BlockID: id, Port: port}] = output{num: s}
}

func (e *Evaluator) storeBool(id string, b []bool) {
	e.memo[PortRef{BlockID: id, Port: PortResult}] = output{bits: b}
}

// input returns the numeric series feeding port, or ok=false when unconnected.
func (e *Evaluator) input(id, port string) (indicators.Series, bool, error) {
	ref, ok := e.g.inputs[id][port]
	if !ok {
		return nil, false, nil
	}
	s, err := e.Series(ref)
	return s, true, err
}

// source returns the connected source series, defaulting to close.
func (e *Evaluator) source(id string) (indicators.Series, error) {
	s, ok, err := e.input(id, PortSource)
	if err != nil || ok {
		return s, err
	}
	b := e.g.blocks[id]
	field := market.Field(strings.ToLower(b.Params.String(string(market.FieldClose), "source", "field", "price")))
	return indicators.FromFloats(market.Column(e.candles, field)), nil
}

func (e *Evaluator) evaluateBlock(id string) error {
	b := e.g.blocks[id]
	p := b.Params
	n := len(e.candles)

	switch k := e.g.kinds[id]; k {
	case KindPrice:
		field := market.Field(strings.ToLower(p.String(string(market.FieldClose), "source", "field", "price_type")))
		e.store(id, PortValue, indicators.FromFloats(market.Column(e.candles, field)))
	case KindVolume:
		e.store(id, PortValue, indicators.FromFloats(market.Column(e.candles, market.FieldVolume)))
	case KindConstant:
		e.store(id, PortValue, indicators.Constant(n, p.Float(0, "value")))
	case KindYesterdayClose:
		s := make(indicators.Series, n)
		for i := 1; i < n; i++ {
			s[i] = indicators.Some(e.candles[i-1].Close)
		}
		e.store(id, PortValue, s)

	case KindSMA, KindEMA, KindRSI, KindPriceVariationPct:
		src, err := e.source(id)
		if err != nil {
			return err
		}
		var out indicators.Series
		switch k {
		case KindSMA:
			out = indicators.SMA(src, p.Int(20, "period", "length"))
		case KindEMA:
			out = indicators.EMA(src, p.Int(20, "period", "length"))
		case KindRSI:
			out = indicators.RSI(src, p.Int(14, "period", "length"))
		default:
			out = indicators.PriceVariationPct(src, p.Int(1, "period", "lookback"))
		}
		e.store(id, PortValue, out)
	case KindMACD:
		src, err := e.source(id)
		if err != nil {
			return err
		}
		fast, slow, signal := macdParams(p)
		res := indicators.MACD(src, fast, slow, signal)
		e.store(id, PortMACD, res.MACD)
		e.store(id, PortSignal, res.Signal)
		e.store(id, PortHistogram, res.Histogram)
	case KindBollinger:
		src, err := e.source(id)
		if err != nil {
			return err
		}
		res := indicators.Bollinger(src, p.Int(20, "period", "length"), p.Float(2, "std_dev", "stddev", "k", "multiplier"))
		e.store(id, PortUpper, res.Upper)
		e.store(id, PortMiddle, res.Middle)
		e.store(id, PortLower, res.Lower)
	case KindATR:
		e.store(id, PortValue, indicators.ATR(e.candles, p.Int(14, "period", "length")))
	case KindStochastic:
		kp, dp, smooth := stochasticParams(p)
		res := indicators.Stochastic(e.candles, kp, dp, smooth)
		e.store(id, PortK, res.K)
		e.store(id, PortD, res.D)
	case KindADX:
		res := indicators.ADX(e.candles, p.Int(14, "period", "length"))
		e.store(id, PortADX, res.ADX)
		e.store(id, PortPlusDI, res.PlusDI)
		e.store(id, PortMinusDI, res.MinusDI)
	case KindIchimoku:
		tenkan, kijun, senkouB, disp := ichimokuParams(p)
		res := indicators.Ichimoku(e.candles, tenkan, kijun, senkouB, disp)
		e.store(id, PortTenkan, res.Tenkan)
		e.store(id, PortKijun, res.Kijun)
		e.store(id, PortSenkouA, res.SenkouA)
		e.store(id, PortSenkouB, res.SenkouB)
		e.store(id, PortChikou, res.Chikou)
	case KindOBV:
		e.store(id, PortValue, indicators.OBV(e.candles))
	case KindFibonacci:
		for _, lvl := range indicators.Fibonacci(e.candles, p.Int(50, "period", "lookback")) {
			e.store(id, lvl.Port, lvl.Series)
		}

	case KindCompare:
		a, b, err := e.operands(id)
		if err != nil {
			return err
		}
		op, ok := ParseOperator(p.String(">", "operator", "op", "condition"))
		if !ok {
			return invalid(CodeInvalidBlock, id, "unsupported compare operator %q", p.String("", "operator", "op", "condition"))
		}
		out := make([]bool, n)
		for i := range out {
			x, ok1 := a.At(i).Get()
			y, ok2 := b.At(i).Get()
			out[i] = ok1 && ok2 && op.Apply(x, y)
		}
		e.storeBool(id, out)
	case KindCrossover:
		a, b, err := e.operands(id)
		if err != nil {
			return err
		}
		below := strings.EqualFold(p.String("above", "direction"), "below")
		out := make([]bool, n)
		for i := 1; i < n; i++ {
			pa, ok1 := a.At(i - 1).Get()
			pb, ok2 := b.At(i - 1).Get()
			ca, ok3 := a.At(i).Get()
			cb, ok4 := b.At(i).Get()
			if !ok1 || !ok2 || !ok3 || !ok4 {
				continue
			}
			if below {
				out[i] = pa >= pb && ca < cb
			} else {
				out[i] = pa <= pb && ca > cb
			}
		}
		e.storeBool(id, out)
	case KindAnd, KindOr:
		ports := e.g.inputPorts(id)
		out := make([]bool, n)
		if len(ports) == 0 {
			e.storeBool(id, out)
			return nil
		}
		for i := range out {
			out[i] = k == KindAnd
		}
		for _, port := range ports {
			bits, err := e.Bools(e.g.inputs[id][port])
			if err != nil {
				return err
			}
			for i := range out {
				v := i < len(bits) && bits[i]
				if k == KindAnd {
					out[i] = out[i] && v
				} else {
					out[i] = out[i] || v
				}
			}
		}
		e.storeBool(id, out)
	case KindNot:
		out := make([]bool, n)
		ref, ok := e.g.inputs[id][PortA]
		if !ok {
			// an absent input is false, so its negation holds everywhere
			for i := range out {
				out[i] = true
			}
			e.storeBool(id, out)
			return nil
		}
		bits, err := e.Bools(ref)
		if err != nil {
			return err
		}
		for i := range out {
			out[i] = !(i < len(bits) && bits[i])
		}
		e.storeBool(id, out)

	case KindEntrySignal, KindExitSignal,
		KindPositionSize, KindTakeProfit, KindStopLoss, KindMaxDrawdown, KindTimeExit, KindTrailingStop:
		return invalid(CodeInvalidConnection, id, "%s block produces no series", k)
	default:
		return fmt.Errorf("unhandled block kind %v", k)
	}
	return nil
}

// operands resolves the a and b inputs of a compare or crossover block. An unconnected b
// falls back to the numeric "value" (or "threshold") parameter.
func (e *Evaluator) operands(id string) (indicators.Series, indicators.Series, error) {
	n := len(e.candles)
	a, ok, err := e.input(id, PortA)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		a = make(indicators.Series, n)
	}
	b, ok, err := e.input(id, PortB)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		p := e.g.blocks[id].Params
		if p.Has("value", "threshold") {
			b = indicators.Constant(n, p.Float(math.NaN(), "value", "threshold"))
		} else {
			b = make(indicators.Series, n)
		}
	}
	return a, b, nil
}

// SignalInput returns the port feeding an entry or exit signal block.
func (e *Evaluator) SignalInput(id string) (PortRef, bool) {
	ref, ok := e.g.inputs[id][PortSignal]
	return ref, ok
}
