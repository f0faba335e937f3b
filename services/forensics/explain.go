// Package forensics explains individual trades: which conditions fired at entry and exit,
// and the price overlays to chart alongside the trade.
package forensics

import (
	"fmt"
	"strings"

	"strategylab/services/engine"
	"strategylab/services/indicators"
	"strategylab/services/market"
	"strategylab/services/strategy"
)

// TradeWindow locates a trade inside the candle series being explained.
type TradeWindow struct {
	EntryIndex int               `json:"entry_index"`
	ExitIndex  int               `json:"exit_index"`
	ExitReason engine.ExitReason `json:"exit_reason"`
}

// Condition is one leaf condition that held at the explained candle.
type Condition struct {
	BlockID string            `json:"block_id"`
	Label   string            `json:"label"`
	Values  map[string]string `json:"values,omitempty"`
}

// Overlay is a price-pane indicator recomputed over the window.
type Overlay struct {
	BlockID string                       `json:"block_id"`
	Name    string                       `json:"name"`
	Lines   map[string]indicators.Series `json:"lines"`
}

type TradeExplanation struct {
	EntrySignalIndex int               `json:"entry_signal_index"`
	EntryIndex       int               `json:"entry_index"`
	ExitIndex        int               `json:"exit_index"`
	ExitReason       engine.ExitReason `json:"exit_reason"`
	EntryConditions  []Condition       `json:"entry_conditions"`
	ExitConditions   []Condition       `json:"exit_conditions"`
	Overlays         []Overlay         `json:"overlays"`
	Summary          string            `json:"summary"`
}

// ExplainTrade re-evaluates def over candles. Entry conditions are read at the signal candle
// (EntryIndex-1, since fills happen on the following open); exit conditions are read at
// ExitIndex only for signal exits.
func ExplainTrade(def strategy.Definition, candles []market.Candle, w TradeWindow) (*TradeExplanation, error) {
	if w.EntryIndex < 1 || w.EntryIndex >= len(candles) {
		return nil, fmt.Errorf("entry index %d outside candle window of %d", w.EntryIndex, len(candles))
	}
	if w.ExitIndex < w.EntryIndex || w.ExitIndex >= len(candles) {
		return nil, fmt.Errorf("exit index %d outside trade window [%d, %d)", w.ExitIndex, w.EntryIndex, len(candles))
	}
	ev, err := strategy.NewEvaluator(def, candles)
	if err != nil {
		return nil, err
	}

	x := &TradeExplanation{
		EntrySignalIndex: w.EntryIndex - 1,
		EntryIndex:       w.EntryIndex,
		ExitIndex:        w.ExitIndex,
		ExitReason:       w.ExitReason,
		EntryConditions:  []Condition{},
		ExitConditions:   []Condition{},
	}
	if x.EntryConditions, err = firedConditions(ev, strategy.KindEntrySignal, x.EntrySignalIndex); err != nil {
		return nil, err
	}
	if w.ExitReason == engine.ExitSignal {
		if x.ExitConditions, err = firedConditions(ev, strategy.KindExitSignal, w.ExitIndex); err != nil {
			return nil, err
		}
	}
	if x.Overlays, err = overlays(ev); err != nil {
		return nil, err
	}
	x.Summary = summarize(candles, x)
	return x, nil
}

// firedConditions collects the true leaves under every signal block of kind at index i.
func firedConditions(ev *strategy.Evaluator, kind strategy.Kind, i int) ([]Condition, error) {
	out := []Condition{}
	seen := map[string]bool{}
	for _, id := range ev.BlockIDs() {
		if _, k, _ := ev.Block(id); k != kind {
			continue
		}
		ref, ok := ev.SignalInput(id)
		if !ok {
			continue
		}
		fired, err := ev.BoolAt(ref, i)
		if err != nil {
			return nil, err
		}
		if !fired {
			continue
		}
		if err := collect(ev, ref, i, seen, &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// collect walks a true condition tree keeping only the branches that were true.
func collect(ev *strategy.Evaluator, ref strategy.PortRef, i int, seen map[string]bool, out *[]Condition) error {
	b, kind, _ := ev.Block(ref.BlockID)
	switch kind {
	case strategy.KindAnd, strategy.KindOr:
		for _, port := range ev.InputPorts(b.ID) {
			child := ev.Inputs(b.ID)[port]
			ok, err := ev.BoolAt(child, i)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := collect(ev, child, i, seen, out); err != nil {
				return err
			}
		}
		return nil
	}

	if seen[b.ID] {
		return nil
	}
	seen[b.ID] = true
	c, err := leaf(ev, ref, i)
	if err != nil {
		return err
	}
	*out = append(*out, c)
	return nil
}

func leaf(ev *strategy.Evaluator, ref strategy.PortRef, i int) (Condition, error) {
	b, kind, _ := ev.Block(ref.BlockID)
	c := Condition{BlockID: b.ID, Values: map[string]string{}}

	switch kind {
	case strategy.KindCompare, strategy.KindCrossover:
		left, right, err := operandLabels(ev, b, i, c.Values)
		if err != nil {
			return c, err
		}
		if kind == strategy.KindCompare {
			op, _ := strategy.ParseOperator(b.Params.String(">", "operator", "op", "condition"))
			c.Label = fmt.Sprintf("%s %s %s", left, op, right)
		} else {
			dir := strings.ToLower(b.Params.String("above", "direction"))
			c.Label = fmt.Sprintf("%s crossed %s %s", left, dir, right)
		}
	case strategy.KindNot:
		inner, ok := ev.Inputs(b.ID)[strategy.PortA]
		if !ok {
			c.Label = "NOT(nothing)"
			break
		}
		innerLeaf, err := leaf(ev, inner, i)
		if err != nil {
			return c, err
		}
		c.Label = "NOT(" + innerLeaf.Label + ")"
		c.Values = innerLeaf.Values
	default:
		c.Label = describe(ev, ref)
		v, err := ev.ValueAt(ref, i)
		if err != nil {
			return c, err
		}
		c.Values[c.Label] = v.String()
	}
	if len(c.Values) == 0 {
		c.Values = nil
	}
	return c, nil
}

// operandLabels describes the a and b sides of a compare or crossover and records their
// values at i.
func operandLabels(ev *strategy.Evaluator, b *strategy.Block, i int, values map[string]string) (string, string, error) {
	labels := [2]string{"?", "?"}
	for k, port := range []string{strategy.PortA, strategy.PortB} {
		ref, ok := ev.Inputs(b.ID)[port]
		if !ok {
			if port == strategy.PortB && b.Params.Has("value", "threshold") {
				labels[k] = num(b.Params.Float(0, "value", "threshold"))
			}
			continue
		}
		labels[k] = describe(ev, ref)
		v, err := ev.ValueAt(ref, i)
		if err != nil {
			return "", "", err
		}
		values[labels[k]] = v.String()
	}
	return labels[0], labels[1], nil
}

// overlays recomputes SMA, EMA and Bollinger blocks. Oscillators are not drawn on price.
func overlays(ev *strategy.Evaluator) ([]Overlay, error) {
	out := []Overlay{}
	for _, id := range ev.BlockIDs() {
		_, kind, _ := ev.Block(id)
		switch kind {
		case strategy.KindSMA, strategy.KindEMA, strategy.KindBollinger:
		default:
			continue
		}
		o := Overlay{BlockID: id, Lines: map[string]indicators.Series{}}
		for _, port := range kind.Outputs() {
			ref := strategy.PortRef{BlockID: id, Port: port}
			s, err := ev.Series(ref)
			if err != nil {
				return nil, err
			}
			o.Lines[port] = s
		}
		o.Name = describe(ev, strategy.PortRef{BlockID: id})
		out = append(out, o)
	}
	return out, nil
}

var exitText = map[engine.ExitReason]string{
	engine.ExitTakeProfit:   "take-profit level reached",
	engine.ExitStopLoss:     "stop-loss hit",
	engine.ExitSignal:       "exit signal",
	engine.ExitTrailingStop: "trailing stop hit",
	engine.ExitTimeExit:     "time limit reached",
	engine.ExitMaxDrawdown:  "max drawdown breached at close",
	engine.ExitEndOfData:    "end of data",
}

func summarize(candles []market.Candle, x *TradeExplanation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Entered at %s", candles[x.EntryIndex].Timestamp.UTC().Format("2006-01-02 15:04"))
	if len(x.EntryConditions) > 0 {
		sb.WriteString(" because ")
		sb.WriteString(joinLabels(x.EntryConditions))
	}
	fmt.Fprintf(&sb, "; exited at %s", candles[x.ExitIndex].Timestamp.UTC().Format("2006-01-02 15:04"))
	if text, ok := exitText[x.ExitReason]; ok {
		sb.WriteString(" on " + text)
	}
	if len(x.ExitConditions) > 0 {
		sb.WriteString(" (" + joinLabels(x.ExitConditions) + ")")
	}
	sb.WriteString(".")
	return sb.String()
}

func joinLabels(cs []Condition) string {
	labels := make([]string, len(cs))
	for i, c := range cs {
		labels[i] = c.Label
	}
	return strings.Join(labels, " and ")
}
