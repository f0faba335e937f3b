package strategy

import (
	"go.uber.org/zap"

	"strategylab/services/market"
)

// Interpreter evaluates strategy definitions into simulator signals.
type Interpreter struct {
	logger *zap.Logger
}

func NewInterpreter(logger *zap.Logger) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interpreter{logger: logger}
}

// Interpret evaluates def over candles with a no-op logger.
func Interpret(def Definition, candles []market.Candle) (Signals, error) {
	return NewInterpreter(nil).Interpret(def, candles)
}

// Interpret resolves the entry and exit series and the risk configuration. Entry and exit
// are the OR of every entry_signal and exit_signal block; with none they are all false.
func (it *Interpreter) Interpret(def Definition, candles []market.Candle) (Signals, error) {
	ev, err := NewEvaluator(def, candles)
	if err != nil {
		it.logger.Warn("Rejected strategy definition", zap.Error(err))
		return Signals{}, err
	}
	return it.signals(ev)
}

func (it *Interpreter) signals(ev *Evaluator) (Signals, error) {
	n := ev.Len()
	sig := Signals{
		EntryLong: make([]bool, n),
		ExitLong:  make([]bool, n),
	}

	var entries, exits int
	for _, id := range ev.BlockIDs() {
		_, kind, _ := ev.Block(id)
		var dst []bool
		switch kind {
		case KindEntrySignal:
			dst = sig.EntryLong
			entries++
		case KindExitSignal:
			dst = sig.ExitLong
			exits++
		default:
			continue
		}
		ref, ok := ev.SignalInput(id)
		if !ok {
			continue
		}
		bits, err := ev.Bools(ref)
		if err != nil {
			return Signals{}, err
		}
		for i := range dst {
			if i < len(bits) && bits[i] {
				dst[i] = true
			}
		}
	}
	applyRisk(ev.g, &sig)

	it.logger.Debug("Interpreted strategy",
		zap.Int("blocks", len(ev.BlockIDs())),
		zap.Int("candles", n),
		zap.Int("entry_blocks", entries),
		zap.Int("exit_blocks", exits),
		zap.Int("entry_signals", count(sig.EntryLong)),
		zap.Int("exit_signals", count(sig.ExitLong)),
	)
	return sig, nil
}

func count(b []bool) int {
	n := 0
	for _, x := range b {
		if x {
			n++
		}
	}
	return n
}
