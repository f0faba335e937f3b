package market

import (
	"errors"
	"fmt"
	"time"
)

// Gap is a hole between two consecutive candles wider than the expected step.
type Gap struct {
	After   time.Time
	Before  time.Time
	Missing int
}

// DetectGaps checks for missing intervals in a series sorted by timestamp.
func DetectGaps(candles []Candle, step time.Duration) []Gap {
	if step <= 0 {
		return nil
	}
	var gaps []Gap
	for i := 1; i < len(candles); i++ {
		delta := candles[i].Timestamp.Sub(candles[i-1].Timestamp)
		if delta > step {
			gaps = append(gaps, Gap{
				After:   candles[i-1].Timestamp,
				Before:  candles[i].Timestamp,
				Missing: int(delta/step) - 1,
			})
		}
	}
	return gaps
}

var (
	ErrUnordered = errors.New("candles are not in ascending timestamp order")
	// ErrNoData is returned by candle sources when a query window holds no candles.
	ErrNoData = errors.New("no candles for the requested window")
)

// Validate enforces ascending timestamps and OHLC invariants
// (low <= min(open, close), high >= max(open, close)).
func Validate(candles []Candle) error {
	for i, c := range candles {
		if i > 0 && !c.Timestamp.After(candles[i-1].Timestamp) {
			return fmt.Errorf("candle %d at %s: %w", i, c.Timestamp.Format(time.RFC3339), ErrUnordered)
		}
		if c.Low > c.High || c.Low > min(c.Open, c.Close) || c.High < max(c.Open, c.Close) {
			return fmt.Errorf("candle %d at %s: inconsistent OHLC (o=%g h=%g l=%g c=%g)",
				i, c.Timestamp.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close)
		}
		if c.Volume < 0 {
			return fmt.Errorf("candle %d: negative volume %g", i, c.Volume)
		}
	}
	return nil
}
