package market

import "fmt"

// Resample aggregates candles into buckets of tf aligned with time.Truncate (weeks start on
// Monday). Each bucket is stamped with its start time. The last bucket may be partial; pass
// dropPartial to keep only buckets whose end is covered by the input, so higher-timeframe
// bars never see the future.
func Resample(candles []Candle, tf Timeframe, dropPartial bool) ([]Candle, error) {
	width, err := tf.Duration()
	if err != nil {
		return nil, err
	}
	if err := Validate(candles); err != nil {
		return nil, fmt.Errorf("failed to resample: %w", err)
	}
	if len(candles) == 0 {
		return []Candle{}, nil
	}

	out := make([]Candle, 0, len(candles))
	for _, c := range candles {
		start := c.Timestamp.Truncate(width)
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(start) {
			b := &out[n-1]
			b.High = max(b.High, c.High)
			b.Low = min(b.Low, c.Low)
			b.Close = c.Close
			b.Volume += c.Volume
			continue
		}
		out = append(out, Candle{Timestamp: start, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume})
	}

	if dropPartial && len(candles) > 1 {
		step := candles[len(candles)-1].Timestamp.Sub(candles[len(candles)-2].Timestamp)
		lastEnd := candles[len(candles)-1].Timestamp.Add(step)
		if out[len(out)-1].Timestamp.Add(width).After(lastEnd) {
			out = out[:len(out)-1]
		}
	}
	return out, nil
}
