// Package market holds the OHLCV candle model shared by the interpreter, the simulator and
// the data adapters, plus CSV decoding, timeframe handling and series validation.
package market

import "time"

// Candle is one OHLCV bar for a single instrument and timeframe bucket.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Field selects one price component of a candle.
type Field string

const (
	FieldOpen   Field = "open"
	FieldHigh   Field = "high"
	FieldLow    Field = "low"
	FieldClose  Field = "close"
	FieldVolume Field = "volume"
	FieldHL2    Field = "hl2"
	FieldHLC3   Field = "hlc3"
	FieldOHLC4  Field = "ohlc4"
)

// Value returns the selected component. Unknown fields fall back to close.
func (c Candle) Value(f Field) float64 {
	switch f {
	case FieldOpen:
		return c.Open
	case FieldHigh:
		return c.High
	case FieldLow:
		return c.Low
	case FieldVolume:
		return c.Volume
	case FieldHL2:
		return (c.High + c.Low) / 2
	case FieldHLC3:
		return (c.High + c.Low + c.Close) / 3
	case FieldOHLC4:
		return (c.Open + c.High + c.Low + c.Close) / 4
	default:
		return c.Close
	}
}

// Column extracts one field across the series.
func Column(candles []Candle, f Field) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Value(f)
	}
	return out
}

// Closes is Column(candles, FieldClose).
func Closes(candles []Candle) []float64 { return Column(candles, FieldClose) }
