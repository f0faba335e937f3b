// Package indicators computes technical indicators over price and volume series.
//
// Every function is pure and returns a series as long as its input. Positions without enough
// history (the warm-up) or derived from undefined inputs hold None rather than zero, so that
// an absent reading is never confused with a real 0.
package indicators

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Value is a float64 that may be absent.
type Value struct {
	v  float64
	ok bool
}

// None is the absent value.
var None = Value{}

// Some wraps a defined number. NaN and ±Inf are folded to None.
func Some(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return None
	}
	return Value{v: v, ok: true}
}

// Get returns the number and whether it is defined.
func (x Value) Get() (float64, bool) { return x.v, x.ok }

// IsSome reports whether the value is defined.
func (x Value) IsSome() bool { return x.ok }

// Or returns the number, or def when absent.
func (x Value) Or(def float64) float64 {
	if !x.ok {
		return def
	}
	return x.v
}

func (x Value) String() string {
	if !x.ok {
		return "None"
	}
	return strconv.FormatFloat(x.v, 'g', -1, 64)
}

// MarshalJSON encodes an absent value as null.
func (x Value) MarshalJSON() ([]byte, error) {
	if !x.ok {
		return []byte("null"), nil
	}
	return json.Marshal(x.v)
}

func (x *Value) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*x = None
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*x = Some(f)
	return nil
}

// Series is a time series of optional values aligned with the candle series.
type Series []Value

// FromFloats lifts a dense slice into a fully defined series.
func FromFloats(xs []float64) Series {
	out := make(Series, len(xs))
	for i, x := range xs {
		out[i] = Some(x)
	}
	return out
}

// Constant returns a series of n copies of v.
func Constant(n int, v float64) Series {
	out := make(Series, n)
	for i := range out {
		out[i] = Some(v)
	}
	return out
}

// At returns s[i], or None when i is out of range.
func (s Series) At(i int) Value {
	if i < 0 || i >= len(s) {
		return None
	}
	return s[i]
}

// FirstDefined returns the index of the first defined value, or -1.
func (s Series) FirstDefined() int {
	for i, x := range s {
		if x.ok {
			return i
		}
	}
	return -1
}

// window returns the values s[i-period+1..i] when all are defined.
func window(s Series, i, period int) ([]float64, bool) {
	if period <= 0 || i < period-1 || i >= len(s) {
		return nil, false
	}
	out := make([]float64, 0, period)
	for j := i - period + 1; j <= i; j++ {
		v, ok := s[j].Get()
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}
