package indicators

// MACDResult holds the three MACD lines.
type MACDResult struct {
	MACD      Series
	Signal    Series
	Histogram Series
}

// MACD computes ema(fast)-ema(slow). The signal line is an EMA over the defined MACD values
// only, mapped back onto the original positions. Warm-up: slow-1 for MACD,
// slow+signal-2 for the signal line and histogram.
func MACD(src Series, fast, slow, signal int) MACDResult {
	n := len(src)
	fastE := EMA(src, fast)
	slowE := EMA(src, slow)

	res := MACDResult{MACD: make(Series, n), Signal: make(Series, n), Histogram: make(Series, n)}
	var (
		compact []float64
		index   []int
	)
	for i := 0; i < n; i++ {
		f, ok1 := fastE[i].Get()
		s, ok2 := slowE[i].Get()
		if !ok1 || !ok2 {
			continue
		}
		res.MACD[i] = Some(f - s)
		compact = append(compact, f-s)
		index = append(index, i)
	}

	sig := EMA(FromFloats(compact), signal)
	for k, i := range index {
		res.Signal[i] = sig[k]
		if s, ok := sig[k].Get(); ok {
			res.Histogram[i] = Some(compact[k] - s)
		}
	}
	return res
}
