package indicators

// RSI uses simple averages of gains and losses over the trailing period deltas.
// It is 100 when the average loss is zero. Warm-up: period (index 0 has no delta).
func RSI(src Series, period int) Series {
	out := make(Series, len(src))
	if period <= 0 {
		return out
	}
	for i := period; i < len(src); i++ {
		var gain, loss float64
		complete := true
		for j := i - period + 1; j <= i; j++ {
			cur, ok1 := src[j].Get()
			prev, ok2 := src[j-1].Get()
			if !ok1 || !ok2 {
				complete = false
				break
			}
			if d := cur - prev; d > 0 {
				gain += d
			} else {
				loss -= d
			}
		}
		if !complete {
			continue
		}
		avgGain := gain / float64(period)
		avgLoss := loss / float64(period)
		if avgLoss == 0 {
			out[i] = Some(100)
			continue
		}
		out[i] = Some(100 - 100/(1+avgGain/avgLoss))
	}
	return out
}
