package indicators

import "math"

// BollingerResult holds the three bands.
type BollingerResult struct {
	Upper  Series
	Middle Series
	Lower  Series
}

// Bollinger bands around SMA(period) at k population standard deviations. Warm-up: period-1.
func Bollinger(src Series, period int, k float64) BollingerResult {
	n := len(src)
	res := BollingerResult{Upper: make(Series, n), Middle: make(Series, n), Lower: make(Series, n)}
	for i := 0; i < n; i++ {
		w, ok := window(src, i, period)
		if !ok {
			continue
		}
		sum := 0.0
		for _, v := range w {
			sum += v
		}
		mean := sum / float64(period)
		variance := 0.0
		for _, v := range w {
			variance += (v - mean) * (v - mean)
		}
		sd := math.Sqrt(variance / float64(period))

		res.Middle[i] = Some(mean)
		res.Upper[i] = Some(mean + k*sd)
		res.Lower[i] = Some(mean - k*sd)
	}
	return res
}
