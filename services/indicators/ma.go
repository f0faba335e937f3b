package indicators

// SMA is the arithmetic mean of the trailing period values. Warm-up: period-1.
func SMA(src Series, period int) Series {
	out := make(Series, len(src))
	for i := range src {
		w, ok := window(src, i, period)
		if !ok {
			continue
		}
		sum := 0.0
		for _, v := range w {
			sum += v
		}
		out[i] = Some(sum / float64(period))
	}
	return out
}

// EMA seeds with the SMA of the first period defined inputs, then applies the multiplier
// 2/(period+1). After seeding, an absent input produces an absent output and leaves the
// running average untouched; the next defined input continues from it.
func EMA(src Series, period int) Series {
	out := make(Series, len(src))
	if period <= 0 {
		return out
	}
	mult := 2.0 / float64(period+1)

	var (
		seedSum float64
		seedN   int
		prev    float64
		seeded  bool
	)
	for i, x := range src {
		v, ok := x.Get()
		if !ok {
			continue
		}
		if !seeded {
			seedSum += v
			seedN++
			if seedN == period {
				prev = seedSum / float64(period)
				seeded = true
				out[i] = Some(prev)
			}
			continue
		}
		prev = (v-prev)*mult + prev
		out[i] = Some(prev)
	}
	return out
}

// PriceVariationPct is the percentage change against the value period bars earlier.
// Absent when the base is absent or zero. Warm-up: period.
func PriceVariationPct(src Series, period int) Series {
	out := make(Series, len(src))
	if period <= 0 {
		return out
	}
	for i := period; i < len(src); i++ {
		cur, ok1 := src[i].Get()
		base, ok2 := src[i-period].Get()
		if !ok1 || !ok2 || base == 0 {
			continue
		}
		out[i] = Some((cur - base) / base * 100)
	}
	return out
}
