package indicators

import (
	"math"

	"strategylab/services/market"
)

// ADXResult holds the trend-strength line and both directional indicators.
type ADXResult struct {
	ADX     Series
	PlusDI  Series
	MinusDI Series
}

type adxMode int

const (
	adxSeeding adxMode = iota
	adxSmoothing
)

// ADX follows Wilder: TR, +DM and -DM are Wilder-smoothed from index period, DX is derived
// from the directional indicators and the ADX line runs in two explicit modes. While seeding
// it collects the first period defined DX values and emits their mean; while smoothing it
// applies (prev*(period-1)+dx)/period. An undefined DX (both DIs zero) yields an absent ADX
// and keeps the current mode and running value.
// Warm-up: period for the DIs, 2*period-1 for ADX.
func ADX(candles []market.Candle, period int) ADXResult {
	n := len(candles)
	res := ADXResult{ADX: make(Series, n), PlusDI: make(Series, n), MinusDI: make(Series, n)}
	if period <= 0 || n < period+1 {
		return res
	}
	p := float64(period)

	var smTR, smPlus, smMinus float64
	var (
		mode    = adxSeeding
		seedSum float64
		seedN   int
		adx     float64
	)
	for i := 1; i < n; i++ {
		cur, prev := candles[i], candles[i-1]
		up := cur.High - prev.High
		down := prev.Low - cur.Low
		plusDM, minusDM := 0.0, 0.0
		if up > down && up > 0 {
			plusDM = up
		}
		if down > up && down > 0 {
			minusDM = down
		}
		tr := trueRange(cur, prev.Close)

		switch {
		case i < period:
			smTR += tr
			smPlus += plusDM
			smMinus += minusDM
			continue
		case i == period:
			smTR += tr
			smPlus += plusDM
			smMinus += minusDM
		default:
			smTR = smTR - smTR/p + tr
			smPlus = smPlus - smPlus/p + plusDM
			smMinus = smMinus - smMinus/p + minusDM
		}

		if smTR == 0 {
			continue
		}
		plusDI := 100 * smPlus / smTR
		minusDI := 100 * smMinus / smTR
		res.PlusDI[i] = Some(plusDI)
		res.MinusDI[i] = Some(minusDI)

		diSum := plusDI + minusDI
		if diSum == 0 {
			continue
		}
		dx := 100 * math.Abs(plusDI-minusDI) / diSum

		switch mode {
		case adxSeeding:
			seedSum += dx
			seedN++
			if seedN == period {
				adx = seedSum / p
				mode = adxSmoothing
				res.ADX[i] = Some(adx)
			}
		case adxSmoothing:
			adx = (adx*(p-1) + dx) / p
			res.ADX[i] = Some(adx)
		}
	}
	return res
}
