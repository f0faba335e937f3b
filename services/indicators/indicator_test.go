package indicators_test

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/services/indicators"
	"strategylab/services/market"
)

const eps = 1e-9

func series(vals ...float64) indicators.Series { return indicators.FromFloats(vals) }

func requireSeries(t *testing.T, got indicators.Series, want []any) {
	t.Helper()
	require.Len(t, got, len(want))
	for i, w := range want {
		v, ok := got[i].Get()
		if w == nil {
			assert.Falsef(t, ok, "index %d: expected None, got %v", i, got[i])
			continue
		}
		require.Truef(t, ok, "index %d: expected %v, got None", i, w)
		assert.InDeltaf(t, w.(float64), v, eps, "index %d", i)
	}
}

func bars(hlc ...[3]float64) []market.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, len(hlc))
	for i, x := range hlc {
		out[i] = market.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      x[2],
			High:      x[0],
			Low:       x[1],
			Close:     x[2],
			Volume:    100,
		}
	}
	return out
}

func TestSMAValues(t *testing.T) {
	got := indicators.SMA(series(11, 12, 13, 14, 20, 16), 3)
	requireSeries(t, got, []any{nil, nil, 12.0, 13.0, 47.0 / 3, 50.0 / 3})
}

func TestSMAAbsentInWindow(t *testing.T) {
	src := indicators.Series{indicators.Some(1), indicators.Some(2), indicators.None, indicators.Some(4), indicators.Some(5), indicators.Some(6)}
	requireSeries(t, indicators.SMA(src, 2), []any{nil, 1.5, nil, nil, 4.5, 5.5})
}

func TestEMAValues(t *testing.T) {
	got := indicators.EMA(series(1, 2, 3, 4, 5), 3)
	requireSeries(t, got, []any{nil, nil, 2.0, 3.0, 4.0})
}

func TestEMASeedsFromSMA(t *testing.T) {
	src := series(44.3, 44.1, 44.6, 43.9, 44.8, 45.2, 45.0, 45.6)
	for _, period := range []int{2, 3, 5, 8} {
		ema := indicators.EMA(src, period)
		sma := indicators.SMA(src, period)
		e, ok1 := ema[period-1].Get()
		s, ok2 := sma[period-1].Get()
		require.True(t, ok1 && ok2)
		assert.Equal(t, s, e, "period %d", period)
	}
}

func TestEMAGapKeepsRunningValue(t *testing.T) {
	src := indicators.Series{
		indicators.Some(1), indicators.Some(2), indicators.Some(3),
		indicators.None,
		indicators.Some(5),
	}
	// seed 2 at index 2; index 3 absent; index 4 continues from 2 with multiplier 0.5.
	requireSeries(t, indicators.EMA(src, 3), []any{nil, nil, 2.0, nil, 3.5})
}

func TestEMASeedsFromDefinedValuesOnly(t *testing.T) {
	src := indicators.Series{indicators.None, indicators.None, indicators.Some(2), indicators.Some(4), indicators.Some(6)}
	requireSeries(t, indicators.EMA(src, 2), []any{nil, nil, nil, 3.0, 5.0})
}

func TestRSIValues(t *testing.T) {
	got := indicators.RSI(series(1, 2, 3, 2, 3), 2)
	requireSeries(t, got, []any{nil, nil, 100.0, 50.0, 50.0})
}

func TestRSIBoundsAndMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vals := make([]float64, 300)
	p := 100.0
	for i := range vals {
		p += rng.Float64()*4 - 2
		vals[i] = p
	}
	for _, x := range indicators.RSI(indicators.FromFloats(vals), 14) {
		if v, ok := x.Get(); ok {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
	}

	up := make([]float64, 30)
	down := make([]float64, 30)
	for i := range up {
		up[i] = float64(i + 1)
		down[i] = float64(100 - i)
	}
	upRSI := indicators.RSI(indicators.FromFloats(up), 14)
	downRSI := indicators.RSI(indicators.FromFloats(down), 14)
	for i := 14; i < 30; i++ {
		assert.Equal(t, 100.0, upRSI[i].Or(-1))
		assert.Equal(t, 0.0, downRSI[i].Or(-1))
	}
	assert.False(t, upRSI[0].IsSome())
}

func TestMACDAlignment(t *testing.T) {
	vals := make([]float64, 40)
	for i := range vals {
		vals[i] = 100 + float64(i%7) - float64(i%3)
	}
	res := indicators.MACD(indicators.FromFloats(vals), 3, 6, 4)
	assert.Equal(t, 5, res.MACD.FirstDefined())
	assert.Equal(t, 8, res.Signal.FirstDefined())
	assert.Equal(t, 8, res.Histogram.FirstDefined())

	for i := range vals {
		m, ok1 := res.MACD[i].Get()
		s, ok2 := res.Signal[i].Get()
		h, ok3 := res.Histogram[i].Get()
		if ok1 && ok2 {
			require.True(t, ok3)
			assert.InDelta(t, m-s, h, eps)
		}
	}
}

func TestBollinger(t *testing.T) {
	res := indicators.Bollinger(series(2, 4, 4, 4, 5, 5, 7, 9), 8, 2)
	requireSeries(t, res.Middle, []any{nil, nil, nil, nil, nil, nil, nil, 5.0})
	requireSeries(t, res.Upper, []any{nil, nil, nil, nil, nil, nil, nil, 9.0})
	requireSeries(t, res.Lower, []any{nil, nil, nil, nil, nil, nil, nil, 1.0})
}

func TestBollingerOrderingAndConstant(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	vals := make([]float64, 120)
	for i := range vals {
		vals[i] = 50 + rng.Float64()*10
	}
	res := indicators.Bollinger(indicators.FromFloats(vals), 20, 2)
	for i := range vals {
		u, ok := res.Upper[i].Get()
		if !ok {
			continue
		}
		m, _ := res.Middle[i].Get()
		l, _ := res.Lower[i].Get()
		assert.GreaterOrEqual(t, u, m)
		assert.GreaterOrEqual(t, m, l)
	}

	flat := indicators.Bollinger(indicators.Constant(30, 42), 10, 2)
	for i := 9; i < 30; i++ {
		assert.Equal(t, 42.0, flat.Upper[i].Or(0))
		assert.Equal(t, 42.0, flat.Middle[i].Or(0))
		assert.Equal(t, 42.0, flat.Lower[i].Or(0))
	}
}

func TestATR(t *testing.T) {
	c := bars([3]float64{10, 8, 9}, [3]float64{11, 9, 10}, [3]float64{12, 9, 11}, [3]float64{13, 11, 12})
	requireSeries(t, indicators.ATR(c, 2), []any{nil, nil, 2.5, 2.25})
}

func TestStochastic(t *testing.T) {
	c := bars([3]float64{10, 8, 9}, [3]float64{12, 9, 11}, [3]float64{13, 10, 10}, [3]float64{11, 10, 11})
	res := indicators.Stochastic(c, 2, 2, 1)
	// raw %K: idx1 (11-8)/(12-8)=75, idx2 (10-9)/(13-9)=25, idx3 (11-10)/(13-10)=33.33
	requireSeries(t, res.K, []any{nil, 75.0, 25.0, 100.0 / 3})
	requireSeries(t, res.D, []any{nil, nil, 50.0, (25.0 + 100.0/3) / 2})

	flat := indicators.Stochastic(bars([3]float64{5, 5, 5}, [3]float64{5, 5, 5}), 2, 1, 1)
	assert.Equal(t, 50.0, flat.K[1].Or(0))
}

func TestADXWarmupAndRange(t *testing.T) {
	hlc := make([][3]float64, 40)
	for i := range hlc {
		base := 100 + float64(i)*1.5
		if i%5 == 0 {
			base -= 2
		}
		hlc[i] = [3]float64{base + 2, base - 1, base + 1}
	}
	res := indicators.ADX(bars(hlc...), 5)
	assert.Equal(t, 5, res.PlusDI.FirstDefined())
	assert.Equal(t, 9, res.ADX.FirstDefined())
	for _, x := range res.ADX {
		if v, ok := x.Get(); ok {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
	}
}

func TestADXFlatMarketIsAbsent(t *testing.T) {
	hlc := make([][3]float64, 20)
	for i := range hlc {
		hlc[i] = [3]float64{10, 10, 10}
	}
	res := indicators.ADX(bars(hlc...), 3)
	assert.Equal(t, -1, res.ADX.FirstDefined())
}

func TestIchimokuWarmup(t *testing.T) {
	hlc := make([][3]float64, 120)
	for i := range hlc {
		p := 100 + float64(i%11)
		hlc[i] = [3]float64{p + 1, p - 1, p}
	}
	c := bars(hlc...)
	res := indicators.Ichimoku(c, 9, 26, 52, 26)
	assert.Equal(t, 8, res.Tenkan.FirstDefined())
	assert.Equal(t, 25, res.Kijun.FirstDefined())
	assert.Equal(t, 51, res.SenkouA.FirstDefined())
	assert.Equal(t, 77, res.SenkouB.FirstDefined())
	assert.Equal(t, 26, res.Chikou.FirstDefined())
	assert.Equal(t, c[4].Close, res.Chikou[30].Or(0))
}

func TestOBV(t *testing.T) {
	c := bars([3]float64{10, 10, 10}, [3]float64{11, 11, 11}, [3]float64{10.5, 10.5, 10.5}, [3]float64{10.5, 10.5, 10.5})
	c[1].Volume, c[2].Volume, c[3].Volume = 200, 50, 70
	requireSeries(t, indicators.OBV(c), []any{0.0, 200.0, 150.0, 150.0})
}

func TestFibonacci(t *testing.T) {
	c := bars([3]float64{10, 8, 9}, [3]float64{11, 9, 10})
	levels := indicators.Fibonacci(c, 2)
	byPort := map[string]indicators.Series{}
	for _, l := range levels {
		byPort[l.Port] = l.Series
	}
	requireSeries(t, byPort["level_0"], []any{nil, 11.0})
	requireSeries(t, byPort["level_500"], []any{nil, 9.5})
	requireSeries(t, byPort["level_618"], []any{nil, 11 - 3*0.618})
	requireSeries(t, byPort["level_100"], []any{nil, 8.0})
}

func TestPriceVariationPct(t *testing.T) {
	requireSeries(t, indicators.PriceVariationPct(series(100, 110, 99), 1), []any{nil, 10.0, -10.0})
	requireSeries(t, indicators.PriceVariationPct(series(0, 5), 1), []any{nil, nil})
}

func TestWarmupLengths(t *testing.T) {
	hlc := make([][3]float64, 60)
	for i := range hlc {
		p := 100 + float64(i%9)*0.7
		hlc[i] = [3]float64{p + 1, p - 1, p}
	}
	c := bars(hlc...)
	closes := indicators.FromFloats(market.Closes(c))

	cases := []struct {
		name   string
		out    indicators.Series
		warmup int
	}{
		{"sma", indicators.SMA(closes, 10), 9},
		{"ema", indicators.EMA(closes, 10), 9},
		{"rsi", indicators.RSI(closes, 14), 14},
		{"bollinger", indicators.Bollinger(closes, 20, 2).Middle, 19},
		{"atr", indicators.ATR(c, 14), 14},
		{"stochastic_k", indicators.Stochastic(c, 14, 3, 3).K, 15},
		{"stochastic_d", indicators.Stochastic(c, 14, 3, 3).D, 17},
		{"price_variation", indicators.PriceVariationPct(closes, 3), 3},
		{"obv", indicators.OBV(c), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Len(t, tc.out, len(c))
			assert.Equal(t, tc.warmup, tc.out.FirstDefined())
		})
	}
}

func TestValueJSON(t *testing.T) {
	b, err := json.Marshal(indicators.Series{indicators.None, indicators.Some(1.5)})
	require.NoError(t, err)
	assert.JSONEq(t, `[null,1.5]`, string(b))

	var back indicators.Series
	require.NoError(t, json.Unmarshal(b, &back))
	assert.False(t, back[0].IsSome())
	assert.Equal(t, 1.5, back[1].Or(0))
	assert.False(t, indicators.Some(math.NaN()).IsSome())
}
