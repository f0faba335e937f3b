package market

import (
	"math"
	"math/rand"
	"time"
)

// SyntheticConfig drives GenerateSynthetic.
type SyntheticConfig struct {
	Bars       int
	StartPrice float64
	Start      time.Time
	Step       time.Duration
	Seed       int64
}

// GenerateSynthetic produces a reproducible random walk with alternating trend regimes.
func GenerateSynthetic(cfg SyntheticConfig) []Candle {
	if cfg.Bars <= 0 {
		return []Candle{}
	}
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = 50000
	}
	if cfg.Step <= 0 {
		cfg.Step = 5 * time.Minute
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	out := make([]Candle, 0, cfg.Bars)
	price := cfg.StartPrice
	for i := 0; i < cfg.Bars; i++ {
		trend := 0.0
		switch phase := i % 400; {
		case phase > 50 && phase < 150:
			trend = 0.001
		case phase > 200 && phase < 300:
			trend = -0.001
		}
		change := (rng.Float64()-0.5)*0.02 + trend
		open := price
		price *= 1 + change

		volatility := 0.005 + rng.Float64()*0.01
		high := math.Max(open, price) * (1 + volatility*rng.Float64())
		low := math.Min(open, price) * (1 - volatility*rng.Float64())
		volume := 1000 + rng.Float64()*5000 + math.Abs(change)*100000

		out = append(out, Candle{
			Timestamp: cfg.Start.Add(time.Duration(i) * cfg.Step),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    volume,
		})
	}
	return out
}
