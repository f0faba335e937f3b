package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timeframe is a candle bucket width such as "5m" or "1d".
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
	TF1w  Timeframe = "1w"
)

const yearDuration = time.Duration(365.25 * 24 * float64(time.Hour))

// Duration parses the timeframe. Accepted units are m, min, h, d and w; a bare number means minutes.
func (tf Timeframe) Duration() (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(string(tf)))
	if s == "" {
		return 0, fmt.Errorf("empty timeframe")
	}
	unit := time.Minute
	switch {
	case strings.HasSuffix(s, "min"):
		s = strings.TrimSuffix(s, "min")
	case strings.HasSuffix(s, "m"):
		s = strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "h"):
		s, unit = strings.TrimSuffix(s, "h"), time.Hour
	case strings.HasSuffix(s, "d"):
		s, unit = strings.TrimSuffix(s, "d"), 24*time.Hour
	case strings.HasSuffix(s, "w"):
		s, unit = strings.TrimSuffix(s, "w"), 7*24*time.Hour
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("unsupported timeframe: %q", tf)
	}
	return time.Duration(n) * unit, nil
}

// PeriodsPerYear is the number of bars of this timeframe in a 365.25-day year.
// Unparseable timeframes are treated as daily bars.
func (tf Timeframe) PeriodsPerYear() float64 {
	d, err := tf.Duration()
	if err != nil {
		d = 24 * time.Hour
	}
	return float64(yearDuration) / float64(d)
}
