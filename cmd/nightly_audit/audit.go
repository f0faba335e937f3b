package main

import (
	"fmt"
	"math"
	"time"

	"strategylab/services/market"
)

const (
	StatusPass = "PASS"
	StatusWarn = "WARN"
	StatusFail = "FAIL"
)

// AuditResult represents the result of an audit check
type AuditResult struct {
	Symbol    string         `json:"symbol"`
	Timeframe string         `json:"timeframe"`
	CheckName string         `json:"check"`
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
}

type Thresholds struct {
	// MaxMove is the close-to-close move, as a fraction, above which a bar is an anomaly.
	MaxMove float64
	// MaxStaleBars is how many bar widths the newest candle may lag now before WARN.
	MaxStaleBars int
}

// Audit runs the data quality checks over one symbol's candles.
type Audit struct {
	symbol     string
	tf         market.Timeframe
	step       time.Duration
	thresholds Thresholds
	now        func() time.Time
}

func NewAudit(symbol string, tf market.Timeframe, th Thresholds, now func() time.Time) (*Audit, error) {
	step, err := tf.Duration()
	if err != nil {
		return nil, err
	}
	if th.MaxMove <= 0 {
		th.MaxMove = 0.2
	}
	if th.MaxStaleBars <= 0 {
		th.MaxStaleBars = 3
	}
	if now == nil {
		now = time.Now
	}
	return &Audit{symbol: symbol, tf: tf, step: step, thresholds: th, now: now}, nil
}

func (a *Audit) result(check, status, msg string, details map[string]any) *AuditResult {
	return &AuditResult{
		Symbol:    a.symbol,
		Timeframe: string(a.tf),
		CheckName: check,
		Status:    status,
		Message:   msg,
		Details:   details,
		CheckedAt: a.now(),
	}
}

func (a *Audit) RunAll(candles []market.Candle) []*AuditResult {
	return []*AuditResult{
		a.missingBars(candles),
		a.duplicates(candles),
		a.anomalies(candles),
		a.freshness(candles),
	}
}

func (a *Audit) missingBars(candles []market.Candle) *AuditResult {
	gaps := market.DetectGaps(candles, a.step)
	missing := 0
	for _, g := range gaps {
		missing += g.Missing
	}
	if missing == 0 {
		return a.result("missing_bars", StatusPass, "No missing bars found", nil)
	}
	return a.result("missing_bars", StatusFail, fmt.Sprintf("Found %d missing bars in %d gaps", missing, len(gaps)),
		map[string]any{"missing_count": missing, "gaps": len(gaps), "first_gap_after": gaps[0].After})
}

func (a *Audit) duplicates(candles []market.Candle) *AuditResult {
	dups, unordered := 0, 0
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Timestamp.Equal(candles[i-1].Timestamp):
			dups++
		case candles[i].Timestamp.Before(candles[i-1].Timestamp):
			unordered++
		}
	}
	if dups == 0 && unordered == 0 {
		return a.result("duplicates", StatusPass, "No duplicate or out-of-order bars", nil)
	}
	return a.result("duplicates", StatusFail, fmt.Sprintf("Found %d duplicate and %d out-of-order bars", dups, unordered),
		map[string]any{"duplicate_count": dups, "unordered_count": unordered})
}

func (a *Audit) anomalies(candles []market.Candle) *AuditResult {
	var badOHLC, zeroVolume, spikes int
	for i, c := range candles {
		if c.Low > c.High || c.Low > math.Min(c.Open, c.Close) || c.High < math.Max(c.Open, c.Close) || c.Low <= 0 {
			badOHLC++
		}
		if c.Volume == 0 {
			zeroVolume++
		}
		if i > 0 && candles[i-1].Close > 0 && math.Abs(c.Close/candles[i-1].Close-1) > a.thresholds.MaxMove {
			spikes++
		}
	}
	details := map[string]any{"bad_ohlc": badOHLC, "zero_volume": zeroVolume, "spikes": spikes}
	switch {
	case badOHLC > 0:
		return a.result("anomalies", StatusFail, fmt.Sprintf("Found %d bars with inconsistent OHLC", badOHLC), details)
	case zeroVolume > 0 || spikes > 0:
		return a.result("anomalies", StatusWarn, fmt.Sprintf("Found %d zero-volume bars and %d price spikes", zeroVolume, spikes), details)
	}
	return a.result("anomalies", StatusPass, "No anomalies found", nil)
}

func (a *Audit) freshness(candles []market.Candle) *AuditResult {
	if len(candles) == 0 {
		return a.result("freshness", StatusFail, "No data", nil)
	}
	last := candles[len(candles)-1].Timestamp
	lag := a.now().Sub(last)
	details := map[string]any{"last_bar": last, "lag_seconds": int64(lag.Seconds())}
	if lag > time.Duration(a.thresholds.MaxStaleBars)*a.step {
		return a.result("freshness", StatusWarn, fmt.Sprintf("Newest bar is %s old", lag.Truncate(time.Second)), details)
	}
	return a.result("freshness", StatusPass, "Data is fresh", details)
}

// Worst returns the most severe status among results.
func Worst(results []*AuditResult) string {
	worst := StatusPass
	for _, r := range results {
		switch {
		case r.Status == StatusFail:
			return StatusFail
		case r.Status == StatusWarn:
			worst = StatusWarn
		}
	}
	return worst
}
