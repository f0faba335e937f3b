package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/services/market"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func minutes(closes ...float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{Timestamp: t0.Add(time.Duration(i) * time.Minute), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return out
}

func newAudit(t *testing.T, now time.Time) *Audit {
	a, err := NewAudit("BTCUSDT", market.TF1m, Thresholds{MaxMove: 0.1}, func() time.Time { return now })
	require.NoError(t, err)
	return a
}

func byName(results []*AuditResult) map[string]*AuditResult {
	m := map[string]*AuditResult{}
	for _, r := range results {
		m[r.CheckName] = r
	}
	return m
}

func TestCleanSeriesPasses(t *testing.T) {
	candles := minutes(100, 101, 102, 101)
	res := newAudit(t, t0.Add(4*time.Minute)).RunAll(candles)
	assert.Len(t, res, 4)
	assert.Equal(t, StatusPass, Worst(res))
}

func TestDetectsProblems(t *testing.T) {
	candles := minutes(100, 101, 150, 151, 152)
	candles[3].Timestamp = candles[2].Timestamp
	candles[4].Timestamp = t0.Add(10 * time.Minute)
	candles[1].Volume = 0

	res := byName(newAudit(t, t0.Add(10*time.Minute)).RunAll(candles))
	assert.Equal(t, StatusFail, res["missing_bars"].Status)
	assert.Equal(t, 7, res["missing_bars"].Details["missing_count"])
	assert.Equal(t, StatusFail, res["duplicates"].Status)
	assert.Equal(t, 1, res["duplicates"].Details["duplicate_count"])
	assert.Equal(t, StatusWarn, res["anomalies"].Status)
	assert.Equal(t, 1, res["anomalies"].Details["spikes"])
	assert.Equal(t, 1, res["anomalies"].Details["zero_volume"])
	assert.Equal(t, StatusPass, res["freshness"].Status)
}

func TestBadOHLCFails(t *testing.T) {
	candles := minutes(100, 101)
	candles[1].Low = 200
	res := byName(newAudit(t, t0).RunAll(candles))
	assert.Equal(t, StatusFail, res["anomalies"].Status)
}

func TestFreshness(t *testing.T) {
	candles := minutes(100, 101)
	res := byName(newAudit(t, t0.Add(time.Hour)).RunAll(candles))
	assert.Equal(t, StatusWarn, res["freshness"].Status)

	res = byName(newAudit(t, t0).RunAll(nil))
	assert.Equal(t, StatusFail, res["freshness"].Status)
}

func TestWorst(t *testing.T) {
	assert.Equal(t, StatusPass, Worst(nil))
	assert.Equal(t, StatusWarn, Worst([]*AuditResult{{Status: StatusPass}, {Status: StatusWarn}}))
	assert.Equal(t, StatusFail, Worst([]*AuditResult{{Status: StatusWarn}, {Status: StatusFail}}))
}
