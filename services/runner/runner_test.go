package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/services/clickhouse"
	"strategylab/services/engine"
	"strategylab/services/market"
	"strategylab/services/monitoring"
	"strategylab/services/strategy"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func daily(closes ...float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			Timestamp: t0.Add(time.Duration(i) * 24 * time.Hour),
			Open:      c, High: c + 1, Low: c - 1, Close: c, Volume: 100,
		}
	}
	return out
}

// breakout enters when close > 100 and exits when close < 95.
func breakout() strategy.Definition {
	return strategy.Definition{
		Blocks: []strategy.Block{
			{ID: "px", Type: "price"},
			{ID: "above", Type: "compare", Params: strategy.Params{"operator": ">", "value": 100.0}},
			{ID: "below", Type: "compare", Params: strategy.Params{"operator": "<", "value": 95.0}},
			{ID: "entry", Type: "entry_signal"},
			{ID: "exit", Type: "exit_signal"},
		},
		Connections: []strategy.Connection{
			{From: strategy.PortRef{BlockID: "px", Port: "value"}, To: strategy.PortRef{BlockID: "above", Port: "a"}},
			{From: strategy.PortRef{BlockID: "px", Port: "value"}, To: strategy.PortRef{BlockID: "below", Port: "a"}},
			{From: strategy.PortRef{BlockID: "above", Port: "result"}, To: strategy.PortRef{BlockID: "entry", Port: "signal"}},
			{From: strategy.PortRef{BlockID: "below", Port: "result"}, To: strategy.PortRef{BlockID: "exit", Port: "signal"}},
		},
	}
}

type mapSource struct {
	mu    sync.Mutex
	data  map[string][]market.Candle
	calls int
}

func (m *mapSource) LoadCandles(_ context.Context, symbol string, _ market.Timeframe, _, _ time.Time) ([]market.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	c, ok := m.data[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, market.ErrNoData)
	}
	return c, nil
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]engine.BacktestResult
}

func (c *mapCache) Get(_ context.Context, fp string) (*engine.BacktestResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.data[fp]
	if !ok {
		return nil, false, nil
	}
	return &r, true, nil
}

func (c *mapCache) Set(_ context.Context, fp string, res engine.BacktestResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[fp] = res
	return nil
}

type recordingStore struct {
	mu   sync.Mutex
	runs []clickhouse.RunRecord
}

func (s *recordingStore) SaveResult(_ context.Context, rec clickhouse.RunRecord, _ engine.BacktestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, rec)
	return nil
}

func noCosts() *engine.Options {
	return &engine.Options{InitialBalance: 10000, Timeframe: market.TF1d}
}

func TestRunSimulatesCachesAndStores(t *testing.T) {
	src := &mapSource{data: map[string][]market.Candle{"BTC": daily(90, 101, 105, 110, 94, 96)}}
	cache := &mapCache{data: map[string]engine.BacktestResult{}}
	store := &recordingStore{}
	metrics, err := monitoring.NewMetrics(monitoring.Config{Namespace: "t"})
	require.NoError(t, err)
	r := New(src, WithCache(cache), WithStore(store), WithMetrics(metrics), WithWorkers(2))

	req := Request{Symbol: "BTC", Strategy: breakout(), Options: noCosts(), Explain: true}
	resp, err := r.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, resp.Status)
	assert.False(t, resp.Cached)
	require.NotNil(t, resp.Result)
	require.Len(t, resp.Result.Trades, 1)
	tr := resp.Result.Trades[0]
	assert.Equal(t, 2, tr.EntryIndex)
	assert.Equal(t, 105.0, tr.RawEntryPrice)
	assert.Equal(t, engine.ExitSignal, tr.ExitReason)
	assert.Equal(t, 94.0, tr.RawExitPrice)

	assert.NotEmpty(t, resp.Manifest.Fingerprint)
	assert.Equal(t, 6, resp.Manifest.Bars)
	require.Len(t, store.runs, 1)
	assert.Equal(t, resp.JobID, store.runs[0].JobID)

	require.Len(t, resp.Explanations, 1)
	x, ok := r.Explanations().Get(resp.JobID + "-1")
	require.True(t, ok)
	assert.Equal(t, 1, x.EntrySignalIndex)

	got, ok := r.Jobs().Get(resp.JobID)
	require.True(t, ok)
	assert.Same(t, resp, got)

	again, err := r.Run(context.Background(), Request{Symbol: "BTC", Strategy: breakout(), Options: noCosts()})
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, resp.Manifest.Fingerprint, again.Manifest.Fingerprint)
	assert.Equal(t, resp.Result.FinalBalance, again.Result.FinalBalance)
	assert.Len(t, store.runs, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheMisses))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Runs.WithLabelValues(StatusSucceeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Trades.WithLabelValues("signal")))
}

func TestRunUsesInlineCandles(t *testing.T) {
	r := New(nil)
	resp, err := r.Run(context.Background(), Request{Candles: daily(90, 101, 105), Strategy: breakout(), Options: noCosts()})
	require.NoError(t, err)
	require.Len(t, resp.Result.Trades, 1)
	assert.Equal(t, engine.ExitEndOfData, resp.Result.Trades[0].ExitReason)
}

func TestRunErrorsAreClassified(t *testing.T) {
	src := &mapSource{data: map[string][]market.Candle{"BTC": daily(1, 2, 3)}}
	r := New(src)
	ctx := context.Background()

	cases := []struct {
		name string
		req  Request
		code string
	}{
		{"invalid strategy", Request{Symbol: "BTC", Strategy: strategy.Definition{}}, CodeInvalidStrategy},
		{"missing data", Request{Symbol: "ETH", Strategy: breakout()}, CodeDataNotFound},
		{"no symbol", Request{Strategy: breakout()}, CodeInvalidParams},
		{"bad fee", Request{Symbol: "BTC", Strategy: breakout(), Options: &engine.Options{FeeRate: 2}}, CodeInvalidParams},
		{"bad timeframe", Request{Symbol: "BTC", Strategy: breakout(), Options: &engine.Options{Timeframe: "soon"}}, CodeInvalidParams},
		{"unordered candles", Request{Candles: append(daily(1, 2), daily(3)...), Strategy: breakout()}, CodeInvalidParams},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := r.Run(ctx, tc.req)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, StatusFailed, resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
			assert.Equal(t, tc.code, Classify(err).Code)
		})
	}
}

func TestInvalidStrategyRejectedBeforeLoading(t *testing.T) {
	src := &mapSource{data: map[string][]market.Candle{}}
	r := New(src)
	_, err := r.Run(context.Background(), Request{Symbol: "BTC", Strategy: strategy.Definition{}})
	require.Error(t, err)
	assert.Equal(t, 0, src.calls)
}

func TestBackpressureRejects(t *testing.T) {
	r := New(nil, WithQueueSize(1))
	require.NoError(t, r.Backpressure().Accept())
	_, err := r.Run(context.Background(), Request{Candles: daily(1, 2), Strategy: breakout()})
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, CodeOverloaded, Classify(err).Code)
	r.Backpressure().Release()
	assert.Equal(t, 0, r.Backpressure().Len())
}

func TestRunBatchKeepsOrder(t *testing.T) {
	src := &mapSource{data: map[string][]market.Candle{
		"A": daily(90, 101, 105, 94),
		"B": daily(90, 91, 92),
		"C": daily(101, 102, 103),
	}}
	r := New(src, WithWorkers(3))
	reqs := []Request{
		{Symbol: "A", Strategy: breakout(), Options: noCosts()},
		{Symbol: "missing", Strategy: breakout(), Options: noCosts()},
		{Symbol: "B", Strategy: breakout(), Options: noCosts()},
		{Symbol: "C", Strategy: breakout(), Options: noCosts()},
	}
	out := r.RunBatch(context.Background(), reqs)
	require.Len(t, out, 4)
	for i, o := range out {
		assert.Equal(t, i, o.Index)
	}
	require.NoError(t, out[0].Err)
	assert.Equal(t, 1, out[0].Response.Result.NumTrades)
	assert.Equal(t, CodeDataNotFound, Classify(out[1].Err).Code)
	assert.Equal(t, 0, out[2].Response.Result.NumTrades)
	assert.Equal(t, 1, out[3].Response.Result.NumTrades)
}

func TestRunBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(nil, WithWorkers(1))
	out := r.RunBatch(ctx, []Request{{Candles: daily(1, 2), Strategy: breakout()}})
	assert.ErrorIs(t, out[0].Err, context.Canceled)
}

func TestRunSymbols(t *testing.T) {
	src := &mapSource{data: map[string][]market.Candle{
		"A": daily(90, 101, 105),
		"B": daily(90, 91, 92),
		"C": daily(101, 102, 103),
	}}
	r := New(src, WithWorkers(2))
	out := r.RunSymbols(context.Background(), NewPlanner(2, 2),
		Request{Strategy: breakout(), Options: noCosts()}, []string{"A", "B", "A", "C"})
	require.Len(t, out, 3)
	ids := map[string]bool{}
	for i, o := range out {
		assert.Equal(t, i, o.Index)
		require.NoError(t, o.Err)
		ids[o.Response.JobID] = true
	}
	assert.Len(t, ids, 3)
}

// gateSource records how many loads run at once.
type gateSource struct {
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (g *gateSource) LoadCandles(context.Context, string, market.Timeframe, time.Time, time.Time) ([]market.Candle, error) {
	g.mu.Lock()
	g.active++
	g.maxSeen = max(g.maxSeen, g.active)
	g.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	g.mu.Lock()
	g.active--
	g.mu.Unlock()
	return daily(90, 101, 105), nil
}

func TestRunSymbolsHonoursPlannerWorkers(t *testing.T) {
	src := &gateSource{}
	r := New(src, WithWorkers(8))
	out := r.RunSymbols(context.Background(), NewPlanner(8, 1),
		Request{Strategy: breakout(), Options: noCosts()}, []string{"A", "B", "C", "D"})
	require.Len(t, out, 4)
	for _, o := range out {
		require.NoError(t, o.Err)
	}
	assert.Equal(t, 1, src.maxSeen)
}

func TestPlanner(t *testing.T) {
	p := NewPlanner(2, 4)
	chunks := p.PlanChunks([]string{"A", "B", "", "B", "C"}, t0, t0.Add(time.Hour))
	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"A", "B"}, chunks[0].Symbols)
	assert.Equal(t, []string{"C"}, chunks[1].Symbols)
	assert.Equal(t, t0, chunks[1].From)
	assert.Empty(t, p.PlanChunks(nil, t0, t0))
}

func TestFingerprint(t *testing.T) {
	candles := daily(1, 2, 3)
	opts := *noCosts()
	a, err := newManifest("j1", "X", breakout(), candles, opts)
	require.NoError(t, err)
	b, err := newManifest("j2", "X", breakout(), candles, opts)
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)

	opts.FeeRate = 0.01
	c, err := newManifest("j3", "X", breakout(), candles, opts)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint)

	d, err := newManifest("j4", "X", breakout(), daily(1, 2, 4), *noCosts())
	require.NoError(t, err)
	assert.NotEqual(t, a.DataChecksum, d.DataChecksum)
	assert.NotEqual(t, a.Fingerprint, d.Fingerprint)
}

type flakySource struct{ err error }

func (f flakySource) LoadCandles(context.Context, string, market.Timeframe, time.Time, time.Time) ([]market.Candle, error) {
	return nil, f.err
}

func TestBreakerTripsOnSourceFailures(t *testing.T) {
	metrics, err := monitoring.NewMetrics(monitoring.Config{})
	require.NoError(t, err)
	b := NewBreakerSource(flakySource{err: errors.New("connection refused")}, BreakerConfig{ConsecutiveFailures: 2, Timeout: time.Hour}, metrics, nil)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := b.LoadCandles(ctx, "X", market.TF1d, time.Time{}, time.Time{})
		require.Error(t, err)
	}
	_, err = b.LoadCandles(ctx, "X", market.TF1d, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, gobreaker.StateOpen, b.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.BreakerState.WithLabelValues("candles")))
}

func TestBreakerIgnoresMissingData(t *testing.T) {
	b := NewBreakerSource(flakySource{err: market.ErrNoData}, BreakerConfig{ConsecutiveFailures: 1}, nil, nil)
	for i := 0; i < 3; i++ {
		_, err := b.LoadCandles(context.Background(), "X", market.TF1d, time.Time{}, time.Time{})
		assert.ErrorIs(t, err, market.ErrNoData)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestCSVSource(t *testing.T) {
	dir := t.TempDir()
	src := CSVSource{Dir: dir}
	f, err := os.Create(src.Path("btcusdt", market.TF1d))
	require.NoError(t, err)
	require.NoError(t, market.WriteCSV(f, daily(1, 2, 3, 4)))
	require.NoError(t, f.Close())

	all, err := src.LoadCandles(context.Background(), "BTCUSDT", market.TF1d, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	win, err := src.LoadCandles(context.Background(), "BTCUSDT", market.TF1d, t0.Add(24*time.Hour), t0.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, win, 2)
	assert.Equal(t, 2.0, win[0].Close)

	_, err = src.LoadCandles(context.Background(), "BTCUSDT", market.TF1d, t0.Add(100*24*time.Hour), time.Time{})
	assert.ErrorIs(t, err, market.ErrNoData)

	_, err = src.LoadCandles(context.Background(), "ETHUSDT", market.TF1d, time.Time{}, time.Time{})
	assert.Equal(t, CodeDataNotFound, Classify(err).Code)
}

func TestJobStoreEvicts(t *testing.T) {
	s := NewJobStore(2)
	s.Put(&Response{JobID: "a"})
	s.Put(&Response{JobID: "b"})
	s.Put(&Response{JobID: "a", Status: StatusSucceeded})
	s.Put(&Response{JobID: "c"})
	assert.Equal(t, 2, s.Len())
	_, ok := s.Get("a")
	assert.False(t, ok)
	_, ok = s.Get("c")
	assert.True(t, ok)
}
