// Package runner orchestrates backtests: load candles, interpret the strategy, simulate,
// cache and persist the result, and explain the trades.
package runner

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"strategylab/services/clickhouse"
	"strategylab/services/engine"
	"strategylab/services/forensics"
	"strategylab/services/market"
	"strategylab/services/monitoring"
	"strategylab/services/strategy"
)

// ResultCache is satisfied by *cache.ResultCache.
type ResultCache interface {
	Get(ctx context.Context, fingerprint string) (*engine.BacktestResult, bool, error)
	Set(ctx context.Context, fingerprint string, res engine.BacktestResult) error
}

// ResultStore is satisfied by *clickhouse.Client.
type ResultStore interface {
	SaveResult(ctx context.Context, rec clickhouse.RunRecord, res engine.BacktestResult) error
}

type Request struct {
	JobID    string              `json:"job_id,omitempty"`
	Symbol   string              `json:"symbol"`
	From     time.Time           `json:"from"`
	To       time.Time           `json:"to"`
	Strategy strategy.Definition `json:"strategy"`
	// Options replaces the runner defaults when set. A zero initial balance or empty
	// timeframe still falls back to the default.
	Options *engine.Options `json:"options,omitempty"`
	// Candles, when set, are used instead of the candle source.
	Candles   []market.Candle `json:"candles,omitempty"`
	Explain   bool            `json:"explain"`
	SkipCache bool            `json:"skip_cache"`
}

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

type Response struct {
	JobID        string                        `json:"job_id"`
	Status       string                        `json:"status"`
	Cached       bool                          `json:"cached"`
	Manifest     Manifest                      `json:"manifest"`
	Result       *engine.BacktestResult        `json:"result,omitempty"`
	Explanations []*forensics.TradeExplanation `json:"explanations,omitempty"`
	DurationMs   int64                         `json:"duration_ms"`
	Error        *APIError                     `json:"error,omitempty"`
}

type Runner struct {
	source       CandleSource
	cache        ResultCache
	store        ResultStore
	metrics      *monitoring.Metrics
	logger       *zap.Logger
	defaults     engine.Options
	workers      int
	pressure     *Backpressure
	jobs         *JobStore
	explanations *forensics.Store
}

type Option func(*Runner)

func WithCache(c ResultCache) Option { return func(r *Runner) { r.cache = c } }
func WithStore(s ResultStore) Option { return func(r *Runner) { r.store = s } }
func WithMetrics(m *monitoring.Metrics) Option { return func(r *Runner) { r.metrics = m } }
func WithLogger(l *zap.Logger) Option { return func(r *Runner) { r.logger = l } }
func WithDefaults(o engine.Options) Option { return func(r *Runner) { r.defaults = o } }
func WithWorkers(n int) Option { return func(r *Runner) { r.workers = n } }
func WithQueueSize(n int) Option { return func(r *Runner) { r.pressure = NewBackpressure(n) } }

func New(source CandleSource, opts ...Option) *Runner {
	r := &Runner{
		source:       source,
		logger:       zap.NewNop(),
		defaults:     engine.DefaultOptions(),
		workers:      runtime.NumCPU(),
		pressure:     NewBackpressure(0),
		jobs:         NewJobStore(1024),
		explanations: forensics.NewStore(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.workers <= 0 {
		r.workers = runtime.NumCPU()
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

func (r *Runner) Jobs() *JobStore { return r.jobs }
func (r *Runner) Explanations() *forensics.Store { return r.explanations }
func (r *Runner) Backpressure() *Backpressure { return r.pressure }
func (r *Runner) Defaults() engine.Options { return r.defaults }

func (r *Runner) resolveOptions(o *engine.Options) (engine.Options, error) {
	out := r.defaults
	if o != nil {
		out = *o
		if out.InitialBalance == 0 {
			out.InitialBalance = r.defaults.InitialBalance
		}
		if out.Timeframe == "" {
			out.Timeframe = r.defaults.Timeframe
		}
	}
	if out.InitialBalance <= 0 {
		return out, invalidParams("initial_balance must be positive")
	}
	for name, v := range map[string]float64{"fee_rate": out.FeeRate, "slippage_rate": out.SlippageRate, "spread_rate": out.SpreadRate} {
		if v < 0 || v >= 1 {
			return out, invalidParams("%s must be in [0, 1), got %g", name, v)
		}
	}
	if _, err := out.Timeframe.Duration(); err != nil {
		return out, invalidParams("%v", err)
	}
	return out, nil
}

func (r *Runner) stage(name string) *monitoring.StageTimer {
	if r.metrics == nil {
		return &monitoring.StageTimer{}
	}
	return r.metrics.StartStage(name)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Run executes one backtest. The returned Response is also recorded in Jobs; on failure
// its Error carries the classified API error.
func (r *Runner) Run(ctx context.Context, req Request) (*Response, error) {
	if err := r.pressure.Accept(); err != nil {
		return nil, err
	}
	defer r.pressure.Release()

	start := time.Now()
	if req.JobID == "" {
		req.JobID = uuid.New().String()
	}
	if r.metrics != nil {
		r.metrics.ActiveRuns.Inc()
		defer r.metrics.ActiveRuns.Dec()
	}

	resp, err := r.run(ctx, req)
	if resp == nil {
		resp = &Response{JobID: req.JobID}
	}
	resp.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		resp.Status = StatusFailed
		resp.Error = Classify(err)
		r.logger.Error("Backtest failed",
			zap.String("job_id", req.JobID),
			zap.String("symbol", req.Symbol),
			zap.String("code", resp.Error.Code),
			zap.Error(err))
	} else {
		resp.Status = StatusSucceeded
		r.logger.Info("Backtest completed",
			zap.String("job_id", req.JobID),
			zap.String("symbol", req.Symbol),
			zap.Bool("cached", resp.Cached),
			zap.Int("trades", resp.Result.NumTrades),
			zap.Int64("duration_ms", resp.DurationMs))
	}
	if r.metrics != nil {
		r.metrics.Runs.WithLabelValues(resp.Status).Inc()
	}
	r.jobs.Put(resp)
	return resp, err
}

func (r *Runner) run(ctx context.Context, req Request) (*Response, error) {
	opts, err := r.resolveOptions(req.Options)
	if err != nil {
		return nil, err
	}
	if err := strategy.Validate(req.Strategy); err != nil {
		return nil, err
	}

	candles, err := r.load(ctx, req, opts.Timeframe)
	if err != nil {
		return nil, err
	}

	manifest, err := newManifest(req.JobID, req.Symbol, req.Strategy, candles, opts)
	if err != nil {
		return nil, err
	}
	resp := &Response{JobID: req.JobID, Manifest: manifest}

	if r.cache != nil && !req.SkipCache {
		cached, ok, err := r.cache.Get(ctx, manifest.Fingerprint)
		if err != nil {
			r.logger.Warn("Result cache lookup failed", zap.String("job_id", req.JobID), zap.Error(err))
		}
		if r.metrics != nil && err == nil {
			r.metrics.RecordCache(ok)
		}
		if ok {
			resp.Cached = true
			resp.Result = cached
			if req.Explain {
				r.explain(req, candles, resp)
			}
			return resp, nil
		}
	}

	t := r.stage("interpret")
	sig, err := strategy.NewInterpreter(r.logger).Interpret(req.Strategy, candles)
	t.Stop(result(err))
	if err != nil {
		return resp, err
	}

	t = r.stage("simulate")
	res := engine.NewSimulator(opts, r.logger).Run(candles, sig)
	t.Stop("ok")
	resp.Result = &res

	if r.metrics != nil {
		for _, tr := range res.Trades {
			r.metrics.RecordTrade(string(tr.ExitReason))
		}
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, manifest.Fingerprint, res); err != nil {
			r.logger.Warn("Result cache write failed", zap.String("job_id", req.JobID), zap.Error(err))
		}
	}
	if r.store != nil {
		t = r.stage("store")
		err := r.store.SaveResult(ctx, clickhouse.RunRecord{
			JobID:       req.JobID,
			Fingerprint: manifest.Fingerprint,
			Symbol:      req.Symbol,
			Timeframe:   opts.Timeframe,
			CreatedAt:   manifest.CreatedAt,
		}, res)
		t.Stop(result(err))
		if err != nil {
			r.logger.Error("Failed to persist result", zap.String("job_id", req.JobID), zap.Error(err))
		}
	}
	if req.Explain {
		r.explain(req, candles, resp)
	}
	return resp, nil
}

func (r *Runner) load(ctx context.Context, req Request, tf market.Timeframe) ([]market.Candle, error) {
	candles := req.Candles
	if len(candles) == 0 {
		if req.Symbol == "" {
			return nil, invalidParams("symbol is required when no candles are supplied")
		}
		if r.source == nil {
			return nil, fmt.Errorf("no candle source configured: %w", market.ErrNoData)
		}
		t := r.stage("load")
		var err error
		candles, err = r.source.LoadCandles(ctx, req.Symbol, tf, req.From, req.To)
		t.Stop(result(err))
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", req.Symbol, err)
		}
	}
	if err := market.Validate(candles); err != nil {
		return nil, invalidParams("%v", err)
	}
	if r.metrics != nil {
		r.metrics.CandlesLoaded.Add(float64(len(candles)))
	}
	return candles, nil
}

// explain replays each trade's entry and exit conditions. Failures are logged and skipped.
func (r *Runner) explain(req Request, candles []market.Candle, resp *Response) {
	t := r.stage("explain")
	defer t.Stop("ok")
	for i, tr := range resp.Result.Trades {
		x, err := forensics.ExplainTrade(req.Strategy, candles, forensics.TradeWindow{
			EntryIndex: tr.EntryIndex,
			ExitIndex:  tr.ExitIndex,
			ExitReason: tr.ExitReason,
		})
		if err != nil {
			r.logger.Warn("Failed to explain trade", zap.String("job_id", req.JobID), zap.Int("trade", i+1), zap.Error(err))
			continue
		}
		r.explanations.Put(forensics.TradeID(req.JobID, i+1), x)
		resp.Explanations = append(resp.Explanations, x)
	}
}
