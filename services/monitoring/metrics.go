// Package monitoring exposes Prometheus metrics for backtest runs.
package monitoring

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	Namespace string `yaml:"namespace"`
	Enabled   bool   `yaml:"enabled"`
}

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	StageDuration *prometheus.HistogramVec
	Runs          *prometheus.CounterVec
	ActiveRuns    prometheus.Gauge
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	CandlesLoaded prometheus.Counter
	Trades        *prometheus.CounterVec
	BreakerState  *prometheus.GaugeVec
}

func NewMetrics(cfg Config) (*Metrics, error) {
	ns := cfg.Namespace
	if ns == "" {
		ns = "strategylab"
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each backtest stage in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"stage", "result"},
		),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "runs_total",
				Help:      "Backtest runs by final status",
			},
			[]string{"status"},
		),
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "active_runs",
			Help:      "Backtests currently executing",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "result_cache_hits_total",
			Help:      "Runs answered from the result cache",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "result_cache_misses_total",
			Help:      "Runs that had to be simulated",
		}),
		CandlesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "candles_loaded_total",
			Help:      "Candles read from the market data source",
		}),
		Trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "trades_total",
				Help:      "Simulated trades by exit reason",
			},
			[]string{"exit_reason"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
	}
	for _, c := range []prometheus.Collector{
		m.StageDuration, m.Runs, m.ActiveRuns, m.CacheHits, m.CacheMisses,
		m.CandlesLoaded, m.Trades, m.BreakerState,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StageTimer tracks execution time for one run stage.
type StageTimer struct {
	metrics *Metrics
	stage   string
	start   time.Time
}

func (m *Metrics) StartStage(stage string) *StageTimer {
	return &StageTimer{metrics: m, stage: stage, start: time.Now()}
}

// Stop records the elapsed time under result ("ok" or "error").
func (st *StageTimer) Stop(result string) time.Duration {
	d := time.Since(st.start)
	if st.metrics != nil {
		st.metrics.StageDuration.WithLabelValues(st.stage, result).Observe(d.Seconds())
	}
	return d
}

func (m *Metrics) RecordCache(hit bool) {
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) RecordTrade(exitReason string) {
	m.Trades.WithLabelValues(exitReason).Inc()
}
