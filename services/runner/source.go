package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"strategylab/services/clickhouse"
	"strategylab/services/market"
	"strategylab/services/monitoring"
)

// CandleSource loads candles for one symbol and timeframe in [from, to); zero bounds are open.
type CandleSource interface {
	LoadCandles(ctx context.Context, symbol string, tf market.Timeframe, from, to time.Time) ([]market.Candle, error)
}

// CSVSource reads <Dir>/<SYMBOL>_<timeframe>.csv.
type CSVSource struct {
	Dir string
}

func (s CSVSource) Path(symbol string, tf market.Timeframe) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_%s.csv", strings.ToUpper(symbol), tf))
}

func (s CSVSource) LoadCandles(_ context.Context, symbol string, tf market.Timeframe, from, to time.Time) ([]market.Candle, error) {
	candles, err := market.LoadCSV(s.Path(symbol, tf))
	if err != nil {
		return nil, err
	}
	out := window(candles, from, to)
	if len(out) == 0 {
		return nil, fmt.Errorf("%s %s: %w", symbol, tf, market.ErrNoData)
	}
	return out, nil
}

func window(candles []market.Candle, from, to time.Time) []market.Candle {
	out := candles[:0:0]
	for _, c := range candles {
		if !from.IsZero() && c.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && !c.Timestamp.Before(to) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ClickHouseSource adapts the ClickHouse client.
type ClickHouseSource struct {
	Client *clickhouse.Client
}

func (s ClickHouseSource) LoadCandles(ctx context.Context, symbol string, tf market.Timeframe, from, to time.Time) ([]market.Candle, error) {
	return s.Client.LoadCandles(ctx, symbol, tf, clickhouse.Range{From: from, To: to})
}

type BreakerConfig struct {
	Name                string
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// BreakerSource trips after repeated source failures so a dead database fails fast.
// Missing data is a normal answer and does not count as a failure.
type BreakerSource struct {
	next CandleSource
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerSource(next CandleSource, cfg BreakerConfig, metrics *monitoring.Metrics, logger *zap.Logger) *BreakerSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "candles"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	threshold := cfg.ConsecutiveFailures
	st := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isDataError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if metrics != nil {
				metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	}
	return &BreakerSource{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *BreakerSource) State() gobreaker.State { return b.cb.State() }

func (b *BreakerSource) LoadCandles(ctx context.Context, symbol string, tf market.Timeframe, from, to time.Time) ([]market.Candle, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.LoadCandles(ctx, symbol, tf, from, to)
	})
	if err != nil {
		return nil, err
	}
	return out.([]market.Candle), nil
}

func isDataError(err error) bool {
	api := Classify(err)
	return api.Code == CodeDataNotFound || api.Code == CodeInvalidParams
}
