// Package clickhouse stores candles and backtest results in ClickHouse over the native
// protocol.
package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"strategylab/services/engine"
	"strategylab/services/market"
)

type Config struct {
	Addr        string        `yaml:"addr"`
	Database    string        `yaml:"database"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	CandleTable string        `yaml:"candle_table"`
	RunsTable   string        `yaml:"runs_table"`
	TradesTable string        `yaml:"trades_table"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "localhost:9000"
	}
	if c.Database == "" {
		c.Database = "backtest"
	}
	if c.CandleTable == "" {
		c.CandleTable = "candles"
	}
	if c.RunsTable == "" {
		c.RunsTable = "backtest_runs"
	}
	if c.TradesTable == "" {
		c.TradesTable = "backtest_trades"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	return c
}

type Client struct {
	conn   clickhouse.Conn
	cfg    Config
	logger *zap.Logger
}

// Open connects and pings the server.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	logger.Info("Connected to ClickHouse", zap.String("addr", cfg.Addr), zap.String("database", cfg.Database))
	return &Client{conn: conn, cfg: cfg, logger: logger}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) table(name string) string { return c.cfg.Database + "." + name }

// EnsureSchema creates the database and the candle, run and trade tables.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+c.cfg.Database); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	for _, ddl := range schemaDDL(c.cfg) {
		if err := c.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

func schemaDDL(cfg Config) []string {
	return []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			symbol String,
			interval LowCardinality(String),
			open_time_ms UInt64,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Float64,
			ingested_at DateTime64(3),
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (symbol, interval, open_time_ms)
		SETTINGS index_granularity = 8192`, cfg.Database, cfg.CandleTable),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			job_id String,
			fingerprint String,
			symbol String,
			interval LowCardinality(String),
			created_at DateTime64(3),
			initial_balance Float64,
			final_balance Float64,
			total_return_pct Float64,
			cagr_pct Float64,
			max_drawdown_pct Float64,
			num_trades UInt32,
			win_rate_pct Float64,
			sharpe Float64,
			sortino Float64,
			calmar Float64,
			total_costs_usd Float64,
			result_json String
		)
		ENGINE = MergeTree
		ORDER BY (symbol, created_at, job_id)`, cfg.Database, cfg.RunsTable),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			job_id String,
			trade_no UInt32,
			entry_time DateTime64(3),
			exit_time DateTime64(3),
			entry_price Float64,
			exit_price Float64,
			qty Float64,
			pnl Float64,
			pnl_pct Float64,
			exit_reason LowCardinality(String),
			bars_held UInt32,
			fee_cost_usd Float64,
			slippage_cost_usd Float64,
			spread_cost_usd Float64
		)
		ENGINE = MergeTree
		ORDER BY (job_id, trade_no)`, cfg.Database, cfg.TradesTable),
	}
}

// Range is a half-open [From, To) window; a zero bound is open.
type Range struct {
	From time.Time
	To   time.Time
}

func candleQuery(cfg Config, r Range) (string, []any) {
	q := fmt.Sprintf(`SELECT open_time_ms, open, high, low, close, volume FROM %s.%s FINAL
		WHERE symbol = ? AND interval = ?`, cfg.Database, cfg.CandleTable)
	var args []any
	if !r.From.IsZero() {
		q += " AND open_time_ms >= ?"
		args = append(args, uint64(r.From.UnixMilli()))
	}
	if !r.To.IsZero() {
		q += " AND open_time_ms < ?"
		args = append(args, uint64(r.To.UnixMilli()))
	}
	return q + " ORDER BY open_time_ms", args
}

// LoadCandles reads one symbol/timeframe window in ascending time order.
func (c *Client) LoadCandles(ctx context.Context, symbol string, tf market.Timeframe, r Range) ([]market.Candle, error) {
	q, extra := candleQuery(c.cfg, r)
	args := append([]any{symbol, string(tf)}, extra...)
	rows, err := c.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var out []market.Candle
	for rows.Next() {
		var (
			openMs                  uint64
			open, high, low, closep float64
			vol                     float64
		)
		if err := rows.Scan(&openMs, &open, &high, &low, &closep, &vol); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, candleFromRow(openMs, open, high, low, closep, vol))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candles: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s %s: %w", symbol, tf, market.ErrNoData)
	}
	c.logger.Debug("Loaded candles", zap.String("symbol", symbol), zap.String("interval", string(tf)), zap.Int("rows", len(out)))
	return out, nil
}

func candleFromRow(openMs uint64, open, high, low, closep, vol float64) market.Candle {
	return market.Candle{
		Timestamp: time.UnixMilli(int64(openMs)).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closep,
		Volume:    vol,
	}
}

// InsertCandles writes one batch; ReplacingMergeTree keeps the latest version per open time.
func (c *Client) InsertCandles(ctx context.Context, symbol string, tf market.Timeframe, candles []market.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s SETTINGS insert_deduplicate=1", c.table(c.cfg.CandleTable)))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	now := time.Now().UTC()
	ver := uint64(now.UnixNano())
	for _, cd := range candles {
		if err := batch.Append(
			symbol, string(tf),
			uint64(cd.Timestamp.UnixMilli()),
			cd.Open, cd.High, cd.Low, cd.Close,
			cd.Volume,
			now,
			ver,
		); err != nil {
			return fmt.Errorf("batch append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("batch send: %w", err)
	}
	return nil
}

// RunRecord identifies a stored backtest.
type RunRecord struct {
	JobID       string
	Fingerprint string
	Symbol      string
	Timeframe   market.Timeframe
	CreatedAt   time.Time
}

// SaveResult writes the run summary row and its trades.
func (c *Client) SaveResult(ctx context.Context, rec RunRecord, res engine.BacktestResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	run, err := c.conn.PrepareBatch(ctx, "INSERT INTO "+c.table(c.cfg.RunsTable))
	if err != nil {
		return fmt.Errorf("prepare run batch: %w", err)
	}
	if err := run.Append(
		rec.JobID, rec.Fingerprint, rec.Symbol, string(rec.Timeframe), rec.CreatedAt,
		res.InitialBalance, res.FinalBalance, res.TotalReturnPct, res.CAGRPct, res.MaxDrawdownPct,
		uint32(res.NumTrades), res.WinRatePct, res.Sharpe, res.Sortino, res.Calmar,
		res.TotalCostsUSD, string(payload),
	); err != nil {
		return fmt.Errorf("append run: %w", err)
	}
	if err := run.Send(); err != nil {
		return fmt.Errorf("send run: %w", err)
	}

	if len(res.Trades) == 0 {
		return nil
	}
	trades, err := c.conn.PrepareBatch(ctx, "INSERT INTO "+c.table(c.cfg.TradesTable))
	if err != nil {
		return fmt.Errorf("prepare trade batch: %w", err)
	}
	for i, t := range res.Trades {
		if err := trades.Append(
			rec.JobID, uint32(i+1), t.EntryTime, t.ExitTime,
			t.EntryPrice, t.ExitPrice, t.Qty, t.PnL, t.PnLPct,
			string(t.ExitReason), uint32(t.BarsHeld),
			t.FeeCostUSD, t.SlippageCostUSD, t.SpreadCostUSD,
		); err != nil {
			return fmt.Errorf("append trade %d: %w", i+1, err)
		}
	}
	if err := trades.Send(); err != nil {
		return fmt.Errorf("send trades: %w", err)
	}
	c.logger.Info("Stored backtest result", zap.String("job_id", rec.JobID), zap.Int("trades", len(res.Trades)))
	return nil
}

// CountCandles reports how many candles are stored for a symbol/timeframe.
func (c *Client) CountCandles(ctx context.Context, symbol string, tf market.Timeframe) (uint64, error) {
	var count uint64
	q := fmt.Sprintf("SELECT count() FROM %s WHERE symbol = ? AND interval = ?", c.table(c.cfg.CandleTable))
	if err := c.conn.QueryRow(ctx, q, symbol, string(tf)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count candles: %w", err)
	}
	return count, nil
}
