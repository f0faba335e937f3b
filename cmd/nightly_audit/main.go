// Nightly audit: data quality checks over stored candles, reported as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"strategylab/services/clickhouse"
	"strategylab/services/config"
	"strategylab/services/market"
	"strategylab/services/runner"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		symbols    = flag.String("symbols", "BTCUSDT", "comma-separated symbols")
		tfFlag     = flag.String("timeframe", "1m", "timeframe to audit")
		lookback   = flag.Duration("lookback", 24*time.Hour, "window ending now to audit; 0 audits everything")
		maxMove    = flag.Float64("max-move", 0.2, "close-to-close move flagged as a spike")
		maxStale   = flag.Int("max-stale-bars", 3, "bars the newest candle may lag before WARN")
		report     = flag.String("report", "", "write the JSON report here instead of stdout")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	ctx := context.Background()

	var source runner.CandleSource = runner.CSVSource{Dir: cfg.Data.CSVDir}
	if cfg.ClickHouse.Enabled {
		ch, err := clickhouse.Open(ctx, cfg.ClickHouse.Config, logger)
		if err != nil {
			logger.Fatal("Failed to connect to ClickHouse", zap.Error(err))
		}
		defer ch.Close()
		source = runner.ClickHouseSource{Client: ch}
	}

	tf := market.Timeframe(*tfFlag)
	var from time.Time
	if *lookback > 0 {
		from = time.Now().Add(-*lookback)
	}

	var results []*AuditResult
	for _, sym := range strings.Split(*symbols, ",") {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		audit, err := NewAudit(sym, tf, Thresholds{MaxMove: *maxMove, MaxStaleBars: *maxStale}, nil)
		if err != nil {
			logger.Fatal("Invalid timeframe", zap.Error(err))
		}
		logger.Info("Auditing", zap.String("symbol", sym), zap.String("timeframe", string(tf)))
		candles, err := source.LoadCandles(ctx, sym, tf, from, time.Time{})
		if err != nil {
			logger.Warn("Failed to load candles", zap.String("symbol", sym), zap.Error(err))
			results = append(results, audit.result("load", StatusFail, err.Error(), nil))
			continue
		}
		results = append(results, audit.RunAll(candles)...)
	}

	out := os.Stdout
	if *report != "" {
		f, err := os.Create(*report)
		if err != nil {
			logger.Fatal("Failed to create report", zap.Error(err))
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{"status": Worst(results), "results": results}); err != nil {
		logger.Fatal("Failed to write report", zap.Error(err))
	}

	if Worst(results) == StatusFail {
		logger.Error("Audit failed")
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("Audit complete", zap.String("status", Worst(results)))
}
