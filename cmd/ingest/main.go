// Ingest loads candles into ClickHouse, either from monthly kline archives or a local CSV,
// and optionally derives higher timeframes from them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"strategylab/services/clickhouse"
	"strategylab/services/config"
	"strategylab/services/market"
)

func parseTimeframes(s string) []market.Timeframe {
	var out []market.Timeframe
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, market.Timeframe(p))
		}
	}
	return out
}

// ingestWithDerived writes candles at tf and at every derived timeframe.
func ingestWithDerived(ctx context.Context, p *clickhouse.IngestPipeline, candles []market.Candle, symbol string, tf market.Timeframe, derive []market.Timeframe, logger *zap.Logger) error {
	rep, err := p.Ingest(ctx, candles, symbol, tf)
	if err != nil {
		return err
	}
	logger.Info("Ingested candles", zap.String("symbol", symbol), zap.String("timeframe", string(tf)),
		zap.Int("rows", rep.Rows), zap.Int("gaps", len(rep.Gaps)))
	for _, d := range derive {
		resampled, err := market.Resample(candles, d, true)
		if err != nil {
			return fmt.Errorf("derive %s: %w", d, err)
		}
		rep, err := p.Ingest(ctx, resampled, symbol, d)
		if err != nil {
			return fmt.Errorf("derive %s: %w", d, err)
		}
		logger.Info("Derived candles", zap.String("symbol", symbol), zap.String("timeframe", string(d)), zap.Int("rows", rep.Rows))
	}
	return nil
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file (clickhouse section)")
		symbol     = flag.String("symbol", "BTCUSDT", "symbol")
		tfFlag     = flag.String("timeframe", "1m", "source timeframe")
		start      = flag.String("start", "2020-10", "start month YYYY-MM")
		end        = flag.String("end", "2025-10", "end month YYYY-MM")
		out        = flag.String("out", "./data", "download directory")
		csvFile    = flag.String("csv", "", "ingest this local CSV instead of downloading")
		baseURL    = flag.String("base-url", defaultBaseURL, "kline archive base URL")
		deriveFlag = flag.String("derive", "5m,15m", "comma-separated timeframes to derive after ingest")
		batchSize  = flag.Int("batch", 10000, "rows per insert batch")
		validate   = flag.Bool("validate", false, "count stored rows per timeframe when done")
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
	client, err := clickhouse.Open(ctx, cfg.ClickHouse.Config, logger)
	if err != nil {
		logger.Fatal("Failed to connect to ClickHouse", zap.Error(err))
	}
	defer client.Close()
	if err := client.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to create schema", zap.Error(err))
	}

	tf := market.Timeframe(*tfFlag)
	derive := parseTimeframes(*deriveFlag)
	pipeline := clickhouse.NewIngestPipeline(client, *batchSize, logger)
	failed := 0

	if *csvFile != "" {
		candles, err := market.LoadCSV(*csvFile)
		if err != nil {
			logger.Fatal("Failed to read CSV", zap.Error(err))
		}
		if err := ingestWithDerived(ctx, pipeline, candles, *symbol, tf, derive, logger); err != nil {
			logger.Fatal("Ingest failed", zap.Error(err))
		}
	} else {
		months, err := enumerateMonths(*start, *end)
		if err != nil {
			logger.Fatal("Bad month range", zap.Error(err))
		}
		httpClient := &http.Client{Timeout: 5 * time.Minute}
		for _, m := range months {
			zipPath := filepath.Join(*out, fmt.Sprintf("%s-%s-%s.zip", *symbol, tf, m))
			if err := downloadFile(ctx, httpClient, klineURL(*baseURL, *symbol, tf, m), zipPath); err != nil {
				logger.Warn("Download failed", zap.String("month", m), zap.Error(err))
				failed++
				continue
			}
			candles, err := readZipCandles(zipPath)
			if err != nil {
				logger.Warn("Parse failed", zap.String("month", m), zap.Error(err))
				failed++
				continue
			}
			if err := ingestWithDerived(ctx, pipeline, candles, *symbol, tf, derive, logger); err != nil {
				logger.Warn("Ingest failed", zap.String("month", m), zap.Error(err))
				failed++
				continue
			}
		}
		logger.Info("Ingestion complete", zap.Int("months", len(months)), zap.Int("failed", failed))
	}

	if *validate {
		for _, t := range append([]market.Timeframe{tf}, derive...) {
			n, err := client.CountCandles(ctx, *symbol, t)
			if err != nil {
				logger.Fatal("Count failed", zap.String("timeframe", string(t)), zap.Error(err))
			}
			logger.Info("Stored candles", zap.String("symbol", *symbol), zap.String("timeframe", string(t)), zap.Uint64("rows", n))
		}
	}
	if failed > 0 {
		logger.Sync()
		os.Exit(1)
	}
}
