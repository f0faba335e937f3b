// Strategy runner: executes one strategy graph against a CSV (or synthetic) candle file and
// writes the trade log, equity curve, Arrow exports and trade explanations.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"strategylab/services/arrowpipeline"
	"strategylab/services/engine"
	"strategylab/services/market"
	"strategylab/services/runner"
	"strategylab/services/strategy"
	"strategylab/strategies"
)

type cliOptions struct {
	csvFile      string
	synthetic    int
	seed         int64
	symbol       string
	timeframe    string
	strategyFile string
	template     string
	params       string
	lastDays     int
	outDir       string
	explain      bool
	arrow        bool
	compression  string
	opts         engine.Options
}

func parseFlags(args []string) (cliOptions, error) {
	var o cliOptions
	fs := flag.NewFlagSet("strategy_runner", flag.ContinueOnError)
	fs.StringVar(&o.csvFile, "csv", "", "Path to CSV file with OHLCV data")
	fs.IntVar(&o.synthetic, "synthetic", 0, "Generate N synthetic bars instead of reading -csv")
	fs.Int64Var(&o.seed, "seed", 42, "Seed for -synthetic")
	fs.StringVar(&o.symbol, "symbol", "BTCUSDT", "Symbol recorded in the manifest")
	fs.StringVar(&o.timeframe, "timeframe", "5m", "Candle timeframe (1m, 5m, 15m, 1h, 4h, 1d, 1w)")
	fs.StringVar(&o.strategyFile, "strategy", "", "Path to a strategy definition JSON file")
	fs.StringVar(&o.template, "template", "", "Built-in strategy template name")
	fs.StringVar(&o.params, "params", "", `Template parameter overrides as JSON, e.g. '{"fast_period":12}'`)
	fs.IntVar(&o.lastDays, "last-days", 0, "If >0, simulate only the last N days of data")
	fs.StringVar(&o.outDir, "out", "out", "Output directory")
	fs.BoolVar(&o.explain, "explain", false, "Write per-trade explanations")
	fs.BoolVar(&o.arrow, "arrow", false, "Also write trades and equity as Arrow IPC streams")
	fs.StringVar(&o.compression, "compression", "lz4", "Arrow compression: none, lz4 or zstd")
	fs.Float64Var(&o.opts.InitialBalance, "initial-balance", 10000, "Starting balance in USD")
	fs.Float64Var(&o.opts.FeeRate, "fee", 0.001, "Fee rate per side (0.001 = 0.1%)")
	fs.Float64Var(&o.opts.SlippageRate, "slippage", 0.0005, "Slippage rate per side")
	fs.Float64Var(&o.opts.SpreadRate, "spread", 0, "Spread rate per side")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.opts.Timeframe = market.Timeframe(o.timeframe)

	if (o.csvFile == "") == (o.synthetic <= 0) {
		return o, fmt.Errorf("exactly one of -csv or -synthetic is required")
	}
	if (o.strategyFile == "") == (o.template == "") {
		return o, fmt.Errorf("exactly one of -strategy or -template is required")
	}
	return o, nil
}

func loadDefinition(o cliOptions) (strategy.Definition, error) {
	if o.strategyFile != "" {
		data, err := os.ReadFile(o.strategyFile)
		if err != nil {
			return strategy.Definition{}, err
		}
		return strategy.ParseDefinition(data)
	}
	var overrides map[string]any
	if o.params != "" {
		if err := json.Unmarshal([]byte(o.params), &overrides); err != nil {
			return strategy.Definition{}, fmt.Errorf("parse -params: %w", err)
		}
	}
	return strategies.Build(o.template, overrides)
}

func loadCandles(o cliOptions) ([]market.Candle, error) {
	if o.synthetic > 0 {
		step, err := o.opts.Timeframe.Duration()
		if err != nil {
			return nil, err
		}
		return market.GenerateSynthetic(market.SyntheticConfig{Bars: o.synthetic, Step: step, Seed: o.seed}), nil
	}
	return market.LoadCSV(o.csvFile)
}

// lastDaysWindow keeps the final n days but starts early enough to cover the warmup.
func lastDaysWindow(candles []market.Candle, days, warmup int) []market.Candle {
	if days <= 0 || len(candles) == 0 {
		return candles
	}
	cutoff := candles[len(candles)-1].Timestamp.Add(-time.Duration(days) * 24 * time.Hour)
	start := 0
	for start < len(candles) && candles[start].Timestamp.Before(cutoff) {
		start++
	}
	return candles[max(start-warmup, 0):]
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	return writeFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

func run(ctx context.Context, o cliOptions, logger *zap.Logger) (*runner.Response, error) {
	def, err := loadDefinition(o)
	if err != nil {
		return nil, err
	}
	candles, err := loadCandles(o)
	if err != nil {
		return nil, err
	}
	candles = lastDaysWindow(candles, o.lastDays, def.WarmupBars())
	logger.Info("Loaded candles", zap.Int("bars", len(candles)), zap.String("symbol", o.symbol))

	r := runner.New(nil, runner.WithLogger(logger), runner.WithWorkers(1))
	opts := o.opts
	resp, err := r.Run(ctx, runner.Request{
		Symbol:   o.symbol,
		Strategy: def,
		Options:  &opts,
		Candles:  candles,
		Explain:  o.explain,
	})
	if err != nil {
		return resp, err
	}

	if err := os.MkdirAll(o.outDir, 0o755); err != nil {
		return resp, err
	}
	res := resp.Result
	if err := writeFile(filepath.Join(o.outDir, "trades.csv"), func(w io.Writer) error { return engine.WriteTradesCSV(w, res.Trades) }); err != nil {
		return resp, err
	}
	if err := writeFile(filepath.Join(o.outDir, "equity.csv"), func(w io.Writer) error { return engine.WriteEquityCSV(w, res.EquityCurve) }); err != nil {
		return resp, err
	}
	if err := writeJSON(filepath.Join(o.outDir, "manifest.json"), resp.Manifest); err != nil {
		return resp, err
	}
	if o.explain {
		if err := writeJSON(filepath.Join(o.outDir, "explanations.json"), resp.Explanations); err != nil {
			return resp, err
		}
	}
	if o.arrow {
		p, err := arrowpipeline.NewPipeline(arrowpipeline.Config{Compression: o.compression}, logger)
		if err != nil {
			return resp, err
		}
		if err := writeFile(filepath.Join(o.outDir, "trades.arrow"), func(w io.Writer) error { return p.WriteTrades(w, res.Trades) }); err != nil {
			return resp, err
		}
		if err := writeFile(filepath.Join(o.outDir, "equity.arrow"), func(w io.Writer) error {
			return p.WriteEquity(w, res.EquityCurve, res.BenchmarkCurve)
		}); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func printSummary(w io.Writer, res *engine.BacktestResult) {
	s := engine.Summarize(res.Trades)
	fmt.Fprintf(w, "Trades:          %d (wins %d, losses %d)\n", s.TotalTrades, s.Wins, s.Losses)
	fmt.Fprintf(w, "Win rate:        %s%%\n", s.WinRate.StringFixed(2))
	fmt.Fprintf(w, "Net PnL:         $%s\n", s.NetPnlUsd.StringFixed(2))
	fmt.Fprintf(w, "Profit factor:   %s\n", s.ProfitFactor.StringFixed(2))
	fmt.Fprintf(w, "Final balance:   $%.2f (%.2f%%)\n", res.FinalBalance, res.TotalReturnPct)
	fmt.Fprintf(w, "Max drawdown:    %.2f%%\n", res.MaxDrawdownPct)
	fmt.Fprintf(w, "Sharpe:          %.3f\n", res.Sharpe)
	fmt.Fprintf(w, "Benchmark:       %.2f%% (alpha %.2f, beta %.3f)\n", res.BenchmarkReturnPct, res.Alpha, res.Beta)
	fmt.Fprintf(w, "Total costs:     $%.2f\n", res.TotalCostsUSD)
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	resp, err := run(context.Background(), o, logger)
	if err != nil {
		if resp != nil && resp.Error != nil {
			logger.Fatal("Strategy run failed", zap.String("code", resp.Error.Code), zap.Error(err))
		}
		logger.Fatal("Strategy run failed", zap.Error(err))
	}
	fmt.Printf("Strategy completed. Generated %d trades\n", resp.Result.NumTrades)
	printSummary(os.Stdout, resp.Result)
	fmt.Printf("Outputs written to %s\n", o.outDir)
}
