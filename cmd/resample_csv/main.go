// Resample CSV candles to a coarser timeframe.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"go.uber.org/zap"

	"strategylab/services/market"
)

func resample(in io.Reader, out io.Writer, dst market.Timeframe, dropPartial bool) (int, int, error) {
	candles, err := market.ReadCSV(in)
	if err != nil {
		return 0, 0, err
	}
	res, err := market.Resample(candles, dst, dropPartial)
	if err != nil {
		return 0, 0, err
	}
	return len(candles), len(res), market.WriteCSV(out, res)
}

func main() {
	in := flag.String("in", "", "Input CSV (timestamp,open,high,low,close,volume)")
	out := flag.String("out", "", "Output CSV path")
	dst := flag.String("dst", "15m", "Target timeframe (e.g., 15m, 1h, 1d)")
	dropPartial := flag.Bool("drop-partial", true, "Drop a trailing bucket that is not complete")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if *in == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "Error: -in and -out are required")
		flag.Usage()
		os.Exit(2)
	}

	src, err := os.Open(*in)
	if err != nil {
		logger.Fatal("Failed to open input", zap.Error(err))
	}
	defer src.Close()
	f, err := os.Create(*out)
	if err != nil {
		logger.Fatal("Failed to create output", zap.Error(err))
	}
	read, written, err := resample(src, f, market.Timeframe(*dst), *dropPartial)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		logger.Fatal("Resample failed", zap.Error(err))
	}
	logger.Info("Resampled candles",
		zap.String("in", *in),
		zap.String("out", *out),
		zap.String("timeframe", *dst),
		zap.Int("read", read),
		zap.Int("written", written))
}
