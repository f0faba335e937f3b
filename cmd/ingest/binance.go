package main

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"strategylab/services/market"
)

const defaultBaseURL = "https://data.binance.vision/data/spot/monthly/klines"

func enumerateMonths(start, end string) ([]string, error) {
	t0, err := time.Parse("2006-01", start)
	if err != nil {
		return nil, fmt.Errorf("start month: %w", err)
	}
	t1, err := time.Parse("2006-01", end)
	if err != nil {
		return nil, fmt.Errorf("end month: %w", err)
	}
	var res []string
	for tm := t0; !tm.After(t1); tm = tm.AddDate(0, 1, 0) {
		res = append(res, tm.Format("2006-01"))
	}
	return res, nil
}

func klineURL(base, symbol string, tf market.Timeframe, month string) string {
	return fmt.Sprintf("%s/%s/%s/%s-%s-%s.zip", strings.TrimRight(base, "/"), symbol, tf, symbol, tf, month)
}

func downloadFile(ctx context.Context, client *http.Client, url, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// readZipCandles parses every CSV entry of a kline archive.
func readZipCandles(zipPath string) ([]market.Candle, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []market.Candle
	for _, f := range r.File {
		if !strings.HasSuffix(f.Name, ".csv") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		candles, err := market.ReadCSV(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		out = append(out, candles...)
	}
	return out, nil
}
