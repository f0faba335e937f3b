package main

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/services/market"
)

func TestEnumerateMonths(t *testing.T) {
	months, err := enumerateMonths("2023-11", "2024-02")
	require.NoError(t, err)
	assert.Equal(t, []string{"2023-11", "2023-12", "2024-01", "2024-02"}, months)

	_, err = enumerateMonths("2023/11", "2024-02")
	assert.Error(t, err)
}

func TestKlineURL(t *testing.T) {
	assert.Equal(t,
		"https://example.test/klines/BTCUSDT/1m/BTCUSDT-1m-2024-01.zip",
		klineURL("https://example.test/klines/", "BTCUSDT", market.TF1m, "2024-01"))
}

func TestParseTimeframes(t *testing.T) {
	assert.Equal(t, []market.Timeframe{market.TF5m, market.TF15m}, parseTimeframes(" 5m, ,15m"))
	assert.Empty(t, parseTimeframes(""))
}

func klineZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("BTCUSDT-1m-2024-01.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte(
		"1704067200000,100,101,99,100.5,3,1704067259999,300,10\n" +
			"1704067260000,100.5,102,100,101,4,1704067319999,400,12\n"))
	require.NoError(t, err)
	_, err = zw.Create("README.txt")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDownloadAndReadZip(t *testing.T) {
	body := klineZip(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/BTCUSDT/1m/BTCUSDT-1m-2024-01.zip" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "k.zip")
	require.NoError(t, downloadFile(context.Background(), srv.Client(), klineURL(srv.URL, "BTCUSDT", market.TF1m, "2024-01"), path))

	candles, err := readZipCandles(path)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 101.0, candles[1].Close)

	err = downloadFile(context.Background(), srv.Client(), klineURL(srv.URL, "BTCUSDT", market.TF1m, "2024-02"), filepath.Join(dir, "missing.zip"))
	assert.ErrorContains(t, err, "bad status")
	_, statErr := os.Stat(filepath.Join(dir, "missing.zip"))
	assert.True(t, os.IsNotExist(statErr))
}
