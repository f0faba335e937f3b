package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"strategylab/proto"
	"strategylab/services/arrowpipeline"
	"strategylab/services/market"
	"strategylab/services/monitoring"
	"strategylab/services/runner"
)

// breakoutJSON enters on close > 100 and exits on close < 95.
const breakoutJSON = `{
	"blocks": [
		{"id": "px", "type": "price"},
		{"id": "above", "type": "compare", "params": {"operator": ">", "value": 100}},
		{"id": "below", "type": "compare", "params": {"operator": "<", "value": 95}},
		{"id": "entry", "type": "entry_signal"},
		{"id": "exit", "type": "exit_signal"}
	],
	"connections": [
		{"from": {"block_id": "px", "port": "value"}, "to": {"block_id": "above", "port": "a"}},
		{"from": {"block_id": "px", "port": "value"}, "to": {"block_id": "below", "port": "a"}},
		{"from": {"block_id": "above", "port": "result"}, "to": {"block_id": "entry", "port": "signal"}},
		{"from": {"block_id": "below", "port": "result"}, "to": {"block_id": "exit", "port": "signal"}}
	]
}`

func daily(closes ...float64) []market.Candle {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{Timestamp: t0.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 10}
	}
	return out
}

func newTestService(t *testing.T) (*BacktestService, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	for sym, closes := range map[string][]float64{
		"BTCUSDT": {90, 101, 105, 110, 94, 96},
		"ETHUSDT": {90, 91, 92},
	} {
		f, err := os.Create(filepath.Join(dir, sym+"_1d.csv"))
		require.NoError(t, err)
		require.NoError(t, market.WriteCSV(f, daily(closes...)))
		require.NoError(t, f.Close())
	}

	metrics, err := monitoring.NewMetrics(monitoring.Config{Namespace: "svc"})
	require.NoError(t, err)
	pipeline, err := arrowpipeline.NewPipeline(arrowpipeline.Config{}, zap.NewNop())
	require.NoError(t, err)
	r := runner.New(runner.CSVSource{Dir: dir}, runner.WithMetrics(metrics), runner.WithWorkers(2))
	svc := NewBacktestService(r, runner.NewPlanner(1, 2), pipeline, metrics, zap.NewNop(), time.Minute)
	router := gin.New()
	svc.setupHTTPRoutes(router)
	return svc, router
}

func do(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestBacktestLifecycle(t *testing.T) {
	_, router := newTestService(t)

	w := do(t, router, http.MethodPost, "/api/v1/backtest",
		`{"symbol":"BTCUSDT","explain":true,"options":{"initial_balance":1000},"strategy":`+breakoutJSON+`}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp runner.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, runner.StatusSucceeded, resp.Status)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 1, resp.Result.NumTrades)
	assert.Equal(t, 1000.0, resp.Result.InitialBalance)

	w = do(t, router, http.MethodGet, "/api/v1/backtest/"+resp.JobID, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), resp.JobID)

	w = do(t, router, http.MethodGet, "/api/v1/trades/"+resp.JobID+"-1/explanation", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "entry_signal_index")

	w = do(t, router, http.MethodGet, "/api/v1/backtest/"+resp.JobID+"/trades.arrow", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, arrowStreamType, w.Header().Get("Content-Type"))
	assert.NotZero(t, w.Body.Len())

	w = do(t, router, http.MethodGet, "/api/v1/backtest/"+resp.JobID+"/equity.arrow", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotZero(t, w.Body.Len())
}

func TestBacktestErrors(t *testing.T) {
	_, router := newTestService(t)

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed", `{"symbol":`, http.StatusBadRequest, runner.CodeInvalidParams},
		{"no symbol", `{"strategy":{"template":"ema_atr"}}`, http.StatusBadRequest, runner.CodeInvalidParams},
		{"empty strategy", `{"symbol":"BTCUSDT","strategy":{}}`, http.StatusBadRequest, runner.CodeInvalidStrategy},
		{"unknown template", `{"symbol":"BTCUSDT","strategy":{"template":"nope"}}`, http.StatusBadRequest, runner.CodeInvalidStrategy},
		{"missing data", `{"symbol":"DOGEUSDT","strategy":` + breakoutJSON + `}`, http.StatusNotFound, runner.CodeDataNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/api/v1/backtest", tc.body)
			assert.Equal(t, tc.status, w.Code)
			var body proto.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.NotNil(t, body.Error)
			assert.Equal(t, tc.code, body.Error.Code)
		})
	}

	w := do(t, router, http.MethodGet, "/api/v1/backtest/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, router, http.MethodGet, "/api/v1/trades/unknown-1/explanation", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBatchEndpoint(t *testing.T) {
	_, router := newTestService(t)
	w := do(t, router, http.MethodPost, "/api/v1/backtest/batch",
		`{"symbols":["BTCUSDT","ETHUSDT","XRPUSDT"],"strategy":`+breakoutJSON+`}`)
	require.Equal(t, http.StatusOK, w.Code)
	var batch proto.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batch))
	require.Len(t, batch.Results, 3)
	assert.Equal(t, 2, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)
	assert.Equal(t, "BTCUSDT", batch.Results[0].Symbol)
	assert.Equal(t, 1, batch.Results[0].Response.Result.NumTrades)
	assert.Equal(t, "XRPUSDT", batch.Results[2].Symbol)
	assert.Equal(t, runner.CodeDataNotFound, batch.Results[2].Error.Code)
}

func TestTemplatesAndValidate(t *testing.T) {
	_, router := newTestService(t)
	w := do(t, router, http.MethodGet, "/api/v1/strategies/templates", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ichimoku_baseline")

	w = do(t, router, http.MethodPost, "/api/v1/strategies/validate", breakoutJSON)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":true`)

	w = do(t, router, http.MethodPost, "/api/v1/strategies/validate", `{"blocks":[{"id":"x","type":"warp_drive"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":false`)
	assert.Contains(t, w.Body.String(), runner.CodeInvalidStrategy)
}

func TestHealthAndMetrics(t *testing.T) {
	_, router := newTestService(t)
	w := do(t, router, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	do(t, router, http.MethodPost, "/api/v1/backtest", `{"symbol":"BTCUSDT","strategy":`+breakoutJSON+`}`)
	w = do(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `svc_runs_total{status="succeeded"} 1`)
}

func TestExecuteBacktestGRPCMethod(t *testing.T) {
	svc, _ := newTestService(t)
	var req proto.BacktestRequest
	require.NoError(t, json.NewDecoder(bytes.NewBufferString(`{"symbols":["BTCUSDT","ETHUSDT"],"strategy":`+breakoutJSON+`}`)).Decode(&req))
	resp, err := svc.ExecuteBacktest(context.Background(), &req)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Succeeded)

	job, err := svc.GetBacktest(context.Background(), &proto.JobRequest{JobID: resp.Results[0].JobID})
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", job.Manifest.Symbol)

	_, err = svc.ExecuteBacktest(context.Background(), &proto.BacktestRequest{})
	assert.Error(t, err)
}
