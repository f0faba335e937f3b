package proto

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"strategylab/services/engine"
	"strategylab/services/market"
	"strategylab/services/runner"
	"strategylab/services/strategy"
)

func TestDecodeInlineAndTemplateStrategies(t *testing.T) {
	var inline BacktestRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"symbol": "BTCUSDT",
		"strategy": {
			"blocks": [{"id": "p", "type": "price"}, {"id": "e", "type": "entry_signal"}],
			"connections": [{"from": {"block_id": "p", "port": "value"}, "to": {"block_id": "e", "port": "signal"}}]
		}
	}`), &inline))
	assert.Len(t, inline.Strategy.Blocks, 2)
	assert.Empty(t, inline.Strategy.Template)

	var tpl BacktestRequest
	require.NoError(t, json.Unmarshal([]byte(`{"symbol":"BTCUSDT","strategy":{"template":"ema_atr","params":{"fast_period":10}}}`), &tpl))
	def, err := tpl.Strategy.Resolve()
	require.NoError(t, err)
	assert.NotEmpty(t, def.Blocks)
}

func TestResolveErrors(t *testing.T) {
	_, err := StrategySpec{Template: "missing"}.Resolve()
	assert.Equal(t, runner.CodeInvalidStrategy, runner.Classify(err).Code)

	spec := StrategySpec{Template: "ema_atr"}
	spec.Blocks = []strategy.Block{{ID: "x", Type: "price"}}
	_, err = spec.Resolve()
	assert.Equal(t, runner.CodeInvalidParams, runner.Classify(err).Code)
}

func TestToRunnerRequests(t *testing.T) {
	defaults := engine.DefaultOptions()
	req := BacktestRequest{
		Symbol:    "BTC",
		Symbols:   []string{"ETH", "BTC", "SOL"},
		Timeframe: "1h",
		StartTime: 1704067200000,
		EndTime:   1706745600000,
		Strategy:  StrategySpec{Template: "rsi_bollinger"},
		Explain:   true,
	}
	out, err := req.ToRunnerRequests(defaults)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, []string{out[0].Symbol, out[1].Symbol, out[2].Symbol})
	require.NotNil(t, out[0].Options)
	assert.Equal(t, market.Timeframe("1h"), out[0].Options.Timeframe)
	assert.Equal(t, defaults.FeeRate, out[0].Options.FeeRate)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), out[0].From)
	assert.True(t, out[2].Explain)

	noOpts := BacktestRequest{Symbol: "BTC", Strategy: StrategySpec{Template: "ema_atr"}}
	out, err = noOpts.ToRunnerRequests(defaults)
	require.NoError(t, err)
	assert.Nil(t, out[0].Options)
}

func TestToRunnerRequestsInlineCandles(t *testing.T) {
	candles := market.GenerateSynthetic(market.SyntheticConfig{Bars: 10})
	req := BacktestRequest{Candles: candles, Strategy: StrategySpec{Template: "ema_atr"}}
	out, err := req.ToRunnerRequests(engine.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Len(t, out[0].Candles, 10)

	req.Symbols = []string{"A", "B"}
	_, err = req.ToRunnerRequests(engine.DefaultOptions())
	assert.ErrorIs(t, err, runner.ErrInvalidParams)
}

func TestToRunnerRequestsRejects(t *testing.T) {
	_, err := (&BacktestRequest{Strategy: StrategySpec{Template: "ema_atr"}}).ToRunnerRequests(engine.DefaultOptions())
	assert.ErrorIs(t, err, runner.ErrInvalidParams)

	_, err = (&BacktestRequest{Symbol: "X", StartTime: 20, EndTime: 10, Strategy: StrategySpec{Template: "ema_atr"}}).ToRunnerRequests(engine.DefaultOptions())
	assert.ErrorIs(t, err, runner.ErrInvalidParams)
}

func TestNewBatchResponse(t *testing.T) {
	reqs := []runner.Request{{Symbol: "A"}, {Symbol: "B"}}
	outs := []runner.Outcome{
		{Index: 0, Response: &runner.Response{JobID: "j1", Status: runner.StatusSucceeded}},
		{Index: 1, Response: &runner.Response{JobID: "j2"}, Err: market.ErrNoData},
	}
	resp := NewBatchResponse(reqs, outs)
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, "A", resp.Results[0].Symbol)
	assert.Equal(t, "j2", resp.Results[1].JobID)
	assert.Nil(t, resp.Results[1].Response)
	assert.Equal(t, runner.CodeDataNotFound, resp.Results[1].Error.Code)
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(runner.CodeInvalidStrategy))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(runner.CodeDataNotFound))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(runner.CodeOverloaded))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(runner.CodeExecutionFailed))

	assert.NoError(t, StatusError(nil))
	assert.Equal(t, codes.NotFound, status.Code(StatusError(market.ErrNoData)))
	assert.Equal(t, codes.ResourceExhausted, status.Code(StatusError(runner.ErrQueueFull)))
	assert.Equal(t, codes.Internal, status.Code(StatusError(errors.New("boom"))))
}

type echoServer struct {
	UnimplementedBacktestServiceServer
}

func (echoServer) ExecuteBacktest(_ context.Context, in *BacktestRequest) (*BatchResponse, error) {
	if in.Symbol == "" {
		return nil, StatusError(runner.ErrQueueFull)
	}
	return &BatchResponse{Results: []BatchItem{{Symbol: in.Symbol, Status: runner.StatusSucceeded}}, Succeeded: 1}, nil
}

func TestGRPCRoundTrip(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterBacktestServiceServer(srv, echoServer{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	client := NewBacktestServiceClient(conn)
	resp, err := client.ExecuteBacktest(context.Background(), &BacktestRequest{Symbol: "BTC"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "BTC", resp.Results[0].Symbol)

	_, err = client.ExecuteBacktest(context.Background(), &BacktestRequest{})
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	_, err = client.GetBacktest(context.Background(), &JobRequest{JobID: "x"})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}
