package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/services/engine"
)

func newMocked(t *testing.T) (*ResultCache, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	return NewWithClient(db, Config{Prefix: "test:", TTL: time.Minute}, nil), mock
}

func sampleResult() engine.BacktestResult {
	return engine.BacktestResult{
		InitialBalance: 10000,
		FinalBalance:   10500,
		TotalReturnPct: 5,
		NumTrades:      2,
		Trades:         []engine.Trade{},
		EquityCurve:    []engine.EquityPoint{},
	}
}

func TestResultCacheGet(t *testing.T) {
	ctx := context.Background()

	t.Run("hit decodes the stored result", func(t *testing.T) {
		c, mock := newMocked(t)
		payload, err := json.Marshal(sampleResult())
		require.NoError(t, err)
		mock.ExpectGet("test:result:abc").SetVal(string(payload))

		res, found, err := c.Get(ctx, "abc")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, 10500.0, res.FinalBalance)
		assert.Equal(t, 2, res.NumTrades)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss", func(t *testing.T) {
		c, mock := newMocked(t)
		mock.ExpectGet("test:result:nope").RedisNil()

		res, found, err := c.Get(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, res)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis error", func(t *testing.T) {
		c, mock := newMocked(t)
		mock.ExpectGet("test:result:err").SetErr(redis.TxFailedErr)

		_, _, err := c.Get(ctx, "err")
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt entry is dropped", func(t *testing.T) {
		c, mock := newMocked(t)
		mock.ExpectGet("test:result:bad").SetVal("{not json")
		mock.ExpectDel("test:result:bad").SetVal(1)

		_, found, err := c.Get(ctx, "bad")
		require.NoError(t, err)
		assert.False(t, found)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResultCacheSet(t *testing.T) {
	ctx := context.Background()
	c, mock := newMocked(t)
	payload, err := json.Marshal(sampleResult())
	require.NoError(t, err)

	mock.ExpectSet("test:result:abc", payload, time.Minute).SetVal("OK")
	require.NoError(t, c.Set(ctx, "abc", sampleResult()))

	mock.ExpectSet("test:result:abc", payload, time.Minute).SetErr(redis.TxFailedErr)
	assert.Error(t, c.Set(ctx, "abc", sampleResult()))

	mock.ExpectDel("test:result:abc").SetVal(1)
	require.NoError(t, c.Delete(ctx, "abc"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDefaults(t *testing.T) {
	db, _ := redismock.NewClientMock()
	c := NewWithClient(db, Config{}, nil)
	assert.Equal(t, "strategylab:result:fp", c.Key("fp"))
	assert.Equal(t, 24*time.Hour, c.ttl)
}
