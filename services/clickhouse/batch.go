package clickhouse

import (
	"context"
	"fmt"

	"strategylab/services/market"
)

// CandleSink receives flushed candle batches. *Client implements it.
type CandleSink interface {
	InsertCandles(ctx context.Context, symbol string, tf market.Timeframe, candles []market.Candle) error
}

// BatchWriter buffers candles for one symbol/timeframe and flushes every batchSize rows.
type BatchWriter struct {
	sink      CandleSink
	symbol    string
	tf        market.Timeframe
	batchSize int
	buffer    []market.Candle
	written   int
}

func NewBatchWriter(sink CandleSink, symbol string, tf market.Timeframe, batchSize int) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 10000
	}
	return &BatchWriter{
		sink:      sink,
		symbol:    symbol,
		tf:        tf,
		batchSize: batchSize,
		buffer:    make([]market.Candle, 0, batchSize),
	}
}

func (w *BatchWriter) Add(ctx context.Context, c market.Candle) error {
	w.buffer = append(w.buffer, c)
	if len(w.buffer) >= w.batchSize {
		return w.Flush(ctx)
	}
	return nil
}

func (w *BatchWriter) Flush(ctx context.Context) error {
	if len(w.buffer) == 0 {
		return nil
	}
	if err := w.sink.InsertCandles(ctx, w.symbol, w.tf, w.buffer); err != nil {
		return fmt.Errorf("flush %d candles: %w", len(w.buffer), err)
	}
	w.written += len(w.buffer)
	w.buffer = w.buffer[:0]
	return nil
}

// Written is the number of candles successfully flushed.
func (w *BatchWriter) Written() int { return w.written }

func (w *BatchWriter) Close(ctx context.Context) error {
	return w.Flush(ctx)
}
