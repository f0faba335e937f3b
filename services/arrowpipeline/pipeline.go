// Package arrowpipeline moves candles, equity curves and trade logs through Apache Arrow IPC
// streams so notebooks and other engines can read backtest inputs and outputs column-wise.
package arrowpipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"

	"strategylab/services/market"
)

// Config holds Arrow pipeline configuration
type Config struct {
	BatchSize   int    `yaml:"batch_size"`
	Compression string `yaml:"compression"` // "", "lz4" or "zstd"
}

// Pipeline handles Arrow IPC streaming
type Pipeline struct {
	config Config
	mem    memory.Allocator
	logger *zap.Logger
}

// NewPipeline creates a new Arrow pipeline
func NewPipeline(config Config, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 65536
	}
	switch config.Compression {
	case "", "none", "lz4", "zstd":
	default:
		return nil, fmt.Errorf("unsupported arrow compression %q", config.Compression)
	}
	return &Pipeline{
		config: config,
		mem:    memory.NewGoAllocator(),
		logger: logger,
	}, nil
}

func (p *Pipeline) writerOptions(schema *arrow.Schema) []ipc.Option {
	opts := []ipc.Option{ipc.WithSchema(schema), ipc.WithAllocator(p.mem)}
	switch p.config.Compression {
	case "lz4":
		opts = append(opts, ipc.WithLZ4())
	case "zstd":
		opts = append(opts, ipc.WithZstd())
	}
	return opts
}

const symbolKey = "symbol"

var candleColumns = []string{"timestamp_ms", "open", "high", "low", "close", "volume"}

func candleSchema(symbol string) *arrow.Schema {
	md := arrow.NewMetadata([]string{symbolKey}, []string{symbol})
	return arrow.NewSchema([]arrow.Field{
		{Name: "timestamp_ms", Type: arrow.PrimitiveTypes.Int64},
		{Name: "open", Type: arrow.PrimitiveTypes.Float64},
		{Name: "high", Type: arrow.PrimitiveTypes.Float64},
		{Name: "low", Type: arrow.PrimitiveTypes.Float64},
		{Name: "close", Type: arrow.PrimitiveTypes.Float64},
		{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
	}, &md)
}

func (p *Pipeline) candleRecord(schema *arrow.Schema, candles []market.Candle) arrow.Record {
	b := array.NewRecordBuilder(p.mem, schema)
	defer b.Release()
	ts := b.Field(0).(*array.Int64Builder)
	open := b.Field(1).(*array.Float64Builder)
	high := b.Field(2).(*array.Float64Builder)
	low := b.Field(3).(*array.Float64Builder)
	closep := b.Field(4).(*array.Float64Builder)
	vol := b.Field(5).(*array.Float64Builder)
	for _, c := range candles {
		ts.Append(c.Timestamp.UnixMilli())
		open.Append(c.Open)
		high.Append(c.High)
		low.Append(c.Low)
		closep.Append(c.Close)
		vol.Append(c.Volume)
	}
	return b.NewRecord()
}

// WriteCandles writes one IPC stream, split into record batches of BatchSize rows.
func (p *Pipeline) WriteCandles(w io.Writer, symbol string, candles []market.Candle) error {
	schema := candleSchema(symbol)
	writer := ipc.NewWriter(w, p.writerOptions(schema)...)
	for start := 0; start < len(candles); start += p.config.BatchSize {
		end := min(start+p.config.BatchSize, len(candles))
		rec := p.candleRecord(schema, candles[start:end])
		err := writer.Write(rec)
		rec.Release()
		if err != nil {
			writer.Close()
			return fmt.Errorf("failed to write Arrow record: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close Arrow stream: %w", err)
	}
	p.logger.Debug("Wrote Arrow candles", zap.String("symbol", symbol), zap.Int("rows", len(candles)))
	return nil
}

// StreamCandles writes every batch received on in as its own record until in is closed or
// ctx is cancelled.
func (p *Pipeline) StreamCandles(ctx context.Context, symbol string, in <-chan []market.Candle, w io.Writer) (int, error) {
	schema := candleSchema(symbol)
	writer := ipc.NewWriter(w, p.writerOptions(schema)...)
	rows := 0
	for {
		select {
		case <-ctx.Done():
			writer.Close()
			return rows, ctx.Err()
		case batch, ok := <-in:
			if !ok {
				if err := writer.Close(); err != nil {
					return rows, fmt.Errorf("failed to close Arrow stream: %w", err)
				}
				return rows, nil
			}
			if len(batch) == 0 {
				continue
			}
			rec := p.candleRecord(schema, batch)
			err := writer.Write(rec)
			rec.Release()
			if err != nil {
				writer.Close()
				return rows, fmt.Errorf("failed to write Arrow record: %w", err)
			}
			rows += len(batch)
		}
	}
}

// ReadCandles decodes a stream written by WriteCandles or StreamCandles.
func (p *Pipeline) ReadCandles(r io.Reader) (string, []market.Candle, error) {
	rdr, err := ipc.NewReader(r, ipc.WithAllocator(p.mem))
	if err != nil {
		return "", nil, fmt.Errorf("open Arrow stream: %w", err)
	}
	defer rdr.Release()

	symbol := ""
	md := rdr.Schema().Metadata()
	if i := md.FindKey(symbolKey); i >= 0 {
		symbol = md.Values()[i]
	}

	var out []market.Candle
	for rdr.Next() {
		rec := rdr.Record()
		cols, err := columns(rec, candleColumns...)
		if err != nil {
			return "", nil, err
		}
		ts, ok := cols[0].(*array.Int64)
		if !ok {
			return "", nil, fmt.Errorf("column timestamp_ms: unexpected type %s", cols[0].DataType())
		}
		var f [5]*array.Float64
		for j := range f {
			if f[j], ok = cols[j+1].(*array.Float64); !ok {
				return "", nil, fmt.Errorf("column %s: unexpected type %s", candleColumns[j+1], cols[j+1].DataType())
			}
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			out = append(out, market.Candle{
				Timestamp: time.UnixMilli(ts.Value(i)).UTC(),
				Open:      f[0].Value(i),
				High:      f[1].Value(i),
				Low:       f[2].Value(i),
				Close:     f[3].Value(i),
				Volume:    f[4].Value(i),
			})
		}
	}
	if err := rdr.Err(); err != nil && err != io.EOF {
		return "", nil, fmt.Errorf("read Arrow stream: %w", err)
	}
	if out == nil {
		out = []market.Candle{}
	}
	return symbol, out, nil
}

func columns(rec arrow.Record, names ...string) ([]arrow.Array, error) {
	out := make([]arrow.Array, len(names))
	for i, name := range names {
		idx := rec.Schema().FieldIndices(name)
		if len(idx) == 0 {
			return nil, fmt.Errorf("record has no %q column", name)
		}
		out[i] = rec.Column(idx[0])
	}
	return out, nil
}
