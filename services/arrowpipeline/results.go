package arrowpipeline

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"

	"strategylab/services/engine"
)

var equitySchema = arrow.NewSchema([]arrow.Field{
	{Name: "timestamp_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "equity", Type: arrow.PrimitiveTypes.Float64},
	{Name: "benchmark", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
}, nil)

var tradeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "entry_time_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "exit_time_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "entry_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "qty", Type: arrow.PrimitiveTypes.Float64},
	{Name: "pnl", Type: arrow.PrimitiveTypes.Float64},
	{Name: "pnl_pct", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit_reason", Type: arrow.BinaryTypes.String},
	{Name: "bars_held", Type: arrow.PrimitiveTypes.Int32},
	{Name: "mae_pct", Type: arrow.PrimitiveTypes.Float64},
	{Name: "mfe_pct", Type: arrow.PrimitiveTypes.Float64},
	{Name: "r_multiple", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "total_cost_usd", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// WriteEquity writes the equity curve with the buy-and-hold benchmark aligned by index.
// Rows past the end of benchmark carry a null benchmark.
func (p *Pipeline) WriteEquity(w io.Writer, equity, benchmark []engine.EquityPoint) error {
	b := array.NewRecordBuilder(p.mem, equitySchema)
	defer b.Release()
	ts := b.Field(0).(*array.Int64Builder)
	eq := b.Field(1).(*array.Float64Builder)
	bench := b.Field(2).(*array.Float64Builder)
	for i, pt := range equity {
		ts.Append(pt.Timestamp.UnixMilli())
		eq.Append(pt.Equity)
		if i < len(benchmark) {
			bench.Append(benchmark[i].Equity)
		} else {
			bench.AppendNull()
		}
	}
	return p.writeOne(w, equitySchema, b.NewRecord())
}

// WriteTrades writes the trade log, one row per (partial) exit.
func (p *Pipeline) WriteTrades(w io.Writer, trades []engine.Trade) error {
	b := array.NewRecordBuilder(p.mem, tradeSchema)
	defer b.Release()
	for _, t := range trades {
		b.Field(0).(*array.Int64Builder).Append(t.EntryTime.UnixMilli())
		b.Field(1).(*array.Int64Builder).Append(t.ExitTime.UnixMilli())
		b.Field(2).(*array.Float64Builder).Append(t.EntryPrice)
		b.Field(3).(*array.Float64Builder).Append(t.ExitPrice)
		b.Field(4).(*array.Float64Builder).Append(t.Qty)
		b.Field(5).(*array.Float64Builder).Append(t.PnL)
		b.Field(6).(*array.Float64Builder).Append(t.PnLPct)
		b.Field(7).(*array.StringBuilder).Append(string(t.ExitReason))
		b.Field(8).(*array.Int32Builder).Append(int32(t.BarsHeld))
		b.Field(9).(*array.Float64Builder).Append(t.MAEPct)
		b.Field(10).(*array.Float64Builder).Append(t.MFEPct)
		if t.RMultiple != nil {
			b.Field(11).(*array.Float64Builder).Append(*t.RMultiple)
		} else {
			b.Field(11).(*array.Float64Builder).AppendNull()
		}
		b.Field(12).(*array.Float64Builder).Append(t.TotalCostUSD())
	}
	return p.writeOne(w, tradeSchema, b.NewRecord())
}

func (p *Pipeline) writeOne(w io.Writer, schema *arrow.Schema, rec arrow.Record) error {
	defer rec.Release()
	writer := ipc.NewWriter(w, p.writerOptions(schema)...)
	if rec.NumRows() > 0 {
		if err := writer.Write(rec); err != nil {
			writer.Close()
			return fmt.Errorf("failed to write Arrow record: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close Arrow stream: %w", err)
	}
	return nil
}
