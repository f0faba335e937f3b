package clickhouse

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"strategylab/services/market"
)

// IngestReport summarises one ingestion run.
type IngestReport struct {
	Symbol    string
	Timeframe market.Timeframe
	Rows      int
	Gaps      []market.Gap
}

// IngestPipeline validates CSV candles and stages them into the candle table.
type IngestPipeline struct {
	sink      CandleSink
	batchSize int
	logger    *zap.Logger
}

func NewIngestPipeline(sink CandleSink, batchSize int, logger *zap.Logger) *IngestPipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestPipeline{sink: sink, batchSize: batchSize, logger: logger}
}

// IngestCSV decodes r, rejects unordered or inconsistent rows, reports gaps and writes
// the candles in batches. Gaps are logged, not fatal.
func (p *IngestPipeline) IngestCSV(ctx context.Context, r io.Reader, symbol string, tf market.Timeframe) (IngestReport, error) {
	candles, err := market.ReadCSV(r)
	if err != nil {
		return IngestReport{}, err
	}
	return p.Ingest(ctx, candles, symbol, tf)
}

func (p *IngestPipeline) Ingest(ctx context.Context, candles []market.Candle, symbol string, tf market.Timeframe) (IngestReport, error) {
	report := IngestReport{Symbol: symbol, Timeframe: tf}
	if err := market.Validate(candles); err != nil {
		return report, fmt.Errorf("validate %s: %w", symbol, err)
	}
	step, err := tf.Duration()
	if err != nil {
		return report, err
	}
	report.Gaps = market.DetectGaps(candles, step)
	for _, g := range report.Gaps {
		p.logger.Warn("Gap in candles",
			zap.String("symbol", symbol),
			zap.Time("after", g.After),
			zap.Time("before", g.Before),
			zap.Int("missing", g.Missing))
	}

	w := NewBatchWriter(p.sink, symbol, tf, p.batchSize)
	for _, c := range candles {
		if err := w.Add(ctx, c); err != nil {
			report.Rows = w.Written()
			return report, err
		}
	}
	if err := w.Close(ctx); err != nil {
		report.Rows = w.Written()
		return report, err
	}
	report.Rows = w.Written()
	p.logger.Info("Ingested candles",
		zap.String("symbol", symbol),
		zap.String("interval", string(tf)),
		zap.Int("rows", report.Rows),
		zap.Int("gaps", len(report.Gaps)))
	return report, nil
}
