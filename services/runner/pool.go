package runner

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Outcome pairs a batch request index with its response.
type Outcome struct {
	Index    int
	Response *Response
	Err      error
}

// RunBatch executes independent requests on a bounded worker pool. Outcomes come back in
// request order. Requests still queued when ctx is cancelled fail with ctx.Err().
func (r *Runner) RunBatch(ctx context.Context, reqs []Request) []Outcome {
	return r.runBatch(ctx, reqs, r.workers)
}

func (r *Runner) runBatch(ctx context.Context, reqs []Request, workers int) []Outcome {
	out := make([]Outcome, len(reqs))
	if len(reqs) == 0 {
		return out
	}
	numWorkers := max(min(workers, len(reqs)), 1)
	r.logger.Info("Starting parallel backtest execution",
		zap.Int("workers", numWorkers),
		zap.Int("requests", len(reqs)))

	jobs := make(chan int, len(reqs))
	for i := range reqs {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					out[i] = Outcome{Index: i, Err: err}
					continue
				}
				r.logger.Debug("Worker processing request",
					zap.Int("worker_id", workerID),
					zap.String("symbol", reqs[i].Symbol))
				resp, err := r.Run(ctx, reqs[i])
				out[i] = Outcome{Index: i, Response: resp, Err: err}
			}
		}(w)
	}
	wg.Wait()
	return out
}

// RunSymbols runs template once per symbol, chunk by chunk as planned by p. Each run gets
// its own job id. A chunk runs on at most p.MaxWorkers workers.
func (r *Runner) RunSymbols(ctx context.Context, p *Planner, template Request, symbols []string) []Outcome {
	var all []Outcome
	workers := min(r.workers, p.MaxWorkers)
	for _, chunk := range p.PlanChunks(symbols, template.From, template.To) {
		reqs := make([]Request, len(chunk.Symbols))
		for i, s := range chunk.Symbols {
			req := template
			req.JobID = ""
			req.Candles = nil
			req.Symbol = s
			reqs[i] = req
		}
		base := len(all)
		for _, o := range r.runBatch(ctx, reqs, workers) {
			o.Index += base
			all = append(all, o)
		}
	}
	return all
}
