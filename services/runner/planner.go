package runner

import (
	"errors"
	"runtime"
	"sync"
	"time"
)

// Chunk is a slice of symbols sharing one time window.
type Chunk struct {
	Symbols []string
	From    time.Time
	To      time.Time
}

// Planner splits multi-symbol batches into chunks handed to the worker pool one at a time.
// MaxWorkers caps the pool for each chunk.
type Planner struct {
	MaxChunkSize int
	MaxWorkers   int
}

func NewPlanner(maxChunkSize, maxWorkers int) *Planner {
	if maxChunkSize <= 0 {
		maxChunkSize = 16
	}
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}
	return &Planner{
		MaxChunkSize: maxChunkSize,
		MaxWorkers:   maxWorkers,
	}
}

// PlanChunks deduplicates symbols, keeping first-seen order.
func (p *Planner) PlanChunks(symbols []string, from, to time.Time) []Chunk {
	seen := make(map[string]bool, len(symbols))
	uniq := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		uniq = append(uniq, s)
	}

	var chunks []Chunk
	for i := 0; i < len(uniq); i += p.MaxChunkSize {
		end := min(i+p.MaxChunkSize, len(uniq))
		chunks = append(chunks, Chunk{
			Symbols: uniq[i:end],
			From:    from,
			To:      to,
		})
	}
	return chunks
}

var ErrQueueFull = errors.New("backtest queue is full")

// Backpressure caps the number of runs admitted at once.
type Backpressure struct {
	mu           sync.Mutex
	MaxQueueSize int
	QueueLen     int
}

func NewBackpressure(maxQueueSize int) *Backpressure {
	return &Backpressure{MaxQueueSize: maxQueueSize}
}

// Accept admits one run or returns ErrQueueFull.
func (bp *Backpressure) Accept() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.MaxQueueSize > 0 && bp.QueueLen >= bp.MaxQueueSize {
		return ErrQueueFull
	}
	bp.QueueLen++
	return nil
}

func (bp *Backpressure) Release() {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.QueueLen > 0 {
		bp.QueueLen--
	}
}

func (bp *Backpressure) Len() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.QueueLen
}
