package forensics

import (
	"fmt"
	"sync"
)

// Store keeps trade explanations keyed by trade id so they can be served after a run.
type Store struct {
	mu      sync.RWMutex
	replays map[string]*TradeExplanation
}

func NewStore() *Store {
	return &Store{replays: make(map[string]*TradeExplanation)}
}

// TradeID is the key of the n-th trade of a job.
func TradeID(jobID string, n int) string { return fmt.Sprintf("%s-%d", jobID, n) }

func (s *Store) Put(tradeID string, x *TradeExplanation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replays[tradeID] = x
}

func (s *Store) Get(tradeID string) (*TradeExplanation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	x, ok := s.replays[tradeID]
	return x, ok
}

// Len is the number of stored explanations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.replays)
}
