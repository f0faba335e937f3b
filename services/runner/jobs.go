package runner

import "sync"

// JobStore keeps the most recent responses by job id. The oldest entry is evicted once
// capacity is reached.
type JobStore struct {
	mu       sync.RWMutex
	capacity int
	order    []string
	jobs     map[string]*Response
}

func NewJobStore(capacity int) *JobStore {
	if capacity <= 0 {
		capacity = 1024
	}
	return &JobStore{capacity: capacity, jobs: make(map[string]*Response)}
}

func (s *JobStore) Put(resp *Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[resp.JobID]; !ok {
		s.order = append(s.order, resp.JobID)
	}
	s.jobs[resp.JobID] = resp
	for len(s.order) > s.capacity {
		delete(s.jobs, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *JobStore) Get(jobID string) (*Response, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resp, ok := s.jobs[jobID]
	return resp, ok
}

func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
