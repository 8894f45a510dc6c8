package manager

import (
	"sort"
	"sync"
)

// workerStore maps worker id to its record. At most one record per id.
type workerStore struct {
	mu   sync.RWMutex
	recs map[string]*WorkerRecord
}

func newWorkerStore() *workerStore {
	return &workerStore{recs: make(map[string]*WorkerRecord)}
}

func (s *workerStore) get(id string) (*WorkerRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recs[id]
	return r, ok
}

// put registers r, returning the record it replaced, if any.
func (s *workerStore) put(r *WorkerRecord) *WorkerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.recs[r.ID]
	s.recs[r.ID] = r
	return prev
}

// remove deletes id only if it still maps to r.
func (s *workerStore) remove(r *WorkerRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.recs[r.ID]; ok && cur == r {
		delete(s.recs, r.ID)
		return true
	}
	return false
}

func (s *workerStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs)
}

// snapshot returns the records sorted by id.
func (s *workerStore) snapshot() []*WorkerRecord {
	s.mu.RLock()
	out := make([]*WorkerRecord, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
