package report

import (
	"container/list"
	"sync"
)

// LRUStore is an in-memory LRU cache that delegates to a backing Store on miss.
type LRUStore struct {
	mu    sync.Mutex
	cap   int
	back  Store
	order *list.List // most recent at front; values are *RunReport
	items map[string]*list.Element
}

// NewLRUStore creates an LRU cache with the given capacity that delegates
// to back on cache misses. Capacity must be >= 1.
func NewLRUStore(cap int, back Store) *LRUStore {
	if cap < 1 {
		cap = 1
	}
	return &LRUStore{
		cap:   cap,
		back:  back,
		order: list.New(),
		items: make(map[string]*list.Element, cap),
	}
}

// Save writes the report to the cache and delegates to the backing store.
func (s *LRUStore) Save(r *RunReport) error {
	s.mu.Lock()
	s.put(r)
	s.mu.Unlock()

	return s.back.Save(r)
}

// Load checks the cache first. On miss, loads from the backing store and
// promotes the report into the cache.
func (s *LRUStore) Load(runID string) (*RunReport, error) {
	s.mu.Lock()
	if e, ok := s.items[runID]; ok {
		s.order.MoveToFront(e)
		r := e.Value.(*RunReport)
		s.mu.Unlock()
		return r, nil
	}
	s.mu.Unlock()

	r, err := s.back.Load(runID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.put(r)
	s.mu.Unlock()
	return r, nil
}

// Len returns the number of cached reports.
func (s *LRUStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// put inserts or refreshes r. Callers hold s.mu.
func (s *LRUStore) put(r *RunReport) {
	if e, ok := s.items[r.ID]; ok {
		e.Value = r
		s.order.MoveToFront(e)
		return
	}
	s.items[r.ID] = s.order.PushFront(r)
	if s.order.Len() > s.cap {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*RunReport).ID)
	}
}
