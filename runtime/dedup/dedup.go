// Package dedup admits each trigger key at most once within a sliding window.
//
// Two implementations are provided: MemorySet for single-instance
// deployments and tests, and RedisSet for deployments where several bot
// processes share one gateway sharding scheme.
package dedup

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// DefaultWindow is how long an admitted key blocks repeats.
const DefaultWindow = 5 * time.Minute

// Set admits keys at most once per window. Admit reports true the first time
// a key is seen and false for every repeat until the entry expires.
type Set interface {
	Admit(ctx context.Context, key string) bool
}

// MemorySet is an in-process Set. Entries live in a map and an expiry
// min-heap; expired entries are evicted lazily on each Admit.
type MemorySet struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	entries map[string]*entry
	expiry  expiryHeap
}

type entry struct {
	key       string
	expiresAt time.Time
	index     int
}

// MemoryOption configures a MemorySet.
type MemoryOption func(*MemorySet)

// WithWindow sets the dedup window. Non-positive values are ignored.
func WithWindow(window time.Duration) MemoryOption {
	return func(s *MemorySet) {
		if window > 0 {
			s.window = window
		}
	}
}

// WithClock sets the time source. Tests use it to move time forward.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemorySet) {
		s.now = now
	}
}

// NewMemorySet creates an empty in-memory set.
func NewMemorySet(opts ...MemoryOption) *MemorySet {
	s := &MemorySet{
		window:  DefaultWindow,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admit implements Set. The check and the insert happen under one lock so
// concurrent callers with the same key see exactly one true.
func (s *MemorySet) Admit(_ context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evict(now)

	if _, ok := s.entries[key]; ok {
		return false
	}
	e := &entry{key: key, expiresAt: now.Add(s.window)}
	s.entries[key] = e
	heap.Push(&s.expiry, e)
	return true
}

// Len returns the number of live entries.
func (s *MemorySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evict(s.now())
	return len(s.entries)
}

// evict must be called with the lock held.
func (s *MemorySet) evict(now time.Time) {
	for s.expiry.Len() > 0 {
		oldest := s.expiry[0]
		if oldest.expiresAt.After(now) {
			return
		}
		heap.Pop(&s.expiry)
		delete(s.entries, oldest.key)
	}
}

type expiryHeap []*entry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].expiresAt.Before(h[j].expiresAt) }
func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *expiryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

var _ Set = (*MemorySet)(nil)
