// ABOUTME: Per-key serial queue fixing execution order at issuance time
// ABOUTME: Work on one key runs one at a time in the order it was reserved; distinct keys run freely
package mutation

import (
	"sync"
)

type serialQueue struct {
	mu     sync.Mutex
	tails  map[string]*slot
	counts map[string]int
}

type slot struct {
	prev <-chan struct{}
	done chan struct{}
	q    *serialQueue
	key  string
}

func newSerialQueue() *serialQueue {
	return &serialQueue{tails: make(map[string]*slot), counts: make(map[string]int)}
}

// reserve takes the next place in line for key. It never blocks, so calling it
// from the issuing goroutine fixes the order before any work is awaited.
func (q *serialQueue) reserve(key string) *slot {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := &slot{done: make(chan struct{}), q: q, key: key}
	if tail, ok := q.tails[key]; ok {
		s.prev = tail.done
	}
	q.tails[key] = s
	q.counts[key]++
	return s
}

// wait blocks until every earlier reservation on the key has been released.
func (s *slot) wait() {
	if s.prev != nil {
		<-s.prev
	}
}

// latest reports whether no reservation was made on the key after this one.
func (s *slot) latest() bool {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()
	return s.q.tails[s.key] == s
}

func (s *slot) release() {
	s.q.mu.Lock()
	if s.q.tails[s.key] == s {
		delete(s.q.tails, s.key)
	}
	if s.q.counts[s.key]--; s.q.counts[s.key] <= 0 {
		delete(s.q.counts, s.key)
	}
	s.q.mu.Unlock()
	close(s.done)
}

// depth returns how many keys currently have queued or running work.
func (q *serialQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tails)
}

// reserved returns how many reservations on key are waiting or running.
func (q *serialQueue) reserved(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.counts[key]
}
