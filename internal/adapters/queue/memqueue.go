package queue

import (
	"sync"

	"github.com/tuan204-dev/iot-next/internal/domain"
	"github.com/tuan204-dev/iot-next/internal/ports"
)

// MemQueue is a bounded FIFO of readings awaiting archival, kept in a fixed
// ring so committing a batch never shifts the backlog.
type MemQueue struct {
	mu   sync.Mutex
	ring []*domain.Reading
	head int
	n    int
}

func NewMemQueue(capacity int) *MemQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemQueue{ring: make([]*domain.Reading, capacity)}
}

// Enqueue appends r at the tail and reports false when the ring is full.
func (q *MemQueue) Enqueue(r *domain.Reading) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == len(q.ring) {
		return false
	}
	q.ring[(q.head+q.n)%len(q.ring)] = r
	q.n++
	return true
}

func (q *MemQueue) Peek(max int) []*domain.Reading {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == 0 {
		return nil
	}
	if max <= 0 || max > q.n {
		max = q.n
	}
	out := make([]*domain.Reading, max)
	first := copy(out, q.ring[q.head:min(q.head+max, len(q.ring))])
	copy(out[first:], q.ring[:max-first])
	return out
}

func (q *MemQueue) Drop(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 {
		return
	}
	n = min(n, q.n)
	for i := 0; i < n; i++ {
		q.ring[(q.head+i)%len(q.ring)] = nil
	}
	q.head = (q.head + n) % len(q.ring)
	q.n -= n
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

var _ ports.ReadingQueue = (*MemQueue)(nil)
