// Package jobs provides the single logical thread the core runs on.
// Backend fetches, monitor deliveries and timer callbacks are all
// posted here and executed in arrival order by whoever drains the
// queue, so no other synchronization is needed in the cache or the
// live-query layer.
package jobs

import "sync"

// Queue is a serial executor. Post may be called from any goroutine;
// Drain must only ever be called from the one goroutine that owns the
// logical thread.
type Queue struct {
	mu      sync.Mutex
	pending []func()
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Post appends fn to the queue. It never runs fn inline.
func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
}

// Drain runs queued callbacks until the queue is empty, including
// callbacks posted by the callbacks themselves.
func (q *Queue) Drain() {
	for {
		q.mu.Lock()

		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}

		fn := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		fn()
	}
}

// Empty reports whether nothing is queued.
func (q *Queue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending) == 0
}
