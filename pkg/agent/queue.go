package agent

import "sync"

// queue is an append-only buffer shared between producer goroutines and the
// agent's own turn. The raw slice is never handed out; drain snapshots and
// clears it under the same lock.
type queue[T any] struct {
	mu    sync.Mutex
	items []T
}

func (q *queue[T]) drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}
