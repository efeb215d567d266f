package watcher

import (
	"context"
	"sync"

	"mtp-bridge/internal/reconcile"
)

// Queue carries reconciliation requests from watch goroutines to the single
// reconciliation worker. At most one request per direction is pending at any
// time: a burst of events during an in-flight pass collapses into exactly
// one follow-up pass.
type Queue struct {
	mu      sync.Mutex
	pending map[reconcile.Direction]bool
	ch      chan reconcile.Direction
}

func NewQueue() *Queue {
	return &Queue{
		pending: make(map[reconcile.Direction]bool),
		// one slot per direction
		ch: make(chan reconcile.Direction, 2),
	}
}

// Push requests a pass for the direction. Returns false when a request for
// that direction was already pending and this one was coalesced into it.
func (q *Queue) Push(d reconcile.Direction) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending[d] {
		return false
	}
	q.pending[d] = true
	q.ch <- d
	return true
}

// Next blocks until a request is available or ctx is done. The pending mark
// clears as the request is handed out, so events arriving during the pass
// queue one more.
func (q *Queue) Next(ctx context.Context) (reconcile.Direction, bool) {
	select {
	case <-ctx.Done():
		return 0, false
	case d := <-q.ch:
		q.mu.Lock()
		delete(q.pending, d)
		q.mu.Unlock()
		return d, true
	}
}
