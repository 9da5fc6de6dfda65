package queue

import (
	"sync/atomic"
	"time"
)

// pendingEntry is the single-assignment future a Submit waits on.
// The first of resolve or abandon wins; every later call is a no-op.
type pendingEntry struct {
	id        string
	queue     *requestQueue
	createdAt time.Time

	settled  atomic.Bool
	response string
	done     chan struct{}
}

func newPendingEntry(id string, q *requestQueue) *pendingEntry {
	return &pendingEntry{
		id:        id,
		queue:     q,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// resolve stores a worker result. Returns false if the entry was already settled.
func (e *pendingEntry) resolve(response string) bool {
	if !e.settled.CompareAndSwap(false, true) {
		return false
	}
	e.response = response
	close(e.done)
	return true
}

// abandon settles the entry without a result so a still-queued request is
// recognised as stale. Returns false if a result had already arrived.
func (e *pendingEntry) abandon() bool {
	if !e.settled.CompareAndSwap(false, true) {
		return false
	}
	close(e.done)
	return true
}

func (e *pendingEntry) isSettled() bool {
	return e.settled.Load()
}
