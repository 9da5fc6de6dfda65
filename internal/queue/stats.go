package queue

import (
	"sync/atomic"

	"github.com/ternarybob/inferd/internal/models"
)

// QueueStats is a point-in-time snapshot of one queue
type QueueStats struct {
	Name      string `json:"name"`
	Depth     int    `json:"depth"`
	Capacity  int    `json:"capacity"`
	Enqueued  int64  `json:"enqueued"`
	Dequeued  int64  `json:"dequeued"`
	Skipped   int64  `json:"skipped"`
	Completed int64  `json:"completed"`
	Timeouts  int64  `json:"timeouts"`
	Rejected  int64  `json:"rejected"`
	Canceled  int64  `json:"canceled"`
}

// requestQueue is a bounded FIFO backed by a buffered channel
type requestQueue struct {
	name string
	ch   chan *models.Request

	enqueued  atomic.Int64
	dequeued  atomic.Int64
	skipped   atomic.Int64
	completed atomic.Int64
	timeouts  atomic.Int64
	rejected  atomic.Int64
	canceled  atomic.Int64
}

func newRequestQueue(name string, capacity int) *requestQueue {
	return &requestQueue{
		name: name,
		ch:   make(chan *models.Request, capacity),
	}
}

func (q *requestQueue) stats() QueueStats {
	return QueueStats{
		Name:      q.name,
		Depth:     len(q.ch),
		Capacity:  cap(q.ch),
		Enqueued:  q.enqueued.Load(),
		Dequeued:  q.dequeued.Load(),
		Skipped:   q.skipped.Load(),
		Completed: q.completed.Load(),
		Timeouts:  q.timeouts.Load(),
		Rejected:  q.rejected.Load(),
		Canceled:  q.canceled.Load(),
	}
}

// recordOutcome updates the counter matching a Submit's terminal outcome
func (q *requestQueue) recordOutcome(err error) {
	if err == nil {
		q.completed.Add(1)
		return
	}
	kind, _ := KindOf(err)
	switch kind {
	case KindQueueFull:
		q.rejected.Add(1)
	case KindTimeout:
		q.timeouts.Add(1)
	case KindCanceledByCaller:
		q.canceled.Add(1)
	}
}
