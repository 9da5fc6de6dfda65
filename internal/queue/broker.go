package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/inferd/internal/models"
	"golang.org/x/time/rate"
)

// Commands polled so often that per-request logging would drown everything else
var quietCommands = map[string]bool{
	"list-custom":        true,
	"get_module_status":  true,
	"status":             true,
	"get_status":         true,
	"get_command_status": true,
}

// errResponseTimeout is the cause attached to the internal Submit deadline so it
// can be told apart from the caller's own cancellation or deadline.
var errResponseTimeout = errors.New("response timeout elapsed")

// Broker mediates between callers submitting requests and workers pulling them.
// Each named queue is a bounded FIFO; in-flight requests are tracked in a
// pending table keyed by request id.
type Broker struct {
	config  Config
	logger  arbor.ILogger
	metrics Metrics

	queues  sync.Map // normalized name -> *requestQueue
	pending sync.Map // request id -> *pendingEntry

	skipLog rate.Sometimes
}

// NewBroker creates a broker with no queues
func NewBroker(config Config, logger arbor.ILogger) *Broker {
	defaults := NewDefaultConfig()
	if config.ResponseTimeout <= 0 {
		config.ResponseTimeout = defaults.ResponseTimeout
	}
	if config.CommandDequeueTimeout <= 0 {
		config.CommandDequeueTimeout = defaults.CommandDequeueTimeout
	}
	if config.MaxQueueLength <= 0 {
		config.MaxQueueLength = defaults.MaxQueueLength
	}
	if logger == nil {
		logger = arbor.NewNoOpLogger()
	}

	return &Broker{
		config:  config,
		logger:  logger,
		metrics: noopMetrics{},
		skipLog: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

// SetMetrics installs a metrics sink. Call before the broker is used.
func (b *Broker) SetMetrics(m Metrics) {
	if m == nil {
		m = noopMetrics{}
	}
	b.metrics = m
}

// Config returns the limits the broker runs with
func (b *Broker) Config() Config {
	return b.config
}

// EnsureQueueExists creates the named queue if it does not exist yet.
// An existing queue is left untouched. Returns false only for a blank name.
func (b *Broker) EnsureQueueExists(queueName string) bool {
	return b.getQueue(queueName) != nil
}

// lookupQueue returns the named queue without creating it
func (b *Broker) lookupQueue(queueName string) *requestQueue {
	name := models.NormalizeQueueName(queueName)
	if name == "" {
		return nil
	}
	if q, ok := b.queues.Load(name); ok {
		return q.(*requestQueue)
	}
	return nil
}

func (b *Broker) getQueue(queueName string) *requestQueue {
	name := models.NormalizeQueueName(queueName)
	if name == "" {
		return nil
	}
	if q := b.lookupQueue(name); q != nil {
		return q
	}
	q, loaded := b.queues.LoadOrStore(name, newRequestQueue(name, b.config.MaxQueueLength))
	if !loaded {
		b.logger.Debug().
			Str("queue", name).
			Int("capacity", b.config.MaxQueueLength).
			Msg("Queue created")
	}
	return q.(*requestQueue)
}

// Submit enqueues request on the named queue and blocks until a worker completes
// it, the response timeout elapses, or ctx ends. Exactly one terminal outcome is
// returned and the pending entry is always removed before returning.
func (b *Broker) Submit(ctx context.Context, queueName string, request *models.Request) (string, error) {
	if request == nil || request.ID == "" {
		return "", fmt.Errorf("request id is required")
	}
	q := b.getQueue(queueName)
	if q == nil {
		return "", fmt.Errorf("queue name is required")
	}

	entry := newPendingEntry(request.ID, q)
	if _, loaded := b.pending.LoadOrStore(request.ID, entry); loaded {
		b.logger.Error().
			Str("request_id", request.ID).
			Str("queue", q.name).
			Msg("Duplicate request id - id generator is not producing unique ids")
		return "", newKindError(ErrDuplicateRequestID)
	}

	start := time.Now()
	response, err := b.submit(ctx, q, entry, request)

	entry.abandon()
	b.pending.CompareAndDelete(request.ID, entry)

	q.recordOutcome(err)
	outcome := OutcomeCompleted
	if kind, ok := KindOf(err); ok {
		outcome = string(kind)
	}
	b.metrics.RecordSubmit(q.name, outcome, time.Since(start))

	if !quietCommands[request.Type] {
		elapsedMs := time.Since(start).Milliseconds()
		if err != nil {
			b.logger.Warn().
				Err(err).
				Str("request_id", request.ID).
				Str("queue", q.name).
				Str("command", request.Type).
				Int64("elapsed_ms", elapsedMs).
				Msg("Request failed")
		} else {
			b.logger.Debug().
				Str("request_id", request.ID).
				Str("queue", q.name).
				Str("command", request.Type).
				Int64("elapsed_ms", elapsedMs).
				Msg("Request completed")
		}
	}

	return response, err
}

func (b *Broker) submit(ctx context.Context, q *requestQueue, entry *pendingEntry, request *models.Request) (string, error) {
	scope, cancel := context.WithTimeoutCause(ctx, b.config.ResponseTimeout, errResponseTimeout)
	defer cancel()

	if scope.Err() != nil {
		return "", b.scopeError(scope, ErrQueueFull)
	}

	select {
	case q.ch <- request:
		q.enqueued.Add(1)
	case <-scope.Done():
		return "", b.scopeError(scope, ErrQueueFull)
	}

	select {
	case <-entry.done:
	case <-scope.Done():
		// A result that raced the deadline still wins
		if entry.abandon() {
			return "", b.scopeError(scope, ErrTimeout)
		}
		<-entry.done
	}

	if entry.response == "" {
		return "", newKindError(ErrMalformedResponse)
	}
	return entry.response, nil
}

// scopeError maps a finished Submit scope to onTimeout when the internal
// response timeout fired, or to CanceledByCaller otherwise.
func (b *Broker) scopeError(scope context.Context, onTimeout *Error) error {
	cause := context.Cause(scope)
	if errors.Is(cause, errResponseTimeout) {
		return newKindError(onTimeout)
	}
	return NewError(KindCanceledByCaller, ErrCanceledByCaller.Message, cause)
}

// Dequeue returns the next request on the named queue whose caller is still
// waiting, blocking up to timeout (CommandDequeueTimeout when timeout <= 0).
// Requests whose caller has gone are discarded. Returns false when nothing
// valid arrives in time or ctx ends, and at once for a queue that does not exist.
func (b *Broker) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*models.Request, bool) {
	q := b.lookupQueue(queueName)
	if q == nil {
		return nil, false
	}
	if timeout <= 0 {
		timeout = b.config.CommandDequeueTimeout
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		select {
		case request := <-q.ch:
			if b.accept(q, request) {
				return request, true
			}
		case <-waitCtx.Done():
			return nil, false
		}
	}
}

// TryDequeue is the non-blocking form of Dequeue
func (b *Broker) TryDequeue(queueName string) (*models.Request, bool) {
	q := b.lookupQueue(queueName)
	if q == nil {
		return nil, false
	}

	for {
		select {
		case request := <-q.ch:
			if b.accept(q, request) {
				return request, true
			}
		default:
			return nil, false
		}
	}
}

// accept reports whether request still has a waiting caller, counting it as
// skipped otherwise.
func (b *Broker) accept(q *requestQueue, request *models.Request) bool {
	if v, ok := b.pending.Load(request.ID); ok && !v.(*pendingEntry).isSettled() {
		q.dequeued.Add(1)
		b.metrics.RecordDequeue(q.name)
		return true
	}

	skipped := q.skipped.Add(1)
	b.metrics.RecordSkip(q.name)
	b.skipLog.Do(func() {
		b.logger.Debug().
			Str("queue", q.name).
			Str("request_id", request.ID).
			Int64("skipped_total", skipped).
			Msg("Discarded request whose caller is no longer waiting")
	})
	return false
}

// Complete delivers a worker result to the waiting caller. Returns false when
// the id is unknown or the request was already resolved, cancelled or timed out.
func (b *Broker) Complete(requestID string, response string) bool {
	v, ok := b.pending.Load(requestID)
	if !ok {
		b.logger.Debug().Str("request_id", requestID).Msg("Completion for unknown request id")
		return false
	}
	entry := v.(*pendingEntry)
	if !entry.resolve(response) {
		b.logger.Debug().Str("request_id", requestID).Msg("Completion for request that was already settled")
		return false
	}
	return true
}

// IsPending reports whether requestID has a caller still waiting on it
func (b *Broker) IsPending(requestID string) bool {
	v, ok := b.pending.Load(requestID)
	return ok && !v.(*pendingEntry).isSettled()
}

// PendingCount returns the number of requests whose Submit has not returned
func (b *Broker) PendingCount() int {
	count := 0
	b.pending.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// QueueNames returns every known queue name, sorted
func (b *Broker) QueueNames() []string {
	names := []string{}
	b.queues.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Stats returns a snapshot of every queue, sorted by name
func (b *Broker) Stats() []QueueStats {
	stats := []QueueStats{}
	b.queues.Range(func(_, v any) bool {
		stats = append(stats, v.(*requestQueue).stats())
		return true
	})
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// QueueStats returns the snapshot for one queue
func (b *Broker) QueueStats(queueName string) (QueueStats, bool) {
	q := b.lookupQueue(queueName)
	if q == nil {
		return QueueStats{}, false
	}
	return q.stats(), true
}
