package event

import (
	"sync/atomic"
	"time"

	"github.com/codefionn/macroscript/internal/consts"
	"github.com/codefionn/macroscript/internal/lock"
	"github.com/codefionn/macroscript/internal/logger"
)

// Sink accepts events from producers.
type Sink interface {
	Push(ev Event) bool
	PushAll(evs []Event) bool
}

// Handler consumes one event. A non-nil error aborts the current drain.
type Handler func(Event) error

// QueueOptions configures lock acquisition on both sides of the queue.
type QueueOptions struct {
	// PushTimeout bounds producer lock acquisition. lock.Infinite blocks.
	PushTimeout time.Duration
	// DrainTimeout bounds consumer lock acquisition. lock.Infinite blocks.
	DrainTimeout time.Duration
}

// DefaultQueueOptions returns bounded producers and an unbounded consumer.
func DefaultQueueOptions() QueueOptions {
	return QueueOptions{
		PushTimeout:  consts.LockTimeoutShort,
		DrainTimeout: consts.LockTimeoutInfinite,
	}
}

// QueueStats is a snapshot of queue counters.
type QueueStats struct {
	Pushed    uint64 `json:"pushed"`
	Dropped   uint64 `json:"dropped"`
	Delivered uint64 `json:"delivered"`
	Failures  uint64 `json:"failures"`
}

// Queue is a multi-producer, single-consumer FIFO of events. Order is kept
// per producer; events of different producers interleave arbitrarily.
type Queue struct {
	mu     lock.Mutex
	events []Event
	opts   QueueOptions
	log    *logger.Logger

	pushed    atomic.Uint64
	dropped   atomic.Uint64
	delivered atomic.Uint64
	failures  atomic.Uint64
}

// NewQueue creates an empty queue.
func NewQueue(opts QueueOptions, log *logger.Logger) *Queue {
	if log == nil {
		log = logger.Nop()
	}
	return &Queue{
		opts: opts,
		log:  log,
	}
}

// Push appends ev. If the lock cannot be acquired within the push timeout the
// event is dropped and false is returned.
func (q *Queue) Push(ev Event) bool {
	if !q.mu.TryLockFor(q.opts.PushTimeout) {
		q.dropped.Add(1)
		q.log.Warn("event queue lock timed out, dropping %s", ev.Name())
		return false
	}
	q.events = append(q.events, ev)
	q.mu.Unlock()

	q.pushed.Add(1)
	return true
}

// PushAll appends evs as one batch, keeping their order and not interleaving
// them with other producers.
func (q *Queue) PushAll(evs []Event) bool {
	if len(evs) == 0 {
		return true
	}
	if !q.mu.TryLockFor(q.opts.PushTimeout) {
		q.dropped.Add(uint64(len(evs)))
		q.log.Warn("event queue lock timed out, dropping %d events", len(evs))
		return false
	}
	q.events = append(q.events, evs...)
	q.mu.Unlock()

	q.pushed.Add(uint64(len(evs)))
	return true
}

// Drain delivers every queued event to handler, in order, outside the lock.
// It must only be called by the consumer goroutine.
//
// When handler fails, delivery stops. The failure becomes an error event that
// is delivered first on the next drain, followed by the events of this batch
// that were not delivered yet, followed by anything pushed meanwhile.
func (q *Queue) Drain(handler Handler) (int, error) {
	if !q.mu.TryLockFor(q.opts.DrainTimeout) {
		q.log.Warn("event queue drain timed out, retrying next cycle")
		return 0, lock.ErrTimeout
	}
	batch := q.events
	q.events = nil
	q.mu.Unlock()

	for i, ev := range batch {
		if err := handler(ev); err != nil {
			q.failures.Add(1)
			q.delivered.Add(uint64(i + 1))
			q.requeueFront(append([]Event{Error(err)}, batch[i+1:]...))
			return i + 1, err
		}
	}

	q.delivered.Add(uint64(len(batch)))
	return len(batch), nil
}

func (q *Queue) requeueFront(evs []Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = append(evs, q.events...)
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.events)
}

// Stats returns the queue counters.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Pushed:    q.pushed.Load(),
		Dropped:   q.dropped.Load(),
		Delivered: q.delivered.Load(),
		Failures:  q.failures.Load(),
	}
}
