package syncutil

import "go.uber.org/zap"

// BoundedQueue is a fixed-capacity channel wrapper: Push never blocks,
// dropping the item and logging a warning when the queue is full, so a
// slow consumer (a stalled downstream write, a backed-up event sink)
// can't stall the producer driving it.
type BoundedQueue[T any] struct {
	ch  chan T
	log *zap.Logger
	tag string
}

// NewBoundedQueue creates a queue of the given capacity. tag names the
// queue in the "queue full" warning log (e.g. "jobs", "events").
func NewBoundedQueue[T any](capacity int, tag string, log *zap.Logger) *BoundedQueue[T] {
	return &BoundedQueue[T]{
		ch:  make(chan T, capacity),
		log: log,
		tag: tag,
	}
}

// Push enqueues v, dropping it and returning false if the queue is full.
func (q *BoundedQueue[T]) Push(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		q.log.Warn("queue full, dropping item", zap.String("queue", q.tag))
		return false
	}
}

// C returns the receive side of the queue, for a consumer's select loop.
func (q *BoundedQueue[T]) C() <-chan T {
	return q.ch
}
