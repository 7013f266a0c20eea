// Package queue provides the bounded hand-off between enrichment and the
// vector uploader: the producer enqueues completed batches while the
// consumer drains them, so batch N+1 can be enriched while batch N uploads.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultSize bounds the queue when no size is configured.
const DefaultSize = 8

// ErrCompleted is returned by Put after Complete has been called.
var ErrCompleted = errors.New("queue: producer already completed")

// Queue is a bounded FIFO with an explicit end-of-production signal. Get
// keeps draining after Complete until the queue is empty, then reports
// closure.
type Queue[T any] struct {
	ch   chan T
	done chan struct{}
	once sync.Once
}

// New builds a queue holding at most size items. Non-positive sizes fall
// back to DefaultSize.
func New[T any](size int) *Queue[T] {
	if size <= 0 {
		size = DefaultSize
	}
	return &Queue[T]{
		ch:   make(chan T, size),
		done: make(chan struct{}),
	}
}

// Put enqueues one item, blocking while the queue is full.
func (q *Queue[T]) Put(ctx context.Context, item T) error {
	select {
	case <-q.done:
		return ErrCompleted
	default:
	}
	select {
	case q.ch <- item:
		return nil
	case <-q.done:
		return ErrCompleted
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Complete signals that no further items will be produced. Items already
// queued remain consumable.
func (q *Queue[T]) Complete() {
	q.once.Do(func() { close(q.done) })
}

// Get dequeues one item, waiting up to timeout. The second return is false
// only when production is complete and the queue is empty: the consumer's
// clean-exit condition. A bare timeout with production still open returns
// ctx/deadline error so the consumer can poll again.
func (q *Queue[T]) Get(ctx context.Context, timeout time.Duration) (T, bool, error) {
	var zero T
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item := <-q.ch:
		return item, true, nil
	case <-q.done:
		// Drain whatever was queued before completion.
		select {
		case item := <-q.ch:
			return item, true, nil
		default:
			return zero, false, nil
		}
	case <-timer.C:
		return zero, true, context.DeadlineExceeded
	case <-ctx.Done():
		return zero, true, ctx.Err()
	}
}

// Len reports the number of items currently queued.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}
