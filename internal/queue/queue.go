// Package queue provides the bounded FIFO of pending task ids sitting
// between submission and the worker pool.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/config"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

// ErrClosed is returned by Enqueue once Close has been called. The facade
// maps it to a shutdown response; it is not part of the task taxonomy.
var ErrClosed = errors.New("queue closed")

const defaultCapacity = 100

// Queue is a bounded FIFO of task ids. Enqueue either fails fast with
// QUEUE_FULL or blocks for space, per configuration. Dequeue blocks until
// an item arrives or the queue is closed and drained, so workers need no
// polling loop. Retried tasks re-enter at the tail like any other.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	items    []core.TaskID
	capacity int
	block    bool
	closed   bool
}

// New creates a queue from configuration. A non-positive capacity falls
// back to the default.
func New(cfg config.QueueConfig) *Queue {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	q := &Queue{
		capacity: capacity,
		block:    cfg.BlockOnFull,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends a task id. When the queue is full it fails with
// QUEUE_FULL, or blocks for space when block_on_full is set. A closed
// queue refuses new items with ErrClosed.
func (q *Queue) Enqueue(ctx context.Context, id core.TaskID) error {
	// Wake blocked waiters when the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notFull.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) >= q.capacity {
		if q.closed {
			return ErrClosed
		}
		if !q.block {
			return core.ErrQueueFull(q.capacity)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		q.notFull.Wait()
	}
	if q.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	q.items = append(q.items, id)
	q.notEmpty.Signal()
	return nil
}

// Dequeue removes the oldest task id, blocking until one arrives. It
// returns ok=false once the queue is closed and drained, or when ctx ends;
// either way the calling worker should exit.
func (q *Queue) Dequeue(ctx context.Context) (core.TaskID, bool) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notEmpty.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if q.closed || ctx.Err() != nil {
			return "", false
		}
		q.notEmpty.Wait()
	}
	if ctx.Err() != nil {
		return "", false
	}

	id := q.items[0]
	q.items = q.items[1:]
	q.notFull.Signal()
	return id, true
}

// Close stops accepting new items. Queued items remain dequeueable until
// drained; blocked callers wake immediately. Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Len reports the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity reports the configured bound.
func (q *Queue) Capacity() int {
	return q.capacity
}
