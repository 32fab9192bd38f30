package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/config"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

func TestQueue_FIFOOrder(t *testing.T) {
	t.Parallel()
	q := New(config.QueueConfig{Capacity: 10})
	ctx := context.Background()

	ids := []core.TaskID{"a", "b", "c"}
	for _, id := range ids {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}
	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}
	for _, want := range ids {
		got, ok := q.Dequeue(ctx)
		if !ok || got != want {
			t.Errorf("Dequeue() = (%q, %v), want (%q, true)", got, ok, want)
		}
	}
}

func TestQueue_FailFastWhenFull(t *testing.T) {
	t.Parallel()
	q := New(config.QueueConfig{Capacity: 2})
	ctx := context.Background()

	for _, id := range []core.TaskID{"a", "b"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	err := q.Enqueue(ctx, "c")
	var derr *core.DomainError
	if !errors.As(err, &derr) {
		t.Fatalf("err = %v, want DomainError", err)
	}
	if derr.Code != core.CodeQueueFull {
		t.Errorf("Code = %d, want %d", derr.Code, core.CodeQueueFull)
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d after rejected enqueue, want 2", q.Len())
	}
}

func TestQueue_BlockOnFullWaitsForSpace(t *testing.T) {
	t.Parallel()
	q := New(config.QueueConfig{Capacity: 1, BlockOnFull: true})
	ctx := context.Background()

	if err := q.Enqueue(ctx, "a"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(ctx, "b") }()

	select {
	case err := <-done:
		t.Fatalf("blocked enqueue returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if got, ok := q.Dequeue(ctx); !ok || got != "a" {
		t.Fatalf("Dequeue() = (%q, %v)", got, ok)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocked enqueue: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue still blocked after space freed")
	}
	if got, ok := q.Dequeue(ctx); !ok || got != "b" {
		t.Errorf("Dequeue() = (%q, %v), want b", got, ok)
	}
}

func TestQueue_BlockOnFullHonorsContext(t *testing.T) {
	t.Parallel()
	q := New(config.QueueConfig{Capacity: 1, BlockOnFull: true})
	if err := q.Enqueue(context.Background(), "a"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, "b")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestQueue_DequeueBlocksUntilItem(t *testing.T) {
	t.Parallel()
	q := New(config.QueueConfig{Capacity: 1})
	ctx := context.Background()

	type result struct {
		id core.TaskID
		ok bool
	}
	done := make(chan result, 1)
	go func() {
		id, ok := q.Dequeue(ctx)
		done <- result{id, ok}
	}()

	select {
	case r := <-done:
		t.Fatalf("Dequeue returned early: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	if err := q.Enqueue(ctx, "a"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case r := <-done:
		if !r.ok || r.id != "a" {
			t.Errorf("Dequeue = %+v, want {a true}", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Dequeue still blocked after enqueue")
	}
}

func TestQueue_DequeueHonorsContext(t *testing.T) {
	t.Parallel()
	q := New(config.QueueConfig{Capacity: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, ok := q.Dequeue(ctx); ok {
		t.Error("Dequeue = ok on cancelled context")
	}
}

func TestQueue_CloseDrainsThenStops(t *testing.T) {
	t.Parallel()
	q := New(config.QueueConfig{Capacity: 10})
	ctx := context.Background()

	for _, id := range []core.TaskID{"a", "b"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	q.Close()

	if err := q.Enqueue(ctx, "c"); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue after close = %v, want ErrClosed", err)
	}

	for _, want := range []core.TaskID{"a", "b"} {
		got, ok := q.Dequeue(ctx)
		if !ok || got != want {
			t.Errorf("Dequeue() = (%q, %v), want (%q, true)", got, ok, want)
		}
	}
	if _, ok := q.Dequeue(ctx); ok {
		t.Error("Dequeue = ok on closed empty queue")
	}
}

func TestQueue_CloseWakesBlockedDequeue(t *testing.T) {
	t.Parallel()
	q := New(config.QueueConfig{Capacity: 1})
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue(context.Background())
		done <- ok
	}()

	time.Sleep(50 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Dequeue = ok after close on empty queue")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Dequeue still blocked after Close")
	}
}

func TestQueue_CloseIdempotent(t *testing.T) {
	t.Parallel()
	q := New(config.QueueConfig{Capacity: 1})
	q.Close()
	q.Close()
}

func TestQueue_DefaultCapacity(t *testing.T) {
	t.Parallel()
	q := New(config.QueueConfig{})
	if q.Capacity() != defaultCapacity {
		t.Errorf("Capacity() = %d, want %d", q.Capacity(), defaultCapacity)
	}
}

func TestQueue_ConcurrentProducersConsumers(t *testing.T) {
	t.Parallel()
	q := New(config.QueueConfig{Capacity: 8, BlockOnFull: true})
	ctx := context.Background()

	const producers = 4
	const perProducer = 25

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := q.Enqueue(ctx, core.TaskID("t")); err != nil {
					t.Errorf("Enqueue: %v", err)
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		q.Close()
	}()

	var mu sync.Mutex
	received := 0
	var consumers sync.WaitGroup
	for c := 0; c < 3; c++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				if _, ok := q.Dequeue(ctx); !ok {
					return
				}
				mu.Lock()
				received++
				mu.Unlock()
			}
		}()
	}
	consumers.Wait()

	if received != producers*perProducer {
		t.Errorf("received %d items, want %d", received, producers*perProducer)
	}
}
