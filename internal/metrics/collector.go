package metrics

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/events"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/queue"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/worker"
)

const (
	defaultPollInterval = 15 * time.Second
	collectTimeout      = 5 * time.Second
)

// Collector keeps the exported metrics current. Lifecycle counters come
// from a bus subscription, so they are best effort like every other bus
// consumer; the gauges are polled. Terminal truth stays in the store.
type Collector struct {
	bus      *events.Bus
	queue    *queue.Queue
	pool     *worker.Pool
	store    core.Store
	interval time.Duration

	sub    <-chan events.Event
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector wires a collector to the executor's moving parts. A zero
// interval polls every 15 seconds.
func NewCollector(bus *events.Bus, q *queue.Queue, pool *worker.Pool, store core.Store, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Collector{
		bus:      bus,
		queue:    q,
		pool:     pool,
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start subscribes to task lifecycle events and begins polling.
func (c *Collector) Start() {
	c.sub = c.bus.Subscribe(
		events.TypeTaskQueued,
		events.TypeTaskRetrying,
		events.TypeTaskCompleted,
		events.TypeTaskFailed,
		events.TypeTaskCancelled,
		events.TypeTaskTimedOut,
	)
	c.wg.Add(2)
	go c.observe()
	go c.poll()
}

// Stop ends both loops and waits for them to exit.
func (c *Collector) Stop() {
	c.bus.Unsubscribe(c.sub)
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) observe() {
	defer c.wg.Done()
	for ev := range c.sub {
		c.record(ev)
	}
}

func (c *Collector) poll() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Collector) record(ev events.Event) {
	switch e := ev.(type) {
	case events.TaskQueuedEvent:
		TasksSubmitted.WithLabelValues(e.Operation).Inc()
	case events.TaskRetryingEvent:
		TaskRetries.Inc()
	case events.TaskCompletedEvent:
		TasksCompleted.WithLabelValues(e.Operation).Inc()
		TaskDuration.WithLabelValues(e.Operation).Observe(e.Duration.Seconds())
	case events.TaskFailedEvent:
		TasksFailed.WithLabelValues(e.Operation, strconv.Itoa(e.Code)).Inc()
	case events.TaskCancelledEvent:
		TasksCancelled.WithLabelValues(e.Operation).Inc()
	case events.TaskTimedOutEvent:
		TasksTimedOut.WithLabelValues(e.Operation).Inc()
	}
}

func (c *Collector) collect() {
	QueueDepth.Set(float64(c.queue.Len()))
	QueueCapacity.Set(float64(c.queue.Capacity()))
	TasksActive.Set(float64(c.pool.ActiveCount()))
	EventsDropped.Set(float64(c.bus.DroppedCount()))

	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()
	spaces, err := c.store.ListWorkspaces(ctx)
	if err != nil {
		return
	}
	WorkspacesTotal.Set(float64(len(spaces)))
	var used int64
	for _, ws := range spaces {
		used += ws.SizeBytes
	}
	WorkspaceBytes.Set(float64(used))
}
