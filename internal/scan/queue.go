package scan

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tonhe/fieldscan/internal/device"
	"github.com/tonhe/fieldscan/internal/metrics"
)

// DefaultQueueCapacity bounds each task queue.
const DefaultQueueCapacity = 10000

// Queue is a bounded FIFO of tasks that holds at most one task per frame.
// When a frame already has a task waiting, or the queue is full, the new
// task is rejected and counted as a drop. Queued tasks are never evicted.
type Queue struct {
	name     string
	capacity int
	ch       chan *Task

	mu      sync.Mutex
	pending map[device.FrameKey]struct{}

	enqueued atomic.Int64
	dequeued atomic.Int64
	dropped  atomic.Int64
	drops    *metrics.Window
}

// NewQueue creates a queue holding up to capacity tasks.
func NewQueue(name string, capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		name:     name,
		capacity: capacity,
		ch:       make(chan *Task, capacity),
		pending:  make(map[device.FrameKey]struct{}),
		drops:    metrics.NewWindow(metrics.DefaultWindow),
	}
}

// Name identifies the queue in logs and stats.
func (q *Queue) Name() string { return q.name }

// TryEnqueue adds t unless its frame already has a waiting task or the
// queue is full. It never blocks.
func (q *Queue) TryEnqueue(t *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.pending[t.Frame]; dup || len(q.ch) >= q.capacity {
		q.dropped.Add(1)
		q.drops.Add(time.Now())
		return false
	}
	q.pending[t.Frame] = struct{}{}
	q.enqueued.Add(1)
	// Only TryEnqueue sends, under q.mu, after checking the length, so
	// the send cannot block.
	q.ch <- t
	return true
}

// Dequeue blocks until a task is available or ctx is done. The returned
// task has DequeuedAt set and its frame may be enqueued again.
func (q *Queue) Dequeue(ctx context.Context) (*Task, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case t := <-q.ch:
		q.mu.Lock()
		delete(q.pending, t.Frame)
		q.mu.Unlock()
		q.dequeued.Add(1)
		t.DequeuedAt = time.Now()
		return t, nil
	}
}

// Depth returns the number of waiting tasks.
func (q *Queue) Depth() int { return len(q.ch) }

// Stats returns the queue counters.
func (q *Queue) Stats() metrics.QueueStats {
	return metrics.QueueStats{
		Depth:    len(q.ch),
		Enqueued: q.enqueued.Load(),
		Dequeued: q.dequeued.Load(),
		Dropped:  q.dropped.Load(),
	}
}

// DropTimestamps returns the drops recorded within the metrics window.
func (q *Queue) DropTimestamps() []time.Time {
	return q.drops.Snapshot(time.Now())
}
