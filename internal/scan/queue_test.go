package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tonhe/fieldscan/internal/device"
)

func taskFor(dev device.Config, idx int) *Task {
	return newTask(dev, idx, time.Now())
}

func TestQueueRejectsDuplicateFrame(t *testing.T) {
	dev := testDevice(false, time.Second, time.Second)
	q := NewQueue("q", 10)

	if !q.TryEnqueue(taskFor(dev, 0)) {
		t.Fatal("expected first task accepted")
	}
	if q.TryEnqueue(taskFor(dev, 0)) {
		t.Error("expected duplicate frame rejected")
	}
	if !q.TryEnqueue(taskFor(dev, 1)) {
		t.Error("expected other frame accepted")
	}

	s := q.Stats()
	if s.Enqueued != 2 || s.Dropped != 1 || s.Depth != 2 {
		t.Errorf("unexpected stats %+v", s)
	}
	if len(q.DropTimestamps()) != 1 {
		t.Errorf("expected 1 drop timestamp, got %d", len(q.DropTimestamps()))
	}
}

func TestQueueDequeueClearsPending(t *testing.T) {
	dev := testDevice(false, time.Second)
	q := NewQueue("q", 10)
	created := taskFor(dev, 0)
	q.TryEnqueue(created)

	got, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if got.ID != created.ID {
		t.Error("expected the enqueued task back")
	}
	if got.DequeuedAt.IsZero() {
		t.Error("expected DequeuedAt to be stamped")
	}
	if !q.TryEnqueue(taskFor(dev, 0)) {
		t.Error("expected frame accepted again after dequeue")
	}
}

// TestQueueOverflowRejectsNew fills a queue of capacity N with N+k unique
// frames and expects depth N and k drops.
func TestQueueOverflowRejectsNew(t *testing.T) {
	const capacity, extra = 5, 3
	q := NewQueue("q", capacity)
	dev := testDevice(false, time.Second)

	var first *Task
	for i := 0; i < capacity+extra; i++ {
		tk := taskFor(dev, 0)
		tk.Frame.Index = i
		if i == 0 {
			first = tk
		}
		q.TryEnqueue(tk)
	}

	s := q.Stats()
	if s.Depth != capacity {
		t.Errorf("expected depth %d, got %d", capacity, s.Depth)
	}
	if s.Dropped != extra {
		t.Errorf("expected %d dropped, got %d", extra, s.Dropped)
	}
	if s.Enqueued != capacity {
		t.Errorf("expected %d enqueued, got %d", capacity, s.Enqueued)
	}
	// reject-new keeps the oldest task at the head
	got, _ := q.Dequeue(context.Background())
	if got.ID != first.ID {
		t.Error("expected the oldest task to survive overflow")
	}
}

func TestQueueDequeueBlocksUntilCancelled(t *testing.T) {
	q := NewQueue("q", 10)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Error("Dequeue returned before cancellation")
	}
}

func TestQueueDequeueWakesOnEnqueue(t *testing.T) {
	q := NewQueue("q", 10)
	dev := testDevice(false, time.Second)
	got := make(chan *Task, 1)
	go func() {
		tk, _ := q.Dequeue(context.Background())
		got <- tk
	}()

	time.Sleep(10 * time.Millisecond)
	q.TryEnqueue(taskFor(dev, 0))
	select {
	case tk := <-got:
		if tk == nil {
			t.Error("expected a task")
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not wake up")
	}
}

// TestQueueConservation races producers against a consumer and checks
// enqueued == dequeued + depth once everything has settled.
func TestQueueConservation(t *testing.T) {
	q := NewQueue("q", 50)
	dev := testDevice(false, time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	var consumer sync.WaitGroup
	consumer.Add(1)
	go func() {
		defer consumer.Done()
		for {
			if _, err := q.Dequeue(ctx); err != nil {
				return
			}
		}
	}()

	var producers sync.WaitGroup
	attempts := 0
	var mu sync.Mutex
	for p := 0; p < 4; p++ {
		producers.Add(1)
		go func(p int) {
			defer producers.Done()
			for i := 0; i < 500; i++ {
				tk := taskFor(dev, 0)
				tk.Frame.Index = p*1000 + i%20
				q.TryEnqueue(tk)
				mu.Lock()
				attempts++
				mu.Unlock()
			}
		}(p)
	}
	producers.Wait()
	cancel()
	consumer.Wait()

	s := q.Stats()
	if s.Enqueued != s.Dequeued+int64(s.Depth) {
		t.Errorf("conservation violated: %+v", s)
	}
	if s.Enqueued+s.Dropped != int64(attempts) {
		t.Errorf("expected enqueued+dropped == %d, got %+v", attempts, s)
	}
}

// TestQueueDedupUnderConcurrency hammers a single frame from many
// goroutines with no consumer: only one task may ever be queued.
func TestQueueDedupUnderConcurrency(t *testing.T) {
	q := NewQueue("q", 100)
	dev := testDevice(false, time.Second)

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.TryEnqueue(taskFor(dev, 0))
			}
		}()
	}
	wg.Wait()

	s := q.Stats()
	if s.Depth != 1 || s.Enqueued != 1 {
		t.Errorf("expected exactly one queued task, got %+v", s)
	}
	if s.Dropped != 1599 {
		t.Errorf("expected 1599 drops, got %d", s.Dropped)
	}
}
