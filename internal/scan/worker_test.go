package scan

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tonhe/fieldscan/internal/device"
	"github.com/tonhe/fieldscan/internal/metrics"
	"github.com/tonhe/fieldscan/internal/protocol"
	"github.com/tonhe/fieldscan/internal/quality"
)

type workerFixture struct {
	client    *fakeClient
	collector *metrics.Collector
	drift     *metrics.DriftRecorder
	quality   *quality.Tracker
	sink      *memSink

	mu       sync.Mutex
	observed []*Task
}

func newWorkerFixture(client *fakeClient) *workerFixture {
	return &workerFixture{
		client:    client,
		collector: metrics.NewCollector(),
		drift:     metrics.NewDriftRecorder(100),
		quality:   quality.NewTracker(),
		sink:      &memSink{},
	}
}

func (f *workerFixture) deps() workerDeps {
	return workerDeps{
		client:      f.client,
		collector:   f.collector,
		drift:       f.drift,
		quality:     f.quality,
		sink:        f.sink,
		logger:      zap.NewNop(),
		readTimeout: time.Second,
		observe: func(t *Task, _ protocol.ReadResult) {
			f.mu.Lock()
			f.observed = append(f.observed, t)
			f.mu.Unlock()
		},
	}
}

func (f *workerFixture) observedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observed)
}

func TestWorkerExecuteSuccess(t *testing.T) {
	f := newWorkerFixture(&fakeClient{})
	dev := testDevice(false, 500*time.Millisecond)
	w := newWorker(dev, nil, f.deps())

	tk := newTask(dev, 0, time.Now().Add(-10*time.Millisecond))
	tk.DequeuedAt = time.Now()
	w.execute(context.Background(), tk)

	if !tk.Completed || tk.Failed {
		t.Fatalf("expected completed task, got %+v", tk)
	}
	if tk.QueueDuration() < 10*time.Millisecond {
		t.Errorf("expected queue duration >= 10ms, got %v", tk.QueueDuration())
	}
	if tk.TotalInterval() != tk.QueueDuration()+tk.ResponseTime() {
		t.Error("expected total = queue + response")
	}

	recent := f.collector.RecentDeviceMetrics(1)
	if len(recent) != 1 || recent[0].FrameName != "fa" {
		t.Errorf("expected one device metric for frame fa, got %v", recent)
	}
	if f.collector.SystemHealth(metrics.QueueStats{}, nil).TotalCompleted != 1 {
		t.Error("expected completion counted")
	}
	if f.drift.Statistics().Count != 1 {
		t.Error("expected drift recorded")
	}
	if f.sink.count() != 1 {
		t.Errorf("expected 1 batch submitted, got %d", f.sink.count())
	}
	if got := f.quality.Summary().Good; got != 4 {
		t.Errorf("expected 4 good points, got %d", got)
	}
	p := device.PointKey{Device: dev.Key(), Address: 2}
	if s, ok := f.quality.Get(p); !ok || s.Value != 2 || s.StaleAfter != time.Second {
		t.Errorf("unexpected quality state %+v", s)
	}
	if f.observedCount() != 1 {
		t.Error("expected observer called")
	}
}

func TestWorkerFailureIsNonFatal(t *testing.T) {
	client := &fakeClient{}
	client.fail.Store(true)
	f := newWorkerFixture(client)
	dev := testDevice(false, time.Second, time.Second)
	q := NewQueue("q", 10)
	w := newWorker(dev, []*Queue{q}, f.deps())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	q.TryEnqueue(newTask(dev, 0, time.Now()))
	q.TryEnqueue(newTask(dev, 1, time.Now()))
	if !eventually(time.Second, func() bool { return f.observedCount() == 2 }) {
		t.Fatalf("expected both tasks serviced after failure, got %d", f.observedCount())
	}

	client.fail.Store(false)
	q.TryEnqueue(newTask(dev, 0, time.Now()))
	if !eventually(time.Second, func() bool { return f.observedCount() == 3 }) {
		t.Fatal("worker stopped servicing after failures")
	}
	cancel()
	<-done

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.observed[0].Failed || f.observed[0].Err != "connection reset" {
		t.Errorf("expected failed task with error text, got %+v", f.observed[0])
	}
	if !f.observed[2].Completed {
		t.Error("expected later task to complete")
	}
	if f.sink.count() != 1 {
		t.Errorf("expected only the successful read persisted, got %d", f.sink.count())
	}
}

func TestWorkerSequentialSerialisesReads(t *testing.T) {
	client := &fakeClient{delay: 20 * time.Millisecond}
	f := newWorkerFixture(client)
	dev := testDevice(false, time.Second, time.Second, time.Second)
	q := NewQueue("q", 10)
	w := newWorker(dev, []*Queue{q}, f.deps())
	if w.Mode() != Sequential {
		t.Fatalf("expected sequential mode, got %v", w.Mode())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	for i := range dev.Frames {
		q.TryEnqueue(newTask(dev, i, time.Now()))
	}
	eventually(time.Second, func() bool { return f.observedCount() == 3 })
	if got := client.maxInFlight.Load(); got != 1 {
		t.Errorf("expected at most 1 read in flight, got %d", got)
	}
}

func TestWorkerConcurrentReadsInParallel(t *testing.T) {
	client := &fakeClient{delay: 50 * time.Millisecond}
	f := newWorkerFixture(client)
	dev := testDevice(true, time.Second, time.Second, time.Second)
	queues := []*Queue{NewQueue("a", 10), NewQueue("b", 10), NewQueue("c", 10)}
	w := newWorker(dev, queues, f.deps())
	if w.Mode() != Concurrent {
		t.Fatalf("expected concurrent mode, got %v", w.Mode())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	for i, q := range queues {
		q.TryEnqueue(newTask(dev, i, time.Now()))
	}
	eventually(time.Second, func() bool { return f.observedCount() == 3 })
	if got := client.maxInFlight.Load(); got < 2 {
		t.Errorf("expected parallel reads, max in flight %d", got)
	}
}
