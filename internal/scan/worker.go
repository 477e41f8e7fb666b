package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tonhe/fieldscan/internal/device"
	"github.com/tonhe/fieldscan/internal/metrics"
	"github.com/tonhe/fieldscan/internal/protocol"
	"github.com/tonhe/fieldscan/internal/quality"
	"github.com/tonhe/fieldscan/internal/sink"
)

// workerDeps are shared by every worker of a session.
type workerDeps struct {
	client      protocol.Client
	collector   *metrics.Collector
	drift       *metrics.DriftRecorder
	quality     *quality.Tracker
	sink        sink.Sink
	logger      *zap.Logger
	readTimeout time.Duration
	// observe is called after every executed task.
	observe func(t *Task, res protocol.ReadResult)
}

// Worker executes the tasks of one device. In Sequential mode it runs one
// loop over one queue and holds the device lock around each read; in
// Concurrent mode it runs one loop per frame queue.
type Worker struct {
	dev    device.Config
	mode   Mode
	queues []*Queue
	deps   workerDeps

	deviceLock sync.Mutex
}

func newWorker(dev device.Config, queues []*Queue, deps workerDeps) *Worker {
	mode := Sequential
	if dev.AllowConcurrentFrameReads {
		mode = Concurrent
	}
	if deps.readTimeout <= 0 {
		deps.readTimeout = protocol.DefaultTimeout
	}
	if deps.logger == nil {
		deps.logger = zap.NewNop()
	}
	if deps.sink == nil {
		deps.sink = sink.Discard{}
	}
	return &Worker{dev: dev, mode: mode, queues: queues, deps: deps}
}

// Mode returns the worker's operating mode.
func (w *Worker) Mode() Mode { return w.mode }

// Run services every queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, q := range w.queues {
		wg.Add(1)
		go func(q *Queue) {
			defer wg.Done()
			w.loop(ctx, q)
		}(q)
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context, q *Queue) {
	for {
		t, err := q.Dequeue(ctx)
		if err != nil {
			return
		}
		w.execute(ctx, t)
	}
}

// execute runs one task. Failures are recorded on the task and logged;
// they never end the loop.
func (w *Worker) execute(ctx context.Context, t *Task) {
	d := w.deps
	var res protocol.ReadResult
	defer func() {
		if r := recover(); r != nil {
			t.fail(time.Now(), fmt.Errorf("panic: %v", r))
			d.logger.Error("panic while executing scan task",
				zap.String("task_id", t.ID.String()),
				zap.String("device", w.dev.Name),
				zap.Any("panic", r))
			res = protocol.ReadResult{Err: errors.New(t.Err)}
		}
		if d.observe != nil {
			d.observe(t, res)
		}
	}()

	if d.drift != nil {
		d.drift.Record(t.Frame, t.CreatedAt, t.DequeuedAt)
	}

	res = w.read(ctx, t)
	now := time.Now()
	if !res.OK() {
		t.fail(now, res.Err)
		if ctx.Err() != nil {
			// session is stopping
			return
		}
		d.logger.Warn("scan read failed",
			zap.String("device", w.dev.Name),
			zap.String("device_id", t.Frame.Device.String()),
			zap.String("frame", t.FrameName),
			zap.Int("start_address", t.StartAddress),
			zap.Int("count", t.Count),
			zap.Error(res.Err))
		return
	}

	t.complete(now)
	d.collector.RecordTaskCompletedAt(now)
	d.collector.RecordDeviceMetric(metrics.DeviceLevelMetric{
		Device:        t.Frame.Device,
		DeviceName:    t.DeviceName,
		Frame:         t.Frame,
		FrameName:     t.FrameName,
		QueueDuration: t.QueueDuration(),
		ResponseTime:  t.ResponseTime(),
		TotalInterval: t.TotalInterval(),
		Timestamp:     now,
	})

	if !d.sink.Submit(sink.Batch{
		Timestamp:    now,
		DeviceName:   t.DeviceName,
		FrameName:    t.FrameName,
		StartAddress: t.StartAddress,
		Values:       res.Values,
	}) {
		d.logger.Debug("persistence buffer full, batch dropped", zap.String("frame", t.Frame.String()))
	}

	if d.quality != nil {
		for i, v := range res.Values {
			p := device.PointKey{Device: t.Frame.Device, Address: t.StartAddress + i}
			d.quality.UpdateAt(p, v, t.Interval, now)
		}
	}
}

// read calls the protocol client under the read timeout, holding the
// device lock in Sequential mode.
func (w *Worker) read(ctx context.Context, t *Task) protocol.ReadResult {
	readCtx, cancel := context.WithTimeout(ctx, w.deps.readTimeout)
	defer cancel()

	req := protocol.ReadRequest{Device: w.dev, StartAddress: t.StartAddress, Count: t.Count}
	if w.mode == Sequential {
		w.deviceLock.Lock()
		defer w.deviceLock.Unlock()
	}
	return w.deps.client.ReadRegisters(readCtx, req)
}
