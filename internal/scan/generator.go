package scan

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tonhe/fieldscan/internal/device"
	"github.com/tonhe/fieldscan/internal/metrics"
)

// Generator produces tasks for one frame at the frame's interval. The first
// task is emitted immediately; later ones follow a fixed ticker, so the
// schedule does not depend on how long reads take.
type Generator struct {
	dev       device.Config
	index     int
	key       device.FrameKey
	interval  time.Duration
	queue     *Queue
	collector *metrics.Collector

	generated atomic.Int64
	rejected  atomic.Int64
}

// NewGenerator creates a generator for frame index of dev feeding queue.
func NewGenerator(dev device.Config, index int, queue *Queue, collector *metrics.Collector) *Generator {
	return &Generator{
		dev:       dev,
		index:     index,
		key:       dev.FrameKey(index),
		interval:  dev.Frames[index].Interval,
		queue:     queue,
		collector: collector,
	}
}

// Frame returns the identity of the generated frame.
func (g *Generator) Frame() device.FrameKey { return g.key }

// Run emits tasks until ctx is cancelled.
func (g *Generator) Run(ctx context.Context) {
	g.emit()

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			g.emit()
		}
	}
}

func (g *Generator) emit() {
	t := newTask(g.dev, g.index, time.Now())
	g.generated.Add(1)
	g.collector.RecordTaskCreatedAt(t.CreatedAt)
	if !g.queue.TryEnqueue(t) {
		g.rejected.Add(1)
		g.collector.RecordTaskDroppedAt(g.key, t.CreatedAt)
	}
}

// Generated returns how many tasks have been created.
func (g *Generator) Generated() int64 { return g.generated.Load() }

// Rejected returns how many created tasks the queue refused.
func (g *Generator) Rejected() int64 { return g.rejected.Load() }
