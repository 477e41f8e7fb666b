package sink

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Buffer defaults.
const (
	DefaultFlushInterval = time.Second
	DefaultBatchSize     = 10000
	DefaultQueueSize     = 4096
)

// BufferStats counts buffer activity.
type BufferStats struct {
	Submitted int64 `json:"submitted"`
	Dropped   int64 `json:"dropped"`
	Written   int64 `json:"written"`
	Failed    int64 `json:"failed"`
	Pending   int   `json:"pending"`
}

// Buffer queues batches in memory and writes them to a Repository from a
// single goroutine, every flush interval or once batchSize points are
// pending. When the queue is full new batches are dropped.
type Buffer struct {
	repo          Repository
	logger        *zap.Logger
	flushInterval time.Duration
	batchSize     int
	ch            chan Batch

	submitted atomic.Int64
	dropped   atomic.Int64
	written   atomic.Int64
	failed    atomic.Int64
}

// NewBuffer creates a buffer in front of repo. Zero values select defaults.
func NewBuffer(repo Repository, flushInterval time.Duration, batchSize, queueSize int, logger *zap.Logger) *Buffer {
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Buffer{
		repo:          repo,
		logger:        logger,
		flushInterval: flushInterval,
		batchSize:     batchSize,
		ch:            make(chan Batch, queueSize),
	}
}

// Submit implements Sink.
func (b *Buffer) Submit(batch Batch) bool {
	select {
	case b.ch <- batch:
		b.submitted.Add(1)
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Stats returns the buffer counters.
func (b *Buffer) Stats() BufferStats {
	return BufferStats{
		Submitted: b.submitted.Load(),
		Dropped:   b.dropped.Load(),
		Written:   b.written.Load(),
		Failed:    b.failed.Load(),
		Pending:   len(b.ch),
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (b *Buffer) Run(ctx context.Context) {
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	var pending []Point
	flush := func(ctx context.Context) {
		if len(pending) == 0 {
			return
		}
		if err := b.repo.WritePoints(ctx, pending); err != nil {
			b.failed.Add(int64(len(pending)))
			b.logger.Error("flush data points failed", zap.Int("points", len(pending)), zap.Error(err))
		} else {
			b.written.Add(int64(len(pending)))
		}
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case batch := <-b.ch:
					pending = append(pending, batch.Points()...)
				default:
					break drain
				}
			}
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(final)
			cancel()
			return
		case batch := <-b.ch:
			pending = append(pending, batch.Points()...)
			if len(pending) >= b.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}
