package scan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tonhe/fieldscan/internal/device"
	"github.com/tonhe/fieldscan/internal/protocol"
	"github.com/tonhe/fieldscan/internal/sink"
)

// fakeClient returns fixed values after a delay and tracks concurrency.
type fakeClient struct {
	delay time.Duration
	fail  atomic.Bool

	// stubborn reads sleep through cancellation.
	stubborn bool

	reads       atomic.Int64
	closes      atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func (f *fakeClient) ReadRegisters(ctx context.Context, req protocol.ReadRequest) protocol.ReadResult {
	f.reads.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	if f.stubborn {
		time.Sleep(f.delay)
	} else if f.delay > 0 {
		select {
		case <-ctx.Done():
			return protocol.ReadResult{Err: ctx.Err()}
		case <-time.After(f.delay):
		}
	}
	if f.fail.Load() {
		return protocol.ReadResult{Err: errors.New("connection reset")}
	}
	values := make([]uint16, req.Count)
	for i := range values {
		values[i] = uint16(req.StartAddress + i)
	}
	return protocol.ReadResult{Values: values}
}

func (f *fakeClient) Close() error {
	f.closes.Add(1)
	return nil
}

// memSink records submitted batches.
type memSink struct {
	mu      sync.Mutex
	batches []sink.Batch
}

func (m *memSink) Submit(b sink.Batch) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, b)
	return true
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func testDevice(concurrent bool, intervals ...time.Duration) device.Config {
	dev := device.Config{
		Name:                      "plc1",
		Host:                      "10.0.0.1",
		Port:                      502,
		UnitID:                    1,
		Protocol:                  device.ProtocolMock,
		AllowConcurrentFrameReads: concurrent,
	}
	for i, iv := range intervals {
		dev.Frames = append(dev.Frames, device.Frame{
			Name:         "f" + string(rune('a'+i)),
			StartAddress: i * 100,
			Count:        4,
			Interval:     iv,
		})
	}
	return dev
}

// eventually polls cond until it holds or the timeout passes.
func eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
