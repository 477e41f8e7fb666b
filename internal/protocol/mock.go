package protocol

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/tonhe/fieldscan/internal/device"
)

// ErrSimulatedFault is returned by MockClient for injected failures.
var ErrSimulatedFault = errors.New("simulated device fault")

// MockOptions tunes the simulated device.
type MockOptions struct {
	MinLatency  time.Duration
	MaxLatency  time.Duration
	FailureRate float64
}

// DefaultMockOptions simulates a device answering in 20 to 120ms.
func DefaultMockOptions() MockOptions {
	return MockOptions{MinLatency: 20 * time.Millisecond, MaxLatency: 120 * time.Millisecond}
}

// MockClient answers reads with values that random-walk by up to ±10
// around a 0..1000 range, after a simulated latency.
type MockClient struct {
	opts MockOptions

	mu     sync.Mutex
	values map[device.PointKey]uint16
	reads  int64
	closes int
}

// NewMockClient creates a simulated client.
func NewMockClient(opts MockOptions) *MockClient {
	if opts.MaxLatency < opts.MinLatency {
		opts.MaxLatency = opts.MinLatency
	}
	return &MockClient{opts: opts, values: make(map[device.PointKey]uint16)}
}

// ReadRegisters implements Client.
func (m *MockClient) ReadRegisters(ctx context.Context, req ReadRequest) ReadResult {
	start := time.Now()

	if delay := m.latency(); delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return failed(start, ctx.Err())
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return failed(start, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.opts.FailureRate > 0 && rand.Float64() < m.opts.FailureRate {
		return failed(start, ErrSimulatedFault)
	}

	key := req.Device.Key()
	values := make([]uint16, req.Count)
	for i := range values {
		p := device.PointKey{Device: key, Address: req.StartAddress + i}
		v, ok := m.values[p]
		if !ok {
			v = uint16(rand.IntN(1001))
		} else {
			next := int(v) + rand.IntN(21) - 10
			v = uint16(min(max(next, 0), 1000))
		}
		m.values[p] = v
		values[i] = v
	}
	return ReadResult{Values: values, Latency: time.Since(start)}
}

func (m *MockClient) latency() time.Duration {
	span := m.opts.MaxLatency - m.opts.MinLatency
	if span <= 0 {
		return m.opts.MinLatency
	}
	return m.opts.MinLatency + rand.N(span)
}

// Reads returns how many reads were attempted.
func (m *MockClient) Reads() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Closes returns how many times Close was called.
func (m *MockClient) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// Close forgets simulated state.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	m.values = make(map[device.PointKey]uint16)
	return nil
}
