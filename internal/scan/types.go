package scan

import (
	"time"

	"github.com/tonhe/fieldscan/internal/device"
	"github.com/tonhe/fieldscan/internal/metrics"
)

// Lifecycle states of a Manager.
const (
	StateIdle     = "idle"
	StateRunning  = "running"
	StateStopping = "stopping"
)

// Mode is how a device's frames share the device.
type Mode int

const (
	// Sequential reads one frame at a time per device.
	Sequential Mode = iota
	// Concurrent reads every frame on its own loop.
	Concurrent
)

func (m Mode) String() string {
	if m == Concurrent {
		return "concurrent"
	}
	return "sequential"
}

// FrameStats holds the latest outcome and response history of one frame.
type FrameStats struct {
	Key          device.FrameKey
	Name         string
	StartAddress int
	Count        int
	Interval     time.Duration
	Reads        int64
	Failures     int64
	LastRead     time.Time
	LastError    string
	LastValues   []uint16
	LastResponse time.Duration
	History      *metrics.RingBuffer[float64] // response time in ms
}

// DeviceStats groups the frames of one device.
type DeviceStats struct {
	Name   string
	Key    device.Key
	Mode   Mode
	Frames []FrameStats
}

// Snapshot is a point-in-time view of the current or last session.
type Snapshot struct {
	State     string
	StartedAt time.Time
	Devices   []DeviceStats
	Queue     metrics.QueueStats
}

// Event is sent to subscribers after each executed task. Subscribers call
// Manager.Snapshot for details.
type Event struct {
	Frame  device.FrameKey
	Failed bool
}
