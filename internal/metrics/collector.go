package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tonhe/fieldscan/internal/device"
)

// DefaultDeviceMetricCapacity bounds the retained device-level metrics.
const DefaultDeviceMetricCapacity = 1000

// DeviceLevelMetric describes one completed read.
type DeviceLevelMetric struct {
	Device              device.Key      `json:"-"`
	DeviceID            string          `json:"deviceId"`
	DeviceName          string          `json:"deviceName"`
	Frame               device.FrameKey `json:"-"`
	FrameIndex          int             `json:"frameIndex"`
	FrameName           string          `json:"frameName"`
	QueueDuration       time.Duration   `json:"queueDurationNs"`
	ResponseTime        time.Duration   `json:"responseTimeNs"`
	TotalInterval       time.Duration   `json:"totalIntervalNs"`
	FrameDropped        int64           `json:"frameDropped"`
	FrameDropsPerMinute float64         `json:"frameDropsPerMinute"`
	Timestamp           time.Time       `json:"timestamp"`
}

// QueueStats aggregates task queue counters.
type QueueStats struct {
	Depth    int   `json:"depth"`
	Enqueued int64 `json:"enqueued"`
	Dequeued int64 `json:"dequeued"`
	Dropped  int64 `json:"dropped"`
}

// Add returns the field-wise sum of s and o.
func (s QueueStats) Add(o QueueStats) QueueStats {
	return QueueStats{
		Depth:    s.Depth + o.Depth,
		Enqueued: s.Enqueued + o.Enqueued,
		Dequeued: s.Dequeued + o.Dequeued,
		Dropped:  s.Dropped + o.Dropped,
	}
}

// SystemHealth is computed on demand from the rolling windows.
type SystemHealth struct {
	IngressTPM      float64    `json:"ingressTpm"`
	EgressTPM       float64    `json:"egressTpm"`
	DroppedTPM      float64    `json:"droppedTpm"`
	SaturationIndex float64    `json:"saturationIndex"`
	TotalCreated    int64      `json:"totalCreated"`
	TotalCompleted  int64      `json:"totalCompleted"`
	TotalDropped    int64      `json:"totalDropped"`
	Queue           QueueStats `json:"queue"`
	Timestamp       time.Time  `json:"timestamp"`
}

// FrameDropStats reports drops for a single frame.
type FrameDropStats struct {
	Frame          device.FrameKey `json:"-"`
	FrameID        string          `json:"frameId"`
	Dropped        int64           `json:"dropped"`
	DropsPerMinute float64         `json:"dropsPerMinute"`
}

type frameDrops struct {
	total  atomic.Int64
	window *Window
}

// Collector aggregates throughput across every queue and worker. It is
// safe for concurrent use.
type Collector struct {
	window    time.Duration
	created   *Window
	completed *Window
	devices   *RingBuffer[DeviceLevelMetric]

	totalCreated   atomic.Int64
	totalCompleted atomic.Int64
	totalDropped   atomic.Int64

	mu     sync.RWMutex
	frames map[device.FrameKey]*frameDrops
}

// NewCollector creates a collector with a 60s window and a 1000-entry
// device metric buffer.
func NewCollector() *Collector {
	return NewCollectorWithWindow(DefaultWindow, DefaultDeviceMetricCapacity)
}

// NewCollectorWithWindow creates a collector with custom bounds.
func NewCollectorWithWindow(window time.Duration, deviceCapacity int) *Collector {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Collector{
		window:    window,
		created:   NewWindow(window),
		completed: NewWindow(window),
		devices:   NewRingBuffer[DeviceLevelMetric](deviceCapacity),
		frames:    make(map[device.FrameKey]*frameDrops),
	}
}

// Window returns the rolling window span.
func (c *Collector) Window() time.Duration { return c.window }

// RecordTaskCreated counts a generated task (ingress).
func (c *Collector) RecordTaskCreated() { c.RecordTaskCreatedAt(time.Now()) }

// RecordTaskCreatedAt counts a generated task at t.
func (c *Collector) RecordTaskCreatedAt(t time.Time) {
	c.totalCreated.Add(1)
	c.created.Add(t)
}

// RecordTaskCompleted counts a successfully executed task (egress).
func (c *Collector) RecordTaskCompleted() { c.RecordTaskCompletedAt(time.Now()) }

// RecordTaskCompletedAt counts a completed task at t.
func (c *Collector) RecordTaskCompletedAt(t time.Time) {
	c.totalCompleted.Add(1)
	c.completed.Add(t)
}

// RecordTaskDropped counts a rejected enqueue for frame.
func (c *Collector) RecordTaskDropped(frame device.FrameKey) {
	c.RecordTaskDroppedAt(frame, time.Now())
}

// RecordTaskDroppedAt counts a rejected enqueue for frame at t.
func (c *Collector) RecordTaskDroppedAt(frame device.FrameKey, t time.Time) {
	c.totalDropped.Add(1)
	fd := c.frame(frame)
	fd.total.Add(1)
	fd.window.Add(t)
}

func (c *Collector) frame(key device.FrameKey) *frameDrops {
	c.mu.RLock()
	fd, ok := c.frames[key]
	c.mu.RUnlock()
	if ok {
		return fd
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if fd, ok = c.frames[key]; ok {
		return fd
	}
	fd = &frameDrops{window: NewWindow(c.window)}
	c.frames[key] = fd
	return fd
}

// FrameDrops returns the drop counters of one frame.
func (c *Collector) FrameDrops(key device.FrameKey) FrameDropStats {
	return c.frameDropsAt(key, time.Now())
}

func (c *Collector) frameDropsAt(key device.FrameKey, now time.Time) FrameDropStats {
	stats := FrameDropStats{Frame: key, FrameID: key.String()}
	c.mu.RLock()
	fd, ok := c.frames[key]
	c.mu.RUnlock()
	if !ok {
		return stats
	}
	stats.Dropped = fd.total.Load()
	stats.DropsPerMinute = PerMinute(fd.window.Count(now), c.window)
	return stats
}

// AllFrameDrops returns drop counters for every frame that has dropped.
func (c *Collector) AllFrameDrops() []FrameDropStats {
	c.mu.RLock()
	keys := make([]device.FrameKey, 0, len(c.frames))
	for k := range c.frames {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	now := time.Now()
	out := make([]FrameDropStats, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.frameDropsAt(k, now))
	}
	return out
}

// RecordDeviceMetric fills the frame drop fields of m and appends it to
// the device metric buffer.
func (c *Collector) RecordDeviceMetric(m DeviceLevelMetric) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	drops := c.frameDropsAt(m.Frame, m.Timestamp)
	m.FrameDropped = drops.Dropped
	m.FrameDropsPerMinute = drops.DropsPerMinute
	m.DeviceID = m.Device.String()
	m.FrameIndex = m.Frame.Index
	c.devices.Add(m)
}

// RecentDeviceMetrics returns up to n of the newest device metrics.
func (c *Collector) RecentDeviceMetrics(n int) []DeviceLevelMetric {
	return c.devices.Recent(n)
}

// SystemHealth computes throughput and saturation from the rolling
// windows. drops are the union of queue drop timestamps.
func (c *Collector) SystemHealth(queue QueueStats, drops []time.Time) SystemHealth {
	return c.SystemHealthAt(time.Now(), queue, drops)
}

// SystemHealthAt is SystemHealth evaluated at now.
func (c *Collector) SystemHealthAt(now time.Time, queue QueueStats, drops []time.Time) SystemHealth {
	ingress := PerMinute(c.created.Count(now), c.window)
	egress := PerMinute(c.completed.Count(now), c.window)
	return SystemHealth{
		IngressTPM:      ingress,
		EgressTPM:       egress,
		DroppedTPM:      PerMinute(CountIn(drops, now, c.window), c.window),
		SaturationIndex: SaturationIndex(ingress, egress),
		TotalCreated:    c.totalCreated.Load(),
		TotalCompleted:  c.totalCompleted.Load(),
		TotalDropped:    c.totalDropped.Load(),
		Queue:           queue,
		Timestamp:       now,
	}
}
