package heartbeat

import "time"

// Kind names the condition a drift event reports.
type Kind string

const (
	PerformanceDegraded Kind = "PERFORMANCE_DEGRADED"
	ClockShift          Kind = "CLOCK_SHIFT"
)

// DriftEvent is emitted when a tick shows the scheduler stalled or the wall
// clock moved.
type DriftEvent struct {
	Kind             Kind      `json:"kind"`
	Timestamp        time.Time `json:"timestamp"`
	MonoElapsedMs    int64     `json:"monoElapsedMs"`
	WallElapsedMs    int64     `json:"wallElapsedMs"`
	ExpectedInterval int64     `json:"expectedIntervalMs"`
	DeviationMs      int64     `json:"deviationMs"`
	Message          string    `json:"message"`
}

// Snapshot is the measurement of one tick.
type Snapshot struct {
	MonoElapsedMs    int64     `json:"monoElapsedMs"`
	WallElapsedMs    int64     `json:"wallElapsedMs"`
	CheckedAt        time.Time `json:"checkedAt"`
	ExpectedInterval int64     `json:"expectedIntervalMs"`
	LatencyMs        int64     `json:"latencyMs"`
	ClockDriftMs     int64     `json:"clockDriftMs"`
	Healthy          bool      `json:"healthy"`
}
