// Package heartbeat watches the process's own scheduling. A ticker fires
// every interval and each tick compares the elapsed monotonic time with
// the interval and with elapsed wall-clock time.
package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tonhe/fieldscan/internal/metrics"
)

// Monitor is the heartbeat self-check.
type Monitor struct {
	cfg      Config
	logger   *zap.Logger
	eventLog *zap.Logger

	mu       sync.RWMutex
	current  Snapshot
	hasTick  bool
	history  *metrics.RingBuffer[Snapshot]
	warnings []DriftEvent
}

// NewMonitor validates cfg and returns a monitor. eventLog receives one
// entry per drift event and may be nil.
func NewMonitor(cfg Config, logger *zap.Logger, eventLog *zap.Logger) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if eventLog == nil {
		eventLog = zap.NewNop()
	}
	return &Monitor{
		cfg:      cfg,
		logger:   logger,
		eventLog: eventLog,
		history:  metrics.NewRingBuffer[Snapshot](HistorySize),
	}, nil
}

// Config returns the active configuration.
func (m *Monitor) Config() Config { return m.cfg }

// Run ticks until ctx is cancelled. It returns at once when the monitor is
// disabled.
func (m *Monitor) Run(ctx context.Context) {
	if !m.cfg.Enabled {
		m.logger.Info("heartbeat monitor disabled")
		return
	}
	m.logger.Info("heartbeat monitor started",
		zap.Int("interval_ms", m.cfg.IntervalMs),
		zap.Int("threshold_ms", m.cfg.ThresholdMs))

	ticker := time.NewTicker(m.cfg.Interval())
	defer ticker.Stop()

	lastMono := time.Now()
	lastWall := lastMono.Round(0)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("heartbeat monitor stopped")
			return
		case <-ticker.C:
			now := time.Now()
			wall := now.Round(0)
			// now.Sub uses the monotonic reading; the Round(0) copies
			// carry wall time only.
			m.observe(now.Sub(lastMono), wall.Sub(lastWall), wall)
			lastMono = now
			lastWall = wall
		}
	}
}

// observe records one tick's measurements.
func (m *Monitor) observe(mono, wall time.Duration, at time.Time) Snapshot {
	snap, events := evaluate(m.cfg, mono, wall, at)

	m.mu.Lock()
	m.current = snap
	m.hasTick = true
	m.history.Add(snap)
	for _, ev := range events {
		m.warnings = append(m.warnings, ev)
		if over := len(m.warnings) - m.cfg.MaxWarnings; over > 0 {
			m.warnings = append(m.warnings[:0], m.warnings[over:]...)
		}
	}
	m.mu.Unlock()

	for _, ev := range events {
		m.eventLog.Warn(ev.Message,
			zap.String("kind", string(ev.Kind)),
			zap.Int64("mono_elapsed_ms", ev.MonoElapsedMs),
			zap.Int64("wall_elapsed_ms", ev.WallElapsedMs),
			zap.Int64("expected_interval_ms", ev.ExpectedInterval),
			zap.Int64("deviation_ms", ev.DeviationMs))
		m.logger.Warn("heartbeat drift", zap.String("kind", string(ev.Kind)), zap.Int64("deviation_ms", ev.DeviationMs))
	}
	return snap
}

// evaluate derives the snapshot and any drift events for one tick.
func evaluate(cfg Config, mono, wall time.Duration, at time.Time) (Snapshot, []DriftEvent) {
	monoMs := mono.Milliseconds()
	wallMs := wall.Milliseconds()
	interval := int64(cfg.IntervalMs)

	latency := monoMs - interval
	if latency < 0 {
		latency = 0
	}
	drift := abs(monoMs - wallMs)

	snap := Snapshot{
		MonoElapsedMs:    monoMs,
		WallElapsedMs:    wallMs,
		CheckedAt:        at,
		ExpectedInterval: interval,
		LatencyMs:        latency,
		ClockDriftMs:     drift,
		Healthy:          latency == 0 && drift < ClockShiftThreshold.Milliseconds(),
	}

	var events []DriftEvent
	if monoMs > int64(cfg.ThresholdMs) {
		dev := monoMs - interval
		events = append(events, DriftEvent{
			Kind:             PerformanceDegraded,
			Timestamp:        at,
			MonoElapsedMs:    monoMs,
			WallElapsedMs:    wallMs,
			ExpectedInterval: interval,
			DeviationMs:      dev,
			Message:          fmt.Sprintf("heartbeat late by %dms (elapsed %dms, threshold %dms)", dev, monoMs, cfg.ThresholdMs),
		})
	}
	if drift > ClockShiftThreshold.Milliseconds() {
		events = append(events, DriftEvent{
			Kind:             ClockShift,
			Timestamp:        at,
			MonoElapsedMs:    monoMs,
			WallElapsedMs:    wallMs,
			ExpectedInterval: interval,
			DeviationMs:      drift,
			Message:          fmt.Sprintf("wall clock moved %dms against monotonic clock", drift),
		})
	}
	return snap, events
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Current returns the latest snapshot and whether any tick has happened.
func (m *Monitor) Current() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.hasTick
}

// History returns up to the last ten snapshots, oldest first.
func (m *Monitor) History() []Snapshot {
	return m.history.All()
}

// Warnings returns a copy of the retained drift events, oldest first.
func (m *Monitor) Warnings() []DriftEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DriftEvent, len(m.warnings))
	copy(out, m.warnings)
	return out
}

// ClearWarnings empties the warning list.
func (m *Monitor) ClearWarnings() {
	m.mu.Lock()
	m.warnings = nil
	m.mu.Unlock()
}

// Healthy reports the health flag of the latest tick. Before the first
// tick the monitor is considered healthy.
func (m *Monitor) Healthy() bool {
	snap, ok := m.Current()
	return !ok || snap.Healthy
}

// Degraded reports whether the latest tick exceeded the degradation
// threshold or showed a clock shift. Unlike Healthy it ignores jitter
// below the threshold.
func (m *Monitor) Degraded() bool {
	snap, ok := m.Current()
	if !ok {
		return false
	}
	return snap.MonoElapsedMs > int64(m.cfg.ThresholdMs) || snap.ClockDriftMs > ClockShiftThreshold.Milliseconds()
}
