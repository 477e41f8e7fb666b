// Package resource samples the process's CPU, memory and goroutine usage.
package resource

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/tonhe/fieldscan/internal/metrics"
)

// DefaultInterval is the sampling period.
const DefaultInterval = 2 * time.Second

const historySize = 150

// Stats is one resource sample.
type Stats struct {
	Timestamp        time.Time `json:"timestamp"`
	CPUPercent       float64   `json:"cpuPercent"`
	MemoryMB         float64   `json:"memoryMb"`
	Goroutines       int       `json:"goroutines"`
	SystemCPUPercent float64   `json:"systemCpuPercent"`
	SystemMemPercent float64   `json:"systemMemPercent"`
}

// Monitor samples resource usage periodically.
type Monitor struct {
	interval time.Duration
	proc     *process.Process
	logger   *zap.Logger
	history  *metrics.RingBuffer[Stats]

	mu      sync.RWMutex
	current Stats
}

// NewMonitor creates a monitor for the current process.
func NewMonitor(interval time.Duration, logger *zap.Logger) (*Monitor, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open process: %w", err)
	}
	return &Monitor{
		interval: interval,
		proc:     proc,
		logger:   logger,
		history:  metrics.NewRingBuffer[Stats](historySize),
	}, nil
}

// Sample takes one measurement and records it.
func (m *Monitor) Sample() (Stats, error) {
	s := Stats{Timestamp: time.Now(), Goroutines: runtime.NumGoroutine()}

	pct, err := m.proc.Percent(0)
	if err != nil {
		return s, fmt.Errorf("process cpu: %w", err)
	}
	s.CPUPercent = pct

	info, err := m.proc.MemoryInfo()
	if err != nil {
		return s, fmt.Errorf("process memory: %w", err)
	}
	s.MemoryMB = float64(info.RSS) / (1024 * 1024)

	if sys, err := cpu.Percent(0, false); err == nil && len(sys) > 0 {
		s.SystemCPUPercent = sys[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.SystemMemPercent = vm.UsedPercent
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	m.history.Add(s)
	return s, nil
}

// Run samples every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		if _, err := m.Sample(); err != nil {
			m.logger.Debug("resource sample failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Current returns the latest sample.
func (m *Monitor) Current() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// History returns retained samples, oldest first.
func (m *Monitor) History() []Stats {
	return m.history.All()
}
