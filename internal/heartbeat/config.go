package heartbeat

import (
	"errors"
	"fmt"
	"time"
)

// ClockShiftThreshold is the mono/wall divergence that counts as an
// external clock change.
const ClockShiftThreshold = 500 * time.Millisecond

// HistorySize is the number of snapshots kept for query.
const HistorySize = 10

// Config controls the heartbeat monitor.
type Config struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled" toml:"enabled"`
	IntervalMs  int    `json:"intervalMs" mapstructure:"interval_ms" toml:"interval_ms"`
	ThresholdMs int    `json:"thresholdMs" mapstructure:"threshold_ms" toml:"threshold_ms"`
	MaxWarnings int    `json:"maxWarnings" mapstructure:"max_warnings" toml:"max_warnings"`
	LogPath     string `json:"logPath" mapstructure:"log_path" toml:"log_path"`
	MaxLogMB    int    `json:"maxLogMb" mapstructure:"max_log_mb" toml:"max_log_mb"`
}

// DefaultConfig returns a 1s heartbeat with a 2s degradation threshold.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		IntervalMs:  1000,
		ThresholdMs: 2000,
		MaxWarnings: 50,
		LogPath:     "logs/heartbeat-warnings.log",
		MaxLogMB:    10,
	}
}

// Interval returns the tick period.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// Threshold returns the degradation threshold.
func (c Config) Threshold() time.Duration {
	return time.Duration(c.ThresholdMs) * time.Millisecond
}

// Validate reports every out-of-range setting.
func (c Config) Validate() error {
	var errs []error
	if c.IntervalMs < 100 || c.IntervalMs > 60000 {
		errs = append(errs, fmt.Errorf("interval_ms %d not in 100..60000", c.IntervalMs))
	}
	if c.ThresholdMs < c.IntervalMs {
		errs = append(errs, fmt.Errorf("threshold_ms %d must be >= interval_ms %d", c.ThresholdMs, c.IntervalMs))
	}
	if c.MaxWarnings < 10 || c.MaxWarnings > 1000 {
		errs = append(errs, fmt.Errorf("max_warnings %d not in 10..1000", c.MaxWarnings))
	}
	if c.MaxLogMB < 1 || c.MaxLogMB > 1000 {
		errs = append(errs, fmt.Errorf("max_log_mb %d not in 1..1000", c.MaxLogMB))
	}
	if c.LogPath == "" {
		errs = append(errs, errors.New("log_path is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("heartbeat config: %w", errors.Join(errs...))
	}
	return nil
}
