package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/tonhe/fieldscan/internal/heartbeat"
)

// EnvPrefix is prepended to every environment override, e.g.
// FIELDSCAN_HTTP_LISTEN.
const EnvPrefix = "FIELDSCAN"

type StorageConfig struct {
	Enabled          bool          `toml:"enabled" mapstructure:"enabled"`
	Path             string        `toml:"path" mapstructure:"path"`
	FlushInterval    time.Duration `toml:"-" mapstructure:"-"`
	FlushIntervalStr string        `toml:"flush_interval" mapstructure:"flush_interval"`
	BatchSize        int           `toml:"batch_size" mapstructure:"batch_size"`
}

type HTTPConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

type ResourceConfig struct {
	Interval    time.Duration `toml:"-" mapstructure:"-"`
	IntervalStr string        `toml:"interval" mapstructure:"interval"`
}

type Config struct {
	Theme          string           `toml:"theme" mapstructure:"theme"`
	LogLevel       string           `toml:"log_level" mapstructure:"log_level"`
	DevicesDir     string           `toml:"devices_dir" mapstructure:"devices_dir"`
	ReadTimeout    time.Duration    `toml:"-" mapstructure:"-"`
	ReadTimeoutStr string           `toml:"read_timeout" mapstructure:"read_timeout"`
	QueueCapacity  int              `toml:"queue_capacity" mapstructure:"queue_capacity"`
	Mock           bool             `toml:"mock" mapstructure:"mock"`
	Storage        StorageConfig    `toml:"storage" mapstructure:"storage"`
	HTTP           HTTPConfig       `toml:"http" mapstructure:"http"`
	Heartbeat      heartbeat.Config `toml:"heartbeat" mapstructure:"heartbeat"`
	Resource       ResourceConfig   `toml:"resource" mapstructure:"resource"`
}

func DefaultConfig() *Config {
	return &Config{
		Theme:          "solarized-dark",
		LogLevel:       "info",
		DevicesDir:     "",
		ReadTimeout:    5 * time.Second,
		ReadTimeoutStr: "5s",
		QueueCapacity:  10000,
		Storage: StorageConfig{
			Enabled:          false,
			Path:             "",
			FlushInterval:    time.Second,
			FlushIntervalStr: "1s",
			BatchSize:        10000,
		},
		HTTP:      HTTPConfig{Listen: ":8080"},
		Heartbeat: heartbeat.DefaultConfig(),
		Resource: ResourceConfig{
			Interval:    2 * time.Second,
			IntervalStr: "2s",
		},
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("theme", cfg.Theme)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("devices_dir", cfg.DevicesDir)
	v.SetDefault("read_timeout", cfg.ReadTimeoutStr)
	v.SetDefault("queue_capacity", cfg.QueueCapacity)
	v.SetDefault("mock", cfg.Mock)

	v.SetDefault("storage.enabled", cfg.Storage.Enabled)
	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("storage.flush_interval", cfg.Storage.FlushIntervalStr)
	v.SetDefault("storage.batch_size", cfg.Storage.BatchSize)

	v.SetDefault("http.listen", cfg.HTTP.Listen)

	v.SetDefault("heartbeat.enabled", cfg.Heartbeat.Enabled)
	v.SetDefault("heartbeat.interval_ms", cfg.Heartbeat.IntervalMs)
	v.SetDefault("heartbeat.threshold_ms", cfg.Heartbeat.ThresholdMs)
	v.SetDefault("heartbeat.max_warnings", cfg.Heartbeat.MaxWarnings)
	v.SetDefault("heartbeat.log_path", cfg.Heartbeat.LogPath)
	v.SetDefault("heartbeat.max_log_mb", cfg.Heartbeat.MaxLogMB)

	v.SetDefault("resource.interval", cfg.Resource.IntervalStr)
}

// LoadConfig reads path, applies FIELDSCAN_* environment overrides and
// falls back to defaults for anything unset. A missing file is not an
// error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("reading %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parseDurations() error {
	var err error
	if c.ReadTimeout, err = parseDuration("read_timeout", c.ReadTimeoutStr); err != nil {
		return err
	}
	if c.Storage.FlushInterval, err = parseDuration("storage.flush_interval", c.Storage.FlushIntervalStr); err != nil {
		return err
	}
	if c.Resource.Interval, err = parseDuration("resource.interval", c.Resource.IntervalStr); err != nil {
		return err
	}
	return nil
}

func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", key, s)
	}
	return d, nil
}

// Validate checks settings that have no sensible fallback.
func (c *Config) Validate() error {
	var errs []error
	if c.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("queue_capacity %d must be positive", c.QueueCapacity))
	}
	if c.Storage.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("storage.batch_size %d must be positive", c.Storage.BatchSize))
	}
	if c.Heartbeat.Enabled {
		if err := c.Heartbeat.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func SaveConfig(cfg *Config, path string) error {
	cfg.ReadTimeoutStr = cfg.ReadTimeout.String()
	cfg.Storage.FlushIntervalStr = cfg.Storage.FlushInterval.String()
	cfg.Resource.IntervalStr = cfg.Resource.Interval.String()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
