package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tonhe/fieldscan/internal/config"
	"github.com/tonhe/fieldscan/internal/device"
	"github.com/tonhe/fieldscan/internal/heartbeat"
	"github.com/tonhe/fieldscan/internal/logging"
	"github.com/tonhe/fieldscan/internal/metrics"
	"github.com/tonhe/fieldscan/internal/protocol"
	"github.com/tonhe/fieldscan/internal/resource"
	"github.com/tonhe/fieldscan/internal/scan"
	"github.com/tonhe/fieldscan/internal/sink"
)

// runtime holds the long-lived components shared by the TUI and serve
// commands.
type runtime struct {
	cfg        *config.Config
	logger     *zap.Logger
	eventLog   *zap.Logger
	exceptions *protocol.ExceptionLogger
	client     protocol.Client
	repo       *sink.SQLiteRepository
	buffer     *sink.Buffer
	manager    *scan.Manager
	heartbeat  *heartbeat.Monitor
	resources  *resource.Monitor
}

// loadSettings reads config.toml and applies the persistent flags.
func loadSettings(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		p, err := config.GetConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if mock, _ := cmd.Flags().GetBool("mock"); mock {
		cfg.Mock = true
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if err := cfg.ResolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDevices reads the --devices file or directory, falling back to
// devices_dir.
func loadDevices(cmd *cobra.Command, cfg *config.Config) ([]device.Config, error) {
	path, _ := cmd.Flags().GetString("devices")
	if path == "" {
		path = cfg.DevicesDir
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("devices: %w", err)
	}
	var devs []device.Config
	if info.IsDir() {
		devs, err = device.LoadDir(path)
	} else {
		devs, err = device.LoadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("loading devices from %s: %w", path, err)
	}
	if len(devs) == 0 {
		return nil, fmt.Errorf("no devices found in %s", path)
	}
	return devs, nil
}

// newClient builds the protocol mux. With mock set every protocol name
// resolves to the simulated device.
func newClient(cfg *config.Config, logger *zap.Logger, exceptions *protocol.ExceptionLogger) protocol.Client {
	mock := protocol.NewMockClient(protocol.DefaultMockOptions())
	if cfg.Mock {
		return protocol.NewMux(map[string]protocol.Client{
			device.ProtocolModbus: mock,
			device.ProtocolSNMP:   mock,
			device.ProtocolMock:   mock,
		})
	}
	return protocol.NewMux(map[string]protocol.Client{
		device.ProtocolModbus: protocol.NewModbusClient(cfg.ReadTimeout, logger, exceptions),
		device.ProtocolSNMP:   protocol.NewSNMPClient(cfg.ReadTimeout, logger, exceptions),
		device.ProtocolMock:   mock,
	})
}

// newRuntime wires logging, storage, the protocol client and monitors.
// quiet sends logs to a file so they do not draw over the TUI.
func newRuntime(cfg *config.Config, quiet bool) (*runtime, error) {
	opts := logging.Options{Level: cfg.LogLevel}
	if quiet {
		logPath, err := config.GetLogPath()
		if err != nil {
			return nil, err
		}
		opts.File = logPath
	} else {
		opts.Development = true
	}
	logger, err := logging.New(opts)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: logger}
	excPath, err := config.GetExceptionLogPath()
	if err != nil {
		return nil, err
	}
	excLog, err := logging.NewFileLogger(excPath, 10*1024*1024)
	if err != nil {
		logger.Warn("exception log unavailable", zap.Error(err))
		excLog = logger.Named("exceptions")
	}
	rt.exceptions = protocol.NewExceptionLogger(excLog)
	rt.client = newClient(cfg, logger.Named("protocol"), rt.exceptions)

	var out sink.Sink = sink.Discard{}
	if cfg.Storage.Enabled {
		repo, err := sink.OpenSQLite(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		rt.repo = repo
		rt.buffer = sink.NewBuffer(repo, cfg.Storage.FlushInterval, cfg.Storage.BatchSize, 0, logger.Named("sink"))
		out = rt.buffer
		logger.Info("storing samples", zap.String("path", cfg.Storage.Path))
	}

	rt.manager = scan.NewManager(rt.client, out, metrics.NewCollector(), metrics.NewDriftRecorder(metrics.DefaultDriftCapacity),
		logger.Named("scan"), scan.Options{QueueCapacity: cfg.QueueCapacity, ReadTimeout: cfg.ReadTimeout})

	if cfg.Heartbeat.Enabled {
		eventLog, err := logging.NewFileLogger(cfg.Heartbeat.LogPath, int64(cfg.Heartbeat.MaxLogMB)*1024*1024)
		if err != nil {
			logger.Warn("heartbeat warning log unavailable", zap.Error(err))
		}
		rt.eventLog = eventLog
		hb, err := heartbeat.NewMonitor(cfg.Heartbeat, logger.Named("heartbeat"), eventLog)
		if err != nil {
			return nil, err
		}
		rt.heartbeat = hb
	}

	res, err := resource.NewMonitor(cfg.Resource.Interval, logger.Named("resource"))
	if err != nil {
		logger.Warn("resource monitor unavailable", zap.Error(err))
	} else {
		rt.resources = res
	}
	return rt, nil
}

// run drives the background loops until ctx is cancelled. The sample
// buffer drains before run returns.
func (rt *runtime) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if rt.heartbeat != nil {
		g.Go(func() error {
			rt.heartbeat.Run(ctx)
			return nil
		})
	}
	if rt.resources != nil {
		g.Go(func() error {
			rt.resources.Run(ctx)
			return nil
		})
	}
	if rt.buffer != nil {
		g.Go(func() error {
			rt.buffer.Run(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (rt *runtime) close() {
	if n := rt.exceptions.Count(); n > 0 {
		rt.logger.Info("device exceptions logged", zap.Int64("count", n))
	}
	if err := rt.client.Close(); err != nil {
		rt.logger.Debug("closing protocol client", zap.Error(err))
	}
	if rt.repo != nil {
		if err := rt.repo.Close(); err != nil {
			rt.logger.Warn("closing sample store", zap.Error(err))
		}
	}
	if rt.eventLog != nil {
		_ = rt.eventLog.Sync()
	}
	_ = rt.logger.Sync()
}
