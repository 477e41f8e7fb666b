package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonhe/fieldscan/internal/api"
	"github.com/tonhe/fieldscan/internal/device"
	"github.com/tonhe/fieldscan/internal/scan"
)

const stopTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run headless with the HTTP API",
	Long: `Run the scan engine without the terminal monitor.

The server will:
  - Load configuration and device files
  - Start scanning unless --idle is given
  - Serve control, telemetry, Prometheus and health routes on http.listen

The server runs until interrupted (Ctrl+C) or receives SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "HTTP listen address (overrides http.listen)")
	serveCmd.Flags().Bool("idle", false, "wait for POST /api/scan/start instead of scanning at boot")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.HTTP.Listen = listen
	}

	rt, err := newRuntime(cfg, false)
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger

	deps := api.Deps{
		Manager:   rt.manager,
		Heartbeat: rt.heartbeat,
		Resources: rt.resources,
		LoadDevices: func() ([]device.Config, error) {
			return loadDevices(cmd, cfg)
		},
		Config: cfg,
		Logger: logger.Named("http"),
	}
	if rt.repo != nil {
		deps.Store = rt.repo
		deps.ReadyChecks = map[string]healthcheck.Check{
			"database": healthcheck.DatabasePingCheck(rt.repo.DB(), time.Second),
		}
	}
	server := api.NewServer(deps)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if idle, _ := cmd.Flags().GetBool("idle"); !idle {
		devs, err := loadDevices(cmd, cfg)
		if err != nil {
			return err
		}
		if err := rt.manager.Start(ctx, devs); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.run(gctx)
	})
	g.Go(func() error {
		return server.Run(gctx, cfg.HTTP.Listen)
	})
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := rt.manager.Stop(stopCtx); err != nil && !errors.Is(err, scan.ErrNotRunning) {
			return err
		}
		return nil
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
