package cmd

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tonhe/fieldscan/tui"
)

// Set at build time via -ldflags "-X github.com/tonhe/fieldscan/cmd.version=...".
var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:   "fieldscan",
	Short: "Field device scan scheduler and monitor",
	Long: `fieldscan polls register frames from Modbus TCP and SNMP devices on
per-frame intervals and reports throughput, drift and data quality.

Run without a subcommand to start a scan and open the terminal monitor.

Usage:
  fieldscan                         Launch TUI monitor
  fieldscan --devices plant.toml    Monitor the devices in one file
  fieldscan serve                   Run headless with the HTTP API
  fieldscan validate FILE           Check a device file
  fieldscan read HOST               Read registers once
  fieldscan config <cmd>            Manage configuration`,
	SilenceUsage: true,
	RunE:         runTUI,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "path to config.toml (default: platform config dir)")
	pf.StringP("devices", "d", "", "device file or directory (overrides devices_dir)")
	pf.Bool("mock", false, "answer every read from the simulated device")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.Flags().String("theme", "", "theme override")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fieldscan %s (%s)\n", version, commit)
	},
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if theme, _ := cmd.Flags().GetString("theme"); theme != "" {
		cfg.Theme = theme
	}

	rt, err := newRuntime(cfg, true)
	if err != nil {
		return err
	}
	defer rt.close()

	devs, err := loadDevices(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := rt.run(ctx); err != nil {
			rt.logger.Error("background services stopped", zap.Error(err))
		}
	}()
	defer func() {
		cancel()
		<-done
	}()

	if err := rt.manager.Start(ctx, devs); err != nil {
		return fmt.Errorf("start scan: %w", err)
	}
	defer rt.manager.Stop(context.Background())

	model := tui.NewAppModel(cfg, rt.manager, rt.heartbeat, rt.resources)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
