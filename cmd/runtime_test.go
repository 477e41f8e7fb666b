package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tonhe/fieldscan/internal/config"
	"github.com/tonhe/fieldscan/internal/device"
	"github.com/tonhe/fieldscan/internal/protocol"
)

const testDevices = `
[[devices]]
name = "plc-1"
host = "10.0.0.5"
unit_id = 1

[[devices.frames]]
name = "status"
start_address = 0
count = 4
interval_ms = 500
`

func newTestCommand(devices string) *cobra.Command {
	c := &cobra.Command{Use: "test"}
	c.Flags().String("devices", devices, "")
	return c
}

func TestLoadDevicesFileAndDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plant.toml")
	if err := os.WriteFile(path, []byte(testDevices), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()

	devs, err := loadDevices(newTestCommand(path), cfg)
	if err != nil {
		t.Fatalf("loadDevices(file) error: %v", err)
	}
	if len(devs) != 1 || devs[0].Name != "plc-1" {
		t.Errorf("expected plc-1, got %+v", devs)
	}

	cfg.DevicesDir = dir
	devs, err = loadDevices(newTestCommand(""), cfg)
	if err != nil {
		t.Fatalf("loadDevices(dir) error: %v", err)
	}
	if len(devs) != 1 {
		t.Errorf("expected 1 device from devices_dir, got %d", len(devs))
	}
}

func TestLoadDevicesEmptyDir(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DevicesDir = t.TempDir()
	if _, err := loadDevices(newTestCommand(""), cfg); err == nil {
		t.Error("expected error for a directory without device files")
	}
}

func TestNewClientMock(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Mock = true
	client := newClient(cfg, zap.NewNop(), protocol.NewExceptionLogger(nil))
	defer client.Close()

	dev := device.Config{
		Name:     "plc-1",
		Host:     "10.0.0.5",
		Protocol: device.ProtocolModbus,
		Frames:   []device.Frame{{Name: "status", Count: 3}},
	}
	devs := []device.Config{dev}
	device.ApplyDefaults(devs)

	res := client.ReadRegisters(context.Background(), protocol.ReadRequest{Device: devs[0], Count: 3})
	if !res.OK() {
		t.Fatalf("expected mock read to succeed, got %v", res.Err)
	}
	if len(res.Values) != 3 {
		t.Errorf("expected 3 values, got %d", len(res.Values))
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("holding-registers", 8); len(got) > 8 {
		t.Errorf("truncate returned %q", got)
	}
	if got := truncate("short", 8); got != "short" {
		t.Errorf("expected short unchanged, got %q", got)
	}
}
