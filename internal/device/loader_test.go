package device

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testFleetTOML = `
[[devices]]
name = "plc-1"
host = "10.0.0.5"
unit_id = 1

[[devices.frames]]
name = "status"
start_address = 0
count = 10
interval_ms = 500

[[devices.frames]]
name = "alarms"
start_address = 100
count = 4

[[devices]]
name = "plc-2"
host = "10.0.0.6"
port = 5020
protocol = "mock"
allow_concurrent_frame_reads = true

[[devices.frames]]
start_address = 0
count = 2
interval_ms = 250
`

const testFleetJSON = `{
  "devices": [
    {
      "name": "rtu",
      "host": "192.168.1.20",
      "unit_id": 3,
      "frames": [{"name": "temps", "start_address": 40, "count": 8, "interval_ms": 2000}]
    }
  ]
}`

func TestLoadFileTOML(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "plant.toml")
	os.WriteFile(path, []byte(testFleetTOML), 0644)

	devs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if len(devs) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devs))
	}
	if devs[0].Port != DefaultPort {
		t.Errorf("expected default port %d, got %d", DefaultPort, devs[0].Port)
	}
	if devs[0].Protocol != ProtocolModbus {
		t.Errorf("expected default protocol modbus, got %q", devs[0].Protocol)
	}
	if devs[0].Frames[0].Interval != 500*time.Millisecond {
		t.Errorf("expected interval 500ms, got %v", devs[0].Frames[0].Interval)
	}
	if devs[0].Frames[1].Interval != DefaultFrameInterval {
		t.Errorf("expected default interval, got %v", devs[0].Frames[1].Interval)
	}
	if devs[1].Port != 5020 {
		t.Errorf("expected port 5020, got %d", devs[1].Port)
	}
	if !devs[1].AllowConcurrentFrameReads {
		t.Error("expected concurrent frame reads on plc-2")
	}
	if devs[1].Frames[0].Name != "frame0" {
		t.Errorf("expected generated frame name, got %q", devs[1].Frames[0].Name)
	}
	if err := Validate(devs); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoadFileJSON(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "rtu.json")
	os.WriteFile(path, []byte(testFleetJSON), 0644)

	devs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if len(devs) != 1 {
		t.Fatalf("expected 1 device, got %d", len(devs))
	}
	if devs[0].Key() != (Key{Host: "192.168.1.20", Port: 502, UnitID: 3}) {
		t.Errorf("unexpected key %v", devs[0].Key())
	}
	if devs[0].Frames[0].Interval != 2*time.Second {
		t.Errorf("expected interval 2s, got %v", devs[0].Frames[0].Interval)
	}
}

func TestLoadFileUnsupported(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "devices.yaml")
	os.WriteFile(path, []byte("devices: []"), 0644)

	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestLoadDir(t *testing.T) {
	tmp := t.TempDir()
	os.WriteFile(filepath.Join(tmp, "a.toml"), []byte(testFleetTOML), 0644)
	os.WriteFile(filepath.Join(tmp, "b.json"), []byte(testFleetJSON), 0644)
	os.WriteFile(filepath.Join(tmp, "notes.txt"), []byte("ignored"), 0644)
	os.Mkdir(filepath.Join(tmp, "subdir"), 0755)

	devs, err := LoadDir(tmp)
	if err != nil {
		t.Fatalf("LoadDir() error: %v", err)
	}
	if len(devs) != 3 {
		t.Errorf("expected 3 devices, got %d", len(devs))
	}
}

func TestSaveFileRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "out.toml")

	devs := []Config{{
		Name: "saved", Host: "1.2.3.4", Port: 502, UnitID: 9, Protocol: ProtocolModbus,
		Frames: []Frame{{Name: "f", StartAddress: 10, Count: 3, IntervalMs: 750}},
	}}
	if err := SaveFile(devs, path); err != nil {
		t.Fatalf("SaveFile() error: %v", err)
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if loaded[0].Frames[0].Interval != 750*time.Millisecond {
		t.Errorf("expected interval 750ms, got %v", loaded[0].Frames[0].Interval)
	}
	if loaded[0].UnitID != 9 {
		t.Errorf("expected unit 9, got %d", loaded[0].UnitID)
	}
}

func TestSaveFileReportsWriteErrors(t *testing.T) {
	devs := []Config{{Host: "1.2.3.4", Frames: []Frame{{Count: 1}}}}

	if err := SaveFile(devs, filepath.Join(t.TempDir(), "missing", "out.toml")); err == nil {
		t.Error("expected error saving into a missing directory")
	}

	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("no /dev/full on this system")
	}
	if err := SaveFile(devs, "/dev/full"); err == nil {
		t.Error("expected error when the device has no space left")
	}
}

func TestValidate(t *testing.T) {
	good := func() Config {
		return Config{
			Name: "d", Host: "10.0.0.1", Port: 502, Protocol: ProtocolModbus,
			Frames: []Frame{{Name: "f", Count: 10, Interval: time.Second}},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"missing host", func(c *Config) { c.Host = "" }, false},
		{"bad port", func(c *Config) { c.Port = 70000 }, false},
		{"bad unit", func(c *Config) { c.UnitID = 300 }, false},
		{"unknown protocol", func(c *Config) { c.Protocol = "bacnet" }, false},
		{"snmp without oid", func(c *Config) { c.Protocol = ProtocolSNMP }, false},
		{"no frames", func(c *Config) { c.Frames = nil }, false},
		{"short interval", func(c *Config) { c.Frames[0].Interval = time.Millisecond }, false},
		{"negative interval", func(c *Config) { c.Frames[0].Interval = -time.Second }, false},
		{"zero count", func(c *Config) { c.Frames[0].Count = 0 }, false},
		{"too many registers", func(c *Config) { c.Frames[0].Count = 126 }, false},
		{"range overflow", func(c *Config) { c.Frames[0].StartAddress = 65530 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := good()
			tt.mutate(&c)
			err := Validate([]Config{c})
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
			}
		})
	}
}

func TestValidateDuplicateAddress(t *testing.T) {
	d := Config{Name: "a", Host: "h", Port: 502, Protocol: ProtocolMock,
		Frames: []Frame{{Count: 1, Interval: time.Second}}}
	e := d
	e.Name = "b"
	err := Validate([]Config{d, e})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Problems) != 1 {
		t.Errorf("expected 1 problem, got %v", verr.Problems)
	}
}

func TestValidateEmpty(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Error("expected error for empty device list")
	}
}

func TestKeyStrings(t *testing.T) {
	k := Key{Host: "10.0.0.1", Port: 502, UnitID: 7}
	if k.String() != "10.0.0.1:502:7" {
		t.Errorf("unexpected key string %q", k.String())
	}
	if k.Addr() != "10.0.0.1:502" {
		t.Errorf("unexpected addr %q", k.Addr())
	}
	p := PointKey{Device: k, Address: 40}
	if p.String() != "10.0.0.1:502:7:40" {
		t.Errorf("unexpected point string %q", p.String())
	}
}
