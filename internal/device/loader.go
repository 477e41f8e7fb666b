package device

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	json "github.com/goccy/go-json"
)

// DefaultFrameInterval applies to frames that omit interval_ms.
const DefaultFrameInterval = time.Second

// LoadFile reads a device file and returns its devices with defaults applied.
// The format is chosen by extension: .toml or .json.
func LoadFile(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes a device document in the format named by ext.
func Parse(data []byte, ext string) ([]Config, error) {
	var fleet Fleet
	switch strings.ToLower(ext) {
	case ".toml":
		if _, err := toml.Decode(string(data), &fleet); err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &fleet); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported device file extension %q", ext)
	}
	ApplyDefaults(fleet.Devices)
	return fleet.Devices, nil
}

// LoadDir loads every .toml and .json file in dir, in name order.
func LoadDir(dir string) ([]Config, error) {
	names, err := ListFiles(dir)
	if err != nil {
		return nil, err
	}
	var all []Config
	for _, name := range names {
		devs, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		all = append(all, devs...)
	}
	return all, nil
}

// ListFiles returns the names of device files found in dir.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".toml", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ApplyDefaults fills port 502, the modbus protocol and frame intervals.
// Frame intervals are derived from interval_ms.
func ApplyDefaults(devs []Config) {
	for i := range devs {
		d := &devs[i]
		if d.Port == 0 {
			d.Port = DefaultPort
		}
		if d.Protocol == "" {
			d.Protocol = ProtocolModbus
		}
		if d.Protocol == ProtocolSNMP {
			if d.Community == "" {
				d.Community = "public"
			}
			if d.Version == "" {
				d.Version = "2c"
			}
		}
		if d.Name == "" {
			d.Name = d.Key().String()
		}
		for j := range d.Frames {
			f := &d.Frames[j]
			if f.IntervalMs == 0 && f.Interval == 0 {
				f.Interval = DefaultFrameInterval
				f.IntervalMs = int(DefaultFrameInterval / time.Millisecond)
			} else if f.Interval == 0 {
				f.Interval = time.Duration(f.IntervalMs) * time.Millisecond
			}
			if f.Name == "" {
				f.Name = fmt.Sprintf("frame%d", j)
			}
		}
	}
}

// SaveFile writes devices to path as TOML.
func SaveFile(devs []Config, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(Fleet{Devices: devs}); err != nil {
		f.Close()
		return fmt.Errorf("write devices: %w", err)
	}
	return f.Close()
}
