package device

import (
	"fmt"
	"time"
)

// DefaultPort is the Modbus TCP port used when a device omits one.
const DefaultPort = 502

// Supported protocol names.
const (
	ProtocolModbus = "modbus"
	ProtocolSNMP   = "snmp"
	ProtocolMock   = "mock"
)

// Fleet is the top-level document of a device file.
type Fleet struct {
	Devices []Config `toml:"devices" json:"devices"`
}

// Config describes one field device and the frames polled from it. A Config
// is treated as immutable once a scan session has started.
type Config struct {
	Name     string `toml:"name" json:"name"`
	Host     string `toml:"host" json:"host"`
	Port     int    `toml:"port" json:"port"`
	UnitID   int    `toml:"unit_id" json:"unit_id"`
	Protocol string `toml:"protocol" json:"protocol"`

	// SNMP only.
	Community string `toml:"community" json:"community,omitempty"`
	Version   string `toml:"version" json:"version,omitempty"`
	BaseOID   string `toml:"base_oid" json:"base_oid,omitempty"`

	AllowConcurrentFrameReads bool    `toml:"allow_concurrent_frame_reads" json:"allow_concurrent_frame_reads"`
	Frames                    []Frame `toml:"frames" json:"frames"`
}

// Frame is a contiguous register range polled at its own interval.
type Frame struct {
	Name         string        `toml:"name" json:"name"`
	StartAddress int           `toml:"start_address" json:"start_address"`
	Count        int           `toml:"count" json:"count"`
	IntervalMs   int           `toml:"interval_ms" json:"interval_ms"`
	Interval     time.Duration `toml:"-" json:"-"`
}

// Key returns the typed identity of the device.
func (c Config) Key() Key {
	return Key{Host: c.Host, Port: c.Port, UnitID: uint8(c.UnitID)}
}

// FrameKey returns the identity of the frame at index i.
func (c Config) FrameKey(i int) FrameKey {
	return FrameKey{Device: c.Key(), Index: i}
}

// Key identifies a device by address and unit id.
type Key struct {
	Host   string
	Port   int
	UnitID uint8
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%d", k.Host, k.Port, k.UnitID)
}

// Addr returns host:port for dialing.
func (k Key) Addr() string {
	return fmt.Sprintf("%s:%d", k.Host, k.Port)
}

// FrameKey identifies one frame of one device. It is the unit of
// duplicate suppression in the task queues.
type FrameKey struct {
	Device Key
	Index  int
}

func (k FrameKey) String() string {
	return fmt.Sprintf("%s#%d", k.Device, k.Index)
}

// PointKey identifies a single register on a device.
type PointKey struct {
	Device  Key
	Address int
}

func (k PointKey) String() string {
	return fmt.Sprintf("%s:%d", k.Device, k.Address)
}
