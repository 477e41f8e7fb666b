package device

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Limits enforced by Validate.
const (
	MinFrameInterval = 10 * time.Millisecond
	MaxRegisterCount = 125
	maxAddress       = 65535
)

// ErrInvalidConfig is matched by every ValidationError.
var ErrInvalidConfig = errors.New("invalid device configuration")

// ValidationError collects every problem found in a device list.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidConfig, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidConfig }

// Validate checks a device list before a session starts. Defaults must
// already have been applied.
func Validate(devs []Config) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(devs) == 0 {
		add("no devices configured")
	}
	seen := make(map[Key]string)
	for _, d := range devs {
		if d.Host == "" {
			add("device %q: host is required", d.Name)
		}
		if d.Port < 1 || d.Port > 65535 {
			add("device %q: port %d out of range", d.Name, d.Port)
		}
		if d.UnitID < 0 || d.UnitID > 255 {
			add("device %q: unit_id %d out of range", d.Name, d.UnitID)
		}
		switch d.Protocol {
		case ProtocolModbus, ProtocolMock:
		case ProtocolSNMP:
			if d.BaseOID == "" {
				add("device %q: snmp requires base_oid", d.Name)
			}
		default:
			add("device %q: unknown protocol %q", d.Name, d.Protocol)
		}
		if prev, ok := seen[d.Key()]; ok {
			add("device %q: duplicate address %s (also %q)", d.Name, d.Key(), prev)
		}
		seen[d.Key()] = d.Name

		if len(d.Frames) == 0 {
			add("device %q: at least one frame is required", d.Name)
		}
		for i, f := range d.Frames {
			if f.Interval < MinFrameInterval {
				add("device %q frame %d: interval %v below %v", d.Name, i, f.Interval, MinFrameInterval)
			}
			if f.Count < 1 || f.Count > MaxRegisterCount {
				add("device %q frame %d: count %d not in 1..%d", d.Name, i, f.Count, MaxRegisterCount)
			}
			if f.StartAddress < 0 || f.StartAddress+f.Count-1 > maxAddress {
				add("device %q frame %d: address range %d+%d out of bounds", d.Name, i, f.StartAddress, f.Count)
			}
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
