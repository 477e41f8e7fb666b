// Package sink hands register values from the scan workers to storage
// without making the workers wait on it.
package sink

import (
	"context"
	"fmt"
	"time"
)

// Batch is the raw result of one successful frame read.
type Batch struct {
	Timestamp    time.Time
	DeviceName   string
	FrameName    string
	StartAddress int
	Values       []uint16
}

// Point is a single stored value.
type Point struct {
	Timestamp  time.Time
	DeviceName string
	TagName    string
	Value      float64
}

// TagName names register address of a frame, e.g. "plc1status00040".
func TagName(deviceName, frameName string, address int) string {
	return fmt.Sprintf("%s%s%05d", deviceName, frameName, address)
}

// Points expands b into one point per register.
func (b Batch) Points() []Point {
	pts := make([]Point, len(b.Values))
	for i, v := range b.Values {
		pts[i] = Point{
			Timestamp:  b.Timestamp,
			DeviceName: b.DeviceName,
			TagName:    TagName(b.DeviceName, b.FrameName, b.StartAddress+i),
			Value:      float64(v),
		}
	}
	return pts
}

// Sink accepts batches. Submit must not block; it reports whether the
// batch was accepted.
type Sink interface {
	Submit(b Batch) bool
}

// Repository persists points.
type Repository interface {
	WritePoints(ctx context.Context, pts []Point) error
	Close() error
}

// Discard accepts and drops every batch.
type Discard struct{}

// Submit implements Sink.
func (Discard) Submit(Batch) bool { return true }
