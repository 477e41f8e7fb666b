// Package protocol reads register blocks from field devices.
package protocol

import (
	"context"
	"errors"
	"time"

	"github.com/tonhe/fieldscan/internal/device"
)

// DefaultTimeout bounds a single read when the caller sets no deadline.
const DefaultTimeout = 5 * time.Second

// ErrUnsupportedProtocol is returned by Mux for unknown device protocols.
var ErrUnsupportedProtocol = errors.New("unsupported protocol")

// ReadRequest names a register block on a device.
type ReadRequest struct {
	Device       device.Config
	StartAddress int
	Count        int
}

// ReadResult is the outcome of one read. Exactly one of Values and Err is
// meaningful: a nil Err means Values holds Count registers.
type ReadResult struct {
	Values  []uint16
	Err     error
	Latency time.Duration
}

// OK reports whether the read succeeded.
func (r ReadResult) OK() bool { return r.Err == nil }

// Client performs register reads. Implementations must be safe for
// concurrent use across devices. Failures are returned in the result
// rather than as a separate error.
type Client interface {
	ReadRegisters(ctx context.Context, req ReadRequest) ReadResult
	// Close releases every pooled connection. Later reads reconnect.
	Close() error
}

func failed(start time.Time, err error) ReadResult {
	return ReadResult{Err: err, Latency: time.Since(start)}
}

// timeoutFrom returns the time left before ctx's deadline, or def.
func timeoutFrom(ctx context.Context, def time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left > 0 {
			return left
		}
		return time.Millisecond
	}
	return def
}
