package protocol

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tonhe/fieldscan/internal/device"
)

// ExceptionLogger records failed device operations with their full
// context and keeps a running count.
type ExceptionLogger struct {
	logger *zap.Logger
	count  atomic.Int64
}

// NewExceptionLogger writes to logger, which may be nil.
func NewExceptionLogger(logger *zap.Logger) *ExceptionLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExceptionLogger{logger: logger}
}

// Log records one failed operation.
func (e *ExceptionLogger) Log(op string, dev device.Config, start, count int, err error) {
	if e == nil {
		return
	}
	e.count.Add(1)
	e.logger.Error("device exception",
		zap.String("operation", op),
		zap.String("device", dev.Name),
		zap.String("address", dev.Key().Addr()),
		zap.Int("unit_id", dev.UnitID),
		zap.Int("start_address", start),
		zap.Int("count", count),
		zap.Error(err))
}

// Count returns the number of exceptions logged.
func (e *ExceptionLogger) Count() int64 {
	if e == nil {
		return 0
	}
	return e.count.Load()
}
