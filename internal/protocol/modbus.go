package protocol

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"go.uber.org/zap"
)

// modbusConn is one pooled TCP connection. A connection carries one
// transaction at a time; the unit id is set per request.
type modbusConn struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// ModbusClient reads holding registers over Modbus TCP. It keeps one
// connection per host:port and discards a connection after any error so
// the next read reconnects.
type ModbusClient struct {
	timeout    time.Duration
	logger     *zap.Logger
	exceptions *ExceptionLogger

	mu    sync.Mutex
	conns map[string]*modbusConn
}

// NewModbusClient creates a pooled Modbus TCP client.
func NewModbusClient(timeout time.Duration, logger *zap.Logger, exceptions *ExceptionLogger) *ModbusClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModbusClient{
		timeout:    timeout,
		logger:     logger,
		exceptions: exceptions,
		conns:      make(map[string]*modbusConn),
	}
}

func (c *ModbusClient) conn(addr string) (*modbusConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mc, ok := c.conns[addr]; ok {
		return mc, nil
	}
	h := modbus.NewTCPClientHandler(addr)
	h.Timeout = c.timeout
	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	mc := &modbusConn{handler: h, client: modbus.NewClient(h)}
	c.conns[addr] = mc
	c.logger.Debug("modbus connection opened", zap.String("address", addr))
	return mc, nil
}

func (c *ModbusClient) discard(addr string, mc *modbusConn) {
	c.mu.Lock()
	if cur, ok := c.conns[addr]; ok && cur == mc {
		delete(c.conns, addr)
	}
	c.mu.Unlock()
	mc.handler.Close()
}

// ReadRegisters implements Client using function code 0x03.
func (c *ModbusClient) ReadRegisters(ctx context.Context, req ReadRequest) ReadResult {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return failed(start, err)
	}

	addr := req.Device.Key().Addr()
	mc, err := c.conn(addr)
	if err != nil {
		c.exceptions.Log("connect", req.Device, req.StartAddress, req.Count, err)
		return failed(start, err)
	}

	mc.mu.Lock()
	mc.handler.SlaveId = byte(req.Device.UnitID)
	mc.handler.Timeout = timeoutFrom(ctx, c.timeout)
	raw, err := mc.client.ReadHoldingRegisters(uint16(req.StartAddress), uint16(req.Count))
	mc.mu.Unlock()

	if err != nil {
		c.exceptions.Log("read_holding_registers", req.Device, req.StartAddress, req.Count, err)
		c.discard(addr, mc)
		return failed(start, fmt.Errorf("read %s unit %d @%d+%d: %w",
			addr, req.Device.UnitID, req.StartAddress, req.Count, err))
	}

	values, err := decodeRegisters(raw, req.Count)
	if err != nil {
		c.exceptions.Log("decode", req.Device, req.StartAddress, req.Count, err)
		return failed(start, err)
	}
	return ReadResult{Values: values, Latency: time.Since(start)}
}

// decodeRegisters converts a big-endian register payload.
func decodeRegisters(raw []byte, count int) ([]uint16, error) {
	if len(raw) != count*2 {
		return nil, fmt.Errorf("expected %d bytes, got %d", count*2, len(raw))
	}
	values := make([]uint16, count)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(raw[i*2:])
	}
	return values, nil
}

// Close closes every pooled connection.
func (c *ModbusClient) Close() error {
	c.mu.Lock()
	conns := c.conns
	c.conns = make(map[string]*modbusConn)
	c.mu.Unlock()

	var firstErr error
	for addr, mc := range conns {
		mc.mu.Lock()
		if err := mc.handler.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", addr, err)
		}
		mc.mu.Unlock()
	}
	return firstErr
}
