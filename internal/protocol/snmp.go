package protocol

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"
	"go.uber.org/zap"

	"github.com/tonhe/fieldscan/internal/device"
)

// DefaultSNMPPort is used when an SNMP device is configured with the
// Modbus default port.
const DefaultSNMPPort = 161

type snmpConn struct {
	mu     sync.Mutex
	client *gosnmp.GoSNMP
}

// SNMPClient exposes SNMP integer objects as registers: register n of a
// device is the object <base_oid>.<n>.
type SNMPClient struct {
	timeout    time.Duration
	logger     *zap.Logger
	exceptions *ExceptionLogger

	mu    sync.Mutex
	conns map[device.Key]*snmpConn
}

// NewSNMPClient creates a pooled SNMP client.
func NewSNMPClient(timeout time.Duration, logger *zap.Logger, exceptions *ExceptionLogger) *SNMPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SNMPClient{
		timeout:    timeout,
		logger:     logger,
		exceptions: exceptions,
		conns:      make(map[device.Key]*snmpConn),
	}
}

// newGoSNMP builds a v1 or v2c client for dev.
func newGoSNMP(dev device.Config, timeout time.Duration) (*gosnmp.GoSNMP, error) {
	port := dev.Port
	if port == 0 || port == device.DefaultPort {
		port = DefaultSNMPPort
	}
	client := &gosnmp.GoSNMP{
		Target:    dev.Host,
		Port:      uint16(port),
		Community: dev.Community,
		Timeout:   timeout,
		Retries:   1,
		MaxOids:   gosnmp.MaxOids,
	}
	switch dev.Version {
	case "1":
		client.Version = gosnmp.Version1
	case "2c", "":
		client.Version = gosnmp.Version2c
	default:
		return nil, fmt.Errorf("unsupported SNMP version: %s", dev.Version)
	}
	return client, nil
}

func (c *SNMPClient) conn(dev device.Config) (*snmpConn, error) {
	key := dev.Key()
	c.mu.Lock()
	defer c.mu.Unlock()
	if sc, ok := c.conns[key]; ok {
		return sc, nil
	}
	client, err := newGoSNMP(dev, c.timeout)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", dev.Host, err)
	}
	sc := &snmpConn{client: client}
	c.conns[key] = sc
	return sc, nil
}

func (c *SNMPClient) discard(key device.Key, sc *snmpConn) {
	c.mu.Lock()
	if cur, ok := c.conns[key]; ok && cur == sc {
		delete(c.conns, key)
	}
	c.mu.Unlock()
	if sc.client.Conn != nil {
		sc.client.Conn.Close()
	}
}

// ReadRegisters implements Client with chunked GET requests.
func (c *SNMPClient) ReadRegisters(ctx context.Context, req ReadRequest) ReadResult {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return failed(start, err)
	}
	sc, err := c.conn(req.Device)
	if err != nil {
		c.exceptions.Log("connect", req.Device, req.StartAddress, req.Count, err)
		return failed(start, err)
	}

	oids := registerOIDs(req.Device.BaseOID, req.StartAddress, req.Count)
	values := make([]uint16, 0, req.Count)

	sc.mu.Lock()
	sc.client.Timeout = timeoutFrom(ctx, c.timeout)
	chunk := sc.client.MaxOids
	if chunk <= 0 {
		chunk = gosnmp.MaxOids
	}
	for i := 0; i < len(oids) && err == nil; i += chunk {
		end := min(i+chunk, len(oids))
		var pkt *gosnmp.SnmpPacket
		pkt, err = sc.client.Get(oids[i:end])
		if err == nil {
			values, err = appendPDUValues(values, pkt.Variables)
		}
	}
	sc.mu.Unlock()

	if err != nil {
		c.exceptions.Log("get", req.Device, req.StartAddress, req.Count, err)
		c.discard(req.Device.Key(), sc)
		return failed(start, err)
	}
	return ReadResult{Values: values, Latency: time.Since(start)}
}

func registerOIDs(base string, start, count int) []string {
	base = strings.TrimSuffix(base, ".")
	oids := make([]string, count)
	for i := range oids {
		oids[i] = fmt.Sprintf("%s.%d", base, start+i)
	}
	return oids
}

// appendPDUValues converts numeric PDUs to 16-bit register values.
func appendPDUValues(dst []uint16, vars []gosnmp.SnmpPDU) ([]uint16, error) {
	for _, v := range vars {
		switch v.Type {
		case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
			return dst, fmt.Errorf("no value for %s", v.Name)
		case gosnmp.OctetString, gosnmp.ObjectIdentifier:
			return dst, fmt.Errorf("non-numeric value for %s", v.Name)
		}
		dst = append(dst, uint16(gosnmp.ToBigInt(v.Value).Uint64()))
	}
	return dst, nil
}

// Close closes every pooled connection.
func (c *SNMPClient) Close() error {
	c.mu.Lock()
	conns := c.conns
	c.conns = make(map[device.Key]*snmpConn)
	c.mu.Unlock()
	for _, sc := range conns {
		if sc.client.Conn != nil {
			sc.client.Conn.Close()
		}
	}
	return nil
}
