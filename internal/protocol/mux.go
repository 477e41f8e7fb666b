package protocol

import (
	"context"
	"errors"
	"fmt"
)

// Mux routes reads to a client by the device's protocol name.
type Mux struct {
	clients map[string]Client
}

// NewMux creates a router over clients keyed by protocol name.
func NewMux(clients map[string]Client) *Mux {
	return &Mux{clients: clients}
}

// ReadRegisters implements Client.
func (m *Mux) ReadRegisters(ctx context.Context, req ReadRequest) ReadResult {
	c, ok := m.clients[req.Device.Protocol]
	if !ok {
		return ReadResult{Err: fmt.Errorf("%w: %q", ErrUnsupportedProtocol, req.Device.Protocol)}
	}
	return c.ReadRegisters(ctx, req)
}

// Close closes every routed client.
func (m *Mux) Close() error {
	var errs []error
	closed := make(map[Client]bool, len(m.clients))
	for _, c := range m.clients {
		// One client may serve several protocols.
		if closed[c] {
			continue
		}
		closed[c] = true
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
