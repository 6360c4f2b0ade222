package realtime

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/example/shiftline/internal/application"
)

// ErrConnectionClosed is returned when sending on a disconnected connection.
var ErrConnectionClosed = errors.New("realtime: connection closed")

// Sender is the transport side of a connection. Send must not block;
// implementations drop frames they cannot queue and report an error.
type Sender interface {
	Send(frame []byte) error
	Close()
}

// Connection is one live transport session of an authenticated principal.
type Connection struct {
	id          string
	principal   application.Principal
	sender      Sender
	connectedAt time.Time
	closed      atomic.Bool
}

// NewConnection wraps a transport session.
func NewConnection(id string, principal application.Principal, sender Sender) *Connection {
	return &Connection{id: id, principal: principal, sender: sender, connectedAt: time.Now()}
}

// ID returns the transport-assigned connection identifier.
func (c *Connection) ID() string { return c.id }

// Principal returns the authenticated owner of the connection.
func (c *Connection) Principal() application.Principal { return c.principal }

// ConnectedAt returns when the connection was created.
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// Closed reports whether the connection reached its terminal state.
func (c *Connection) Closed() bool { return c.closed.Load() }

// SendFrame queues an already encoded frame.
func (c *Connection) SendFrame(frame []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	return c.sender.Send(frame)
}

// Send encodes and queues a single event.
func (c *Connection) Send(event string, payload any) error {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	return c.SendFrame(frame)
}

// close marks the connection disconnected and closes its transport once.
func (c *Connection) close() {
	if c.closed.CompareAndSwap(false, true) && c.sender != nil {
		c.sender.Close()
	}
}
