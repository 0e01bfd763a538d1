package room

import (
	"sync"

	"github.com/michaelbrown/pairpad/internal/protocol"
)

// Conn is the hub's view of one client connection: an id and an ordered,
// bounded outbox that the transport drains.
type Conn struct {
	id string

	mu     sync.Mutex
	out    chan protocol.Envelope
	closed bool

	room string // guarded by the hub's lock
}

// NewConn creates a connection whose outbox holds up to buffer messages.
func NewConn(id string, buffer int) *Conn {
	if buffer < 1 {
		buffer = 1
	}
	return &Conn{id: id, out: make(chan protocol.Envelope, buffer)}
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// Outbox yields queued messages in send order. It is closed by Close.
func (c *Conn) Outbox() <-chan protocol.Envelope { return c.out }

// Send queues env without blocking. It reports false when the connection
// is closed or its outbox is full.
func (c *Conn) Send(env protocol.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.out <- env:
		return true
	default:
		return false
	}
}

// Close closes the outbox. It is safe to call more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
