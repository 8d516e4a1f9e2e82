package link

import (
	"sync"

	"go.uber.org/atomic"
)

// Params are the timing parameters of a connection. Interval is in units of
// 1.25 ms and Timeout (the supervision timeout) in units of 10 ms.
type Params struct {
	Interval uint16
	Latency  uint16
	Timeout  uint16
}

// ConnectionView is read only access to a Connection.
type ConnectionView interface {
	Handle() uint16
	Params() Params
	LLCPInitiated() bool
}

// Connection is the Link Layer state of one connection shared between the
// real-time side and the Responder.
type Connection struct {
	handle uint16

	// llcpInitiated is set while a procedure started by this device is
	// waiting for the peer.
	llcpInitiated atomic.Bool

	mu     sync.Mutex
	params Params
}

func NewConnection(handle uint16, params Params) *Connection {
	return &Connection{handle: handle, params: params}
}

func (c *Connection) Handle() uint16 {
	return c.handle
}

func (c *Connection) Params() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// SetParams records parameters negotiated by the real-time side.
func (c *Connection) SetParams(p Params) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = p
}

func (c *Connection) LLCPInitiated() bool {
	return c.llcpInitiated.Load()
}

// CompleteProcedure marks the outstanding LLCP procedure as finished so that
// a new one may be initiated. It is called by the real-time side.
func (c *Connection) CompleteProcedure() {
	c.llcpInitiated.Store(false)
}

// begin sets the initiated flag. It returns false if it was already set.
func (c *Connection) begin() bool {
	return c.llcpInitiated.CAS(false, true)
}
