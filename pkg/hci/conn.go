package hci

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Conn is an LE connection accepted by the adapter.
type Conn struct {
	*Adapter

	ConnectionHandle     uint16
	Role                 Role
	PeerAddressType      PeerAddressType
	PeerAddress          BDAddr
	ConnectionInterval   uint16
	PeripheralLatency    uint16
	SupervisionTimeout   uint16
	CentralClockAccuracy CentralClockAccuracy

	packets chan Packet
	once    sync.Once
	cancel  func()
	err     error
}

// Accept waits for the next successful LE Connection Complete event.
func (a *Adapter) Accept(ctx context.Context) (*Conn, error) {
	conns := make(chan *Conn, 1)
	failed := make(chan error, 1)
	cancel := a.Subscribe(func(p Packet, err error) {
		if err != nil {
			select {
			case failed <- err:
			default:
			}
			return
		}
		e, ok := p.(*LEConnectionCompleteEventPacket)
		if !ok {
			return
		}
		if e.Status != StatusSuccess {
			a.logger.Warn("connection failed", zap.Stringer("status", e.Status))
			return
		}
		c := a.newConn(e)
		select {
		case conns <- c:
		default:
			// a second connection raced the first; leave it to the next Accept
			c.close(nil)
		}
	})
	defer cancel()
	if err := a.closedErr(); err != nil {
		return nil, err
	}
	select {
	case c := <-conns:
		return c, nil
	case err := <-failed:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// newConn subscribes the connection from the read loop so no packet that
// follows the connection event is missed.
func (a *Adapter) newConn(e *LEConnectionCompleteEventPacket) *Conn {
	c := &Conn{
		Adapter:              a,
		ConnectionHandle:     e.ConnectionHandle,
		Role:                 e.Role,
		PeerAddressType:      e.PeerAddressType,
		PeerAddress:          e.PeerAddress,
		ConnectionInterval:   e.ConnectionInterval,
		PeripheralLatency:    e.PeripheralLatency,
		SupervisionTimeout:   e.SupervisionTimeout,
		CentralClockAccuracy: e.CentralClockAccuracy,
		packets:              make(chan Packet, a.connBuffer),
	}
	c.cancel = a.Subscribe(c.handle)
	return c
}

func (c *Conn) handle(p Packet, err error) {
	if err != nil {
		c.close(err)
		return
	}
	switch p := p.(type) {
	case *ACLDataPacket:
		if p.ConnectionHandle != c.ConnectionHandle {
			// this packet is for another connection.
			return
		}
	case *LEConnectionUpdateCompleteEventPacket:
		if p.ConnectionHandle != c.ConnectionHandle {
			return
		}
	case *DisconnectionCompleteEventPacket:
		if p.ConnectionHandle != c.ConnectionHandle {
			return
		}
		c.deliver(p)
		c.close(nil)
		return
	default:
		return
	}
	c.deliver(p)
}

func (c *Conn) deliver(p Packet) {
	select {
	case c.packets <- p:
	default:
		c.logger.Warn("connection buffer full, dropping packet",
			zap.Uint16("handle", c.ConnectionHandle),
			zap.String("packet", packetName(p)))
	}
}

func (c *Conn) close(err error) {
	c.once.Do(func() {
		c.err = err
		c.cancel()
		close(c.packets)
	})
}

// Packets yields the ACL data, connection update and disconnection packets of
// this connection. The channel is closed after disconnection or transport
// failure; Err reports the latter.
func (c *Conn) Packets() <-chan Packet {
	return c.packets
}

// Err returns the transport error that closed Packets, if any.
func (c *Conn) Err() error {
	return c.err
}

// Write sends one upper layer fragment on the connection.
func (c *Conn) Write(ctx context.Context, pb PacketBoundary, payload []byte) error {
	return c.WriteACL(ctx, c.ConnectionHandle, pb, payload)
}

// Update requests new connection parameters for this connection.
func (c *Conn) Update(ctx context.Context, p LEConnectionUpdateCommandPacket) error {
	p.ConnectionHandle = c.ConnectionHandle
	return c.LEConnectionUpdate(ctx, &p)
}

func (c *Conn) Disconnect(ctx context.Context, reason Status) error {
	return c.Adapter.Disconnect(ctx, c.ConnectionHandle, reason)
}

func packetName(p Packet) string {
	switch p.(type) {
	case *ACLDataPacket:
		return "acl"
	case *LEConnectionUpdateCompleteEventPacket:
		return "connection update complete"
	case *DisconnectionCompleteEventPacket:
		return "disconnection complete"
	}
	return "unknown"
}
