// Package hci drives a Bluetooth controller through the Host Controller
// Interface: packet codec, Linux user channel socket, command round trips and
// ACL buffer accounting.
package hci

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrCommandFailed = errors.New("hci: command failed")
	ErrClosed        = errors.New("hci: adapter closed")
)

// Handler observes the packets read from the transport. Handlers run on the
// read loop in packet order and must not block. A transport failure is
// delivered once with a nil packet.
type Handler func(Packet, error)

type Option func(*Adapter)

func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithACLBuffers seeds the controller buffer accounting that
// LEReadBufferSize otherwise sets.
func WithACLBuffers(mtu, packets uint16) Option {
	return func(a *Adapter) {
		a.aclMTU = mtu
		a.aclRemaining = packets
	}
}

// WithConnBuffer sets how many packets a Conn holds before it drops.
func WithConnBuffer(n int) Option {
	return func(a *Adapter) { a.connBuffer = n }
}

type Adapter struct {
	transport  io.ReadWriteCloser
	logger     *zap.Logger
	handlers   *hashmap.Map[string, Handler]
	connBuffer int
	done       chan struct{}

	// guarded by cond.L
	cond         *sync.Cond
	aclMTU       uint16
	aclRemaining uint16
	aclPending   map[uint16]uint16
	err          error
}

// NewAdapter starts reading packets from t. The adapter owns t from then on.
func NewAdapter(t io.ReadWriteCloser, opts ...Option) *Adapter {
	a := &Adapter{
		transport:  t,
		logger:     zap.L(),
		handlers:   hashmap.New[string, Handler](),
		connBuffer: 64,
		done:       make(chan struct{}),
		cond:       sync.NewCond(&sync.Mutex{}),
		aclMTU:     27,
		aclPending: make(map[uint16]uint16),
	}
	for _, opt := range opts {
		opt(a)
	}
	go a.readLoop()
	return a
}

func (a *Adapter) readLoop() {
	defer close(a.done)
	buf := make([]byte, 5+math.MaxUint16)
	for {
		n, err := a.transport.Read(buf)
		if err != nil {
			a.fail(err)
			return
		}
		a.logger.Debug("bluetooth reading", zap.String("packet", fmt.Sprintf("%x", buf[:n])))
		p, err := Unmarshal(bytes.Clone(buf[:n]))
		if err != nil {
			a.logger.Warn("dropping undecodable packet", zap.Error(err), zap.Binary("packet", buf[:n]))
			continue
		}
		a.account(p)
		a.handlers.Range(func(_ string, h Handler) bool {
			h(p, nil)
			return true
		})
	}
}

// account returns controller buffers to the writers.
func (a *Adapter) account(p Packet) {
	switch p := p.(type) {
	case *NumberOfCompletedPacketsEventPacket:
		a.cond.L.Lock()
		for _, h := range p.Handles {
			a.aclRemaining += h.NumCompleted
			if a.aclPending[h.ConnectionHandle] > h.NumCompleted {
				a.aclPending[h.ConnectionHandle] -= h.NumCompleted
			} else {
				delete(a.aclPending, h.ConnectionHandle)
			}
		}
		a.cond.Broadcast()
		a.cond.L.Unlock()
	case *DisconnectionCompleteEventPacket:
		a.cond.L.Lock()
		a.aclRemaining += a.aclPending[p.ConnectionHandle]
		delete(a.aclPending, p.ConnectionHandle)
		a.cond.Broadcast()
		a.cond.L.Unlock()
	}
}

func (a *Adapter) fail(err error) {
	a.cond.L.Lock()
	a.err = err
	a.cond.Broadcast()
	a.cond.L.Unlock()
	a.logger.Debug("bluetooth transport closed", zap.Error(err))
	a.handlers.Range(func(_ string, h Handler) bool {
		h(nil, err)
		return true
	})
}

// Subscribe registers h until the returned cancel function is called.
func (a *Adapter) Subscribe(h Handler) (cancel func()) {
	id := uuid.NewString()
	a.handlers.Set(id, h)
	return func() { a.handlers.Del(id) }
}

func (a *Adapter) closedErr() error {
	a.cond.L.Lock()
	defer a.cond.L.Unlock()
	if a.err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, a.err)
	}
	return nil
}

func (a *Adapter) WritePacket(p Packet) error {
	if err := a.closedErr(); err != nil {
		return err
	}
	buf, err := p.Marshal()
	if err != nil {
		return err
	}
	a.logger.Debug("bluetooth writing", zap.String("packet", fmt.Sprintf("%x", buf)))
	_, err = a.transport.Write(buf)
	return err
}

// roundTrip writes p and waits for the first packet accepted by match.
func (a *Adapter) roundTrip(ctx context.Context, p CommandPacket, match func(Packet) bool) (Packet, error) {
	done := make(chan Packet, 1)
	failed := make(chan error, 1)
	cancel := a.Subscribe(func(q Packet, err error) {
		if err != nil {
			select {
			case failed <- err:
			default:
			}
			return
		}
		if match(q) {
			select {
			case done <- q:
			default:
			}
		}
	})
	defer cancel()
	if err := a.WritePacket(p); err != nil {
		return nil, err
	}
	select {
	case q := <-done:
		return q, nil
	case err := <-failed:
		return nil, fmt.Errorf("%w: %v", ErrClosed, err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// op runs a command answered by Command Complete and returns the return
// parameters after the status byte.
func (a *Adapter) op(ctx context.Context, p CommandPacket) ([]byte, error) {
	q, err := a.roundTrip(ctx, p, func(q Packet) bool {
		c, ok := q.(*CommandCompleteEventPacket)
		return ok && c.CommandOpcode == p.Opcode()
	})
	if err != nil {
		return nil, err
	}
	buf := q.(*CommandCompleteEventPacket).ReturnParameters
	if len(buf) == 0 {
		return nil, io.ErrShortBuffer
	}
	if buf[0] != byte(StatusSuccess) {
		return nil, fmt.Errorf("%w: %v %v", ErrCommandFailed, p.Opcode(), Status(buf[0]))
	}
	return buf[1:], nil
}

// opStatus runs a command answered by Command Status.
func (a *Adapter) opStatus(ctx context.Context, p CommandPacket) error {
	q, err := a.roundTrip(ctx, p, func(q Packet) bool {
		c, ok := q.(*CommandStatusEventPacket)
		return ok && c.CommandOpcode == p.Opcode()
	})
	if err != nil {
		return err
	}
	if s := q.(*CommandStatusEventPacket).Status; s != StatusSuccess {
		return fmt.Errorf("%w: %v %v", ErrCommandFailed, p.Opcode(), s)
	}
	return nil
}

func (a *Adapter) Reset(ctx context.Context) error {
	_, err := a.op(ctx, NewGenericCommandPacket(OpcodeReset))
	return err
}

func (a *Adapter) ReadBDAddr(ctx context.Context) (BDAddr, error) {
	var addr BDAddr
	buf, err := a.op(ctx, NewGenericCommandPacket(OpcodeReadBDAddr))
	if err != nil {
		return addr, err
	}
	if copy(addr[:], buf) != 6 {
		return addr, io.ErrShortBuffer
	}
	return addr, nil
}

func (a *Adapter) SetEventMask(ctx context.Context, mask EventMask) error {
	_, err := a.op(ctx, &SetEventMaskCommandPacket{EventMask: mask})
	return err
}

func (a *Adapter) LESetEventMask(ctx context.Context, mask LEEventMask) error {
	_, err := a.op(ctx, &LESetEventMaskCommandPacket{LEEventMask: mask})
	return err
}

// LEReadBufferSize reads the controller's LE ACL buffers and resets the
// buffer accounting to them.
func (a *Adapter) LEReadBufferSize(ctx context.Context) (*LEReadBufferSizeResponse, error) {
	buf, err := a.op(ctx, NewGenericCommandPacket(OpcodeLEReadBufferSize))
	if err != nil {
		return nil, err
	}
	if len(buf) < 3 {
		return nil, io.ErrShortBuffer
	}
	r := &LEReadBufferSizeResponse{
		LEACLDataPacketLength:    binary.LittleEndian.Uint16(buf[0:2]),
		TotalNumLEACLDataPackets: buf[2],
	}
	if len(buf) >= 6 {
		r.ISODataPacketLength = binary.LittleEndian.Uint16(buf[3:5])
		r.TotalNumISODataPackets = buf[5]
	}

	a.cond.L.Lock()
	if r.LEACLDataPacketLength > 0 {
		a.aclMTU = r.LEACLDataPacketLength
	}
	a.aclRemaining = uint16(r.TotalNumLEACLDataPackets)
	a.cond.Broadcast()
	a.cond.L.Unlock()
	return r, nil
}

func (a *Adapter) LEReadSupportedStates(ctx context.Context) (LESupportedStates, error) {
	buf, err := a.op(ctx, NewGenericCommandPacket(OpcodeLEReadSupportedStates))
	if err != nil {
		return 0, err
	}
	if len(buf) < 8 {
		return 0, io.ErrShortBuffer
	}
	return LESupportedStates(binary.LittleEndian.Uint64(buf[0:8])), nil
}

func (a *Adapter) LESetAdvertisingParameters(ctx context.Context, p *LESetAdvertisingParametersCommandPacket) error {
	if err := p.normalize(); err != nil {
		return err
	}
	_, err := a.op(ctx, p)
	return err
}

func (a *Adapter) LESetAdvertisingData(ctx context.Context, data ...DataType) error {
	_, err := a.op(ctx, &LESetAdvertisingDataCommandPacket{AdvertisingData: data})
	return err
}

func (a *Adapter) LESetAdvertisingEnable(ctx context.Context, enable bool) error {
	_, err := a.op(ctx, &LESetAdvertisingEnableCommandPacket{AdvertisingEnable: enable})
	return err
}

// LEConnectionUpdate asks the controller to update the connection
// parameters. The outcome arrives as an LEConnectionUpdateCompleteEventPacket.
func (a *Adapter) LEConnectionUpdate(ctx context.Context, p *LEConnectionUpdateCommandPacket) error {
	return a.opStatus(ctx, p)
}

// Disconnect terminates a connection. Completion arrives as a
// DisconnectionCompleteEventPacket.
func (a *Adapter) Disconnect(ctx context.Context, handle uint16, reason Status) error {
	return a.opStatus(ctx, &DisconnectCommandPacket{ConnectionHandle: handle, Reason: reason})
}

// WriteACL sends payload on a connection, split into controller sized
// packets. Each packet waits for a free controller buffer.
func (a *Adapter) WriteACL(ctx context.Context, handle uint16, pb PacketBoundary, payload []byte) error {
	for i := 0; ; {
		mtu, err := a.acquire(ctx, handle)
		if err != nil {
			return err
		}
		j := i + mtu
		if j > len(payload) {
			j = len(payload)
		}
		p := &ACLDataPacket{
			ConnectionHandle:   handle,
			PacketBoundaryFlag: pb,
			Payload:            payload[i:j],
		}
		if err := a.WritePacket(p); err != nil {
			return err
		}
		if i = j; i >= len(payload) {
			return nil
		}
		pb = PacketBoundaryContinuing
	}
}

// acquire takes one controller buffer for handle and returns the ACL MTU.
func (a *Adapter) acquire(ctx context.Context, handle uint16) (int, error) {
	stop := context.AfterFunc(ctx, func() {
		a.cond.L.Lock()
		a.cond.Broadcast()
		a.cond.L.Unlock()
	})
	defer stop()

	a.cond.L.Lock()
	defer a.cond.L.Unlock()
	for a.aclRemaining == 0 && a.err == nil && ctx.Err() == nil {
		a.cond.Wait()
	}
	if a.err != nil {
		return 0, fmt.Errorf("%w: %v", ErrClosed, a.err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a.aclRemaining--
	a.aclPending[handle]++
	return int(a.aclMTU), nil
}

// Close closes the transport and waits for the read loop to finish.
func (a *Adapter) Close() error {
	err := a.transport.Close()
	<-a.done
	return err
}
