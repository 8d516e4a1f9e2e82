// Package hcitest provides an in-memory controller for exercising code built
// on hci.Adapter.
package hcitest

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/muxable/lelink/pkg/hci"
	"github.com/stretchr/testify/require"
)

// Responder answers a command written by the host with the packets the
// controller sends back.
type Responder func(cmd []byte) [][]byte

// Transport is an io.ReadWriteCloser standing in for an HCI socket.
type Transport struct {
	in      chan []byte
	written chan []byte
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	respond Responder
}

func NewTransport(respond Responder) *Transport {
	return &Transport{
		in:      make(chan []byte, 256),
		written: make(chan []byte, 256),
		closed:  make(chan struct{}),
		respond: respond,
	}
}

func (t *Transport) Read(p []byte) (int, error) {
	select {
	case b := <-t.in:
		return copy(p, b), nil
	case <-t.closed:
		return 0, io.EOF
	}
}

func (t *Transport) Write(p []byte) (int, error) {
	select {
	case <-t.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	b := bytes.Clone(p)
	t.mu.Lock()
	respond := t.respond
	t.mu.Unlock()
	if respond != nil && len(b) > 0 && hci.PacketType(b[0]) == hci.PacketTypeCommand {
		for _, r := range respond(b) {
			t.in <- r
		}
	}
	t.written <- b
	return len(p), nil
}

func (t *Transport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

// SetResponder replaces the command responder.
func (t *Transport) SetResponder(respond Responder) {
	t.mu.Lock()
	t.respond = respond
	t.mu.Unlock()
}

// Inject delivers a packet from the controller to the host.
func (t *Transport) Inject(tb testing.TB, p hci.Packet) {
	tb.Helper()
	b, err := p.Marshal()
	require.NoError(tb, err)
	t.in <- b
}

// Next returns the next packet written by the host.
func (t *Transport) Next(tb testing.TB) hci.Packet {
	tb.Helper()
	select {
	case b := <-t.written:
		p, err := hci.Unmarshal(b)
		if err != nil {
			// commands with parameters are returned raw
			return Raw(b)
		}
		return p
	case <-time.After(time.Second):
		require.FailNow(tb, "no packet written")
		return nil
	}
}

// NextACL skips written commands until an ACL data packet is found.
func (t *Transport) NextACL(tb testing.TB) *hci.ACLDataPacket {
	tb.Helper()
	for {
		if p, ok := t.Next(tb).(*hci.ACLDataPacket); ok {
			return p
		}
	}
}

// Idle asserts that the host writes nothing for d.
func (t *Transport) Idle(tb testing.TB, d time.Duration) {
	tb.Helper()
	select {
	case b := <-t.written:
		require.FailNowf(tb, "unexpected packet", "%x", b)
	case <-time.After(d):
	}
}

// Raw is a written packet that hci.Unmarshal does not decode.
type Raw []byte

func (r Raw) Marshal() ([]byte, error) {
	return r, nil
}

func (r Raw) Unmarshal(b []byte) error {
	return nil
}

// Opcode returns the opcode of a raw command packet.
func (r Raw) Opcode() hci.Opcode {
	if len(r) < 3 {
		return 0
	}
	return hci.Opcode(binary.LittleEndian.Uint16(r[1:]))
}

// Opcode returns the opcode of a command packet.
func Opcode(cmd []byte) hci.Opcode {
	return Raw(cmd).Opcode()
}

// CommandComplete builds a Command Complete event with a success status
// followed by params.
func CommandComplete(op hci.Opcode, params ...byte) []byte {
	b, _ := (&hci.CommandCompleteEventPacket{
		NumCommandPackets: 1,
		CommandOpcode:     op,
		ReturnParameters:  append([]byte{byte(hci.StatusSuccess)}, params...),
	}).Marshal()
	return b
}

// CommandStatus builds a Command Status event.
func CommandStatus(op hci.Opcode, status hci.Status) []byte {
	b, _ := (&hci.CommandStatusEventPacket{
		Status:            status,
		NumCommandPackets: 1,
		CommandOpcode:     op,
	}).Marshal()
	return b
}

// Succeed answers every command with an empty successful completion, or a
// successful status for the commands that complete asynchronously.
func Succeed(cmd []byte) [][]byte {
	switch op := Opcode(cmd); op {
	case hci.OpcodeLEConnectionUpdate, hci.OpcodeDisconnect:
		return [][]byte{CommandStatus(op, hci.StatusSuccess)}
	default:
		return [][]byte{CommandComplete(op)}
	}
}
