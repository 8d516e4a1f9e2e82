package hci_test

import (
	"context"
	"testing"
	"time"

	"github.com/muxable/lelink/pkg/hci"
	"github.com/muxable/lelink/pkg/hci/hcitest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newAdapter(t *testing.T, respond hcitest.Responder, opts ...hci.Option) (*hci.Adapter, *hcitest.Transport) {
	tr := hcitest.NewTransport(respond)
	a := hci.NewAdapter(tr, append([]hci.Option{hci.WithLogger(zaptest.NewLogger(t))}, opts...)...)
	t.Cleanup(func() { a.Close() })
	return a, tr
}

func timeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestCommandRoundTrip(t *testing.T) {
	a, tr := newAdapter(t, func(cmd []byte) [][]byte {
		switch op := hcitest.Opcode(cmd); op {
		case hci.OpcodeReadBDAddr:
			return [][]byte{hcitest.CommandComplete(op, 1, 2, 3, 4, 5, 6)}
		default:
			return hcitest.Succeed(cmd)
		}
	})

	require.NoError(t, a.Reset(timeout(t)))
	assert.Equal(t, hci.OpcodeReset, tr.Next(t).(hci.CommandPacket).Opcode())

	addr, err := a.ReadBDAddr(timeout(t))
	require.NoError(t, err)
	assert.Equal(t, hci.BDAddr{1, 2, 3, 4, 5, 6}, addr)

	require.NoError(t, a.SetEventMask(timeout(t), hci.EventMaskLEMetaEvent))
	require.NoError(t, a.LESetEventMask(timeout(t), hci.LEEventMaskConnectionUpdateCompleteEvent))
	require.NoError(t, a.LESetAdvertisingParameters(timeout(t), &hci.LESetAdvertisingParametersCommandPacket{}))
	require.NoError(t, a.LESetAdvertisingData(timeout(t), hci.CompleteLocalName("lelink")))
	require.NoError(t, a.LESetAdvertisingEnable(timeout(t), true))
	require.NoError(t, a.LEConnectionUpdate(timeout(t), &hci.LEConnectionUpdateCommandPacket{ConnectionHandle: 0x40}))
}

func TestCommandFailed(t *testing.T) {
	a, _ := newAdapter(t, func(cmd []byte) [][]byte {
		op := hcitest.Opcode(cmd)
		if op == hci.OpcodeLEConnectionUpdate {
			return [][]byte{hcitest.CommandStatus(op, hci.StatusUnknownConnectionIdentifier)}
		}
		b, _ := (&hci.CommandCompleteEventPacket{
			NumCommandPackets: 1,
			CommandOpcode:     op,
			ReturnParameters:  []byte{byte(hci.StatusCommandDisallowed)},
		}).Marshal()
		return [][]byte{b}
	})

	assert.ErrorIs(t, a.Reset(timeout(t)), hci.ErrCommandFailed)
	assert.ErrorIs(t, a.LEConnectionUpdate(timeout(t), &hci.LEConnectionUpdateCommandPacket{}), hci.ErrCommandFailed)
}

func TestCommandContext(t *testing.T) {
	a, _ := newAdapter(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Reset(ctx), context.DeadlineExceeded)
}

func TestWriteACLWaitsForBuffers(t *testing.T) {
	a, tr := newAdapter(t, func(cmd []byte) [][]byte {
		// 4 byte packets, two controller buffers
		return [][]byte{hcitest.CommandComplete(hci.OpcodeLEReadBufferSize, 0x04, 0x00, 0x02)}
	})
	r, err := a.LEReadBufferSize(timeout(t))
	require.NoError(t, err)
	assert.Equal(t, uint16(4), r.LEACLDataPacketLength)
	assert.Equal(t, uint8(2), r.TotalNumLEACLDataPackets)
	tr.Next(t)

	done := make(chan error, 1)
	go func() {
		done <- a.WriteACL(context.Background(), 0x40, hci.PacketBoundaryFirstNonFlushable, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	}()

	first := tr.NextACL(t)
	assert.Equal(t, hci.PacketBoundaryFirstNonFlushable, first.PacketBoundaryFlag)
	assert.Equal(t, []byte{1, 2, 3, 4}, first.Payload)
	second := tr.NextACL(t)
	assert.Equal(t, hci.PacketBoundaryContinuing, second.PacketBoundaryFlag)
	assert.Equal(t, []byte{5, 6, 7, 8}, second.Payload)

	// both buffers are in use
	tr.Idle(t, 20*time.Millisecond)
	tr.Inject(t, &hci.NumberOfCompletedPacketsEventPacket{Handles: []hci.CompletedPackets{{ConnectionHandle: 0x40, NumCompleted: 1}}})

	third := tr.NextACL(t)
	assert.Equal(t, hci.PacketBoundaryContinuing, third.PacketBoundaryFlag)
	assert.Equal(t, []byte{9, 10}, third.Payload)
	require.NoError(t, <-done)
}

func TestWriteACLContext(t *testing.T) {
	a, _ := newAdapter(t, nil, hci.WithACLBuffers(27, 0))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.WriteACL(ctx, 0x40, hci.PacketBoundaryFirstNonFlushable, []byte{1}), context.DeadlineExceeded)
}

func TestAcceptDeliversConnectionPackets(t *testing.T) {
	a, tr := newAdapter(t, nil, hci.WithACLBuffers(27, 1))

	accepted := make(chan *hci.Conn, 1)
	go func() {
		c, err := a.Accept(timeout(t))
		assert.NoError(t, err)
		accepted <- c
	}()
	// give Accept time to subscribe
	time.Sleep(20 * time.Millisecond)
	tr.Inject(t, &hci.LEConnectionCompleteEventPacket{Status: hci.StatusCommandDisallowed, ConnectionHandle: 0x41})
	tr.Inject(t, &hci.LEConnectionCompleteEventPacket{ConnectionHandle: 0x40, ConnectionInterval: 24, SupervisionTimeout: 400})
	tr.Inject(t, &hci.ACLDataPacket{ConnectionHandle: 0x40, PacketBoundaryFlag: hci.PacketBoundaryFirstFlushable, Payload: []byte{0x01}})
	tr.Inject(t, &hci.ACLDataPacket{ConnectionHandle: 0x41, PacketBoundaryFlag: hci.PacketBoundaryFirstFlushable, Payload: []byte{0x02}})
	tr.Inject(t, &hci.LEConnectionUpdateCompleteEventPacket{ConnectionHandle: 0x40, ConnectionInterval: 12})
	tr.Inject(t, &hci.DisconnectionCompleteEventPacket{ConnectionHandle: 0x40, Reason: hci.StatusRemoteUserTerminated})

	var c *hci.Conn
	select {
	case c = <-accepted:
	case <-time.After(time.Second):
		require.FailNow(t, "no connection accepted")
	}
	require.NotNil(t, c)
	assert.Equal(t, uint16(0x40), c.ConnectionHandle)
	assert.Equal(t, uint16(24), c.ConnectionInterval)

	var got []hci.Packet
	for p := range c.Packets() {
		got = append(got, p)
	}
	require.Len(t, got, 3)
	assert.Equal(t, []byte{0x01}, got[0].(*hci.ACLDataPacket).Payload)
	assert.Equal(t, uint16(12), got[1].(*hci.LEConnectionUpdateCompleteEventPacket).ConnectionInterval)
	assert.IsType(t, &hci.DisconnectionCompleteEventPacket{}, got[2])
	assert.NoError(t, c.Err())
}

func TestTransportFailure(t *testing.T) {
	a, tr := newAdapter(t, nil)
	errs := make(chan error, 1)
	go func() {
		_, err := a.Accept(context.Background())
		errs <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, tr.Close())

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(time.Second):
		require.FailNow(t, "Accept did not fail")
	}
	assert.ErrorIs(t, a.Reset(context.Background()), hci.ErrClosed)
	assert.ErrorIs(t, a.WriteACL(context.Background(), 0x40, hci.PacketBoundaryFirstNonFlushable, []byte{1}), hci.ErrClosed)
}
