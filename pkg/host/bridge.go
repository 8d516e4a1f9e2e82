// Package host stands in for the real-time Link Layer when the controller is
// reached over HCI. A Bridge moves ACL fragments between an hci.Conn and the
// record queues and turns queued LL control requests into HCI commands. Serve
// drives a link.Responder against the same queues.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/muxable/lelink/pkg/hci"
	"github.com/muxable/lelink/pkg/link"
	"github.com/muxable/lelink/pkg/llcp"
	"github.com/muxable/lelink/pkg/pdu"
	"github.com/muxable/lelink/pkg/queue"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrDisconnected is returned by Bridge.Run once the connection is gone.
var ErrDisconnected = errors.New("host: disconnected")

// DefaultPollInterval is how long the loops wait for queue space or data.
const DefaultPollInterval = time.Millisecond

type Option func(*options)

type options struct {
	logger   *zap.Logger
	interval time.Duration
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

func newOptions(opts []Option) options {
	o := options{logger: zap.L(), interval: DefaultPollInterval}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Link is the controller side of one connection.
type Link interface {
	Packets() <-chan hci.Packet
	Err() error
	Write(ctx context.Context, pb hci.PacketBoundary, payload []byte) error
	Update(ctx context.Context, p hci.LEConnectionUpdateCommandPacket) error
}

type Bridge struct {
	ctrl    Link
	conn    *link.Connection
	rx      queue.Producer
	tx      queue.Consumer
	logger  *zap.Logger
	options options
}

// NewBridge connects l to the queues of a Responder: inbound fragments are
// produced into rx and records produced into tx are sent to l.
func NewBridge(l Link, conn *link.Connection, rx queue.Producer, tx queue.Consumer, opts ...Option) *Bridge {
	o := newOptions(opts)
	return &Bridge{
		ctrl:    l,
		conn:    conn,
		rx:      rx,
		tx:      tx,
		logger:  o.logger.With(zap.Uint16("handle", conn.Handle())),
		options: o,
	}
}

// Run moves traffic until ctx is done or the connection ends. It returns
// ErrDisconnected after a disconnection.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg           sync.WaitGroup
		inErr, txErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		inErr = b.inbound(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		txErr = b.outbound(ctx)
	}()
	wg.Wait()
	return multierr.Combine(ignoreCanceled(inErr), ignoreCanceled(txErr))
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (b *Bridge) inbound(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-b.ctrl.Packets():
			if !ok {
				if err := b.ctrl.Err(); err != nil {
					return err
				}
				return ErrDisconnected
			}
			if err := b.handle(ctx, p); err != nil {
				return err
			}
		}
	}
}

func (b *Bridge) handle(ctx context.Context, p hci.Packet) error {
	switch p := p.(type) {
	case *hci.ACLDataPacket:
		var llid pdu.LLID
		switch p.PacketBoundaryFlag {
		case hci.PacketBoundaryFirstFlushable:
			llid = pdu.LLIDDataStart
		case hci.PacketBoundaryContinuing:
			llid = pdu.LLIDDataCont
		default:
			b.logger.Warn("dropping acl packet", zap.Uint8("pb", uint8(p.PacketBoundaryFlag)))
			return nil
		}
		return b.receive(ctx, llid, p.Payload)
	case *hci.LEConnectionUpdateCompleteEventPacket:
		if p.Status == hci.StatusSuccess {
			b.conn.SetParams(link.Params{
				Interval: p.ConnectionInterval,
				Latency:  p.PeripheralLatency,
				Timeout:  p.SupervisionTimeout,
			})
		}
		b.conn.CompleteProcedure()
		b.logger.Info("connection updated",
			zap.Stringer("status", p.Status),
			zap.Uint16("interval", p.ConnectionInterval),
			zap.Uint16("latency", p.PeripheralLatency),
			zap.Uint16("timeout", p.SupervisionTimeout))
	case *hci.DisconnectionCompleteEventPacket:
		b.logger.Info("disconnected", zap.Stringer("reason", p.Reason))
		return ErrDisconnected
	}
	return nil
}

// receive produces an ACL payload as one or more records, splitting at the
// largest record the queue frames.
func (b *Bridge) receive(ctx context.Context, llid pdu.LLID, payload []byte) error {
	for first := true; first || len(payload) > 0; first = false {
		n := len(payload)
		if n > pdu.MaxPayloadSize {
			n = pdu.MaxPayloadSize
		}
		chunk := payload[:n]
		err := b.wait(ctx, func() error {
			return b.rx.Produce(len(chunk), func(w *queue.Writer) (pdu.LLID, error) {
				_, err := w.Write(chunk)
				return llid, err
			})
		})
		if errors.Is(err, queue.ErrTooLarge) {
			// part of the frame may already be queued; it cannot be completed
			return fmt.Errorf("host: %d byte fragment in a %d byte receive queue: %w", len(chunk), b.rx.Capacity(), err)
		}
		if err != nil {
			return err
		}
		payload = payload[n:]
		llid = pdu.LLIDDataCont
	}
	return nil
}

// wait retries fn while it reports a full queue.
func (b *Bridge) wait(ctx context.Context, fn func() error) error {
	for {
		err := fn()
		if !errors.Is(err, queue.ErrFull) {
			return err
		}
		if err := sleep(ctx, b.options.interval); err != nil {
			return err
		}
	}
}

func (b *Bridge) outbound(ctx context.Context) error {
	for {
		var sendErr error
		err := b.tx.Consume(func(_ pdu.Header, p pdu.Pdu) queue.Consume {
			sendErr = b.send(ctx, p)
			return queue.Always(sendErr)
		})
		switch {
		case errors.Is(err, queue.ErrEOF):
			if err := sleep(ctx, b.options.interval); err != nil {
				return err
			}
		case sendErr != nil:
			return sendErr
		case err != nil:
			b.logger.Warn("dropping undecodable record", zap.Error(err))
		}
	}
}

func (b *Bridge) send(ctx context.Context, p pdu.Pdu) error {
	switch p := p.(type) {
	case pdu.DataStart:
		return b.ctrl.Write(ctx, hci.PacketBoundaryFirstNonFlushable, p.Message)
	case pdu.DataCont:
		return b.ctrl.Write(ctx, hci.PacketBoundaryContinuing, p.Message)
	case pdu.Control:
		return b.control(ctx, p.Payload)
	}
	return nil
}

// control maps the LL control PDUs the host may originate onto HCI. The
// controller runs LLCP itself, so anything else cannot be forwarded.
func (b *Bridge) control(ctx context.Context, payload []byte) error {
	cpdu, err := llcp.Unmarshal(payload)
	if err != nil {
		b.logger.Warn("dropping undecodable control pdu", zap.Binary("payload", payload), zap.Error(err))
		return nil
	}
	req, ok := cpdu.(*llcp.ConnectionParamReq)
	if !ok {
		b.logger.Warn("dropping control pdu the controller owns", zap.Stringer("opcode", cpdu.Opcode()))
		return nil
	}
	err = b.ctrl.Update(ctx, hci.LEConnectionUpdateCommandPacket{
		IntervalMin:        req.IntervalMin,
		IntervalMax:        req.IntervalMax,
		MaxLatency:         req.Latency,
		SupervisionTimeout: req.Timeout,
	})
	if errors.Is(err, hci.ErrCommandFailed) {
		// no completion event follows a rejected command
		b.logger.Warn("connection update rejected", zap.Error(err))
		b.conn.CompleteProcedure()
		return nil
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
