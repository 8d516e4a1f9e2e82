// Package link processes data channel PDUs outside of the real-time part of
// the Link Layer. It answers the LL Control PDUs that reach it, forwards
// L2CAP fragments to the reassembly engine and grants the right to initiate
// LLCP procedures.
package link

import (
	"errors"
	"fmt"

	"github.com/muxable/lelink/pkg/l2cap"
	"github.com/muxable/lelink/pkg/llcp"
	"github.com/muxable/lelink/pkg/pdu"
	"github.com/muxable/lelink/pkg/queue"
	"go.uber.org/zap"
)

// ErrInvalidState is returned when an LLCP procedure is initiated while
// another one is still outstanding.
var ErrInvalidState = errors.New("link: llcp procedure already in progress")

type options struct {
	logger    *zap.Logger
	l2capOpts []l2cap.Option
}

type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithL2CAPOptions configures the L2CAP state built by NewResponderFromConfig.
func WithL2CAPOptions(opts ...l2cap.Option) Option {
	return func(o *options) { o.l2capOpts = append(o.l2capOpts, opts...) }
}

func newOptions(opts []Option) options {
	o := options{logger: zap.L()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Responder is the data channel packet processor. It is driven by a single,
// non real-time context calling HasWork and ProcessOne.
type Responder struct {
	tx     queue.Producer
	rx     queue.Consumer
	l2cap  *l2cap.State
	logger *zap.Logger
}

func NewResponder(tx queue.Producer, rx queue.Consumer, l2 *l2cap.State, opts ...Option) *Responder {
	o := newOptions(opts)
	return &Responder{tx: tx, rx: rx, l2cap: l2, logger: o.logger}
}

// NewResponderFromConfig builds a Responder and its L2CAP state from the
// collaborators supplied by c.
func NewResponderFromConfig(c Config, opts ...Option) *Responder {
	o := newOptions(opts)
	tx, rx := c.Queues()
	l2 := l2cap.NewState(c.ChannelMapper(), append([]l2cap.Option{l2cap.WithLogger(o.logger)}, o.l2capOpts...)...)
	return &Responder{tx: tx, rx: rx, l2cap: l2, logger: o.logger}
}

// HasWork reports whether ProcessOne has an incoming PDU to process.
func (r *Responder) HasWork() bool {
	return r.rx.HasData()
}

// ProcessOne processes the PDU at the head of the receive queue. It returns
// queue.ErrEOF if there is none. A PDU whose response does not fit into the
// transmit queue stays queued and queue.ErrFull is returned; calling
// ProcessOne again retries it. L2CAP protocol errors are fatal to the
// connection.
func (r *Responder) ProcessOne() error {
	return r.rx.Consume(func(_ pdu.Header, p pdu.Pdu) queue.Consume {
		switch p := p.(type) {
		case pdu.Control:
			return r.control(p.Payload)
		case pdu.DataStart:
			r.logger.Debug("l2cap start", zap.Binary("message", p.Message))
			return r.L2CAP().ProcessStart(p.Message)
		case pdu.DataCont:
			r.logger.Debug("l2cap cont", zap.Binary("message", p.Message))
			return r.L2CAP().ProcessCont(p.Message)
		}
		panic(fmt.Sprintf("link: unhandled pdu %T", p))
	})
}

func (r *Responder) control(payload []byte) queue.Consume {
	op := llcp.Opcode(payload[0])
	cpdu, err := llcp.Unmarshal(payload)
	if err != nil {
		r.logger.Debug("<- undecodable LL control pdu",
			zap.Stringer("opcode", op),
			zap.Binary("payload", payload),
			zap.Error(err))
		return r.reply(&llcp.UnknownRsp{UnknownType: op})
	}
	r.logger.Info("<- LL control pdu", zap.Stringer("opcode", op), zap.Binary("payload", payload))

	switch cpdu.(type) {
	case *llcp.FeatureReq, *llcp.VersionInd:
		// answered by the real-time side before they are queued
		panic(fmt.Sprintf("link: %v not handled by the real-time layer", op))
	case *llcp.ConnectionUpdateInd,
		*llcp.ChannelMapInd,
		*llcp.TerminateInd,
		*llcp.UnknownRsp,
		*llcp.FeatureRsp,
		*llcp.RejectInd,
		*llcp.PeripheralFeatureReq,
		*llcp.ConnectionParamReq,
		*llcp.ConnectionParamRsp,
		*llcp.RejectExtInd,
		*llcp.PingReq,
		*llcp.PingRsp,
		*llcp.LengthReq,
		*llcp.LengthRsp,
		*llcp.Other:
		return r.reply(&llcp.UnknownRsp{UnknownType: op})
	}
	panic(fmt.Sprintf("link: unhandled control pdu %T", cpdu))
}

// reply consumes the incoming PDU iff the response fits the transmit queue.
// A response larger than the whole queue consumes it with the error.
func (r *Responder) reply(rsp llcp.ControlPdu) queue.Consume {
	err := produceControl(r.tx, rsp)
	if errors.Is(err, queue.ErrTooLarge) {
		return queue.Always(err)
	}
	if err != nil {
		r.logger.Debug("-> LL control pdu deferred", zap.Stringer("opcode", rsp.Opcode()), zap.Error(err))
	} else {
		r.logger.Info("-> LL control pdu", zap.Stringer("opcode", rsp.Opcode()))
	}
	return queue.OnSuccess(err)
}

func produceControl(tx queue.Producer, p llcp.ControlPdu) error {
	return tx.Produce(p.EncodedSize(), func(w *queue.Writer) (pdu.LLID, error) {
		b, err := p.Marshal()
		if err != nil {
			return 0, err
		}
		_, err = w.Write(b)
		return pdu.LLIDControl, err
	})
}

// L2CAP returns the L2CAP state bound to the transmit queue, for sending
// data outside of a response.
func (r *Responder) L2CAP() *l2cap.StateTx {
	return r.l2cap.Tx(r.tx)
}

// LLCP grants the right to initiate one LLCP procedure on conn. It fails
// with ErrInvalidState while a procedure is outstanding; otherwise conn is
// marked as having a procedure in progress until the real-time side calls
// Connection.CompleteProcedure.
func (r *Responder) LLCP(conn *Connection) (*LLCPTx, error) {
	if !conn.begin() {
		return nil, ErrInvalidState
	}
	return &LLCPTx{tx: r.tx, conn: conn, logger: r.logger}, nil
}
