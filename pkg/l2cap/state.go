// Package l2cap implements the Logical Link Control and Adaptation Protocol
// on top of the data channel packet queues: reassembly of incoming frames,
// routing to fixed channel handlers and segmentation of outgoing frames.
package l2cap

import (
	"errors"
	"fmt"

	"github.com/muxable/lelink/pkg/pdu"
	"github.com/muxable/lelink/pkg/queue"
	"go.uber.org/zap"
)

var (
	// ErrMalformed is returned for a start fragment without a complete
	// header or with a length above the configured maximum.
	ErrMalformed = errors.New("l2cap: malformed start fragment")
	// ErrUnexpectedContinuation is returned for a continuation fragment
	// arriving while no frame is being reassembled.
	ErrUnexpectedContinuation = errors.New("l2cap: unexpected continuation fragment")
	// ErrUnexpectedStart is returned for a start fragment arriving before the
	// previous frame was complete.
	ErrUnexpectedStart = errors.New("l2cap: unexpected start fragment")
	// ErrOverflow is returned when fragments carry more data than the header
	// announced.
	ErrOverflow = errors.New("l2cap: fragment exceeds frame length")
)

const (
	// DefaultMaxSDU bounds the payload length accepted for reassembly.
	DefaultMaxSDU = 1024
	// DefaultFragmentSize is the record payload size outgoing frames are split into.
	DefaultFragmentSize = pdu.DefaultDataPayloadSize
)

type Option func(*State)

func WithLogger(logger *zap.Logger) Option {
	return func(s *State) { s.logger = logger }
}

func WithMaxSDU(n int) Option {
	return func(s *State) { s.maxSDU = n }
}

// WithFragmentSize sets the largest data channel payload used for outgoing
// frames. It is clamped to the LE data PDU limits.
func WithFragmentSize(n int) Option {
	return func(s *State) {
		switch {
		case n < pdu.DefaultDataPayloadSize:
			n = pdu.DefaultDataPayloadSize
		case n > pdu.MaxDataPayloadSize:
			n = pdu.MaxDataPayloadSize
		}
		s.fragmentSize = n
	}
}

// State is the receive side reassembly state of one connection.
type State struct {
	mapper       ChannelMapper
	logger       *zap.Logger
	maxSDU       int
	fragmentSize int

	active   bool
	channel  ChannelID
	expected int
	buf      []byte

	identifier uint8
}

func NewState(mapper ChannelMapper, opts ...Option) *State {
	s := &State{
		mapper:       mapper,
		logger:       zap.L(),
		maxSDU:       DefaultMaxSDU,
		fragmentSize: DefaultFragmentSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reassembling reports whether a frame is partially received.
func (s *State) Reassembling() bool {
	return s.active
}

// nextIdentifier returns a signalling identifier. Zero is never used.
func (s *State) nextIdentifier() uint8 {
	s.identifier++
	if s.identifier == 0 {
		s.identifier = 1
	}
	return s.identifier
}

func (s *State) reset() {
	s.active = false
	s.channel = ChannelIDNull
	s.expected = 0
	s.buf = s.buf[:0]
}

// Tx binds the state to the transmit queue used for responses.
func (s *State) Tx(tx queue.Producer) *StateTx {
	return &StateTx{state: s, tx: tx}
}

// StateTx is a State bound to a transmit queue. It is only meant to live
// for the duration of one operation.
type StateTx struct {
	state *State
	tx    queue.Producer
}

// ProcessStart handles the payload of a DataStart PDU.
func (t *StateTx) ProcessStart(message []byte) queue.Consume {
	s := t.state
	if s.active {
		// the partial frame and this start are both dropped
		s.reset()
		return queue.Always(ErrUnexpectedStart)
	}
	h, err := UnmarshalHeader(message)
	if err != nil {
		return queue.Always(fmt.Errorf("%w: %d byte header", ErrMalformed, len(message)))
	}
	if int(h.Length) > s.maxSDU {
		return queue.Always(fmt.Errorf("%w: length %d exceeds %d", ErrMalformed, h.Length, s.maxSDU))
	}
	body := message[HeaderSize:]
	switch {
	case len(body) > int(h.Length):
		return queue.Always(ErrOverflow)
	case len(body) == int(h.Length):
		return t.dispatch(h.ChannelID, body)
	}
	s.active = true
	s.channel = h.ChannelID
	s.expected = int(h.Length)
	s.buf = append(s.buf[:0], body...)
	return queue.Always(nil)
}

// ProcessCont handles the payload of a DataCont PDU.
func (t *StateTx) ProcessCont(message []byte) queue.Consume {
	s := t.state
	if !s.active {
		return queue.Always(ErrUnexpectedContinuation)
	}
	n := len(s.buf) + len(message)
	switch {
	case n > s.expected:
		s.reset()
		return queue.Always(ErrOverflow)
	case n < s.expected:
		s.buf = append(s.buf, message...)
		return queue.Always(nil)
	}
	prev := len(s.buf)
	s.buf = append(s.buf, message...)
	res := t.dispatch(s.channel, s.buf)
	if !res.Commit {
		// the fragment stays queued and is appended again on retry
		s.buf = s.buf[:prev]
		return res
	}
	s.reset()
	return res
}

func (t *StateTx) dispatch(cid ChannelID, payload []byte) queue.Consume {
	ch, ok := t.state.mapper.Lookup(cid)
	if !ok {
		t.state.logger.Warn("received packet for unknown channel",
			zap.Uint16("channel", uint16(cid)),
			zap.Int("length", len(payload)))
		return queue.Always(nil)
	}
	s := t.sender(ch.Response)
	switch err := s.check(ch.Handler.ResponseSize()); {
	case errors.Is(err, queue.ErrFull):
		return queue.Never(err)
	case err != nil:
		return queue.Always(fmt.Errorf("l2cap: channel %#04x: %w", uint16(cid), err))
	}
	t.state.logger.Debug("l2cap rx",
		zap.Uint16("channel", uint16(cid)),
		zap.Binary("payload", payload))
	if err := ch.Handler.HandleMessage(payload, s); err != nil {
		return queue.Always(fmt.Errorf("l2cap: channel %#04x: %w", uint16(cid), err))
	}
	return queue.Always(nil)
}

func (t *StateTx) sender(cid ChannelID) *Sender {
	return &Sender{
		tx:           t.tx,
		channel:      cid,
		fragmentSize: t.state.fragmentSize,
		logger:       t.state.logger,
	}
}

// Send queues payload on channel cid outside of any request.
func (t *StateTx) Send(cid ChannelID, payload []byte) error {
	return t.sender(cid).Send(payload)
}

// RequestConnectionParameterUpdate asks the central for new connection
// parameters over the LE signalling channel. The identifier field of p is
// assigned here.
func (t *StateTx) RequestConnectionParameterUpdate(p ConnectionParameterUpdateRequestPacket) error {
	s := t.sender(ChannelIDSignallingLEU)
	if err := s.check(CommandHeaderSize + 8); err != nil {
		return err
	}
	p.Identifier = t.state.nextIdentifier()
	buf, err := p.Marshal()
	if err != nil {
		return err
	}
	return s.Send(buf)
}
