package l2cap

import (
	"fmt"

	"github.com/muxable/lelink/pkg/pdu"
	"github.com/muxable/lelink/pkg/queue"
	"go.uber.org/zap"
)

// ProtocolHandler processes complete L2CAP payloads arriving on a channel.
type ProtocolHandler interface {
	// HandleMessage processes one reassembled payload. The payload is only
	// valid for the duration of the call. Responses go through s.
	HandleMessage(payload []byte, s *Sender) error

	// ResponseSize returns the largest payload HandleMessage may send in
	// reply to a single message. Messages are only delivered while the
	// transmit queue can hold a response of this size.
	ResponseSize() int
}

// Channel binds a handler to the channel its responses are sent on.
type Channel struct {
	Handler  ProtocolHandler
	Response ChannelID
}

// ChannelMapper resolves the handler for an incoming channel id.
type ChannelMapper interface {
	Lookup(cid ChannelID) (Channel, bool)
}

// ChannelMap is a ChannelMapper backed by a map of fixed channels. It must be
// fully registered before it is handed to a State.
type ChannelMap struct {
	channels map[ChannelID]Channel
}

// NewChannelMap returns a mapper serving the LE signalling channel.
func NewChannelMap() *ChannelMap {
	m := &ChannelMap{channels: make(map[ChannelID]Channel)}
	m.Register(ChannelIDSignallingLEU, NewSignalling(zap.L()))
	return m
}

// Register routes cid to h. Responses are sent on the same channel.
func (m *ChannelMap) Register(cid ChannelID, h ProtocolHandler) {
	m.channels[cid] = Channel{Handler: h, Response: cid}
}

func (m *ChannelMap) Lookup(cid ChannelID) (Channel, bool) {
	ch, ok := m.channels[cid]
	return ch, ok
}

// Sender transmits payloads on one channel by framing them as B-frames and
// splitting the frame into data channel records.
type Sender struct {
	tx           queue.Producer
	channel      ChannelID
	fragmentSize int
	logger       *zap.Logger
}

func (s *Sender) Channel() ChannelID {
	return s.channel
}

// Fits reports whether a payload of n bytes can be sent right now.
func (s *Sender) Fits(n int) bool {
	return FramedSize(n, s.fragmentSize) <= s.tx.FreeBytes()
}

// check returns queue.ErrFull if a payload of n bytes does not fit now and
// queue.ErrTooLarge if it would not fit into the empty queue either.
func (s *Sender) check(n int) error {
	switch size := FramedSize(n, s.fragmentSize); {
	case size > s.tx.Capacity():
		return fmt.Errorf("l2cap: %d byte frame in a %d byte queue: %w", size, s.tx.Capacity(), queue.ErrTooLarge)
	case size > s.tx.FreeBytes():
		return queue.ErrFull
	}
	return nil
}

// Send queues payload as one B-frame. Either every fragment is queued or
// none is; queue.ErrFull is returned if the frame does not fit now and
// queue.ErrTooLarge if it never can.
func (s *Sender) Send(payload []byte) error {
	f := &BFrame{ChannelID: s.channel, Payload: payload}
	buf, err := f.Marshal()
	if err != nil {
		return err
	}
	if err := s.check(len(payload)); err != nil {
		return err
	}
	llid := pdu.LLIDDataStart
	for i := 0; i < len(buf); i += s.fragmentSize {
		j := i + s.fragmentSize
		if j > len(buf) {
			j = len(buf)
		}
		fragment := buf[i:j]
		if err := s.tx.Produce(len(fragment), func(w *queue.Writer) (pdu.LLID, error) {
			_, err := w.Write(fragment)
			return llid, err
		}); err != nil {
			// only reachable if another producer shares the queue
			return fmt.Errorf("l2cap: fragment at offset %d: %w", i, err)
		}
		llid = pdu.LLIDDataCont
	}
	s.logger.Debug("l2cap tx",
		zap.Uint16("channel", uint16(s.channel)),
		zap.Int("length", len(payload)),
		zap.Binary("payload", payload))
	return nil
}
