package l2cap

import (
	"bytes"
	"testing"

	"github.com/muxable/lelink/pkg/pdu"
	"github.com/muxable/lelink/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testChannel ChannelID = 0x0004

type recorder struct {
	messages [][]byte
	response []byte
	size     int
}

func (r *recorder) HandleMessage(payload []byte, s *Sender) error {
	r.messages = append(r.messages, append([]byte(nil), payload...))
	if r.response != nil {
		return s.Send(r.response)
	}
	return nil
}

func (r *recorder) ResponseSize() int {
	return r.size
}

func newTestState(t *testing.T, h ProtocolHandler, opts ...Option) *State {
	m := NewChannelMap()
	m.Register(ChannelIDSignallingLEU, NewSignalling(zaptest.NewLogger(t)))
	m.Register(testChannel, h)
	return NewState(m, append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...)
}

func frame(t *testing.T, cid ChannelID, payload []byte) []byte {
	t.Helper()
	buf, err := (&BFrame{ChannelID: cid, Payload: payload}).Marshal()
	require.NoError(t, err)
	return buf
}

// drain consumes every record of c and returns copies of them.
func drain(t *testing.T, c queue.Consumer) []pdu.Pdu {
	t.Helper()
	var out []pdu.Pdu
	for c.HasData() {
		require.NoError(t, c.Consume(func(_ pdu.Header, p pdu.Pdu) queue.Consume {
			switch p := p.(type) {
			case pdu.DataStart:
				out = append(out, pdu.DataStart{Message: bytes.Clone(p.Message)})
			case pdu.DataCont:
				out = append(out, pdu.DataCont{Message: bytes.Clone(p.Message)})
			case pdu.Control:
				out = append(out, pdu.Control{Payload: bytes.Clone(p.Payload)})
			}
			return queue.Always(nil)
		}))
	}
	return out
}

// fill occupies all free space of p.
func fill(t *testing.T, p queue.Producer) {
	t.Helper()
	for p.Free() > 0 {
		n := p.Free()
		require.NoError(t, p.Produce(n, func(w *queue.Writer) (pdu.LLID, error) {
			_, err := w.Write(make([]byte, n))
			return pdu.LLIDDataCont, err
		}))
	}
}

func TestSingleFragmentIsForwarded(t *testing.T) {
	rec := &recorder{}
	s := newTestState(t, rec)
	tx, _ := queue.New(64)

	res := s.Tx(tx).ProcessStart(frame(t, testChannel, []byte{0x0A, 0x03, 0x00}))
	assert.Equal(t, queue.Always(nil), res)
	assert.Equal(t, [][]byte{{0x0A, 0x03, 0x00}}, rec.messages)
	assert.False(t, s.Reassembling())
}

func TestEmptyFrameIsForwarded(t *testing.T) {
	rec := &recorder{}
	s := newTestState(t, rec)
	tx, _ := queue.New(64)

	res := s.Tx(tx).ProcessStart(frame(t, testChannel, nil))
	assert.Equal(t, queue.Always(nil), res)
	require.Len(t, rec.messages, 1)
	assert.Empty(t, rec.messages[0])
}

func TestReassembly(t *testing.T) {
	payload := make([]byte, 70)
	for i := range payload {
		payload[i] = byte(i)
	}
	buf := frame(t, testChannel, payload)

	for _, split := range [][]int{{27, 27, 20}, {10, 64}, {4, 1, 1, 68}, {73, 1}} {
		rec := &recorder{}
		s := newTestState(t, rec)
		tx, _ := queue.New(64)
		l2 := s.Tx(tx)

		offset := 0
		for i, n := range split {
			fragment := buf[offset : offset+n]
			offset += n
			var res queue.Consume
			if i == 0 {
				res = l2.ProcessStart(fragment)
			} else {
				res = l2.ProcessCont(fragment)
			}
			require.Equal(t, queue.Always(nil), res, "split %v fragment %d", split, i)
			if i < len(split)-1 {
				assert.Empty(t, rec.messages, "forwarded early")
				assert.True(t, s.Reassembling())
			}
		}
		assert.Equal(t, [][]byte{payload}, rec.messages, "split %v", split)
		assert.False(t, s.Reassembling())
	}
}

func TestContinuationWithoutStart(t *testing.T) {
	rec := &recorder{}
	s := newTestState(t, rec)
	tx, _ := queue.New(64)

	res := s.Tx(tx).ProcessCont([]byte{1, 2, 3})
	assert.True(t, res.Commit)
	assert.ErrorIs(t, res.Err, ErrUnexpectedContinuation)
	assert.Empty(t, rec.messages)
}

func TestMalformedStart(t *testing.T) {
	rec := &recorder{}
	s := newTestState(t, rec, WithMaxSDU(16))
	tx, _ := queue.New(64)
	l2 := s.Tx(tx)

	res := l2.ProcessStart([]byte{0x01, 0x00, 0x04})
	assert.True(t, res.Commit)
	assert.ErrorIs(t, res.Err, ErrMalformed)

	res = l2.ProcessStart(frame(t, testChannel, make([]byte, 17))[:8])
	assert.True(t, res.Commit)
	assert.ErrorIs(t, res.Err, ErrMalformed)

	assert.False(t, s.Reassembling())
	assert.Empty(t, rec.messages)
}

func TestStartDuringReassembly(t *testing.T) {
	rec := &recorder{}
	s := newTestState(t, rec)
	tx, _ := queue.New(64)
	l2 := s.Tx(tx)

	buf := frame(t, testChannel, make([]byte, 30))
	require.Equal(t, queue.Always(nil), l2.ProcessStart(buf[:10]))

	res := l2.ProcessStart(buf[:10])
	assert.True(t, res.Commit)
	assert.ErrorIs(t, res.Err, ErrUnexpectedStart)
	assert.Empty(t, rec.messages)
	assert.False(t, s.Reassembling())

	// the dropped start is not resumed, the next one begins afresh
	require.Equal(t, queue.Always(ErrUnexpectedContinuation), l2.ProcessCont(buf[10:]))
	require.Equal(t, queue.Always(nil), l2.ProcessStart(buf))
	require.Len(t, rec.messages, 1)
	assert.Equal(t, buf[HeaderSize:], rec.messages[0])
}

func TestOverflow(t *testing.T) {
	rec := &recorder{}
	s := newTestState(t, rec)
	tx, _ := queue.New(64)
	l2 := s.Tx(tx)

	buf := frame(t, testChannel, []byte{1, 2, 3})
	res := l2.ProcessStart(append(buf, 4))
	assert.ErrorIs(t, res.Err, ErrOverflow)

	require.Equal(t, queue.Always(nil), l2.ProcessStart(buf[:5]))
	res = l2.ProcessCont([]byte{2, 3, 4})
	assert.True(t, res.Commit)
	assert.ErrorIs(t, res.Err, ErrOverflow)
	assert.False(t, s.Reassembling())
	assert.Empty(t, rec.messages)
}

func TestUnknownChannelIsDropped(t *testing.T) {
	rec := &recorder{}
	s := newTestState(t, rec)
	tx, c := queue.New(64)

	res := s.Tx(tx).ProcessStart(frame(t, 0x0077, []byte{1, 2}))
	assert.Equal(t, queue.Always(nil), res)
	assert.Empty(t, rec.messages)
	assert.False(t, c.HasData())
}

func TestHandlerResponseIsSent(t *testing.T) {
	rec := &recorder{response: []byte{0x0B, 0x01}, size: 2}
	s := newTestState(t, rec)
	tx, c := queue.New(64)

	require.Equal(t, queue.Always(nil), s.Tx(tx).ProcessStart(frame(t, testChannel, []byte{0x0A, 0x01, 0x00})))
	assert.Equal(t, []pdu.Pdu{
		pdu.DataStart{Message: []byte{0x02, 0x00, 0x04, 0x00, 0x0B, 0x01}},
	}, drain(t, c))
}

func TestResponseBackpressure(t *testing.T) {
	rec := &recorder{response: []byte{0x0B, 0x01}, size: 23}
	s := newTestState(t, rec)
	tx, c := queue.New(64)
	l2 := s.Tx(tx)
	fill(t, tx)

	buf := frame(t, testChannel, []byte{0x0A, 0x01, 0x00})
	for i := 0; i < 3; i++ {
		res := l2.ProcessStart(buf)
		assert.False(t, res.Commit)
		assert.ErrorIs(t, res.Err, queue.ErrFull)
	}
	assert.Empty(t, rec.messages)

	drain(t, c)
	assert.Equal(t, queue.Always(nil), l2.ProcessStart(buf))
	assert.Equal(t, [][]byte{{0x0A, 0x01, 0x00}}, rec.messages)
	assert.Len(t, drain(t, c), 1)
}

func TestContinuationBackpressureKeepsState(t *testing.T) {
	rec := &recorder{size: 23}
	s := newTestState(t, rec)
	tx, c := queue.New(64)
	l2 := s.Tx(tx)

	buf := frame(t, testChannel, []byte{1, 2, 3, 4, 5, 6})
	require.Equal(t, queue.Always(nil), l2.ProcessStart(buf[:6]))
	fill(t, tx)

	for i := 0; i < 2; i++ {
		res := l2.ProcessCont(buf[6:])
		assert.False(t, res.Commit)
		assert.ErrorIs(t, res.Err, queue.ErrFull)
		assert.True(t, s.Reassembling())
	}

	drain(t, c)
	assert.Equal(t, queue.Always(nil), l2.ProcessCont(buf[6:]))
	assert.Equal(t, [][]byte{{1, 2, 3, 4, 5, 6}}, rec.messages)
	assert.False(t, s.Reassembling())
}

func TestSendSegments(t *testing.T) {
	s := newTestState(t, &recorder{})
	tx, c := queue.New(256)

	payload := make([]byte, 60)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, s.Tx(tx).Send(testChannel, payload))

	buf := frame(t, testChannel, payload)
	assert.Equal(t, []pdu.Pdu{
		pdu.DataStart{Message: buf[:27]},
		pdu.DataCont{Message: buf[27:54]},
		pdu.DataCont{Message: buf[54:]},
	}, drain(t, c))
}

func TestSendFragmentSize(t *testing.T) {
	s := newTestState(t, &recorder{}, WithFragmentSize(1000))
	tx, c := queue.New(512)

	payload := make([]byte, 300)
	require.NoError(t, s.Tx(tx).Send(testChannel, payload))
	got := drain(t, c)
	require.Len(t, got, 2)
	assert.Len(t, got[0].(pdu.DataStart).Message, pdu.MaxDataPayloadSize)
	assert.Len(t, got[1].(pdu.DataCont).Message, HeaderSize+300-pdu.MaxDataPayloadSize)
}

func TestSendIsAllOrNothing(t *testing.T) {
	s := newTestState(t, &recorder{})
	tx, c := queue.New(64)
	require.NoError(t, tx.Produce(20, func(w *queue.Writer) (pdu.LLID, error) {
		_, err := w.Write(make([]byte, 20))
		return pdu.LLIDDataCont, err
	}))

	// 4+40 bytes of frame need two records, 48 bytes in total
	err := s.Tx(tx).Send(testChannel, make([]byte, 40))
	assert.ErrorIs(t, err, queue.ErrFull)
	assert.Len(t, drain(t, c), 1)
}

func TestSendLargerThanQueue(t *testing.T) {
	s := newTestState(t, &recorder{})
	tx, c := queue.New(40)

	err := s.Tx(tx).Send(testChannel, make([]byte, 40))
	assert.ErrorIs(t, err, queue.ErrTooLarge)
	assert.NotErrorIs(t, err, queue.ErrFull)
	assert.False(t, c.HasData())
}

// A response that cannot fit the empty transmit queue would be retried
// forever, so the request is consumed with an error instead.
func TestResponseLargerThanQueue(t *testing.T) {
	rec := &recorder{size: 100}
	s := newTestState(t, rec)
	tx, c := queue.New(64)

	res := s.Tx(tx).ProcessStart(frame(t, testChannel, []byte{0x0A, 0x01, 0x00}))
	assert.True(t, res.Commit)
	assert.ErrorIs(t, res.Err, queue.ErrTooLarge)
	assert.Empty(t, rec.messages)
	assert.False(t, c.HasData())
}

func TestRequestConnectionParameterUpdate(t *testing.T) {
	s := newTestState(t, &recorder{})
	tx, c := queue.New(64)
	l2 := s.Tx(tx)

	req := ConnectionParameterUpdateRequestPacket{IntervalMin: 6, IntervalMax: 12, Latency: 0, Timeout: 100}
	require.NoError(t, l2.RequestConnectionParameterUpdate(req))
	require.NoError(t, l2.RequestConnectionParameterUpdate(req))

	got := drain(t, c)
	require.Len(t, got, 2)
	for i, p := range got {
		start, ok := p.(pdu.DataStart)
		require.True(t, ok)
		var f BFrame
		require.NoError(t, f.Unmarshal(start.Message))
		assert.Equal(t, ChannelIDSignallingLEU, f.ChannelID)

		var out ConnectionParameterUpdateRequestPacket
		require.NoError(t, out.Unmarshal(f.Payload))
		want := req
		want.Identifier = uint8(i + 1)
		assert.Equal(t, want, out)
	}
}
