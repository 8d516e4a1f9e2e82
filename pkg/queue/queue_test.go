package queue

import (
	"errors"
	"io"
	"testing"

	"github.com/muxable/lelink/pkg/pdu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func produceBytes(t *testing.T, p Producer, llid pdu.LLID, b []byte) error {
	t.Helper()
	return p.Produce(len(b), func(w *Writer) (pdu.LLID, error) {
		_, err := w.Write(b)
		return llid, err
	})
}

func TestConsumeEmpty(t *testing.T) {
	_, c := New(16)
	assert.False(t, c.HasData())

	called := false
	err := c.Consume(func(pdu.Header, pdu.Pdu) Consume {
		called = true
		return Always(nil)
	})
	assert.ErrorIs(t, err, ErrEOF)
	assert.False(t, called)
}

func TestProduceConsumeInOrder(t *testing.T) {
	p, c := New(64)
	require.NoError(t, produceBytes(t, p, pdu.LLIDDataStart, []byte{0x01, 0x00, 0x04, 0x00, 0xAA}))
	require.NoError(t, produceBytes(t, p, pdu.LLIDControl, []byte{0x12}))
	require.NoError(t, produceBytes(t, p, pdu.LLIDDataCont, nil))

	var got []pdu.Pdu
	for c.HasData() {
		err := c.Consume(func(h pdu.Header, p pdu.Pdu) Consume {
			assert.Equal(t, p.LLID(), h.LLID)
			switch p := p.(type) {
			case pdu.DataStart:
				got = append(got, pdu.DataStart{Message: append([]byte(nil), p.Message...)})
			case pdu.Control:
				got = append(got, pdu.Control{Payload: append([]byte(nil), p.Payload...)})
			case pdu.DataCont:
				got = append(got, pdu.DataCont{Message: append([]byte(nil), p.Message...)})
			}
			return Always(nil)
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []pdu.Pdu{
		pdu.DataStart{Message: []byte{0x01, 0x00, 0x04, 0x00, 0xAA}},
		pdu.Control{Payload: []byte{0x12}},
		pdu.DataCont{},
	}, got)
	assert.ErrorIs(t, c.Consume(func(pdu.Header, pdu.Pdu) Consume { return Always(nil) }), ErrEOF)
}

func TestNeverKeepsRecordAtHead(t *testing.T) {
	p, c := New(32)
	require.NoError(t, produceBytes(t, p, pdu.LLIDControl, []byte{0x0C, 1, 2, 3, 4, 5}))
	require.NoError(t, produceBytes(t, p, pdu.LLIDControl, []byte{0x02, 0x13}))

	retry := errors.New("later")
	for i := 0; i < 3; i++ {
		err := c.Consume(func(_ pdu.Header, p pdu.Pdu) Consume {
			assert.Equal(t, pdu.Control{Payload: []byte{0x0C, 1, 2, 3, 4, 5}}, p)
			return Never(retry)
		})
		assert.ErrorIs(t, err, retry)
		assert.True(t, c.HasData())
	}

	require.NoError(t, c.Consume(func(pdu.Header, pdu.Pdu) Consume { return OnSuccess(nil) }))
	require.NoError(t, c.Consume(func(_ pdu.Header, p pdu.Pdu) Consume {
		assert.Equal(t, pdu.Control{Payload: []byte{0x02, 0x13}}, p)
		return OnSuccess(nil)
	}))
	assert.False(t, c.HasData())
}

func TestHasDataTracksUncommittedRecords(t *testing.T) {
	p, c := New(32)
	pending := 0
	steps := []bool{true, true, false, true, false, false, true, false}
	for _, produce := range steps {
		if produce {
			require.NoError(t, produceBytes(t, p, pdu.LLIDDataCont, []byte{1, 2}))
			pending++
		} else {
			require.NoError(t, c.Consume(func(pdu.Header, pdu.Pdu) Consume { return Always(nil) }))
			pending--
		}
		assert.Equal(t, pending > 0, c.HasData())
	}
}

func TestProduceFull(t *testing.T) {
	p, c := New(4)
	assert.Equal(t, 2, p.Free())
	assert.Equal(t, 4, p.FreeBytes())
	require.NoError(t, produceBytes(t, p, pdu.LLIDControl, []byte{0x07, 0x1F}))
	assert.Equal(t, 0, p.Free())
	assert.ErrorIs(t, produceBytes(t, p, pdu.LLIDControl, []byte{0x07}), ErrFull)

	// a peeked but uncommitted head still occupies its bytes
	require.NoError(t, c.Consume(func(pdu.Header, pdu.Pdu) Consume { return Never(nil) }))
	assert.Equal(t, 0, p.Free())
	assert.Equal(t, 0, p.FreeBytes())
	assert.ErrorIs(t, produceBytes(t, p, pdu.LLIDControl, []byte{0x07}), ErrFull)

	require.NoError(t, c.Consume(func(pdu.Header, pdu.Pdu) Consume { return Always(nil) }))
	assert.Equal(t, 2, p.Free())
	require.NoError(t, produceBytes(t, p, pdu.LLIDControl, []byte{0x07, 0x1F}))
}

func TestProduceTooLarge(t *testing.T) {
	p, _ := New(8)
	assert.ErrorIs(t, p.Produce(7, nil), ErrTooLarge)
	assert.ErrorIs(t, p.Produce(-1, nil), ErrTooLarge)
	// retrying a record that never fits is pointless
	assert.NotErrorIs(t, p.Produce(7, nil), ErrFull)
	assert.Equal(t, 8, p.Capacity())

	p, _ = New(1024)
	assert.ErrorIs(t, p.Produce(pdu.MaxPayloadSize+1, nil), ErrTooLarge)
	assert.Equal(t, pdu.MaxPayloadSize, p.Free())
	assert.Equal(t, 1024, p.FreeBytes())
}

func TestProduceFailureLeavesNothing(t *testing.T) {
	p, c := New(16)
	boom := errors.New("boom")
	err := p.Produce(4, func(w *Writer) (pdu.LLID, error) {
		require.NoError(t, w.WriteByte(0x01))
		return pdu.LLIDControl, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, c.HasData())

	err = p.Produce(1, func(w *Writer) (pdu.LLID, error) {
		_, err := w.Write([]byte{1, 2})
		return pdu.LLIDControl, err
	})
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.False(t, c.HasData())
}

func TestRecordLengthIsBytesWritten(t *testing.T) {
	p, c := New(16)
	require.NoError(t, p.Produce(8, func(w *Writer) (pdu.LLID, error) {
		assert.Equal(t, 8, w.Space())
		require.NoError(t, w.WriteUint16(0x0201))
		assert.Equal(t, 2, w.Len())
		return pdu.LLIDDataCont, nil
	}))
	require.NoError(t, c.Consume(func(h pdu.Header, p pdu.Pdu) Consume {
		assert.Equal(t, uint8(2), h.Length)
		assert.Equal(t, pdu.DataCont{Message: []byte{0x01, 0x02}}, p)
		return Always(nil)
	}))
}

func TestUndecodableRecordIsDropped(t *testing.T) {
	p, c := New(16)
	require.NoError(t, produceBytes(t, p, pdu.LLIDReserved, []byte{1}))
	require.NoError(t, produceBytes(t, p, pdu.LLIDControl, nil))
	require.NoError(t, produceBytes(t, p, pdu.LLIDControl, []byte{0x12}))

	called := 0
	fn := func(pdu.Header, pdu.Pdu) Consume {
		called++
		return Always(nil)
	}
	assert.ErrorIs(t, c.Consume(fn), pdu.ErrReservedLLID)
	assert.ErrorIs(t, c.Consume(fn), pdu.ErrEmptyControl)
	assert.NoError(t, c.Consume(fn))
	assert.Equal(t, 1, called)
}

func TestWrapAround(t *testing.T) {
	p, c := New(10)
	for i := 0; i < 20; i++ {
		b := []byte{byte(i), byte(i + 1), byte(i + 2)}
		require.NoError(t, produceBytes(t, p, pdu.LLIDDataStart, b))
		require.NoError(t, c.Consume(func(_ pdu.Header, p pdu.Pdu) Consume {
			assert.Equal(t, pdu.DataStart{Message: b}, p)
			return Always(nil)
		}))
	}
}
