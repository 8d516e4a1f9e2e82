package pdu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{LLID: LLIDControl, NESN: true, MD: true, Length: 12}
	b := h.Marshal()
	assert.Equal(t, [HeaderSize]byte{0x17, 12}, b)
	assert.Equal(t, h, UnmarshalHeader(b))
}

func TestDecodeEveryLLID(t *testing.T) {
	payload := []byte{0x02, 0x00, 0x04, 0x00}
	for llid := LLID(0); llid <= 0b11; llid++ {
		p, err := Decode(Header{LLID: llid, Length: uint8(len(payload))}, payload)
		switch llid {
		case LLIDControl:
			require.NoError(t, err)
			assert.Equal(t, Control{Payload: payload}, p)
		case LLIDDataStart:
			require.NoError(t, err)
			assert.Equal(t, DataStart{Message: payload}, p)
		case LLIDDataCont:
			require.NoError(t, err)
			assert.Equal(t, DataCont{Message: payload}, p)
		case LLIDReserved:
			assert.ErrorIs(t, err, ErrReservedLLID)
		default:
			t.Fatalf("llid %v has no expectation", llid)
		}
		if p != nil {
			assert.Equal(t, llid, p.LLID())
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(Header{LLID: LLIDControl}, nil)
	assert.ErrorIs(t, err, ErrEmptyControl)

	_, err = Decode(Header{LLID: LLIDDataStart, Length: 3}, []byte{1})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	p, err := Decode(Header{LLID: LLIDDataCont}, nil)
	require.NoError(t, err)
	assert.Equal(t, DataCont{}, p)
}
