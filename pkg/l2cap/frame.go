package l2cap

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/muxable/lelink/pkg/pdu"
)

// HeaderSize is the size of the basic L2CAP header.
const HeaderSize = 4

var ErrPayloadTooLarge = errors.New("l2cap: payload too large")

// Header is the basic L2CAP header preceding every B-frame. Length counts
// the information payload only. Vol 3, Part A, Section 3.1.
type Header struct {
	Length    uint16
	ChannelID ChannelID
}

func (h Header) Marshal() [HeaderSize]byte {
	var b [HeaderSize]byte
	binary.LittleEndian.PutUint16(b[0:], h.Length)
	binary.LittleEndian.PutUint16(b[2:], uint16(h.ChannelID))
	return b
}

func UnmarshalHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, io.ErrShortBuffer
	}
	return Header{
		Length:    binary.LittleEndian.Uint16(buf[0:]),
		ChannelID: ChannelID(binary.LittleEndian.Uint16(buf[2:])),
	}, nil
}

// BFrame is a complete basic information frame.
type BFrame struct {
	ChannelID
	Payload []byte
}

func (f *BFrame) Marshal() ([]byte, error) {
	if len(f.Payload) > math.MaxUint16 {
		return nil, ErrPayloadTooLarge
	}
	buf := make([]byte, HeaderSize+len(f.Payload))
	h := Header{Length: uint16(len(f.Payload)), ChannelID: f.ChannelID}.Marshal()
	copy(buf, h[:])
	copy(buf[HeaderSize:], f.Payload)
	return buf, nil
}

func (f *BFrame) Unmarshal(buf []byte) error {
	h, err := UnmarshalHeader(buf)
	if err != nil {
		return err
	}
	if int(h.Length) != len(buf)-HeaderSize {
		return io.ErrShortBuffer
	}
	f.ChannelID = h.ChannelID
	f.Payload = buf[HeaderSize:]
	return nil
}

// FramedSize returns the number of queue bytes a payload occupies once it is
// wrapped in a B-frame and split into fragments of at most fragmentSize
// bytes, each carrying its own data channel header.
func FramedSize(payloadLen, fragmentSize int) int {
	n := HeaderSize + payloadLen
	fragments := (n + fragmentSize - 1) / fragmentSize
	return n + fragments*pdu.HeaderSize
}
