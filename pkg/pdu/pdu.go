package pdu

import (
	"errors"
	"fmt"
)

// LLID is the Link Layer identifier carried in the low two bits of a data
// channel PDU header. Vol 6, Part B, Section 2.4 of the Bluetooth Core Specification.
type LLID uint8

const (
	LLIDReserved  LLID = 0b00
	LLIDDataCont  LLID = 0b01
	LLIDDataStart LLID = 0b10
	LLIDControl   LLID = 0b11
)

func (l LLID) String() string {
	switch l {
	case LLIDDataCont:
		return "DataCont"
	case LLIDDataStart:
		return "DataStart"
	case LLIDControl:
		return "Control"
	default:
		return fmt.Sprintf("LLID(%#02x)", uint8(l))
	}
}

const (
	HeaderSize = 2

	// MaxPayloadSize is the largest payload the length byte of a header can describe.
	MaxPayloadSize = 255

	// MaxDataPayloadSize is the largest LE data channel PDU payload (with the
	// data length extension).
	MaxDataPayloadSize = 251

	// DefaultDataPayloadSize is the payload size every LE controller supports.
	DefaultDataPayloadSize = 27
)

var (
	ErrReservedLLID   = errors.New("pdu: reserved llid")
	ErrEmptyControl   = errors.New("pdu: empty control pdu")
	ErrLengthMismatch = errors.New("pdu: header length does not match payload")
)

// Header is the two byte data channel PDU header. Only the LLID and the
// payload length are meaningful inside the packet queues; sequence numbers and
// the more-data bit belong to the real-time layer.
type Header struct {
	LLID   LLID
	NESN   bool
	SN     bool
	MD     bool
	Length uint8
}

func (h Header) Marshal() [HeaderSize]byte {
	b := [HeaderSize]byte{byte(h.LLID) & 0x03, h.Length}
	if h.NESN {
		b[0] |= 1 << 2
	}
	if h.SN {
		b[0] |= 1 << 3
	}
	if h.MD {
		b[0] |= 1 << 4
	}
	return b
}

func UnmarshalHeader(b [HeaderSize]byte) Header {
	return Header{
		LLID:   LLID(b[0] & 0x03),
		NESN:   b[0]&(1<<2) != 0,
		SN:     b[0]&(1<<3) != 0,
		MD:     b[0]&(1<<4) != 0,
		Length: b[1],
	}
}

// Pdu is a decoded data channel PDU. The set of implementations is closed:
// Control, DataStart and DataCont.
type Pdu interface {
	LLID() LLID
	isPdu()
}

// Control carries an encoded LL Control PDU (opcode followed by CtrData).
type Control struct {
	Payload []byte
}

func (Control) LLID() LLID { return LLIDControl }
func (Control) isPdu()     {}

// DataStart is the first fragment of an L2CAP message, starting with the
// basic L2CAP header.
type DataStart struct {
	Message []byte
}

func (DataStart) LLID() LLID { return LLIDDataStart }
func (DataStart) isPdu()     {}

// DataCont is a continuation fragment of an L2CAP message.
type DataCont struct {
	Message []byte
}

func (DataCont) LLID() LLID { return LLIDDataCont }
func (DataCont) isPdu()     {}

// Decode builds the Pdu described by h over payload. The returned value
// references payload without copying.
func Decode(h Header, payload []byte) (Pdu, error) {
	if int(h.Length) != len(payload) {
		return nil, ErrLengthMismatch
	}
	switch h.LLID {
	case LLIDControl:
		if len(payload) == 0 {
			return nil, ErrEmptyControl
		}
		return Control{Payload: payload}, nil
	case LLIDDataStart:
		return DataStart{Message: payload}, nil
	case LLIDDataCont:
		return DataCont{Message: payload}, nil
	}
	return nil, ErrReservedLLID
}
