package att

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	ErrInvalidOpcode = errors.New("att: invalid opcode")
	ErrInvalidLength = errors.New("att: invalid length")
)

type Packet interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

func expect(buf []byte, op Opcode, size int) error {
	if len(buf) < 1 {
		return io.ErrShortBuffer
	}
	if Opcode(buf[0]) != op {
		return ErrInvalidOpcode
	}
	if len(buf) != size {
		return ErrInvalidLength
	}
	return nil
}

type ErrorResponsePacket struct {
	RequestOpcode Opcode
	Handle        uint16
	ErrorCode
}

func (p *ErrorResponsePacket) Marshal() ([]byte, error) {
	b := make([]byte, 5)
	b[0] = byte(OpcodeErrorResponse)
	b[1] = byte(p.RequestOpcode)
	binary.LittleEndian.PutUint16(b[2:], p.Handle)
	b[4] = byte(p.ErrorCode)
	return b, nil
}

func (p *ErrorResponsePacket) Unmarshal(buf []byte) error {
	if err := expect(buf, OpcodeErrorResponse, 5); err != nil {
		return err
	}
	p.RequestOpcode = Opcode(buf[1])
	p.Handle = binary.LittleEndian.Uint16(buf[2:])
	p.ErrorCode = ErrorCode(buf[4])
	return nil
}

// ExchangeMTUPacket is both the request and the response of the MTU
// exchange; Opcode selects which.
type ExchangeMTUPacket struct {
	Opcode
	MTU uint16
}

func (p *ExchangeMTUPacket) Marshal() ([]byte, error) {
	b := make([]byte, 3)
	b[0] = byte(p.Opcode)
	binary.LittleEndian.PutUint16(b[1:], p.MTU)
	return b, nil
}

func (p *ExchangeMTUPacket) Unmarshal(buf []byte) error {
	if len(buf) < 1 {
		return io.ErrShortBuffer
	}
	op := Opcode(buf[0])
	if op != OpcodeExchangeMTURequest && op != OpcodeExchangeMTUResponse {
		return ErrInvalidOpcode
	}
	if err := expect(buf, op, 3); err != nil {
		return err
	}
	p.Opcode = op
	p.MTU = binary.LittleEndian.Uint16(buf[1:])
	return nil
}

// HandleRange is the starting and ending handle of a lookup request.
type HandleRange struct {
	Start uint16
	End   uint16
}

// Valid reports whether the range may be searched. Section 3.4.3.1.
func (r HandleRange) Valid() bool {
	return r.Start != 0 && r.Start <= r.End
}

func (r HandleRange) Contains(h uint16) bool {
	return h >= r.Start && h <= r.End
}

type FindInformationRequestPacket struct {
	HandleRange
}

func (p *FindInformationRequestPacket) Marshal() ([]byte, error) {
	b := make([]byte, 5)
	b[0] = byte(OpcodeFindInformationRequest)
	binary.LittleEndian.PutUint16(b[1:], p.Start)
	binary.LittleEndian.PutUint16(b[3:], p.End)
	return b, nil
}

func (p *FindInformationRequestPacket) Unmarshal(buf []byte) error {
	if err := expect(buf, OpcodeFindInformationRequest, 5); err != nil {
		return err
	}
	p.Start = binary.LittleEndian.Uint16(buf[1:])
	p.End = binary.LittleEndian.Uint16(buf[3:])
	return nil
}

// TypeRequestPacket is the layout shared by ATT_READ_BY_TYPE_REQ and
// ATT_READ_BY_GROUP_TYPE_REQ. Type is either 2 or 16 bytes.
type TypeRequestPacket struct {
	Opcode
	HandleRange
	Type UUID
}

func (p *TypeRequestPacket) Marshal() ([]byte, error) {
	if !p.Type.Valid() {
		return nil, ErrInvalidLength
	}
	b := make([]byte, 5+len(p.Type))
	b[0] = byte(p.Opcode)
	binary.LittleEndian.PutUint16(b[1:], p.Start)
	binary.LittleEndian.PutUint16(b[3:], p.End)
	copy(b[5:], p.Type)
	return b, nil
}

func (p *TypeRequestPacket) Unmarshal(buf []byte) error {
	if len(buf) < 1 {
		return io.ErrShortBuffer
	}
	op := Opcode(buf[0])
	if op != OpcodeReadByTypeRequest && op != OpcodeReadByGroupTypeRequest {
		return ErrInvalidOpcode
	}
	if len(buf) != 5+2 && len(buf) != 5+16 {
		return ErrInvalidLength
	}
	p.Opcode = op
	p.Start = binary.LittleEndian.Uint16(buf[1:])
	p.End = binary.LittleEndian.Uint16(buf[3:])
	p.Type = UUID(buf[5:])
	return nil
}

type ReadRequestPacket struct {
	Handle uint16
}

func (p *ReadRequestPacket) Marshal() ([]byte, error) {
	b := make([]byte, 3)
	b[0] = byte(OpcodeReadRequest)
	binary.LittleEndian.PutUint16(b[1:], p.Handle)
	return b, nil
}

func (p *ReadRequestPacket) Unmarshal(buf []byte) error {
	if err := expect(buf, OpcodeReadRequest, 3); err != nil {
		return err
	}
	p.Handle = binary.LittleEndian.Uint16(buf[1:])
	return nil
}
