package llcp

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	ErrInvalidOpcode = errors.New("llcp: invalid opcode")
	ErrInvalidLength = errors.New("llcp: invalid length")
)

// ControlPdu is an LL Control PDU: a one byte opcode followed by CtrData.
type ControlPdu interface {
	Opcode() Opcode
	// EncodedSize is the number of bytes Marshal produces, opcode included.
	EncodedSize() int
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// Unmarshal decodes an LL Control PDU. Opcodes without a dedicated type
// decode to *Other.
func Unmarshal(buf []byte) (ControlPdu, error) {
	if len(buf) < 1 {
		return nil, io.ErrShortBuffer
	}
	var p ControlPdu
	switch Opcode(buf[0]) {
	case OpcodeConnectionUpdateInd:
		p = &ConnectionUpdateInd{}
	case OpcodeChannelMapInd:
		p = &ChannelMapInd{}
	case OpcodeTerminateInd:
		p = &TerminateInd{}
	case OpcodeUnknownRsp:
		p = &UnknownRsp{}
	case OpcodeFeatureReq:
		p = &FeatureReq{}
	case OpcodeFeatureRsp:
		p = &FeatureRsp{}
	case OpcodeVersionInd:
		p = &VersionInd{}
	case OpcodeRejectInd:
		p = &RejectInd{}
	case OpcodePeripheralFeatureReq:
		p = &PeripheralFeatureReq{}
	case OpcodeConnectionParamReq:
		p = &ConnectionParamReq{}
	case OpcodeConnectionParamRsp:
		p = &ConnectionParamRsp{}
	case OpcodeRejectExtInd:
		p = &RejectExtInd{}
	case OpcodePingReq:
		p = &PingReq{}
	case OpcodePingRsp:
		p = &PingRsp{}
	case OpcodeLengthReq:
		p = &LengthReq{}
	case OpcodeLengthRsp:
		p = &LengthRsp{}
	default:
		p = &Other{}
	}
	return p, p.Unmarshal(buf)
}

func header(buf []byte, op Opcode, size int) error {
	if len(buf) < 1 || buf[0] != byte(op) {
		return ErrInvalidOpcode
	}
	if len(buf) != size {
		return ErrInvalidLength
	}
	return nil
}

// ConnectionUpdateInd is sent by the central to move the connection to new
// timing parameters at Instant.
type ConnectionUpdateInd struct {
	WinSize   uint8
	WinOffset uint16
	Interval  uint16
	Latency   uint16
	Timeout   uint16
	Instant   uint16
}

func (p *ConnectionUpdateInd) Opcode() Opcode   { return OpcodeConnectionUpdateInd }
func (p *ConnectionUpdateInd) EncodedSize() int { return 12 }

func (p *ConnectionUpdateInd) Marshal() ([]byte, error) {
	b := make([]byte, 12)
	b[0] = byte(OpcodeConnectionUpdateInd)
	b[1] = p.WinSize
	binary.LittleEndian.PutUint16(b[2:], p.WinOffset)
	binary.LittleEndian.PutUint16(b[4:], p.Interval)
	binary.LittleEndian.PutUint16(b[6:], p.Latency)
	binary.LittleEndian.PutUint16(b[8:], p.Timeout)
	binary.LittleEndian.PutUint16(b[10:], p.Instant)
	return b, nil
}

func (p *ConnectionUpdateInd) Unmarshal(buf []byte) error {
	if err := header(buf, OpcodeConnectionUpdateInd, 12); err != nil {
		return err
	}
	p.WinSize = buf[1]
	p.WinOffset = binary.LittleEndian.Uint16(buf[2:])
	p.Interval = binary.LittleEndian.Uint16(buf[4:])
	p.Latency = binary.LittleEndian.Uint16(buf[6:])
	p.Timeout = binary.LittleEndian.Uint16(buf[8:])
	p.Instant = binary.LittleEndian.Uint16(buf[10:])
	return nil
}

// ChannelMapInd carries the new 37 bit data channel map.
type ChannelMapInd struct {
	ChannelMap [5]byte
	Instant    uint16
}

func (p *ChannelMapInd) Opcode() Opcode   { return OpcodeChannelMapInd }
func (p *ChannelMapInd) EncodedSize() int { return 8 }

func (p *ChannelMapInd) Marshal() ([]byte, error) {
	b := make([]byte, 8)
	b[0] = byte(OpcodeChannelMapInd)
	copy(b[1:6], p.ChannelMap[:])
	binary.LittleEndian.PutUint16(b[6:], p.Instant)
	return b, nil
}

func (p *ChannelMapInd) Unmarshal(buf []byte) error {
	if err := header(buf, OpcodeChannelMapInd, 8); err != nil {
		return err
	}
	copy(p.ChannelMap[:], buf[1:6])
	p.Instant = binary.LittleEndian.Uint16(buf[6:])
	return nil
}

type TerminateInd struct {
	ErrorCode
}

func (p *TerminateInd) Opcode() Opcode   { return OpcodeTerminateInd }
func (p *TerminateInd) EncodedSize() int { return 2 }

func (p *TerminateInd) Marshal() ([]byte, error) {
	return []byte{byte(OpcodeTerminateInd), byte(p.ErrorCode)}, nil
}

func (p *TerminateInd) Unmarshal(buf []byte) error {
	if err := header(buf, OpcodeTerminateInd, 2); err != nil {
		return err
	}
	p.ErrorCode = ErrorCode(buf[1])
	return nil
}

// UnknownRsp rejects a control PDU whose opcode the receiver does not
// support. UnknownType is the rejected opcode.
type UnknownRsp struct {
	UnknownType Opcode
}

func (p *UnknownRsp) Opcode() Opcode   { return OpcodeUnknownRsp }
func (p *UnknownRsp) EncodedSize() int { return 2 }

func (p *UnknownRsp) Marshal() ([]byte, error) {
	return []byte{byte(OpcodeUnknownRsp), byte(p.UnknownType)}, nil
}

func (p *UnknownRsp) Unmarshal(buf []byte) error {
	if err := header(buf, OpcodeUnknownRsp, 2); err != nil {
		return err
	}
	p.UnknownType = Opcode(buf[1])
	return nil
}

// FeatureSet is the LE feature bit mask. Vol 6, Part B, Section 4.6.
type FeatureSet uint64

const (
	FeatureLEEncryption                  FeatureSet = 1 << 0
	FeatureConnectionParametersRequest   FeatureSet = 1 << 1
	FeatureExtendedRejectIndication      FeatureSet = 1 << 2
	FeaturePeripheralInitiatedFeatures   FeatureSet = 1 << 3
	FeatureLEPing                        FeatureSet = 1 << 4
	FeatureLEDataPacketLengthExtension   FeatureSet = 1 << 5
	FeatureLLPrivacy                     FeatureSet = 1 << 6
	FeatureExtendedScannerFilterPolicies FeatureSet = 1 << 7
)

func marshalFeatures(op Opcode, f FeatureSet) []byte {
	b := make([]byte, 9)
	b[0] = byte(op)
	binary.LittleEndian.PutUint64(b[1:], uint64(f))
	return b
}

func unmarshalFeatures(buf []byte, op Opcode) (FeatureSet, error) {
	if err := header(buf, op, 9); err != nil {
		return 0, err
	}
	return FeatureSet(binary.LittleEndian.Uint64(buf[1:])), nil
}

type FeatureReq struct {
	FeatureSet
}

func (p *FeatureReq) Opcode() Opcode   { return OpcodeFeatureReq }
func (p *FeatureReq) EncodedSize() int { return 9 }

func (p *FeatureReq) Marshal() ([]byte, error) {
	return marshalFeatures(OpcodeFeatureReq, p.FeatureSet), nil
}

func (p *FeatureReq) Unmarshal(buf []byte) (err error) {
	p.FeatureSet, err = unmarshalFeatures(buf, OpcodeFeatureReq)
	return err
}

type FeatureRsp struct {
	FeatureSet
}

func (p *FeatureRsp) Opcode() Opcode   { return OpcodeFeatureRsp }
func (p *FeatureRsp) EncodedSize() int { return 9 }

func (p *FeatureRsp) Marshal() ([]byte, error) {
	return marshalFeatures(OpcodeFeatureRsp, p.FeatureSet), nil
}

func (p *FeatureRsp) Unmarshal(buf []byte) (err error) {
	p.FeatureSet, err = unmarshalFeatures(buf, OpcodeFeatureRsp)
	return err
}

type PeripheralFeatureReq struct {
	FeatureSet
}

func (p *PeripheralFeatureReq) Opcode() Opcode   { return OpcodePeripheralFeatureReq }
func (p *PeripheralFeatureReq) EncodedSize() int { return 9 }

func (p *PeripheralFeatureReq) Marshal() ([]byte, error) {
	return marshalFeatures(OpcodePeripheralFeatureReq, p.FeatureSet), nil
}

func (p *PeripheralFeatureReq) Unmarshal(buf []byte) (err error) {
	p.FeatureSet, err = unmarshalFeatures(buf, OpcodePeripheralFeatureReq)
	return err
}

// VersionInd exchanges Link Layer version information.
type VersionInd struct {
	VersNr    uint8
	CompID    uint16
	SubVersNr uint16
}

func (p *VersionInd) Opcode() Opcode   { return OpcodeVersionInd }
func (p *VersionInd) EncodedSize() int { return 6 }

func (p *VersionInd) Marshal() ([]byte, error) {
	b := make([]byte, 6)
	b[0] = byte(OpcodeVersionInd)
	b[1] = p.VersNr
	binary.LittleEndian.PutUint16(b[2:], p.CompID)
	binary.LittleEndian.PutUint16(b[4:], p.SubVersNr)
	return b, nil
}

func (p *VersionInd) Unmarshal(buf []byte) error {
	if err := header(buf, OpcodeVersionInd, 6); err != nil {
		return err
	}
	p.VersNr = buf[1]
	p.CompID = binary.LittleEndian.Uint16(buf[2:])
	p.SubVersNr = binary.LittleEndian.Uint16(buf[4:])
	return nil
}

type RejectInd struct {
	ErrorCode
}

func (p *RejectInd) Opcode() Opcode   { return OpcodeRejectInd }
func (p *RejectInd) EncodedSize() int { return 2 }

func (p *RejectInd) Marshal() ([]byte, error) {
	return []byte{byte(OpcodeRejectInd), byte(p.ErrorCode)}, nil
}

func (p *RejectInd) Unmarshal(buf []byte) error {
	if err := header(buf, OpcodeRejectInd, 2); err != nil {
		return err
	}
	p.ErrorCode = ErrorCode(buf[1])
	return nil
}

type RejectExtInd struct {
	RejectOpcode Opcode
	ErrorCode
}

func (p *RejectExtInd) Opcode() Opcode   { return OpcodeRejectExtInd }
func (p *RejectExtInd) EncodedSize() int { return 3 }

func (p *RejectExtInd) Marshal() ([]byte, error) {
	return []byte{byte(OpcodeRejectExtInd), byte(p.RejectOpcode), byte(p.ErrorCode)}, nil
}

func (p *RejectExtInd) Unmarshal(buf []byte) error {
	if err := header(buf, OpcodeRejectExtInd, 3); err != nil {
		return err
	}
	p.RejectOpcode = Opcode(buf[1])
	p.ErrorCode = ErrorCode(buf[2])
	return nil
}

type PingReq struct{}

func (p *PingReq) Opcode() Opcode           { return OpcodePingReq }
func (p *PingReq) EncodedSize() int         { return 1 }
func (p *PingReq) Marshal() ([]byte, error) { return []byte{byte(OpcodePingReq)}, nil }
func (p *PingReq) Unmarshal(buf []byte) error {
	return header(buf, OpcodePingReq, 1)
}

type PingRsp struct{}

func (p *PingRsp) Opcode() Opcode           { return OpcodePingRsp }
func (p *PingRsp) EncodedSize() int         { return 1 }
func (p *PingRsp) Marshal() ([]byte, error) { return []byte{byte(OpcodePingRsp)}, nil }
func (p *PingRsp) Unmarshal(buf []byte) error {
	return header(buf, OpcodePingRsp, 1)
}

// DataLength carries the data length extension parameters of LL_LENGTH_REQ
// and LL_LENGTH_RSP.
type DataLength struct {
	MaxRxOctets uint16
	MaxRxTime   uint16
	MaxTxOctets uint16
	MaxTxTime   uint16
}

func (d DataLength) marshal(op Opcode) []byte {
	b := make([]byte, 9)
	b[0] = byte(op)
	binary.LittleEndian.PutUint16(b[1:], d.MaxRxOctets)
	binary.LittleEndian.PutUint16(b[3:], d.MaxRxTime)
	binary.LittleEndian.PutUint16(b[5:], d.MaxTxOctets)
	binary.LittleEndian.PutUint16(b[7:], d.MaxTxTime)
	return b
}

func (d *DataLength) unmarshal(buf []byte, op Opcode) error {
	if err := header(buf, op, 9); err != nil {
		return err
	}
	d.MaxRxOctets = binary.LittleEndian.Uint16(buf[1:])
	d.MaxRxTime = binary.LittleEndian.Uint16(buf[3:])
	d.MaxTxOctets = binary.LittleEndian.Uint16(buf[5:])
	d.MaxTxTime = binary.LittleEndian.Uint16(buf[7:])
	return nil
}

type LengthReq struct {
	DataLength
}

func (p *LengthReq) Opcode() Opcode             { return OpcodeLengthReq }
func (p *LengthReq) EncodedSize() int           { return 9 }
func (p *LengthReq) Marshal() ([]byte, error)   { return p.marshal(OpcodeLengthReq), nil }
func (p *LengthReq) Unmarshal(buf []byte) error { return p.unmarshal(buf, OpcodeLengthReq) }

type LengthRsp struct {
	DataLength
}

func (p *LengthRsp) Opcode() Opcode             { return OpcodeLengthRsp }
func (p *LengthRsp) EncodedSize() int           { return 9 }
func (p *LengthRsp) Marshal() ([]byte, error)   { return p.marshal(OpcodeLengthRsp), nil }
func (p *LengthRsp) Unmarshal(buf []byte) error { return p.unmarshal(buf, OpcodeLengthRsp) }

// Other holds any control PDU without a dedicated type. The CtrData is kept
// verbatim.
type Other struct {
	Op      Opcode
	CtrData []byte
}

func (p *Other) Opcode() Opcode   { return p.Op }
func (p *Other) EncodedSize() int { return 1 + len(p.CtrData) }

func (p *Other) Marshal() ([]byte, error) {
	return append([]byte{byte(p.Op)}, p.CtrData...), nil
}

func (p *Other) Unmarshal(buf []byte) error {
	if len(buf) < 1 {
		return io.ErrShortBuffer
	}
	p.Op = Opcode(buf[0])
	p.CtrData = buf[1:]
	return nil
}
