package l2cap

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	ErrInvalidCode    = errors.New("l2cap: invalid command code")
	ErrInvalidLength  = errors.New("l2cap: invalid command length")
	ErrUnknownCommand = errors.New("l2cap: unknown command")
)

// CommandHeaderSize is the size of the code, identifier and length fields
// that start every signalling command.
const CommandHeaderSize = 4

// CommandHeader is the part of a signalling command common to every code.
type CommandHeader struct {
	Code       Code
	Identifier uint8
	Length     uint16
}

func UnmarshalCommandHeader(buf []byte) (CommandHeader, error) {
	if len(buf) < CommandHeaderSize {
		return CommandHeader{}, io.ErrShortBuffer
	}
	return CommandHeader{
		Code:       Code(buf[0]),
		Identifier: buf[1],
		Length:     binary.LittleEndian.Uint16(buf[2:]),
	}, nil
}

type SignallingPacket interface {
	Code() Code
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

func UnmarshalSignallingPacket(buf []byte) (SignallingPacket, error) {
	h, err := UnmarshalCommandHeader(buf)
	if err != nil {
		return nil, err
	}
	var p SignallingPacket
	switch h.Code {
	case CodeCommandReject:
		p = &CommandRejectPacket{}
	case CodeDisconnectionRequest:
		p = &DisconnectionRequestPacket{}
	case CodeDisconnectionResponse:
		p = &DisconnectionResponsePacket{}
	case CodeConnectionParameterUpdateRequest:
		p = &ConnectionParameterUpdateRequestPacket{}
	case CodeConnectionParameterUpdateResponse:
		p = &ConnectionParameterUpdateResponsePacket{}
	case CodeLECreditBasedConnectionRequest:
		p = &LECreditBasedConnectionRequestPacket{}
	case CodeLECreditBasedConnectionResponse:
		p = &LECreditBasedConnectionResponsePacket{}
	case CodeFlowControlCreditInd:
		p = &FlowControlCreditIndicationPacket{}
	default:
		return nil, ErrUnknownCommand
	}
	return p, p.Unmarshal(buf)
}

// command allocates a command of the given data size with its header filled in.
func command(code Code, identifier uint8, size int) []byte {
	b := make([]byte, CommandHeaderSize+size)
	b[0] = byte(code)
	b[1] = identifier
	binary.LittleEndian.PutUint16(b[2:], uint16(size))
	return b
}

// commandData validates the header of buf and returns the identifier and the
// command data. A negative size accepts any data length of at least -size.
func commandData(buf []byte, code Code, size int) (uint8, []byte, error) {
	h, err := UnmarshalCommandHeader(buf)
	if err != nil {
		return 0, nil, err
	}
	if h.Code != code {
		return 0, nil, ErrInvalidCode
	}
	data := buf[CommandHeaderSize:]
	if int(h.Length) != len(data) {
		return 0, nil, ErrInvalidLength
	}
	if size >= 0 && len(data) != size || size < 0 && len(data) < -size {
		return 0, nil, ErrInvalidLength
	}
	return h.Identifier, data, nil
}

type CommandRejectReason uint16

const (
	CommandRejectReasonCommandNotUnderstood CommandRejectReason = 0x0000
	CommandRejectReasonSignalingMTUExceeded CommandRejectReason = 0x0001
	CommandRejectReasonInvalidCIDInRequest  CommandRejectReason = 0x0002
)

type CommandRejectPacket struct {
	CommandRejectReason
	Identifier uint8
	ReasonData []byte
}

func (p *CommandRejectPacket) Code() Code { return CodeCommandReject }

func (p *CommandRejectPacket) Marshal() ([]byte, error) {
	b := command(CodeCommandReject, p.Identifier, 2+len(p.ReasonData))
	binary.LittleEndian.PutUint16(b[4:], uint16(p.CommandRejectReason))
	copy(b[6:], p.ReasonData)
	return b, nil
}

func (p *CommandRejectPacket) Unmarshal(buf []byte) error {
	id, data, err := commandData(buf, CodeCommandReject, -2)
	if err != nil {
		return err
	}
	p.Identifier = id
	p.CommandRejectReason = CommandRejectReason(binary.LittleEndian.Uint16(data))
	p.ReasonData = data[2:]
	return nil
}

type DisconnectionRequestPacket struct {
	Identifier     uint8
	DestinationCID ChannelID
	SourceCID      ChannelID
}

func (p *DisconnectionRequestPacket) Code() Code { return CodeDisconnectionRequest }

func (p *DisconnectionRequestPacket) Marshal() ([]byte, error) {
	b := command(CodeDisconnectionRequest, p.Identifier, 4)
	binary.LittleEndian.PutUint16(b[4:], uint16(p.DestinationCID))
	binary.LittleEndian.PutUint16(b[6:], uint16(p.SourceCID))
	return b, nil
}

func (p *DisconnectionRequestPacket) Unmarshal(buf []byte) error {
	id, data, err := commandData(buf, CodeDisconnectionRequest, 4)
	if err != nil {
		return err
	}
	p.Identifier = id
	p.DestinationCID = ChannelID(binary.LittleEndian.Uint16(data[0:]))
	p.SourceCID = ChannelID(binary.LittleEndian.Uint16(data[2:]))
	return nil
}

type DisconnectionResponsePacket struct {
	Identifier     uint8
	DestinationCID ChannelID
	SourceCID      ChannelID
}

func (p *DisconnectionResponsePacket) Code() Code { return CodeDisconnectionResponse }

func (p *DisconnectionResponsePacket) Marshal() ([]byte, error) {
	b := command(CodeDisconnectionResponse, p.Identifier, 4)
	binary.LittleEndian.PutUint16(b[4:], uint16(p.DestinationCID))
	binary.LittleEndian.PutUint16(b[6:], uint16(p.SourceCID))
	return b, nil
}

func (p *DisconnectionResponsePacket) Unmarshal(buf []byte) error {
	id, data, err := commandData(buf, CodeDisconnectionResponse, 4)
	if err != nil {
		return err
	}
	p.Identifier = id
	p.DestinationCID = ChannelID(binary.LittleEndian.Uint16(data[0:]))
	p.SourceCID = ChannelID(binary.LittleEndian.Uint16(data[2:]))
	return nil
}

// ConnectionParameterUpdateRequestPacket is sent by the peripheral to ask the
// central for new connection parameters. Intervals are in units of 1.25 ms
// and Timeout in units of 10 ms.
type ConnectionParameterUpdateRequestPacket struct {
	Identifier  uint8
	IntervalMin uint16
	IntervalMax uint16
	Latency     uint16
	Timeout     uint16
}

func (p *ConnectionParameterUpdateRequestPacket) Code() Code {
	return CodeConnectionParameterUpdateRequest
}

func (p *ConnectionParameterUpdateRequestPacket) Marshal() ([]byte, error) {
	b := command(CodeConnectionParameterUpdateRequest, p.Identifier, 8)
	binary.LittleEndian.PutUint16(b[4:], p.IntervalMin)
	binary.LittleEndian.PutUint16(b[6:], p.IntervalMax)
	binary.LittleEndian.PutUint16(b[8:], p.Latency)
	binary.LittleEndian.PutUint16(b[10:], p.Timeout)
	return b, nil
}

func (p *ConnectionParameterUpdateRequestPacket) Unmarshal(buf []byte) error {
	id, data, err := commandData(buf, CodeConnectionParameterUpdateRequest, 8)
	if err != nil {
		return err
	}
	p.Identifier = id
	p.IntervalMin = binary.LittleEndian.Uint16(data[0:])
	p.IntervalMax = binary.LittleEndian.Uint16(data[2:])
	p.Latency = binary.LittleEndian.Uint16(data[4:])
	p.Timeout = binary.LittleEndian.Uint16(data[6:])
	return nil
}

type ConnectionParameterUpdateResult uint16

const (
	ConnectionParameterUpdateResultAccepted ConnectionParameterUpdateResult = 0x0000
	ConnectionParameterUpdateResultRejected ConnectionParameterUpdateResult = 0x0001
)

func (r ConnectionParameterUpdateResult) String() string {
	switch r {
	case ConnectionParameterUpdateResultAccepted:
		return "accepted"
	case ConnectionParameterUpdateResultRejected:
		return "rejected"
	}
	return "unknown"
}

type ConnectionParameterUpdateResponsePacket struct {
	Identifier uint8
	Result     ConnectionParameterUpdateResult
}

func (p *ConnectionParameterUpdateResponsePacket) Code() Code {
	return CodeConnectionParameterUpdateResponse
}

func (p *ConnectionParameterUpdateResponsePacket) Marshal() ([]byte, error) {
	b := command(CodeConnectionParameterUpdateResponse, p.Identifier, 2)
	binary.LittleEndian.PutUint16(b[4:], uint16(p.Result))
	return b, nil
}

func (p *ConnectionParameterUpdateResponsePacket) Unmarshal(buf []byte) error {
	id, data, err := commandData(buf, CodeConnectionParameterUpdateResponse, 2)
	if err != nil {
		return err
	}
	p.Identifier = id
	p.Result = ConnectionParameterUpdateResult(binary.LittleEndian.Uint16(data))
	return nil
}

type LECreditBasedConnectionRequestPacket struct {
	Identifier     uint8
	SPSM           uint16
	SourceCID      ChannelID
	MTU            uint16
	MPS            uint16
	InitialCredits uint16
}

func (p *LECreditBasedConnectionRequestPacket) Code() Code {
	return CodeLECreditBasedConnectionRequest
}

func (p *LECreditBasedConnectionRequestPacket) Marshal() ([]byte, error) {
	b := command(CodeLECreditBasedConnectionRequest, p.Identifier, 10)
	binary.LittleEndian.PutUint16(b[4:], p.SPSM)
	binary.LittleEndian.PutUint16(b[6:], uint16(p.SourceCID))
	binary.LittleEndian.PutUint16(b[8:], p.MTU)
	binary.LittleEndian.PutUint16(b[10:], p.MPS)
	binary.LittleEndian.PutUint16(b[12:], p.InitialCredits)
	return b, nil
}

func (p *LECreditBasedConnectionRequestPacket) Unmarshal(buf []byte) error {
	id, data, err := commandData(buf, CodeLECreditBasedConnectionRequest, 10)
	if err != nil {
		return err
	}
	p.Identifier = id
	p.SPSM = binary.LittleEndian.Uint16(data[0:])
	p.SourceCID = ChannelID(binary.LittleEndian.Uint16(data[2:]))
	p.MTU = binary.LittleEndian.Uint16(data[4:])
	p.MPS = binary.LittleEndian.Uint16(data[6:])
	p.InitialCredits = binary.LittleEndian.Uint16(data[8:])
	return nil
}

type LECreditBasedConnectionResult uint16

const (
	LECreditBasedConnectionResultSuccessful                        LECreditBasedConnectionResult = 0x0000
	LECreditBasedConnectionResultRefusedSPSMNotSupported           LECreditBasedConnectionResult = 0x0002
	LECreditBasedConnectionResultRefusedNoResourcesAvailable       LECreditBasedConnectionResult = 0x0004
	LECreditBasedConnectionResultRefusedInsufficientAuthentication LECreditBasedConnectionResult = 0x0005
	LECreditBasedConnectionResultRefusedInsufficientAuthorization  LECreditBasedConnectionResult = 0x0006
	LECreditBasedConnectionResultRefusedEncryptionKeySizeTooShort  LECreditBasedConnectionResult = 0x0007
	LECreditBasedConnectionResultRefusedInsufficientEncryption     LECreditBasedConnectionResult = 0x0008
	LECreditBasedConnectionResultRefusedInvalidSourceCID           LECreditBasedConnectionResult = 0x0009
	LECreditBasedConnectionResultRefusedSourceCIDAlreadyAllocated  LECreditBasedConnectionResult = 0x000A
	LECreditBasedConnectionResultRefusedUnacceptableParameters     LECreditBasedConnectionResult = 0x000B
)

type LECreditBasedConnectionResponsePacket struct {
	Identifier     uint8
	DestinationCID ChannelID
	MTU            uint16
	MPS            uint16
	InitialCredits uint16
	Result         LECreditBasedConnectionResult
}

func (p *LECreditBasedConnectionResponsePacket) Code() Code {
	return CodeLECreditBasedConnectionResponse
}

func (p *LECreditBasedConnectionResponsePacket) Marshal() ([]byte, error) {
	b := command(CodeLECreditBasedConnectionResponse, p.Identifier, 10)
	binary.LittleEndian.PutUint16(b[4:], uint16(p.DestinationCID))
	binary.LittleEndian.PutUint16(b[6:], p.MTU)
	binary.LittleEndian.PutUint16(b[8:], p.MPS)
	binary.LittleEndian.PutUint16(b[10:], p.InitialCredits)
	binary.LittleEndian.PutUint16(b[12:], uint16(p.Result))
	return b, nil
}

func (p *LECreditBasedConnectionResponsePacket) Unmarshal(buf []byte) error {
	id, data, err := commandData(buf, CodeLECreditBasedConnectionResponse, 10)
	if err != nil {
		return err
	}
	p.Identifier = id
	p.DestinationCID = ChannelID(binary.LittleEndian.Uint16(data[0:]))
	p.MTU = binary.LittleEndian.Uint16(data[2:])
	p.MPS = binary.LittleEndian.Uint16(data[4:])
	p.InitialCredits = binary.LittleEndian.Uint16(data[6:])
	p.Result = LECreditBasedConnectionResult(binary.LittleEndian.Uint16(data[8:]))
	return nil
}

type FlowControlCreditIndicationPacket struct {
	Identifier uint8
	CID        ChannelID
	Credits    uint16
}

func (p *FlowControlCreditIndicationPacket) Code() Code { return CodeFlowControlCreditInd }

func (p *FlowControlCreditIndicationPacket) Marshal() ([]byte, error) {
	b := command(CodeFlowControlCreditInd, p.Identifier, 4)
	binary.LittleEndian.PutUint16(b[4:], uint16(p.CID))
	binary.LittleEndian.PutUint16(b[6:], p.Credits)
	return b, nil
}

func (p *FlowControlCreditIndicationPacket) Unmarshal(buf []byte) error {
	id, data, err := commandData(buf, CodeFlowControlCreditInd, 4)
	if err != nil {
		return err
	}
	p.Identifier = id
	p.CID = ChannelID(binary.LittleEndian.Uint16(data[0:]))
	p.Credits = binary.LittleEndian.Uint16(data[2:])
	return nil
}
