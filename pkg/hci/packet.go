package hci

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	ErrIncorrectPacket   = errors.New("hci: incorrect packet")
	ErrUnsupportedPacket = errors.New("hci: unsupported packet type")
)

type Packet interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

type CommandPacket interface {
	Packet
	Opcode() Opcode
}

// Unmarshal decodes a packet prefixed with its packet type indicator. Events
// without a dedicated type decode to a GenericEventPacket.
func Unmarshal(buf []byte) (Packet, error) {
	if len(buf) == 0 {
		return nil, io.ErrShortBuffer
	}
	var p Packet
	switch PacketType(buf[0]) {
	case PacketTypeCommand:
		p = &GenericCommandPacket{}
	case PacketTypeEvent:
		if len(buf) < 3 || len(buf) != int(buf[2])+3 {
			return nil, io.ErrShortBuffer
		}
		p = newEvent(buf)
	case PacketTypeACLData:
		p = &ACLDataPacket{}
	default:
		return nil, fmt.Errorf("%w: %#02x", ErrUnsupportedPacket, buf[0])
	}
	if err := p.Unmarshal(buf); err != nil {
		return nil, err
	}
	return p, nil
}

func newEvent(buf []byte) Packet {
	switch EventCode(buf[1]) {
	case EventCodeCommandComplete:
		return &CommandCompleteEventPacket{}
	case EventCodeCommandStatus:
		return &CommandStatusEventPacket{}
	case EventCodeNumberOfCompletedPackets:
		return &NumberOfCompletedPacketsEventPacket{}
	case EventCodeDisconnectionComplete:
		return &DisconnectionCompleteEventPacket{}
	case EventCodeLEMeta:
		if len(buf) < 4 {
			break
		}
		switch LEMetaSubeventCode(buf[3]) {
		case LEMetaSubeventCodeConnectionComplete:
			return &LEConnectionCompleteEventPacket{}
		case LEMetaSubeventCodeConnectionUpdateComplete:
			return &LEConnectionUpdateCompleteEventPacket{}
		}
	}
	return &GenericEventPacket{}
}

// event allocates an event packet with room for size parameter bytes.
func event(code EventCode, size int) []byte {
	buf := make([]byte, 3+size)
	buf[0] = byte(PacketTypeEvent)
	buf[1] = byte(code)
	buf[2] = byte(size)
	return buf
}

// eventParams validates the event header and returns the parameters. A
// negative size is a minimum.
func eventParams(buf []byte, code EventCode, size int) ([]byte, error) {
	if len(buf) < 3 || buf[0] != byte(PacketTypeEvent) || buf[1] != byte(code) {
		return nil, ErrIncorrectPacket
	}
	params := buf[3:]
	if len(params) != int(buf[2]) {
		return nil, io.ErrShortBuffer
	}
	if (size >= 0 && len(params) != size) || len(params) < -size {
		return nil, io.ErrShortBuffer
	}
	return params, nil
}

// command allocates a command packet with room for size parameter bytes.
func command(op Opcode, size int) []byte {
	buf := make([]byte, 4+size)
	buf[0] = byte(PacketTypeCommand)
	binary.LittleEndian.PutUint16(buf[1:], uint16(op))
	buf[3] = byte(size)
	return buf
}

func commandParams(buf []byte, op Opcode, size int) ([]byte, error) {
	if len(buf) < 4 || buf[0] != byte(PacketTypeCommand) || binary.LittleEndian.Uint16(buf[1:]) != uint16(op) {
		return nil, ErrIncorrectPacket
	}
	if int(buf[3]) != size || len(buf) != 4+size {
		return nil, io.ErrShortBuffer
	}
	return buf[4:], nil
}

// PacketBoundary is the packet boundary flag of an ACL data packet.
type PacketBoundary uint8

const (
	PacketBoundaryFirstNonFlushable PacketBoundary = 0b00
	PacketBoundaryContinuing        PacketBoundary = 0b01
	PacketBoundaryFirstFlushable    PacketBoundary = 0b10
)

type ACLDataPacket struct {
	PacketBoundaryFlag PacketBoundary
	BroadcastFlag      uint8
	ConnectionHandle   uint16
	Payload            []byte
}

func (p *ACLDataPacket) Unmarshal(buf []byte) error {
	if len(buf) < 5 || buf[0] != byte(PacketTypeACLData) {
		return ErrIncorrectPacket
	}
	b := binary.LittleEndian.Uint16(buf[1:])
	p.PacketBoundaryFlag = PacketBoundary((b >> 12) & 0x03)
	p.BroadcastFlag = byte((b >> 14) & 0x03)
	p.ConnectionHandle = b & HandleMask
	s := binary.LittleEndian.Uint16(buf[3:])
	if len(buf) != int(s)+5 {
		return io.ErrShortBuffer
	}
	p.Payload = buf[5:]
	return nil
}

func (p *ACLDataPacket) Marshal() ([]byte, error) {
	if len(p.Payload) > math.MaxUint16 {
		return nil, io.ErrShortWrite
	}
	buf := make([]byte, 5, 5+len(p.Payload))
	buf[0] = byte(PacketTypeACLData)
	binary.LittleEndian.PutUint16(buf[1:], (p.ConnectionHandle&HandleMask)|(uint16(p.PacketBoundaryFlag)<<12)|(uint16(p.BroadcastFlag)<<14))
	binary.LittleEndian.PutUint16(buf[3:], uint16(len(p.Payload)))
	return append(buf, p.Payload...), nil
}

// GenericCommandPacket encompasses many argument-less packets.
type GenericCommandPacket struct {
	opcode Opcode
}

func NewGenericCommandPacket(opcode Opcode) *GenericCommandPacket {
	return &GenericCommandPacket{opcode}
}

func (p *GenericCommandPacket) Marshal() ([]byte, error) {
	return command(p.opcode, 0), nil
}

func (p *GenericCommandPacket) Unmarshal(buf []byte) error {
	if len(buf) < 4 || buf[0] != byte(PacketTypeCommand) {
		return ErrIncorrectPacket
	}
	if buf[3] != 0 || len(buf) != 4 {
		return io.ErrShortBuffer
	}
	p.opcode = Opcode(binary.LittleEndian.Uint16(buf[1:3]))
	return nil
}

func (p *GenericCommandPacket) Opcode() Opcode {
	return p.opcode
}

// GenericEventPacket holds an event this package does not interpret.
type GenericEventPacket struct {
	Code   EventCode
	Params []byte
}

func (p *GenericEventPacket) Unmarshal(buf []byte) error {
	if len(buf) < 3 || buf[0] != byte(PacketTypeEvent) {
		return ErrIncorrectPacket
	}
	if len(buf) != int(buf[2])+3 {
		return io.ErrShortBuffer
	}
	p.Code = EventCode(buf[1])
	p.Params = buf[3:]
	return nil
}

func (p *GenericEventPacket) Marshal() ([]byte, error) {
	if len(p.Params) > math.MaxUint8 {
		return nil, io.ErrShortWrite
	}
	buf := event(p.Code, len(p.Params))
	copy(buf[3:], p.Params)
	return buf, nil
}

type CommandCompleteEventPacket struct {
	NumCommandPackets uint8
	CommandOpcode     Opcode
	ReturnParameters  []byte
}

func (p *CommandCompleteEventPacket) Unmarshal(buf []byte) error {
	params, err := eventParams(buf, EventCodeCommandComplete, -3)
	if err != nil {
		return err
	}
	p.NumCommandPackets = params[0]
	p.CommandOpcode = Opcode(binary.LittleEndian.Uint16(params[1:]))
	p.ReturnParameters = params[3:]
	return nil
}

func (p *CommandCompleteEventPacket) Marshal() ([]byte, error) {
	if len(p.ReturnParameters)+3 > math.MaxUint8 {
		return nil, io.ErrShortWrite
	}
	buf := event(EventCodeCommandComplete, 3+len(p.ReturnParameters))
	buf[3] = p.NumCommandPackets
	binary.LittleEndian.PutUint16(buf[4:], uint16(p.CommandOpcode))
	copy(buf[6:], p.ReturnParameters)
	return buf, nil
}

// CommandStatusEventPacket acknowledges a command that completes later with
// its own event.
type CommandStatusEventPacket struct {
	Status            Status
	NumCommandPackets uint8
	CommandOpcode     Opcode
}

func (p *CommandStatusEventPacket) Unmarshal(buf []byte) error {
	params, err := eventParams(buf, EventCodeCommandStatus, 4)
	if err != nil {
		return err
	}
	p.Status = Status(params[0])
	p.NumCommandPackets = params[1]
	p.CommandOpcode = Opcode(binary.LittleEndian.Uint16(params[2:]))
	return nil
}

func (p *CommandStatusEventPacket) Marshal() ([]byte, error) {
	buf := event(EventCodeCommandStatus, 4)
	buf[3] = byte(p.Status)
	buf[4] = p.NumCommandPackets
	binary.LittleEndian.PutUint16(buf[5:], uint16(p.CommandOpcode))
	return buf, nil
}

type CompletedPackets struct {
	ConnectionHandle uint16
	NumCompleted     uint16
}

type NumberOfCompletedPacketsEventPacket struct {
	Handles []CompletedPackets
}

func (p *NumberOfCompletedPacketsEventPacket) Unmarshal(buf []byte) error {
	params, err := eventParams(buf, EventCodeNumberOfCompletedPackets, -1)
	if err != nil {
		return err
	}
	n := int(params[0])
	if len(params) != 1+n*4 {
		return io.ErrShortBuffer
	}
	p.Handles = make([]CompletedPackets, n)
	for i := range p.Handles {
		b := params[1+i*4:]
		p.Handles[i] = CompletedPackets{
			ConnectionHandle: binary.LittleEndian.Uint16(b) & HandleMask,
			NumCompleted:     binary.LittleEndian.Uint16(b[2:]),
		}
	}
	return nil
}

func (p *NumberOfCompletedPacketsEventPacket) Marshal() ([]byte, error) {
	if 1+len(p.Handles)*4 > math.MaxUint8 {
		return nil, io.ErrShortWrite
	}
	buf := event(EventCodeNumberOfCompletedPackets, 1+len(p.Handles)*4)
	buf[3] = byte(len(p.Handles))
	for i, h := range p.Handles {
		binary.LittleEndian.PutUint16(buf[4+i*4:], h.ConnectionHandle)
		binary.LittleEndian.PutUint16(buf[6+i*4:], h.NumCompleted)
	}
	return buf, nil
}

type DisconnectionCompleteEventPacket struct {
	Status           Status
	ConnectionHandle uint16
	Reason           Status
}

func (p *DisconnectionCompleteEventPacket) Unmarshal(buf []byte) error {
	params, err := eventParams(buf, EventCodeDisconnectionComplete, 4)
	if err != nil {
		return err
	}
	p.Status = Status(params[0])
	p.ConnectionHandle = binary.LittleEndian.Uint16(params[1:]) & HandleMask
	p.Reason = Status(params[3])
	return nil
}

func (p *DisconnectionCompleteEventPacket) Marshal() ([]byte, error) {
	buf := event(EventCodeDisconnectionComplete, 4)
	buf[3] = byte(p.Status)
	binary.LittleEndian.PutUint16(buf[4:], p.ConnectionHandle)
	buf[6] = byte(p.Reason)
	return buf, nil
}

// leMetaParams validates an LE meta event and returns the parameters that
// follow the subevent code and status.
func leMetaParams(buf []byte, sub LEMetaSubeventCode, size int) (Status, []byte, error) {
	params, err := eventParams(buf, EventCodeLEMeta, 2+size)
	if err != nil {
		return 0, nil, err
	}
	if params[0] != byte(sub) {
		return 0, nil, ErrIncorrectPacket
	}
	return Status(params[1]), params[2:], nil
}

func leMeta(sub LEMetaSubeventCode, status Status, size int) []byte {
	buf := event(EventCodeLEMeta, 2+size)
	buf[3] = byte(sub)
	buf[4] = byte(status)
	return buf
}

type LEConnectionCompleteEventPacket struct {
	Status               Status
	ConnectionHandle     uint16
	Role                 Role
	PeerAddressType      PeerAddressType
	PeerAddress          BDAddr
	ConnectionInterval   uint16
	PeripheralLatency    uint16
	SupervisionTimeout   uint16
	CentralClockAccuracy CentralClockAccuracy
}

func (p *LEConnectionCompleteEventPacket) Marshal() ([]byte, error) {
	buf := leMeta(LEMetaSubeventCodeConnectionComplete, p.Status, 17)
	b := buf[5:]
	binary.LittleEndian.PutUint16(b[0:], p.ConnectionHandle)
	b[2] = byte(p.Role)
	b[3] = byte(p.PeerAddressType)
	copy(b[4:10], p.PeerAddress[:])
	binary.LittleEndian.PutUint16(b[10:], p.ConnectionInterval)
	binary.LittleEndian.PutUint16(b[12:], p.PeripheralLatency)
	binary.LittleEndian.PutUint16(b[14:], p.SupervisionTimeout)
	b[16] = byte(p.CentralClockAccuracy)
	return buf, nil
}

func (p *LEConnectionCompleteEventPacket) Unmarshal(buf []byte) error {
	status, b, err := leMetaParams(buf, LEMetaSubeventCodeConnectionComplete, 17)
	if err != nil {
		return err
	}
	p.Status = status
	p.ConnectionHandle = binary.LittleEndian.Uint16(b[0:]) & HandleMask
	p.Role = Role(b[2])
	p.PeerAddressType = PeerAddressType(b[3])
	copy(p.PeerAddress[:], b[4:10])
	p.ConnectionInterval = binary.LittleEndian.Uint16(b[10:])
	p.PeripheralLatency = binary.LittleEndian.Uint16(b[12:])
	p.SupervisionTimeout = binary.LittleEndian.Uint16(b[14:])
	p.CentralClockAccuracy = CentralClockAccuracy(b[16])
	return nil
}

type LEConnectionUpdateCompleteEventPacket struct {
	Status             Status
	ConnectionHandle   uint16
	ConnectionInterval uint16
	PeripheralLatency  uint16
	SupervisionTimeout uint16
}

func (p *LEConnectionUpdateCompleteEventPacket) Marshal() ([]byte, error) {
	buf := leMeta(LEMetaSubeventCodeConnectionUpdateComplete, p.Status, 8)
	b := buf[5:]
	binary.LittleEndian.PutUint16(b[0:], p.ConnectionHandle)
	binary.LittleEndian.PutUint16(b[2:], p.ConnectionInterval)
	binary.LittleEndian.PutUint16(b[4:], p.PeripheralLatency)
	binary.LittleEndian.PutUint16(b[6:], p.SupervisionTimeout)
	return buf, nil
}

func (p *LEConnectionUpdateCompleteEventPacket) Unmarshal(buf []byte) error {
	status, b, err := leMetaParams(buf, LEMetaSubeventCodeConnectionUpdateComplete, 8)
	if err != nil {
		return err
	}
	p.Status = status
	p.ConnectionHandle = binary.LittleEndian.Uint16(b[0:]) & HandleMask
	p.ConnectionInterval = binary.LittleEndian.Uint16(b[2:])
	p.PeripheralLatency = binary.LittleEndian.Uint16(b[4:])
	p.SupervisionTimeout = binary.LittleEndian.Uint16(b[6:])
	return nil
}
