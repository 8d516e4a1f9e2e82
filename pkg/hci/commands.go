package hci

import (
	"encoding/binary"
)

// Section 7.3.1
type EventMask uint64

const (
	EventMaskDisconnectionCompleteEvent        EventMask = (1 << 4)
	EventMaskEncryptionChangeEvent             EventMask = (1 << 7)
	EventMaskHardwareErrorEvent                EventMask = (1 << 15)
	EventMaskDataBufferOverflowEvent           EventMask = (1 << 25)
	EventMaskEncryptionKeyRefreshCompleteEvent EventMask = (1 << 47)
	EventMaskLEMetaEvent                       EventMask = (1 << 61)
)

type SetEventMaskCommandPacket struct {
	EventMask
}

func (p *SetEventMaskCommandPacket) Marshal() ([]byte, error) {
	buf := command(OpcodeSetEventMask, 8)
	binary.LittleEndian.PutUint64(buf[4:], uint64(p.EventMask))
	return buf, nil
}

func (p *SetEventMaskCommandPacket) Unmarshal(buf []byte) error {
	params, err := commandParams(buf, OpcodeSetEventMask, 8)
	if err != nil {
		return err
	}
	p.EventMask = EventMask(binary.LittleEndian.Uint64(params))
	return nil
}

func (p *SetEventMaskCommandPacket) Opcode() Opcode {
	return OpcodeSetEventMask
}

// Section 7.8.1
type LEEventMask uint64

const (
	LEEventMaskConnectionCompleteEvent             LEEventMask = (1 << 0)
	LEEventMaskAdvertisingReportEvent              LEEventMask = (1 << 1)
	LEEventMaskConnectionUpdateCompleteEvent       LEEventMask = (1 << 2)
	LEEventMaskReadRemoteUsedFeaturesCompleteEvent LEEventMask = (1 << 3)
	LEEventMaskLongTermKeyRequestEvent             LEEventMask = (1 << 4)
)

type LESetEventMaskCommandPacket struct {
	LEEventMask
}

func (p *LESetEventMaskCommandPacket) Marshal() ([]byte, error) {
	buf := command(OpcodeLESetEventMask, 8)
	binary.LittleEndian.PutUint64(buf[4:], uint64(p.LEEventMask))
	return buf, nil
}

func (p *LESetEventMaskCommandPacket) Unmarshal(buf []byte) error {
	params, err := commandParams(buf, OpcodeLESetEventMask, 8)
	if err != nil {
		return err
	}
	p.LEEventMask = LEEventMask(binary.LittleEndian.Uint64(params))
	return nil
}

func (p *LESetEventMaskCommandPacket) Opcode() Opcode {
	return OpcodeLESetEventMask
}

// Section 7.1.6
type DisconnectCommandPacket struct {
	ConnectionHandle uint16
	Reason           Status
}

func (p *DisconnectCommandPacket) Marshal() ([]byte, error) {
	buf := command(OpcodeDisconnect, 3)
	binary.LittleEndian.PutUint16(buf[4:], p.ConnectionHandle&HandleMask)
	buf[6] = byte(p.Reason)
	return buf, nil
}

func (p *DisconnectCommandPacket) Unmarshal(buf []byte) error {
	params, err := commandParams(buf, OpcodeDisconnect, 3)
	if err != nil {
		return err
	}
	p.ConnectionHandle = binary.LittleEndian.Uint16(params) & HandleMask
	p.Reason = Status(params[2])
	return nil
}

func (p *DisconnectCommandPacket) Opcode() Opcode {
	return OpcodeDisconnect
}

// Section 7.8.18. Intervals are in units of 1.25 ms, the supervision timeout
// in units of 10 ms and the connection event lengths in units of 0.625 ms.
type LEConnectionUpdateCommandPacket struct {
	ConnectionHandle   uint16
	IntervalMin        uint16
	IntervalMax        uint16
	MaxLatency         uint16
	SupervisionTimeout uint16
	MinCELength        uint16
	MaxCELength        uint16
}

func (p *LEConnectionUpdateCommandPacket) Marshal() ([]byte, error) {
	buf := command(OpcodeLEConnectionUpdate, 14)
	for i, v := range []uint16{
		p.ConnectionHandle & HandleMask,
		p.IntervalMin,
		p.IntervalMax,
		p.MaxLatency,
		p.SupervisionTimeout,
		p.MinCELength,
		p.MaxCELength,
	} {
		binary.LittleEndian.PutUint16(buf[4+i*2:], v)
	}
	return buf, nil
}

func (p *LEConnectionUpdateCommandPacket) Unmarshal(buf []byte) error {
	params, err := commandParams(buf, OpcodeLEConnectionUpdate, 14)
	if err != nil {
		return err
	}
	for i, v := range []*uint16{
		&p.ConnectionHandle,
		&p.IntervalMin,
		&p.IntervalMax,
		&p.MaxLatency,
		&p.SupervisionTimeout,
		&p.MinCELength,
		&p.MaxCELength,
	} {
		*v = binary.LittleEndian.Uint16(params[i*2:])
	}
	p.ConnectionHandle &= HandleMask
	return nil
}

func (p *LEConnectionUpdateCommandPacket) Opcode() Opcode {
	return OpcodeLEConnectionUpdate
}

type LEReadBufferSizeResponse struct {
	LEACLDataPacketLength    uint16
	TotalNumLEACLDataPackets uint8
	ISODataPacketLength      uint16
	TotalNumISODataPackets   uint8
}

type LESupportedStates uint64
