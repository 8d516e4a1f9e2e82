package hci

import (
	"encoding/binary"
	"errors"
	"io"
)

// MaxAdvertisingDataLength is the legacy advertising payload limit.
const MaxAdvertisingDataLength = 31

var ErrInvalidAdvertisingInterval = errors.New("hci: invalid advertising interval")

type AdvertisingType uint8

const (
	AdvertisingTypeConnectableAndScannableUndirectedAdvertising AdvertisingType = 0x00
	AdvertisingTypeConnectableHighDutyCycleDirectedAdvertising  AdvertisingType = 0x01
	AdvertisingTypeScannableUndirectedAdvertising               AdvertisingType = 0x02
	AdvertisingTypeNonConnectableUndirectedAdvertising          AdvertisingType = 0x03
	AdvertisingTypeConnectableLowDutyCycleDirectedAdvertising   AdvertisingType = 0x04
)

type AdvertisingChannelMap uint8

const (
	AdvertisingChannelMapChannel37 AdvertisingChannelMap = 0x01
	AdvertisingChannelMapChannel38 AdvertisingChannelMap = 0x02
	AdvertisingChannelMapChannel39 AdvertisingChannelMap = 0x04

	AdvertisingChannelMapDefault AdvertisingChannelMap = 0x07
)

type AdvertisingFilterPolicy uint8

const (
	AdvertisingFilterPolicyAll                AdvertisingFilterPolicy = 0x00
	AdvertisingFilterPolicyScanFromFilterList AdvertisingFilterPolicy = 0x01
	AdvertisingFilterPolicyConnFromFilterList AdvertisingFilterPolicy = 0x02
	AdvertisingFilterPolicyFilterListOnly     AdvertisingFilterPolicy = 0x03
)

// Section 7.8.5. Intervals are in units of 0.625 ms and default to 1.28 s.
type LESetAdvertisingParametersCommandPacket struct {
	AdvertisingIntervalMin  uint16
	AdvertisingIntervalMax  uint16
	AdvertisingType         AdvertisingType
	OwnAddressType          OwnAddressType
	PeerAddressType         PeerAddressType
	PeerAddress             BDAddr
	AdvertisingChannelMap   AdvertisingChannelMap
	AdvertisingFilterPolicy AdvertisingFilterPolicy
}

// normalize fills zero fields with their defaults and validates the
// intervals.
func (p *LESetAdvertisingParametersCommandPacket) normalize() error {
	if p.AdvertisingIntervalMin == 0 {
		p.AdvertisingIntervalMin = 0x0800
	}
	if p.AdvertisingIntervalMax == 0 {
		p.AdvertisingIntervalMax = 0x0800
	}
	for _, v := range []uint16{p.AdvertisingIntervalMin, p.AdvertisingIntervalMax} {
		if v < 0x0020 || v > 0x4000 {
			return ErrInvalidAdvertisingInterval
		}
	}
	if p.AdvertisingIntervalMin > p.AdvertisingIntervalMax {
		return ErrInvalidAdvertisingInterval
	}
	if p.AdvertisingChannelMap == 0 {
		p.AdvertisingChannelMap = AdvertisingChannelMapDefault
	}
	return nil
}

func (p *LESetAdvertisingParametersCommandPacket) Marshal() ([]byte, error) {
	buf := command(OpcodeLESetAdvertisingParameters, 15)
	binary.LittleEndian.PutUint16(buf[4:], p.AdvertisingIntervalMin)
	binary.LittleEndian.PutUint16(buf[6:], p.AdvertisingIntervalMax)
	buf[8] = byte(p.AdvertisingType)
	buf[9] = byte(p.OwnAddressType)
	buf[10] = byte(p.PeerAddressType)
	copy(buf[11:], p.PeerAddress[:])
	buf[17] = byte(p.AdvertisingChannelMap)
	buf[18] = byte(p.AdvertisingFilterPolicy)
	return buf, nil
}

func (p *LESetAdvertisingParametersCommandPacket) Unmarshal(buf []byte) error {
	params, err := commandParams(buf, OpcodeLESetAdvertisingParameters, 15)
	if err != nil {
		return err
	}
	p.AdvertisingIntervalMin = binary.LittleEndian.Uint16(params[0:])
	p.AdvertisingIntervalMax = binary.LittleEndian.Uint16(params[2:])
	p.AdvertisingType = AdvertisingType(params[4])
	p.OwnAddressType = OwnAddressType(params[5])
	p.PeerAddressType = PeerAddressType(params[6])
	copy(p.PeerAddress[:], params[7:13])
	p.AdvertisingChannelMap = AdvertisingChannelMap(params[13])
	p.AdvertisingFilterPolicy = AdvertisingFilterPolicy(params[14])
	return nil
}

func (p *LESetAdvertisingParametersCommandPacket) Opcode() Opcode {
	return OpcodeLESetAdvertisingParameters
}

// DataType is one advertising data structure.
type DataType interface {
	Marshal() ([]byte, error)
}

type FlagsDataType uint8

const (
	FlagsDataTypeLELimitedDiscoverableMode FlagsDataType = (1 << 0)
	FlagsDataTypeLEGeneralDiscoverableMode FlagsDataType = (1 << 1)
	FlagsDataTypeBREDRNotSupported         FlagsDataType = (1 << 2)
)

func (f FlagsDataType) Marshal() ([]byte, error) {
	return []byte{0x02, 0x01, byte(f)}, nil
}

type CompleteLocalName string

func (l CompleteLocalName) Marshal() ([]byte, error) {
	if len(l) > MaxAdvertisingDataLength-2 {
		return nil, io.ErrShortWrite
	}
	return append([]byte{byte(len(l) + 1), 0x09}, []byte(l)...), nil
}

type LESetAdvertisingDataCommandPacket struct {
	AdvertisingData []DataType
}

func (p *LESetAdvertisingDataCommandPacket) Marshal() ([]byte, error) {
	var ads []byte
	for _, data := range p.AdvertisingData {
		ad, err := data.Marshal()
		if err != nil {
			return nil, err
		}
		ads = append(ads, ad...)
	}
	if len(ads) > MaxAdvertisingDataLength {
		return nil, io.ErrShortWrite
	}
	buf := command(OpcodeLESetAdvertisingData, 1+MaxAdvertisingDataLength)
	buf[4] = uint8(len(ads))
	copy(buf[5:], ads)
	return buf, nil
}

// Unmarshal is not supported because the data structures are not retained.
func (p *LESetAdvertisingDataCommandPacket) Unmarshal(buf []byte) error {
	return ErrUnsupportedPacket
}

func (p *LESetAdvertisingDataCommandPacket) Opcode() Opcode {
	return OpcodeLESetAdvertisingData
}

type LESetAdvertisingEnableCommandPacket struct {
	AdvertisingEnable bool
}

func (p *LESetAdvertisingEnableCommandPacket) Marshal() ([]byte, error) {
	buf := command(OpcodeLESetAdvertisingEnable, 1)
	if p.AdvertisingEnable {
		buf[4] = 1
	}
	return buf, nil
}

func (p *LESetAdvertisingEnableCommandPacket) Unmarshal(buf []byte) error {
	params, err := commandParams(buf, OpcodeLESetAdvertisingEnable, 1)
	if err != nil {
		return err
	}
	p.AdvertisingEnable = params[0] == 1
	return nil
}

func (p *LESetAdvertisingEnableCommandPacket) Opcode() Opcode {
	return OpcodeLESetAdvertisingEnable
}
