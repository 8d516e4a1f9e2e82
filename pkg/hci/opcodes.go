package hci

import "fmt"

type PacketType uint8

const (
	PacketTypeCommand         PacketType = 0x01
	PacketTypeACLData         PacketType = 0x02
	PacketTypeSynchronousData PacketType = 0x03
	PacketTypeEvent           PacketType = 0x04
	PacketTypeExtendedCommand PacketType = 0x09
)

type Opcode uint16

const (
	OpcodeDisconnect                 Opcode = 0x0406
	OpcodeSetEventMask               Opcode = 0x0C01
	OpcodeReset                      Opcode = 0x0C03
	OpcodeReadBDAddr                 Opcode = 0x1009
	OpcodeLESetEventMask             Opcode = 0x2001
	OpcodeLEReadBufferSize           Opcode = 0x2002
	OpcodeLESetAdvertisingParameters Opcode = 0x2006
	OpcodeLESetAdvertisingData       Opcode = 0x2008
	OpcodeLESetAdvertisingEnable     Opcode = 0x200A
	OpcodeLEConnectionUpdate         Opcode = 0x2013
	OpcodeLEReadSupportedStates      Opcode = 0x201C
)

var opcodeNames = map[Opcode]string{
	OpcodeDisconnect:                 "Disconnect",
	OpcodeSetEventMask:               "Set Event Mask",
	OpcodeReset:                      "Reset",
	OpcodeReadBDAddr:                 "Read BD_ADDR",
	OpcodeLESetEventMask:             "LE Set Event Mask",
	OpcodeLEReadBufferSize:           "LE Read Buffer Size",
	OpcodeLESetAdvertisingParameters: "LE Set Advertising Parameters",
	OpcodeLESetAdvertisingData:       "LE Set Advertising Data",
	OpcodeLESetAdvertisingEnable:     "LE Set Advertising Enable",
	OpcodeLEConnectionUpdate:         "LE Connection Update",
	OpcodeLEReadSupportedStates:      "LE Read Supported States",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("HCI(%#04x)", uint16(o))
}

type EventCode uint8

const (
	EventCodeDisconnectionComplete                EventCode = 0x05
	EventCodeEncryptionChange                     EventCode = 0x08
	EventCodeReadRemoteVersionInformationComplete EventCode = 0x0C
	EventCodeCommandComplete                      EventCode = 0x0E
	EventCodeCommandStatus                        EventCode = 0x0F
	EventCodeHardwareError                        EventCode = 0x10
	EventCodeNumberOfCompletedPackets             EventCode = 0x13
	EventCodeDataBufferOverflow                   EventCode = 0x1A
	EventCodeEncryptionKeyRefreshComplete         EventCode = 0x30
	EventCodeLEMeta                               EventCode = 0x3E
	EventCodeAuthenticatedPayloadTimeoutExpired   EventCode = 0x57
)

type LEMetaSubeventCode uint8

const (
	LEMetaSubeventCodeConnectionComplete             LEMetaSubeventCode = 0x01
	LEMetaSubeventCodeAdvertisingReport              LEMetaSubeventCode = 0x02
	LEMetaSubeventCodeConnectionUpdateComplete       LEMetaSubeventCode = 0x03
	LEMetaSubeventCodeReadRemoteUsedFeaturesComplete LEMetaSubeventCode = 0x04
	LEMetaSubeventCodeLongTermKeyRequest             LEMetaSubeventCode = 0x05
	LEMetaSubeventCodeReadLocalP256PublicKeyComplete LEMetaSubeventCode = 0x08
	LEMetaSubeventCodeGenerateDHKeyComplete          LEMetaSubeventCode = 0x09
	LEMetaSubeventCodeEnhancedConnectionComplete     LEMetaSubeventCode = 0x0A
	LEMetaSubeventCodePHYUpdateComplete              LEMetaSubeventCode = 0x0C
	LEMetaSubeventCodeExtendedAdvertisingReport      LEMetaSubeventCode = 0x0D
)

// Status is the status code carried by command and completion events.
type Status uint8

const (
	StatusSuccess                      Status = 0x00
	StatusUnknownConnectionIdentifier  Status = 0x02
	StatusCommandDisallowed            Status = 0x0C
	StatusInvalidParameters            Status = 0x12
	StatusRemoteUserTerminated         Status = 0x13
	StatusConnectionTerminatedByLocal  Status = 0x16
	StatusUnsupportedRemoteFeature     Status = 0x1A
	StatusUnacceptableConnectionParams Status = 0x3B
)

func (s Status) String() string {
	return fmt.Sprintf("status(%#02x)", uint8(s))
}
