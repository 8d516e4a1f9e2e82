package llcp

import "fmt"

// Opcode identifies an LL Control PDU.
// Vol 6, Part B, Section 2.4.2 of the Bluetooth Core Specification.
type Opcode uint8

const (
	OpcodeConnectionUpdateInd  Opcode = 0x00
	OpcodeChannelMapInd        Opcode = 0x01
	OpcodeTerminateInd         Opcode = 0x02
	OpcodeEncReq               Opcode = 0x03
	OpcodeEncRsp               Opcode = 0x04
	OpcodeStartEncReq          Opcode = 0x05
	OpcodeStartEncRsp          Opcode = 0x06
	OpcodeUnknownRsp           Opcode = 0x07
	OpcodeFeatureReq           Opcode = 0x08
	OpcodeFeatureRsp           Opcode = 0x09
	OpcodePauseEncReq          Opcode = 0x0A
	OpcodePauseEncRsp          Opcode = 0x0B
	OpcodeVersionInd           Opcode = 0x0C
	OpcodeRejectInd            Opcode = 0x0D
	OpcodePeripheralFeatureReq Opcode = 0x0E
	OpcodeConnectionParamReq   Opcode = 0x0F
	OpcodeConnectionParamRsp   Opcode = 0x10
	OpcodeRejectExtInd         Opcode = 0x11
	OpcodePingReq              Opcode = 0x12
	OpcodePingRsp              Opcode = 0x13
	OpcodeLengthReq            Opcode = 0x14
	OpcodeLengthRsp            Opcode = 0x15
	OpcodePhyReq               Opcode = 0x16
	OpcodePhyRsp               Opcode = 0x17
	OpcodePhyUpdateInd         Opcode = 0x18
	OpcodeMinUsedChannelsInd   Opcode = 0x19
)

var opcodeNames = map[Opcode]string{
	OpcodeConnectionUpdateInd:  "LL_CONNECTION_UPDATE_IND",
	OpcodeChannelMapInd:        "LL_CHANNEL_MAP_IND",
	OpcodeTerminateInd:         "LL_TERMINATE_IND",
	OpcodeEncReq:               "LL_ENC_REQ",
	OpcodeEncRsp:               "LL_ENC_RSP",
	OpcodeStartEncReq:          "LL_START_ENC_REQ",
	OpcodeStartEncRsp:          "LL_START_ENC_RSP",
	OpcodeUnknownRsp:           "LL_UNKNOWN_RSP",
	OpcodeFeatureReq:           "LL_FEATURE_REQ",
	OpcodeFeatureRsp:           "LL_FEATURE_RSP",
	OpcodePauseEncReq:          "LL_PAUSE_ENC_REQ",
	OpcodePauseEncRsp:          "LL_PAUSE_ENC_RSP",
	OpcodeVersionInd:           "LL_VERSION_IND",
	OpcodeRejectInd:            "LL_REJECT_IND",
	OpcodePeripheralFeatureReq: "LL_PERIPHERAL_FEATURE_REQ",
	OpcodeConnectionParamReq:   "LL_CONNECTION_PARAM_REQ",
	OpcodeConnectionParamRsp:   "LL_CONNECTION_PARAM_RSP",
	OpcodeRejectExtInd:         "LL_REJECT_EXT_IND",
	OpcodePingReq:              "LL_PING_REQ",
	OpcodePingRsp:              "LL_PING_RSP",
	OpcodeLengthReq:            "LL_LENGTH_REQ",
	OpcodeLengthRsp:            "LL_LENGTH_RSP",
	OpcodePhyReq:               "LL_PHY_REQ",
	OpcodePhyRsp:               "LL_PHY_RSP",
	OpcodePhyUpdateInd:         "LL_PHY_UPDATE_IND",
	OpcodeMinUsedChannelsInd:   "LL_MIN_USED_CHANNELS_IND",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("LL_OPCODE(%#02x)", uint8(o))
}

// ErrorCode is a controller error code, carried by LL_TERMINATE_IND and the
// reject PDUs. Vol 1, Part F of the Bluetooth Core Specification.
type ErrorCode uint8

const (
	ErrorCodeUnknownConnectionIdentifier         ErrorCode = 0x02
	ErrorCodeRemoteUserTerminatedConnection      ErrorCode = 0x13
	ErrorCodeUnsupportedRemoteFeature            ErrorCode = 0x1A
	ErrorCodeInvalidLLParameters                 ErrorCode = 0x1E
	ErrorCodeUnspecifiedError                    ErrorCode = 0x1F
	ErrorCodeLLResponseTimeout                   ErrorCode = 0x22
	ErrorCodeLLProcedureCollision                ErrorCode = 0x23
	ErrorCodeDifferentTransactionCollision       ErrorCode = 0x2A
	ErrorCodeUnacceptableConnectionParameters    ErrorCode = 0x3B
	ErrorCodeConnectionTerminatedDueToMICFailure ErrorCode = 0x3D
	ErrorCodeConnectionFailedToBeEstablished     ErrorCode = 0x3E
)
