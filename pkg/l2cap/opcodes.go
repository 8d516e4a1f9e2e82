package l2cap

import "fmt"

// Code identifies a signalling command. Only the commands valid on the LE-U
// signalling channel are listed. Vol 3, Part A, Section 4.
type Code uint8

const (
	CodeCommandReject                     Code = 0x01
	CodeDisconnectionRequest              Code = 0x06
	CodeDisconnectionResponse             Code = 0x07
	CodeConnectionParameterUpdateRequest  Code = 0x12
	CodeConnectionParameterUpdateResponse Code = 0x13
	CodeLECreditBasedConnectionRequest    Code = 0x14
	CodeLECreditBasedConnectionResponse   Code = 0x15
	CodeFlowControlCreditInd              Code = 0x16
)

func (c Code) String() string {
	switch c {
	case CodeCommandReject:
		return "L2CAP_COMMAND_REJECT_RSP"
	case CodeDisconnectionRequest:
		return "L2CAP_DISCONNECTION_REQ"
	case CodeDisconnectionResponse:
		return "L2CAP_DISCONNECTION_RSP"
	case CodeConnectionParameterUpdateRequest:
		return "L2CAP_CONNECTION_PARAMETER_UPDATE_REQ"
	case CodeConnectionParameterUpdateResponse:
		return "L2CAP_CONNECTION_PARAMETER_UPDATE_RSP"
	case CodeLECreditBasedConnectionRequest:
		return "L2CAP_LE_CREDIT_BASED_CONNECTION_REQ"
	case CodeLECreditBasedConnectionResponse:
		return "L2CAP_LE_CREDIT_BASED_CONNECTION_RSP"
	case CodeFlowControlCreditInd:
		return "L2CAP_FLOW_CONTROL_CREDIT_IND"
	}
	return fmt.Sprintf("L2CAP_CODE(%#02x)", uint8(c))
}

// ChannelID is an L2CAP channel identifier. Section 2.1.
type ChannelID uint16

const (
	ChannelIDNull                    ChannelID = 0x0000
	ChannelIDAttributeProtocol       ChannelID = 0x0004
	ChannelIDSignallingLEU           ChannelID = 0x0005
	ChannelIDSecurityManagerProtocol ChannelID = 0x0006

	// ChannelIDDynamicMin is the first channel id that may be allocated to
	// an LE credit based connection.
	ChannelIDDynamicMin ChannelID = 0x0040
)
