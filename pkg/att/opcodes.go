package att

import "fmt"

type Opcode uint8

// Vol 3, Part F, Section 3.4.8 of the Bluetooth Core Specification
const (
	OpcodeErrorResponse                   Opcode = 0x01
	OpcodeExchangeMTURequest              Opcode = 0x02
	OpcodeExchangeMTUResponse             Opcode = 0x03
	OpcodeFindInformationRequest          Opcode = 0x04
	OpcodeFindInformationResponse         Opcode = 0x05
	OpcodeFindByTypeValueRequest          Opcode = 0x06
	OpcodeFindByTypeValueResponse         Opcode = 0x07
	OpcodeReadByTypeRequest               Opcode = 0x08
	OpcodeReadByTypeResponse              Opcode = 0x09
	OpcodeReadRequest                     Opcode = 0x0A
	OpcodeReadResponse                    Opcode = 0x0B
	OpcodeReadBlobRequest                 Opcode = 0x0C
	OpcodeReadBlobResponse                Opcode = 0x0D
	OpcodeReadMultipleRequest             Opcode = 0x0E
	OpcodeReadMultipleResponse            Opcode = 0x0F
	OpcodeReadByGroupTypeRequest          Opcode = 0x10
	OpcodeReadByGroupTypeResponse         Opcode = 0x11
	OpcodeWriteRequest                    Opcode = 0x12
	OpcodeWriteResponse                   Opcode = 0x13
	OpcodeWriteCommand                    Opcode = 0x52
	OpcodePrepareWriteRequest             Opcode = 0x16
	OpcodePrepareWriteResponse            Opcode = 0x17
	OpcodeExecuteWriteRequest             Opcode = 0x18
	OpcodeExecuteWriteResponse            Opcode = 0x19
	OpcodeReadMultipleVariableRequest     Opcode = 0x20
	OpcodeReadMultipleVariableResponse    Opcode = 0x21
	OpcodeMultipleHandleValueNotification Opcode = 0x23
	OpcodeHandleValueNotification         Opcode = 0x1B
	OpcodeHandleValueIndication           Opcode = 0x1D
	OpcodeHandleValueConfirmation         Opcode = 0x1E
	OpcodeSignedWriteCommand              Opcode = 0xD2
)

// commandFlag marks opcodes that never receive a response.
const commandFlag Opcode = 0x40

// IsCommand reports whether o is a command, which is never answered.
func (o Opcode) IsCommand() bool {
	return o&commandFlag != 0
}

// IsRequest reports whether the server owes a response to o.
func (o Opcode) IsRequest() bool {
	if o.IsCommand() {
		return false
	}
	switch o {
	case OpcodeErrorResponse,
		OpcodeExchangeMTUResponse,
		OpcodeFindInformationResponse,
		OpcodeFindByTypeValueResponse,
		OpcodeReadByTypeResponse,
		OpcodeReadResponse,
		OpcodeReadBlobResponse,
		OpcodeReadMultipleResponse,
		OpcodeReadByGroupTypeResponse,
		OpcodeWriteResponse,
		OpcodePrepareWriteResponse,
		OpcodeExecuteWriteResponse,
		OpcodeReadMultipleVariableResponse,
		OpcodeMultipleHandleValueNotification,
		OpcodeHandleValueNotification,
		OpcodeHandleValueIndication,
		OpcodeHandleValueConfirmation:
		return false
	}
	return true
}

func (o Opcode) String() string {
	return fmt.Sprintf("ATT(%#02x)", uint8(o))
}

// ErrorCode is carried in an ATT_ERROR_RSP. Section 3.4.1.1.
type ErrorCode uint8

const (
	ErrorCodeInvalidHandle                 ErrorCode = 0x01
	ErrorCodeReadNotPermitted              ErrorCode = 0x02
	ErrorCodeWriteNotPermitted             ErrorCode = 0x03
	ErrorCodeInvalidPDU                    ErrorCode = 0x04
	ErrorCodeInsufficientAuthentication    ErrorCode = 0x05
	ErrorCodeRequestNotSupported           ErrorCode = 0x06
	ErrorCodeInvalidOffset                 ErrorCode = 0x07
	ErrorCodeInsufficientAuthorization     ErrorCode = 0x08
	ErrorCodePrepareQueueFull              ErrorCode = 0x09
	ErrorCodeAttributeNotFound             ErrorCode = 0x0A
	ErrorCodeAttributeNotLong              ErrorCode = 0x0B
	ErrorCodeInsufficientEncryptionKeySize ErrorCode = 0x0C
	ErrorCodeInvalidAttributeValueLength   ErrorCode = 0x0D
	ErrorCodeUnlikelyError                 ErrorCode = 0x0E
	ErrorCodeInsufficientEncryption        ErrorCode = 0x0F
	ErrorCodeUnsupportedGroupType          ErrorCode = 0x10
	ErrorCodeInsufficientResources         ErrorCode = 0x11
)
