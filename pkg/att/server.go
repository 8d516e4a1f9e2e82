// Package att implements a read only Attribute Protocol server for the fixed
// ATT channel.
package att

import (
	"encoding/binary"

	"github.com/muxable/lelink/pkg/l2cap"
	"go.uber.org/zap"
)

const (
	// DefaultMTU is the ATT_MTU every LE device supports.
	DefaultMTU = 23
	// MaxMTU is 512 bytes of attribute value plus the largest header.
	MaxMTU = 512 + 5
)

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMaxMTU sets the MTU offered during the MTU exchange.
func WithMaxMTU(mtu int) Option {
	return func(s *Server) {
		switch {
		case mtu < DefaultMTU:
			mtu = DefaultMTU
		case mtu > MaxMTU:
			mtu = MaxMTU
		}
		s.maxMTU = mtu
	}
}

// Server answers ATT requests of one connection from a static table. It
// implements l2cap.ProtocolHandler.
type Server struct {
	table  *Table
	logger *zap.Logger
	maxMTU int
	mtu    int
}

func NewServer(table *Table, opts ...Option) *Server {
	s := &Server{
		table:  table,
		logger: zap.L(),
		maxMTU: DefaultMTU,
		mtu:    DefaultMTU,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MTU returns the ATT_MTU currently in effect.
func (s *Server) MTU() int {
	return s.mtu
}

// ResponseSize is the current MTU, the largest response the server sends.
func (s *Server) ResponseSize() int {
	return s.mtu
}

func (s *Server) HandleMessage(payload []byte, snd *l2cap.Sender) error {
	if len(payload) == 0 {
		s.logger.Warn("dropping empty att pdu")
		return nil
	}
	op := Opcode(payload[0])
	if !op.IsRequest() {
		s.logger.Debug("ignoring att pdu", zap.Stringer("opcode", op))
		return nil
	}
	return snd.Send(s.handle(op, payload))
}

func (s *Server) handle(op Opcode, payload []byte) []byte {
	switch op {
	case OpcodeExchangeMTURequest:
		var p ExchangeMTUPacket
		if err := p.Unmarshal(payload); err != nil {
			return errorResponse(op, 0, ErrorCodeInvalidPDU)
		}
		s.exchangeMTU(int(p.MTU))
		rsp, _ := (&ExchangeMTUPacket{Opcode: OpcodeExchangeMTUResponse, MTU: uint16(s.maxMTU)}).Marshal()
		return rsp
	case OpcodeFindInformationRequest:
		var p FindInformationRequestPacket
		if err := p.Unmarshal(payload); err != nil {
			return errorResponse(op, 0, ErrorCodeInvalidPDU)
		}
		if !p.Valid() {
			return errorResponse(op, p.Start, ErrorCodeInvalidHandle)
		}
		return s.findInformation(p.HandleRange)
	case OpcodeReadByTypeRequest, OpcodeReadByGroupTypeRequest:
		var p TypeRequestPacket
		if err := p.Unmarshal(payload); err != nil {
			return errorResponse(op, 0, ErrorCodeInvalidPDU)
		}
		if !p.Valid() {
			return errorResponse(op, p.Start, ErrorCodeInvalidHandle)
		}
		if op == OpcodeReadByTypeRequest {
			return s.readByType(p.HandleRange, p.Type)
		}
		return s.readByGroupType(p.HandleRange, p.Type)
	case OpcodeReadRequest:
		var p ReadRequestPacket
		if err := p.Unmarshal(payload); err != nil {
			return errorResponse(op, 0, ErrorCodeInvalidPDU)
		}
		a, ok := s.table.Find(p.Handle)
		if !ok {
			return errorResponse(op, p.Handle, ErrorCodeInvalidHandle)
		}
		return append([]byte{byte(OpcodeReadResponse)}, truncate(a.Value, s.mtu-1)...)
	}
	s.logger.Debug("att request not supported", zap.Stringer("opcode", op))
	return errorResponse(op, 0, ErrorCodeRequestNotSupported)
}

func (s *Server) exchangeMTU(client int) {
	if client < DefaultMTU {
		client = DefaultMTU
	}
	s.mtu = client
	if s.mtu > s.maxMTU {
		s.mtu = s.maxMTU
	}
	s.logger.Debug("att mtu exchanged", zap.Int("client", client), zap.Int("mtu", s.mtu))
}

func (s *Server) findInformation(r HandleRange) []byte {
	attrs := s.table.Range(r)
	if len(attrs) == 0 {
		return errorResponse(OpcodeFindInformationRequest, r.Start, ErrorCodeAttributeNotFound)
	}
	format := byte(0x01)
	if len(attrs[0].Type) == 16 {
		format = 0x02
	}
	rsp := []byte{byte(OpcodeFindInformationResponse), format}
	for _, a := range attrs {
		if len(a.Type) != len(attrs[0].Type) || len(rsp)+2+len(a.Type) > s.mtu {
			break
		}
		rsp = binary.LittleEndian.AppendUint16(rsp, a.Handle)
		rsp = append(rsp, a.Type...)
	}
	return rsp
}

func (s *Server) readByType(r HandleRange, typ UUID) []byte {
	var rsp []byte
	for _, a := range s.table.Range(r) {
		if !a.Type.Equal(typ) {
			continue
		}
		v := truncate(a.Value, min(s.mtu-4, 253))
		if rsp == nil {
			rsp = []byte{byte(OpcodeReadByTypeResponse), byte(2 + len(v))}
		} else if int(rsp[1]) != 2+len(v) || len(rsp)+2+len(v) > s.mtu {
			break
		}
		rsp = binary.LittleEndian.AppendUint16(rsp, a.Handle)
		rsp = append(rsp, v...)
	}
	if rsp == nil {
		return errorResponse(OpcodeReadByTypeRequest, r.Start, ErrorCodeAttributeNotFound)
	}
	return rsp
}

func (s *Server) readByGroupType(r HandleRange, typ UUID) []byte {
	if !typ.Equal(PrimaryServiceUUID) && !typ.Equal(SecondaryServiceUUID) {
		return errorResponse(OpcodeReadByGroupTypeRequest, r.Start, ErrorCodeUnsupportedGroupType)
	}
	var rsp []byte
	for i, a := range s.table.attrs {
		if !r.Contains(a.Handle) || !a.Type.Equal(typ) {
			continue
		}
		v := truncate(a.Value, min(s.mtu-6, 251))
		if rsp == nil {
			rsp = []byte{byte(OpcodeReadByGroupTypeResponse), byte(4 + len(v))}
		} else if int(rsp[1]) != 4+len(v) || len(rsp)+4+len(v) > s.mtu {
			break
		}
		rsp = binary.LittleEndian.AppendUint16(rsp, a.Handle)
		rsp = binary.LittleEndian.AppendUint16(rsp, s.table.groupEnd(i))
		rsp = append(rsp, v...)
	}
	if rsp == nil {
		return errorResponse(OpcodeReadByGroupTypeRequest, r.Start, ErrorCodeAttributeNotFound)
	}
	return rsp
}

func errorResponse(op Opcode, handle uint16, code ErrorCode) []byte {
	b, _ := (&ErrorResponsePacket{RequestOpcode: op, Handle: handle, ErrorCode: code}).Marshal()
	return b
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
