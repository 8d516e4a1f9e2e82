package l2cap

import (
	"encoding/binary"
	"errors"

	"go.uber.org/zap"
)

// Signalling serves the LE signalling channel of a device that offers no
// connection oriented channels. Requests for dynamic channels are refused.
type Signalling struct {
	logger *zap.Logger
}

func NewSignalling(logger *zap.Logger) *Signalling {
	return &Signalling{logger: logger}
}

// ResponseSize is the size of the largest reply, an LE credit based
// connection response.
func (h *Signalling) ResponseSize() int {
	return CommandHeaderSize + 10
}

func (h *Signalling) HandleMessage(payload []byte, s *Sender) error {
	hdr, err := UnmarshalCommandHeader(payload)
	if err != nil {
		// too short to carry an identifier, nothing to reject
		h.logger.Warn("dropping truncated signalling command", zap.Binary("payload", payload))
		return nil
	}
	p, err := UnmarshalSignallingPacket(payload)
	if err != nil {
		h.logger.Warn("rejecting signalling command",
			zap.Stringer("code", hdr.Code),
			zap.Uint8("identifier", hdr.Identifier),
			zap.Error(err))
		if errors.Is(err, ErrUnknownCommand) || errors.Is(err, ErrInvalidLength) {
			return reject(s, hdr.Identifier, CommandRejectReasonCommandNotUnderstood, nil)
		}
		return nil
	}

	switch p := p.(type) {
	case *LECreditBasedConnectionRequestPacket:
		h.logger.Info("refusing credit based connection",
			zap.Uint16("spsm", p.SPSM),
			zap.Uint16("source_cid", uint16(p.SourceCID)))
		return send(s, &LECreditBasedConnectionResponsePacket{
			Identifier: p.Identifier,
			Result:     LECreditBasedConnectionResultRefusedSPSMNotSupported,
		})
	case *DisconnectionRequestPacket:
		// no dynamic channel exists that could be disconnected
		data := make([]byte, 4)
		binary.LittleEndian.PutUint16(data[0:], uint16(p.DestinationCID))
		binary.LittleEndian.PutUint16(data[2:], uint16(p.SourceCID))
		return reject(s, p.Identifier, CommandRejectReasonInvalidCIDInRequest, data)
	case *ConnectionParameterUpdateResponsePacket:
		h.logger.Info("connection parameter update response",
			zap.Uint8("identifier", p.Identifier),
			zap.Stringer("result", p.Result))
	case *CommandRejectPacket:
		h.logger.Warn("signalling command rejected by peer",
			zap.Uint8("identifier", p.Identifier),
			zap.Uint16("reason", uint16(p.CommandRejectReason)))
	case *FlowControlCreditIndicationPacket:
		h.logger.Debug("ignoring credits for unknown channel", zap.Uint16("cid", uint16(p.CID)))
	case *DisconnectionResponsePacket, *LECreditBasedConnectionResponsePacket:
		h.logger.Debug("ignoring unsolicited response", zap.Stringer("code", p.Code()))
	default:
		// a peripheral never receives a connection parameter update request
		return reject(s, hdr.Identifier, CommandRejectReasonCommandNotUnderstood, nil)
	}
	return nil
}

func send(s *Sender, p SignallingPacket) error {
	buf, err := p.Marshal()
	if err != nil {
		return err
	}
	return s.Send(buf)
}

func reject(s *Sender, identifier uint8, reason CommandRejectReason, data []byte) error {
	return send(s, &CommandRejectPacket{
		Identifier:          identifier,
		CommandRejectReason: reason,
		ReasonData:          data,
	})
}
