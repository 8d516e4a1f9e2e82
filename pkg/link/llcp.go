package link

import (
	"github.com/muxable/lelink/pkg/llcp"
	"github.com/muxable/lelink/pkg/queue"
	"go.uber.org/zap"
)

// LLCPTx is the right to start a single LLCP procedure, obtained from
// Responder.LLCP.
type LLCPTx struct {
	tx     queue.Producer
	conn   *Connection
	logger *zap.Logger
	used   bool
}

func (t *LLCPTx) Connection() ConnectionView {
	return t.conn
}

// RequestConnParams starts the Connection Parameters Request procedure. The
// connection stays marked as having a procedure in progress even if the
// request could not be queued.
func (t *LLCPTx) RequestConnParams(params llcp.ConnectionParamReq) error {
	if t.used {
		return ErrInvalidState
	}
	t.used = true
	if err := produceControl(t.tx, &params); err != nil {
		t.logger.Warn("connection parameter request not queued", zap.Error(err))
		return err
	}
	t.logger.Info("-> LL control pdu",
		zap.Stringer("opcode", params.Opcode()),
		zap.Uint16("interval_min", params.IntervalMin),
		zap.Uint16("interval_max", params.IntervalMax),
		zap.Uint16("latency", params.Latency),
		zap.Uint16("timeout", params.Timeout))
	return nil
}
