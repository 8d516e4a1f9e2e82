package host

import (
	"context"
	"errors"

	"github.com/muxable/lelink/pkg/link"
	"github.com/muxable/lelink/pkg/pdu"
	"github.com/muxable/lelink/pkg/queue"
	"go.uber.org/zap"
)

// Serve is the non real-time context of a connection: it calls
// r.ProcessOne until ctx is done or a PDU fails fatally. An empty receive
// queue or a full transmit queue is polled again after the poll interval.
// Records that do not decode are dropped by the queue and skipped.
func Serve(ctx context.Context, r *link.Responder, opts ...Option) error {
	o := newOptions(opts)
	for ctx.Err() == nil {
		err := r.ProcessOne()
		switch {
		case err == nil:
			continue
		case errors.Is(err, queue.ErrEOF), errors.Is(err, queue.ErrFull):
			if err := sleep(ctx, o.interval); err != nil {
				return nil
			}
		case errors.Is(err, pdu.ErrReservedLLID),
			errors.Is(err, pdu.ErrEmptyControl),
			errors.Is(err, pdu.ErrLengthMismatch):
			o.logger.Warn("dropped undecodable pdu", zap.Error(err))
		default:
			o.logger.Warn("connection failed", zap.Error(err))
			return err
		}
	}
	return nil
}
