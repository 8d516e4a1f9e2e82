package host

import (
	"context"
	"testing"
	"time"

	"github.com/muxable/lelink/pkg/l2cap"
	"github.com/muxable/lelink/pkg/link"
	"github.com/muxable/lelink/pkg/pdu"
	"github.com/muxable/lelink/pkg/queue"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestServeStopsOnFatalError(t *testing.T) {
	logger := zaptest.NewLogger(t)
	txp, _ := queue.New(64)
	rxp, rxc := queue.New(64)
	r := link.NewResponder(txp, rxc, l2cap.NewState(l2cap.NewChannelMap(), l2cap.WithLogger(logger)), link.WithLogger(logger))

	produce(t, rxp, pdu.LLIDDataCont, []byte{1, 2, 3})
	err := Serve(context.Background(), r, WithLogger(logger))
	assert.ErrorIs(t, err, l2cap.ErrUnexpectedContinuation)
}

func TestServeReturnsWhenCanceled(t *testing.T) {
	logger := zaptest.NewLogger(t)
	txp, _ := queue.New(64)
	_, rxc := queue.New(64)
	r := link.NewResponder(txp, rxc, l2cap.NewState(l2cap.NewChannelMap(), l2cap.WithLogger(logger)), link.WithLogger(logger))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, Serve(ctx, r, WithLogger(logger), WithPollInterval(time.Millisecond)))
}

func TestServeSkipsUndecodablePdu(t *testing.T) {
	logger := zaptest.NewLogger(t)
	txp, _ := queue.New(64)
	rxp, rxc := queue.New(64)
	r := link.NewResponder(txp, rxc, l2cap.NewState(l2cap.NewChannelMap(), l2cap.WithLogger(logger)), link.WithLogger(logger))

	produce(t, rxp, pdu.LLIDControl, nil)
	produce(t, rxp, pdu.LLIDDataCont, []byte{1})
	err := Serve(context.Background(), r, WithLogger(logger))
	assert.ErrorIs(t, err, l2cap.ErrUnexpectedContinuation)
	assert.False(t, rxc.HasData())
}
