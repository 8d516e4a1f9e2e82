package link

import (
	"github.com/muxable/lelink/pkg/l2cap"
	"github.com/muxable/lelink/pkg/queue"
)

// Config supplies the collaborators of a Responder for one deployment.
type Config interface {
	// Queues returns the transmit producer and the receive consumer.
	Queues() (queue.Producer, queue.Consumer)
	ChannelMapper() l2cap.ChannelMapper
}

// StaticConfig is a Config over fixed values.
type StaticConfig struct {
	TX     queue.Producer
	RX     queue.Consumer
	Mapper l2cap.ChannelMapper
}

func (c StaticConfig) Queues() (queue.Producer, queue.Consumer) {
	return c.TX, c.RX
}

func (c StaticConfig) ChannelMapper() l2cap.ChannelMapper {
	return c.Mapper
}
