package relay

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pinboard/event-delivery-service/config"
)

const (
	DriverLocal     = "local"
	DriverGoChannel = "gochannel"
	DriverAMQP      = "amqp"
)

// Bus is the publisher and subscriber pair backing a non-local driver.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close releases both sides. Closing a shared gochannel twice is a no-op.
func (b *Bus) Close() error {
	return errors.Join(b.Publisher.Close(), b.Subscriber.Close())
}

// NewBus builds the transport for driver. The local driver needs no bus and returns nil.
func NewBus(cfg config.RelayConfig, nodeID string, logger watermill.LoggerAdapter) (*Bus, error) {
	switch cfg.Driver {
	case DriverLocal, "":
		return nil, nil

	case DriverGoChannel:
		// [ORDERED] the publisher waits for the router to ack before the next push
		ps := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		}, logger)
		return &Bus{Publisher: ps, Subscriber: ps}, nil

	case DriverAMQP:
		// [FANOUT] one exchange per relay topic, one queue per node
		amqpCfg := amqp.NewNonDurablePubSubConfig(cfg.AMQPURL, amqp.GenerateQueueNameTopicNameWithSuffix(nodeID))
		pub, err := amqp.NewPublisher(amqpCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("relay: amqp publisher: %w", err)
		}
		sub, err := amqp.NewSubscriber(amqpCfg, logger)
		if err != nil {
			_ = pub.Close()
			return nil, fmt.Errorf("relay: amqp subscriber: %w", err)
		}
		return &Bus{Publisher: pub, Subscriber: sub}, nil

	default:
		return nil, fmt.Errorf("relay: unknown driver %q", cfg.Driver)
	}
}
