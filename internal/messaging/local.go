// Package messaging is the transport for authentication events. The auth
// flows publish sign-in, enrollment and password-change events through an
// IPublisher; the notification worker consumes them through an ISubscriber.
package messaging

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

// EventBus is the in-process implementation. Every publisher and subscriber
// bound to the same bus shares one persistent gochannel, so auth events
// published before the notification worker attaches are delivered once it
// does.
type EventBus struct {
	channel *gochannel.GoChannel
}

func NewEventBus() *EventBus {
	return &EventBus{
		channel: gochannel.NewGoChannel(gochannel.Config{
			Persistent: true,
		}, watermill.NopLogger{}),
	}
}

func (b *EventBus) Publisher(topic string) IPublisher {
	return &busPublisher{topic: topic, channel: b.channel}
}

func (b *EventBus) Subscriber(topic string) ISubscriber {
	return &busSubscriber{topic: topic, channel: b.channel}
}

type busPublisher struct {
	topic   string
	channel *gochannel.GoChannel
}

func (p *busPublisher) Publish(messages ...*message.Message) error {
	return p.channel.Publish(p.topic, messages...)
}

// Close shuts down the whole bus; auth events published afterwards error.
func (p *busPublisher) Close() error {
	return p.channel.Close()
}

type busSubscriber struct {
	topic   string
	channel *gochannel.GoChannel
}

func (s *busSubscriber) Subscribe() <-chan *message.Message {
	sub, err := s.channel.Subscribe(context.Background(), s.topic)
	if err != nil {
		zap.L().Error("Failed to subscribe to auth events",
			zap.String("topic", s.topic), zap.Error(err))
		return nil
	}
	return sub
}

func (s *busSubscriber) Close() error {
	return s.channel.Close()
}
