package localkv

import (
	"context"

	"github.com/agentcoord/core/pkg/kv"
	"github.com/agentcoord/core/pkg/kv/internal/pubsub"
)

func (s *Store) Publish(ctx context.Context, channel string, payload []byte) error {
	s.broker.Publish(channel, payload)
	return nil
}

func (s *Store) Subscribe(ctx context.Context, channel string) (kv.Subscription, error) {
	sub := s.broker.Subscribe(channel)
	return &subscription{broker: s.broker, channel: channel, sub: sub}, nil
}

type subscription struct {
	broker  *pubsub.Broker
	channel string
	sub     pubsub.Subscriber
}

func (sub *subscription) Messages() <-chan []byte {
	return sub.sub
}

func (sub *subscription) Close() error {
	sub.broker.Unsubscribe(sub.channel, sub.sub)
	return nil
}
