package raftkv

import "github.com/agentcoord/core/pkg/kv/internal/pubsub"

// subscription adapts the shared pubsub.Broker into a kv.Subscription,
// same shape as localkv's. Pub/sub here is process-local to this
// store node, same documented limitation as localkv: an agent
// subscribing through one node's store process doesn't see messages
// published via a different node's store process.
type subscription struct {
	broker  *pubsub.Broker
	channel string
	sub     pubsub.Subscriber
}

func (s *subscription) Messages() <-chan []byte {
	return s.sub
}

func (s *subscription) Close() error {
	s.broker.Unsubscribe(s.channel, s.sub)
	return nil
}
