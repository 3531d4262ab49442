package board

import (
	"context"

	"github.com/agentcoord/core/internal/corelog"
	"github.com/agentcoord/core/pkg/types"
	"github.com/rs/zerolog"
)

// Channel is the narrow contract a communication adapter must satisfy
// (spec §4.G). Concrete adapters (terminal, file, Slack, Discord, ...)
// are explicitly out of scope for this module; only this interface
// and the broadcaster that drives it live here. An adapter that
// cannot represent a feature (e.g. no threading) is expected to
// degrade gracefully — flattening a thread into an indented post, for
// instance — rather than erroring.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, msg types.Message) error
}

// ChannelManager broadcasts a Message to every registered adapter and
// reports which ones accepted it.
type ChannelManager struct {
	adapters []Channel
	logger   zerolog.Logger
}

// NewChannelManager creates a manager over the given adapters.
func NewChannelManager(adapters ...Channel) *ChannelManager {
	return &ChannelManager{
		adapters: adapters,
		logger:   corelog.WithComponent("board.channels"),
	}
}

// Register adds an adapter after construction.
func (m *ChannelManager) Register(adapter Channel) {
	m.adapters = append(m.adapters, adapter)
}

// DeliveryResult is one adapter's outcome from a Broadcast call.
type DeliveryResult struct {
	Adapter string
	Err     error
}

// Broadcast delivers msg to every registered adapter, collecting each
// one's outcome independently — one failing adapter never blocks
// delivery to the others.
func (m *ChannelManager) Broadcast(ctx context.Context, msg types.Message) []DeliveryResult {
	results := make([]DeliveryResult, 0, len(m.adapters))
	for _, adapter := range m.adapters {
		err := adapter.Deliver(ctx, msg)
		if err != nil {
			m.logger.Warn().Str("adapter", adapter.Name()).Err(err).Msg("channel delivery failed")
		}
		results = append(results, DeliveryResult{Adapter: adapter.Name(), Err: err})
	}
	return results
}
