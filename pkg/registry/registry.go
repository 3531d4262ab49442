package registry

import (
	"context"
	"time"

	"github.com/agentcoord/core/internal/corelog"
	"github.com/agentcoord/core/pkg/audit"
	"github.com/agentcoord/core/pkg/coreerr"
	"github.com/agentcoord/core/pkg/kv"
	"github.com/agentcoord/core/pkg/types"
	"github.com/rs/zerolog"
)

const indexKey = "agents:index"

func recordKey(agentID string) string { return "agent:" + agentID }

// Registry is the Agent Registry (spec §4.C).
type Registry struct {
	backend   kv.Backend
	audit     *audit.Log
	hungAfter time.Duration
	logger    zerolog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithHungThreshold overrides the default 300s hung-detection window
// (spec §3: "an agent whose last_heartbeat is older than a configured
// threshold (default 300 s) is hung").
func WithHungThreshold(d time.Duration) Option {
	return func(r *Registry) { r.hungAfter = d }
}

// New creates a Registry over backend, publishing hung/deregister
// events to log.
func New(backend kv.Backend, log *audit.Log, opts ...Option) *Registry {
	r := &Registry{
		backend:   backend,
		audit:     log,
		hungAfter: 300 * time.Second,
		logger:    corelog.WithComponent("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates or replaces an agent's identity and returns it
// with RegisteredAt/LastHeartbeat freshly stamped.
func (r *Registry) Register(ctx context.Context, id, name, role string, capabilities []string) (*types.Agent, error) {
	now := time.Now().UTC()
	agent := &types.Agent{
		ID:            id,
		Name:          name,
		Role:          role,
		Capabilities:  capabilities,
		RegisteredAt:  now,
		LastHeartbeat: now,
		Status:        types.AgentActive,
	}

	if err := r.put(ctx, agent); err != nil {
		return nil, err
	}
	if err := r.backend.SAdd(ctx, indexKey, id); err != nil {
		return nil, err
	}

	r.logger.Info().Str("agent_id", id).Str("role", role).Msg("agent registered")
	return agent.Clone(), nil
}

// Heartbeat refreshes an agent's LastHeartbeat and optionally its
// WorkingOn field (nil leaves it unchanged).
func (r *Registry) Heartbeat(ctx context.Context, id string, workingOn *string) error {
	agent, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	agent.LastHeartbeat = time.Now().UTC()
	if agent.Status == types.AgentHung {
		agent.Status = types.AgentActive
	}
	if workingOn != nil {
		agent.WorkingOn = *workingOn
	}
	return r.put(ctx, agent)
}

// Get returns an agent's record with Status recomputed from heartbeat
// age rather than trusted verbatim from storage.
func (r *Registry) Get(ctx context.Context, id string) (*types.Agent, error) {
	agent, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.applyComputedStatus(agent)
	return agent, nil
}

// List returns every non-terminated registered agent with computed
// status applied. Deregistered agents are retained in storage (spec
// §4.B's audit retention window) but kept out of this active view;
// use ListAll to include them.
func (r *Registry) List(ctx context.Context) ([]*types.Agent, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*types.Agent, 0, len(all))
	for _, agent := range all {
		if agent.Status == types.AgentTerminated {
			continue
		}
		out = append(out, agent)
	}
	return out, nil
}

// ListAll returns every agent ever registered, including terminated
// ones, with computed status applied.
func (r *Registry) ListAll(ctx context.Context) ([]*types.Agent, error) {
	ids, err := r.backend.SMembers(ctx, indexKey)
	if err != nil {
		return nil, err
	}

	out := make([]*types.Agent, 0, len(ids))
	for _, id := range ids {
		agent, err := r.get(ctx, id)
		if err != nil {
			if coreerr.Has(err, coreerr.UnknownAgent) {
				continue
			}
			return nil, err
		}
		r.applyComputedStatus(agent)
		out = append(out, agent)
	}
	return out, nil
}

// DetectHung returns every agent whose computed status is hung,
// logging a hung_detected audit entry for any not already flagged.
func (r *Registry) DetectHung(ctx context.Context) ([]*types.Agent, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	var hung []*types.Agent
	for _, agent := range all {
		if agent.Status != types.AgentHung {
			continue
		}
		hung = append(hung, agent)

		stored, err := r.get(ctx, agent.ID)
		if err != nil {
			continue
		}
		if stored.Status == types.AgentHung {
			continue // already flagged; don't spam the audit log every sweep
		}
		stored.Status = types.AgentHung
		if err := r.put(ctx, stored); err != nil {
			return nil, err
		}
		if r.audit != nil {
			r.audit.Append(ctx, types.AuditHungDetected, agent.ID, agent.WorkingOn, "heartbeat exceeded hung threshold")
		}
	}
	return hung, nil
}

// Deregister marks an agent terminated rather than erasing its
// record, per spec §4.B's audit retention window: the record stays
// readable via Get/ListAll, it just drops out of List's active view.
func (r *Registry) Deregister(ctx context.Context, id string) error {
	agent, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	agent.Status = types.AgentTerminated
	agent.TerminatedAt = time.Now().UTC()
	return r.put(ctx, agent)
}

func (r *Registry) applyComputedStatus(agent *types.Agent) {
	if agent.Status == types.AgentTerminated {
		return
	}
	if time.Since(agent.LastHeartbeat) > r.hungAfter {
		agent.Status = types.AgentHung
	}
}

func (r *Registry) put(ctx context.Context, agent *types.Agent) error {
	data, err := agent.MarshalRecord()
	if err != nil {
		return err
	}
	return r.backend.Set(ctx, recordKey(agent.ID), data)
}

func (r *Registry) get(ctx context.Context, id string) (*types.Agent, error) {
	data, ok, err := r.backend.Get(ctx, recordKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, coreerr.New(coreerr.UnknownAgent, id)
	}
	return types.UnmarshalAgent(data)
}
