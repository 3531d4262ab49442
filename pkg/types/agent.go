package types

import (
	"encoding/json"
	"time"
)

// AgentStatus is the self-reported or computed liveness status of an
// Agent. Computed status (Hung) overrides the stored value whenever
// a reader's heartbeat-age check fails; see pkg/registry.
type AgentStatus string

const (
	AgentActive     AgentStatus = "active"
	AgentIdle       AgentStatus = "idle"
	AgentHung       AgentStatus = "hung"
	AgentTerminated AgentStatus = "terminated"
)

// Agent is a registered worker/coordinator process identity.
type Agent struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Role          string      `json:"role"`
	WorkingOn     string      `json:"working_on"`
	Capabilities  []string    `json:"capabilities"`
	RegisteredAt  time.Time   `json:"registered_at"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
	Status        AgentStatus `json:"status"`
	// TerminatedAt is set once Status becomes AgentTerminated; zero
	// otherwise. The record is kept (not deleted) for the audit
	// retention window rather than erased on deregistration.
	TerminatedAt time.Time `json:"terminated_at,omitempty"`
}

// MarshalRecord serializes the agent to its KV hash representation.
func (a *Agent) MarshalRecord() ([]byte, error) {
	return json.Marshal(a)
}

// UnmarshalAgent deserializes an agent previously written by MarshalRecord.
func UnmarshalAgent(data []byte) (*Agent, error) {
	var a Agent
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Clone returns a copy safe for return to callers.
func (a *Agent) Clone() *Agent {
	clone := *a
	clone.Capabilities = append([]string(nil), a.Capabilities...)
	return &clone
}
