package types

import (
	"encoding/json"
	"time"
)

// AuditKind classifies an AuditEntry. The core only ever emits the
// kinds named in spec §4.D; higher layers may append their own.
type AuditKind string

const (
	AuditTaskClaim       AuditKind = "task_claim"
	AuditTaskCompleted   AuditKind = "task_completed"
	AuditTaskFailed      AuditKind = "task_failed"
	AuditEscalation      AuditKind = "escalation"
	AuditApproval        AuditKind = "approval"
	AuditLockDenied      AuditKind = "lock_denied"
	AuditHungDetected    AuditKind = "hung_detected"
	AuditDeployment      AuditKind = "deployment"
)

// AuditEntry is one append-only, totally ordered record in the audit
// stream. SeqID is assigned by the KV stream primitive, never by the
// caller.
type AuditEntry struct {
	SeqID     string    `json:"seq_id"`
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id"`
	Kind      AuditKind `json:"kind"`
	Context   string    `json:"context"`
	Reason    string    `json:"reason"`
}

// MarshalRecord serializes the entry for stream storage.
func (e *AuditEntry) MarshalRecord() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalAuditEntry deserializes an entry previously written by
// MarshalRecord.
func UnmarshalAuditEntry(data []byte) (*AuditEntry, error) {
	var e AuditEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// EscalationEventPayload is the JSON shape published to
// channel:escalations (spec §6.2).
type EscalationEventPayload struct {
	EventType  string    `json:"event_type"`
	TaskID     string    `json:"task_id"`
	TaskTitle  string    `json:"task_title"`
	Reason     string    `json:"reason"`
	RetryCount int       `json:"retry_count"`
	Timestamp  time.Time `json:"timestamp"`
	ClaimedBy  string    `json:"claimed_by"`
}
