package types

import (
	"encoding/json"
	"time"
)

// TaskStatus is the lifecycle status of a Task. Legal transitions
// are enumerated in pkg/queue; no other transition is permitted.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskClaimed    TaskStatus = "claimed"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskEscalated  TaskStatus = "escalated"
)

// RetryPolicy controls how a failed task is rescheduled.
type RetryPolicy string

const (
	RetryNone        RetryPolicy = "none"
	RetryLinear      RetryPolicy = "linear"
	RetryExponential RetryPolicy = "exponential"
)

// EscalationEvent records one entry in a task's escalation history:
// a retry attempt, a failure, or the terminal escalation itself.
type EscalationEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	RetryCount int       `json:"retry_count"`
	Reason     string    `json:"reason"`
	Action     string    `json:"action"`
}

// Task is a unit of work claimed by exactly one agent at a time.
// See spec §3 for the full invariant list.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    int        `json:"priority"`
	Tags        []string   `json:"tags"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	ClaimedBy string    `json:"claimed_by"`
	ClaimedAt time.Time `json:"claimed_at,omitempty"`

	CompletedAt time.Time `json:"completed_at,omitempty"`

	DependsOn []string `json:"depends_on"`

	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	RetryCount            int         `json:"retry_count"`
	MaxRetries             int        `json:"max_retries"`
	RetryPolicy            RetryPolicy `json:"retry_policy"`
	RetryDelayBaseSeconds  int         `json:"retry_delay_base_seconds"`

	EscalatedAt        time.Time         `json:"escalated_at,omitempty"`
	EscalationReason    string            `json:"escalation_reason,omitempty"`
	EscalationHistory   []EscalationEvent `json:"escalation_history,omitempty"`

	ParentTaskID string `json:"parent_task_id,omitempty"`

	// Metadata is opaque to the core; higher layers (roles, workflows,
	// epics) stash their own routing data here.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TagSet returns t.Tags as a set for membership/subset checks.
func (t *Task) TagSet() map[string]struct{} {
	s := make(map[string]struct{}, len(t.Tags))
	for _, tag := range t.Tags {
		s[tag] = struct{}{}
	}
	return s
}

// MatchesAgentTags reports whether an agent advertising agentTags is
// eligible to claim t: the task has no tags (anyone matches) or the
// agent's tags are a superset of the task's tags (spec §4.E.3).
func (t *Task) MatchesAgentTags(agentTags []string) bool {
	if len(t.Tags) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(agentTags))
	for _, tag := range agentTags {
		have[tag] = struct{}{}
	}
	for _, need := range t.Tags {
		if _, ok := have[need]; !ok {
			return false
		}
	}
	return true
}

// MarshalRecord serializes the task to its KV hash representation.
func (t *Task) MarshalRecord() ([]byte, error) {
	return json.Marshal(t)
}

// UnmarshalTask deserializes a task previously written by MarshalRecord.
func UnmarshalTask(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Clone returns a deep-enough copy for safe return to callers that
// must not observe later in-process mutation (the KV is still the
// source of truth; this only protects the in-memory record handed
// back by a read).
func (t *Task) Clone() *Task {
	clone := *t
	clone.Tags = append([]string(nil), t.Tags...)
	clone.DependsOn = append([]string(nil), t.DependsOn...)
	clone.EscalationHistory = append([]EscalationEvent(nil), t.EscalationHistory...)
	if t.Metadata != nil {
		clone.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}
