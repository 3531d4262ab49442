package queue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/agentcoord/core/internal/corelog"
	"github.com/agentcoord/core/pkg/audit"
	"github.com/agentcoord/core/pkg/coreerr"
	"github.com/agentcoord/core/pkg/kv"
	"github.com/agentcoord/core/pkg/types"
	"github.com/rs/zerolog"
)

const (
	pendingKey   = "tasks:pending"
	retryKey     = "tasks:retry"
	escalatedKey = "tasks:escalated"
	dlqKey       = "tasks:dlq"
	dataKey      = "tasks:data"
	indexKey     = "tasks:index"

	escalationChannel = "channel:escalations"
)

func byAgentKey(agentID string) string   { return "tasks:by_agent:" + agentID }
func dependentsKey(taskID string) string { return "tasks:dependents:" + taskID }

// Queue is the Task Queue (spec §4.E).
type Queue struct {
	backend kv.Backend
	audit   *audit.Log
	logger  zerolog.Logger
}

// New creates a Queue over backend, optionally logging to an audit
// stream (pass nil to skip auditing, e.g. in unit tests).
func New(backend kv.Backend, log *audit.Log) *Queue {
	return &Queue{
		backend: backend,
		audit:   log,
		logger:  corelog.WithComponent("queue"),
	}
}

// CreateTaskRequest is the input to CreateTask. Zero-value fields take
// spec-default values (priority 0, retry_policy exponential,
// max_retries 3, retry_delay_base_seconds 60).
type CreateTaskRequest struct {
	Title                 string
	Description           string
	Priority              int
	Tags                  []string
	DependsOn             []string
	RetryPolicy           types.RetryPolicy
	MaxRetries            int
	RetryDelayBaseSeconds int
	Metadata              map[string]string

	// ParentTaskID is set internally when a task is created as a retry
	// of another; callers creating fresh work should leave it empty.
	ParentTaskID string
	// retryCount seeds RetryCount for internally-created retry
	// children; callers creating fresh work should leave it zero.
	retryCount int
}

func (r *CreateTaskRequest) applyDefaults() {
	if r.RetryPolicy == "" {
		r.RetryPolicy = types.RetryExponential
	}
	if r.MaxRetries == 0 {
		r.MaxRetries = 3
	}
	if r.RetryDelayBaseSeconds == 0 {
		r.RetryDelayBaseSeconds = 60
	}
}

// CreateTask writes a new task record. If depends_on is empty it is
// enqueued into tasks:pending immediately; otherwise it waits for
// promoteDependents to enqueue it once every dependency completes
// (spec §4.E.1).
func (q *Queue) CreateTask(ctx context.Context, req CreateTaskRequest) (*types.Task, error) {
	req.applyDefaults()

	id, err := newID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	task := &types.Task{
		ID:                    id,
		Title:                 req.Title,
		Description:           req.Description,
		Priority:              req.Priority,
		Tags:                  req.Tags,
		Status:                types.TaskPending,
		CreatedAt:             now,
		UpdatedAt:             now,
		DependsOn:             req.DependsOn,
		RetryCount:            req.retryCount,
		MaxRetries:            req.MaxRetries,
		RetryPolicy:           req.RetryPolicy,
		RetryDelayBaseSeconds: req.RetryDelayBaseSeconds,
		ParentTaskID:          req.ParentTaskID,
		Metadata:              req.Metadata,
	}

	if err := q.putTask(ctx, task); err != nil {
		return nil, err
	}
	if err := q.backend.SAdd(ctx, indexKey, id); err != nil {
		return nil, err
	}
	for _, dep := range task.DependsOn {
		if err := q.backend.SAdd(ctx, dependentsKey(dep), id); err != nil {
			return nil, err
		}
	}

	ready, err := q.depsComplete(ctx, task.DependsOn)
	if err != nil {
		return nil, err
	}
	if ready {
		if err := q.enqueuePending(ctx, task); err != nil {
			return nil, err
		}
	}

	q.logger.Info().Str("task_id", id).Int("priority", req.Priority).Msg("task created")
	return task.Clone(), nil
}

// GetReadyTasks returns up to limit tasks at the head of tasks:pending
// that re-validate as dependency-ready (spec §4.E.2: a read-only
// double-check against races, never a claim). limit=0 returns all.
func (q *Queue) GetReadyTasks(ctx context.Context, limit int) ([]*types.Task, error) {
	ids, err := q.backend.ZRangeByScore(ctx, pendingKey, negInf, posInf, limit)
	if err != nil {
		return nil, err
	}

	out := make([]*types.Task, 0, len(ids))
	for _, id := range ids {
		task, err := q.getTask(ctx, id)
		if err != nil || task == nil {
			continue
		}
		if task.Status != types.TaskPending {
			continue
		}
		ready, err := q.depsComplete(ctx, task.DependsOn)
		if err != nil {
			return nil, err
		}
		if ready {
			out = append(out, task.Clone())
		}
	}
	return out, nil
}

// ClaimTask atomically claims the highest-priority, oldest eligible
// task for agentID (spec §4.E.3). tags is the agent's advertised
// capability set; a task with no tags matches any agent. Returns nil,
// nil (no error) when no eligible task exists.
func (q *Queue) ClaimTask(ctx context.Context, agentID string, tags []string) (*types.Task, error) {
	picker := func(taskID string, taskData []byte) bool {
		task, err := types.UnmarshalTask(taskData)
		if err != nil {
			return false
		}
		return task.MatchesAgentTags(tags)
	}

	result, err := q.backend.ClaimTask(ctx, kv.ClaimRequest{
		PendingKey: pendingKey,
		DataKey:    dataKey,
		AgentID:    agentID,
		AgentTags:  tags,
	}, picker)
	if err != nil {
		return nil, err
	}
	if !result.Matched {
		return nil, nil
	}

	task, err := types.UnmarshalTask(result.TaskData)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	task.Status = types.TaskClaimed
	task.ClaimedBy = agentID
	task.ClaimedAt = now
	task.UpdatedAt = now
	if err := q.putTask(ctx, task); err != nil {
		return nil, err
	}
	if err := q.backend.SAdd(ctx, byAgentKey(agentID), task.ID); err != nil {
		return nil, err
	}

	if q.audit != nil {
		_, _ = q.audit.Append(ctx, types.AuditTaskClaim, agentID, task.ID, "")
	}
	q.logger.Info().Str("task_id", task.ID).Str("agent_id", agentID).Msg("task claimed")
	return task.Clone(), nil
}

// ClaimTaskBlocking polls ClaimTask at pollInterval until a task is
// claimed, ctx is canceled, or timeout elapses (spec §5: "claim_task
// (blocking=true) — suspends ... until a ready task is available or a
// deadline passes"). On timeout it returns coreerr.ErrTimeout rather
// than leaking any partial state.
func (q *Queue) ClaimTaskBlocking(ctx context.Context, agentID string, tags []string, pollInterval, timeout time.Duration) (*types.Task, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		task, err := q.ClaimTask(ctx, agentID, tags)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}
		if timeout > 0 && time.Now().After(deadline) {
			return nil, coreerr.ErrTimeout
		}

		select {
		case <-ctx.Done():
			return nil, coreerr.Wrap(coreerr.Timeout, "claim_task canceled", ctx.Err())
		case <-ticker.C:
		}
	}
}

// StartTask transitions a claimed task into in_progress (Open
// Question #1: claimed and in_progress are kept distinct so an agent
// can report "claimed, about to start" before committing).
func (q *Queue) StartTask(ctx context.Context, taskID string) error {
	task, err := q.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return coreerr.ErrUnknownTask
	}
	if task.Status != types.TaskClaimed {
		return coreerr.Wrap(coreerr.IllegalStateTransition, "task is not claimed", coreerr.ErrIllegalStateTransition)
	}

	task.Status = types.TaskInProgress
	task.UpdatedAt = time.Now().UTC()
	return q.putTask(ctx, task)
}

func (q *Queue) enqueuePending(ctx context.Context, task *types.Task) error {
	return q.backend.ZAdd(ctx, pendingKey, -float64(task.Priority), task.ID)
}

// depsComplete reports whether every id in deps refers to a completed
// task. A missing dependency record is treated as incomplete rather
// than erroring, since callers may re-check mid-creation races.
func (q *Queue) depsComplete(ctx context.Context, deps []string) (bool, error) {
	for _, depID := range deps {
		dep, err := q.getTask(ctx, depID)
		if err != nil {
			return false, err
		}
		if dep == nil || dep.Status != types.TaskCompleted {
			return false, nil
		}
	}
	return true, nil
}

func (q *Queue) putTask(ctx context.Context, task *types.Task) error {
	data, err := task.MarshalRecord()
	if err != nil {
		return err
	}
	return q.backend.HSet(ctx, dataKey, task.ID, data)
}

func (q *Queue) getTask(ctx context.Context, taskID string) (*types.Task, error) {
	data, ok, err := q.backend.HGet(ctx, dataKey, taskID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return types.UnmarshalTask(data)
}

func (q *Queue) publishEscalation(ctx context.Context, task *types.Task, reason string) error {
	payload := types.EscalationEventPayload{
		EventType:  "task_escalated",
		TaskID:     task.ID,
		TaskTitle:  task.Title,
		Reason:     reason,
		RetryCount: task.RetryCount,
		Timestamp:  time.Now().UTC(),
		ClaimedBy:  task.ClaimedBy,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return q.backend.Publish(ctx, escalationChannel, data)
}

func newID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

const (
	negInf = -1e308
	posInf = 1e308
)
