package queue

import (
	"context"
	"math"
	"time"

	"github.com/agentcoord/core/pkg/coreerr"
	"github.com/agentcoord/core/pkg/types"
)

// CompleteTask transitions a claimed/in_progress task to completed
// and fans out promotion to every dependent whose dependencies are
// now all satisfied (spec §4.E.4).
func (q *Queue) CompleteTask(ctx context.Context, taskID, result string) error {
	task, err := q.requireClaimed(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	task.Status = types.TaskCompleted
	task.Result = result
	task.CompletedAt = now
	task.UpdatedAt = now
	if err := q.putTask(ctx, task); err != nil {
		return err
	}
	if task.ClaimedBy != "" {
		if err := q.backend.SRem(ctx, byAgentKey(task.ClaimedBy), taskID); err != nil {
			return err
		}
	}

	if q.audit != nil {
		_, _ = q.audit.Append(ctx, types.AuditTaskCompleted, task.ClaimedBy, taskID, "")
	}
	q.logger.Info().Str("task_id", taskID).Msg("task completed")

	return q.promoteDependents(ctx, taskID)
}

// promoteDependents enqueues every dependent of completedID whose
// full dependency set is now satisfied (spec §5: "after complete_task
// returns, all newly-ready dependents are in tasks:pending").
func (q *Queue) promoteDependents(ctx context.Context, completedID string) error {
	dependentIDs, err := q.backend.SMembers(ctx, dependentsKey(completedID))
	if err != nil {
		return err
	}

	for _, depID := range dependentIDs {
		task, err := q.getTask(ctx, depID)
		if err != nil {
			return err
		}
		if task == nil || task.Status != types.TaskPending {
			continue
		}
		ready, err := q.depsComplete(ctx, task.DependsOn)
		if err != nil {
			return err
		}
		if ready {
			if err := q.enqueuePending(ctx, task); err != nil {
				return err
			}
		}
	}
	return nil
}

// FailTask records a failure and either schedules a retry (new child
// record in tasks:retry) or escalates the original record outright,
// per spec §4.E.5.
func (q *Queue) FailTask(ctx context.Context, taskID, errMsg string) error {
	task, err := q.requireClaimed(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	task.Error = errMsg
	task.RetryCount++

	exhausted := task.RetryPolicy == types.RetryNone || task.RetryCount > task.MaxRetries

	if exhausted {
		task.EscalationHistory = append(task.EscalationHistory, types.EscalationEvent{
			Timestamp:  now,
			RetryCount: task.RetryCount,
			Reason:     errMsg,
			Action:     "escalated",
		})
		task.Status = types.TaskEscalated
		task.EscalatedAt = now
		task.EscalationReason = errMsg
		task.UpdatedAt = now
		if err := q.putTask(ctx, task); err != nil {
			return err
		}
		if task.ClaimedBy != "" {
			if err := q.backend.SRem(ctx, byAgentKey(task.ClaimedBy), taskID); err != nil {
				return err
			}
		}
		if err := q.backend.ZAdd(ctx, escalatedKey, float64(now.Unix()), taskID); err != nil {
			return err
		}

		if q.audit != nil {
			_, _ = q.audit.Append(ctx, types.AuditTaskFailed, task.ClaimedBy, taskID, errMsg)
			_, _ = q.audit.Append(ctx, types.AuditEscalation, task.ClaimedBy, taskID, errMsg)
		}
		return q.publishEscalation(ctx, task, errMsg)
	}

	task.EscalationHistory = append(task.EscalationHistory, types.EscalationEvent{
		Timestamp:  now,
		RetryCount: task.RetryCount,
		Reason:     errMsg,
		Action:     "retry_scheduled",
	})
	task.Status = types.TaskFailed
	task.UpdatedAt = now
	if err := q.putTask(ctx, task); err != nil {
		return err
	}
	if task.ClaimedBy != "" {
		if err := q.backend.SRem(ctx, byAgentKey(task.ClaimedBy), taskID); err != nil {
			return err
		}
	}

	delay := retryDelay(task.RetryPolicy, task.RetryCount, task.RetryDelayBaseSeconds)
	child, err := q.CreateTask(ctx, CreateTaskRequest{
		Title:                 task.Title,
		Description:           task.Description,
		Priority:              task.Priority,
		Tags:                  task.Tags,
		DependsOn:             task.DependsOn,
		RetryPolicy:           task.RetryPolicy,
		MaxRetries:            task.MaxRetries,
		RetryDelayBaseSeconds: task.RetryDelayBaseSeconds,
		Metadata:              task.Metadata,
		ParentTaskID:          task.ID,
		retryCount:            task.RetryCount,
	})
	if err != nil {
		return err
	}

	// CreateTask enqueues into tasks:pending when dependencies are
	// already satisfied; a scheduled retry must wait out its delay
	// instead, so pull it back out before scheduling it into
	// tasks:retry.
	if err := q.backend.ZRem(ctx, pendingKey, child.ID); err != nil {
		return err
	}
	dueAt := now.Add(delay)
	if err := q.backend.ZAdd(ctx, retryKey, float64(dueAt.Unix()), child.ID); err != nil {
		return err
	}

	if q.audit != nil {
		_, _ = q.audit.Append(ctx, types.AuditTaskFailed, task.ClaimedBy, taskID, errMsg)
	}
	q.logger.Info().Str("task_id", taskID).Str("retry_task_id", child.ID).Dur("delay", delay).Msg("task failed, retry scheduled")
	return nil
}

// EscalateTask is the manual escalation path (spec §4.E.6):
// pending/claimed/in_progress/failed all transition directly to
// escalated.
func (q *Queue) EscalateTask(ctx context.Context, taskID, reason string) error {
	task, err := q.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return coreerr.ErrUnknownTask
	}
	switch task.Status {
	case types.TaskPending:
		if err := q.backend.ZRem(ctx, pendingKey, taskID); err != nil {
			return err
		}
	case types.TaskClaimed, types.TaskInProgress:
		if task.ClaimedBy != "" {
			if err := q.backend.SRem(ctx, byAgentKey(task.ClaimedBy), taskID); err != nil {
				return err
			}
		}
	case types.TaskFailed:
		// already off every sorted set; nothing to remove.
	default:
		return coreerr.Wrap(coreerr.IllegalStateTransition, "task cannot be escalated from its current status", coreerr.ErrIllegalStateTransition)
	}

	now := time.Now().UTC()
	task.EscalationHistory = append(task.EscalationHistory, types.EscalationEvent{
		Timestamp:  now,
		RetryCount: task.RetryCount,
		Reason:     reason,
		Action:     "manual_escalate",
	})
	task.Status = types.TaskEscalated
	task.EscalatedAt = now
	task.EscalationReason = reason
	task.UpdatedAt = now
	if err := q.putTask(ctx, task); err != nil {
		return err
	}
	if err := q.backend.ZAdd(ctx, escalatedKey, float64(now.Unix()), taskID); err != nil {
		return err
	}

	if q.audit != nil {
		_, _ = q.audit.Append(ctx, types.AuditEscalation, task.ClaimedBy, taskID, reason)
	}
	return q.publishEscalation(ctx, task, reason)
}

// RetryTask is a supervisor operation on an escalated task: it
// creates a fresh pending record linked by parent_task_id and leaves
// the escalated record untouched (spec §4.E.7).
func (q *Queue) RetryTask(ctx context.Context, taskID string) (*types.Task, error) {
	task, err := q.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, coreerr.ErrUnknownTask
	}
	if task.Status != types.TaskEscalated {
		return nil, coreerr.Wrap(coreerr.IllegalStateTransition, "task is not escalated", coreerr.ErrIllegalStateTransition)
	}

	return q.CreateTask(ctx, CreateTaskRequest{
		Title:                 task.Title,
		Description:           task.Description,
		Priority:              task.Priority,
		Tags:                  task.Tags,
		DependsOn:             task.DependsOn,
		RetryPolicy:           task.RetryPolicy,
		MaxRetries:            task.MaxRetries,
		RetryDelayBaseSeconds: task.RetryDelayBaseSeconds,
		Metadata:              task.Metadata,
		ParentTaskID:          task.ID,
		retryCount:            task.RetryCount,
	})
}

// ArchiveTask moves an escalated task to the dead-letter set (spec
// §4.E.7). The record's status stays escalated; dlq membership is
// what marks it archived, since the core's state machine has no
// separate terminal "archived" status.
func (q *Queue) ArchiveTask(ctx context.Context, taskID string) error {
	task, err := q.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return coreerr.ErrUnknownTask
	}
	if task.Status != types.TaskEscalated {
		return coreerr.Wrap(coreerr.IllegalStateTransition, "task is not escalated", coreerr.ErrIllegalStateTransition)
	}

	if err := q.backend.ZRem(ctx, escalatedKey, taskID); err != nil {
		return err
	}
	if err := q.backend.ZAdd(ctx, dlqKey, float64(time.Now().UTC().Unix()), taskID); err != nil {
		return err
	}
	task.UpdatedAt = time.Now().UTC()
	return q.putTask(ctx, task)
}

func (q *Queue) requireClaimed(ctx context.Context, taskID string) (*types.Task, error) {
	task, err := q.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, coreerr.ErrUnknownTask
	}
	if task.Status != types.TaskClaimed && task.Status != types.TaskInProgress {
		return nil, coreerr.Wrap(coreerr.IllegalStateTransition, "task is not claimed or in progress", coreerr.ErrIllegalStateTransition)
	}
	return task, nil
}

// retryDelay computes the scheduled-retry delay per spec §4.E.5.
func retryDelay(policy types.RetryPolicy, retryCount, baseSeconds int) time.Duration {
	const capSeconds = 3600

	var seconds int
	switch policy {
	case types.RetryLinear:
		seconds = baseSeconds
	case types.RetryExponential:
		seconds = baseSeconds * int(math.Pow(2, float64(retryCount-1)))
	default:
		seconds = baseSeconds
	}
	if seconds > capSeconds {
		seconds = capSeconds
	}
	return time.Duration(seconds) * time.Second
}
