package queue

import (
	"context"
	"time"

	"github.com/agentcoord/core/pkg/types"
)

// RunRetrySweeper moves due entries from tasks:retry into
// tasks:pending every interval, until ctx is canceled (spec §4.E: "A
// background sweeper moves due retries from tasks:retry into
// tasks:pending"). Intended to run as one goroutine per queue handle.
func (q *Queue) RunRetrySweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.sweepRetries(ctx); err != nil {
				q.logger.Error().Err(err).Msg("retry sweep failed")
			}
		}
	}
}

func (q *Queue) sweepRetries(ctx context.Context) error {
	due, err := q.backend.ZRangeByScore(ctx, retryKey, negInf, float64(time.Now().UTC().Unix()), 0)
	if err != nil {
		return err
	}

	for _, taskID := range due {
		if err := q.backend.ZRem(ctx, retryKey, taskID); err != nil {
			return err
		}
		task, err := q.getTask(ctx, taskID)
		if err != nil || task == nil {
			continue
		}
		if task.Status != types.TaskPending {
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
			q.logger.Info().Str("task_id", taskID).Msg("retry promoted to pending")
		}
	}
	return nil
}

// HungDetector is the narrow slice of pkg/registry's API the
// reclamation sweeper needs, accepted as an interface so pkg/queue
// never has to import pkg/registry directly.
type HungDetector interface {
	DetectHung(ctx context.Context) ([]*types.Agent, error)
}

// RunReclamationSweeper scans leases held by hung agents every
// interval and returns their claimed/in_progress tasks to pending
// (spec §4.E "Reclamation"), until ctx is canceled.
func (q *Queue) RunReclamationSweeper(ctx context.Context, agents HungDetector, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.reclaimHungAgents(ctx, agents); err != nil {
				q.logger.Error().Err(err).Msg("reclamation sweep failed")
			}
		}
	}
}

func (q *Queue) reclaimHungAgents(ctx context.Context, agents HungDetector) error {
	hung, err := agents.DetectHung(ctx)
	if err != nil {
		return err
	}

	for _, agent := range hung {
		if err := q.ReclaimAgentTasks(ctx, agent.ID); err != nil {
			return err
		}
	}
	return nil
}

// ReclaimAgentTasks returns every task leased by agentID to pending,
// regardless of whether the agent is currently flagged hung. Used
// directly by the hung-agent sweeper and by pkg/spawner when a worker
// is terminated (spec §4.H: "any tasks still leased by the worker are
// returned to pending through the reclamation path").
func (q *Queue) ReclaimAgentTasks(ctx context.Context, agentID string) error {
	taskIDs, err := q.backend.SMembers(ctx, byAgentKey(agentID))
	if err != nil {
		return err
	}
	for _, taskID := range taskIDs {
		if err := q.reclaimTask(ctx, agentID, taskID); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) reclaimTask(ctx context.Context, agentID, taskID string) error {
	task, err := q.getTask(ctx, taskID)
	if err != nil || task == nil {
		return err
	}
	if task.Status != types.TaskClaimed && task.Status != types.TaskInProgress {
		return nil
	}

	task.Status = types.TaskPending
	task.ClaimedBy = ""
	task.ClaimedAt = time.Time{}
	task.UpdatedAt = time.Now().UTC()
	if err := q.putTask(ctx, task); err != nil {
		return err
	}
	if err := q.backend.SRem(ctx, byAgentKey(agentID), taskID); err != nil {
		return err
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

	if q.audit != nil {
		_, _ = q.audit.Append(ctx, types.AuditHungDetected, agentID, taskID, "reclaimed from hung agent")
	}
	q.logger.Warn().Str("task_id", taskID).Str("agent_id", agentID).Msg("task reclaimed from hung agent")
	return nil
}
