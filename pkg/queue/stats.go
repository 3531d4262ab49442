package queue

import (
	"context"

	"github.com/agentcoord/core/pkg/types"
)

// QueueDepth returns the count of ready (pending) tasks and the count
// of currently-leased (claimed or in_progress) tasks — the `P` term
// the auto-scaler's sizing formula needs (spec §4.I: "P = count of
// ready+claimed tasks"). kv.Backend has no cardinality primitive, so
// claimed/in_progress is counted by walking tasks:index the same way
// GetDependencyGraph does, rather than maintaining yet another
// parallel index set for a single summary number.
func (q *Queue) QueueDepth(ctx context.Context) (ready, leased int, err error) {
	pending, err := q.backend.ZRangeByScore(ctx, pendingKey, negInf, posInf, 0)
	if err != nil {
		return 0, 0, err
	}
	ready = len(pending)

	ids, err := q.backend.SMembers(ctx, indexKey)
	if err != nil {
		return 0, 0, err
	}
	for _, id := range ids {
		task, err := q.getTask(ctx, id)
		if err != nil {
			return 0, 0, err
		}
		if task == nil {
			continue
		}
		if task.Status == types.TaskClaimed || task.Status == types.TaskInProgress {
			leased++
		}
	}
	return ready, leased, nil
}

// HasLease reports whether agentID currently holds any claimed/
// in_progress task, via the same tasks:by_agent:{id} index ClaimTask
// and ReclaimAgentTasks maintain. Used by pkg/autoscaler to honor
// spec §4.I's "never terminates a worker that currently holds a
// lease".
func (q *Queue) HasLease(ctx context.Context, agentID string) (bool, error) {
	taskIDs, err := q.backend.SMembers(ctx, byAgentKey(agentID))
	if err != nil {
		return false, err
	}
	return len(taskIDs) > 0, nil
}
