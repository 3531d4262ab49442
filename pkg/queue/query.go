package queue

import (
	"context"

	"github.com/agentcoord/core/pkg/types"
)

// GetTask returns a single task's current record, or nil if taskID is
// unknown. This is the read path spec §6.4's CLI surface needs to
// show a task's full state (status, retry history, claim owner)
// rather than just its position in tasks:pending or the dependency
// graph.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*types.Task, error) {
	task, err := q.getTask(ctx, taskID)
	if err != nil || task == nil {
		return nil, err
	}
	return task.Clone(), nil
}

// ListTasksFilter narrows ListTasks. A zero-value field matches
// every task along that dimension.
type ListTasksFilter struct {
	Status   types.TaskStatus
	Tag      string
	Priority *int
}

func (f ListTasksFilter) matches(t *types.Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range t.Tags {
			if tag == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ListTasks walks tasks:index and returns every task matching filter,
// satisfying spec §6.4's "listing pending/claimed/failed/escalated
// tasks with filters by tag/status/priority". kv.Backend has no
// secondary-index primitive, so this is a full scan plus
// in-application filtering, the same tradeoff QueueDepth and
// GetDependencyGraph already make for this backend.
func (q *Queue) ListTasks(ctx context.Context, filter ListTasksFilter) ([]*types.Task, error) {
	ids, err := q.backend.SMembers(ctx, indexKey)
	if err != nil {
		return nil, err
	}

	out := make([]*types.Task, 0, len(ids))
	for _, id := range ids {
		task, err := q.getTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if task == nil || !filter.matches(task) {
			continue
		}
		out = append(out, task.Clone())
	}
	return out, nil
}
