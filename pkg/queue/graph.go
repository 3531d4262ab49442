package queue

import (
	"context"

	"github.com/agentcoord/core/pkg/types"
)

// DependencyNode is one entry of the graph returned by
// GetDependencyGraph.
type DependencyNode struct {
	Status     types.TaskStatus
	DependsOn  []string
	Dependents []string
}

// GetDependencyGraph returns every known task's status and dependency
// edges, for UI/CLI consumption (spec §4.E.8).
func (q *Queue) GetDependencyGraph(ctx context.Context) (map[string]DependencyNode, error) {
	ids, err := q.backend.SMembers(ctx, indexKey)
	if err != nil {
		return nil, err
	}

	graph := make(map[string]DependencyNode, len(ids))
	for _, id := range ids {
		task, err := q.getTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if task == nil {
			continue
		}
		dependents, err := q.backend.SMembers(ctx, dependentsKey(id))
		if err != nil {
			return nil, err
		}
		graph[id] = DependencyNode{
			Status:     task.Status,
			DependsOn:  append([]string(nil), task.DependsOn...),
			Dependents: dependents,
		}
	}
	return graph, nil
}
