// Package integration exercises the coordination core end to end
// across package boundaries, the way the teacher's test/integration
// suite drove a running manager through its client rather than
// poking individual packages. Here there is no separate server
// process to dial: a coordination.Session IS the client, so these
// tests open one directly against a backend and drive multiple
// packages through it the way two or more agents sharing a project
// would.
package integration

import (
	"context"
	"testing"

	"github.com/agentcoord/core/pkg/approval"
	"github.com/agentcoord/core/pkg/coordination"
	"github.com/agentcoord/core/pkg/kv/localkv"
	"github.com/agentcoord/core/pkg/queue"
	"github.com/agentcoord/core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *localkv.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	store, err := localkv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// TestTwoAgents_HandoffATaskThroughTheQueue drives the scenario spec
// describes for the task queue's core value: one agent creates work,
// a second claims and finishes it, and every other agent can see the
// outcome through the shared audit trail.
func TestTwoAgents_HandoffATaskThroughTheQueue(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	producer, err := coordination.Open(ctx, backend, coordination.Config{Name: "producer", Role: "planner"})
	require.NoError(t, err)
	defer producer.Close(ctx)

	consumer, err := coordination.Open(ctx, backend, coordination.Config{
		Name: "consumer", Role: "builder", Capabilities: []string{"go"},
	})
	require.NoError(t, err)
	defer consumer.Close(ctx)

	task, err := producer.Queue.CreateTask(ctx, queue.CreateTaskRequest{
		Title:    "implement feature",
		Priority: 5,
		Tags:     []string{"go"},
	})
	require.NoError(t, err)

	claimed, err := consumer.Queue.ClaimTask(ctx, consumer.AgentID, []string{"go"})
	require.NoError(t, err)
	require.Equal(t, task.ID, claimed.ID)

	require.NoError(t, consumer.Queue.StartTask(ctx, task.ID))
	require.NoError(t, consumer.Queue.CompleteTask(ctx, task.ID, "done"))

	final, err := producer.Queue.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, final.Status)

	entries, err := producer.Audit.Tail(ctx, "", 0)
	require.NoError(t, err)
	var sawClaim, sawComplete bool
	for _, e := range entries {
		switch e.Kind {
		case types.AuditTaskClaim:
			sawClaim = true
		case types.AuditTaskCompleted:
			sawComplete = true
		}
	}
	assert.True(t, sawClaim)
	assert.True(t, sawComplete)
}

// TestFileLock_SecondAgentBlockedUntilReleased exercises spec's
// file-lock contention path across two independently opened sessions
// sharing one backend.
func TestFileLock_SecondAgentBlockedUntilReleased(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	a, err := coordination.Open(ctx, backend, coordination.Config{Name: "a", Role: "builder"})
	require.NoError(t, err)
	defer a.Close(ctx)

	b, err := coordination.Open(ctx, backend, coordination.Config{Name: "b", Role: "builder"})
	require.NoError(t, err)
	defer b.Close(ctx)

	_, release, err := a.LockFile(ctx, "/repo/main.go", "editing", 60)
	require.NoError(t, err)

	_, _, err = b.LockFile(ctx, "/repo/main.go", "editing", 60)
	assert.Error(t, err)

	require.NoError(t, release(ctx))

	_, _, err = b.LockFile(ctx, "/repo/main.go", "editing", 60)
	assert.NoError(t, err)
}

// TestApproval_GateBlocksUntilEnoughApproversVote exercises a
// multi-approver gate the way a deployment or schema-migration
// approval would be driven across several reviewing agents.
func TestApproval_GateBlocksUntilEnoughApproversVote(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	requester, err := coordination.Open(ctx, backend, coordination.Config{Name: "requester", Role: "planner"})
	require.NoError(t, err)
	defer requester.Close(ctx)

	reviewers := make([]*coordination.Session, 2)
	for i := range reviewers {
		s, err := coordination.Open(ctx, backend, coordination.Config{Name: "reviewer", Role: "reviewer"})
		require.NoError(t, err)
		defer s.Close(ctx)
		reviewers[i] = s
	}

	req, err := requester.Approvals.Create(ctx, approval.CreateRequest{
		RequestorID:    requester.AgentID,
		ActionType:     "deploy",
		Description:    "deploy prod",
		MinApprovals:   2,
		TimeoutSeconds: 60,
	})
	require.NoError(t, err)

	updated, err := requester.Approvals.Approve(ctx, req.ID, reviewers[0].AgentID, true)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalPending, updated.Status)

	updated, err = requester.Approvals.Approve(ctx, req.ID, reviewers[1].AgentID, true)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalApproved, updated.Status)
}
