package queue

import (
	"context"
	"testing"
	"time"

	"github.com/agentcoord/core/pkg/coreerr"
	"github.com/agentcoord/core/pkg/kv/localkv"
	"github.com/agentcoord/core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	store, err := localkv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, nil)
}

func TestClaimTask_NoDoubleClaim(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	task, err := q.CreateTask(ctx, CreateTaskRequest{Title: "only task"})
	require.NoError(t, err)

	first, err := q.ClaimTask(ctx, "agent-a", nil)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, task.ID, first.ID)
	assert.Equal(t, "agent-a", first.ClaimedBy)

	second, err := q.ClaimTask(ctx, "agent-b", nil)
	require.NoError(t, err)
	assert.Nil(t, second, "a second claim attempt must see no eligible task")
}

func TestClaimTask_PriorityOrdering(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	low, err := q.CreateTask(ctx, CreateTaskRequest{Title: "low", Priority: 1})
	require.NoError(t, err)
	high, err := q.CreateTask(ctx, CreateTaskRequest{Title: "high", Priority: 10})
	require.NoError(t, err)
	mid, err := q.CreateTask(ctx, CreateTaskRequest{Title: "mid", Priority: 5})
	require.NoError(t, err)

	first, err := q.ClaimTask(ctx, "agent", nil)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, high.ID, first.ID, "highest priority task must be claimed first")

	second, err := q.ClaimTask(ctx, "agent", nil)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, mid.ID, second.ID)

	third, err := q.ClaimTask(ctx, "agent", nil)
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Equal(t, low.ID, third.ID)
}

func TestClaimTask_TagRouting(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	generic, err := q.CreateTask(ctx, CreateTaskRequest{Title: "generic"})
	require.NoError(t, err)
	gpu, err := q.CreateTask(ctx, CreateTaskRequest{Title: "gpu-only", Tags: []string{"gpu"}, Priority: 5})
	require.NoError(t, err)

	// A plain agent (no tags) cannot match the gpu-tagged task even
	// though it has higher priority; it must fall through to the
	// untagged task instead.
	claimed, err := q.ClaimTask(ctx, "plain-agent", nil)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, generic.ID, claimed.ID)

	// A gpu agent can still claim the gpu task.
	claimed2, err := q.ClaimTask(ctx, "gpu-agent", []string{"gpu", "linux"})
	require.NoError(t, err)
	require.NotNil(t, claimed2)
	assert.Equal(t, gpu.ID, claimed2.ID)
}

func TestCreateTask_DependencyGate(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	parent, err := q.CreateTask(ctx, CreateTaskRequest{Title: "parent"})
	require.NoError(t, err)
	child, err := q.CreateTask(ctx, CreateTaskRequest{Title: "child", DependsOn: []string{parent.ID}})
	require.NoError(t, err)

	// The child must not be claimable while its dependency is
	// unsatisfied, even though it is the only other task present.
	ready, err := q.GetReadyTasks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, parent.ID, ready[0].ID)

	claimed, err := q.ClaimTask(ctx, "agent", nil)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, parent.ID, claimed.ID)

	require.NoError(t, q.CompleteTask(ctx, parent.ID, "done"))

	// Completing the parent must promote the child into tasks:pending.
	promoted, err := q.GetTask(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskPending, promoted.Status)

	claimedChild, err := q.ClaimTask(ctx, "agent", nil)
	require.NoError(t, err)
	require.NotNil(t, claimedChild)
	assert.Equal(t, child.ID, claimedChild.ID)
}

func TestFailTask_RetrySchedulesExponentialDelay(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	task, err := q.CreateTask(ctx, CreateTaskRequest{
		Title:                 "flaky",
		RetryPolicy:           types.RetryExponential,
		MaxRetries:            3,
		RetryDelayBaseSeconds: 10,
	})
	require.NoError(t, err)

	claimed, err := q.ClaimTask(ctx, "agent", nil)
	require.NoError(t, err)
	require.Equal(t, task.ID, claimed.ID)

	require.NoError(t, q.FailTask(ctx, task.ID, "boom"))

	failed, err := q.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, failed.Status)
	assert.Equal(t, 1, failed.RetryCount)

	// A retry child exists (status still "pending" on its record) but
	// must not be claimable yet: it sits in tasks:retry, not
	// tasks:pending, until its delay elapses.
	ready, err := q.GetReadyTasks(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, ready, 0, "retry child is scheduled, not ready, until its delay elapses")

	none, err := q.ClaimTask(ctx, "agent", nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestFailTask_EscalatesOnFourthFailure(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	task, err := q.CreateTask(ctx, CreateTaskRequest{
		Title:                 "always fails",
		RetryPolicy:           types.RetryLinear,
		MaxRetries:            3,
		RetryDelayBaseSeconds: 0,
	})
	require.NoError(t, err)

	currentID := task.ID
	for i := 0; i < 3; i++ {
		claimed, err := q.ClaimTask(ctx, "agent", nil)
		require.NoError(t, err)
		require.NotNilf(t, claimed, "round %d: expected a claimable task", i+1)
		require.Equal(t, currentID, claimed.ID)
		require.NoError(t, q.FailTask(ctx, currentID, "boom"))

		// A base delay of 0 falls back to the 60s default, so move every
		// scheduled retry to "due now" before sweeping.
		scheduled, err := q.backend.ZRangeByScore(ctx, retryKey, negInf, posInf, 0)
		require.NoError(t, err)
		for _, id := range scheduled {
			require.NoError(t, q.backend.ZAdd(ctx, retryKey, 0, id))
		}
		require.NoError(t, q.sweepRetries(ctx))

		pending, err := q.GetReadyTasks(ctx, 0)
		require.NoError(t, err)
		require.Len(t, pending, 1, "round %d: one retry child must be pending", i+1)
		currentID = pending[0].ID
	}

	// Fourth failure: retry_count (4) exceeds max_retries (3), so this
	// claim must escalate instead of scheduling another retry.
	claimed, err := q.ClaimTask(ctx, "agent", nil)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, currentID, claimed.ID)
	require.NoError(t, q.FailTask(ctx, currentID, "boom"))

	final, err := q.GetTask(ctx, currentID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskEscalated, final.Status)
	assert.Equal(t, 4, final.RetryCount)

	escalated, err := q.ListTasks(ctx, ListTasksFilter{Status: types.TaskEscalated})
	require.NoError(t, err)
	assert.Len(t, escalated, 1)
}

func TestReclaimAgentTasks_ReturnsLeasesToPending(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	task, err := q.CreateTask(ctx, CreateTaskRequest{Title: "work"})
	require.NoError(t, err)

	claimed, err := q.ClaimTask(ctx, "hung-agent", nil)
	require.NoError(t, err)
	require.Equal(t, task.ID, claimed.ID)

	hasLease, err := q.HasLease(ctx, "hung-agent")
	require.NoError(t, err)
	assert.True(t, hasLease)

	require.NoError(t, q.ReclaimAgentTasks(ctx, "hung-agent"))

	hasLease, err = q.HasLease(ctx, "hung-agent")
	require.NoError(t, err)
	assert.False(t, hasLease)

	reclaimed, err := q.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskPending, reclaimed.Status)
	assert.Empty(t, reclaimed.ClaimedBy)

	claimedAgain, err := q.ClaimTask(ctx, "other-agent", nil)
	require.NoError(t, err)
	require.NotNil(t, claimedAgain)
	assert.Equal(t, task.ID, claimedAgain.ID)
}

func TestCompleteTask_RequiresClaimedOrInProgress(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	task, err := q.CreateTask(ctx, CreateTaskRequest{Title: "untouched"})
	require.NoError(t, err)

	err = q.CompleteTask(ctx, task.ID, "done")
	require.Error(t, err)
	assert.Equal(t, coreerr.IllegalStateTransition, coreerr.KindOf(err))
}

func TestClaimTaskBlocking_TimesOut(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.ClaimTaskBlocking(ctx, "agent", nil, 5*time.Millisecond, 30*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, coreerr.Timeout, coreerr.KindOf(err))
}

func TestListTasks_FiltersByTagAndPriority(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.CreateTask(ctx, CreateTaskRequest{Title: "a", Tags: []string{"backend"}, Priority: 3})
	require.NoError(t, err)
	_, err = q.CreateTask(ctx, CreateTaskRequest{Title: "b", Tags: []string{"frontend"}, Priority: 3})
	require.NoError(t, err)
	_, err = q.CreateTask(ctx, CreateTaskRequest{Title: "c", Tags: []string{"backend"}, Priority: 1})
	require.NoError(t, err)

	backendOnly, err := q.ListTasks(ctx, ListTasksFilter{Tag: "backend"})
	require.NoError(t, err)
	assert.Len(t, backendOnly, 2)

	priorityThree, err := q.ListTasks(ctx, ListTasksFilter{Priority: intPtr(3)})
	require.NoError(t, err)
	assert.Len(t, priorityThree, 2)

	backendAtOne, err := q.ListTasks(ctx, ListTasksFilter{Tag: "backend", Priority: intPtr(1)})
	require.NoError(t, err)
	require.Len(t, backendAtOne, 1)
	assert.Equal(t, "c", backendAtOne[0].Title)
}

func intPtr(v int) *int { return &v }
