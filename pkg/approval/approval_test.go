package approval

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

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := localkv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, nil)
}

func TestApprove_SingleApproverMeetsDefaultThreshold(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	req, err := m.Create(ctx, CreateRequest{RequestorID: "agent-1", ActionType: "deploy"})
	require.NoError(t, err)

	decided, err := m.Approve(ctx, req.ID, "approver-1", true)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalApproved, decided.Status)
}

func TestApprove_MultiApproverGateRequiresAllVotes(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	req, err := m.Create(ctx, CreateRequest{RequestorID: "agent-1", ActionType: "deploy", MinApprovals: 2})
	require.NoError(t, err)

	afterFirst, err := m.Approve(ctx, req.ID, "approver-1", true)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalPending, afterFirst.Status, "one of two required approvals must stay pending")

	afterSecond, err := m.Approve(ctx, req.ID, "approver-2", true)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalApproved, afterSecond.Status)
}

func TestReject_AlwaysWinsEvenAfterApprovals(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	req, err := m.Create(ctx, CreateRequest{RequestorID: "agent-1", ActionType: "deploy", MinApprovals: 3})
	require.NoError(t, err)

	_, err = m.Approve(ctx, req.ID, "approver-1", true)
	require.NoError(t, err)
	_, err = m.Approve(ctx, req.ID, "approver-2", true)
	require.NoError(t, err)

	rejected, err := m.Reject(ctx, req.ID, "approver-3", true)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalRejected, rejected.Status)
}

func TestDecide_IsTerminalOnceDecided(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	req, err := m.Create(ctx, CreateRequest{RequestorID: "agent-1", ActionType: "deploy"})
	require.NoError(t, err)

	_, err = m.Approve(ctx, req.ID, "approver-1", true)
	require.NoError(t, err)

	_, err = m.Reject(ctx, req.ID, "approver-2", true)
	require.Error(t, err)
	assert.Equal(t, coreerr.IllegalStateTransition, coreerr.KindOf(err))
}

func TestApprove_IneligibleApproverIsDenied(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	req, err := m.Create(ctx, CreateRequest{RequestorID: "agent-1", ActionType: "deploy"})
	require.NoError(t, err)

	_, err = m.Approve(ctx, req.ID, "approver-1", false)
	require.Error(t, err)
	assert.Equal(t, coreerr.PermissionDenied, coreerr.KindOf(err))
}

func TestWaitForDecision_ExpiresPastTimeout(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	req, err := m.Create(ctx, CreateRequest{RequestorID: "agent-1", ActionType: "deploy"})
	require.NoError(t, err)

	status, err := m.WaitForDecision(ctx, req.ID, 5*time.Millisecond, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalExpired, status)

	pending, err := m.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "expired request must leave the pending index")
}

func TestWaitForDecision_ReturnsOnceApproved(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	req, err := m.Create(ctx, CreateRequest{RequestorID: "agent-1", ActionType: "deploy"})
	require.NoError(t, err)

	go func() {
		time.Sleep(5 * time.Millisecond)
		_, _ = m.Approve(ctx, req.ID, "approver-1", true)
	}()

	status, err := m.WaitForDecision(ctx, req.ID, 2*time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalApproved, status)
}
