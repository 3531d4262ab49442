package audit

import (
	"context"
	"testing"

	"github.com/agentcoord/core/pkg/kv/localkv"
	"github.com/agentcoord/core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	store, err := localkv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func TestAppend_AssignsIncreasingSeqIDs(t *testing.T) {
	ctx := context.Background()
	l := newTestLog(t)

	first, err := l.Append(ctx, types.AuditTaskClaim, "agent-1", "task-1", "")
	require.NoError(t, err)
	second, err := l.Append(ctx, types.AuditTaskCompleted, "agent-1", "task-1", "")
	require.NoError(t, err)

	assert.NotEmpty(t, first.SeqID)
	assert.NotEqual(t, first.SeqID, second.SeqID)
}

func TestTail_ReadsInCommitOrder(t *testing.T) {
	ctx := context.Background()
	l := newTestLog(t)

	_, err := l.Append(ctx, types.AuditTaskClaim, "agent-1", "task-1", "")
	require.NoError(t, err)
	_, err = l.Append(ctx, types.AuditTaskCompleted, "agent-1", "task-1", "")
	require.NoError(t, err)
	_, err = l.Append(ctx, types.AuditEscalation, "agent-2", "task-2", "timed out")
	require.NoError(t, err)

	entries, err := l.Tail(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, types.AuditTaskClaim, entries[0].Kind)
	assert.Equal(t, types.AuditTaskCompleted, entries[1].Kind)
	assert.Equal(t, types.AuditEscalation, entries[2].Kind)
}

func TestTail_ResumesFromCursor(t *testing.T) {
	ctx := context.Background()
	l := newTestLog(t)

	first, err := l.Append(ctx, types.AuditTaskClaim, "agent-1", "task-1", "")
	require.NoError(t, err)
	_, err = l.Append(ctx, types.AuditTaskCompleted, "agent-1", "task-1", "")
	require.NoError(t, err)

	resumed, err := l.Tail(ctx, first.SeqID, 0)
	require.NoError(t, err)
	require.Len(t, resumed, 1)
	assert.Equal(t, types.AuditTaskCompleted, resumed[0].Kind)
}
