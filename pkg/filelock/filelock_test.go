package filelock

import (
	"context"
	"testing"
	"time"

	"github.com/agentcoord/core/pkg/coreerr"
	"github.com/agentcoord/core/pkg/kv/localkv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := localkv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func TestLockFile_ExclusiveAgainstOtherHolders(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	lock, release, err := m.LockFile(ctx, "/repo/main.go", "agent-a", "editing", 60)
	require.NoError(t, err)
	require.NotNil(t, lock)
	t.Cleanup(func() { _ = release(ctx) })

	_, _, err = m.LockFile(ctx, "/repo/main.go", "agent-b", "editing", 60)
	require.Error(t, err)
	assert.Equal(t, coreerr.LockBusy, coreerr.KindOf(err))
}

func TestLockFile_CanonicalizesPath(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	_, release, err := m.LockFile(ctx, "/repo/../repo/main.go", "agent-a", "editing", 60)
	require.NoError(t, err)
	t.Cleanup(func() { _ = release(ctx) })

	_, _, err = m.LockFile(ctx, "/repo/main.go", "agent-b", "editing", 60)
	require.Error(t, err)
	assert.Equal(t, coreerr.LockBusy, coreerr.KindOf(err))
}

func TestLockFile_TTLExpiryAllowsReclaim(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	_, _, err := m.LockFile(ctx, "/repo/main.go", "agent-a", "editing", 0)
	require.NoError(t, err)

	// TTL of 0 seconds means the lock is already expired by the time
	// another holder looks at it.
	time.Sleep(5 * time.Millisecond)

	lock, release, err := m.LockFile(ctx, "/repo/main.go", "agent-b", "editing", 60)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, "agent-b", lock.HolderID)
	t.Cleanup(func() { _ = release(ctx) })
}

func TestReleaseLock_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	lock, release, err := m.LockFile(ctx, "/repo/main.go", "agent-a", "editing", 60)
	require.NoError(t, err)

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))

	// The path must now be free for anyone.
	_, _, err = m.LockFile(ctx, "/repo/main.go", "agent-b", "editing", 60)
	require.NoError(t, err)
	_ = lock
}

func TestExtendLock_FailsOnceStolen(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	lock, _, err := m.LockFile(ctx, "/repo/main.go", "agent-a", "editing", 0)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, _, err = m.LockFile(ctx, "/repo/main.go", "agent-b", "editing", 60)
	require.NoError(t, err)

	err = m.ExtendLock(ctx, "/repo/main.go", lock.LockID, 60)
	require.Error(t, err)
	assert.Equal(t, coreerr.LockStolen, coreerr.KindOf(err))
}

func TestListLocks_ReturnsLiveLocks(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	_, releaseA, err := m.LockFile(ctx, "/repo/a.go", "agent-a", "editing", 60)
	require.NoError(t, err)
	t.Cleanup(func() { _ = releaseA(ctx) })

	_, releaseB, err := m.LockFile(ctx, "/repo/b.go", "agent-b", "editing", 60)
	require.NoError(t, err)
	t.Cleanup(func() { _ = releaseB(ctx) })

	locks, err := m.ListLocks(ctx)
	require.NoError(t, err)
	assert.Len(t, locks, 2)
}
