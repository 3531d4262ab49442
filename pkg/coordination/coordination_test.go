package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/agentcoord/core/pkg/kv/localkv"
	"github.com/agentcoord/core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *localkv.Store {
	t.Helper()
	store, err := localkv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpen_RegistersAgentAndStartsHeartbeat(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	s, err := Open(ctx, backend, Config{
		Name:              "worker-1",
		Role:              "builder",
		HeartbeatInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	defer s.Close(ctx)

	agent, err := s.Registry.Get(ctx, s.AgentID)
	require.NoError(t, err)
	assert.Equal(t, "worker-1", agent.Name)

	time.Sleep(20 * time.Millisecond)
	agent, err = s.Registry.Get(ctx, s.AgentID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), agent.LastHeartbeat, time.Second)
}

func TestClose_ReleasesLocksAndDeregisters(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	s, err := Open(ctx, backend, Config{Name: "worker-1", Role: "builder"})
	require.NoError(t, err)

	_, _, err = s.LockFile(ctx, "/repo/file.go", "editing", 60)
	require.NoError(t, err)

	require.NoError(t, s.Close(ctx))

	locks, err := s.Locks.ListLocks(ctx)
	require.NoError(t, err)
	assert.Empty(t, locks)

	agent, err := s.Registry.Get(ctx, s.AgentID)
	require.NoError(t, err)
	assert.Equal(t, types.AgentTerminated, agent.Status)

	active, err := s.Registry.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestClose_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	s, err := Open(ctx, backend, Config{Name: "worker-1", Role: "builder"})
	require.NoError(t, err)

	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))
}

func TestLockFile_ReleasedAutomaticallyEvenIfCallerNeverReleases(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	owner, err := Open(ctx, backend, Config{Name: "owner", Role: "builder"})
	require.NoError(t, err)

	_, _, err = owner.LockFile(ctx, "/repo/shared.go", "editing", 60)
	require.NoError(t, err)
	require.NoError(t, owner.Close(ctx))

	other, err := Open(ctx, backend, Config{Name: "other", Role: "builder"})
	require.NoError(t, err)
	defer other.Close(ctx)

	_, _, err = other.LockFile(ctx, "/repo/shared.go", "editing", 60)
	assert.NoError(t, err)
}
